package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nypoclary/lectura-backend/internal/types"
)

var restartJob bool

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Process one pending job in the foreground",
	Long: `Run drives a pending job through transcription, note generation and
optional narration, then prints the terminal status. With --restart the job
is re-armed first, whatever state it is in.`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the persisted record of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  showStatus,
}

func init() {
	runCmd.Flags().BoolVar(&restartJob, "restart", false, "re-arm the job before running it")
	rootCmd.AddCommand(runCmd, statusCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.JobTimeout)
	defer cancel()

	var status types.JobStatus
	if restartJob {
		status = a.Processor.Restart(ctx, args[0])
	} else {
		status = a.Processor.Run(ctx, args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], status)
	if status != types.StatusCompleted {
		return fmt.Errorf("job %s ended as %s", args[0], status)
	}
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Jobs.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load job %s: %w", args[0], err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
