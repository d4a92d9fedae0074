package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nypoclary/lectura-backend/internal/aggregator"
	"github.com/nypoclary/lectura-backend/internal/dataset"
)

var reportPath string

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.xlsx>",
	Short: "Process every lecture listed in an xlsx manifest",
	Long: `Batch reads the first sheet of the manifest. Columns are matched by
header: an audio/file/path column and an owner/user column are required,
name/title, style and job id columns are optional.

Local audio files are uploaded to the blob store first. Rows whose job id
already exists are restarted.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&reportPath, "report", "", "write an xlsx report to this path")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	rows, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.RunBatch(cmd.Context(), rows)
	summary := aggregator.Aggregate(results)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tJOB\tSTATUS\tNOTES\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Row, r.JobID, r.Status, r.ResultArtifactRef, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d completed (%.0f%%), %d narrated\n",
		summary.Completed, summary.Total, summary.CompletionRate*100, summary.Narrated)

	if reportPath != "" {
		if err := dataset.WriteReport(reportPath, results, summary, a.Log); err != nil {
			return err
		}
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", summary.Failed, summary.Total)
	}
	return nil
}
