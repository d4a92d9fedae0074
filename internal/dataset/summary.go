package dataset

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/nypoclary/lectura-backend/internal/aggregator"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/types"
)

const (
	jobsSheet    = "Jobs"
	summarySheet = "Summary"
)

var jobsHeader = []any{"Row", "Job ID", "Name", "Owner", "Style", "Status", "Notes", "Narration", "Duration (ms)", "Error"}

// WriteReport saves batch results and their roll-up as an xlsx workbook
// with a Jobs sheet and a Summary sheet.
func WriteReport(path string, results []types.BatchResult, s aggregator.Summary, log *logger.Logger) error {
	if log == nil {
		log = logger.Discard()
	}
	l := log.WithComponent("dataset.report").WithField("path", path)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), jobsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(jobsSheet, "A1", &jobsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range results {
		row := []any{
			r.Row, r.JobID, r.DisplayName, r.OwnerID, string(r.LearningStyle), string(r.Status),
			r.ResultArtifactRef, r.NarrationArtifactRef, r.DurationMs, r.Error,
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(jobsSheet, axis, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	for i, kv := range summaryRows(s) {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, axis, &kv); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		l.WithError(err).Error("save report failed")
		return fmt.Errorf("save report: %w", err)
	}
	l.WithFields(logrus.Fields{
		"jobs":      s.Total,
		"completed": s.Completed,
		"failed":    s.Failed,
	}).Info("batch report written")
	return nil
}

func summaryRows(s aggregator.Summary) [][]any {
	rows := [][]any{
		{"Total", s.Total},
		{"Completed", s.Completed},
		{"Failed", s.Failed},
		{"Narrated", s.Narrated},
		{"Completion rate", s.CompletionRate},
		{"Total duration (ms)", s.TotalMs},
		{"Average duration (ms)", s.AverageMs},
		{"Slowest job", s.SlowestJobID},
	}

	styles := make([]string, 0, len(s.ByStyle))
	for st := range s.ByStyle {
		styles = append(styles, string(st))
	}
	sort.Strings(styles)
	for _, st := range styles {
		rows = append(rows, []any{"Style: " + st, s.ByStyle[types.LearningStyle(st)]})
	}
	return rows
}
