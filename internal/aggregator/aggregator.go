package aggregator

import (
	"sort"

	"github.com/nypoclary/lectura-backend/internal/types"
)

// Summary is the roll-up of a batch run.
type Summary struct {
	Total          int                         `json:"total"`
	Completed      int                         `json:"completed"`
	Failed         int                         `json:"failed"`
	Narrated       int                         `json:"narrated"`
	CompletionRate float64                     `json:"completion_rate"`
	ByStatus       map[types.JobStatus]int     `json:"by_status"`
	ByStyle        map[types.LearningStyle]int `json:"by_style"`
	TotalMs        int64                       `json:"total_ms"`
	AverageMs      int64                       `json:"average_ms"`
	SlowestJobID   string                      `json:"slowest_job_id,omitempty"`
	Failures       []string                    `json:"failures,omitempty"`
}

func Aggregate(results []types.BatchResult) Summary {
	s := Summary{
		Total:    len(results),
		ByStatus: map[types.JobStatus]int{},
		ByStyle:  map[types.LearningStyle]int{},
	}
	var slowest int64 = -1
	for _, r := range results {
		s.ByStatus[r.Status]++
		if r.LearningStyle != "" {
			s.ByStyle[r.LearningStyle]++
		}
		switch r.Status {
		case types.StatusCompleted:
			s.Completed++
		case types.StatusFailed:
			s.Failed++
			s.Failures = append(s.Failures, r.JobID)
		}
		if r.NarrationArtifactRef != "" {
			s.Narrated++
		}
		s.TotalMs += r.DurationMs
		if r.DurationMs > slowest {
			slowest = r.DurationMs
			s.SlowestJobID = r.JobID
		}
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total)
		s.AverageMs = s.TotalMs / int64(s.Total)
	}
	sort.Strings(s.Failures)
	return s
}
