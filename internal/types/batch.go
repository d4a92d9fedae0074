package types

// --------------------------------------------
// Batch manifest rows
// --------------------------------------------

// ManifestRow is one lecture listed in a batch spreadsheet.
type ManifestRow struct {
	Row           int           `json:"row"`
	JobID         string        `json:"job_id,omitempty"`
	DisplayName   string        `json:"display_name"`
	OwnerID       string        `json:"owner_id"`
	AudioPath     string        `json:"audio_path"`
	LearningStyle LearningStyle `json:"learning_style,omitempty"`
}

// --------------------------------------------
// Batch outcomes written to the report
// --------------------------------------------

// BatchResult is the outcome of processing one manifest row.
type BatchResult struct {
	Row                  int           `json:"row"`
	JobID                string        `json:"job_id"`
	DisplayName          string        `json:"display_name"`
	OwnerID              string        `json:"owner_id"`
	LearningStyle        LearningStyle `json:"learning_style"`
	Status               JobStatus     `json:"status"`
	ResultArtifactRef    string        `json:"result_artifact_ref,omitempty"`
	NarrationArtifactRef string        `json:"narration_artifact_ref,omitempty"`
	DurationMs           int64         `json:"duration_ms"`
	Error                string        `json:"error,omitempty"`
}
