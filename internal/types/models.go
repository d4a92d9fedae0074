package types

import "time"

// Job is the persisted note record driven through the pipeline.
type Job struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"owner_id"`
	DisplayName          string    `json:"display_name"`
	SourceArtifactRef    string    `json:"source_artifact_ref"`
	Status               JobStatus `json:"status"`
	ResultArtifactRef    string    `json:"result_artifact_ref,omitempty"`
	NarrationArtifactRef string    `json:"narration_artifact_ref,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// JobUpdate carries a partial update; nil fields are left untouched.
type JobUpdate struct {
	Status               *JobStatus
	ResultArtifactRef    *string
	NarrationArtifactRef *string
	CreatedAt            *time.Time
}

// StatusUpdate builds a JobUpdate that only changes the status.
func StatusUpdate(s JobStatus) JobUpdate {
	return JobUpdate{Status: &s}
}

// Apply copies the non-nil fields of u onto j.
func (u JobUpdate) Apply(j *Job) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.ResultArtifactRef != nil {
		j.ResultArtifactRef = *u.ResultArtifactRef
	}
	if u.NarrationArtifactRef != nil {
		j.NarrationArtifactRef = *u.NarrationArtifactRef
	}
	if u.CreatedAt != nil {
		j.CreatedAt = *u.CreatedAt
	}
}

// User is the read-only preference record of a job owner.
type User struct {
	ID            string        `json:"id"`
	LearningStyle LearningStyle `json:"learning_style"`
}

// TranscriptSegment is the text of one audio chunk, in chunk order.
type TranscriptSegment struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
}

// NoteSegment is the generated study note for one transcript segment.
type NoteSegment struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
}
