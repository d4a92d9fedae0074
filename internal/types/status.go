package types

import "strings"

// --------------------------------------------
// Job status state machine
// --------------------------------------------

// JobStatus is the persisted progress marker read by status polling.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusTranscribing JobStatus = "transcribing"
	StatusTranscribed  JobStatus = "transcribed"
	StatusConverting   JobStatus = "converting"
	StatusFinalizing   JobStatus = "finalizing"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces the allowed edges of the job state machine.
// pending may only fail on precondition errors (job or owner missing).
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusTranscribing || to == StatusFailed
	case StatusTranscribing:
		return to == StatusTranscribed || to == StatusFailed
	case StatusTranscribed:
		return to == StatusConverting || to == StatusFailed
	case StatusConverting:
		return to == StatusFinalizing || to == StatusFailed
	case StatusFinalizing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// --------------------------------------------
// VARK learning styles
// --------------------------------------------

// LearningStyle is the user's VARK preference.
type LearningStyle string

const (
	StyleVisual      LearningStyle = "visual"
	StyleAuditory    LearningStyle = "auditory"
	StyleReadWrite   LearningStyle = "read-write"
	StyleKinesthetic LearningStyle = "kinesthetic"
)

// ParseLearningStyle maps stored values (full names or v/a/r/k) to a style.
// Empty or unknown values fall back to read-write.
func ParseLearningStyle(raw string) LearningStyle {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "visual", "v":
		return StyleVisual
	case "auditory", "a":
		return StyleAuditory
	case "kinesthetic", "k":
		return StyleKinesthetic
	default:
		return StyleReadWrite
	}
}

// Title is the human-readable learner label used in prompts.
func (s LearningStyle) Title() string {
	switch s {
	case StyleVisual:
		return "Visual Learner"
	case StyleAuditory:
		return "Auditory Learner"
	case StyleKinesthetic:
		return "Kinesthetic Learner"
	default:
		return "Reading/Writing Learner"
	}
}
