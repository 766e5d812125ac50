package models

import (
	"time"
)

// Side indicates which side of a diff a comment is anchored to.
type Side string

const (
	SideNew Side = "new"
	SideOld Side = "old"
)

// RawComment is a review comment as fetched from the hosting platform,
// before any filtering or normalization.
type RawComment struct {
	ID           string
	DiscussionID string
	Author       string
	FilePath     string
	Line         *int // line in the new version of the file, nil if unknown
	Position     *int // position within the diff, nil if unknown
	Side         Side
	Body         string
	DiffContext  string
	CreatedAt    time.Time
	RevisionID   string
	Resolved     bool
	Replied      bool
}

// FixTask is a normalized actionable unit derived from a RawComment.
// Tasks are transient: they are recomputed every cycle and never persisted.
type FixTask struct {
	ID          string
	FilePath    string // empty for comments not scoped to a file
	StartLine   int
	EndLine     int
	Side        Side
	Body        string
	DiffContext string
	RevisionID  string
	CreatedAt   time.Time
}

// LineCount returns the number of lines the task spans.
func (t FixTask) LineCount() int {
	return t.EndLine - t.StartLine + 1
}

// CycleStatus is the terminal status of a single fix cycle.
type CycleStatus string

const (
	// CycleComplete means no actionable comments remained.
	CycleComplete CycleStatus = "complete"
	// CyclePushed means fixes were committed and pushed.
	CyclePushed CycleStatus = "pushed"
	// CycleStopped means a guardrail or progress check halted automation.
	CycleStopped CycleStatus = "stopped"
	// CycleFailed means the fix engine or verification failed.
	CycleFailed CycleStatus = "failed"
)

// CycleResult is the outcome of one executor pass.
type CycleResult struct {
	Status     CycleStatus
	Reason     string
	Revision   string
	FixedCount int
}

// ReviewerState is the completion status of an external reviewer's checks
// against a specific revision.
type ReviewerState string

const (
	ReviewerPending    ReviewerState = "pending"
	ReviewerInProgress ReviewerState = "in_progress"
	ReviewerCompleted  ReviewerState = "completed"
	// ReviewerUnknown means no matching check was found. Callers treat it
	// as completed so an absent check never blocks termination.
	ReviewerUnknown ReviewerState = "unknown"
)

// RevisionAlreadyFixed is the sentinel revision id recorded when the fix
// engine reports success but changed no files: the comments are considered
// resolved by an earlier revision.
const RevisionAlreadyFixed = "already-fixed"
