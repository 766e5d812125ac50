package session

import (
	"fmt"
	"time"

	"github.com/reviewloop/pkg/models"
)

// Key is the idempotency key guaranteeing at-most-once handling of a
// comment per revision.
type Key struct {
	CommentID  string
	RevisionID string
}

// String renders the key in the stable form used for persistence.
func (k Key) String() string {
	return k.CommentID + "@" + k.RevisionID
}

// HandledEntry records how a comment was resolved.
type HandledEntry struct {
	ResolvedBy string    `json:"resolved_by"`
	At         time.Time `json:"at"`
}

// State is the durable per-target session record.
type State struct {
	TargetID   string                  `json:"target_id"`
	Cycle      int                     `json:"cycle"`
	LastPushed string                  `json:"last_pushed_revision,omitempty"`
	Handled    map[string]HandledEntry `json:"handled"`
	StartedAt  time.Time               `json:"started_at"`
}

// NewState returns a fresh session record for a target.
func NewState(targetID string) *State {
	return &State{
		TargetID:  targetID,
		Handled:   make(map[string]HandledEntry),
		StartedAt: time.Now().UTC(),
	}
}

// IsHandled reports whether the (comment, revision) pair was previously
// marked handled.
func (s *State) IsHandled(commentID, revisionID string) bool {
	_, ok := s.Handled[Key{CommentID: commentID, RevisionID: revisionID}.String()]
	return ok
}

// markHandled inserts one idempotency key per task and updates the
// last-pushed revision. Persistence is the store's responsibility.
func (s *State) markHandled(tasks []models.FixTask, revisionID string) {
	if s.Handled == nil {
		s.Handled = make(map[string]HandledEntry)
	}
	now := time.Now().UTC()
	for _, task := range tasks {
		key := Key{CommentID: task.ID, RevisionID: task.RevisionID}.String()
		if _, ok := s.Handled[key]; ok {
			continue
		}
		s.Handled[key] = HandledEntry{ResolvedBy: revisionID, At: now}
	}
	s.LastPushed = revisionID
}

// Store is the durable session-state interface. Opening a target that does
// not match the stored record fully resets it; mutating operations persist
// synchronously.
type Store interface {
	// Open returns the current state for the target, creating an empty
	// record if absent or resetting a record stored for a different target.
	Open(targetID string) (*State, error)
	// Persist writes the full record atomically.
	Persist(state *State) error
	// MarkHandled inserts idempotency keys for the tasks, updates the
	// last-pushed revision, and persists.
	MarkHandled(state *State, tasks []models.FixTask, revisionID string) error
	// IncrementCycle increments the cycle counter, persists, and returns
	// the new count.
	IncrementCycle(state *State) (int, error)
	// Clear deletes the stored record for a target.
	Clear(targetID string) error
}

// reconcile implements the shared open semantics: an absent or corrupt
// record, or one stored for a different target, yields a fresh state.
func reconcile(stored *State, targetID string) *State {
	if stored == nil || stored.TargetID != targetID {
		return NewState(targetID)
	}
	if stored.Handled == nil {
		stored.Handled = make(map[string]HandledEntry)
	}
	return stored
}

func validateState(state *State) error {
	if state == nil {
		return fmt.Errorf("nil session state")
	}
	if state.TargetID == "" {
		return fmt.Errorf("session state has no target id")
	}
	return nil
}
