// Package eventbus implements C9: the async pub/sub engine with a bounded
// history ring buffer, three subscription indices, and pending-parent
// completion propagation (spec.md §4.9).
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the closed set of event lifecycle phases (spec.md §3.5).
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseStarted    Phase = "started"
	PhaseProgress   Phase = "progress"
	PhaseCompleting Phase = "completing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Event is a short-lived, UUID-only notification. It never carries record
// payloads (spec.md §3.5).
type Event struct {
	ID        uuid.UUID
	Type      string
	Phase     Phase
	Timestamp time.Time

	SubjectTypeName  *string
	SubjectVersionID *uuid.UUID
	ActorTypeName    *string
	ActorVersionID   *uuid.UUID

	ContextVersionIDs map[string]uuid.UUID

	LineageID uuid.UUID
	ParentID  *uuid.UUID
	RootID    uuid.UUID

	ChildrenIDs          []uuid.UUID
	PendingChildrenCount int

	DurationMs *int64
	Metadata   map[string]any
}

// ExpectedChildren reads the "expected_children" metadata key an emitter
// sets when it wants the bus to auto-complete
// this event once that many descendants finish (spec.md §4.9 "Completion
// propagation").
func (e *Event) ExpectedChildren() int {
	if e.Metadata == nil {
		return 0
	}
	n, _ := e.Metadata["expected_children"].(int)
	return n
}
