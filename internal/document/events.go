package document

import "time"

// Event is a state-change record emitted by the aggregate. Transitions
// return events instead of publishing them, so the orchestrator can
// hold them back until the aggregate has been durably saved (outbox
// ordering: no event for a write that never committed).
type Event interface {
	// EventName identifies the event type on the wire.
	EventName() string

	// Document returns the aggregate the event belongs to.
	Document() DocumentID

	// OccurredAt returns when the transition happened.
	OccurredAt() time.Time
}

type baseEvent struct {
	documentID DocumentID
	occurredAt time.Time
}

func (e baseEvent) Document() DocumentID  { return e.documentID }
func (e baseEvent) OccurredAt() time.Time { return e.occurredAt }

func newBase(id DocumentID) baseEvent {
	return baseEvent{documentID: id, occurredAt: time.Now().UTC()}
}

// Created signals a new document entering the corpus.
type Created struct {
	baseEvent
	OrganizationID OrganizationID
	Title          string
}

func (Created) EventName() string { return "document.created" }

// StatusChanged signals any lifecycle transition.
type StatusChanged struct {
	baseEvent
	From Status
	To   Status
}

func (StatusChanged) EventName() string { return "document.status_changed" }

// Processed signals successful ingestion, including how many chunks
// were produced and how many obtained embeddings.
type Processed struct {
	baseEvent
	ChunkCount    int
	EmbeddedCount int
}

func (Processed) EventName() string { return "document.processed" }

// ProcessingFailed signals a whole-pipeline ingestion failure.
type ProcessingFailed struct {
	baseEvent
	Reason string
}

func (ProcessingFailed) EventName() string { return "document.processing_failed" }
