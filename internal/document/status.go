package document

// Status is the processing lifecycle state of a document.
//
//	pending → processing → {completed, failed}
//	completed → archived
//	failed → pending (retry)
//
// All other transitions are invalid and rejected before any mutation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

// transitions enumerates the legal edges of the state machine.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusArchived},
	StatusFailed:     {StatusPending},
	StatusArchived:   {},
}

// CanTransitionTo reports whether the edge s → next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// HasError reports whether the status carries an error message.
func (s Status) HasError() bool {
	return s == StatusFailed
}

// IsTerminalForProcessing reports whether a document in this status can
// be submitted for processing.
func (s Status) IsTerminalForProcessing() bool {
	return s != StatusPending
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}
