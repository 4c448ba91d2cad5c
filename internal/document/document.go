// Package document defines the Document aggregate: the entity owning a
// tenant-scoped piece of content, its processing state machine, and the
// chunks produced by ingestion.
//
// All mutation goes through the aggregate's transition methods, which
// validate the edge before touching state and return event records for
// publication after the aggregate is durably saved.
package document

import (
	"strings"
	"time"

	"github.com/arkivo/arkivo/internal/errs"
)

// Title length bounds.
const (
	MinTitleLength = 1
	MaxTitleLength = 500
)

// FileInfo describes the uploaded source of a document.
type FileInfo struct {
	Name        string
	ContentType string
	Size        int64
}

// Document is the aggregate root. Chunks are owned exclusively by the
// document: they are replaced wholesale on each successful processing
// and never shared across documents.
type Document struct {
	id             DocumentID
	organizationID OrganizationID
	title          string
	fileInfo       FileInfo
	content        string
	metadata       map[string]string
	tags           []string
	createdAt      time.Time

	status       Status
	chunks       []*Chunk
	processedAt  *time.Time
	errorMessage string

	// version is the optimistic-concurrency counter maintained by the
	// repository. A stale save fails with a conflict instead of
	// silently overwriting a newer version.
	version int64
}

// NewDocument creates a pending document and returns the creation
// event for post-save publication.
func NewDocument(orgID OrganizationID, title, content string, fileInfo FileInfo,
	metadata map[string]string, tags []string) (*Document, Created, error) {
	if orgID.IsZero() {
		return nil, Created{}, errs.Validation("document requires an organization id")
	}
	trimmed := strings.TrimSpace(title)
	if len(trimmed) < MinTitleLength || len(title) > MaxTitleLength {
		return nil, Created{}, errs.Validationf("title length must be %d-%d characters and not blank",
			MinTitleLength, MaxTitleLength)
	}
	if strings.TrimSpace(content) == "" {
		return nil, Created{}, errs.Validation("document content must not be blank")
	}

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	d := &Document{
		id:             NewDocumentID(),
		organizationID: orgID,
		title:          title,
		fileInfo:       fileInfo,
		content:        content,
		metadata:       md,
		tags:           append([]string(nil), tags...),
		createdAt:      time.Now().UTC(),
		status:         StatusPending,
	}

	ev := Created{baseEvent: newBase(d.id), OrganizationID: orgID, Title: title}
	return d, ev, nil
}

// Restore rebuilds a document from persisted state without validation
// or events. Repository use only.
func Restore(id DocumentID, orgID OrganizationID, title, content string, fileInfo FileInfo,
	metadata map[string]string, tags []string, createdAt time.Time, status Status,
	chunks []*Chunk, processedAt *time.Time, errorMessage string, version int64) *Document {
	return &Document{
		id:             id,
		organizationID: orgID,
		title:          title,
		fileInfo:       fileInfo,
		content:        content,
		metadata:       metadata,
		tags:           tags,
		createdAt:      createdAt,
		status:         status,
		chunks:         chunks,
		processedAt:    processedAt,
		errorMessage:   errorMessage,
		version:        version,
	}
}

func (d *Document) ID() DocumentID                 { return d.id }
func (d *Document) OrganizationID() OrganizationID { return d.organizationID }
func (d *Document) Title() string                  { return d.title }
func (d *Document) Content() string                { return d.content }
func (d *Document) FileInfo() FileInfo             { return d.fileInfo }
func (d *Document) CreatedAt() time.Time           { return d.createdAt }
func (d *Document) Status() Status                 { return d.status }
func (d *Document) ErrorMessage() string           { return d.errorMessage }
func (d *Document) Version() int64                 { return d.version }

// Metadata returns a copy of the document's metadata.
func (d *Document) Metadata() map[string]string {
	md := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		md[k] = v
	}
	return md
}

// Tags returns a copy of the document's tags.
func (d *Document) Tags() []string {
	return append([]string(nil), d.tags...)
}

// ProcessedAt returns the completion time, or zero when the document
// has never completed processing.
func (d *Document) ProcessedAt() (time.Time, bool) {
	if d.processedAt == nil {
		return time.Time{}, false
	}
	return *d.processedAt, true
}

// Chunks returns the document's chunk list. The slice is a copy; the
// chunks themselves are the owned entities.
func (d *Document) Chunks() []*Chunk {
	return append([]*Chunk(nil), d.chunks...)
}

// ChunkByID locates an owned chunk by id.
func (d *Document) ChunkByID(id ChunkID) (*Chunk, bool) {
	for _, c := range d.chunks {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// CanBeProcessed reports whether the document may enter the ingestion
// pipeline.
func (d *Document) CanBeProcessed() bool {
	return !d.status.IsTerminalForProcessing()
}

// SetVersion overwrites the optimistic-concurrency counter after a
// successful save. Repository use only.
func (d *Document) SetVersion(v int64) { d.version = v }

// StartProcessing transitions pending → processing and clears any
// stale error message from an earlier failed attempt.
func (d *Document) StartProcessing() ([]Event, error) {
	if err := d.checkTransition(StatusProcessing); err != nil {
		return nil, err
	}
	from := d.status
	d.status = StatusProcessing
	d.errorMessage = ""
	return []Event{
		StatusChanged{baseEvent: newBase(d.id), From: from, To: d.status},
	}, nil
}

// CompleteProcessing transitions processing → completed, replacing the
// chunk list wholesale. Every chunk must belong to this document and
// the list must not be empty.
func (d *Document) CompleteProcessing(chunks []*Chunk) ([]Event, error) {
	if err := d.checkTransition(StatusCompleted); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errs.InvalidState("cannot complete processing with no chunks")
	}
	embedded := 0
	for _, c := range chunks {
		if c.documentID != d.id {
			return nil, errs.InvalidStatef("chunk %s belongs to document %s, not %s",
				c.id, c.documentID, d.id)
		}
		if c.embedState == EmbeddingReady {
			embedded++
		}
	}

	from := d.status
	now := time.Now().UTC()
	d.status = StatusCompleted
	d.chunks = append([]*Chunk(nil), chunks...)
	d.processedAt = &now

	return []Event{
		StatusChanged{baseEvent: newBase(d.id), From: from, To: d.status},
		Processed{baseEvent: newBase(d.id), ChunkCount: len(chunks), EmbeddedCount: embedded},
	}, nil
}

// FailProcessing transitions processing → failed with a required,
// non-blank error message.
func (d *Document) FailProcessing(message string) ([]Event, error) {
	if err := d.checkTransition(StatusFailed); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errs.Validation("failure message must not be blank")
	}

	from := d.status
	d.status = StatusFailed
	d.errorMessage = message

	return []Event{
		StatusChanged{baseEvent: newBase(d.id), From: from, To: d.status},
		ProcessingFailed{baseEvent: newBase(d.id), Reason: message},
	}, nil
}

// RetryProcessing transitions failed → pending, clearing chunks, the
// error message and the processed timestamp so the document can run
// through ingestion again.
func (d *Document) RetryProcessing() ([]Event, error) {
	if err := d.checkTransition(StatusPending); err != nil {
		return nil, err
	}

	from := d.status
	d.status = StatusPending
	d.chunks = nil
	d.errorMessage = ""
	d.processedAt = nil

	return []Event{
		StatusChanged{baseEvent: newBase(d.id), From: from, To: d.status},
	}, nil
}

// Archive transitions completed → archived. Archived documents are
// logically retired but never deleted by the pipeline.
func (d *Document) Archive() ([]Event, error) {
	if err := d.checkTransition(StatusArchived); err != nil {
		return nil, err
	}

	from := d.status
	d.status = StatusArchived

	return []Event{
		StatusChanged{baseEvent: newBase(d.id), From: from, To: d.status},
	}, nil
}

// checkTransition validates an edge before any state is touched.
func (d *Document) checkTransition(next Status) error {
	if !d.status.CanTransitionTo(next) {
		return errs.InvalidStatef("document %s cannot transition from %s to %s",
			d.id, d.status, next)
	}
	return nil
}
