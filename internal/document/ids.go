package document

import (
	"github.com/google/uuid"

	"github.com/arkivo/arkivo/internal/errs"
)

// DocumentID identifies a document aggregate.
type DocumentID uuid.UUID

// ChunkID identifies a chunk within a document.
type ChunkID uuid.UUID

// OrganizationID is the tenant scoping key. Every document and every
// search request carries exactly one.
type OrganizationID uuid.UUID

// NewDocumentID generates a random document id.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewChunkID generates a random chunk id.
func NewChunkID() ChunkID { return ChunkID(uuid.New()) }

// NewOrganizationID generates a random organization id.
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }

func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id ChunkID) String() string        { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }

func (id DocumentID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ChunkID) IsZero() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// The ids travel through JSON as canonical UUID strings. Defined types
// do not inherit uuid.UUID's methods, so the text codec is restated
// here explicitly.

func (id DocumentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ChunkID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id OrganizationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DocumentID) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ChunkID) UnmarshalText(text []byte) error {
	parsed, err := ParseChunkID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OrganizationID) UnmarshalText(text []byte) error {
	parsed, err := ParseOrganizationID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseDocumentID parses the canonical UUID form of a document id.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, errs.Validationf("invalid document id %q", s)
	}
	return DocumentID(u), nil
}

// ParseChunkID parses the canonical UUID form of a chunk id.
func ParseChunkID(s string) (ChunkID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChunkID{}, errs.Validationf("invalid chunk id %q", s)
	}
	return ChunkID(u), nil
}

// ParseOrganizationID parses the canonical UUID form of a tenant id.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OrganizationID{}, errs.Validationf("invalid organization id %q", s)
	}
	return OrganizationID(u), nil
}
