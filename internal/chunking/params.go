package chunking

import "github.com/arkivo/arkivo/internal/errs"

// Parameters controls how text is segmented into chunks. Sizes and the
// overlap are measured in bytes of the original text.
type Parameters struct {
	// MaxSize is the upper bound on chunk length. Only a forced split
	// of an oversized unit ever reaches it exactly.
	MaxSize int

	// Overlap is how much of a chunk's tail is repeated at the head of
	// the next chunk. Must be smaller than MaxSize.
	Overlap int

	// MinSize is the lower bound on chunk length. The final trailing
	// chunk is exempt.
	MinSize int

	// PreserveSentences makes sentences the accumulation unit when
	// paragraphs are not preserved, and enables sentence-boundary
	// preference for overlap cuts.
	PreserveSentences bool

	// PreserveParagraphs makes paragraphs the accumulation unit.
	PreserveParagraphs bool
}

// DefaultParameters returns the chunking configuration used for
// standard document ingestion.
func DefaultParameters() Parameters {
	return Parameters{
		MaxSize:            1000,
		Overlap:            200,
		MinSize:            100,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// SemanticParameters returns the configuration for semantic chunking.
// It is a parameterization of the same algorithm: a wider overlap so
// related context repeats across chunk boundaries, with paragraph
// preservation forced on.
func SemanticParameters() Parameters {
	p := DefaultParameters()
	p.Overlap = 350
	p.PreserveParagraphs = true
	return p
}

// Validate checks the internal consistency of the parameters.
func (p Parameters) Validate() error {
	if p.MaxSize <= 0 {
		return errs.Validationf("chunking: max size must be positive, got %d", p.MaxSize)
	}
	if p.MinSize < 0 {
		return errs.Validationf("chunking: min size must not be negative, got %d", p.MinSize)
	}
	if p.MinSize > p.MaxSize {
		return errs.Validationf("chunking: min size %d exceeds max size %d", p.MinSize, p.MaxSize)
	}
	if p.Overlap < 0 {
		return errs.Validationf("chunking: overlap must not be negative, got %d", p.Overlap)
	}
	if p.Overlap >= p.MaxSize {
		return errs.Validationf("chunking: overlap %d must be smaller than max size %d", p.Overlap, p.MaxSize)
	}
	return nil
}
