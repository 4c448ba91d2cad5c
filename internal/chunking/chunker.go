// Package chunking splits document text into bounded, overlapping
// segments for embedding and retrieval.
//
// The splitter is a pure function over the original string: every chunk
// is a verbatim substring identified by byte offsets, so stripping the
// overlap from consecutive chunks and concatenating them reconstructs
// the input exactly.
package chunking

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded segment of the source text. Start and End are
// byte offsets into the original string, End exclusive, so
// End-Start == len(Text).
type Chunk struct {
	Text  string
	Start int
	End   int
}

// Split segments text according to p. Empty or blank input yields no
// chunks. Chunks are returned in source order; consecutive chunks share
// p.Overlap bytes of text (adjusted toward sentence boundaries when
// sentence preservation is on).
func Split(text string, p Parameters) ([]Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := sentenceBoundaries(text)

	// The accumulation unit: paragraphs win over sentences; with both
	// preservation flags off every cut is a raw window cut.
	var units []int
	switch {
	case p.PreserveParagraphs:
		units = paragraphBoundaries(text)
	case p.PreserveSentences:
		units = sentences
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := cutEnd(text, start, p, units, sentences)
		chunks = append(chunks, Chunk{Text: text[start:end], Start: start, End: end})
		if end >= len(text) {
			break
		}
		start = nextStart(text, start, end, p, sentences)
	}
	return chunks, nil
}

// cutEnd picks the end offset for a chunk starting at start.
func cutEnd(text string, start int, p Parameters, units, sentences []int) int {
	limit := start + p.MaxSize
	if limit >= len(text) {
		// Trailing chunk takes everything left and may be short.
		return len(text)
	}

	// Greedy: extend to the last whole unit that still fits.
	end := lastBoundaryAtOrBefore(units, start, limit)

	// No unit fits (oversized paragraph or raw mode), or the fitting
	// units leave the chunk under MinSize: force a window cut at the
	// limit, preferring a sentence boundary within half the overlap
	// window of the edge.
	if end < 0 || end-start < p.MinSize {
		end = limit
		if p.PreserveSentences {
			if b := lastBoundaryAtOrBefore(sentences, start, limit); b >= 0 &&
				limit-b <= p.Overlap/2 && b-start >= p.MinSize {
				end = b
			}
		}
		end = snapToRuneStart(text, end)
		if end <= start {
			// Pathological multibyte run; take the raw limit.
			end = limit
		}
	}
	return end
}

// nextStart seeds the following chunk with the tail overlap of the
// chunk that just ended at end.
func nextStart(text string, start, end int, p Parameters, sentences []int) int {
	next := end - p.Overlap

	// Prefer starting the overlap on a sentence boundary when one lies
	// within half the overlap window of the raw offset.
	if p.PreserveSentences && p.Overlap > 0 {
		if b := lastBoundaryAtOrBefore(sentences, next-1, next+p.Overlap/2); b >= 0 && b < end {
			next = b
		}
	}

	next = snapToRuneStart(text, next)
	if next <= start {
		// Always make progress even when the chunk was shorter than
		// the overlap.
		next = start + 1
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
	}
	return next
}

// lastBoundaryAtOrBefore returns the largest boundary b with
// min < b <= max, or -1 when none exists. boundaries is sorted.
func lastBoundaryAtOrBefore(boundaries []int, min, max int) int {
	best := -1
	for _, b := range boundaries {
		if b > max {
			break
		}
		if b > min {
			best = b
		}
	}
	return best
}

// snapToRuneStart moves i left until it no longer splits a UTF-8
// sequence.
func snapToRuneStart(text string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// sentenceBoundaries returns the offsets just after each sentence
// terminator and its trailing whitespace run. A terminator only counts
// when followed by whitespace or end of text, so decimals and
// abbreviations mid-word do not split.
func sentenceBoundaries(text string) []int {
	var boundaries []int
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		// Consume runs of terminators ("...", "?!").
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		if j < len(text) && !isSpace(text[j]) {
			i = j - 1
			continue
		}
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		boundaries = append(boundaries, j)
		i = j - 1
	}
	return boundaries
}

// paragraphBoundaries returns the offsets just after each blank-line
// separator, plus the end of text.
func paragraphBoundaries(text string) []int {
	var boundaries []int
	for i := 0; i < len(text)-1; i++ {
		if text[i] != '\n' || text[i+1] != '\n' {
			continue
		}
		j := i
		for j < len(text) && (text[j] == '\n' || text[j] == '\r' || text[j] == ' ' || text[j] == '\t') {
			j++
		}
		boundaries = append(boundaries, j)
		i = j - 1
	}
	if len(boundaries) == 0 || boundaries[len(boundaries)-1] != len(text) {
		boundaries = append(boundaries, len(text))
	}
	return boundaries
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
