package search

import (
	"sort"
	"strings"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/errs"
)

// Query bounds.
const (
	MaxQueryLength = 1000
	MaxResultLimit = 100
)

// Query is a validated search request. Construct with NewQuery.
type Query struct {
	text           string
	maxResults     int
	minSimilarity  float32
	tags           []string
	organizationID document.OrganizationID
	includeContent bool
}

// NewQuery validates and builds a search query. The organization scope
// is mandatory: every search runs inside exactly one tenant.
func NewQuery(orgID document.OrganizationID, text string, maxResults int,
	minSimilarity float32, tags []string, includeContent bool) (Query, error) {
	if orgID.IsZero() {
		return Query{}, errs.Validation("search requires an organization id")
	}
	if strings.TrimSpace(text) == "" {
		return Query{}, errs.Validation("query text must not be blank")
	}
	if len(text) > MaxQueryLength {
		return Query{}, errs.Validationf("query text exceeds %d characters", MaxQueryLength)
	}
	if maxResults < 1 || maxResults > MaxResultLimit {
		return Query{}, errs.Validationf("max results must be in [1,%d], got %d", MaxResultLimit, maxResults)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return Query{}, errs.Validationf("min similarity must be in [0,1], got %v", minSimilarity)
	}

	return Query{
		text:           text,
		maxResults:     maxResults,
		minSimilarity:  minSimilarity,
		tags:           append([]string(nil), tags...),
		organizationID: orgID,
		includeContent: includeContent,
	}, nil
}

func (q Query) Text() string                            { return q.text }
func (q Query) MaxResults() int                         { return q.maxResults }
func (q Query) MinSimilarity() float32                  { return q.minSimilarity }
func (q Query) Tags() []string                          { return append([]string(nil), q.tags...) }
func (q Query) OrganizationID() document.OrganizationID { return q.organizationID }
func (q Query) IncludeContent() bool                    { return q.includeContent }

// Fingerprint is a stable cache key for the query content.
func (q Query) Fingerprint() string {
	tags := append([]string(nil), q.tags...)
	sort.Strings(tags)
	var sb strings.Builder
	sb.WriteString(q.organizationID.String())
	sb.WriteByte('|')
	sb.WriteString(q.text)
	sb.WriteByte('|')
	sb.WriteString(strings.Join(tags, ","))
	return sb.String()
}

// RedactedContent is what a Result carries in place of chunk text when
// the query asked for matches only.
const RedactedContent = "[content omitted]"

// Result is one ranked search hit. Results are assembled at query time
// and never persisted.
type Result struct {
	DocumentID     document.DocumentID `json:"documentId"`
	ChunkID        document.ChunkID    `json:"chunkId"`
	Content        string              `json:"content"`
	RelevanceScore float32             `json:"relevanceScore"`
	DocumentTitle  string              `json:"documentTitle"`
	ChunkIndex     int                 `json:"chunkIndex"`
}
