// Package qdrant implements the vector store ports against a Qdrant
// collection over gRPC. It is the drop-in alternative to the pgvector
// store for deployments that run a dedicated vector database.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/log"
	"github.com/arkivo/arkivo/internal/search"
)

// Payload keys attached to every point. Tenant scoping and tag
// filtering run server-side against these.
const (
	payloadDocumentID     = "document_id"
	payloadOrganizationID = "organization_id"
	payloadTags           = "tags"
)

// Store is a Qdrant-backed vector store.
type Store struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string
	dimension   int
	logger      log.Logger
}

// New dials the Qdrant gRPC endpoint and ensures the collection
// exists with cosine distance and the configured dimension. apiKey may
// be empty for unauthenticated deployments.
func New(ctx context.Context, addr, collection, apiKey string, dimension int,
	useTLS bool, logger log.Logger) (*Store, error) {
	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if apiKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(apiKey)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s: %w", addr, err)
	}

	s := &Store{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  collection,
		dimension:   dimension,
		logger:      logger,
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	collections, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("listing qdrant collections: %w", err)
	}
	for _, col := range collections.GetCollections() {
		if col.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(s.dimension),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating qdrant collection %q: %w", s.collection, err)
	}

	s.logger.Info("created qdrant collection",
		"collection", s.collection, "dimension", s.dimension)
	return nil
}

// StoreEmbeddings upserts the chunks' vectors in one batch. Point ids
// are the chunk uuids, so retried ingestions overwrite instead of
// duplicating.
func (s *Store) StoreEmbeddings(ctx context.Context, doc *document.Document,
	chunks []*document.Chunk) error {
	tagValues := make([]*qdrantclient.Value, 0, len(doc.Tags()))
	for _, tag := range doc.Tags() {
		tagValues = append(tagValues, &qdrantclient.Value{
			Kind: &qdrantclient.Value_StringValue{StringValue: tag},
		})
	}

	points := make([]*qdrantclient.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		vec, ok := c.Embedding()
		if !ok {
			continue
		}
		points = append(points, &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: c.ID().String()},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: vec.Components()},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				payloadDocumentID: {
					Kind: &qdrantclient.Value_StringValue{StringValue: doc.ID().String()},
				},
				payloadOrganizationID: {
					Kind: &qdrantclient.Value_StringValue{StringValue: doc.OrganizationID().String()},
				},
				payloadTags: {
					Kind: &qdrantclient.Value_ListValue{
						ListValue: &qdrantclient.ListValue{Values: tagValues},
					},
				},
			},
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points for document %s: %w", len(points), doc.ID(), err)
	}

	s.logger.Debug("stored chunk vectors",
		"document_id", doc.ID().String(), "count", len(points))
	return nil
}

// DeleteByDocument removes every point belonging to the document.
func (s *Store) DeleteByDocument(ctx context.Context, id document.DocumentID) error {
	return s.deleteByFilter(ctx, keywordFilter(payloadDocumentID, id.String()),
		fmt.Sprintf("document %s", id))
}

// DeleteByOrganization removes a whole tenant's points.
func (s *Store) DeleteByOrganization(ctx context.Context, org document.OrganizationID) error {
	return s.deleteByFilter(ctx, keywordFilter(payloadOrganizationID, org.String()),
		fmt.Sprintf("organization %s", org))
}

func (s *Store) deleteByFilter(ctx context.Context, filter *qdrantclient.Filter, what string) error {
	_, err := s.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points for %s: %w", what, err)
	}
	return nil
}

// SearchVectors runs a tenant-scoped cosine search with server-side
// tag and exclusion filtering.
func (s *Store) SearchVectors(ctx context.Context, q search.VectorQuery) ([]search.VectorHit, error) {
	must := []*qdrantclient.Condition{
		fieldCondition(payloadOrganizationID, q.OrganizationID.String()),
	}
	for _, tag := range q.Tags {
		must = append(must, fieldCondition(payloadTags, tag))
	}

	var mustNot []*qdrantclient.Condition
	for _, id := range q.ExcludedDocumentIDs {
		mustNot = append(mustNot, fieldCondition(payloadDocumentID, id.String()))
	}

	req := &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         q.Embedding.Components(),
		Limit:          uint64(q.TopK),
		Filter:         &qdrantclient.Filter{Must: must, MustNot: mustNot},
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
				Include: &qdrantclient.PayloadIncludeSelector{
					Fields: []string{payloadDocumentID},
				},
			},
		},
	}
	if q.MinScore > 0 {
		threshold := q.MinScore
		req.ScoreThreshold = &threshold
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching qdrant collection %q: %w", s.collection, err)
	}

	hits := make([]search.VectorHit, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		chunkID, err := document.ParseChunkID(point.GetId().GetUuid())
		if err != nil {
			s.logger.Warn("skipping point with non-uuid id", "id", point.GetId().GetUuid())
			continue
		}
		docVal, ok := point.GetPayload()[payloadDocumentID]
		if !ok {
			s.logger.Warn("skipping point without document payload", "chunk_id", chunkID.String())
			continue
		}
		docID, err := document.ParseDocumentID(docVal.GetStringValue())
		if err != nil {
			s.logger.Warn("skipping point with malformed document id",
				"chunk_id", chunkID.String(), "document_id", docVal.GetStringValue())
			continue
		}
		hits = append(hits, search.VectorHit{
			DocumentID: docID,
			ChunkID:    chunkID,
			Score:      point.GetScore(),
		})
	}
	return hits, nil
}

// apiKeyInterceptor attaches the Qdrant api-key metadata to every call.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func fieldCondition(key, keyword string) *qdrantclient.Condition {
	return &qdrantclient.Condition{
		ConditionOneOf: &qdrantclient.Condition_Field{
			Field: &qdrantclient.FieldCondition{
				Key: key,
				Match: &qdrantclient.Match{
					MatchValue: &qdrantclient.Match_Keyword{Keyword: keyword},
				},
			},
		},
	}
}

func keywordFilter(key, keyword string) *qdrantclient.Filter {
	return &qdrantclient.Filter{
		Must: []*qdrantclient.Condition{fieldCondition(key, keyword)},
	}
}
