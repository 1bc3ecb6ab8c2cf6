// Package qdrant implements vectorstore.Store over github.com/qdrant/go-client.
// Grounded on Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go's
// collection-management and point conversion patterns (ConvertSlice
// float64->float32, payload-as-metadata, filter-by-field delete).
package qdrant

import (
	"context"
	"fmt"

	qc "github.com/qdrant/go-client/qdrant"

	"github.com/agentplane/ragcore/pkg/rag/vectorstore"
)

const (
	payloadDocumentID = "document_id"
	payloadProjectID  = "project_id"
	payloadFilePath   = "file_path"
	payloadLanguage   = "language"
)

// Store is a qdrant-backed vectorstore.Store.
type Store struct {
	client         *qc.Client
	collectionName string
	vectorSize     uint64
}

// Config configures a qdrant Store.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorSize     uint64
}

// New dials a qdrant instance and returns a Store bound to one collection.
func New(cfg Config) (*Store, error) {
	client, err := qc.NewClient(&qc.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connecting to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Store{client: client, collectionName: cfg.CollectionName, vectorSize: cfg.VectorSize}, nil
}

func (s *Store) Initialize(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("qdrant: checking collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     s.vectorSize,
			Distance: qc.Distance_Cosine,
		}),
	})
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func ptrOf[T any](v T) *T { return &v }

// InsertEmbeddings upserts points in batches of at most vectorstore.BatchSize,
// matching the same batching contract as sqlitevec even though qdrant's
// native Upsert has no hard row limit — keeps caller behavior uniform
// across backends.
func (s *Store) InsertEmbeddings(ctx context.Context, points []vectorstore.Point) error {
	for _, batch := range vectorstore.Batches(points) {
		qpoints := make([]*qc.PointStruct, 0, len(batch))
		for _, p := range batch {
			payload, err := qc.TryValueMap(map[string]any{
				payloadDocumentID: p.DocumentID,
				payloadProjectID:  p.ProjectID,
				payloadFilePath:   p.FilePath,
				payloadLanguage:   p.Language,
			})
			if err != nil {
				return fmt.Errorf("qdrant: building payload for point %s: %w", p.ChunkID, err)
			}
			qpoints = append(qpoints, &qc.PointStruct{
				Id:      qc.NewID(p.ChunkID),
				Vectors: qc.NewVectors(toFloat32(p.Embedding)...),
				Payload: payload,
			})
		}
		_, err := s.client.Upsert(ctx, &qc.UpsertPoints{
			CollectionName: s.collectionName,
			Wait:           ptrOf(true),
			Points:         qpoints,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upserting %d points: %w", len(qpoints), err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, queryEmbedding []float64, limit int, projectIDs []string, scoreThreshold float64) ([]vectorstore.Match, error) {
	query := &qc.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qc.NewQuery(toFloat32(queryEmbedding)...),
		Limit:          ptrOf(uint64(limit)),
		ScoreThreshold: ptrOf(float32(scoreThreshold)),
		WithPayload:    qc.NewWithPayload(true),
	}
	if len(projectIDs) > 0 {
		conditions := make([]*qc.Condition, 0, len(projectIDs))
		for _, id := range projectIDs {
			conditions = append(conditions, qc.NewMatchKeyword(payloadProjectID, id))
		}
		query.Filter = &qc.Filter{Should: conditions}
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: querying collection %s: %w", s.collectionName, err)
	}

	matches := make([]vectorstore.Match, 0, len(points))
	for _, p := range points {
		documentID := ""
		if payload := p.GetPayload(); payload != nil {
			if v, ok := payload[payloadDocumentID]; ok {
				documentID = v.GetStringValue()
			}
		}
		matches = append(matches, vectorstore.Match{
			ChunkID:    p.GetId().GetUuid(),
			DocumentID: documentID,
			Score:      float64(p.GetScore()),
		})
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: s.collectionName,
		Points: qc.NewPointsSelectorFilter(&qc.Filter{
			Must: []*qc.Condition{qc.NewMatchKeyword(payloadDocumentID, documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: deleting points for document %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (vectorstore.Stats, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		return vectorstore.Stats{}, fmt.Errorf("qdrant: getting collection info: %w", err)
	}
	return vectorstore.Stats{TotalPoints: int(info.GetPointsCount())}, nil
}

// GCDanglingPoints is not implemented against qdrant's scroll API here;
// the hourly GC pass runs against sqlitevec when that backend is active
// and is a documented no-op for qdrant deployments (qdrant's own TTL/
// payload-index tooling is the expected mechanism there).
func (s *Store) GCDanglingPoints(ctx context.Context, liveChunkIDs map[string]struct{}) (int, error) {
	return 0, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ vectorstore.Store = (*Store)(nil)
