// Package knowledge stores and retrieves documentation chunks and
// simulation case studies for retrieval-augmented chat answers.
// Vectors live in PostgreSQL via pgvector; embeddings come from a Genkit
// embedder.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/isabella-tue/retrofit/internal/log"
)

// Querier is the subset of pgxpool.Pool the store depends on.
// Consumer-defined so tests can substitute a transaction or lighter fake.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store manages knowledge documents with vector similarity search.
// Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a knowledge store.
func New(db Querier, embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Add embeds and upserts a single document.
func (s *Store) Add(ctx context.Context, doc Document) error {
	return s.AddBatch(ctx, []Document{doc})
}

// AddBatch embeds and upserts documents, sharing one embedding request.
func (s *Store) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	input := make([]*ai.Document, len(docs))
	for i, doc := range docs {
		input[i] = ai.DocumentFromText(doc.Content, nil)
	}
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents",
			len(resp.Embeddings), len(docs))
	}

	for i, doc := range docs {
		if len(resp.Embeddings[i].Embedding) == 0 {
			return fmt.Errorf("empty embedding for document %q", doc.ID)
		}
		embedding := pgvector.NewVector(resp.Embeddings[i].Embedding)

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %q: %w", doc.ID, err)
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err = s.db.Exec(ctx, `
			INSERT INTO knowledge (id, collection, content, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				collection = EXCLUDED.collection,
				content    = EXCLUDED.content,
				metadata   = EXCLUDED.metadata,
				embedding  = EXCLUDED.embedding,
				created_at = EXCLUDED.created_at`,
			doc.ID, doc.Collection, doc.Content, metadataJSON, embedding, createdAt)
		if err != nil {
			return fmt.Errorf("upsert document %q: %w", doc.ID, err)
		}
	}

	s.logger.Debug("added documents", "count", len(docs))
	return nil
}

// Search returns the documents most similar to the query, best first.
// A timeout guards both embedding generation and the vector scan.
//
//	results, err := store.Search(ctx, "heat loss through glazing",
//	    knowledge.WithCollection(knowledge.CollectionDocumentation),
//	    knowledge.WithTopK(3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("generate query embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}
	queryEmbedding := pgvector.NewVector(resp.Embeddings[0].Embedding)

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
	}

	rows, err := s.db.Query(queryCtx, `
		SELECT id, collection, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM knowledge
		WHERE ($2::text = '' OR collection = $2)
		  AND ($3::jsonb IS NULL OR metadata @> $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		queryEmbedding, cfg.collection, filterJSON, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var metadataJSON []byte
		var similarity float64
		err := rows.Scan(&r.Document.ID, &r.Document.Collection, &r.Document.Content,
			&metadataJSON, &r.Document.CreatedAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &r.Document.Metadata); err != nil {
			s.logger.Warn("unparseable document metadata", "id", r.Document.ID, "error", err)
			r.Document.Metadata = map[string]string{}
		}
		r.Similarity = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// Count returns the number of documents, optionally limited to a collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM knowledge
		WHERE ($1::text = '' OR collection = $1)`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Delete removes one document by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM knowledge WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete document %q: %w", id, err)
	}
	return nil
}

// DeleteCollection removes every document in a collection. Reindexing runs
// this first so stale chunks do not linger.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM knowledge WHERE collection = $1", collection)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", collection, err)
	}
	s.logger.Debug("deleted collection", "collection", collection, "rows", tag.RowsAffected())
	return nil
}
