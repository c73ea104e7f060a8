package kb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"gateway/internal/gatewayerr"
)

// SnippetCache is an optional local cache of retrieval results, backed by
// Postgres with the pgvector extension. It is keyed by (knowledge_base_id,
// query digest) rather than by embedding similarity: a full semantic cache
// would need an embedding provider this gateway does not otherwise depend
// on, so the cache degrades to an exact-query cache, with the embedding
// column retained for a similarity-search upgrade path.
type SnippetCache struct {
	db *sql.DB
}

// NewSnippetCache opens a Postgres connection pool against dsn and ensures
// the cache table exists.
func NewSnippetCache(ctx context.Context, dsn string) (*SnippetCache, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to open kb snippet cache", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to migrate kb snippet cache", err)
	}
	return &SnippetCache{db: db}, nil
}

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS kb_snippet_cache (
	knowledge_base_id TEXT NOT NULL,
	query_digest      TEXT NOT NULL,
	query_embedding   vector(1),
	snippets_json      JSONB NOT NULL,
	PRIMARY KEY (knowledge_base_id, query_digest)
);
`

func queryDigest(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached snippets for (kbID, query), if present.
func (c *SnippetCache) Get(ctx context.Context, kbID, query string) ([]Snippet, bool) {
	var raw []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT snippets_json FROM kb_snippet_cache WHERE knowledge_base_id = $1 AND query_digest = $2`,
		kbID, queryDigest(query),
	).Scan(&raw)
	if err != nil {
		return nil, false
	}
	var snippets []Snippet
	if err := json.Unmarshal(raw, &snippets); err != nil {
		return nil, false
	}
	return snippets, true
}

// Put stores snippets for (kbID, query), overwriting any prior entry. The
// embedding column is written as a placeholder zero vector; populating it
// with a real query embedding is future work tracked alongside a semantic
// (rather than exact-match) cache lookup.
func (c *SnippetCache) Put(ctx context.Context, kbID, query string, snippets []Snippet) {
	raw, err := json.Marshal(snippets)
	if err != nil {
		return
	}
	placeholder := pgvector.NewVector([]float32{0})
	_, _ = c.db.ExecContext(ctx,
		`INSERT INTO kb_snippet_cache (knowledge_base_id, query_digest, query_embedding, snippets_json)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (knowledge_base_id, query_digest) DO UPDATE SET snippets_json = EXCLUDED.snippets_json`,
		kbID, queryDigest(query), placeholder, raw,
	)
}

// Close releases the underlying connection pool.
func (c *SnippetCache) Close() error { return c.db.Close() }
