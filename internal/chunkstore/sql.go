package chunkstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLStore keeps chunks in a relational table. SQLite stores embeddings
// as little-endian float32 blobs; Postgres uses a pgvector column.
type SQLStore struct {
	db      *sqlx.DB
	dialect string
}

const sqliteChunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	pos             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	vector_store_id TEXT NOT NULL,
	file_id         TEXT NOT NULL,
	content         TEXT NOT NULL,
	embedding       BLOB NOT NULL,
	sequence        INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_file ON chunks (vector_store_id, file_id);
`

const postgresChunkSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS chunks (
	pos             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	vector_store_id TEXT NOT NULL,
	file_id         TEXT NOT NULL,
	content         TEXT NOT NULL,
	embedding       vector(%d) NOT NULL,
	sequence        INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_file ON chunks (vector_store_id, file_id);
`

// NewSQLStore opens dsn with the given dialect ("sqlite" or "postgres")
// and creates the schema.
func NewSQLStore(ctx context.Context, dialect, dsn string, dimension int) (*SQLStore, error) {
	var driver, schema string
	switch dialect {
	case "sqlite":
		driver, schema = "sqlite", sqliteChunkSchema
	case "postgres":
		driver, schema = "postgres", fmt.Sprintf(postgresChunkSchema, dimension)
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}
	if dialect == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent persistence.
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating chunk schema: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func encodeBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeBlob(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out
}

func (s *SQLStore) embeddingArg(v []float32) any {
	if s.dialect == "postgres" {
		return pgvector.NewVector(v)
	}
	return encodeBlob(v)
}

func (s *SQLStore) Put(ctx context.Context, chunk *Chunk) (string, error) {
	if err := prepare(chunk); err != nil {
		return "", err
	}
	query := s.db.Rebind(`INSERT INTO chunks
		(id, vector_store_id, file_id, content, embedding, sequence, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		chunk.ID, chunk.VectorStoreID, chunk.FileID, chunk.Content,
		s.embeddingArg(chunk.Embedding), chunk.Sequence, string(chunk.Kind), chunk.CreatedAt)
	if err != nil {
		return "", persistErr(err, "inserting chunk %s", chunk.ID)
	}
	return chunk.ID, nil
}

type sqliteChunkRow struct {
	Chunk
	Embedding []byte `db:"embedding"`
}

type postgresChunkRow struct {
	Chunk
	Embedding pgvector.Vector `db:"embedding"`
}

const chunkColumns = `id, vector_store_id, file_id, content, embedding, sequence, kind, created_at`

func (s *SQLStore) selectChunks(ctx context.Context, where string, args ...any) ([]Chunk, error) {
	query := s.db.Rebind(`SELECT ` + chunkColumns + ` FROM chunks WHERE ` + where + ` ORDER BY pos`)

	var chunks []Chunk
	if s.dialect == "postgres" {
		var rows []postgresChunkRow
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, persistErr(err, "selecting chunks")
		}
		chunks = make([]Chunk, len(rows))
		for i, r := range rows {
			chunks[i] = r.Chunk
			chunks[i].Embedding = r.Embedding.Slice()
		}
	} else {
		var rows []sqliteChunkRow
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, persistErr(err, "selecting chunks")
		}
		chunks = make([]Chunk, len(rows))
		for i, r := range rows {
			chunks[i] = r.Chunk
			chunks[i].Embedding = decodeBlob(r.Embedding)
		}
	}
	SortBySequence(chunks)
	return chunks, nil
}

func (s *SQLStore) Scan(ctx context.Context, vectorStoreID string) ([]Chunk, error) {
	return s.selectChunks(ctx, `vector_store_id = ?`, vectorStoreID)
}

func (s *SQLStore) Find(ctx context.Context, vectorStoreID, fileID string) ([]Chunk, error) {
	return s.selectChunks(ctx, `vector_store_id = ? AND file_id = ?`, vectorStoreID, fileID)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, vectorStoreID, chunkID string) error {
	err := s.exec(ctx, `DELETE FROM chunks WHERE vector_store_id = ? AND id = ?`, vectorStoreID, chunkID)
	return persistErr(err, "deleting chunk %s", chunkID)
}

// DeleteFile removes the file's chunks in one statement, so a failure
// leaves them all in place.
func (s *SQLStore) DeleteFile(ctx context.Context, vectorStoreID, fileID string) error {
	err := s.exec(ctx, `DELETE FROM chunks WHERE vector_store_id = ? AND file_id = ?`, vectorStoreID, fileID)
	return persistErr(err, "deleting chunks of file %s", fileID)
}

func (s *SQLStore) DeleteVectorStore(ctx context.Context, vectorStoreID string) error {
	err := s.exec(ctx, `DELETE FROM chunks WHERE vector_store_id = ?`, vectorStoreID)
	return persistErr(err, "deleting chunks of vector store %s", vectorStoreID)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
