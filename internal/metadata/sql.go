package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

const metadataSchema = `
CREATE TABLE IF NOT EXISTS vector_stores (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	usage_bytes    BIGINT NOT NULL DEFAULT 0,
	file_counts    TEXT NOT NULL,
	status         TEXT NOT NULL,
	expires_after  TEXT,
	expires_at_ns  BIGINT,
	last_active_ns BIGINT,
	metadata       TEXT NOT NULL,
	created_ns     BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS vector_store_files (
	vector_store_id   TEXT NOT NULL,
	id                TEXT NOT NULL,
	usage_bytes       BIGINT NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	last_error        TEXT,
	chunking_strategy TEXT NOT NULL,
	created_ns        BIGINT NOT NULL,
	PRIMARY KEY (vector_store_id, id)
);
CREATE TABLE IF NOT EXISTS files (
	id          TEXT PRIMARY KEY,
	bytes       BIGINT NOT NULL,
	filename    TEXT NOT NULL,
	purpose     TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	created_ns  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS vector_stores_created ON vector_stores (created_ns, id);
CREATE INDEX IF NOT EXISTS vector_store_files_created ON vector_store_files (vector_store_id, created_ns, id);
CREATE INDEX IF NOT EXISTS files_created ON files (created_ns, id);
`

// SQLStore keeps metadata in SQLite or Postgres through sqlx. Timestamps
// are stored as Unix nanoseconds so keyset pagination is exact on both.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore connects with dialect "sqlite" or "postgres" and creates
// the schema.
func NewSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}
	db, err := sqlx.ConnectContext(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}
	if dialect == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(metadataSchema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating metadata schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func dbErr(err error, format string, args ...any) error {
	return errdefs.Wrap(errdefs.CodePersistence, err, format, args...)
}

func nsTime(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func nullNS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nsPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := nsTime(n.Int64)
	return &t
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func nullJSON(v any, present bool) sql.NullString {
	if !present {
		return sql.NullString{}
	}
	return sql.NullString{String: mustJSON(v), Valid: true}
}

type vectorStoreRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	UsageBytes   int64          `db:"usage_bytes"`
	FileCounts   string         `db:"file_counts"`
	Status       string         `db:"status"`
	ExpiresAfter sql.NullString `db:"expires_after"`
	ExpiresAtNS  sql.NullInt64  `db:"expires_at_ns"`
	LastActiveNS sql.NullInt64  `db:"last_active_ns"`
	Metadata     string         `db:"metadata"`
	CreatedNS    int64          `db:"created_ns"`
}

func toVectorStoreRow(vs *VectorStore) vectorStoreRow {
	md := vs.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return vectorStoreRow{
		ID:           vs.ID,
		Name:         vs.Name,
		UsageBytes:   vs.UsageBytes,
		FileCounts:   mustJSON(vs.FileCounts),
		Status:       string(vs.Status),
		ExpiresAfter: nullJSON(vs.ExpiresAfter, vs.ExpiresAfter != nil),
		ExpiresAtNS:  nullNS(vs.ExpiresAt),
		LastActiveNS: nullNS(vs.LastActiveAt),
		Metadata:     mustJSON(md),
		CreatedNS:    vs.CreatedAt.UnixNano(),
	}
}

func (r vectorStoreRow) model() (VectorStore, error) {
	vs := VectorStore{
		ID:           r.ID,
		Object:       ObjectVectorStore,
		Name:         r.Name,
		UsageBytes:   r.UsageBytes,
		Status:       VectorStoreStatus(r.Status),
		ExpiresAt:    nsPtr(r.ExpiresAtNS),
		LastActiveAt: nsPtr(r.LastActiveNS),
		CreatedAt:    nsTime(r.CreatedNS),
	}
	if err := json.Unmarshal([]byte(r.FileCounts), &vs.FileCounts); err != nil {
		return vs, fmt.Errorf("decoding file counts of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &vs.Metadata); err != nil {
		return vs, fmt.Errorf("decoding metadata of %s: %w", r.ID, err)
	}
	if r.ExpiresAfter.Valid {
		vs.ExpiresAfter = &ExpiresAfter{}
		if err := json.Unmarshal([]byte(r.ExpiresAfter.String), vs.ExpiresAfter); err != nil {
			return vs, fmt.Errorf("decoding expires_after of %s: %w", r.ID, err)
		}
	}
	return vs, nil
}

type fileRow struct {
	VectorStoreID    string         `db:"vector_store_id"`
	ID               string         `db:"id"`
	UsageBytes       int64          `db:"usage_bytes"`
	Status           string         `db:"status"`
	LastError        sql.NullString `db:"last_error"`
	ChunkingStrategy string         `db:"chunking_strategy"`
	CreatedNS        int64          `db:"created_ns"`
}

func (r fileRow) model() (VectorStoreFile, error) {
	f := VectorStoreFile{
		ID:            r.ID,
		Object:        ObjectVectorStoreFile,
		VectorStoreID: r.VectorStoreID,
		UsageBytes:    r.UsageBytes,
		Status:        FileStatus(r.Status),
		CreatedAt:     nsTime(r.CreatedNS),
	}
	var strategy chunking.Strategy
	if err := json.Unmarshal([]byte(r.ChunkingStrategy), &strategy); err != nil {
		return f, fmt.Errorf("decoding chunking strategy of %s: %w", r.ID, err)
	}
	f.ChunkingStrategy = strategy
	if r.LastError.Valid {
		f.LastError = &LastError{}
		if err := json.Unmarshal([]byte(r.LastError.String), f.LastError); err != nil {
			return f, fmt.Errorf("decoding last error of %s: %w", r.ID, err)
		}
	}
	return f, nil
}

type objectRow struct {
	ID         string `db:"id"`
	Bytes      int64  `db:"bytes"`
	Filename   string `db:"filename"`
	Purpose    string `db:"purpose"`
	StorageKey string `db:"storage_key"`
	CreatedNS  int64  `db:"created_ns"`
}

func (r objectRow) model() (File, error) {
	return File{
		ID:         r.ID,
		Object:     ObjectFile,
		Bytes:      r.Bytes,
		Filename:   r.Filename,
		Purpose:    r.Purpose,
		StorageKey: r.StorageKey,
		CreatedAt:  nsTime(r.CreatedNS),
	}, nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const vectorStoreColumns = `id, name, usage_bytes, file_counts, status, expires_after, expires_at_ns, last_active_ns, metadata, created_ns`

func (s *SQLStore) CreateVectorStore(ctx context.Context, vs *VectorStore) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO vector_stores (`+vectorStoreColumns+`)
		VALUES (:id, :name, :usage_bytes, :file_counts, :status, :expires_after, :expires_at_ns, :last_active_ns, :metadata, :created_ns)`,
		toVectorStoreRow(vs))
	return dbErr(err, "creating vector store %s", vs.ID)
}

func (s *SQLStore) GetVectorStore(ctx context.Context, id string) (*VectorStore, error) {
	var row vectorStoreRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+vectorStoreColumns+` FROM vector_stores WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("vector store %s not found", id)
	}
	if err != nil {
		return nil, dbErr(err, "loading vector store %s", id)
	}
	vs, err := row.model()
	if err != nil {
		return nil, dbErr(err, "loading vector store %s", id)
	}
	return &vs, nil
}

func (s *SQLStore) UpdateVectorStore(ctx context.Context, vs *VectorStore) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE vector_stores SET
		name = :name, usage_bytes = :usage_bytes, file_counts = :file_counts, status = :status,
		expires_after = :expires_after, expires_at_ns = :expires_at_ns,
		last_active_ns = :last_active_ns, metadata = :metadata
		WHERE id = :id`, toVectorStoreRow(vs))
	if err != nil {
		return dbErr(err, "updating vector store %s", vs.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("vector store %s not found", vs.ID)
	}
	return nil
}

func (s *SQLStore) DeleteVectorStore(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbErr(err, "deleting vector store %s", id)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM vector_store_files WHERE vector_store_id = ?`), id); err != nil {
		return dbErr(err, "deleting files of vector store %s", id)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM vector_stores WHERE id = ?`), id)
	if err != nil {
		return dbErr(err, "deleting vector store %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFound("vector store %s not found", id)
	}
	return dbErr(tx.Commit(), "deleting vector store %s", id)
}

func (s *SQLStore) ListVectorStores(ctx context.Context, params ListParams) (Page[VectorStore], error) {
	return listPage(ctx, s, listQuery{
		table:   "vector_stores",
		columns: vectorStoreColumns,
		where:   "1 = 1",
	}, params, vectorStoreRow.model, func(v VectorStore) string { return v.ID })
}

func (s *SQLStore) ListExpirable(ctx context.Context, now time.Time) ([]VectorStore, error) {
	var rows []vectorStoreRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+vectorStoreColumns+` FROM vector_stores
		WHERE status <> ? AND expires_at_ns IS NOT NULL AND expires_at_ns <= ?`),
		string(VectorStoreExpired), now.UnixNano())
	if err != nil {
		return nil, dbErr(err, "listing expirable vector stores")
	}
	out := make([]VectorStore, 0, len(rows))
	for _, r := range rows {
		vs, err := r.model()
		if err != nil {
			return nil, dbErr(err, "listing expirable vector stores")
		}
		out = append(out, vs)
	}
	return out, nil
}

const fileColumns = `vector_store_id, id, usage_bytes, status, last_error, chunking_strategy, created_ns`

func (s *SQLStore) PutFile(ctx context.Context, f *VectorStoreFile) error {
	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM vector_stores WHERE id = ?`), f.VectorStoreID)
	if err != nil {
		return dbErr(err, "checking vector store %s", f.VectorStoreID)
	}
	if exists == 0 {
		return errdefs.NotFound("vector store %s not found", f.VectorStoreID)
	}

	_, err = s.exec(ctx, `INSERT INTO vector_store_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vector_store_id, id) DO UPDATE SET
			usage_bytes = excluded.usage_bytes,
			status = excluded.status,
			last_error = excluded.last_error,
			chunking_strategy = excluded.chunking_strategy,
			created_ns = excluded.created_ns`,
		f.VectorStoreID, f.ID, f.UsageBytes, string(f.Status),
		nullJSON(f.LastError, f.LastError != nil), mustJSON(f.ChunkingStrategy), f.CreatedAt.UnixNano())
	return dbErr(err, "saving file %s", f.ID)
}

func (s *SQLStore) GetFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	var row fileRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+fileColumns+` FROM vector_store_files
		WHERE vector_store_id = ? AND id = ?`), vectorStoreID, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("file %s not found in vector store %s", fileID, vectorStoreID)
	}
	if err != nil {
		return nil, dbErr(err, "loading file %s", fileID)
	}
	f, err := row.model()
	if err != nil {
		return nil, dbErr(err, "loading file %s", fileID)
	}
	return &f, nil
}

func (s *SQLStore) DeleteFile(ctx context.Context, vectorStoreID, fileID string) error {
	n, err := s.exec(ctx, `DELETE FROM vector_store_files WHERE vector_store_id = ? AND id = ?`, vectorStoreID, fileID)
	if err != nil {
		return dbErr(err, "deleting file %s", fileID)
	}
	if n == 0 {
		return errdefs.NotFound("file %s not found in vector store %s", fileID, vectorStoreID)
	}
	return nil
}

func (s *SQLStore) ListFiles(ctx context.Context, vectorStoreID string, params ListParams, status FileStatus) (Page[VectorStoreFile], error) {
	q := listQuery{
		table:   "vector_store_files",
		columns: fileColumns,
		where:   "vector_store_id = ?",
		args:    []any{vectorStoreID},
	}
	if status != "" {
		q.filter = " AND status = ?"
		q.filterArgs = []any{string(status)}
	}
	return listPage(ctx, s, q, params, fileRow.model, func(f VectorStoreFile) string { return f.ID })
}

func (s *SQLStore) FileStats(ctx context.Context, vectorStoreID string) (FileCounts, int64, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
		Usage  int64  `db:"usage"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT status, COUNT(*) AS n, COALESCE(SUM(usage_bytes), 0) AS usage
		FROM vector_store_files WHERE vector_store_id = ? GROUP BY status`), vectorStoreID)
	if err != nil {
		return FileCounts{}, 0, dbErr(err, "aggregating files of %s", vectorStoreID)
	}
	var (
		counts FileCounts
		usage  int64
	)
	for _, r := range rows {
		for i := 0; i < r.N; i++ {
			counts.Add(FileStatus(r.Status))
		}
		usage += r.Usage
	}
	return counts, usage, nil
}

const objectColumns = `id, bytes, filename, purpose, storage_key, created_ns`

func (s *SQLStore) CreateObject(ctx context.Context, f *File) error {
	_, err := s.exec(ctx, `INSERT INTO files (`+objectColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.Bytes, f.Filename, f.Purpose, f.StorageKey, f.CreatedAt.UnixNano())
	return dbErr(err, "creating file %s", f.ID)
}

func (s *SQLStore) GetObject(ctx context.Context, id string) (*File, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+objectColumns+` FROM files WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("file %s not found", id)
	}
	if err != nil {
		return nil, dbErr(err, "loading file %s", id)
	}
	f, _ := row.model()
	return &f, nil
}

func (s *SQLStore) DeleteObject(ctx context.Context, id string) error {
	n, err := s.exec(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return dbErr(err, "deleting file %s", id)
	}
	if n == 0 {
		return errdefs.NotFound("file %s not found", id)
	}
	return nil
}

func (s *SQLStore) ListObjects(ctx context.Context, params ListParams, purpose string) (Page[File], error) {
	q := listQuery{table: "files", columns: objectColumns, where: "1 = 1"}
	if purpose != "" {
		q.filter = " AND purpose = ?"
		q.filterArgs = []any{purpose}
	}
	return listPage(ctx, s, q, params, objectRow.model, func(f File) string { return f.ID })
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// listQuery describes a keyset-paginated listing. where scopes both the
// listing and cursor lookups; filter only narrows the listing.
type listQuery struct {
	table      string
	columns    string
	where      string
	args       []any
	filter     string
	filterArgs []any
}

func (s *SQLStore) cursor(ctx context.Context, q listQuery, id string) (int64, error) {
	var ns int64
	err := s.db.GetContext(ctx, &ns,
		s.db.Rebind(`SELECT created_ns FROM `+q.table+` WHERE `+q.where+` AND id = ?`),
		append(slices.Clone(q.args), id)...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errdefs.Configuration("unknown cursor %q", id)
	}
	if err != nil {
		return 0, dbErr(err, "resolving cursor %s", id)
	}
	return ns, nil
}

func listPage[R any, T any](ctx context.Context, s *SQLStore, q listQuery, params ListParams,
	convert func(R) (T, error), id func(T) string) (Page[T], error) {
	params, err := params.Normalize()
	if err != nil {
		return Page[T]{}, err
	}

	asc := params.Order == OrderAsc
	// later selects records after a cursor in listing order.
	later, earlier := ">", "<"
	if !asc {
		later, earlier = "<", ">"
	}

	where := q.where + q.filter
	args := append(slices.Clone(q.args), q.filterArgs...)
	for _, c := range []struct {
		id, op string
	}{{params.After, later}, {params.Before, earlier}} {
		if c.id == "" {
			continue
		}
		ns, err := s.cursor(ctx, q, c.id)
		if err != nil {
			return Page[T]{}, err
		}
		where += fmt.Sprintf(" AND (created_ns %s ? OR (created_ns = ? AND id %s ?))", c.op, c.op)
		args = append(args, ns, ns, c.id)
	}

	// With only a before cursor, fetch nearest-first and flip.
	reverse := params.Before != "" && params.After == ""
	dir := "ASC"
	if asc == reverse {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_ns %s, id %s LIMIT %d`,
		q.columns, q.table, where, dir, dir, params.Limit+1)

	var rows []R
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return Page[T]{}, dbErr(err, "listing %s", q.table)
	}
	hasMore := len(rows) > params.Limit
	if hasMore {
		rows = rows[:params.Limit]
	}
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		item, err := convert(r)
		if err != nil {
			return Page[T]{}, dbErr(err, "listing %s", q.table)
		}
		items = append(items, item)
	}
	if reverse {
		slices.Reverse(items)
	}
	return newPage(items, hasMore, id), nil
}

var _ Store = (*SQLStore)(nil)
