package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/academykb/internal/docid"
	kberrors "github.com/Aman-CERP/academykb/internal/errors"
	"github.com/Aman-CERP/academykb/internal/metadata"
)

// charsPerToken approximates characters from token counts during reconciliation.
const charsPerToken = 4

// SQLiteTracker implements Tracker on SQLite.
type SQLiteTracker struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ Tracker = (*SQLiteTracker)(nil)

const trackerSchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id       TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	categories   TEXT NOT NULL DEFAULT '[]',
	url          TEXT NOT NULL DEFAULT '',
	video_url    TEXT NOT NULL DEFAULT '',
	last_updated TEXT NOT NULL DEFAULT '',
	chars        INTEGER NOT NULL DEFAULT 0,
	tokens       INTEGER NOT NULL DEFAULT 0,
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	last_indexed TEXT NOT NULL DEFAULT '',
	approximate  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);

CREATE TABLE IF NOT EXISTS index_runs (
	run_id      TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	chunks      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS query_misses (
	id         TEXT PRIMARY KEY,
	asked_at   TEXT NOT NULL,
	question   TEXT NOT NULL,
	best_score REAL NOT NULL,
	threshold  REAL NOT NULL
);
`

// OpenTracker opens or creates the tracking database. An empty path opens
// an in-memory database.
func OpenTracker(path string) (*SQLiteTracker, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, kberrors.StoreWriteFailure("create database directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "open tracking database", err)
	}
	// Single writer; also keeps an in-memory database on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so pragmas run as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, kberrors.StoreWriteFailure("set pragma", err)
		}
	}
	if _, err := db.Exec(trackerSchema); err != nil {
		_ = db.Close()
		return nil, kberrors.StoreWriteFailure("initialize schema", err)
	}
	return &SQLiteTracker{db: db, path: path}, nil
}

const upsertDocumentSQL = `
INSERT INTO documents (doc_id, title, path, source, tags, categories, url, video_url,
	last_updated, chars, tokens, chunk_count, last_indexed, approximate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
	title = excluded.title,
	path = excluded.path,
	source = excluded.source,
	tags = excluded.tags,
	categories = excluded.categories,
	url = excluded.url,
	video_url = excluded.video_url,
	last_updated = excluded.last_updated,
	chars = excluded.chars,
	tokens = excluded.tokens,
	chunk_count = excluded.chunk_count,
	last_indexed = excluded.last_indexed,
	approximate = excluded.approximate`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertDocument(ctx context.Context, ex execer, d Document) error {
	if d.DocID == "" {
		return kberrors.StoreWriteFailure("document id is empty", nil)
	}
	if d.LastIndexed.IsZero() {
		d.LastIndexed = time.Now()
	}
	_, err := ex.ExecContext(ctx, upsertDocumentSQL,
		d.DocID, d.Title, d.Path, d.Source, encodeList(d.Tags), encodeList(d.Categories),
		d.URL, d.VideoURL, d.LastUpdated, d.Chars, d.Tokens, d.ChunkCount,
		formatTime(d.LastIndexed), boolInt(d.Approximate))
	if err != nil {
		return kberrors.StoreWriteFailure("upsert document "+d.DocID, err)
	}
	return nil
}

// UpsertDocument inserts or fully replaces the row for doc.DocID.
func (t *SQLiteTracker) UpsertDocument(ctx context.Context, doc Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	return upsertDocument(ctx, t.db, doc)
}

const selectDocumentSQL = `SELECT doc_id, title, path, source, tags, categories, url, video_url,
	last_updated, chars, tokens, chunk_count, last_indexed, approximate FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var (
		d                Document
		tags, cats, when string
		approx           int
	)
	err := r.Scan(&d.DocID, &d.Title, &d.Path, &d.Source, &tags, &cats, &d.URL, &d.VideoURL,
		&d.LastUpdated, &d.Chars, &d.Tokens, &d.ChunkCount, &when, &approx)
	if err != nil {
		return d, err
	}
	d.Tags = decodeList(tags)
	d.Categories = decodeList(cats)
	d.LastIndexed = parseTime(when)
	d.Approximate = approx != 0
	return d, nil
}

// GetDocument returns the row for docID, or nil when absent.
func (t *SQLiteTracker) GetDocument(ctx context.Context, docID string) (*Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}

	d, err := scanDocument(t.db.QueryRowContext(ctx, selectDocumentSQL+" WHERE doc_id = ?", docID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "get document "+docID, err)
	}
	return &d, nil
}

// ListDocuments returns every row ordered by path.
func (t *SQLiteTracker) ListDocuments(ctx context.Context) ([]Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, selectDocumentSQL+" ORDER BY path, doc_id")
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "list documents", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.New(kberrors.ErrCodeStoreRead, "scan document", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "list documents", err)
	}
	return out, nil
}

// DeleteDocument removes the row for docID and reports whether it existed.
func (t *SQLiteTracker) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return false, err
	}

	res, err := t.db.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID)
	if err != nil {
		return false, kberrors.StoreWriteFailure("delete document "+docID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reconcile rebuilds the documents table from chunk entries in one
// transaction. Rows for documents with no chunks are removed.
func (t *SQLiteTracker) Reconcile(ctx context.Context, entries []Entry, opts ReconcileOptions) (ReconcileResult, error) {
	docs, res := groupEntries(entries, opts)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return ReconcileResult{}, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return ReconcileResult{}, kberrors.StoreWriteFailure("begin reconcile", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return ReconcileResult{}, kberrors.StoreWriteFailure("clear documents", err)
	}
	for _, d := range docs {
		if err := upsertDocument(ctx, tx, d); err != nil {
			return ReconcileResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ReconcileResult{}, kberrors.StoreWriteFailure("commit reconcile", err)
	}
	return res, nil
}

// groupEntries folds chunk entries into one Document per doc_id.
func groupEntries(entries []Entry, opts ReconcileOptions) ([]Document, ReconcileResult) {
	type group struct {
		meta   map[string]any
		chunks int
		latest time.Time
	}
	groups := make(map[string]*group)
	var res ReconcileResult

	for _, e := range entries {
		id := metadata.String(e.Metadata, metadata.KeyDocID)
		if id == "" {
			if parsed, _, ok := docid.ParseChunkID(e.ID); ok {
				id = parsed
			}
		}
		if id == "" {
			res.Skipped++
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &group{meta: e.Metadata}
			groups[id] = g
		}
		g.chunks++
		if ts := parseTime(metadata.String(e.Metadata, metadata.KeyIndexedAt)); ts.After(g.latest) {
			g.latest = ts
		}
		// Prefer chunk 0 as the representative: it carries the same document fields.
		if idx, ok := metadata.Int(e.Metadata, metadata.KeyChunkIndex); ok && idx == 0 {
			g.meta = e.Metadata
		}
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		m := g.meta
		d := Document{
			DocID:       id,
			Title:       metadata.String(m, metadata.KeyTitle),
			Path:        metadata.String(m, metadata.KeyPath),
			Source:      metadata.String(m, metadata.KeySource),
			Tags:        metadata.SplitList(m[metadata.KeyTags]),
			Categories:  metadata.SplitList(m[metadata.KeyCategories]),
			URL:         metadata.String(m, metadata.KeyURL),
			VideoURL:    metadata.String(m, metadata.KeyVideoURL),
			LastUpdated: metadata.String(m, metadata.KeyLastUpdated),
			ChunkCount:  g.chunks,
			LastIndexed: g.latest,
		}
		chars, hasChars := metadata.Int(m, metadata.KeyDocChars)
		tokens, hasTokens := metadata.Int(m, metadata.KeyDocTokens)
		if hasChars && hasTokens {
			d.Chars, d.Tokens = chars, tokens
		} else {
			d.Tokens = EstimateTokens(g.chunks, opts.ChunkSize, opts.Overlap)
			d.Chars = d.Tokens * charsPerToken
			d.Approximate = true
			res.Approximate++
		}
		docs = append(docs, d)
		res.Chunks += g.chunks
	}
	res.Documents = len(docs)
	return docs, res
}

// EstimateTokens approximates a document's token count from its chunk count:
// n full windows minus the n-1 overlaps.
func EstimateTokens(chunks, size, overlap int) int {
	if chunks <= 0 {
		return 0
	}
	est := chunks*size - (chunks-1)*overlap
	if est < 0 {
		return 0
	}
	return est
}

// Stats aggregates the documents table.
func (t *SQLiteTracker) Stats(ctx context.Context) (TrackerStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return TrackerStats{}, err
	}

	var (
		s    TrackerStats
		last sql.NullString
	)
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(chunk_count), 0),
		COALESCE(SUM(tokens), 0), COALESCE(SUM(chars), 0), MAX(last_indexed) FROM documents`).
		Scan(&s.Documents, &s.Chunks, &s.Tokens, &s.Chars, &last)
	if err != nil {
		return TrackerStats{}, kberrors.New(kberrors.ErrCodeStoreRead, "document stats", err)
	}
	if last.Valid {
		s.LastIndexed = parseTime(last.String)
	}
	return s, nil
}

// RecordRun stores an index run and returns its id, generating one if empty.
func (t *SQLiteTracker) RecordRun(ctx context.Context, run IndexRun) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return "", err
	}

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	_, err := t.db.ExecContext(ctx, `INSERT INTO index_runs
		(run_id, mode, started_at, finished_at, total, succeeded, failed, chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Mode, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Total, run.Succeeded, run.Failed, run.Chunks)
	if err != nil {
		return "", kberrors.StoreWriteFailure("record index run", err)
	}
	return run.RunID, nil
}

// LastRun returns the most recently finished run, or nil when none exist.
func (t *SQLiteTracker) LastRun(ctx context.Context) (*IndexRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}

	var (
		r             IndexRun
		started, done string
	)
	err := t.db.QueryRowContext(ctx, `SELECT run_id, mode, started_at, finished_at, total,
		succeeded, failed, chunks FROM index_runs ORDER BY finished_at DESC LIMIT 1`).
		Scan(&r.RunID, &r.Mode, &started, &done, &r.Total, &r.Succeeded, &r.Failed, &r.Chunks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "last index run", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(done)
	return &r, nil
}

// RecordMiss stores an unanswered question.
func (t *SQLiteTracker) RecordMiss(ctx context.Context, miss QueryMiss) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}

	if miss.ID == "" {
		miss.ID = uuid.NewString()
	}
	if miss.AskedAt.IsZero() {
		miss.AskedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO query_misses (id, asked_at, question, best_score, threshold) VALUES (?, ?, ?, ?, ?)",
		miss.ID, formatTime(miss.AskedAt), miss.Question, miss.BestScore, miss.Threshold)
	if err != nil {
		return kberrors.StoreWriteFailure("record query miss", err)
	}
	return nil
}

// RecentMisses returns up to limit misses, newest first.
func (t *SQLiteTracker) RecentMisses(ctx context.Context, limit int) ([]QueryMiss, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := t.db.QueryContext(ctx, `SELECT id, asked_at, question, best_score, threshold
		FROM query_misses ORDER BY asked_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreRead, "recent misses", err)
	}
	defer func() { _ = rows.Close() }()

	out := []QueryMiss{}
	for rows.Next() {
		var (
			m    QueryMiss
			when string
		)
		if err := rows.Scan(&m.ID, &when, &m.Question, &m.BestScore, &m.Threshold); err != nil {
			return nil, kberrors.New(kberrors.ErrCodeStoreRead, "scan miss", err)
		}
		m.AskedAt = parseTime(when)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (t *SQLiteTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.db.Close()
}

func (t *SQLiteTracker) checkOpen() error {
	if t.closed {
		return kberrors.New(kberrors.ErrCodeStoreRead, "tracking database is closed", nil)
	}
	return nil
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

// formatTime renders times as fixed-width UTC RFC 3339 so text order is time order.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// String renders a short summary for logs.
func (r ReconcileResult) String() string {
	return fmt.Sprintf("%d documents, %d chunks, %d approximate, %d skipped",
		r.Documents, r.Chunks, r.Approximate, r.Skipped)
}
