// Package store persists sweep results in an append-only SQLite database,
// one file per (dataset, kernel) pair.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/tensorplex-labs/drsweep/internal/paramset"
)

const (
	schemaVersion = "1"

	hyperparameterPrefix = "hp_"
	objectivePrefix      = "obj_"
)

var (
	// ErrStoreMismatch reports a store file created for another dataset or kernel.
	ErrStoreMismatch = errors.New("store belongs to a different sweep")
	ErrNotFound      = errors.New("not found")
)

// Record is one persisted parameter set with its scores and coordinates.
type Record struct {
	ID              int64
	Key             string
	Hash            string
	Hyperparameters paramset.Hyperparameters
	Objectives      map[string]float64
	Coordinates     *mat.Dense
	RunID           string
	CreatedAt       time.Time
}

// Status summarises a store for progress reporting.
type Status struct {
	Path      string `json:"path"`
	Dataset   string `json:"dataset"`
	Kernel    string `json:"kernel"`
	Rows      int    `json:"rows"`
	LastRunID string `json:"last_run_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SQLiteStore is the single-writer result store.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	dataset string
	kernel  string

	mu      sync.RWMutex
	columns map[string]bool
}

// Path returns the store file for a dataset and kernel inside dir.
func Path(dir, dataset, kernel string) string {
	return filepath.Join(dir, fmt.Sprintf("drop_%s_%s.db", paramset.ColumnName(dataset), paramset.ColumnName(kernel)))
}

// Open opens or creates the store at path. An existing store must have been
// created for the same dataset and kernel.
func Open(ctx context.Context, path, dataset, kernel string) (*SQLiteStore, error) {
	if dataset == "" || kernel == "" {
		return nil, fmt.Errorf("store needs a dataset and a kernel name")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, dataset: dataset, kernel: kernel}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.checkIdentity(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadColumns(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	log.Debug().Str("path", path).Str("dataset", dataset).Str("kernel", kernel).Msg("store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY,
		param_key TEXT NOT NULL UNIQUE,
		param_hash TEXT NOT NULL,
		hyperparameters_json TEXT NOT NULL,
		run_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS coordinates (
		id INTEGER PRIMARY KEY REFERENCES results(id),
		rows INTEGER NOT NULL,
		cols INTEGER NOT NULL,
		encoding TEXT NOT NULL,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_hash ON results(param_hash);
	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) checkIdentity(ctx context.Context) error {
	for key, want := range map[string]string{"dataset": s.dataset, "kernel": s.kernel} {
		got, err := s.Metadata(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			if err := s.setMetadata(ctx, s.db, key, want); err != nil {
				return err
			}
		case err != nil:
			return err
		case got != want:
			return fmt.Errorf("%w: %s is %q, expected %q", ErrStoreMismatch, key, got, want)
		}
	}
	if _, err := s.Metadata(ctx, "created_at"); errors.Is(err, ErrNotFound) {
		if err := s.setMetadata(ctx, s.db, "created_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return s.setMetadata(ctx, s.db, "schema_version", schemaVersion)
}

func (s *SQLiteStore) loadColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('results')`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.columns = cols
	s.mu.Unlock()
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Metadata returns a metadata value or ErrNotFound.
func (s *SQLiteStore) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %q: %w", key, ErrNotFound)
	}
	return value, err
}

func (s *SQLiteStore) setMetadata(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// AppendBatch writes every record, its hyperparameter and objective columns
// and its coordinates in a single transaction. Nothing is written when any
// record fails.
func (s *SQLiteStore) AppendBatch(ctx context.Context, runID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	added := map[string]bool{}
	for _, rec := range records {
		for name, v := range rec.Hyperparameters {
			col := hyperparameterPrefix + paramset.ColumnName(name)
			if err := s.ensureColumn(ctx, tx, added, col, sqlType(v)); err != nil {
				return err
			}
		}
		for name := range rec.Objectives {
			col := objectivePrefix + paramset.ColumnName(name)
			if err := s.ensureColumn(ctx, tx, added, col, "REAL"); err != nil {
				return err
			}
		}
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if err := insertRecord(ctx, tx, runID, now, rec); err != nil {
			return fmt.Errorf("record %d: %w", rec.ID, err)
		}
	}
	if err := s.setMetadata(ctx, tx, "last_run_id", runID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	maps.Copy(s.columns, added)
	return nil
}

func (s *SQLiteStore) ensureColumn(ctx context.Context, tx *sql.Tx, added map[string]bool, col, typ string) error {
	if s.columns[col] || added[col] {
		return nil
	}
	stmt := fmt.Sprintf(`ALTER TABLE results ADD COLUMN %s %s`, quoteIdent(col), typ)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s: %w", col, err)
	}
	added[col] = true
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, runID string, now time.Time, rec Record) error {
	hpJSON, err := sonic.Marshal(rec.Hyperparameters)
	if err != nil {
		return fmt.Errorf("encode hyperparameters: %w", err)
	}
	key, hash := rec.Key, rec.Hash
	if key == "" {
		key = rec.Hyperparameters.Key()
	}
	if hash == "" {
		hash = rec.Hyperparameters.Hash()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	cols := []string{"id", "param_key", "param_hash", "hyperparameters_json", "run_id", "created_at"}
	args := []any{rec.ID, key, hash, string(hpJSON), runID, created.Unix()}
	for _, name := range rec.Hyperparameters.Names() {
		cols = append(cols, quoteIdent(hyperparameterPrefix+paramset.ColumnName(name)))
		args = append(args, rec.Hyperparameters[name])
	}
	for _, name := range slices.Sorted(maps.Keys(rec.Objectives)) {
		cols = append(cols, quoteIdent(objectivePrefix+paramset.ColumnName(name)))
		args = append(args, rec.Objectives[name])
	}

	stmt := fmt.Sprintf(`INSERT INTO results (%s) VALUES (%s)`,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return err
	}

	if rec.Coordinates == nil {
		return nil
	}
	blob, err := EncodeCoordinates(rec.Coordinates)
	if err != nil {
		return err
	}
	r, c := rec.Coordinates.Dims()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO coordinates (id, rows, cols, encoding, data) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, r, c, EncodingMsgpackZstd, blob)
	return err
}

// ExistingKeys returns the canonical keys of every persisted parameter set.
func (s *SQLiteStore) ExistingKeys(ctx context.Context) (paramset.KeySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT param_key FROM results`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := paramset.KeySet{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// NextID is one past the largest persisted id, or 0 for an empty store.
func (s *SQLiteStore) NextID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id) + 1, 0) FROM results`).Scan(&next)
	return next, err
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}

// Records loads every result row ordered by id. Coordinates are not loaded.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM results ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Record
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := Record{Objectives: map[string]float64{}}
		for i, name := range names {
			v := values[i]
			switch {
			case name == "id":
				rec.ID, _ = v.(int64)
			case name == "param_key":
				rec.Key = asString(v)
			case name == "param_hash":
				rec.Hash = asString(v)
			case name == "run_id":
				rec.RunID = asString(v)
			case name == "created_at":
				ts, _ := v.(int64)
				rec.CreatedAt = time.Unix(ts, 0).UTC()
			case name == "hyperparameters_json":
				if err := sonic.UnmarshalString(asString(v), &rec.Hyperparameters); err != nil {
					return nil, fmt.Errorf("record %d: decode hyperparameters: %w", rec.ID, err)
				}
			case strings.HasPrefix(name, objectivePrefix):
				if f, ok := v.(float64); ok {
					rec.Objectives[strings.TrimPrefix(name, objectivePrefix)] = f
				}
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Coordinates loads the embedding stored for id.
func (s *SQLiteStore) Coordinates(ctx context.Context, id int64) (*mat.Dense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encoding string
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT encoding, data FROM coordinates WHERE id = ?`, id).Scan(&encoding, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coordinates %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if encoding != EncodingMsgpackZstd {
		return nil, fmt.Errorf("coordinates %d: unsupported encoding %q", id, encoding)
	}
	return DecodeCoordinates(blob)
}

func (s *SQLiteStore) Status(ctx context.Context) (Status, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Path: s.path, Dataset: s.dataset, Kernel: s.kernel, Rows: count}
	if v, err := s.Metadata(ctx, "last_run_id"); err == nil {
		st.LastRunID = v
	}
	if v, err := s.Metadata(ctx, "created_at"); err == nil {
		st.CreatedAt = v
	}
	return st, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func sqlType(v any) string {
	switch v.(type) {
	case int, int32, int64, uint64, bool:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
