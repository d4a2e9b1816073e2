package serve

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_history (
		id                 TEXT PRIMARY KEY,
		cache_key          TEXT,
		provider_file_uuid TEXT,
		workflow_id        TEXT NOT NULL,
		tool_key           TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		error              TEXT NOT NULL DEFAULT '',
		result             TEXT NOT NULL DEFAULT '',
		metadata           TEXT NOT NULL DEFAULT '',
		created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS unique_workflow_tool_cache_key
		ON file_history(workflow_id, tool_key, cache_key) WHERE cache_key IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS unique_workflow_tool_provider_file_uuid
		ON file_history(workflow_id, tool_key, provider_file_uuid) WHERE provider_file_uuid IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const fileHistoryColumns = `id, cache_key, provider_file_uuid, workflow_id, tool_key, status, error, result, metadata, created_at, modified_at`

// GetFileHistory looks a file up by cache key, or by provider file UUID when
// no cache key is given.
func (s *SQLiteStore) GetFileHistory(ctx context.Context, key HistoryKey) (*FileHistory, error) {
	var row *sql.Row
	switch {
	case key.CacheKey != "":
		row = s.db.QueryRowContext(ctx,
			`SELECT `+fileHistoryColumns+` FROM file_history WHERE workflow_id = ? AND tool_key = ? AND cache_key = ?`,
			key.WorkflowID, key.ToolKey, key.CacheKey,
		)
	case key.ProviderFileUUID != "":
		row = s.db.QueryRowContext(ctx,
			`SELECT `+fileHistoryColumns+` FROM file_history WHERE workflow_id = ? AND tool_key = ? AND provider_file_uuid = ?`,
			key.WorkflowID, key.ToolKey, key.ProviderFileUUID,
		)
	default:
		return nil, ErrHistoryNotFound
	}

	var h FileHistory
	var cacheKey, providerUUID sql.NullString
	err := row.Scan(&h.ID, &cacheKey, &providerUUID, &h.WorkflowID, &h.ToolKey, &h.Status, &h.Error, &h.Result, &h.Metadata, &h.CreatedAt, &h.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, err
	}
	h.CacheKey = cacheKey.String
	h.ProviderFileUUID = providerUUID.String
	return &h, nil
}

// InsertFileHistory records a new row, filling in ID and timestamps when unset.
func (s *SQLiteStore) InsertFileHistory(ctx context.Context, h *FileHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.ModifiedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_history (`+fileHistoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, nullable(h.CacheKey), nullable(h.ProviderFileUUID), h.WorkflowID, h.ToolKey, h.Status,
		h.Error, h.Result, h.Metadata, h.CreatedAt, h.ModifiedAt,
	)
	if isUniqueViolation(err) {
		return ErrHistoryExists
	}
	return err
}

// UpdateFileHistory stores the status, error, result and metadata of h.
func (s *SQLiteStore) UpdateFileHistory(ctx context.Context, h *FileHistory) error {
	h.ModifiedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_history SET status = ?, error = ?, result = ?, metadata = ?, modified_at = ? WHERE id = ?`,
		h.Status, h.Error, h.Result, h.Metadata, h.ModifiedAt, h.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// UpdateProviderFileUUID sets the provider file UUID of row id.
func (s *SQLiteStore) UpdateProviderFileUUID(ctx context.Context, id, providerFileUUID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_history SET provider_file_uuid = ?, modified_at = ? WHERE id = ?`,
		nullable(providerFileUUID), time.Now().UTC(), id,
	)
	if isUniqueViolation(err) {
		return ErrHistoryExists
	}
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
