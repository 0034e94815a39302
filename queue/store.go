package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrItemNotFound is returned when a queue item id does not exist.
var ErrItemNotFound = errors.New("queue item not found")

// Config holds configuration options for the queue store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:sync.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 1h
	ConnMaxIdleTime time.Duration // Default: 5m
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	return &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	payload TEXT,
	site_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	last_known_remote_updated_at INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'PENDING',
	last_error TEXT NOT NULL DEFAULT '',
	last_attempt_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status_created ON sync_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);
`

// Store is the durable sync queue. All mutations to an item's status are
// expected to flow through a single active processing run, so the store
// itself does no cross-row locking beyond what SQLite provides.
type Store struct {
	db  *sql.DB
	now func() int64
}

// New creates a queue store with the provided configuration and prepares
// the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpQueue, errors.New("config is nil"))
	}
	config.setDefaults()

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, fmt.Errorf("open database: %w", err))
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, fmt.Errorf("create schema: %w", err))
	}

	return &Store{
		db:  db,
		now: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NewWithDataSource is a convenience constructor using default settings.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnqueueInsert records a local INSERT. If an unsynced INSERT for the same
// entity is still pending it is replaced rather than duplicated.
func (s *Store) EnqueueInsert(ctx context.Context, kind entity.Kind, entityID string, payload json.RawMessage, siteID string) error {
	existing, err := s.LatestPendingForEntity(ctx, kind, entityID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Op == OpInsert {
		if err := s.DeleteByID(ctx, existing.ID); err != nil {
			return err
		}
	}

	return s.insertItem(ctx, Item{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityID:  entityID,
		Op:        OpInsert,
		Payload:   payload,
		SiteID:    siteID,
		CreatedAt: s.now(),
		Status:    StatusPending,
	})
}

// EnqueueUpdate records a local UPDATE, coalescing against any pending
// operation for the same entity:
//
//	INSERT + UPDATE -> INSERT carrying the new payload
//	UPDATE + UPDATE -> single UPDATE with the latest payload, original createdAt
//	DELETE + UPDATE -> inconsistent, the UPDATE is dropped
func (s *Store) EnqueueUpdate(ctx context.Context, kind entity.Kind, entityID string, payload json.RawMessage, lastKnownRemoteUpdatedAt *int64, siteID string) error {
	existing, err := s.LatestPendingForEntity(ctx, kind, entityID)
	if err != nil {
		return err
	}

	if existing != nil {
		switch existing.Op {
		case OpInsert, OpUpdate:
			return s.replacePayload(ctx, existing.ID, payload)
		case OpDelete:
			return nil
		}
	}

	return s.insertItem(ctx, Item{
		ID:                       uuid.NewString(),
		Kind:                     kind,
		EntityID:                 entityID,
		Op:                       OpUpdate,
		Payload:                  payload,
		SiteID:                   siteID,
		CreatedAt:                s.now(),
		LastKnownRemoteUpdatedAt: lastKnownRemoteUpdatedAt,
		Status:                   StatusPending,
	})
}

// EnqueueDelete records a local DELETE. Pending INSERT/UPDATE items for the
// entity are superseded: a pending INSERT cancels the DELETE entirely (the
// entity was never synced), pending UPDATEs are simply dropped.
func (s *Store) EnqueueDelete(ctx context.Context, kind entity.Kind, entityID string, lastKnownRemoteUpdatedAt *int64, siteID string) error {
	existing, err := s.LatestPendingForEntity(ctx, kind, entityID)
	if err != nil {
		return err
	}

	neverSynced := existing != nil && existing.Op == OpInsert

	// Drop superseded pending mutations for this entity.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND status = ? AND operation IN (?, ?)`,
		kind.String(), entityID, StatusPending, OpInsert, OpUpdate)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpEnqueue, err)
	}

	if neverSynced {
		return nil
	}

	return s.insertItem(ctx, Item{
		ID:                       uuid.NewString(),
		Kind:                     kind,
		EntityID:                 entityID,
		Op:                       OpDelete,
		SiteID:                   siteID,
		CreatedAt:                s.now(),
		LastKnownRemoteUpdatedAt: lastKnownRemoteUpdatedAt,
		Status:                   StatusPending,
	})
}

func (s *Store) insertItem(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue
			(id, entity_type, entity_id, operation, payload, site_id, created_at, last_known_remote_updated_at, retry_count, status, last_error, last_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Kind.String(), item.EntityID, string(item.Op), string(item.Payload), item.SiteID,
		item.CreatedAt, item.LastKnownRemoteUpdatedAt, item.RetryCount, string(item.Status), item.LastError, item.LastAttemptAt)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpEnqueue, err)
	}
	return nil
}

func (s *Store) replacePayload(ctx context.Context, id string, payload json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET payload = ? WHERE id = ?`, string(payload), id)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpEnqueue, err)
	}
	return nil
}

// PendingBatch returns up to limit PENDING items in FIFO order by createdAt.
func (s *Store) PendingBatch(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		StatusPending, limit)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// PendingBatchAfter returns up to limit PENDING items strictly after the
// (createdAt, id) cursor, in FIFO order. A run pages with it so items that
// fall back to PENDING after a failed attempt cannot crowd the ones behind
// them out of the batch window.
func (s *Store) PendingBatchAfter(ctx context.Context, limit int, afterCreatedAt int64, afterID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue
		 WHERE status = ? AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at, id LIMIT ?`,
		StatusPending, afterCreatedAt, afterCreatedAt, afterID, limit)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ByEntity returns all items for an entity in FIFO order, regardless of status.
func (s *Store) ByEntity(ctx context.Context, kind entity.Kind, entityID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue WHERE entity_type = ? AND entity_id = ? ORDER BY created_at, id`,
		kind.String(), entityID)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ByID returns a single item, or ErrItemNotFound.
func (s *Store) ByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return item, nil
}

// LatestPendingForEntity returns the most recent PENDING item for an
// entity, or nil when there is none. Used by the coalescing enqueue paths.
func (s *Store) LatestPendingForEntity(ctx context.Context, kind entity.Kind, entityID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue
		 WHERE entity_type = ? AND entity_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		kind.String(), entityID, StatusPending)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return item, nil
}

// UpdateStatus sets the status of one item.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// UpdateStatusWithRetry records a failed attempt: sets the status, bumps
// the retry counter and stores the attempt timestamp and error message.
func (s *Store) UpdateStatusWithRetry(ctx context.Context, id string, status Status, attemptAt int64, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, retry_count = retry_count + 1, last_attempt_at = ?, last_error = ? WHERE id = ?`,
		string(status), attemptAt, lastError, id)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// UpdateAllStatus transitions every item in one status to another and
// returns the number of rows changed. Used by RetryFailed (FAILED -> PENDING).
func (s *Store) UpdateAllStatus(ctx context.Context, from, to Status) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE status = ?`, string(to), string(from))
	if err != nil {
		return 0, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteByID removes one item.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// DeleteSynced purges rows already marked fully synced.
func (s *Store) DeleteSynced(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE status = ?`, StatusSynced)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// CountByStatus returns the number of items in the given status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return n, nil
}

// PendingCount returns the number of PENDING items.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.CountByStatus(ctx, StatusPending)
}

// ConflictCount returns the number of CONFLICT items.
func (s *Store) ConflictCount(ctx context.Context) (int, error) {
	return s.CountByStatus(ctx, StatusConflict)
}

const itemColumns = `id, entity_type, entity_id, operation, payload, site_id, created_at, last_known_remote_updated_at, retry_count, status, last_error, last_attempt_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item       Item
		entityType string
		op         string
		payload    sql.NullString
		status     string
	)
	err := row.Scan(&item.ID, &entityType, &item.EntityID, &op, &payload, &item.SiteID,
		&item.CreatedAt, &item.LastKnownRemoteUpdatedAt, &item.RetryCount, &status, &item.LastError, &item.LastAttemptAt)
	if err != nil {
		return nil, err
	}

	kind, ok := entity.ParseKind(entityType)
	if !ok {
		return nil, fmt.Errorf("row %s: unknown entity type %q", item.ID, entityType)
	}
	item.Kind = kind
	item.Op = Operation(op)
	item.Status = Status(status)
	if payload.Valid && payload.String != "" {
		item.Payload = json.RawMessage(payload.String)
	}
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return items, nil
}
