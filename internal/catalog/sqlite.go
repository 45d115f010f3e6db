package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/whizzbang/audience-builder/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Lookup using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed catalog store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS dim_items (
		sku TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		buyer_category TEXT NOT NULL,
		product_category TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dim_items_name ON dim_items(name);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Query returns ranked product records for a name query.
//
// Ranking is done in SQL: an exact name match outranks a prefix match, which
// outranks a substring match. Within equal rank, rowid keeps insertion order
// stable. Records carrying the "not in use" sentinel in either category are
// excluded here, and again defensively by the aggregator.
func (s *SQLiteStore) Query(ctx context.Context, name string) ([]domain.ProductRecord, error) {
	query := `
		SELECT sku, name, buyer_category, product_category
		FROM dim_items
		WHERE (
			name = ? OR
			name LIKE ? || '%' OR
			name LIKE '%' || ? || '%'
		)
		AND buyer_category != ?
		AND product_category != ?
		ORDER BY
			CASE
				WHEN name = ? THEN 10
				WHEN name LIKE ? || '%' THEN 8
				WHEN name LIKE '%' || ? || '%' THEN 6
				ELSE 1
			END DESC,
			rowid ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query,
		name, name, name,
		SentinelNotInUse, SentinelNotInUse,
		name, name, name,
		MaxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.ProductRecord
	for rows.Next() {
		var rec domain.ProductRecord
		if err := rows.Scan(&rec.SKU, &rec.Name, &rec.BuyerCategory, &rec.ProductCategory); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return records, nil
}

// Insert adds or replaces a single product record.
func (s *SQLiteStore) Insert(ctx context.Context, rec domain.ProductRecord) error {
	query := `
	INSERT INTO dim_items (sku, name, buyer_category, product_category)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(sku) DO UPDATE SET
		name = excluded.name,
		buyer_category = excluded.buyer_category,
		product_category = excluded.product_category`

	if err := s.execWithRetry(ctx, query, rec.SKU, rec.Name, rec.BuyerCategory, rec.ProductCategory); err != nil {
		return fmt.Errorf("insert catalog record %s: %w", rec.SKU, err)
	}
	return nil
}

// SeedFromJSON loads product records from a JSON array file into the store.
func (s *SQLiteStore) SeedFromJSON(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var records []domain.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for _, rec := range records {
		if err := s.Insert(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execWithRetry retries writes that hit SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !isSQLiteConflict(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-time.After(baseDelay * time.Duration(1<<i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Ensure SQLiteStore implements Lookup.
var _ Lookup = (*SQLiteStore)(nil)
