package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps outcome records in a SQLite database, one row per
// (stage, unit). Every Record call is written through immediately, so Flush
// is a no-op; durability is stricter than the file-backed store. Several
// stages can share one database file.
type SQLiteStore struct {
	db    *sql.DB
	stage string
	mem   *MemoryStore
}

func NewSQLiteStore(path, stage string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if strings.TrimSpace(stage) == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, stage: stage, mem: NewMemoryStore()}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename
// (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT unit_id, status, detail, updated_at
		 FROM unit_records
		 WHERE stage = ?
		 ORDER BY unit_id ASC`,
		s.stage,
	)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.UnitID, &status, &rec.Detail, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		rec.Status = Status(status)
		records[rec.UnitID] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	s.mem.replace(records)
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, unitID string, status Status, detail string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO unit_records (stage, unit_id, status, detail, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(stage, unit_id) DO UPDATE SET
			status=excluded.status,
			detail=excluded.detail,
			updated_at=excluded.updated_at`,
		s.stage,
		unitID,
		string(status),
		detail,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", unitID, err)
	}
	return s.mem.Record(ctx, unitID, status, detail)
}

func (s *SQLiteStore) IsDone(unitID string) bool {
	return s.mem.IsDone(unitID)
}

func (s *SQLiteStore) Failed() []Record {
	return s.mem.Failed()
}

func (s *SQLiteStore) Summary() Summary {
	return s.mem.Summary()
}

func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
