package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"alarmd/internal/alarm"
	"alarmd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) CreateAlarm(ctx context.Context, description, fireAt string, kind alarm.Recurrence) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms(description, fire_at, recurrence) VALUES(?,?,?)`,
		description, fireAt, int(kind),
	)
	if err != nil {
		return 0, fmt.Errorf("insert alarm: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]alarm.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, fire_at, recurrence FROM alarms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load alarms: %w", err)
	}
	defer rows.Close()

	var out []alarm.Record
	for rows.Next() {
		var r alarm.Record
		var rec int
		if err := rows.Scan(&r.ID, &r.Description, &r.FireAt, &rec); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		r.Recurrence = alarm.Recurrence(rec)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateFireTime(ctx context.Context, id int64, fireAt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alarms SET fire_at = ? WHERE id = ?`, fireAt, id)
	if err != nil {
		return fmt.Errorf("update alarm %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update alarm %d: no such row", id)
	}
	return nil
}

// PruneExpired relies on alarm.TimeLayout sorting lexicographically, so a
// plain text comparison selects everything before the cutoff.
func (s *sqliteStore) PruneExpired(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alarms WHERE recurrence = ? AND fire_at < ?`,
		int(alarm.None), before)
	if err != nil {
		return 0, fmt.Errorf("prune alarms: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
