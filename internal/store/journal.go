package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"factionwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrJournalClosed = errors.New("store: journal closed")

// Event is one surfaced notification, kept schema-stable.
type Event struct {
	At      time.Time
	Monitor string
	Kind    string // e.g. "published", "updated", "heartbeat"
	Subject string // resource identifier (war id, dedup key, chain id)
	Detail  string
}

// Journal is an append-only sqlite log of surfaced notifications.
// A nil *Journal is valid and drops everything.
type Journal struct {
	db  *sql.DB
	log logx.Logger
}

func OpenJournal(path string, log logx.Logger) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	j := &Journal{db: db, log: log}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return err
}

func (j *Journal) Append(ctx context.Context, e Event) error {
	if j == nil {
		return nil
	}
	if j.db == nil {
		return ErrJournalClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(at, monitor, kind, subject, detail) VALUES(?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Monitor, e.Kind, e.Subject, nullStr(e.Detail),
	)
	return err
}

// Recent returns the newest events for one monitor, newest first.
func (j *Journal) Recent(ctx context.Context, monitor string, limit int) ([]Event, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT at, monitor, kind, subject, COALESCE(detail, '')
		 FROM events WHERE monitor = ? ORDER BY id DESC LIMIT ?`, monitor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&at, &e.Monitor, &e.Kind, &e.Subject, &e.Detail); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
