package actor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthonyhab/bb-auth/internal/log"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schema creates the desktop_entries table a DesktopStore persists its
// index to. There is exactly one table and no foreign keys, so a bare
// CREATE TABLE IF NOT EXISTS is the whole of "migrations" here — the
// corpus's own sqlite callers (internal/beads, internal/testutil) apply
// their schema the same way, as a literal string executed once at open.
const schema = `
CREATE TABLE IF NOT EXISTS desktop_entries (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	icon      TEXT NOT NULL DEFAULT '',
	exec      TEXT NOT NULL DEFAULT '',
	try_exec  TEXT NOT NULL DEFAULT '',
	ordinal   INTEGER NOT NULL
);
`

// DesktopStore persists the desktop-entry index (§4.6) so the daemon does
// not have to re-parse every .desktop file on the applications search path
// each time it needs a fresh DesktopIndex — only Refresh does that, driven
// by the desktop-entry directory watcher (§4.11); Load reconstructs the
// in-memory index from the database in a single query instead.
type DesktopStore struct {
	db *sql.DB
}

// OpenDesktopStore opens (creating if necessary) the sqlite file at path
// and ensures its schema exists. path may be ":memory:" for tests or a
// process without a writable state directory.
func OpenDesktopStore(path string) (*DesktopStore, error) {
	dsn := path
	if dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening desktop index database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying desktop index schema: %w", err)
	}
	return &DesktopStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *DesktopStore) Close() error {
	return s.db.Close()
}

// Load reconstructs a DesktopIndex from the persisted rows, in the order
// they were written by the last Refresh. Returns an empty index (not an
// error) if the table has never been populated — the first Refresh call
// fills it.
func (s *DesktopStore) Load(ctx context.Context) (*DesktopIndex, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, icon, exec, try_exec FROM desktop_entries ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("loading desktop index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	idx := &DesktopIndex{}
	for rows.Next() {
		var e DesktopEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Icon, &e.Exec, &e.TryExec); err != nil {
			return nil, fmt.Errorf("scanning desktop entry row: %w", err)
		}
		idx.entries = append(idx.entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating desktop entry rows: %w", err)
	}
	return idx, nil
}

// Refresh re-scans dirs (as BuildDesktopIndex does), replaces the
// persisted rows with the freshly-parsed set inside a single transaction,
// and returns the rebuilt index for immediate use. Called once at startup
// and again whenever the desktop-entry directory watcher fires.
func (s *DesktopStore) Refresh(ctx context.Context, dirs []string) (*DesktopIndex, error) {
	idx := BuildDesktopIndex(dirs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning desktop index refresh: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM desktop_entries`); err != nil {
		return nil, fmt.Errorf("clearing desktop index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO desktop_entries (id, name, icon, exec, try_exec, ordinal) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing desktop index insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range idx.entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.Icon, e.Exec, e.TryExec, i); err != nil {
			return nil, fmt.Errorf("persisting desktop entry %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing desktop index refresh: %w", err)
	}

	log.Debug(log.CatDB, "desktop index refreshed", "entries", len(idx.entries))
	return idx, nil
}
