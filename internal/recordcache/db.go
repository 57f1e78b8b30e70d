// Package recordcache is the on-disk store backing cacheOnly provider
// loads: parsed session records plus per-month coverage entries, with
// file metadata used to detect stale parses without re-reading content.
package recordcache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS records (
    id          TEXT PRIMARY KEY,
    source_kind TEXT NOT NULL,
    locality    TEXT NOT NULL DEFAULT 'local',
    host        TEXT NOT NULL DEFAULT '',
    working_dir TEXT NOT NULL DEFAULT '',
    file_path   TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT '',
    messages    INTEGER NOT NULL DEFAULT 0,
    tool_calls  INTEGER NOT NULL DEFAULT 0,
    file_size   INTEGER NOT NULL DEFAULT 0,
    line_count  INTEGER NOT NULL DEFAULT 0,
    mtime       INTEGER NOT NULL DEFAULT 0,
    quality     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS records_source ON records (source_kind, locality, host);

CREATE TABLE IF NOT EXISTS coverage (
    session_id TEXT NOT NULL,
    month_key  TEXT NOT NULL,
    days       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, month_key)
);

CREATE TABLE IF NOT EXISTS overlays (
    session_id TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    comment    TEXT NOT NULL DEFAULT ''
);
`

// schemaVersion should be bumped whenever record parsing changes shape,
// to force a full re-parse on next refresh.
const schemaVersion = "1"

const timeLayout = "2006-01-02T15:04:05Z"

type Cache struct {
	db *sql.DB
}

func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	db.Exec("CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)")
	c := &Cache{db: db}
	c.migrateSchemaVersion()
	return c, nil
}

func (c *Cache) migrateSchemaVersion() {
	var ver string
	err := c.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil || ver != schemaVersion {
		// force re-parse by resetting all record mtime/size to 0
		c.db.Exec("UPDATE records SET mtime = 0, file_size = 0, quality = 0")
		c.db.Exec("DELETE FROM coverage")
		c.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Meta is the staleness probe: a cached parse is fresh iff mtime and
// size match the file on disk.
func (c *Cache) Meta(id string) (mtime int64, size int64, ok bool, err error) {
	err = c.db.QueryRow("SELECT mtime, file_size FROM records WHERE id = ?", id).
		Scan(&mtime, &size)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return mtime, size, true, nil
}

const recordCols = `id, source_kind, locality, host, working_dir, file_path,
	created_at, updated_at, messages, tool_calls, file_size, line_count, mtime, quality`

func scanRecord(scan func(...any) error) (session.Record, error) {
	var r session.Record
	var kind, locality, created, updated string
	var mtime int64
	var quality int
	err := scan(&r.ID, &kind, &locality, &r.Source.Host, &r.WorkingDir, &r.FilePath,
		&created, &updated, &r.Messages, &r.ToolCalls, &r.FileSize, &r.LineCount, &mtime, &quality)
	if err != nil {
		return r, err
	}
	r.Source.Kind = session.Kind(kind)
	r.Source.Locality = session.Locality(locality)
	r.Quality = session.ParseQuality(quality)
	if mtime > 0 {
		r.Mtime = time.Unix(mtime, 0).UTC()
	}
	if t, err := time.Parse(timeLayout, created); err == nil {
		r.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, updated); err == nil {
		r.UpdatedAt = t
	}
	return r, nil
}

// Fetch returns the cached records for the given IDs; missing IDs are
// silently absent from the result.
func (c *Cache) Fetch(ids []string) ([]session.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := c.db.Query(
		fmt.Sprintf("SELECT %s FROM records WHERE id IN (%s)", recordCols, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// FetchSource returns all cached records for one source.
func (c *Cache) FetchSource(src session.SourceRef) ([]session.Record, error) {
	rows, err := c.db.Query(
		fmt.Sprintf("SELECT %s FROM records WHERE source_kind = ? AND locality = ? AND host = ?", recordCols),
		string(src.Kind), string(src.Locality), src.Host)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]session.Record, error) {
	var out []session.Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert writes records and their parse-derived coverage in one
// transaction; a batch either lands fully or not at all.
func (c *Cache) Upsert(recs []session.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT OR REPLACE INTO records (%s) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, recordCols))
	if err != nil {
		return err
	}
	defer stmt.Close()

	covStmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO coverage (session_id, month_key, days) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer covStmt.Close()

	for _, r := range recs {
		var mtime int64
		if !r.Mtime.IsZero() {
			mtime = r.Mtime.Unix()
		}
		created, updated := "", ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.UTC().Format(timeLayout)
		}
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.UTC().Format(timeLayout)
		}
		if _, err := stmt.Exec(
			r.ID, string(r.Source.Kind), string(r.Source.Locality), r.Source.Host,
			r.WorkingDir, r.FilePath, created, updated,
			r.Messages, r.ToolCalls, r.FileSize, r.LineCount, mtime, int(r.Quality),
		); err != nil {
			return err
		}
		for monthKey, days := range r.ActiveDays {
			if days.Empty() {
				continue
			}
			if _, err := covStmt.Exec(r.ID, monthKey, uint32(days)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Invalidate removes cached records (and their coverage) by ID.
func (c *Cache) Invalidate(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM coverage WHERE session_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM records WHERE id = ?", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InvalidateAll drops every cached record and coverage entry. Overlays
// are user data and survive.
func (c *Cache) InvalidateAll() error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM coverage"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Cache) RecordCount() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// CoverageFor loads the coverage entries of one calendar month.
func (c *Cache) CoverageFor(monthKey string) (map[string]session.DaySet, error) {
	rows, err := c.db.Query("SELECT session_id, days FROM coverage WHERE month_key = ?", monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]session.DaySet)
	for rows.Next() {
		var id string
		var days uint32
		if err := rows.Scan(&id, &days); err != nil {
			return nil, err
		}
		out[id] = session.DaySet(days)
	}
	return out, rows.Err()
}

// PutCoverage stores scan results for one month.
func (c *Cache) PutCoverage(monthKey string, cov map[string]session.DaySet) error {
	if len(cov) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO coverage (session_id, month_key, days) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, days := range cov {
		if _, err := stmt.Exec(id, monthKey, uint32(days)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InvalidateCoverage drops a month's coverage entries, optionally only
// for sessions under a directory prefix. Used by the forced-refresh
// path before re-scanning.
func (c *Cache) InvalidateCoverage(monthKey, dirPrefix string) error {
	if dirPrefix == "" {
		_, err := c.db.Exec("DELETE FROM coverage WHERE month_key = ?", monthKey)
		return err
	}
	_, err := c.db.Exec(`
		DELETE FROM coverage WHERE month_key = ? AND session_id IN (
			SELECT id FROM records WHERE working_dir = ? OR working_dir LIKE ?
		)`, monthKey, dirPrefix, dirPrefix+string(filepath.Separator)+"%")
	return err
}

// PruneCoverage removes coverage entries whose session no longer
// exists in the record table.
func (c *Cache) PruneCoverage() (int, error) {
	res, err := c.db.Exec(
		"DELETE FROM coverage WHERE session_id NOT IN (SELECT id FROM records)")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Overlays loads all persisted user overlays.
func (c *Cache) Overlays() (map[string]session.Overlay, error) {
	rows, err := c.db.Query("SELECT session_id, title, comment FROM overlays")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]session.Overlay)
	for rows.Next() {
		var id string
		var o session.Overlay
		if err := rows.Scan(&id, &o.Title, &o.Comment); err != nil {
			return nil, err
		}
		out[id] = o
	}
	return out, rows.Err()
}

// SetOverlay persists a user overlay; an empty overlay clears it.
func (c *Cache) SetOverlay(sessionID string, o session.Overlay) error {
	if o.Empty() {
		_, err := c.db.Exec("DELETE FROM overlays WHERE session_id = ?", sessionID)
		return err
	}
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO overlays (session_id, title, comment) VALUES (?,?,?)",
		sessionID, o.Title, o.Comment)
	return err
}
