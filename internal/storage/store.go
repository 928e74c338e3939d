// Package storage persists reports under a store root and keeps a sqlite
// index mapping (target, kind) to the most recent report path.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperpolymath/panic-attacker/internal/report"
)

// Store writes reports under <root>/<kind>/<timestamp>-<target>.<ext> and
// maintains the index database alongside them.
type Store struct {
	root string
	db   *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS report_index (
	target     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	path       TEXT NOT NULL,
	format     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (target, kind, format)
);
CREATE TABLE IF NOT EXISTS report_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	target     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	path       TEXT NOT NULL,
	format     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Open creates the store root and its index database.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w", root, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(root, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("opening report index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising report index: %w", err)
	}
	return &Store{root: root, db: db}, nil
}

// Close releases the index database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists one record and updates the index. Target is a short name
// (usually the scanned path's base name); kind is the report kind.
func (s *Store) Save(record any, target, kind string, format report.Format) (string, error) {
	now := time.Now().UTC()
	name := fmt.Sprintf("%s-%s.%s", now.Format("20060102150405"), sanitize(target), format.Extension())
	path := filepath.Join(s.root, kind, name)

	if err := report.Write(record, path, format); err != nil {
		return "", err
	}

	created := now.Format(time.RFC3339)
	if _, err := s.db.Exec(
		`INSERT INTO report_index (target, kind, path, format, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(target, kind, format) DO UPDATE SET path = excluded.path, created_at = excluded.created_at`,
		target, kind, path, string(format), created); err != nil {
		return "", fmt.Errorf("updating report index: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO report_history (target, kind, path, format, created_at) VALUES (?, ?, ?, ?, ?)`,
		target, kind, path, string(format), created); err != nil {
		return "", fmt.Errorf("appending report history: %w", err)
	}
	return path, nil
}

// Latest returns the most recent report path for (target, kind).
func (s *Store) Latest(target, kind string) (string, error) {
	row := s.db.QueryRow(
		`SELECT path FROM report_index WHERE target = ? AND kind = ? ORDER BY created_at DESC LIMIT 1`,
		target, kind)
	var path string
	if err := row.Scan(&path); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no stored report for target %q kind %q", target, kind)
		}
		return "", fmt.Errorf("querying report index: %w", err)
	}
	return path, nil
}

// History lists stored report paths for (target, kind), newest first.
func (s *Store) History(target, kind string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT path FROM report_history WHERE target = ? AND kind = ? ORDER BY id DESC LIMIT ?`,
		target, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("querying report history: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
