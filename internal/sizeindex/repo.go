package sizeindex

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/catcoverage/internal/archive"
)

// GetSize returns the stored size of path and when it was fetched.
// ok is false when there is no row.
func (db *DB) GetSize(path string) (size archive.Size, fetchedAt time.Time, ok bool, err error) {
	var at int64
	err = db.conn.QueryRow(`SELECT bytes, files, fetched_at FROM sizes WHERE path = ?`, path).
		Scan(&size.Bytes, &size.Files, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return archive.Size{}, time.Time{}, false, nil
	}
	if err != nil {
		return archive.Size{}, time.Time{}, false, fmt.Errorf("sizeindex: get size: %w", err)
	}
	return size, time.Unix(at, 0), true, nil
}

// PutSize inserts or replaces the size of path.
func (db *DB) PutSize(path string, size archive.Size, fetchedAt time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO sizes (path, bytes, files, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			bytes      = excluded.bytes,
			files      = excluded.files,
			fetched_at = excluded.fetched_at
	`, path, size.Bytes, size.Files, fetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("sizeindex: put size: %w", err)
	}
	return nil
}

// GetListing returns the stored child directories of path.
func (db *DB) GetListing(path string) (children []string, fetchedAt time.Time, ok bool, err error) {
	var raw string
	var at int64
	err = db.conn.QueryRow(`SELECT children, fetched_at FROM listings WHERE path = ?`, path).Scan(&raw, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("sizeindex: get listing: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &children); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("sizeindex: decode listing %s: %w", path, err)
	}
	return children, time.Unix(at, 0), true, nil
}

// PutListing inserts or replaces the child directories of path.
func (db *DB) PutListing(path string, children []string, fetchedAt time.Time) error {
	if children == nil {
		children = []string{}
	}
	raw, _ := json.Marshal(children)
	_, err := db.conn.Exec(`
		INSERT INTO listings (path, children, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			children   = excluded.children,
			fetched_at = excluded.fetched_at
	`, path, string(raw), fetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("sizeindex: put listing: %w", err)
	}
	return nil
}

// PurgeBefore deletes every row fetched before cutoff and returns how many
// rows went.
func (db *DB) PurgeBefore(cutoff time.Time) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("sizeindex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var total int64
	for _, q := range []string{
		`DELETE FROM sizes WHERE fetched_at < ?`,
		`DELETE FROM listings WHERE fetched_at < ?`,
	} {
		res, err := tx.Exec(q, cutoff.Unix())
		if err != nil {
			return 0, fmt.Errorf("sizeindex: purge: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sizeindex: purge commit: %w", err)
	}
	return total, nil
}

// Counts returns the number of cached sizes and listings.
func (db *DB) Counts() (sizes, listings int, err error) {
	if err := db.conn.QueryRow(`SELECT count(*) FROM sizes`).Scan(&sizes); err != nil {
		return 0, 0, fmt.Errorf("sizeindex: count sizes: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM listings`).Scan(&listings); err != nil {
		return 0, 0, fmt.Errorf("sizeindex: count listings: %w", err)
	}
	return sizes, listings, nil
}
