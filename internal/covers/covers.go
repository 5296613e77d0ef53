// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package covers implements Musium's thumbnail cache (spec.md §4.F): a
// content-addressed on-disk store of full-resolution and downscaled
// album art, backed by a small sqlite table recording where each
// album's images live. The schema/migration idiom is adapted from
// llehouerou-waves' initSchema (see DESIGN.md); modernc.org/sqlite is
// used rather than a cgo sqlite driver so the daemon stays a single
// static binary.
package covers

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// dbFileName is the sqlite database file within a covers directory.
const dbFileName = "covers.db"

// Record is one album's cache entry.
type Record struct {
	AlbumID     uint64
	FullPath    string
	ThumbPath   string
	SourceHash  string
	GeneratedAt int64 // unix seconds
}

// Store is a handle on the thumbnail cache's sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the covers database under dir and
// ensures its schema exists.
func Open(dir string) (*Store, error) {
	db, err := sql.Open("sqlite", dir+"/"+dbFileName)
	if err != nil {
		return nil, fmt.Errorf("opening covers db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// initSchema creates the covers table if it doesn't already exist.
// Idempotent, matching llehouerou-waves' initSchema pattern of
// CREATE TABLE IF NOT EXISTS plus (when needed) idempotent ALTER TABLE.
func initSchema(db *sql.DB) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS covers (
  album_id      TEXT PRIMARY KEY,
  full_path     TEXT NOT NULL,
  thumb_path    TEXT NOT NULL,
  source_hash   TEXT NOT NULL,
  generated_at  INTEGER NOT NULL
);`
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("creating covers schema: %w", err)
	}
	return nil
}

// Put inserts or replaces rec's row.
func (s *Store) Put(rec Record) error {
	const stmt = `
INSERT INTO covers (album_id, full_path, thumb_path, source_hash, generated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(album_id) DO UPDATE SET
  full_path=excluded.full_path, thumb_path=excluded.thumb_path,
  source_hash=excluded.source_hash, generated_at=excluded.generated_at;`
	_, err := s.db.Exec(stmt, albumIDString(rec.AlbumID), rec.FullPath, rec.ThumbPath, rec.SourceHash, rec.GeneratedAt)
	if err != nil {
		return fmt.Errorf("writing cover record for album %#x: %w", rec.AlbumID, err)
	}
	return nil
}

// Get returns the cache entry for albumID, or (nil, nil) if the album
// hasn't been cached (spec.md §4.F: "missing files result in a 404",
// handled by the control surface checking for a nil record).
func (s *Store) Get(albumID uint64) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT album_id, full_path, thumb_path, source_hash, generated_at FROM covers WHERE album_id = ?`,
		albumIDString(albumID))
	var rec Record
	var idStr string
	if err := row.Scan(&idStr, &rec.FullPath, &rec.ThumbPath, &rec.SourceHash, &rec.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cover record for album %#x: %w", albumID, err)
	}
	rec.AlbumID = albumID
	return &rec, nil
}

// albumIDString renders albumID as the decimal string used throughout
// Musium's JSON encoding (spec.md §6), so the covers table's primary key
// matches what clients request by.
func albumIDString(albumID uint64) string {
	return fmt.Sprintf("%d", albumID)
}
