package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/Seungwon-Robin/Chatbot/models"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

const songsSchema = `CREATE TABLE IF NOT EXISTS songs (
	position    INTEGER PRIMARY KEY,
	genre       TEXT NOT NULL,
	artist      TEXT NOT NULL,
	song_title  TEXT NOT NULL,
	description TEXT NOT NULL
)`

// SQLiteSource keeps the song catalog in a SQLite database file.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the songs
// table exists. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(songsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create songs table: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) Close() error { return s.db.Close() }

// LoadCatalog reads every song ordered by position.
func (s *SQLiteSource) LoadCatalog(ctx context.Context) (*Catalog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, genre, artist, song_title, description FROM songs ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query songs: %w", ErrLoad, err)
	}
	defer rows.Close()

	var docs []models.SongDocument
	for rows.Next() {
		var doc models.SongDocument
		if err := rows.Scan(&doc.Position, &doc.Song.Genre, &doc.Song.Artist, &doc.Song.SongTitle, &doc.Song.Description); err != nil {
			return nil, fmt.Errorf("%w: failed to scan song: %w", ErrLoad, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	catalog, err := catalogFromDocuments(docs)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded catalog from SQLite (%d songs)", catalog.Len())
	return catalog, nil
}

// ReplaceCatalog swaps the stored songs for the catalog in one transaction.
func (s *SQLiteSource) ReplaceCatalog(ctx context.Context, catalog *Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM songs`); err != nil {
		return fmt.Errorf("failed to delete songs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO songs (position, genre, artist, song_title, description) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, song := range catalog.rows {
		if _, err := stmt.ExecContext(ctx, i, song.Genre, song.Artist, song.SongTitle, song.Description); err != nil {
			return fmt.Errorf("failed to insert song %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit songs: %w", err)
	}
	log.Printf("Stored %d songs in SQLite", catalog.Len())
	return nil
}
