package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB initializes the SQLite database and creates the segments table if it
// doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY,
		window_key TEXT,
		file_path TEXT,
		channel INTEGER,
		quality TEXT,
		outcome TEXT,
		bytes INTEGER,
		attempts INTEGER,
		last_error TEXT,
		finished_at TEXT
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
