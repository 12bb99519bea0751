package sqlite

import (
	"database/sql"

	"github.com/reolink-tools/daygrab/internal/storage"
)

type SegmentRepository struct {
	db *sql.DB
}

func NewSegmentRepository(dbConn *sql.DB) *SegmentRepository {
	return &SegmentRepository{db: dbConn}
}

// RecordSegment appends one terminal window outcome to the journal. Re-runs
// of the same day append fresh rows; the journal is an audit trail, not a
// dedupe index.
func (r *SegmentRepository) RecordSegment(record storage.SegmentRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO segments (window_key, file_path, channel, quality, outcome, bytes, attempts, last_error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.WindowKey, record.FilePath, record.Channel, record.Quality,
		record.Outcome, record.Bytes, record.Attempts, record.LastError, record.FinishedAt)

	return err
}

// GetSegments returns the most recent journal rows, newest first.
func (r *SegmentRepository) GetSegments(limit int) ([]storage.SegmentRecord, error) {
	rows, err := r.db.Query(`
		SELECT window_key, file_path, channel, quality, outcome, bytes, attempts, last_error, finished_at
		FROM segments
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []storage.SegmentRecord

	for rows.Next() {
		var record storage.SegmentRecord

		var lastError sql.NullString

		err := rows.Scan(&record.WindowKey, &record.FilePath, &record.Channel, &record.Quality,
			&record.Outcome, &record.Bytes, &record.Attempts, &lastError, &record.FinishedAt)
		if err != nil {
			return nil, err
		}

		if lastError.Valid {
			record.LastError = lastError.String
		}

		segments = append(segments, record)
	}

	return segments, rows.Err()
}
