package sqlite

import (
	"context"
	"database/sql"

	"github.com/reolink-tools/daygrab/internal/storage"
	"github.com/reolink-tools/daygrab/internal/telemetry"
)

// InstrumentedSegmentRepository wraps SegmentRepository with telemetry.
type InstrumentedSegmentRepository struct {
	repo      *SegmentRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedSegmentRepository creates a new instrumented segment repository.
func NewInstrumentedSegmentRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedSegmentRepository {
	return &InstrumentedSegmentRepository{
		repo:      NewSegmentRepository(dbConn),
		telemetry: tel,
	}
}

// RecordSegment appends a terminal result with telemetry.
func (r *InstrumentedSegmentRepository) RecordSegment(record storage.SegmentRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "record_segment", func(ctx context.Context) error {
		return r.repo.RecordSegment(record)
	})
}

// GetSegments retrieves journal rows with telemetry.
func (r *InstrumentedSegmentRepository) GetSegments(limit int) ([]storage.SegmentRecord, error) {
	var result []storage.SegmentRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_segments", func(ctx context.Context) error {
		result, err = r.repo.GetSegments(limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
