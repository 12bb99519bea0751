package storage

// SegmentRecord is the journal row for one terminal segment window. The
// journal is history and reporting only: skip detection is driven by the
// output directory, never by these rows.
type SegmentRecord struct {
	WindowKey  string `json:"window_key"`
	FilePath   string `json:"file_path"`
	Channel    int    `json:"channel"`
	Quality    string `json:"quality"`
	Outcome    string `json:"outcome"` // completed, skipped or failed
	Bytes      int64  `json:"bytes"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
	FinishedAt string `json:"finished_at"` // RFC3339
}

// SegmentReadRepository lists journal history.
type SegmentReadRepository interface {
	GetSegments(limit int) ([]SegmentRecord, error)
}

// SegmentWriteRepository appends terminal results.
type SegmentWriteRepository interface {
	RecordSegment(record SegmentRecord) error
}

// SegmentJournal is the full journal surface the orchestrator and the status
// API share.
type SegmentJournal interface {
	SegmentReadRepository
	SegmentWriteRepository
}
