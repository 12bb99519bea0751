package nvr

import (
	"context"
	"io"
	"time"
)

// Quality selects which encoding variant of a recording is fetched.
type Quality string

const (
	// QualityHigh is the full resolution main stream.
	QualityHigh Quality = "high"
	// QualityLow is the reduced resolution sub stream.
	QualityLow Quality = "low"
)

// StreamType returns the device-side stream name for the quality tier.
func (q Quality) StreamType() string {
	if q == QualityLow {
		return "sub"
	}

	return "main"
}

// ParseQuality maps a user-facing quality name to a Quality.
func ParseQuality(s string) (Quality, bool) {
	switch s {
	case "high", "main":
		return QualityHigh, true
	case "low", "sub":
		return QualityLow, true
	}

	return "", false
}

// Channel is one camera input on the recorder.
type Channel struct {
	Index  int
	Name   string
	Online bool
}

// Recording is one VOD file the device holds for a channel.
type Recording struct {
	Name  string
	Start time.Time
	End   time.Time
	Size  int64
}

// Covers reports whether the recording overlaps the [start, end) range.
func (r Recording) Covers(start, end time.Time) bool {
	return r.Start.Before(end) && r.End.After(start)
}

// SegmentRequest identifies one slice of a recording to fetch.
type SegmentRequest struct {
	Channel int
	Source  string // VOD file name the slice belongs to
	Quality Quality
	Start   time.Time
	End     time.Time
}

// Session is an authenticated handle to the recorder. A session is owned by
// exactly one caller; the device enforces a low concurrent session ceiling.
type Session interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	Channels(ctx context.Context) ([]Channel, error)
	RecordingDays(ctx context.Context, channel int, quality Quality, lookback int) ([]time.Time, error)
	Recordings(ctx context.Context, channel int, quality Quality, from, to time.Time) ([]Recording, error)
	FetchSegment(ctx context.Context, req SegmentRequest) (io.ReadCloser, error)
}
