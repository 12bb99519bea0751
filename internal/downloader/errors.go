package downloader

import (
	"fmt"
	"time"
)

// PlanningError means the channel/date/quality combination cannot produce any
// work (typically: the device holds no recordings for that day). It aborts
// the run before any worker starts.
type PlanningError struct {
	Channel int
	Date    time.Time
	Reason  string
	Err     error // underlying error, if any
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("no downloadable plan for channel %d on %s: %s", e.Channel, e.Date.Format("2006-01-02"), e.Reason)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// TransferIncompleteError means a segment stream broke before the transfer
// fully drained. The partial temp file has already been discarded when this
// error is observed.
type TransferIncompleteError struct {
	Path    string // canonical path the transfer was headed for
	Written int64  // bytes received before the stream broke
	Err     error  // underlying error, if any
}

func (e *TransferIncompleteError) Error() string {
	return fmt.Sprintf("incomplete transfer for %s after %d bytes", e.Path, e.Written)
}

func (e *TransferIncompleteError) Unwrap() error {
	return e.Err
}
