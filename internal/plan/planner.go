package plan

import (
	"fmt"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
)

// ChunkDuration is the segment length the device's web interface serves.
const ChunkDuration = 5 * time.Minute

// Window is one expected remote artifact: a channel/date/time-range/quality
// combination mapping to exactly one output file. Immutable once created.
type Window struct {
	Channel int
	Date    time.Time // midnight of the calendar day
	Start   time.Time
	End     time.Time
	Quality nvr.Quality
}

// Key uniquely identifies the window within a run.
func (w Window) Key() string {
	return fmt.Sprintf("%d/%s/%s", w.Channel, w.Quality.StreamType(), w.Start.Format("20060102150405"))
}

// Duration is the window length. Every window is ChunkDuration except the
// final one of a day, which may be clipped shorter.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Day returns the ordered sequence of windows covering the full calendar day
// of date in fixed strides, oldest first. Pure date arithmetic: no I/O, and
// repeated calls with the same inputs yield an identical plan.
func Day(channel int, date time.Time, quality nvr.Quality) []Window {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	windows := make([]Window, 0, int(24*time.Hour/ChunkDuration))

	for start := dayStart; start.Before(dayEnd); start = start.Add(ChunkDuration) {
		end := start.Add(ChunkDuration)
		if end.After(dayEnd) {
			end = dayEnd
		}

		windows = append(windows, Window{
			Channel: channel,
			Date:    dayStart,
			Start:   start,
			End:     end,
			Quality: quality,
		})
	}

	return windows
}
