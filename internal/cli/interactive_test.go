package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSession struct {
	channels []nvr.Channel
	days     []time.Time
}

func (s *scriptedSession) Login(ctx context.Context) error  { return nil }
func (s *scriptedSession) Logout(ctx context.Context) error { return nil }

func (s *scriptedSession) Channels(ctx context.Context) ([]nvr.Channel, error) {
	return s.channels, nil
}

func (s *scriptedSession) RecordingDays(ctx context.Context, channel int, quality nvr.Quality, lookback int) ([]time.Time, error) {
	return s.days, nil
}

func (s *scriptedSession) Recordings(ctx context.Context, channel int, quality nvr.Quality, from, to time.Time) ([]nvr.Recording, error) {
	return nil, nil
}

func (s *scriptedSession) FetchSegment(ctx context.Context, req nvr.SegmentRequest) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func twoCameraSession() *scriptedSession {
	return &scriptedSession{
		channels: []nvr.Channel{
			{Index: 0, Name: "Front Door", Online: true},
			{Index: 1, Name: "Driveway", Online: false},
		},
		days: []time.Time{
			time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestSelect_FullFlow(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("1\n2\n2\n1\ny\n")
	out := &bytes.Buffer{}
	p := NewPrompter(input, out)

	sel, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, sel.Channel)
	assert.Equal(t, nvr.QualityLow, sel.Quality)
	assert.Equal(t, time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC), sel.Date)
	assert.Equal(t, 1, sel.Workers)

	assert.Contains(t, out.String(), "Front Door")
	assert.Contains(t, out.String(), "2025-08-29")
}

func TestSelect_Defaults(t *testing.T) {
	t.Parallel()

	// Channel 0, defaults for the rest, empty confirm accepts.
	input := strings.NewReader("0\n\n\n\n\n")
	p := NewPrompter(input, &bytes.Buffer{})

	sel, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, sel.Channel)
	assert.Equal(t, nvr.QualityHigh, sel.Quality)
	assert.Equal(t, time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC), sel.Date, "first listed day is the default")
	assert.Equal(t, 2, sel.Workers)
}

func TestSelect_SingleChannelSkipsPrompt(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{
		channels: []nvr.Channel{{Index: 0, Name: "Camera", Online: true}},
		days:     []time.Time{time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)},
	}

	// No channel answer needed: quality, day, workers, confirm.
	input := strings.NewReader("\n\n\ny\n")
	out := &bytes.Buffer{}

	sel, err := NewPrompter(input, out).Select(context.Background(), sess, 30, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, sel.Channel)
	assert.Contains(t, out.String(), "Using the only channel")
}

func TestSelect_DateByValue(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("0\n1\n2025-08-29\n\ny\n")
	p := NewPrompter(input, &bytes.Buffer{})

	sel, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC), sel.Date)
}

func TestSelect_DateByValueRecorderZone(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+2", 2*60*60)
	sess := &scriptedSession{
		channels: []nvr.Channel{{Index: 0, Name: "Camera", Online: true}},
		days:     []time.Time{time.Date(2025, 8, 29, 0, 0, 0, 0, zone)},
	}

	input := strings.NewReader("1\n2025-08-29\n\ny\n")
	p := NewPrompter(input, &bytes.Buffer{})

	sel, err := p.Select(context.Background(), sess, 30, 2)
	require.NoError(t, err)

	// The selected day keeps the recorder's zone so downstream window
	// planning stays aligned with the device clock.
	assert.Equal(t, "2025-08-29", sel.Date.Format("2006-01-02"))
	assert.Equal(t, zone.String(), sel.Date.Location().String())
}

func TestSelect_Aborted(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("0\n1\n1\n2\nn\n")
	p := NewPrompter(input, &bytes.Buffer{})

	_, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestSelect_RejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("7\n")
	p := NewPrompter(input, &bytes.Buffer{})

	_, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 7 does not exist")
}

func TestSelect_NoRecordingDays(t *testing.T) {
	t.Parallel()

	sess := &scriptedSession{
		channels: []nvr.Channel{{Index: 0, Name: "Camera", Online: true}},
	}

	input := strings.NewReader("\n")
	p := NewPrompter(input, &bytes.Buffer{})

	_, err := p.Select(context.Background(), sess, 30, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recordings on channel 0")
}

func TestSelect_RejectsWorkerCountOutOfRange(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("0\n1\n1\n9\n")
	p := NewPrompter(input, &bytes.Buffer{})

	_, err := p.Select(context.Background(), twoCameraSession(), 30, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be between 1 and 2")
}
