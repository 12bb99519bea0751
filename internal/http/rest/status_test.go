package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reolink-tools/daygrab/internal/downloader"
	"github.com/reolink-tools/daygrab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProgress struct {
	snapshot downloader.Progress
}

func (s *staticProgress) Snapshot() downloader.Progress {
	return s.snapshot
}

type mockJournal struct {
	segments  []storage.SegmentRecord
	err       error
	lastLimit int
}

func (m *mockJournal) GetSegments(limit int) ([]storage.SegmentRecord, error) {
	m.lastLimit = limit

	if m.err != nil {
		return nil, m.err
	}

	if limit < len(m.segments) {
		return m.segments[:limit], nil
	}

	return m.segments, nil
}

func newTestServer(progress ProgressSource, journal storage.SegmentReadRepository) *httptest.Server {
	return httptest.NewServer(NewStatusHandler(progress, journal, nil).Routes())
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&staticProgress{}, &mockJournal{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHandleStatus(t *testing.T) {
	progress := &staticProgress{snapshot: downloader.Progress{
		State:     downloader.StateRunning,
		Channel:   1,
		Date:      "2025-08-30",
		Quality:   "high",
		Total:     288,
		Completed: 120,
		Skipped:   4,
		Failed:    1,
		Bytes:     1 << 30,
	}}

	srv := newTestServer(progress, &mockJournal{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got downloader.Progress
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, downloader.StateRunning, got.State)
	assert.Equal(t, int64(288), got.Total)
	assert.Equal(t, int64(120), got.Completed)
	assert.Equal(t, "2025-08-30", got.Date)
}

func TestHandleSegments(t *testing.T) {
	journal := &mockJournal{segments: []storage.SegmentRecord{
		{WindowKey: "1/main/20250830001000", FilePath: "2025-08-30_20250830_001000.mp4", Outcome: "completed", Bytes: 1024},
		{WindowKey: "1/main/20250830000500", FilePath: "2025-08-30_20250830_000500.mp4", Outcome: "failed", Attempts: 3, LastError: "device busy"},
	}}

	srv := newTestServer(&staticProgress{}, journal)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultSegmentLimit, journal.lastLimit)

	var body struct {
		Segments []storage.SegmentRecord `json:"segments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Segments, 2)
	assert.Equal(t, "completed", body.Segments[0].Outcome)
	assert.Equal(t, "device busy", body.Segments[1].LastError)
}

func TestHandleSegments_Limit(t *testing.T) {
	journal := &mockJournal{segments: []storage.SegmentRecord{
		{WindowKey: "1/main/20250830001000"},
		{WindowKey: "1/main/20250830000500"},
	}}

	srv := newTestServer(&staticProgress{}, journal)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, journal.lastLimit)

	var body struct {
		Segments []storage.SegmentRecord `json:"segments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Segments, 1)
}

func TestHandleSegments_InvalidLimit(t *testing.T) {
	srv := newTestServer(&staticProgress{}, &mockJournal{})
	defer srv.Close()

	for _, limit := range []string{"abc", "0", "-5"} {
		resp, err := http.Get(srv.URL + "/segments?limit=" + limit)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit %q must be rejected", limit)
	}
}

func TestHandleSegments_JournalError(t *testing.T) {
	srv := newTestServer(&staticProgress{}, &mockJournal{err: errors.New("database is locked")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleSegments_EmptyJournal(t *testing.T) {
	srv := newTestServer(&staticProgress{}, &mockJournal{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Segments []storage.SegmentRecord `json:"segments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Segments, "empty journal must serialize as an empty list, not null")
}
