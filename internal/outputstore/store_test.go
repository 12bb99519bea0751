package outputstore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/reolink-tools/daygrab/internal/outputstore"
	"github.com/reolink-tools/daygrab/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errors"
	"io"
)

func window(t *testing.T) plan.Window {
	t.Helper()

	date := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	return plan.Window{
		Channel: 0,
		Date:    date,
		Start:   date.Add(15*time.Hour + 30*time.Minute),
		End:     date.Add(15*time.Hour + 35*time.Minute),
		Quality: nvr.QualityHigh,
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "2025-08-30_20250830_153000.mp4", outputstore.FileName(window(t)))
}

func TestCommit_ThenExists(t *testing.T) {
	dir := t.TempDir()
	store, err := outputstore.New(dir)
	require.NoError(t, err)

	w := window(t)

	_, ok := store.Exists(w)
	assert.False(t, ok)

	written, err := store.Commit(w, strings.NewReader("segment-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("segment-bytes")), written)

	size, ok := store.Exists(w)
	assert.True(t, ok)
	assert.Equal(t, written, size)

	// Nothing but the committed artifact remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-08-30_20250830_153000.mp4", entries[0].Name())
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true

		return copy(p, r.data), nil
	}

	return 0, errors.New("stream cut")
}

func TestCommit_StreamError_LeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	store, err := outputstore.New(dir)
	require.NoError(t, err)

	w := window(t)

	_, err = store.Commit(w, &failingReader{data: "partial"})
	require.Error(t, err)

	_, ok := store.Exists(w)
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp or partial file may survive a failed commit")
}

func TestCommit_EmptyStreamRejected(t *testing.T) {
	store, err := outputstore.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Commit(window(t), strings.NewReader(""))
	require.Error(t, err)

	_, ok := store.Exists(window(t))
	assert.False(t, ok)
}

func TestExists_IgnoresZeroByteFile(t *testing.T) {
	dir := t.TempDir()
	store, err := outputstore.New(dir)
	require.NoError(t, err)

	w := window(t)
	require.NoError(t, os.WriteFile(store.Path(w), nil, 0644))

	_, ok := store.Exists(w)
	assert.False(t, ok, "a zero-byte leftover must not trigger a skip")
}

func TestCommit_DoesNotOverwriteObservableState(t *testing.T) {
	// An external reader polling the directory must only ever see the
	// canonical name appear complete: temp files use a dotted prefix.
	dir := t.TempDir()
	store, err := outputstore.New(dir)
	require.NoError(t, err)

	w := window(t)

	pr, pw := io.Pipe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = store.Commit(w, pr)
	}()

	pw.Write([]byte("first-half"))

	// Mid-transfer, the canonical path must not exist.
	_, statErr := os.Stat(filepath.Join(dir, outputstore.FileName(w)))
	assert.True(t, os.IsNotExist(statErr))

	pw.Write([]byte("second-half"))
	pw.Close()
	<-done

	size, ok := store.Exists(w)
	assert.True(t, ok)
	assert.Equal(t, int64(len("first-halfsecond-half")), size)
}
