// Package outputstore maps segment windows to canonical output files and
// guarantees a file at a canonical path is either absent or complete.
package outputstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/reolink-tools/daygrab/internal/plan"
)

const dirPerm = 0755

type Store struct {
	dir string
}

// New opens (and creates if needed) the output directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// FileName is the canonical name for a window's artifact. The format doubles
// as the dedupe key and is globbed by downstream tools, so it never changes:
// <date>_<YYYYMMDD>_<HHMMSS>.mp4 keyed by the segment start.
func FileName(w plan.Window) string {
	return fmt.Sprintf("%s_%s.mp4", w.Date.Format("2006-01-02"), w.Start.Format("20060102_150405"))
}

// Path returns the canonical absolute path for a window.
func (s *Store) Path(w plan.Window) string {
	return filepath.Join(s.dir, FileName(w))
}

// Exists reports whether a completed artifact is already on disk for the
// window. A non-zero, fully written size is the sole criterion: the device
// offers no checksum, and commits are rename-only, so presence implies a
// fully drained transfer.
func (s *Store) Exists(w plan.Window) (int64, bool) {
	info, err := os.Stat(s.Path(w))
	if err != nil || info.Size() == 0 {
		return 0, false
	}

	return info.Size(), true
}

// Commit drains r into a temp file next to the canonical path and renames it
// into place only after the stream ends cleanly. On any error the temp file
// is removed and the canonical path is left untouched. A zero-byte stream is
// rejected, since an empty file would defeat the skip check.
func (s *Store) Commit(w plan.Window, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(s.dir, "."+FileName(w)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to write segment: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if written == 0 {
		os.Remove(tmp.Name())

		return 0, fmt.Errorf("device returned an empty segment")
	}

	if err := os.Rename(tmp.Name(), s.Path(w)); err != nil {
		os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to commit segment: %w", err)
	}

	return written, nil
}
