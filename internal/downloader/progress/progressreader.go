package progress

import "io"

// Reader wraps an io.Reader, counts bytes, and reports progress via a
// callback every reportInterval bytes. The byte count survives a broken
// stream, which is how short reads get sized in failure reports.
type Reader struct {
	reader         io.Reader
	total          int64 // expected size, 0 when unknown
	onProgress     func(read int64, total int64)
	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		reader:         r,
		total:          total,
		onProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		if pr.onProgress != nil && pr.sinceReport >= pr.reportInterval {
			pr.onProgress(pr.totalRead, pr.total)
			pr.sinceReport = 0
		}
	}

	return n, err
}

// TotalRead returns the cumulative bytes read so far.
func (pr *Reader) TotalRead() int64 {
	return pr.totalRead
}
