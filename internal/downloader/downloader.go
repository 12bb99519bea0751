// Package downloader schedules segment fetches across a bounded pool of
// workers, each holding its own device session, and reassembles a full day
// of recordings as discrete files.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/reolink-tools/daygrab/internal/downloader/progress"
	"github.com/reolink-tools/daygrab/internal/logctx"
	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/reolink-tools/daygrab/internal/outputstore"
	"github.com/reolink-tools/daygrab/internal/plan"
	"github.com/reolink-tools/daygrab/internal/storage"
	"github.com/reolink-tools/daygrab/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultWorkers matches the device's practical concurrent-session
	// tolerance. More workers mostly buys more overload errors.
	DefaultWorkers = 2

	defaultFetchTimeout = 5 * time.Minute
	defaultPacing       = 300 * time.Millisecond
	defaultLoginStagger = time.Second

	progressLogInterval = 8 * 1024 * 1024
)

// Outcome is the terminal state of one segment window.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// State labels the orchestrator's lifecycle for the status API.
type State string

const (
	StateIdle     State = "idle"
	StatePlanning State = "planning"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// Job wraps a window with its scheduling metadata. Ownership transfers
// through the queue; only the holding worker touches it.
type Job struct {
	Window   plan.Window
	Source   string // VOD file name covering the window
	Attempts int
	LastErr  error

	backoff backoff.BackOff
}

// Result is produced exactly once per terminal job state.
type Result struct {
	Window   plan.Window
	Outcome  Outcome
	Bytes    int64
	Duration time.Duration
	Attempts int
	Err      error
}

// Failure describes one window that exhausted its attempts.
type Failure struct {
	Window   plan.Window
	Attempts int
	Reason   string
}

// Summary is the final report of a run. Partial success is a valid
// outcome; failed windows become re-attemptable by simply re-running,
// since completed windows skip.
type Summary struct {
	Planned   int
	Completed int
	Skipped   int
	Failed    int
	Bytes     int64
	Elapsed   time.Duration
	Failures  []Failure
}

// OK reports whether every planned window reached the output store.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Progress is a point-in-time snapshot of a run, served by the status API.
type Progress struct {
	State     State     `json:"state"`
	Channel   int       `json:"channel"`
	Date      string    `json:"date,omitempty"`
	Quality   string    `json:"quality,omitempty"`
	Total     int64     `json:"total"`
	Completed int64     `json:"completed"`
	Skipped   int64     `json:"skipped"`
	Failed    int64     `json:"failed"`
	Bytes     int64     `json:"bytes"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type Orchestrator struct {
	store    *outputstore.Store
	sessions *SessionPool
	retry    *RetryPolicy
	journal  storage.SegmentWriteRepository
	tel      *telemetry.Telemetry

	workers      int
	fetchTimeout time.Duration
	pacing       time.Duration
	loginStagger time.Duration

	state                     atomic.Value // State
	total, completed, skipped atomic.Int64
	failed, bytes             atomic.Int64

	mu         sync.Mutex
	runChannel int
	runDate    string
	runQuality string
	startedAt  time.Time
}

type Option func(*Orchestrator)

// WithWorkers sets the worker (and therefore device session) count.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithJournal records terminal results in a segment journal.
func WithJournal(j storage.SegmentWriteRepository) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithTelemetry wires metric recording.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.tel = tel }
}

// WithFetchTimeout bounds each transfer attempt so a stuck stream cannot
// block drain.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithPacing sets the per-worker delay between consecutive fetches.
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) { o.pacing = d }
}

// WithLoginStagger spaces out worker logins.
func WithLoginStagger(d time.Duration) Option {
	return func(o *Orchestrator) { o.loginStagger = d }
}

func New(store *outputstore.Store, sessions *SessionPool, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		sessions:     sessions,
		retry:        NewRetryPolicy(DefaultMaxAttempts),
		workers:      DefaultWorkers,
		fetchTimeout: defaultFetchTimeout,
		pacing:       defaultPacing,
		loginStagger: defaultLoginStagger,
	}

	o.state.Store(StateIdle)

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Snapshot returns the current run progress.
func (o *Orchestrator) Snapshot() Progress {
	o.mu.Lock()
	channel, date, quality, startedAt := o.runChannel, o.runDate, o.runQuality, o.startedAt
	o.mu.Unlock()

	return Progress{
		State:     o.state.Load().(State),
		Channel:   channel,
		Date:      date,
		Quality:   quality,
		Total:     o.total.Load(),
		Completed: o.completed.Load(),
		Skipped:   o.skipped.Load(),
		Failed:    o.failed.Load(),
		Bytes:     o.bytes.Load(),
		StartedAt: startedAt,
	}
}

// Run downloads the full day for (channel, date, quality) and returns the
// final summary. Per-segment failures never unwind the run; only a planning
// failure, cancellation, or a run where no session could ever be
// established return an error alongside whatever summary was gathered.
func (o *Orchestrator) Run(ctx context.Context, channel int, date time.Time, quality nvr.Quality) (*Summary, error) {
	logger := logctx.LoggerFromContext(ctx)

	o.beginRun(channel, date, quality)
	o.state.Store(StatePlanning)

	windows := plan.Day(channel, date, quality)

	recordings, err := o.discover(ctx, channel, date, quality)
	if err != nil {
		o.state.Store(StateDone)

		return nil, err
	}

	jobs := buildJobs(windows, recordings)
	if len(jobs) == 0 {
		o.state.Store(StateDone)

		return nil, &PlanningError{Channel: channel, Date: date, Reason: "recordings exist but cover no plannable window"}
	}

	logger.Info("plan ready",
		"windows", len(windows),
		"recordings", len(recordings),
		"jobs", len(jobs),
		"workers", o.workers,
	)

	o.total.Store(int64(len(jobs)))
	queue := newJobQueue(jobs)
	results := make(chan Result, len(jobs))

	start := time.Now()
	o.state.Store(StateRunning)

	var established atomic.Int64

	g := new(errgroup.Group)

	for i := 0; i < o.workers; i++ {
		id := i + 1

		g.Go(func() error {
			return o.worker(ctx, id, queue, results, &established)
		})
	}

	workerErr := make(chan error, 1)

	go func() {
		workerErr <- g.Wait()
		close(results)
	}()

	summary := &Summary{Planned: len(jobs)}
	for res := range results {
		o.collect(ctx, summary, res)
	}

	werr := <-workerErr
	summary.Elapsed = time.Since(start)
	o.state.Store(StateDone)

	logger.Info("run finished",
		"completed", summary.Completed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"size", humanize.Bytes(uint64(summary.Bytes)),
		"elapsed", summary.Elapsed.Round(time.Second).String(),
	)

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	if established.Load() == 0 {
		return summary, fmt.Errorf("no device session could be established: %w", werr)
	}

	return summary, nil
}

func (o *Orchestrator) beginRun(channel int, date time.Time, quality nvr.Quality) {
	o.mu.Lock()
	o.runChannel = channel
	o.runDate = date.Format("2006-01-02")
	o.runQuality = string(quality)
	o.startedAt = time.Now()
	o.mu.Unlock()

	o.total.Store(0)
	o.completed.Store(0)
	o.skipped.Store(0)
	o.failed.Store(0)
	o.bytes.Store(0)
}

// discover asks the device which recordings exist for the day, using a
// short-lived probe session. No recordings means there is nothing to plan.
func (o *Orchestrator) discover(ctx context.Context, channel int, date time.Time, quality nvr.Quality) ([]nvr.Recording, error) {
	sess, err := o.sessions.Acquire(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("recording discovery: %w", err)
	}
	defer o.sessions.Release(ctx, sess)

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Second)

	recordings, err := sess.Recordings(ctx, channel, quality, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to search recordings: %w", err)
	}

	if len(recordings) == 0 {
		return nil, &PlanningError{Channel: channel, Date: dayStart, Reason: "device reports no recordings for this day"}
	}

	return recordings, nil
}

// buildJobs intersects the day plan with the device's recording index.
// Windows outside every recorded range have no remote artifact and produce
// no job; the rest carry the VOD file name Playback needs.
func buildJobs(windows []plan.Window, recordings []nvr.Recording) []*Job {
	jobs := make([]*Job, 0, len(windows))

	for _, w := range windows {
		for _, rec := range recordings {
			if rec.Covers(w.Start, w.End) {
				jobs = append(jobs, &Job{Window: w, Source: rec.Name})

				break
			}
		}
	}

	return jobs
}

func (o *Orchestrator) worker(ctx context.Context, id int, q *jobQueue, results chan<- Result, established *atomic.Int64) error {
	logger := logctx.LoggerFromContext(ctx).With("worker", id)

	// Simultaneous first logins trip the device's session handling, so
	// workers come up one at a time.
	if wait := time.Duration(id-1) * o.loginStagger; wait > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}

	sess, err := o.sessions.Acquire(ctx, id)
	if err != nil {
		o.tel.RecordSessionLogin("error")
		logger.Error("worker could not establish a session, its share of windows falls to the others", "err", err)

		return err
	}

	o.tel.RecordSessionLogin("success")
	o.tel.IncrementActiveSessions()

	defer func() {
		o.sessions.Release(context.WithoutCancel(ctx), sess)
		o.tel.DecrementActiveSessions()
	}()

	established.Add(1)
	logger.Debug("worker session established")

	limiter := rate.NewLimiter(rate.Every(o.pacing), 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-q.jobs:
			if !ok {
				return nil
			}

			o.process(ctx, logger, sess, limiter, job, q, results)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, sess nvr.Session, limiter *rate.Limiter, job *Job, q *jobQueue, results chan<- Result) {
	w := job.Window
	file := outputstore.FileName(w)

	// Skip check happens at dequeue time, which also guards a retried
	// window against a file that appeared since planning.
	if size, ok := o.store.Exists(w); ok {
		logger.Debug("segment already downloaded", "file", file, "size", humanize.Bytes(uint64(size)))
		o.finish(q, results, Result{Window: w, Outcome: OutcomeSkipped, Bytes: size, Attempts: job.Attempts})

		return
	}

	if err := limiter.Wait(ctx); err != nil {
		// Cancelled while pacing; the run is shutting down.
		return
	}

	job.Attempts++
	start := time.Now()

	written, err := o.fetch(ctx, logger, sess, job)
	if err == nil {
		logger.Info("segment downloaded", "file", file, "size", humanize.Bytes(uint64(written)), "attempt", job.Attempts)
		o.finish(q, results, Result{Window: w, Outcome: OutcomeCompleted, Bytes: written, Duration: time.Since(start), Attempts: job.Attempts})

		return
	}

	if ctx.Err() != nil {
		return
	}

	class := failureClass(err)
	o.tel.RecordDeviceError(class)

	if nvr.IsSessionExpired(err) {
		// The token lease ran out mid-run; re-login now so the retry
		// lands on a live session.
		if lerr := sess.Login(ctx); lerr != nil {
			logger.Warn("re-login after expired session failed", "err", lerr)
		}
	}

	decision := o.retry.OnFailure(job, err)
	if decision.Requeue {
		o.tel.RecordRetry(class)
		logger.Warn("segment failed, requeueing",
			"file", file,
			"attempt", job.Attempts,
			"class", class,
			"delay", decision.Delay.Round(time.Millisecond).String(),
			"err", err,
		)
		q.requeue(ctx, job, decision.Delay)

		return
	}

	logger.Error("segment failed permanently", "file", file, "attempts", job.Attempts, "err", err)
	o.finish(q, results, Result{Window: w, Outcome: OutcomeFailed, Duration: time.Since(start), Attempts: job.Attempts, Err: err})
}

// fetch streams one segment from the device into the output store. The
// attempt is bounded by the fetch timeout; a broken stream surfaces as
// TransferIncompleteError with the partial temp file already discarded.
func (o *Orchestrator) fetch(ctx context.Context, logger *slog.Logger, sess nvr.Session, job *Job) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	var written int64

	err := o.tel.InstrumentSegmentDownload(attemptCtx, string(job.Window.Quality), func(ctx context.Context) error {
		rc, err := sess.FetchSegment(ctx, nvr.SegmentRequest{
			Channel: job.Window.Channel,
			Source:  job.Source,
			Quality: job.Window.Quality,
			Start:   job.Window.Start,
			End:     job.Window.End,
		})
		if err != nil {
			return err
		}
		defer rc.Close()

		pr := progress.NewReader(rc, 0, progressLogInterval, func(read, total int64) {
			logger.Debug("download progress",
				"file", outputstore.FileName(job.Window),
				"downloaded", humanize.Bytes(uint64(read)),
			)
		})

		n, err := o.store.Commit(job.Window, pr)
		if err != nil {
			return &TransferIncompleteError{Path: o.store.Path(job.Window), Written: pr.TotalRead(), Err: err}
		}

		written = n

		return nil
	})

	return written, err
}

// finish reports a terminal result exactly once and counts the job down.
func (o *Orchestrator) finish(q *jobQueue, results chan<- Result, res Result) {
	switch res.Outcome {
	case OutcomeCompleted:
		o.completed.Add(1)
		o.bytes.Add(res.Bytes)
	case OutcomeSkipped:
		o.skipped.Add(1)
		o.bytes.Add(res.Bytes)
	case OutcomeFailed:
		o.failed.Add(1)
	}

	results <- res

	// Once the last job is terminal the workers only have sessions left to
	// release; the status API reports that phase as draining.
	if q.terminal() {
		o.state.Store(StateDraining)
	}
}

// collect aggregates one terminal result into the summary, the journal and
// the metrics.
func (o *Orchestrator) collect(ctx context.Context, summary *Summary, res Result) {
	switch res.Outcome {
	case OutcomeCompleted:
		summary.Completed++
		summary.Bytes += res.Bytes
	case OutcomeSkipped:
		summary.Skipped++
		summary.Bytes += res.Bytes
	case OutcomeFailed:
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{
			Window:   res.Window,
			Attempts: res.Attempts,
			Reason:   res.Err.Error(),
		})
	}

	o.tel.RecordSegment(string(res.Outcome), res.Duration, res.Bytes)

	if o.journal == nil {
		return
	}

	record := storage.SegmentRecord{
		WindowKey:  res.Window.Key(),
		FilePath:   outputstore.FileName(res.Window),
		Channel:    res.Window.Channel,
		Quality:    res.Window.Quality.StreamType(),
		Outcome:    string(res.Outcome),
		Bytes:      res.Bytes,
		Attempts:   res.Attempts,
		FinishedAt: time.Now().Format(time.RFC3339),
	}
	if res.Err != nil {
		record.LastError = res.Err.Error()
	}

	if err := o.journal.RecordSegment(record); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to journal segment result", "window", res.Window.Key(), "err", err)
	}
}

func failureClass(err error) string {
	var incomplete *TransferIncompleteError

	switch {
	case nvr.IsTransient(err):
		return "overload"
	case nvr.IsSessionExpired(err):
		return "session_expired"
	case errors.As(err, &incomplete):
		return "transfer_incomplete"
	default:
		return "other"
	}
}
