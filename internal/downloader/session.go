package downloader

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/reolink-tools/daygrab/internal/logctx"
	"github.com/reolink-tools/daygrab/internal/nvr"
)

// SessionFactory produces an unauthenticated device session.
type SessionFactory func() nvr.Session

// SessionPool owns the device authentication lifecycle. Sessions are never
// shared or reused across workers: each worker authenticates once and holds
// its session for the whole run, so live device sessions never exceed the
// worker count.
type SessionPool struct {
	dial SessionFactory

	active atomic.Int64
	logins atomic.Int64
}

func NewSessionPool(dial SessionFactory) *SessionPool {
	return &SessionPool{dial: dial}
}

// Acquire logs a fresh session in and hands the caller exclusive ownership.
func (p *SessionPool) Acquire(ctx context.Context, workerID int) (nvr.Session, error) {
	sess := p.dial()

	if err := sess.Login(ctx); err != nil {
		return nil, fmt.Errorf("worker %d session login: %w", workerID, err)
	}

	p.active.Add(1)
	p.logins.Add(1)

	return sess, nil
}

// Release logs the session out and frees its device-side slot. Logout
// failures are logged, not propagated: the lease expires on its own and the
// run's outcome does not depend on it.
func (p *SessionPool) Release(ctx context.Context, sess nvr.Session) {
	p.active.Add(-1)

	if err := sess.Logout(ctx); err != nil {
		logctx.LoggerFromContext(ctx).Warn("session logout failed", "err", err)
	}
}

// Active returns the number of live sessions.
func (p *SessionPool) Active() int64 {
	return p.active.Load()
}

// Logins returns the number of successful logins over the pool's lifetime.
func (p *SessionPool) Logins() int64 {
	return p.logins.Load()
}
