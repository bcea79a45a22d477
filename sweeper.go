package goAttend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Sweep closes every active session whose deadline passed without an explicit End
// and flushes its live set. Swept sessions keep their deadline as end time.
//
// Sweep holds no state between calls and is safe to run concurrently with itself
// and with End; losers of a race skip the session.
func (e *Engine) Sweep(ctx context.Context) (*SweepResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.reconcile(ctx, e.now())
}

func (e *Engine) reconcile(ctx context.Context, now time.Time) (*SweepResult, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveSweep(time.Since(started)) }()

	expired, err := e.store.ListExpiredSessions(ctx, now)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{}
	var errs []error
	for i := range expired {
		sess := &expired[i]
		out, err := e.closeSession(ctx, sess, sess.EndTime, now)
		if errors.Is(err, ErrConflictIgnored) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
			continue
		}

		res.Closed = append(res.Closed, sess.ID)
		res.Flushed += out.Flushed
		res.Recovered += out.Recovered
		e.metricInc(MetricSessionSwept)
		e.emitAudit(ctx, auditEventSessionSwept, true, sess.TeacherID, sess.ID, nil, func() map[string]string {
			return map[string]string{
				"flushed":   strconv.Itoa(out.Flushed),
				"recovered": strconv.Itoa(out.Recovered),
			}
		})
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.emitAudit(ctx, auditEventSweepFailed, false, "", "", err, func() map[string]string {
			return map[string]string{"failures": strconv.Itoa(len(errs))}
		})
		return res, err
	}
	return res, nil
}

// Sweeper runs [Engine.Sweep] on a fixed interval.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper returns a Sweeper for e using the configured interval.
func (e *Engine) NewSweeper() *Sweeper {
	return &Sweeper{
		engine:   e,
		interval: e.config.Sweeper.Interval,
		logger:   e.logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil || s.engine == nil {
		return ErrEngineNotReady
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.pass(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	res, err := s.engine.Sweep(ctx)
	if err != nil {
		s.logger.Warn("sweep pass failed", "error", err)
	}
	if res == nil {
		return
	}
	if len(res.Closed) > 0 {
		s.logger.Info("expired sessions closed", "count", len(res.Closed), "flushed", res.Flushed, "recovered", res.Recovered)
		return
	}
	s.logger.Debug("sweep pass complete")
}
