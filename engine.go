package goAttend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goAttend/cache"
	"github.com/MrEthical07/goAttend/internal/rate"
	"github.com/MrEthical07/goAttend/jwt"
)

// Engine runs attendance sessions. It is safe for concurrent use once built by
// [Builder.Build].
type Engine struct {
	config  Config
	store   Store
	cache   cache.Cache
	state   *cache.State
	limiter *rate.Limiter
	qr      *jwt.Manager
	audit   *auditQueue
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

// Close flushes pending audit events and stops the audit worker.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.shutdown()
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping reports whether the cache backend is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.cache == nil {
		return ErrEngineNotReady
	}
	return e.cache.Ping(ctx)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.state == nil {
		return ErrEngineNotReady
	}
	return nil
}

// sweepBeforeRequest runs an inline reconciliation pass. Failures are logged and
// never fail the request that triggered them.
func (e *Engine) sweepBeforeRequest(ctx context.Context) {
	if !e.config.Sweeper.BeforeRequests {
		return
	}
	if _, err := e.Sweep(ctx); err != nil {
		e.logger.Warn("inline sweep failed", "error", err)
	}
}

// ownedSession loads a session and checks that teacherID owns it.
func (e *Engine) ownedSession(ctx context.Context, teacherID, sessionID string) (*Session, error) {
	if teacherID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	sess, err := e.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TeacherID != teacherID {
		return nil, ErrNotAuthorized
	}
	return sess, nil
}

// normalizeIDs trims, drops empties and de-duplicates ids keeping first-seen order.
func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func stringSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// unavailable maps cache backend failures onto ErrUnavailable.
func unavailable(err error) error {
	if errors.Is(err, cache.ErrUnavailable) && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
