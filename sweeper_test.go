package goAttend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func sweepTestConfig() Config {
	cfg := testConfig()
	cfg.Sweeper.BeforeRequests = false
	return cfg
}

func TestSweepClosesExpiredSessionAndFlushesLiveSet(t *testing.T) {
	env := newTestEnv(t, sweepTestConfig())
	ctx := context.Background()
	sess := startTestSession(t, env, 3)

	if _, err := env.engine.Mark(ctx, "t1", sess.ID, []string{"s1"}); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	// Present only in the cache, as if its durable write had been lost.
	if _, err := env.engine.state.AddLive(ctx, sess.ID, "s3"); err != nil {
		t.Fatalf("AddLive failed: %v", err)
	}

	env.advance(3*time.Minute + time.Second)

	res, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(res.Closed) != 1 || res.Closed[0] != sess.ID {
		t.Fatalf("closed = %v", res.Closed)
	}
	if res.Flushed != 2 || res.Recovered != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}

	stored := env.store.session(sess.ID)
	if stored.Active {
		t.Fatal("expected session to be closed")
	}
	if !stored.EndTime.Equal(sess.EndTime) {
		t.Fatalf("swept session end = %v, want deadline %v", stored.EndTime, sess.EndTime)
	}

	rows, _ := env.store.ListAttendance(ctx, sess.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	for _, r := range rows {
		if r.StudentID == "s3" && !r.MarkedAt.Equal(sess.EndTime) {
			t.Fatalf("recovered mark at %v, want %v", r.MarkedAt, sess.EndTime)
		}
	}

	again, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if len(again.Closed) != 0 {
		t.Fatalf("expected nothing to close, got %v", again.Closed)
	}
}

func TestSweepLeavesLiveSessions(t *testing.T) {
	env := newTestEnv(t, sweepTestConfig())
	sess := startTestSession(t, env, 3)

	env.advance(2 * time.Minute)
	res, err := env.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(res.Closed) != 0 || !env.store.session(sess.ID).Active {
		t.Fatalf("expected live session untouched, got %+v", res)
	}
}

func TestInlineSweepBeforeRequests(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	sess := startTestSession(t, env, 3)

	env.advance(4 * time.Minute)
	if _, err := env.engine.Extend(ctx, "t1", sess.ID, 5); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("expected inline sweep to close the session first, got %v", err)
	}
	if env.store.session(sess.ID).Active {
		t.Fatal("expected session to be closed")
	}
}

func TestEndAndSweepRaceNeverDuplicates(t *testing.T) {
	env := newTestEnv(t, sweepTestConfig())
	ctx := context.Background()

	const rounds = 20
	for i := 0; i < rounds; i++ {
		sess := startTestSession(t, env, 3)
		if _, err := env.engine.Mark(ctx, "t1", sess.ID, []string{"s1", "s2"}); err != nil {
			t.Fatalf("Mark failed: %v", err)
		}
		if _, err := env.engine.state.AddLive(ctx, sess.ID, "s3"); err != nil {
			t.Fatalf("AddLive failed: %v", err)
		}
		env.clock.Advance(3*time.Minute + time.Second)

		var (
			wg       sync.WaitGroup
			endErr   error
			sweepRes *SweepResult
			sweepErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, endErr = env.engine.End(ctx, "t1", sess.ID)
		}()
		go func() {
			defer wg.Done()
			sweepRes, sweepErr = env.engine.Sweep(ctx)
		}()
		wg.Wait()

		if sweepErr != nil {
			t.Fatalf("round %d: Sweep failed: %v", i, sweepErr)
		}
		endWon := endErr == nil
		if endErr != nil && !errors.Is(endErr, ErrConflictIgnored) {
			t.Fatalf("round %d: End failed: %v", i, endErr)
		}
		sweepWon := len(sweepRes.Closed) == 1
		if endWon == sweepWon {
			t.Fatalf("round %d: expected exactly one closer, end=%v sweep=%v", i, endWon, sweepWon)
		}

		if n, _ := env.store.CountAttendance(ctx, sess.ID); n != 3 {
			t.Fatalf("round %d: expected 3 rows, got %d", i, n)
		}
	}

	if got := env.store.insertCount(); got != rounds*3 {
		t.Fatalf("expected %d inserts, got %d", rounds*3, got)
	}
}

func TestConcurrentSweepsCloseOnce(t *testing.T) {
	env := newTestEnv(t, sweepTestConfig())
	ctx := context.Background()
	startTestSession(t, env, 3)
	startTestSession(t, env, 3)
	env.clock.Advance(time.Hour)

	const sweepers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
	)
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.engine.Sweep(ctx)
			if err != nil {
				t.Errorf("Sweep failed: %v", err)
				return
			}
			mu.Lock()
			closed += len(res.Closed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if closed != 2 {
		t.Fatalf("expected 2 closures across sweepers, got %d", closed)
	}
}

func TestSweeperRunUntilCancelled(t *testing.T) {
	cfg := sweepTestConfig()
	cfg.Sweeper.Interval = 5 * time.Millisecond
	env := newTestEnv(t, cfg)
	sess := startTestSession(t, env, 3)
	env.clock.Advance(4 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.engine.NewSweeper().Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for env.store.session(sess.ID).Active {
		select {
		case <-deadline:
			cancel()
			t.Fatal("sweeper did not close the session")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// listHookStore runs onList once after listing expired sessions, between the
// sweep's read and its state transition.
type listHookStore struct {
	*memStore
	once   sync.Once
	onList func()
}

func (s *listHookStore) ListExpiredSessions(ctx context.Context, now time.Time) ([]Session, error) {
	out, err := s.memStore.ListExpiredSessions(ctx, now)
	s.once.Do(s.onList)
	return out, err
}

func TestSweepLosesToExtendAfterListing(t *testing.T) {
	env := newTestEnv(t, sweepTestConfig())
	ctx := context.Background()
	sess := startTestSession(t, env, 3)

	env.advance(3*time.Minute + time.Second)

	var extended *Session
	var extendErr error
	env.engine.store = &listHookStore{memStore: env.store, onList: func() {
		extended, extendErr = env.engine.Extend(ctx, "t1", sess.ID, 10)
	}}

	res, err := env.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if extendErr != nil {
		t.Fatalf("Extend failed: %v", extendErr)
	}
	if len(res.Closed) != 0 {
		t.Fatalf("extended session was swept: %v", res.Closed)
	}

	stored := env.store.session(sess.ID)
	if !stored.Active {
		t.Fatal("expected extended session to stay active")
	}
	if !stored.EndTime.Equal(extended.EndTime) || !stored.EndTime.Equal(sess.EndTime.Add(10*time.Minute)) {
		t.Fatalf("end = %v, want %v", stored.EndTime, sess.EndTime.Add(10*time.Minute))
	}
	if !env.mr.Exists("activeSession:" + sess.ID) {
		t.Fatal("expected cache entry to survive the sweep")
	}
}
