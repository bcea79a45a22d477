// Command attend-loadtest measures scan and live view latency against an
// in-process engine backed by SQLite and Redis (or miniredis).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/store/gormstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type liveSession struct {
	id       string
	teacher  string
	students []string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20, "number of concurrent attendance sessions")
		classSize   = flag.Int("class-size", 120, "students per session class")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (scan + live)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dsn         = flag.String("dsn", "file:attend-loadtest?mode=memory&cache=shared", "sqlite dsn")
	)
	flag.Parse()

	if *sessions <= 0 || *classSize <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, class-size, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store, err := gormstore.Open(gormstore.DriverSQLite, *dsn, gormstore.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	cfg := goAttend.DefaultConfig()
	cfg.QR.PrivateKey = []byte("attend-loadtest-secret-attend-loadtest")
	cfg.QR.ImageSize = 0
	cfg.Scan.EnableThrottle = false
	cfg.Metrics.Enabled = false
	cfg.Session.DefaultDuration = time.Hour
	engine, err := goAttend.New().WithConfig(cfg).WithRedis(client).WithStore(store).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions of %d students...\n", *sessions, *classSize)
	startSeed := time.Now()
	live, err := seed(ctx, store, engine, *sessions, *classSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	scanStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		s := live[r.Intn(len(live))]
		code, err := engine.IssueQR(ctx, s.teacher, s.id)
		if err != nil {
			return err
		}
		_, err = engine.Scan(ctx, s.students[r.Intn(len(s.students))], code.Token)
		return err
	})
	liveStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		s := live[r.Intn(len(live))]
		_, err := engine.LiveView(ctx, s.teacher, s.id)
		return err
	})

	fmt.Println("---- results ----")
	printStats("qr+scan", scanStats)
	printStats("live", liveStats)
}

func seed(ctx context.Context, store *gormstore.Store, engine *goAttend.Engine, sessions, classSize int) ([]liveSession, error) {
	out := make([]liveSession, 0, sessions)
	for i := 0; i < sessions; i++ {
		classID := fmt.Sprintf("class-%d", i)
		courseID := fmt.Sprintf("course-%d", i)
		teacherID := fmt.Sprintf("teacher-%d", i)

		if err := store.SaveClass(ctx, goAttend.Class{ID: classID, Name: classID}); err != nil {
			return nil, err
		}
		if err := store.SaveCourse(ctx, goAttend.Course{ID: courseID, Name: courseID, TeacherID: teacherID, ClassIDs: []string{classID}}); err != nil {
			return nil, err
		}
		students := make([]string, 0, classSize)
		for j := 0; j < classSize; j++ {
			id := fmt.Sprintf("student-%d-%d", i, j)
			if err := store.SaveStudent(ctx, goAttend.Student{ID: id, FirstName: "S", LastName: id, MIS: id, ClassID: classID}); err != nil {
				return nil, err
			}
			students = append(students, id)
		}

		sess, err := engine.Start(ctx, teacherID, courseID, []string{classID}, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, liveSession{id: sess.ID, teacher: teacherID, students: students})
	}
	return out, nil
}

func runPhase(ops, concurrency int, salt int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*salt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
