// Command dmutexstress hammers a shared counter from many goroutines and checks
// that no increment was lost.
//
// Usage:
//
//	dmutexstress -goroutines 64 -iterations 10000 -timed 0.25 -timeout 1ms
//
// With -mutex sync, -mutex ticket or -mutex mcs the same workload runs against
// sync.Mutex, the ticket lock or the MCS queue lock for comparison. Timed acquisitions are only available for dmutex.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/ahrav/go-dmutex/dmutex"
	"github.com/ahrav/go-dmutex/mcs"
	"github.com/ahrav/go-dmutex/ticket"
)

type config struct {
	goroutines int
	iterations int
	timed      float64
	timeout    time.Duration
	work       int
	mutex      string
}

// locker is a lock under test. Each goroutine of a run gets its own worker.
type locker interface {
	newWorker() worker
}

// worker runs one critical section, reporting false if it could not acquire the lock.
type worker interface {
	do(timed bool, timeout time.Duration, fn func()) bool
}

type distributed struct{ mu dmutex.Mutex }

func (d *distributed) newWorker() worker { return d }

func (d *distributed) do(timed bool, timeout time.Duration, fn func()) bool {
	var p dmutex.Proxy
	if timed {
		if p = d.mu.TryLockFor(timeout); !p.Ok() {
			return false
		}
	} else {
		p = d.mu.Lock()
	}
	fn()
	d.mu.Unlock(&p)
	return true
}

type standard struct{ mu sync.Mutex }

func (s *standard) newWorker() worker { return s }

func (s *standard) do(_ bool, _ time.Duration, fn func()) bool {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	return true
}

type fair struct{ mu ticket.Lock }

func (f *fair) newWorker() worker { return f }

func (f *fair) do(_ bool, _ time.Duration, fn func()) bool {
	f.mu.Lock()
	fn()
	f.mu.Unlock()
	return true
}

// queued hands every worker its own queue node.
type queued struct{ mu mcs.Lock }

func (q *queued) newWorker() worker { return &queuedWorker{mu: &q.mu} }

type queuedWorker struct {
	mu   *mcs.Lock
	node mcs.QNode
}

func (w *queuedWorker) do(_ bool, _ time.Duration, fn func()) bool {
	w.mu.Lock(&w.node)
	fn()
	w.mu.Unlock(&w.node)
	return true
}

func newLocker(kind string) (locker, error) {
	switch kind {
	case "dmutex":
		return new(distributed), nil
	case "sync":
		return new(standard), nil
	case "ticket":
		return new(fair), nil
	case "mcs":
		return new(queued), nil
	default:
		return nil, fmt.Errorf("unknown mutex %q (want dmutex, sync, ticket or mcs)", kind)
	}
}

type result struct {
	counter  int
	timedOut int64
	elapsed  time.Duration
}

func run(cfg config, l locker) result {
	var (
		counter  int
		timedOut atomic.Int64
		wg       sync.WaitGroup
	)

	start := time.Now()
	wg.Add(cfg.goroutines)
	for i := 0; i < cfg.goroutines; i++ {
		go func() {
			defer wg.Done()
			w := l.newWorker()
			for range cfg.iterations {
				timed := cfg.timed > 0 && rand.Float64() < cfg.timed
				ok := w.do(timed, cfg.timeout, func() {
					counter++
					for range cfg.work {
						// Simulate work inside the critical section.
					}
				})
				if !ok {
					timedOut.Inc()
				}
			}
		}()
	}
	wg.Wait()

	return result{counter: counter, timedOut: timedOut.Load(), elapsed: time.Since(start)}
}

func main() {
	var cfg config
	flag.IntVar(&cfg.goroutines, "goroutines", 64, "number of competing goroutines")
	flag.IntVar(&cfg.iterations, "iterations", 10000, "critical sections per goroutine")
	flag.Float64Var(&cfg.timed, "timed", 0, "fraction of acquisitions made with TryLockFor")
	flag.DurationVar(&cfg.timeout, "timeout", time.Millisecond, "timeout of timed acquisitions")
	flag.IntVar(&cfg.work, "work", 0, "busy loop iterations inside each critical section")
	flag.StringVar(&cfg.mutex, "mutex", "dmutex", "lock under test: dmutex, sync, ticket or mcs")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	l, err := newLocker(cfg.mutex)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.timed > 0 && cfg.mutex != "dmutex" {
		log.Printf("ignoring -timed=%v: %s has no timed acquisition", cfg.timed, cfg.mutex)
		cfg.timed = 0
	}

	log.Printf("running %d goroutines x %d iterations on %s", cfg.goroutines, cfg.iterations, cfg.mutex)
	res := run(cfg, l)

	total := cfg.goroutines * cfg.iterations
	want := total - int(res.timedOut)
	log.Printf("elapsed %v, %.1f ns/op, %d timed out",
		res.elapsed, float64(res.elapsed.Nanoseconds())/float64(total), res.timedOut)
	if res.counter != want {
		log.Printf("counter = %d, want %d: increments were lost", res.counter, want)
		os.Exit(1)
	}
	log.Printf("counter = %d, ok", res.counter)
}
