package optics

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool(4)
	if pool == nil {
		t.Fatal("Expected non-nil worker pool")
	}
	if pool.Workers() != 4 {
		t.Errorf("Expected 4 workers, got %d", pool.Workers())
	}
}

func TestNewWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	if pool.Workers() <= 0 {
		t.Errorf("Expected default worker count to be positive, got %d", pool.Workers())
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	jobs := make([]func(), 5)
	for i := range jobs {
		jobs[i] = func() {
			mu.Lock()
			counter++
			mu.Unlock()
		}
	}

	pool.Run(jobs)

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestWorkerPool_StartOnce(t *testing.T) {
	pool := NewWorkerPool(2)

	// Start should be idempotent
	pool.Start()
	pool.Start()
	defer pool.Close()

	var executed atomic.Bool
	pool.Run([]func(){
		func() { executed.Store(true) },
	})

	if !executed.Load() {
		t.Error("Expected job to be executed")
	}
}

func TestWorkerPool_RunWaitsForBatchOnly(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Start()
	defer pool.Close()

	results := make([]int, 16)
	jobs := make([]func(), len(results))
	for i := range jobs {
		i := i
		jobs[i] = func() { results[i] = i * i }
	}

	pool.Run(jobs)

	for i, got := range results {
		if got != i*i {
			t.Errorf("Expected results[%d]=%d, got %d", i, i*i, got)
		}
	}
}

func TestWorkerPool_ConcurrentBatches(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var wg sync.WaitGroup
	var total atomic.Int64
	for b := 0; b < 8; b++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs := make([]func(), 10)
			for i := range jobs {
				jobs[i] = func() { total.Add(1) }
			}
			pool.Run(jobs)
		}()
	}
	wg.Wait()

	if total.Load() != 80 {
		t.Errorf("Expected 80 executed jobs, got %d", total.Load())
	}
}

func TestWorkerPool_ClosedPoolRunsInline(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Close()
	pool.Close() // second close must not panic

	if pool.Submit(func() {}) {
		t.Error("Expected Submit on a closed pool to report false")
	}

	var ran atomic.Int64
	pool.Run([]func(){
		func() { ran.Add(1) },
		func() { ran.Add(1) },
	})
	if ran.Load() != 2 {
		t.Errorf("Expected closed pool to run 2 jobs inline, ran %d", ran.Load())
	}
}

func TestWorkerPool_AtomicCounters(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Close()

	const numJobs = 5
	jobs := make([]func(), numJobs)
	for i := range jobs {
		jobs[i] = func() {
			for j := 0; j < 1000; j++ {
				_ = j * j
			}
		}
	}

	pool.Run(jobs)

	// Counters are updated after each job body returns
	deadline := time.Now().Add(time.Second)
	for pool.GetStats().ActiveWorkers > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for pool.GetStats().CompletedJobs < numJobs && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	stats := pool.GetStats()
	if stats.TotalJobs != numJobs {
		t.Errorf("Expected %d total jobs, got %d", numJobs, stats.TotalJobs)
	}
	if stats.CompletedJobs != numJobs {
		t.Errorf("Expected %d completed jobs, got %d", numJobs, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", stats.ActiveWorkers)
	}
}
