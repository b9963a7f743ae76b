package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(context.Background(), 5)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}

	p2 := NewPool(context.Background(), 0)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}

	p3 := NewPool(context.Background(), -1)
	if p3.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 10

	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{id: i, executed: &executed})
	}

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}

	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_PreservesSubmissionOrder(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	// Later submissions finish first, so completion order is roughly
	// the reverse of submission order.
	count := 6
	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{
			id:       i,
			duration: time.Duration(count-i) * 10 * time.Millisecond,
		})
	}

	results := pool.Wait()

	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	for i, result := range results {
		mock := result.(*mockResult)
		if mock.id != i {
			t.Errorf("expected job %d at slot %d, got %d", i, i, mock.id)
		}
	}
}

// gaugeJob reports how many jobs run at once through a shared gauge
type gaugeJob struct {
	inFlight *int32
	peak     *int32
}

func (j *gaugeJob) Execute(ctx context.Context) Result {
	n := atomic.AddInt32(j.inFlight, 1)
	for {
		prev := atomic.LoadInt32(j.peak)
		if n <= prev || atomic.CompareAndSwapInt32(j.peak, prev, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(j.inFlight, -1)
	return &mockResult{}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	workers := 4
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var inFlight, peak int32
	jobs := 32
	for i := 0; i < jobs; i++ {
		pool.Submit(&gaugeJob{inFlight: &inFlight, peak: &peak})
	}

	results := pool.Wait()

	if len(results) != jobs {
		t.Errorf("expected %d results, got %d", jobs, len(results))
	}
	got := atomic.LoadInt32(&peak)
	if got > int32(workers) {
		t.Errorf("peak concurrency %d exceeded %d workers", got, workers)
	}
	if got <= 1 {
		t.Logf("Warning: peak concurrency was %d, expected > 1", got)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	pool.Submit(&mockJob{id: 0, shouldErr: true})
	pool.Submit(&mockJob{id: 1, shouldErr: false})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].GetError() == nil {
		t.Error("expected an error at slot 0, got nil")
	}
	if results[1].GetError() != nil {
		t.Errorf("expected no error at slot 1, got %v", results[1].GetError())
	}
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool(ctx, 2)
	pool.Start()

	count := 5
	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{id: i, duration: time.Second})
	}

	done := make(chan []Result, 1)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != count {
			t.Errorf("expected %d result slots, got %d", count, len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Wait to return promptly under a cancelled context")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	// Submit after shutdown should not panic or block
	done := make(chan struct{})
	go func() {
		pool.Submit(&mockJob{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

// blockingJob holds a worker until its context is cancelled
type blockingJob struct {
	started chan struct{}
}

func (j *blockingJob) Execute(ctx context.Context) Result {
	close(j.started)
	<-ctx.Done()
	return &mockResult{err: ctx.Err()}
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	job := &blockingJob{started: make(chan struct{})}
	pool.Submit(job)
	<-job.started

	// The job only returns when Shutdown cancels the pool context, so a
	// prompt return proves cancellation reached a running job.
	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown did not cancel the running job")
	}
}
