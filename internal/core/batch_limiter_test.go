package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBatchLimiter_AcquireRelease(t *testing.T) {
	limiter := NewBatchLimiter(2, time.Second)
	ctx := context.Background()

	var releases []func()
	for i := 0; i < 2; i++ {
		release, err := limiter.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		releases = append(releases, release)
	}
	if st := limiter.Status(); st.Active != 2 || st.Available != 0 {
		t.Errorf("Status = %+v, want 2 active, 0 available", st)
	}

	for _, release := range releases {
		release()
		release() // second call is a no-op
	}
	if st := limiter.Status(); st.Active != 0 || st.Available != 2 {
		t.Errorf("after release, Status = %+v, want 0 active, 2 available", st)
	}
}

func TestBatchLimiter_TimesOutWhenFull(t *testing.T) {
	limiter := NewBatchLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	release, err := limiter.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = limiter.Acquire(ctx)
	if !errors.Is(err, ErrTooManyBatches) {
		t.Fatalf("expected ErrTooManyBatches, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timed out too fast: %v", elapsed)
	}
}

func TestBatchLimiter_NeverExceedsMax(t *testing.T) {
	const maxConcurrent = 2
	limiter := NewBatchLimiter(maxConcurrent, time.Second)

	var (
		mu          sync.Mutex
		maxObserved int
	)
	limiter.Observe(func(active int) {
		mu.Lock()
		maxObserved = max(maxObserved, active)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := limiter.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer release()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("observed %d active, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("final Active = %d, want 0", got)
	}
}

func TestBatchLimiter_Observe(t *testing.T) {
	limiter := NewBatchLimiter(2, time.Second)

	var seen []int
	limiter.Observe(func(active int) { seen = append(seen, active) })

	r1, _ := limiter.Acquire(context.Background())
	r2, ok := limiter.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire should succeed with a free slot")
	}
	r2()
	r1()

	want := []int{1, 2, 1, 0}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observed %v, want %v", seen, want)
			break
		}
	}
}

func TestBatchLimiter_TryAcquire(t *testing.T) {
	limiter := NewBatchLimiter(1, time.Second)

	release, ok := limiter.TryAcquire()
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	if r, ok := limiter.TryAcquire(); ok {
		t.Error("second TryAcquire should fail")
		r()
	}
	release()
	release, ok = limiter.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire after release should succeed")
	}
	release()
}

func TestBatchLimiter_ContextCancellation(t *testing.T) {
	limiter := NewBatchLimiter(1, 5*time.Second)
	release, err := limiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := limiter.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after cancellation")
	}
}

func TestBatchLimiter_WaitForDrain(t *testing.T) {
	limiter := NewBatchLimiter(2, time.Second)
	release, _ := limiter.Acquire(context.Background())

	done := make(chan error, 1)
	go func() { done <- limiter.WaitForDrain(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitForDrain returned while a batch was active")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForDrain returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not complete")
	}
}

func TestBatchLimiter_WaitForDrainTimeout(t *testing.T) {
	limiter := NewBatchLimiter(1, time.Second)
	release, _ := limiter.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain = %v, want deadline exceeded", err)
	}
}

func TestBatchLimiter_WaitForDrainIdle(t *testing.T) {
	limiter := NewBatchLimiter(1, time.Second)
	if err := limiter.WaitForDrain(context.Background()); err != nil {
		t.Errorf("idle WaitForDrain returned %v", err)
	}
}

func TestBatchLimiter_Defaults(t *testing.T) {
	st := NewBatchLimiter(0, 0).Status()
	if st.MaxConcurrent != DefaultMaxConcurrentBatches {
		t.Errorf("MaxConcurrent = %d, want %d", st.MaxConcurrent, DefaultMaxConcurrentBatches)
	}
}
