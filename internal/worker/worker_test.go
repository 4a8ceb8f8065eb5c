package worker

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		p.Go(func() error {
			count.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if count.Load() != 20 {
		t.Fatalf("ran %d tasks, want 20", count.Load())
	}
}

func TestPoolContinuesAfterFailure(t *testing.T) {
	p := New(2)
	var count atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 10; i++ {
		i := i
		p.Go(func() error {
			count.Add(1)
			if i%3 == 0 {
				return boom
			}
			return nil
		})
	}
	err := p.Wait()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !errors.Is(err, ErrWorkerFailure) {
		t.Errorf("expected ErrWorkerFailure, got %v", err)
	}
	if count.Load() != 10 {
		t.Fatalf("ran %d tasks, want all 10 to complete despite failures", count.Load())
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	p := New(1)
	p.Go(func() error {
		panic("nope")
	})
	err := p.Wait()
	if err == nil {
		t.Fatal("expected recovered panic to surface as an error")
	}
}
