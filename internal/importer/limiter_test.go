package importer

import (
	"context"
	"testing"
	"time"
)

func TestRunLimiter(t *testing.T) {
	l := newRunLimiter(2)

	if !l.tryAcquire() || !l.tryAcquire() {
		t.Fatal("could not fill the limiter")
	}
	if l.tryAcquire() {
		t.Error("acquired beyond the cap")
	}
	if got := l.activeRuns(); got != 2 {
		t.Errorf("activeRuns = %d, want 2", got)
	}

	l.release()
	if !l.tryAcquire() {
		t.Error("released slot not reusable")
	}
	l.release()
	l.release()
	if got := l.activeRuns(); got != 0 {
		t.Errorf("activeRuns = %d, want 0", got)
	}
}

func TestRunLimiter_Drain(t *testing.T) {
	l := newRunLimiter(1)
	l.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.drain(ctx); err == nil {
		t.Error("drain returned while a run was active")
	}

	l.release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := l.drain(ctx2); err != nil {
		t.Errorf("drain after release: %v", err)
	}
}

func TestRunLimiter_ZeroMaxUsesDefault(t *testing.T) {
	l := newRunLimiter(0)
	for i := 0; i < 4; i++ {
		if !l.tryAcquire() {
			t.Fatalf("acquire %d failed under default cap", i)
		}
	}
	if l.tryAcquire() {
		t.Error("default cap not enforced")
	}
}
