package generic

import (
	"context"
	"testing"
	"time"
)

func TestRepeat(t *testing.T) {
	count := 0
	f := func(time.Time) error {
		count++
		return nil
	}
	startTime := time.Now().Add(time.Millisecond)
	interval := 10 * time.Millisecond

	done := make(chan error)
	go func() {
		done <- Repeat(context.Background(), f, startTime, interval, 5)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, but got %s", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("repeat did not terminate")
	}
	if count != 5 {
		t.Fatalf("expected %d function calls, but got %d", 5, count)
	}
}

func TestRepeatCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	count := 0
	f := func(time.Time) error {
		count++
		if count == 2 {
			cancel()
		}
		return nil
	}

	err := Repeat(ctx, f, time.Now(), time.Millisecond, -1)
	if err != context.Canceled {
		t.Fatalf("expected %s, but got %v", context.Canceled, err)
	}
}
