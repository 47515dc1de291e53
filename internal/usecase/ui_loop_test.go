package usecase

import (
	"context"
	"testing"
)

func TestUILoopRunsPostedWorkInOrder(t *testing.T) {
	t.Parallel()

	loop := newUILoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.run(ctx)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		loop.post(func() { order = append(order, i) })
	}

	var got []int
	loop.call(func() { got = append(got, order...) })

	for i, v := range got {
		if v != i {
			t.Fatalf("unexpected order: %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %v", got)
	}
}

func TestUILoopRejectsWorkAfterExit(t *testing.T) {
	t.Parallel()

	loop := newUILoop()
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		loop.run(ctx)
		close(exited)
	}()
	cancel()
	<-exited

	if loop.post(func() {}) {
		t.Fatalf("post after exit should report false")
	}
	if loop.call(func() {}) {
		t.Fatalf("call after exit should report false")
	}
}
