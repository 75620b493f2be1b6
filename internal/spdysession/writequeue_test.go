package spdysession

import (
	"testing"
	"time"
)

func TestWriteQueueOrdersByPriority(t *testing.T) {
	q := newWriteQueue()
	go q.run()
	defer q.close()

	order := make(chan uint8, 3)
	results := make([]chan error, 3)
	for i := range results {
		results[i] = make(chan error, 1)
	}

	// Submit is synchronous (it blocks for a result), so drive each one
	// from its own goroutine and let a single consumer pick the winner by
	// priority off q.ready, exactly as the write loop does.
	go func() { _ = q.submit(nil, 7, func() ([]byte, error) { return nil, nil }) }()
	go func() { _ = q.submit(nil, 0, func() ([]byte, error) { return nil, nil }) }()
	go func() { _ = q.submit(nil, 3, func() ([]byte, error) { return nil, nil }) }()

	// Let all three accumulate in the shaper's heap before anyone drains
	// q.ready, so the dequeue order reflects priority rather than arrival
	// order (the shaper only reorders whatever is already waiting).
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case req := <-q.ready:
			order <- req.class
			req.result <- nil
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a ready write request")
		}
	}
	close(order)

	var got []uint8
	for c := range order {
		got = append(got, c)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 3 || got[2] != 7 {
		t.Fatalf("dequeue order = %v, want [0 3 7]", got)
	}
}

func TestWriteQueueCloseUnblocksSubmit(t *testing.T) {
	q := newWriteQueue()
	go q.run()

	done := make(chan error, 1)
	go func() {
		done <- q.submit(nil, 0, func() ([]byte, error) { return nil, nil })
	}()

	// Give submit time to be parked waiting on a consumer, then close
	// without anyone ever reading q.ready.
	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case err := <-done:
		if err != ErrSessionClosed {
			t.Fatalf("submit after close = %v, want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not unblock a pending submit")
	}
}
