package spdysession

import "testing"

func TestWindowAvailableAndReserve(t *testing.T) {
	w := newWindow(1024)
	if got := w.available(); got != 1024 {
		t.Fatalf("available() = %d, want 1024", got)
	}

	w.reserve(600)
	if got := w.available(); got != 424 {
		t.Fatalf("available() after reserve(600) = %d, want 424", got)
	}

	w.reserve(500)
	if got := w.available(); got != 0 {
		t.Fatalf("available() should clamp to 0 when oversubscribed, got %d", got)
	}
}

func TestWindowOnWindowUpdate(t *testing.T) {
	w := newWindow(1024)
	w.reserve(1024)
	if got := w.available(); got != 0 {
		t.Fatalf("available() = %d, want 0", got)
	}

	w.onWindowUpdate(512)
	if got := w.available(); got != 512 {
		t.Fatalf("available() after WINDOW_UPDATE(512) = %d, want 512", got)
	}

	select {
	case <-w.waitChan():
	default:
		t.Fatal("onWindowUpdate should signal waitChan")
	}
}

func TestWindowOnSettingsResize(t *testing.T) {
	w := newWindow(1024)
	w.reserve(1024)

	w.onSettingsResize(2048)
	if got := w.available(); got != 1024 {
		t.Fatalf("available() after resize to 2048 with 1024 in flight = %d, want 1024", got)
	}

	w.onSettingsResize(100)
	if got := w.available(); got != 0 {
		t.Fatalf("available() should clamp to 0 when the new size is below bytes in flight, got %d", got)
	}
}

func TestReceiveWindowOnDataReceived(t *testing.T) {
	r := newReceiveWindow(100)
	if ok := r.onDataReceived(50); !ok {
		t.Fatal("onDataReceived(50) within a 100-byte window should be accepted")
	}
	if ok := r.onDataReceived(60); ok {
		t.Fatal("onDataReceived pushing inflight to 110 over a 100-byte window should be rejected")
	}
}

func TestReceiveWindowConsumeCreditsAtHalfWindow(t *testing.T) {
	r := newReceiveWindow(100)
	r.onDataReceived(100)

	if delta := r.consume(40); delta != 0 {
		t.Fatalf("consume(40) leaves pendingCredit at 40 (< limit/2=50), want no credit, got %d", delta)
	}
	if delta := r.consume(20); delta != 60 {
		t.Fatalf("consume(20) should bring pendingCredit to 60 (>= limit/2=50) and credit all 60 back, got %d", delta)
	}
	if delta := r.consume(10); delta != 0 {
		t.Fatalf("pendingCredit should have reset to 0 after the previous credit, got an immediate %d", delta)
	}
}

// TestReceiveWindowConsumeManySmallReadsAfterReset guards against rederiving
// the credit from received-delivered: once that difference has been reset
// by a credit, it goes negative (and wraps through uint32) as soon as
// delivered keeps climbing while received stays put, which is exactly what
// happens when an application reads a window in chunks much smaller than
// the window itself.
func TestReceiveWindowConsumeManySmallReadsAfterReset(t *testing.T) {
	const window = 64 * 1024
	const chunk = 8 * 1024
	r := newReceiveWindow(window)
	r.onDataReceived(window)

	var totalCredited uint32
	for i := 0; i < window/chunk; i++ {
		delta := r.consume(chunk)
		if delta > window {
			t.Fatalf("consume(%d) returned an absurd credit %d (window is %d) — looks wrapped", chunk, delta, window)
		}
		totalCredited += delta
	}
	if totalCredited != window {
		t.Fatalf("total credited across all reads = %d, want %d", totalCredited, window)
	}
}
