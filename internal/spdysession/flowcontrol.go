package spdysession

import "sync"

// window tracks one direction of flow control for either a stream or,
// in STREAM_AND_SESSION mode, the whole session. It mirrors the modular
// accounting idiom used for smux's per-stream windows: rather than
// decrementing a single counter on send and incrementing it on every
// WINDOW_UPDATE (which is easy to get wrong across concurrent goroutines),
// it tracks monotonic counters of bytes written and bytes the peer has
// told us it consumed, and derives the usable window as their
// (intentionally wraparound-safe, via int32 subtraction) difference.
type window struct {
	mu sync.Mutex

	size int32 // negotiated window size (initial, updated by SETTINGS)

	written  uint32 // total bytes sent, mod 2^32
	consumed uint32 // total bytes peer has acknowledged consuming, mod 2^32

	wakeup chan struct{} // signaled whenever consumed or size increases
}

func newWindow(initial int32) *window {
	return &window{size: initial, wakeup: make(chan struct{}, 1)}
}

// available returns how many bytes may still be sent without exceeding
// the peer's advertised window.
func (w *window) available() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.availableLocked()
}

func (w *window) availableLocked() int32 {
	inflight := int32(w.written - w.consumed)
	avail := w.size - inflight
	if avail < 0 {
		return 0
	}
	return avail
}

// reserve consumes n bytes of window after a successful send.
func (w *window) reserve(n int32) {
	w.mu.Lock()
	w.written += uint32(n)
	w.mu.Unlock()
}

// onWindowUpdate applies a peer-advertised delta (WINDOW_UPDATE frame) and
// wakes any writer blocked waiting for room.
func (w *window) onWindowUpdate(delta uint32) {
	w.mu.Lock()
	w.consumed += delta // equivalent to increasing the effective window; see availableLocked
	w.mu.Unlock()
	w.notify()
}

// onSettingsResize applies a new initial window size carried by SETTINGS
// INITIAL_WINDOW_SIZE. A resize changes capacity for already-open streams
// immediately; a shrink can leave no room (availableLocked reports 0) until
// the peer catches up consuming in-flight bytes.
func (w *window) onSettingsResize(newSize int32) {
	w.mu.Lock()
	w.size = newSize
	w.mu.Unlock()
	w.notify()
}

func (w *window) notify() {
	select {
	case w.wakeup <- struct{}{}:
	default:
	}
}

// waitChan returns the channel a blocked writer should select on; it is
// signalled whenever the window may have grown.
func (w *window) waitChan() <-chan struct{} {
	return w.wakeup
}

// receiveWindow tracks the local (inbound) side: how many bytes have
// arrived and how many the application has read, so the session knows
// when to emit a WINDOW_UPDATE back to the peer.
type receiveWindow struct {
	mu sync.Mutex

	limit     int32
	received  uint32 // total bytes arrived, mod 2^32, for the inflight check
	delivered uint32 // total bytes handed to the application, mod 2^32

	// pendingCredit is bytes delivered to the application since the last
	// WINDOW_UPDATE was sent; it is what gets credited back, not the
	// running inflight total, and is reset to 0 on every credit. Mirrors
	// smux's tryReadV2 incr accumulator (reset after each notify) rather
	// than rederiving the delta from received-delivered, which goes
	// negative (and wraps through uint32) the moment a reset has
	// happened and the application keeps reading in smaller chunks.
	pendingCredit int32
}

func newReceiveWindow(limit int32) *receiveWindow {
	return &receiveWindow{limit: limit}
}

// onDataReceived records arrival of n bytes. It returns false (a flow
// control violation) if the peer has now sent more than the advertised
// window allows.
func (r *receiveWindow) onDataReceived(n int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received += uint32(n)
	inflight := int32(r.received - r.delivered)
	return inflight <= r.limit
}

// consume marks n bytes as delivered to the application and returns the
// WINDOW_UPDATE delta to send back, or 0 if none is due yet. Grounded in
// smux's tryReadV2 idiom of only crediting back window once at least half
// of it has been consumed, to avoid one WINDOW_UPDATE per read call.
func (r *receiveWindow) consume(n int32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered += uint32(n)
	r.pendingCredit += n
	if r.pendingCredit >= r.limit/2 {
		credit := uint32(r.pendingCredit)
		r.pendingCredit = 0
		return credit
	}
	return 0
}
