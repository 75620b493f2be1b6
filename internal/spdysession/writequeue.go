package spdysession

import "container/heap"

// writeRequest is one pending outbound frame, queued with a priority class
// (SPDY priorities: 0 highest .. 7 lowest) and a monotonically increasing
// sequence number used to order same-priority requests FIFO.
//
// The payload is produced lazily: frame encoding (in particular, header
// compression) mutates shared, ordered zlib state, so it must happen at
// dequeue time in send order, not at enqueue time. encode is only invoked
// once, by the write loop, immediately before the bytes hit the wire.
//
// owner identifies the stream (if any) this write belongs to, so a
// cancelled/reset stream's still-queued writes can be dropped in bulk
// instead of silently encoding and sending a frame for a dead stream.
// owner is nil for session-level control frames (SETTINGS, PING, session
// WINDOW_UPDATE) that aren't tied to any one stream.
type writeRequest struct {
	class uint8
	seq   uint32
	owner *Stream

	encode func() ([]byte, error)
	result chan error
}

// itimediff compares two uint32 sequence numbers the same way smux's
// _itimediff does, so sequence wraparound after ~4 billion frames still
// orders correctly.
func itimediff(later, earlier uint32) int32 {
	return int32(later - earlier)
}

// writeHeap is a min-heap ordered by (class, seq), identical in shape to
// smux's shaperHeap: lower class number sorts first, ties broken by
// sequence order.
type writeHeap []*writeRequest

func (h writeHeap) Len() int { return len(h) }
func (h writeHeap) Less(i, j int) bool {
	if h[i].class != h[j].class {
		return h[i].class < h[j].class
	}
	return itimediff(h[j].seq, h[i].seq) > 0
}
func (h writeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *writeHeap) Push(x interface{}) {
	*h = append(*h, x.(*writeRequest))
}
func (h *writeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// writeQueue serializes concurrent stream writers into a single priority
// ordered stream of frames for the session's write loop, exactly the role
// smux's shaperLoop/chWrites pair play: producers hand a writeRequest to an
// unbuffered channel, a dedicated goroutine (the shaper) reorders whatever
// arrived in the meantime by priority and hands the winner to the sender.
type writeQueue struct {
	incoming chan *writeRequest // producers send here, unbuffered
	ready    chan *writeRequest // shaper hands the next-to-send request here
	remove   chan removeRequest // bulk-removal requests for the shaper
	die      chan struct{}

	nextSeq uint32
}

// removeRequest asks the shaper goroutine to drop every heap entry matching
// match, waking each dropped submitter with ErrStreamClosed. done is closed
// once the filter has been applied.
type removeRequest struct {
	match func(*writeRequest) bool
	done  chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		incoming: make(chan *writeRequest),
		ready:    make(chan *writeRequest),
		remove:   make(chan removeRequest),
		die:      make(chan struct{}),
	}
}

// submit hands a request to the shaper and blocks until the write loop has
// attempted to send it, returning whatever error the attempt produced.
// owner is the stream this write belongs to, or nil for a session-level
// control frame; it is what removeStream/removeStreamsAbove match against.
func (q *writeQueue) submit(owner *Stream, class uint8, encode func() ([]byte, error)) error {
	req := &writeRequest{class: class, owner: owner, encode: encode, result: make(chan error, 1)}
	select {
	case q.incoming <- req:
	case <-q.die:
		return ErrSessionClosed
	}
	select {
	case err := <-req.result:
		return err
	case <-q.die:
		return ErrSessionClosed
	}
}

// removeStream drops every write still queued for st (not yet handed to
// ready), waking each dropped submitter with ErrStreamClosed. A write
// already in flight (picked up by the write loop) is unaffected.
func (q *writeQueue) removeStream(st *Stream) {
	q.applyRemove(func(req *writeRequest) bool { return req.owner == st })
}

// removeStreamsAbove drops every queued write owned by a stream whose id
// exceeds id, used when GOAWAY aborts every stream the peer never saw.
func (q *writeQueue) removeStreamsAbove(id StreamID) {
	q.applyRemove(func(req *writeRequest) bool { return req.owner != nil && req.owner.ID() > id })
}

func (q *writeQueue) applyRemove(match func(*writeRequest) bool) {
	done := make(chan struct{})
	select {
	case q.remove <- removeRequest{match: match, done: done}:
		<-done
	case <-q.die:
	}
}

// run is the shaper goroutine: it drains whatever is waiting in incoming
// into a heap, then hands the heap's lowest-class/oldest-sequence entry to
// ready, repeating until closed. Modeled directly on smux's shaperLoop,
// which reads "everything that showed up since last time" before picking a
// winner so that a burst of high-priority writes from many goroutines
// doesn't get serialized in arrival order.
func (q *writeQueue) run() {
	var h writeHeap
	for {
		if len(h) == 0 {
			select {
			case req := <-q.incoming:
				req.seq = q.nextSeq
				q.nextSeq++
				heap.Push(&h, req)
			case rr := <-q.remove:
				q.applyToHeap(&h, rr)
			case <-q.die:
				return
			}
			continue
		}

		top := h[0]
		select {
		case req := <-q.incoming:
			req.seq = q.nextSeq
			q.nextSeq++
			heap.Push(&h, req)
		case q.ready <- top:
			heap.Pop(&h)
		case rr := <-q.remove:
			q.applyToHeap(&h, rr)
		case <-q.die:
			return
		}
	}
}

// applyToHeap filters out every heap entry rr.match accepts, waking its
// submitter with ErrStreamClosed, then restores the heap invariant. Runs
// only on the shaper goroutine, so it needs no locking of its own.
func (q *writeQueue) applyToHeap(h *writeHeap, rr removeRequest) {
	kept := (*h)[:0]
	for _, req := range *h {
		if rr.match(req) {
			req.result <- ErrStreamClosed
		} else {
			kept = append(kept, req)
		}
	}
	*h = kept
	heap.Init(h)
	close(rr.done)
}

func (q *writeQueue) close() {
	select {
	case <-q.die:
	default:
		close(q.die)
	}
}
