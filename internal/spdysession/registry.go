package spdysession

import (
	"container/list"
	"sync"
	"time"
)

// pushedStreamEntry records an unclaimed server-pushed stream, evicted on
// claim, on the stream closing, or by the session's periodic sweep once
// older than PushedStreamMinLifetime.
type pushedStreamEntry struct {
	id      StreamID
	created time.Time
}

// pendingCreateRequest is one caller-visible CreateStream call waiting for
// concurrency headroom.
type pendingCreateRequest struct {
	typ      StreamType
	path     string
	priority uint8
	result   chan createResult
	posted   bool // not consulted; cancelPending always searches the queue
}

type createResult struct {
	stream *Stream
	err    error
}

// registry holds every stream-indexed map the session core consults:
// active streams by id, created-but-not-activated streams awaiting their
// first dequeue, unclaimed pushed streams by URL, and the per-priority
// pending create-stream queues.
type registry struct {
	mu sync.Mutex

	active  map[StreamID]*Stream
	created map[*Stream]struct{}

	unclaimedPush map[string]pushedStreamEntry
	pushByID      map[StreamID]string // reverse index for sweep/erroring

	pending [8]*list.List // one FIFO per priority 0..7
}

func newRegistry() *registry {
	r := &registry{
		active:        make(map[StreamID]*Stream),
		created:       make(map[*Stream]struct{}),
		unclaimedPush: make(map[string]pushedStreamEntry),
		pushByID:      make(map[StreamID]string),
	}
	for i := range r.pending {
		r.pending[i] = list.New()
	}
	return r
}

func (r *registry) addCreated(st *Stream) {
	r.mu.Lock()
	r.created[st] = struct{}{}
	r.mu.Unlock()
}

// activate promotes a stream from the created set to active[id], called
// the moment its first SYN_STREAM is dequeued by the write loop.
func (r *registry) activate(st *Stream, id StreamID) {
	r.mu.Lock()
	delete(r.created, st)
	r.active[id] = st
	r.mu.Unlock()
}

func (r *registry) addPushed(st *Stream, id StreamID, url string) {
	r.mu.Lock()
	r.active[id] = st
	r.unclaimedPush[url] = pushedStreamEntry{id: id, created: now()}
	r.pushByID[id] = url
	r.mu.Unlock()
}

func (r *registry) byID(id StreamID) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.active[id]
	return st, ok
}

// claimPush looks the URL up, removes the unclaimed entry, and returns
// the live stream. If the id is absent from active (the maps are out of
// sync - a protocol bug), return false rather than panicking.
func (r *registry) claimPush(url string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.unclaimedPush[url]
	if !ok {
		return nil, false
	}
	delete(r.unclaimedPush, url)
	delete(r.pushByID, entry.id)
	st, ok := r.active[entry.id]
	return st, ok
}

func (r *registry) removePush(id StreamID) {
	r.mu.Lock()
	if url, ok := r.pushByID[id]; ok {
		delete(r.unclaimedPush, url)
		delete(r.pushByID, id)
	}
	r.mu.Unlock()
}

// sweepExpiredPush evicts pushed-stream entries older than minLifetime
// that remain unclaimed; it does not close the underlying stream, it only
// stops offering it for claiming (mirroring a pure TTL index eviction).
func (r *registry) sweepExpiredPush(minLifetime time.Duration) {
	cutoff := now().Add(-minLifetime)
	r.mu.Lock()
	defer r.mu.Unlock()
	for url, entry := range r.unclaimedPush {
		if entry.created.Before(cutoff) {
			delete(r.unclaimedPush, url)
			delete(r.pushByID, entry.id)
		}
	}
}

func (r *registry) remove(st *Stream, id StreamID) {
	r.mu.Lock()
	delete(r.created, st)
	delete(r.active, id)
	if url, ok := r.pushByID[id]; ok {
		delete(r.unclaimedPush, url)
		delete(r.pushByID, id)
	}
	r.mu.Unlock()
}

func (r *registry) enqueuePending(req *pendingCreateRequest) {
	r.mu.Lock()
	r.pending[req.priority&7].PushBack(req)
	r.mu.Unlock()
}

// dequeueHighestPending pops the oldest request from the highest
// non-empty priority queue (7 is lowest, 0 is highest in the list above,
// so priority order is scanned ascending), or returns nil if all empty.
func (r *registry) dequeueHighestPending() *pendingCreateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := 0; p < len(r.pending); p++ {
		if front := r.pending[p].Front(); front != nil {
			r.pending[p].Remove(front)
			return front.Value.(*pendingCreateRequest)
		}
	}
	return nil
}

func (r *registry) cancelPending(req *pendingCreateRequest) {
	r.mu.Lock()
	for e := r.pending[req.priority&7].Front(); e != nil; e = e.Next() {
		if e.Value.(*pendingCreateRequest) == req {
			r.pending[req.priority&7].Remove(e)
			break
		}
	}
	r.mu.Unlock()
}

func (r *registry) hasUnclaimed(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.unclaimedPush[url]
	return ok
}

// snapshotActive returns a point-in-time copy of every active stream, used
// by SETTINGS handling to apply a window resize without holding the
// registry lock across each stream's own lock.
func (r *registry) snapshotActive() []*Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Stream, 0, len(r.active))
	for _, st := range r.active {
		out = append(out, st)
	}
	return out
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active) + len(r.created)
}

// drainAll empties every map/queue, used by close_session_on_error; it
// returns everything found so the caller can fail/close each exactly once
// outside the registry lock.
func (r *registry) drainAll() (active []*Stream, created []*Stream, pending []*pendingCreateRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.active {
		active = append(active, st)
	}
	for st := range r.created {
		created = append(created, st)
	}
	for _, q := range r.pending {
		for e := q.Front(); e != nil; e = e.Next() {
			pending = append(pending, e.Value.(*pendingCreateRequest))
		}
		q.Init()
	}
	r.active = make(map[StreamID]*Stream)
	r.created = make(map[*Stream]struct{})
	r.unclaimedPush = make(map[string]pushedStreamEntry)
	r.pushByID = make(map[StreamID]string)
	return active, created, pending
}

func now() time.Time { return time.Now() }
