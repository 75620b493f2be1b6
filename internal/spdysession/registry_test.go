package spdysession

import "testing"

func TestRegistryActivateAndByID(t *testing.T) {
	r := newRegistry()
	st := newStream(nil, StreamBidirectional, 3, "/foo", 1024, 1024)

	r.addCreated(st)
	if r.count() != 1 {
		t.Fatalf("count() after addCreated = %d, want 1", r.count())
	}

	r.activate(st, 1)
	if _, ok := r.byID(1); !ok {
		t.Fatal("byID(1) should find the activated stream")
	}
	if r.count() != 1 {
		t.Fatalf("count() after activate = %d, want 1", r.count())
	}
}

func TestRegistryPushClaim(t *testing.T) {
	r := newRegistry()
	st := newStream(nil, StreamPush, 3, "/push.css", 1024, 1024)

	r.addPushed(st, 2, "https://example.com/push.css")
	if !r.hasUnclaimed("https://example.com/push.css") {
		t.Fatal("hasUnclaimed should report the pushed URL")
	}

	claimed, ok := r.claimPush("https://example.com/push.css")
	if !ok || claimed != st {
		t.Fatal("claimPush should return the pushed stream exactly once")
	}
	if r.hasUnclaimed("https://example.com/push.css") {
		t.Fatal("claimPush should remove the entry")
	}
	if _, ok := r.claimPush("https://example.com/push.css"); ok {
		t.Fatal("a second claimPush for the same URL should fail")
	}
}

func TestRegistryPendingPriorityOrder(t *testing.T) {
	r := newRegistry()
	low := &pendingCreateRequest{priority: 7}
	high := &pendingCreateRequest{priority: 0}
	mid := &pendingCreateRequest{priority: 3}

	r.enqueuePending(low)
	r.enqueuePending(high)
	r.enqueuePending(mid)

	if got := r.dequeueHighestPending(); got != high {
		t.Fatal("dequeueHighestPending should return the priority-0 request first")
	}
	if got := r.dequeueHighestPending(); got != mid {
		t.Fatal("dequeueHighestPending should return the priority-3 request next")
	}
	if got := r.dequeueHighestPending(); got != low {
		t.Fatal("dequeueHighestPending should return the priority-7 request last")
	}
	if got := r.dequeueHighestPending(); got != nil {
		t.Fatal("dequeueHighestPending should return nil once empty")
	}
}

func TestRegistryRemoveClearsPushIndex(t *testing.T) {
	r := newRegistry()
	st := newStream(nil, StreamPush, 3, "/x", 1024, 1024)
	r.addPushed(st, 2, "https://example.com/x")

	r.remove(st, 2)
	if r.hasUnclaimed("https://example.com/x") {
		t.Fatal("remove should also clear the pushed-URL index")
	}
	if _, ok := r.byID(2); ok {
		t.Fatal("remove should delete the stream from active")
	}
}
