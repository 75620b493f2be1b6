package spdysession

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// fakePeer answers one client session over the other half of a net.Pipe,
// using the package's own frame codec directly so it speaks exactly the
// wire format the Session under test expects.
type fakePeer struct {
	conn  net.Conn
	codec *headerCodec
}

func newFakePeer(t *testing.T, conn net.Conn) *fakePeer {
	t.Helper()
	codec, err := newHeaderCodec(Version3)
	if err != nil {
		t.Fatalf("newHeaderCodec: %v", err)
	}
	return &fakePeer{conn: conn, codec: codec}
}

// nextSynStream reads frames, discarding SETTINGS/WINDOW_UPDATE/PING
// housekeeping frames the session sends on its own, until it sees the next
// SYN_STREAM or the deadline (via test timeout) expires.
func (p *fakePeer) nextSynStream(t *testing.T) synStreamFrame {
	t.Helper()
	for {
		h, err := readFrameHeader(p.conn)
		if err != nil {
			t.Fatalf("fakePeer: read frame header: %v", err)
		}
		body := make([]byte, h.length)
		if _, err := readFull(p.conn, body); err != nil {
			t.Fatalf("fakePeer: read frame body: %v", err)
		}
		if h.control && h.typ == FrameSynStream {
			f, _, err := decodeSynStream(body, h.flags, p.codec)
			if err != nil {
				t.Fatalf("fakePeer: decode SYN_STREAM: %v", err)
			}
			return f
		}
	}
}

// nextRstStream reads the next frame, discarding housekeeping frames, until
// it sees a RST_STREAM.
func (p *fakePeer) nextRstStream(t *testing.T) rstStreamFrame {
	t.Helper()
	for {
		h, err := readFrameHeader(p.conn)
		if err != nil {
			t.Fatalf("fakePeer: read frame header: %v", err)
		}
		body := make([]byte, h.length)
		if _, err := readFull(p.conn, body); err != nil {
			t.Fatalf("fakePeer: read frame body: %v", err)
		}
		if h.control && h.typ == FrameRstStream {
			f, err := decodeRstStream(body)
			if err != nil {
				t.Fatalf("fakePeer: decode RST_STREAM: %v", err)
			}
			return f
		}
	}
}

func (p *fakePeer) sendSynStream(t *testing.T, streamID, associatedTo StreamID, url string) {
	t.Helper()
	pairs := []headerPair{{Name: "url", Value: url}}
	f := synStreamFrame{StreamID: streamID, AssociatedTo: associatedTo}
	if err := encodeSynStream(p.conn, Version3, f, pairs, p.codec); err != nil {
		t.Fatalf("fakePeer: encode SYN_STREAM: %v", err)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *fakePeer) sendSynReply(t *testing.T, streamID StreamID, pairs []headerPair, fin bool) {
	t.Helper()
	var flags ControlFlags
	if fin {
		flags = FlagFin
	}
	if err := encodeSynReply(p.conn, Version3, synReplyFrame{StreamID: streamID, Flags: flags}, pairs, p.codec); err != nil {
		t.Fatalf("fakePeer: encode SYN_REPLY: %v", err)
	}
}

func (p *fakePeer) sendData(t *testing.T, streamID StreamID, data []byte, fin bool) {
	t.Helper()
	var flags DataFlags
	if fin {
		flags = DataFlagFin
	}
	if err := encodeData(p.conn, dataFrame{StreamID: streamID, Flags: flags, Data: data}); err != nil {
		t.Fatalf("fakePeer: encode DATA: %v", err)
	}
}

func newTestSession(t *testing.T) (*Session, *fakePeer) {
	t.Helper()
	clientConn, peerConn := net.Pipe()

	sess, err := NewSession(clientConn, &Config{EnablePing: false}, "peer:443")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	peer := newFakePeer(t, peerConn)
	return sess, peer
}

func TestCreateStreamRoundTrip(t *testing.T) {
	sess, peer := newTestSession(t)

	type result struct {
		st  *Stream
		err error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := sess.CreateStream(ctx, StreamBidirectional, "https://example.com/", 3)
		done <- result{st, err}
	}()

	f := peer.nextSynStream(t)
	if f.Priority != 3 {
		t.Fatalf("SYN_STREAM priority = %d, want 3", f.Priority)
	}
	peer.sendSynReply(t, f.StreamID, []headerPair{{Name: "status", Value: "200"}}, false)
	peer.sendData(t, f.StreamID, []byte("hello"), true)

	res := <-done
	if res.err != nil {
		t.Fatalf("CreateStream: %v", res.err)
	}
	st := res.st

	hdrs, err := st.Headers()
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if got := hdrs.Get("status"); got != "200" {
		t.Fatalf("status header = %q, want 200", got)
	}

	buf := make([]byte, 64)
	n, err := st.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello")
	}

	n, err = st.Read(buf)
	if n != 0 {
		t.Fatalf("Read after FIN returned %d bytes, want 0", n)
	}
	if err == nil {
		t.Fatal("Read after FIN should return an error (EOF-equivalent)")
	}
}

func TestCreateStreamBlocksOnConcurrencyCapThenPromotes(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	sess, err := NewSession(clientConn, &Config{EnablePing: false, MaxConcurrentStreams: 1}, "peer:443")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	peer := newFakePeer(t, peerConn)

	firstDone := make(chan error, 1)
	go func() {
		_, err := sess.CreateStream(context.Background(), StreamBidirectional, "/first", 0)
		firstDone <- err
	}()
	first := peer.nextSynStream(t)

	second := make(chan error, 1)
	go func() {
		_, err := sess.CreateStream(context.Background(), StreamBidirectional, "/second", 0)
		second <- err
	}()

	select {
	case <-second:
		t.Fatal("second CreateStream should block while the cap is exhausted")
	case <-time.After(100 * time.Millisecond):
	}

	// Closing the first stream (reply + FIN) should free a slot and let the
	// pending request's SYN_STREAM go out.
	peer.sendSynReply(t, first.StreamID, nil, true)

	secondFrame := peer.nextSynStream(t)
	if secondFrame.StreamID == first.StreamID {
		t.Fatal("second stream should get a fresh stream id")
	}
	peer.sendSynReply(t, secondFrame.StreamID, nil, true)

	if err := <-second; err != nil {
		t.Fatalf("second CreateStream: %v", err)
	}
}

func TestSessionRejectsClientInitiatedPush(t *testing.T) {
	sess, peer := newTestSession(t)

	// Any inbound SYN_STREAM with an odd id must be refused: only even
	// (server push) ids are legal on a stream this session never opened.
	if err := encodeSynStream(peer.conn, Version3, synStreamFrame{StreamID: 1, AssociatedTo: 0}, nil, peer.codec); err != nil {
		t.Fatalf("encode SYN_STREAM: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("session did not close after an odd-id inbound SYN_STREAM")
		default:
		}
		if sess.AvailabilityState() == SessionClosed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sess.Err() == nil {
		t.Fatal("session should record the protocol error that closed it")
	}
}

func TestCrossOriginPushRejectedWithoutTrustedProxy(t *testing.T) {
	sess, peer := newTestSession(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := sess.CreateStream(ctx, StreamBidirectional, "https://a/", 0)
		done <- err
	}()
	assoc := peer.nextSynStream(t)
	peer.sendSynReply(t, assoc.StreamID, nil, false)

	// The associated stream is https://a/, the pushed resource is
	// https://b/: a different origin, and no TrustedProxyHost is
	// configured, so the push must be refused.
	peer.sendSynStream(t, 2, assoc.StreamID, "https://b/")

	rst := peer.nextRstStream(t)
	if rst.StreamID != 2 {
		t.Fatalf("RST_STREAM id = %d, want 2", rst.StreamID)
	}
	if rst.Status != RSTRefusedStream {
		t.Fatalf("RST_STREAM status = %v, want RSTRefusedStream", rst.Status)
	}
	if _, err := sess.ClaimPushedStream("https://b/"); err != ErrUnclaimedPush {
		t.Fatalf("ClaimPushedStream = %v, want ErrUnclaimedPush", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
}

func TestCrossOriginPushAllowedForTrustedProxyHost(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	sess, err := NewSession(clientConn, &Config{EnablePing: false, TrustedProxyHost: "peer:443"}, "peer:443")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	peer := newFakePeer(t, peerConn)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := sess.CreateStream(ctx, StreamBidirectional, "https://a/", 0)
		done <- err
	}()
	assoc := peer.nextSynStream(t)
	peer.sendSynReply(t, assoc.StreamID, nil, false)

	// Session is connected to the configured trusted-proxy host, so it may
	// push a resource from a different origin than the associated stream.
	peer.sendSynStream(t, 2, assoc.StreamID, "https://b/")

	st, err := pollClaimPushedStream(t, sess, "https://b/")
	if err != nil {
		t.Fatalf("ClaimPushedStream: %v", err)
	}
	if st == nil {
		t.Fatal("ClaimPushedStream returned a nil stream")
	}

	if err := <-done; err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
}

func TestCreateStreamRefusedAfterStreamIDExhaustion(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	sess, err := NewSession(clientConn, &Config{EnablePing: false, MaxStreamIDForTest: 5}, "peer:443")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	peer := newFakePeer(t, peerConn)

	type result struct {
		st  *Stream
		err error
	}
	results := make(chan result, 4)
	go func() {
		for i := 0; i < 4; i++ {
			st, err := sess.CreateStream(context.Background(), StreamBidirectional, "/x", 0)
			results <- result{st, err}
		}
	}()

	// Ids 1, 3, 5 exhaust a id space capped at 5; each must still succeed.
	for i := 0; i < 3; i++ {
		f := peer.nextSynStream(t)
		peer.sendSynReply(t, f.StreamID, nil, true)
		res := <-results
		if res.err != nil {
			t.Fatalf("CreateStream #%d: %v", i, res.err)
		}
	}

	// The 4th call must be refused outright, with no SYN_STREAM emitted.
	res := <-results
	if res.err != ErrStreamIDExhausted {
		t.Fatalf("4th CreateStream = %v, want ErrStreamIDExhausted", res.err)
	}
}

// pollClaimPushedStream retries ClaimPushedStream briefly: the pushed
// SYN_STREAM is processed by the session's read loop asynchronously.
func pollClaimPushedStream(t *testing.T, sess *Session, url string) (*Stream, error) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st, err := sess.ClaimPushedStream(url)
		if err == nil {
			return st, nil
		}
		select {
		case <-deadline:
			return nil, err
		case <-time.After(5 * time.Millisecond):
		}
	}
}
