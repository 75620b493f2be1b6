package spdysession

import (
	"io"
	"net/http"
	"sync"
)

// Stream is one logical request/response or server-push exchange
// multiplexed over a Session.
type Stream struct {
	session *Session

	id       StreamID
	typ      StreamType
	priority uint8
	path     string

	sendWindow *window
	recvWindow *receiveWindow

	mu              sync.Mutex
	state           StreamState
	waitingSynReply bool
	sendStalled     bool
	closeStatus     CloseStatus
	closeErr        error

	headers         http.Header
	headersCond     chan struct{} // closed once reply headers arrive
	headersCondOnce sync.Once

	readBuf  []byte
	readCond chan struct{} // signaled on new data / close
	readEOF  bool

	dieOnce sync.Once
	die     chan struct{}
}

func newStream(s *Session, typ StreamType, priority uint8, path string, sendInitial int32, recvInitial int32) *Stream {
	return &Stream{
		session:     s,
		typ:         typ,
		priority:    priority,
		path:        path,
		sendWindow:  newWindow(sendInitial),
		recvWindow:  newReceiveWindow(recvInitial),
		state:       StreamCreated,
		headers:     make(http.Header),
		headersCond: make(chan struct{}),
		readCond:    make(chan struct{}, 1),
		die:         make(chan struct{}),
	}
}

// ID returns the stream's wire id, or 0 if it has not yet been activated
// (its first SYN_STREAM has not been dequeued by the write loop).
func (st *Stream) ID() StreamID {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.id
}

// State returns the stream's current lifecycle state.
func (st *Stream) State() StreamState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Priority reports the stream's SPDY priority (0 highest).
func (st *Stream) Priority() uint8 { return st.priority }

// Path reports the URL path the stream was created with.
func (st *Stream) Path() string { return st.path }

// Headers blocks until the peer's SYN_REPLY (or, for push streams, the
// initiating SYN_STREAM) headers have arrived, or the stream closes first.
func (st *Stream) Headers() (http.Header, error) {
	select {
	case <-st.headersCond:
	case <-st.die:
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.headers == nil {
		return nil, st.closeErr
	}
	return st.headers, nil
}

// Read implements io.Reader over the stream's inbound DATA payload.
func (st *Stream) Read(p []byte) (int, error) {
	for {
		st.mu.Lock()
		if len(st.readBuf) > 0 {
			n := copy(p, st.readBuf)
			st.readBuf = st.readBuf[n:]
			st.mu.Unlock()
			st.creditWindow(int32(n))
			return n, nil
		}
		if st.readEOF {
			err := st.closeErr
			st.mu.Unlock()
			if err == nil {
				return 0, io.EOF
			}
			return 0, err
		}
		st.mu.Unlock()

		select {
		case <-st.readCond:
		case <-st.die:
			st.mu.Lock()
			err := st.closeErr
			st.mu.Unlock()
			if err == nil {
				err = ErrStreamClosed
			}
			return 0, err
		}
	}
}

func (st *Stream) creditWindow(n int32) {
	if delta := st.recvWindow.consume(n); delta > 0 {
		st.session.sendWindowUpdate(st.id, delta)
	}
}

// Write implements io.Writer, splitting the payload into MaxDataFrameChunk
// sized DATA frames and blocking on flow control exactly as smux's
// writeV2 does: compute inflight = written - peerConsumed, block on the
// window's wakeup channel (or a WINDOW_UPDATE, or stream/session close)
// whenever no room remains.
func (st *Stream) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxDataFrameChunk {
			chunk = chunk[:MaxDataFrameChunk]
		}

		n, err := st.writeChunk(chunk)
		total += n
		p = p[n:]
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeChunk blocks until at least part of chunk fits in the current send
// window (stream-level, and session-level in STREAM_AND_SESSION mode),
// then hands the affordable prefix to the session's write queue.
func (st *Stream) writeChunk(chunk []byte) (int, error) {
	for {
		avail := st.sendWindow.available()
		if st.session.flowControlMode == FlowControlStreamAndSession {
			if sessAvail := st.session.sendWindow.available(); sessAvail < avail {
				avail = sessAvail
			}
		}
		if avail <= 0 {
			st.mu.Lock()
			st.sendStalled = true
			st.mu.Unlock()

			select {
			case <-st.sendWindow.waitChan():
			case <-st.session.sendWindow.waitChan():
			case <-st.die:
				return 0, ErrStreamClosed
			}
			continue
		}

		n := len(chunk)
		if int32(n) > avail {
			n = int(avail)
		}
		st.sendWindow.reserve(int32(n))
		if st.session.flowControlMode == FlowControlStreamAndSession {
			st.session.sendWindow.reserve(int32(n))
		}

		err := st.session.writeData(st, chunk[:n], 0)
		return n, err
	}
}

// CloseWrite sends a zero-length DATA frame with FIN set, half-closing the
// local write direction without discarding unread inbound data.
func (st *Stream) CloseWrite() error {
	return st.session.writeData(st, nil, DataFlagFin)
}

// Close cancels the stream: if the peer might still be sending, an
// RST_STREAM(CANCEL) is emitted; all pending writes for this stream are
// dropped (an already in-flight one is allowed to complete so the
// transport is not left mid-frame), and the stream transitions to CLOSED.
func (st *Stream) Close() error {
	st.mu.Lock()
	alreadyClosed := st.state == StreamClosed
	st.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	return st.session.resetStream(st, RSTCancel, CloseCanceled)
}

// deliverHeaders is called by the session on SYN_REPLY/HEADERS receipt (or,
// for push streams, on the initiating SYN_STREAM itself). firstReply marks
// the frame that satisfies a blocked Headers() caller and opens the
// stream; later HEADERS frames only add to the accumulated header set.
func (st *Stream) deliverHeaders(h http.Header, firstReply bool) {
	st.mu.Lock()
	for k, vs := range h {
		for _, v := range vs {
			st.headers.Add(k, v)
		}
	}
	if firstReply {
		st.waitingSynReply = false
		st.state = StreamOpen
	}
	st.mu.Unlock()

	if firstReply {
		st.headersCondOnce.Do(func() { close(st.headersCond) })
	}
}

// deliverData appends inbound DATA payload and wakes any blocked Read.
func (st *Stream) deliverData(p []byte, fin bool) {
	st.mu.Lock()
	if len(p) > 0 {
		st.readBuf = append(st.readBuf, p...)
	}
	if fin {
		st.readEOF = true
	}
	st.mu.Unlock()

	select {
	case st.readCond <- struct{}{}:
	default:
	}
}

// onWindowUpdate applies an inbound WINDOW_UPDATE to this stream's send
// window and wakes a blocked writer.
func (st *Stream) onWindowUpdate(delta uint32) {
	st.sendWindow.onWindowUpdate(delta)
	st.mu.Lock()
	st.sendStalled = false
	st.mu.Unlock()
}

// onClose terminally transitions the stream to CLOSED and wakes every
// blocked Read/Write/Headers caller; only the first call has any effect.
func (st *Stream) onClose(status CloseStatus, err error) {
	st.dieOnce.Do(func() {
		st.mu.Lock()
		st.state = StreamClosed
		st.closeStatus = status
		st.closeErr = err
		st.readEOF = true
		st.mu.Unlock()
		close(st.die)
		st.headersCondOnce.Do(func() { close(st.headersCond) })
		select {
		case st.readCond <- struct{}{}:
		default:
		}
	})
}
