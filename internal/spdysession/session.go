package spdysession

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Config bundles every tunable a Session needs at construction.
type Config struct {
	Version ProtocolVersion

	// Role selects which stream ids we assign: client sessions hand out
	// odd ids, server sessions hand out even ids for push.
	IsServer bool

	FlowControlMode FlowControlMode

	StreamInitialWindow  int32
	SessionInitialWindow int32

	MaxConcurrentStreams int
	MaxConcurrentPush    int

	EnablePing               bool
	ConnectionAtRiskInterval time.Duration
	HungInterval             time.Duration

	TrustedProxyHost string // required to accept cross-origin https push

	// MaxStreamIDForTest overrides MaxStreamID when nonzero, letting a test
	// exercise the stream-id-exhaustion refusal path without emitting
	// billions of frames first.
	MaxStreamIDForTest StreamID

	Pool       Pool
	Properties PropertiesStore
	Events     EventSink
}

// DefaultConfig returns the settings a new Session uses when the caller
// leaves a Config field at its zero value.
func DefaultConfig() *Config {
	return &Config{
		Version:                  Version3,
		FlowControlMode:          FlowControlStreamAndSession,
		StreamInitialWindow:      DefaultStreamInitialWindow,
		SessionInitialWindow:     DefaultSessionInitialWindow,
		MaxConcurrentStreams:     DefaultMaxConcurrentStreams,
		MaxConcurrentPush:        DefaultMaxConcurrentPush,
		EnablePing:               true,
		ConnectionAtRiskInterval: DefaultConnectionAtRiskInterval,
		HungInterval:             DefaultHungInterval,
	}
}

func (c *Config) fill() {
	if c.Version == 0 {
		c.Version = Version3
	}
	if c.StreamInitialWindow == 0 {
		c.StreamInitialWindow = DefaultStreamInitialWindow
	}
	if c.SessionInitialWindow == 0 {
		c.SessionInitialWindow = DefaultSessionInitialWindow
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if c.MaxConcurrentPush == 0 {
		c.MaxConcurrentPush = DefaultMaxConcurrentPush
	}
	if c.ConnectionAtRiskInterval == 0 {
		c.ConnectionAtRiskInterval = DefaultConnectionAtRiskInterval
	}
	if c.HungInterval == 0 {
		c.HungInterval = DefaultHungInterval
	}
	if c.Pool == nil {
		c.Pool = nopPool{}
	}
	if c.Properties == nil {
		c.Properties = nopProperties{}
	}
	if c.Events == nil {
		c.Events = nopEvents{}
	}
}

// Session multiplexes Streams over one Transport.
type Session struct {
	cfg     *Config
	conn    Transport
	reader  *bufio.Reader
	hostKey string

	state int32 // AvailabilityState, accessed atomically

	flowControlMode FlowControlMode
	sendWindow      *window // session-level, STREAM_AND_SESSION only
	recvWindow      *receiveWindow

	registry *registry
	writeq   *writeQueue

	readCodec  *headerCodec
	writeCodec *headerCodec
	codecMu    sync.Mutex // serializes writeCodec.compress across writers

	nextStreamIDMu sync.Mutex
	nextStreamID   StreamID
	idExhausted    bool
	maxStreamID    StreamID

	maxConcurrent int32 // atomic; may shrink via SETTINGS

	pingMu       sync.Mutex
	nextPingID   uint32
	pingsInFlight int
	lastActivity atomic.Value // time.Time

	lastGoodStreamID StreamID

	die      chan struct{}
	dieOnce  sync.Once
	closeErr atomic.Value // error

	wg sync.WaitGroup
}

// NewSession constructs a Session and starts its read and write loops.
// hostKey identifies the remote endpoint ("host:port") for properties
// lookups and pool bookkeeping.
func NewSession(conn Transport, cfg *Config, hostKey string) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.fill()

	readCodec, err := newHeaderCodec(cfg.Version)
	if err != nil {
		return nil, err
	}
	writeCodec, err := newHeaderCodec(cfg.Version)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:             cfg,
		conn:            conn,
		reader:          bufio.NewReaderSize(conn, ReadBufferSize),
		hostKey:         hostKey,
		flowControlMode: cfg.FlowControlMode,
		sendWindow:      newWindow(cfg.SessionInitialWindow),
		recvWindow:      newReceiveWindow(cfg.SessionInitialWindow),
		registry:        newRegistry(),
		writeq:          newWriteQueue(),
		readCodec:       readCodec,
		writeCodec:      writeCodec,
		maxConcurrent:   int32(cfg.MaxConcurrentStreams),
		maxStreamID:     MaxStreamID,
		die:             make(chan struct{}),
	}
	if cfg.MaxStreamIDForTest != 0 {
		s.maxStreamID = cfg.MaxStreamIDForTest
	}
	if s.cfg.IsServer {
		s.nextStreamID = 2
	} else {
		s.nextStreamID = 1
	}
	s.lastActivity.Store(time.Now())

	s.wg.Add(3)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		defer s.wg.Done()
		s.writeq.run()
	}()

	if s.cfg.EnablePing {
		go s.pingLoop()
	}
	go func() {
		ticker := time.NewTicker(PushedStreamMinLifetime)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.registry.sweepExpiredPush(PushedStreamMinLifetime)
			case <-s.die:
				return
			}
		}
	}()

	s.cfg.Events.OnSessionOpen(s)
	go s.sendInitialSettings()

	return s, nil
}

func (s *Session) markActivity() { s.lastActivity.Store(time.Now()) }

func (s *Session) availability() AvailabilityState {
	return AvailabilityState(atomic.LoadInt32(&s.state))
}

func (s *Session) setAvailability(state AvailabilityState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// sendInitialSettings emits the session's opening SETTINGS frame (and any
// remembered per-host values). NewSession runs it once on its own goroutine,
// so construction does not wait for the peer to read the frames.
func (s *Session) sendInitialSettings() {
	settings := settingsFrame{Settings: []Setting{
		{ID: SettingMaxConcurrentStreams, Value: uint32(s.cfg.MaxConcurrentPush)},
		{ID: SettingInitialWindowSize, Value: uint32(s.cfg.StreamInitialWindow)},
	}}
	_ = s.writeq.submit(nil, 0, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := encodeSettings(&buf, s.cfg.Version, settings); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})

	if s.flowControlMode == FlowControlStreamAndSession {
		s.sendWindowUpdate(0, uint32(s.cfg.SessionInitialWindow))
	}

	if remembered, ok := s.cfg.Properties.GetSettings(s.hostKey); ok && len(remembered) > 0 {
		_ = s.writeq.submit(nil, 0, func() ([]byte, error) {
			var buf bytes.Buffer
			if err := encodeSettings(&buf, s.cfg.Version, settingsFrame{Settings: remembered}); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		})
	}
}

// CreateStream opens a new stream, succeeding immediately if under the
// concurrency cap, otherwise blocking (subject to ctx) until capacity
// frees up or the session closes.
func (s *Session) CreateStream(ctx context.Context, typ StreamType, path string, priority uint8) (*Stream, error) {
	if s.availability() == SessionClosed {
		return nil, ErrSessionClosed
	}
	if s.availability() == SessionGoingAway {
		return nil, ErrGoingAway
	}

	if s.streamIDsExhausted() {
		return nil, ErrStreamIDExhausted
	}

	if int32(s.registry.count()) < atomic.LoadInt32(&s.maxConcurrent) {
		return s.activateNewStream(typ, path, priority), nil
	}

	req := &pendingCreateRequest{typ: typ, path: path, priority: priority, result: make(chan createResult, 1)}
	s.registry.enqueuePending(req)

	select {
	case res := <-req.result:
		return res.stream, res.err
	case <-ctx.Done():
		s.registry.cancelPending(req)
		return nil, ctx.Err()
	case <-s.die:
		s.registry.cancelPending(req)
		return nil, ErrSessionClosed
	}
}

func (s *Session) activateNewStream(typ StreamType, path string, priority uint8) *Stream {
	st := newStream(s, typ, priority, path, s.cfg.StreamInitialWindow, s.cfg.StreamInitialWindow)
	st.waitingSynReply = true
	s.registry.addCreated(st)
	s.enqueueSynStream(st)
	return st
}

// enqueueSynStream schedules the stream's opening frame; the stream id is
// assigned lazily, only once the write loop actually dequeues it.
func (s *Session) enqueueSynStream(st *Stream) {
	_ = s.writeq.submit(st, st.priority, func() ([]byte, error) {
		st.mu.Lock()
		if st.state == StreamClosed {
			st.mu.Unlock()
			return nil, nil // producer for a closed stream yields nothing
		}
		id := s.assignStreamID()
		st.id = id
		st.state = StreamOpenWaitingReply
		st.mu.Unlock()

		s.registry.activate(st, id)

		var buf bytes.Buffer
		pairs := []headerPair{{Name: "url", Value: st.path}}
		flags := ControlFlags(0)
		if st.typ == StreamRequestOnly {
			flags = FlagUnidirectional
		}
		s.codecMu.Lock()
		err := encodeSynStream(&buf, s.cfg.Version, synStreamFrame{StreamID: id, Priority: st.priority, Flags: flags}, pairs, s.writeCodec)
		s.codecMu.Unlock()
		if err != nil {
			return nil, err
		}
		s.cfg.Events.OnFrameSent(s, FrameSynStream, id, buf.Len())
		return buf.Bytes(), nil
	})
}

// streamIDsExhausted reports whether the local id space has been fully
// consumed; once true, CreateStream and promotePending must refuse rather
// than hand out a wrapped-around id.
func (s *Session) streamIDsExhausted() bool {
	s.nextStreamIDMu.Lock()
	defer s.nextStreamIDMu.Unlock()
	return s.idExhausted
}

func (s *Session) assignStreamID() StreamID {
	s.nextStreamIDMu.Lock()
	defer s.nextStreamIDMu.Unlock()
	id := s.nextStreamID
	s.nextStreamID += 2
	if s.nextStreamID > s.maxStreamID {
		s.idExhausted = true
	}
	return id
}

// ClaimPushedStream looks up an unclaimed pushed resource by URL and hands
// it to the caller, removing it from the unclaimed set.
func (s *Session) ClaimPushedStream(url string) (*Stream, error) {
	st, ok := s.registry.claimPush(url)
	if !ok {
		return nil, ErrUnclaimedPush
	}
	return st, nil
}

// writeData enqueues one DATA frame for st; called by Stream.Write/CloseWrite
// once flow control has already reserved room.
func (s *Session) writeData(st *Stream, payload []byte, flags DataFlags) error {
	return s.writeq.submit(st, st.priority, func() ([]byte, error) {
		st.mu.Lock()
		if st.state == StreamClosed {
			st.mu.Unlock()
			return nil, nil // producer for a closed stream yields nothing
		}
		st.mu.Unlock()

		id := st.ID()
		var buf bytes.Buffer
		if err := encodeData(&buf, dataFrame{StreamID: id, Flags: flags, Data: payload}); err != nil {
			return nil, err
		}
		s.cfg.Events.OnFrameSent(s, FrameData, id, buf.Len())
		return buf.Bytes(), nil
	})
}

// sendWindowUpdate enqueues one WINDOW_UPDATE frame.
func (s *Session) sendWindowUpdate(streamID StreamID, delta uint32) {
	if delta == 0 {
		return
	}
	_ = s.writeq.submit(nil, 0, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := encodeWindowUpdate(&buf, s.cfg.Version, windowUpdateFrame{StreamID: streamID, DeltaWindowSize: delta}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

// resetStream sends RST_STREAM(status) and closes the stream locally with
// the mapped CloseStatus.
func (s *Session) resetStream(st *Stream, status RSTStatus, closeStatus CloseStatus) error {
	id := st.ID()
	err := s.writeq.submit(st, st.priority, func() ([]byte, error) {
		var buf bytes.Buffer
		if encErr := encodeRstStream(&buf, s.cfg.Version, rstStreamFrame{StreamID: id, Status: status}); encErr != nil {
			return nil, encErr
		}
		s.cfg.Events.OnFrameSent(s, FrameRstStream, id, buf.Len())
		return buf.Bytes(), nil
	})
	s.closeStreamLocal(st, closeStatus)
	return err
}

func (s *Session) closeStreamLocal(st *Stream, status CloseStatus) {
	id := st.ID()
	st.onClose(status, nil)
	s.registry.remove(st, id)
	s.writeq.removeStream(st)
	s.promotePending()
}

// promotePending promotes queued create-stream requests, highest priority
// first, as capacity allows. Results are handed over on each request's
// result channel. It runs on the read loop (stream close, SETTINGS) and also
// from Stream.Close through resetStream and closeStreamLocal.
func (s *Session) promotePending() {
	for int32(s.registry.count()) < atomic.LoadInt32(&s.maxConcurrent) {
		req := s.registry.dequeueHighestPending()
		if req == nil {
			return
		}
		if s.streamIDsExhausted() {
			req.result <- createResult{err: ErrStreamIDExhausted}
			continue
		}
		st := s.activateNewStream(req.typ, req.path, req.priority)
		req.result <- createResult{stream: st}
	}
}

// Close gracefully tears down the session: idempotent, closes every
// stream and the transport.
func (s *Session) Close() error {
	return s.closeOnError(CloseOK, nil)
}

// closeOnError is the single terminal shutdown path, idempotent: sets
// state=CLOSED, notifies the pool, closes every stream (pending requests
// first with ABORTED, then active, then created), then clears the write
// queue and the transport.
func (s *Session) closeOnError(status CloseStatus, cause error) error {
	var didClose, wasAvailable bool
	s.dieOnce.Do(func() {
		didClose = true
		wasAvailable = AvailabilityState(atomic.SwapInt32(&s.state, int32(SessionClosed))) == SessionAvailable
		if cause != nil {
			s.closeErr.Store(cause)
		}
		close(s.die)
	})
	if !didClose {
		return nil
	}

	if wasAvailable {
		s.cfg.Pool.MakeUnavailable(s)
	}

	active, created, pending := s.registry.drainAll()
	for _, req := range pending {
		select {
		case req.result <- createResult{err: ErrGoingAway}:
		default:
		}
	}
	for _, st := range active {
		st.onClose(status, cause)
	}
	for _, st := range created {
		st.onClose(status, cause)
	}

	s.writeq.close()
	err := s.conn.Close()

	s.cfg.Pool.Remove(s)
	if cause != nil {
		s.cfg.Events.OnError(s, cause)
	}
	return err
}

// Err returns the error that caused the session to close, or nil if it
// closed gracefully or is still open.
func (s *Session) Err() error {
	if v := s.closeErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// AvailabilityState reports the session's current lifecycle state.
func (s *Session) AvailabilityState() AvailabilityState { return s.availability() }

// RemoteAddr reports the underlying transport's remote address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// LocalAddr reports the underlying transport's local address.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// --- read loop & frame dispatch -------------------------------------------------

func (s *Session) readLoop() {
	defer s.wg.Done()
	var burst int

	for {
		select {
		case <-s.die:
			return
		default:
		}

		h, err := readFrameHeader(s.reader)
		if err != nil {
			s.closeOnError(CloseConnectionClosed, errors.Wrap(err, "spdysession: read frame header"))
			return
		}
		body := make([]byte, h.length)
		if _, err := io.ReadFull(s.reader, body); err != nil {
			s.closeOnError(CloseConnectionClosed, errors.Wrap(err, "spdysession: read frame body"))
			return
		}
		s.markActivity()

		if perr := s.dispatch(h, body); perr != nil {
			s.closeOnError(CloseProtocolError, perr)
			return
		}

		burst += frameHeaderSize + len(body)
		if burst > MaxBytesPerReadBurst {
			burst = 0
			runtime.Gosched()
		}
	}
}

func (s *Session) dispatch(h frameHeader, body []byte) error {
	if !h.control {
		return s.handleData(h, body)
	}
	switch h.typ {
	case FrameSynStream:
		return s.handleSynStream(h, body)
	case FrameSynReply:
		return s.handleSynReply(h, body)
	case FrameRstStream:
		return s.handleRstStream(body)
	case FrameSettings:
		return s.handleSettings(h, body)
	case FramePing:
		return s.handlePing(body)
	case FrameGoAway:
		return s.handleGoAway(body)
	case FrameHeaders:
		return s.handleHeaders(h, body)
	case FrameWindowUpdate:
		return s.handleWindowUpdate(body)
	case FrameCredential:
		return nil // slot recorded, no direct stream effect
	default:
		return nil // unknown control frame types are ignored, not fatal
	}
}

func (s *Session) handleData(h frameHeader, body []byte) error {
	st, ok := s.registry.byID(h.stream)
	fin := h.flags&uint8(DataFlagFin) != 0
	if !ok {
		return nil // stream already gone; ignore, per smux/bgentry precedent
	}
	if s.flowControlMode != FlowControlNone {
		if !s.recvWindow.onDataReceived(int32(len(body))) && s.flowControlMode == FlowControlStreamAndSession {
			return newProtocolError(h.stream, FrameData, RSTFlowControlError, "session receive window exceeded")
		}
	}
	st.deliverData(body, fin)
	if fin {
		s.closeStreamLocal(st, CloseOK)
	}
	s.cfg.Events.OnFrameRecv(s, FrameData, h.stream, len(body))
	return nil
}

func (s *Session) handleSynStream(h frameHeader, body []byte) error {
	f, pairs, err := decodeSynStream(body, h.flags, s.readCodec)
	if err != nil {
		return err
	}
	s.cfg.Events.OnFrameRecv(s, FrameSynStream, f.StreamID, len(body))

	if f.StreamID.IsClientInitiated() {
		return newProtocolError(f.StreamID, FrameSynStream, RSTProtocolError, "server push stream id must be even")
	}
	assoc, ok := s.registry.byID(f.AssociatedTo)
	if !ok {
		_ = s.resetStreamByID(f.StreamID, RSTInvalidStream)
		return nil
	}

	url := headerValue(pairs, "url")
	if url == "" {
		_ = s.resetStreamByID(f.StreamID, RSTProtocolError)
		return nil
	}
	if !pushOriginAllowed(assoc.Path(), url, s.hostKey, s.cfg.TrustedProxyHost) {
		_ = s.resetStreamByID(f.StreamID, RSTRefusedStream)
		return nil
	}
	if s.registry.hasUnclaimed(url) {
		_ = s.resetStreamByID(f.StreamID, RSTProtocolError)
		return nil
	}

	st := newStream(s, StreamPush, assoc.Priority(), url, s.cfg.StreamInitialWindow, s.cfg.StreamInitialWindow)
	st.state = StreamOpenWaitingReply
	s.registry.addPushed(st, f.StreamID, url)
	st.deliverHeaders(pairsToHeader(pairs), true)
	return nil
}

func (s *Session) handleSynReply(h frameHeader, body []byte) error {
	f, pairs, err := decodeSynReply(body, h.flags, s.readCodec)
	if err != nil {
		return err
	}
	s.cfg.Events.OnFrameRecv(s, FrameSynReply, f.StreamID, len(body))

	st, ok := s.registry.byID(f.StreamID)
	if !ok {
		return nil // cancelled locally already; ignore
	}
	st.mu.Lock()
	waiting := st.waitingSynReply
	st.mu.Unlock()
	if !waiting {
		return s.resetStreamByID(f.StreamID, RSTStreamInUse)
	}
	fin := f.Flags&FlagFin != 0
	st.deliverHeaders(pairsToHeader(pairs), true)
	if fin {
		st.deliverData(nil, true)
		s.closeStreamLocal(st, CloseOK)
	}
	return nil
}

func (s *Session) handleHeaders(h frameHeader, body []byte) error {
	f, pairs, err := decodeHeaders(body, h.flags, s.readCodec)
	if err != nil {
		return err
	}
	st, ok := s.registry.byID(f.StreamID)
	if !ok {
		return nil
	}
	st.deliverHeaders(pairsToHeader(pairs), false)
	if f.Flags&FlagFin != 0 {
		st.deliverData(nil, true)
		s.closeStreamLocal(st, CloseOK)
	}
	return nil
}

func (s *Session) handleRstStream(body []byte) error {
	f, err := decodeRstStream(body)
	if err != nil {
		return err
	}
	s.cfg.Events.OnFrameRecv(s, FrameRstStream, f.StreamID, len(body))

	st, ok := s.registry.byID(f.StreamID)
	if !ok {
		return nil
	}
	status := closeStatusFromRST(f.Status)
	if f.Status == 0 {
		// A zero status delivers an empty frame then closes normally,
		// rather than being treated as malformed.
		st.deliverData(nil, true)
		status = CloseOK
	}
	if f.Status == RSTRefusedStream {
		st.onClose(CloseRefusedStream, ErrStreamRefused)
		s.closeStreamLocal(st, CloseRefusedStream)
	} else {
		s.closeStreamLocal(st, status)
	}
	return nil
}

func (s *Session) handleSettings(h frameHeader, body []byte) error {
	f, err := decodeSettings(body, h.flags)
	if err != nil {
		return err
	}
	s.cfg.Events.OnSettingsReceived(s, f.Settings)

	for _, setting := range f.Settings {
		if setting.Flag&FlagPersistValue != 0 {
			s.cfg.Properties.SetSetting(s.hostKey, setting.ID, FlagPersisted, setting.Value)
		}
		switch setting.ID {
		case SettingMaxConcurrentStreams:
			// Shrinking this below the current open-stream count neither
			// closes existing streams nor refuses writes on them; it only
			// blocks new creation until the set naturally shrinks.
			atomic.StoreInt32(&s.maxConcurrent, int32(setting.Value))
			s.promotePending()
		case SettingInitialWindowSize:
			s.applyInitialWindowResize(int32(setting.Value))
		}
	}
	return nil
}

func (s *Session) applyInitialWindowResize(newSize int32) {
	s.cfg.StreamInitialWindow = newSize
	for _, st := range s.registry.snapshotActive() {
		st.sendWindow.onSettingsResize(newSize)
	}
}

func (s *Session) handlePing(body []byte) error {
	f, err := decodePing(body)
	if err != nil {
		return err
	}
	if StreamID(f.ID).IsClientInitiated() {
		s.pingMu.Lock()
		s.pingsInFlight--
		negative := s.pingsInFlight < 0
		s.pingMu.Unlock()
		if negative {
			return newProtocolError(0, FramePing, RSTProtocolError, "unmatched PING reply")
		}
		return nil
	}
	// Server-initiated (even id): echo back.
	return s.writeq.submit(nil, 0, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := encodePing(&buf, s.cfg.Version, f); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

func (s *Session) handleGoAway(body []byte) error {
	f, err := decodeGoAway(body)
	if err != nil {
		return err
	}
	s.cfg.Events.OnGoAway(s, f.LastGoodStreamID, f.Status)
	if atomic.CompareAndSwapInt32(&s.state, int32(SessionAvailable), int32(SessionGoingAway)) {
		s.cfg.Pool.MakeUnavailable(s)
	}

	for _, st := range s.registry.snapshotActive() {
		if st.ID() > f.LastGoodStreamID {
			s.closeStreamLocal(st, CloseAborted)
		}
	}
	// Belt-and-suspenders sweep over the write queue itself, not just the
	// registry: covers any stream whose id was already assigned and queued
	// writes submitted between the snapshot above and this point.
	s.writeq.removeStreamsAbove(f.LastGoodStreamID)
	for req := s.registry.dequeueHighestPending(); req != nil; req = s.registry.dequeueHighestPending() {
		select {
		case req.result <- createResult{err: ErrGoingAway}:
		default:
		}
	}
	return nil
}

func (s *Session) handleWindowUpdate(body []byte) error {
	f, err := decodeWindowUpdate(body)
	if err != nil {
		return err
	}
	if f.DeltaWindowSize == 0 {
		return newProtocolError(f.StreamID, FrameWindowUpdate, RSTFlowControlError, "zero-delta WINDOW_UPDATE")
	}
	s.cfg.Events.OnWindowUpdate(s, f.StreamID, f.DeltaWindowSize)

	if f.StreamID == 0 {
		if s.flowControlMode != FlowControlStreamAndSession {
			return nil // ignored with warning
		}
		s.sendWindow.onWindowUpdate(f.DeltaWindowSize)
		return nil
	}
	st, ok := s.registry.byID(f.StreamID)
	if !ok {
		return nil
	}
	st.onWindowUpdate(f.DeltaWindowSize)
	return nil
}

func (s *Session) resetStreamByID(id StreamID, status RSTStatus) error {
	return s.writeq.submit(nil, 0, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := encodeRstStream(&buf, s.cfg.Version, rstStreamFrame{StreamID: id, Status: status}); err != nil {
			return nil, err
		}
		s.cfg.Events.OnFrameSent(s, FrameRstStream, id, buf.Len())
		return buf.Bytes(), nil
	})
}

// --- write loop ------------------------------------------------------------

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.writeq.ready:
			buf, err := req.encode()
			if err != nil {
				req.result <- err
				s.closeOnError(CloseInternalError, err)
				return
			}
			if buf == nil {
				req.result <- nil
				continue
			}
			if _, err := s.conn.Write(buf); err != nil {
				req.result <- err
				s.closeOnError(CloseConnectionClosed, errors.Wrap(err, "spdysession: write"))
				return
			}
			s.markActivity()
			req.result <- nil
		case <-s.die:
			return
		}
	}
}

// --- PING liveness -----------------------------------------------------------

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.cfg.ConnectionAtRiskInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.maybeSendPing()
		case <-s.die:
			return
		}
	}
}

func (s *Session) maybeSendPing() {
	last, _ := s.lastActivity.Load().(time.Time)
	if time.Since(last) < s.cfg.ConnectionAtRiskInterval {
		return
	}

	s.pingMu.Lock()
	s.nextPingID += 2
	if s.nextPingID == 0 {
		s.nextPingID = 1
	}
	id := s.nextPingID
	if id%2 == 0 {
		id++
	}
	s.pingsInFlight++
	s.pingMu.Unlock()

	_ = s.writeq.submit(nil, 0, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := encodePing(&buf, s.cfg.Version, pingFrame{ID: id}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})

	time.AfterFunc(s.cfg.HungInterval, func() { s.checkPingStatus(id) })
}

func (s *Session) checkPingStatus(id uint32) {
	s.pingMu.Lock()
	stillOutstanding := s.pingsInFlight > 0
	s.pingMu.Unlock()

	last, _ := s.lastActivity.Load().(time.Time)
	if stillOutstanding && time.Since(last) >= s.cfg.HungInterval {
		s.closeOnError(ClosePingFailed, ErrPingTimeout)
	}
}

// --- small helpers -----------------------------------------------------------

func closeStatusFromRST(status RSTStatus) CloseStatus {
	switch status {
	case RSTRefusedStream:
		return CloseRefusedStream
	case RSTCancel:
		return CloseCanceled
	case RSTProtocolError, RSTInvalidStream, RSTUnsupportedVersion, RSTFrameTooLarge:
		return CloseProtocolError
	case RSTFlowControlError:
		return CloseProtocolError
	case RSTInvalidCredentials:
		return CloseCertificateError
	default:
		return CloseInternalError
	}
}

func headerValue(pairs []headerPair, name string) string {
	for _, p := range pairs {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

func pairsToHeader(pairs []headerPair) http.Header {
	h := make(http.Header, len(pairs))
	for _, p := range pairs {
		h.Add(p.Name, p.Value)
	}
	return h
}

// pushOriginAllowed enforces the cross-origin push rule: the pushed
// resource's origin must match the associated stream's, unless this
// session is itself connected to the configured trusted-proxy host, in
// which case it is trusted to push resources from any origin on the
// user's behalf.
func pushOriginAllowed(associatedPath, pushedURL, sessionHost, trustedProxyHost string) bool {
	if trustedProxyHost != "" && strings.EqualFold(sessionHost, trustedProxyHost) {
		return true
	}
	return samePathOrigin(associatedPath, pushedURL)
}

func samePathOrigin(a, b string) bool {
	ah, bh := hostOf(a), hostOf(b)
	return ah == "" || bh == "" || ah == bh
}

func hostOf(url string) string {
	// Minimal scheme://host[/...] split; full URL parsing is an external
	// collaborator and is not this package's concern.
	i := indexOf(url, "://")
	if i < 0 {
		return ""
	}
	rest := url[i+3:]
	j := indexOf(rest, "/")
	if j < 0 {
		return rest
	}
	return rest[:j]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

