package spdysession

import (
	"io"
	"net"
	"time"
)

// Transport is the single reliable, ordered, duplex byte stream a Session
// multiplexes over. Anything satisfying net.Conn works (a TLS connection,
// a KCP-backed github.com/xtaci/kcp-go session, a plain TCP socket); the
// session never assumes which.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// protocolNegotiator reports the ALPN/NPN-style token, when the transport
// knows one; bare KCP/TCP transports simply return "".
type protocolNegotiator interface {
	NegotiatedProtocol() string
}

// PropertiesStore is the external collaborator holding remembered
// per-host SETTINGS across connections, consulted once a session becomes
// ready and updated whenever a persistable SETTINGS value changes.
type PropertiesStore interface {
	GetSettings(hostPort string) ([]Setting, bool)
	SetSetting(hostPort string, id SettingID, flag ControlFlags, value uint32)
	ClearSettings(hostPort string)
}

// EventSink is a pure observer of session activity: logging, metrics, and
// debugging hooks attach here. Implementations must not block and must
// never call back into the Session that invoked them.
type EventSink interface {
	OnSessionOpen(s *Session)
	OnFrameSent(s *Session, frame FrameType, streamID StreamID, size int)
	OnFrameRecv(s *Session, frame FrameType, streamID StreamID, size int)
	OnError(s *Session, err error)
	OnSettingsReceived(s *Session, settings []Setting)
	OnWindowUpdate(s *Session, streamID StreamID, delta uint32)
	OnGoAway(s *Session, lastGoodStreamID StreamID, status GoAwayStatus)
}
