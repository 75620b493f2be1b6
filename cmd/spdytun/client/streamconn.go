package main

import (
	"net"
	"time"

	"github.com/gospdy/spdytun/internal/spdysession"
)

// streamConn adapts a *spdysession.Stream to net.Conn so it can sit behind
// a SOCKS5 server's dialer or a plain io.Copy pipe. The stream itself has
// no per-frame deadlines, so the deadline methods are no-ops; address
// methods delegate to the owning session's transport.
type streamConn struct {
	*spdysession.Stream
	session *spdysession.Session
}

func newStreamConn(session *spdysession.Session, st *spdysession.Stream) *streamConn {
	return &streamConn{Stream: st, session: session}
}

func (c *streamConn) LocalAddr() net.Addr  { return c.session.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.session.RemoteAddr() }

func (c *streamConn) SetDeadline(t time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return nil }
