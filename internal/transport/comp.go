// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transport

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompressedTransport wraps a net.Conn (typically a KCP session) with
// snappy framing on both directions, an optional wire-compression layer
// for links where CPU is cheaper than bandwidth. It also keeps running
// byte counters, the same bookkeeping style internal/events' SNMPSink
// uses for the session above it, so a tunnel can report how much the
// compression layer is actually saving.
type CompressedTransport struct {
	conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader

	rawBytesOut uint64 // bytes handed to Write, before snappy framing
	rawBytesIn  uint64 // bytes handed back by Read
}

// NewCompressedTransport wraps conn with a buffered snappy writer and a
// streaming snappy reader.
func NewCompressedTransport(conn net.Conn) *CompressedTransport {
	return &CompressedTransport{
		conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *CompressedTransport) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		atomic.AddUint64(&c.rawBytesIn, uint64(n))
	}
	return n, err
}

// Write snappy-frames and flushes p in one call; an empty write is a no-op
// rather than emitting a zero-length snappy frame onto the wire.
func (c *CompressedTransport) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	atomic.AddUint64(&c.rawBytesOut, uint64(len(p)))
	return len(p), nil
}

func (c *CompressedTransport) Close() error { return c.conn.Close() }

func (c *CompressedTransport) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *CompressedTransport) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *CompressedTransport) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *CompressedTransport) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *CompressedTransport) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// BytesTransferred reports the pre-compression byte totals seen by Write
// (out) and reconstructed by Read (in), for callers wiring transport stats
// into a session's event sink.
func (c *CompressedTransport) BytesTransferred() (out, in uint64) {
	return atomic.LoadUint64(&c.rawBytesOut), atomic.LoadUint64(&c.rawBytesIn)
}
