// Package spdysession implements a multiplexed, flow-controlled, framed
// binary protocol session (SPDY) running over a single reliable, ordered,
// duplex byte stream.
//
// A Session owns exactly one Transport (see transport.go for the interface
// it expects) and multiplexes any number of logical Streams over it. Two
// independent axes of flow control guard the transport from overrun: each
// Stream has its own send/receive window, and in STREAM_AND_SESSION mode
// the Session itself has a send/receive window shared by every stream.
//
// Callers create streams with Session.CreateStream and read/write their
// payload as ordinary bytes; the session takes care of framing, header
// compression, priority ordering on the wire, and window bookkeeping.
package spdysession
