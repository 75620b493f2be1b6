package spdysession

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors returned by Session and Stream operations. Callers that
// need to distinguish a reason should compare with errors.Is / errors.Cause
// rather than string-matching Error().
var (
	// ErrSessionClosed is returned by any operation attempted after the
	// session has finished closing.
	ErrSessionClosed = errors.New("spdysession: session closed")

	// ErrGoingAway is returned by CreateStream once the session has sent or
	// received GOAWAY and is refusing new streams.
	ErrGoingAway = errors.New("spdysession: session going away")

	// ErrStreamClosed is returned by Stream.Read/Write after the stream has
	// fully closed.
	ErrStreamClosed = errors.New("spdysession: stream closed")

	// ErrStreamRefused is returned by Stream.Read/Write once a peer
	// RST_STREAMs the stream with status REFUSED_STREAM.
	ErrStreamRefused = errors.New("spdysession: stream refused")

	// ErrTooManyStreams names the negotiated concurrent-stream limit being
	// exceeded. CreateStream does not return it: over the limit it queues
	// the request and waits for capacity.
	ErrTooManyStreams = errors.New("spdysession: concurrent stream limit exceeded")

	// ErrStreamIDExhausted is returned once the local stream id space has
	// been fully consumed.
	ErrStreamIDExhausted = errors.New("spdysession: stream id space exhausted")

	// ErrInvalidFrame is returned by the codec when a frame fails structural
	// validation (bad length, reserved bits, unknown version).
	ErrInvalidFrame = errors.New("spdysession: invalid frame")

	// ErrFlowControlViolation indicates a peer sent more data than its
	// window allowed, or a WINDOW_UPDATE overflowed a window past int32.
	ErrFlowControlViolation = errors.New("spdysession: flow control violation")

	// ErrPingTimeout is returned when a liveness PING was not acknowledged
	// within the configured interval.
	ErrPingTimeout = errors.New("spdysession: ping timed out")

	// ErrUnclaimedPush is returned when ClaimPushedStream cannot find a
	// pending pushed stream matching the requested URL.
	ErrUnclaimedPush = errors.New("spdysession: no matching pushed stream")

	// ErrPushDisabled names a server push the session does not permit. No
	// Session or Stream operation returns it; the session answers a push it
	// refuses with RST_STREAM.
	ErrPushDisabled = errors.New("spdysession: server push not permitted")
)

// ProtocolError wraps an RSTStatus with the frame context that
// produced it, so session-level logging can report exactly which frame
// triggered a teardown.
type ProtocolError struct {
	Status  RSTStatus
	StreamID StreamID
	Frame   FrameType
	Detail  string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("spdysession: protocol error on stream %d (%s): %s", e.StreamID, e.Frame, e.Detail)
	}
	return fmt.Sprintf("spdysession: protocol error on stream %d (%s)", e.StreamID, e.Frame)
}

func newProtocolError(streamID StreamID, frame FrameType, status RSTStatus, detail string) *ProtocolError {
	return &ProtocolError{Status: status, StreamID: streamID, Frame: frame, Detail: detail}
}
