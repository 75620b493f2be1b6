package spdysession

// ProtocolVersion identifies the wire version negotiated for a session.
type ProtocolVersion int

// Supported protocol versions. Anything below Version2 is out of scope.
const (
	Version2   ProtocolVersion = 2
	Version3   ProtocolVersion = 3
	Version3_1 ProtocolVersion = 31
	Version4a2 ProtocolVersion = 4
)

// StreamID is the 31-bit identifier carried on the wire. Client-initiated
// ids are odd; server-initiated (push) ids are even.
type StreamID uint32

// IsClientInitiated reports whether id was assigned by the client (odd).
func (id StreamID) IsClientInitiated() bool { return id%2 == 1 }

// FrameType is the control-frame type field.
type FrameType uint16

const (
	// FrameData is not a real wire value (DATA frames carry no type field,
	// only a clear control bit); it exists so error-reporting code can
	// name a DATA frame alongside the real control frame types.
	FrameData         FrameType = 0
	FrameSynStream    FrameType = 1
	FrameSynReply     FrameType = 2
	FrameRstStream    FrameType = 3
	FrameSettings     FrameType = 4
	FramePing         FrameType = 6
	FrameGoAway       FrameType = 7
	FrameHeaders      FrameType = 8
	FrameWindowUpdate FrameType = 9
	FrameCredential   FrameType = 10
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameSynStream:
		return "SYN_STREAM"
	case FrameSynReply:
		return "SYN_REPLY"
	case FrameRstStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameHeaders:
		return "HEADERS"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameCredential:
		return "CREDENTIAL"
	default:
		return "UNKNOWN"
	}
}

// ControlFlags are the flags field of a control frame.
type ControlFlags uint8

const (
	FlagFin             ControlFlags = 0x01
	FlagUnidirectional  ControlFlags = 0x02
	FlagClearSettings   ControlFlags = 0x01 // SETTINGS-only reuse of bit 0
	FlagPersistValue    ControlFlags = 0x01 // per-setting flag
	FlagPersisted       ControlFlags = 0x02 // per-setting flag
)

// DataFlags are the flags field of a DATA frame.
type DataFlags uint8

const (
	DataFlagFin        DataFlags = 0x01
	DataFlagCompressed DataFlags = 0x02
)

// RSTStatus is the status code carried by RST_STREAM.
type RSTStatus uint32

const (
	RSTProtocolError        RSTStatus = 1
	RSTInvalidStream        RSTStatus = 2
	RSTRefusedStream        RSTStatus = 3
	RSTUnsupportedVersion   RSTStatus = 4
	RSTCancel               RSTStatus = 5
	RSTInternalError        RSTStatus = 6
	RSTFlowControlError     RSTStatus = 7
	RSTStreamInUse          RSTStatus = 8
	RSTStreamAlreadyClosed  RSTStatus = 9
	RSTInvalidCredentials   RSTStatus = 10
	RSTFrameTooLarge        RSTStatus = 11
)

// GoAwayStatus is the status code carried by GOAWAY.
type GoAwayStatus uint32

const (
	GoAwayOK             GoAwayStatus = 0
	GoAwayProtocolError  GoAwayStatus = 1
	GoAwayInternalError  GoAwayStatus = 11
)

// SettingID identifies one id/value pair in a SETTINGS frame.
type SettingID uint32

const (
	SettingUploadBandwidth      SettingID = 1
	SettingDownloadBandwidth    SettingID = 2
	SettingRoundTripTime        SettingID = 3
	SettingMaxConcurrentStreams SettingID = 4
	SettingCurrentCwnd          SettingID = 5
	SettingDownloadRetransRate  SettingID = 6
	SettingInitialWindowSize    SettingID = 7
)

// Setting is one id/flag/value triple carried by a SETTINGS frame.
type Setting struct {
	ID    SettingID
	Flag  ControlFlags
	Value uint32
}

// AvailabilityState is the lifecycle state of a Session.
type AvailabilityState int32

const (
	SessionAvailable AvailabilityState = iota
	SessionGoingAway
	SessionClosed
)

func (s AvailabilityState) String() string {
	switch s {
	case SessionAvailable:
		return "AVAILABLE"
	case SessionGoingAway:
		return "GOING_AWAY"
	case SessionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FlowControlMode selects which axes of flow control are active.
type FlowControlMode int

const (
	FlowControlNone FlowControlMode = iota
	FlowControlStreamOnly
	FlowControlStreamAndSession
)

// StreamType distinguishes how a stream was opened.
type StreamType int

const (
	StreamBidirectional StreamType = iota
	StreamRequestOnly
	StreamPush
)

// StreamState is the state machine position of one Stream
type StreamState int32

const (
	StreamCreated StreamState = iota
	StreamOpenWaitingReply
	StreamOpen
	StreamHalfClosed
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamCreated:
		return "CREATED"
	case StreamOpenWaitingReply:
		return "OPEN_WAITING_REPLY"
	case StreamOpen:
		return "OPEN"
	case StreamHalfClosed:
		return "HALF_CLOSED"
	case StreamClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CloseStatus is the terminal reason a stream or session was closed.
type CloseStatus int

const (
	CloseOK CloseStatus = iota
	CloseAborted
	CloseConnectionClosed
	CloseProtocolError
	CloseRefusedStream
	ClosePingFailed
	CloseCertificateError
	CloseStreamInUse
	CloseCanceled
	CloseInternalError
)

func (s CloseStatus) String() string {
	switch s {
	case CloseOK:
		return "OK"
	case CloseAborted:
		return "ABORTED"
	case CloseConnectionClosed:
		return "CONNECTION_CLOSED"
	case CloseProtocolError:
		return "PROTOCOL_ERROR"
	case CloseRefusedStream:
		return "REFUSED_STREAM"
	case ClosePingFailed:
		return "PING_FAILED"
	case CloseCertificateError:
		return "CERTIFICATE_ERROR"
	case CloseStreamInUse:
		return "STREAM_IN_USE"
	case CloseCanceled:
		return "CANCELED"
	case CloseInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}
