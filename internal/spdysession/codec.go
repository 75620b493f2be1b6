package spdysession

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// frameHeader is the common 8-byte prefix of every frame on the wire,
// control or data.
type frameHeader struct {
	control bool
	version ProtocolVersion // control frames only
	typ     FrameType       // control frames only
	stream  StreamID        // data frames only
	flags   uint8
	length  uint32 // 24-bit payload length
}

const frameHeaderSize = 8

// synStreamFrame is the decoded SYN_STREAM payload.
type synStreamFrame struct {
	StreamID     StreamID
	AssociatedTo StreamID
	Priority     uint8
	Flags        ControlFlags
	HeaderBlock  []byte // still name/value-compressed
}

// synReplyFrame is the decoded SYN_REPLY payload.
type synReplyFrame struct {
	StreamID    StreamID
	Flags       ControlFlags
	HeaderBlock []byte
}

// rstStreamFrame is the decoded RST_STREAM payload.
type rstStreamFrame struct {
	StreamID StreamID
	Status   RSTStatus
}

// settingsFrame is the decoded SETTINGS payload.
type settingsFrame struct {
	ClearPersisted bool
	Settings       []Setting
}

// pingFrame is the decoded PING payload.
type pingFrame struct {
	ID uint32
}

// goAwayFrame is the decoded GOAWAY payload.
type goAwayFrame struct {
	LastGoodStreamID StreamID
	Status           GoAwayStatus
}

// headersFrame is the decoded HEADERS payload.
type headersFrame struct {
	StreamID    StreamID
	Flags       ControlFlags
	HeaderBlock []byte
}

// windowUpdateFrame is the decoded WINDOW_UPDATE payload.
type windowUpdateFrame struct {
	StreamID        StreamID
	DeltaWindowSize uint32
}

// dataFrame is the decoded DATA payload (never compressed by the codec
// itself; Stream.Write sends every DATA frame with DataFlagCompressed
// clear).
type dataFrame struct {
	StreamID StreamID
	Flags    DataFlags
	Data     []byte
}

// headerCodec owns the two persistent, streaming zlib contexts used to
// compress and decompress SYN_STREAM/SYN_REPLY/HEADERS name/value blocks.
// Both directions share the fixed dictionary so that either side can
// understand the other's very first frame without a handshake. Grounded in
// the historical golang.org/x/net/spdy Framer: a *zlib.Writer with a preset
// dictionary for the outbound direction, and a lazily-created
// io.ReadCloser plus io.LimitedReader for the inbound one, so each
// decompress call only consumes exactly one frame's compressed bytes.
type headerCodec struct {
	version ProtocolVersion

	compressBuf *bytes.Buffer
	compressor  *zlib.Writer

	decompressor io.ReadCloser
	limitReader  *io.LimitedReader
}

func newHeaderCodec(version ProtocolVersion) (*headerCodec, error) {
	buf := new(bytes.Buffer)
	w, err := zlib.NewWriterLevelDict(buf, zlib.BestCompression, []byte(headerDictionary))
	if err != nil {
		return nil, errors.Wrap(err, "spdysession: allocate header compressor")
	}
	return &headerCodec{
		version:     version,
		compressBuf: buf,
		compressor:  w,
	}, nil
}

// compress serializes headers as SPDY name/value pairs and deflates them
// with Z_SYNC_FLUSH so the compressed bytes form a self-contained frame
// payload the peer's decompressor can consume one frame at a time.
func (c *headerCodec) compress(pairs []headerPair) ([]byte, error) {
	c.compressBuf.Reset()

	var raw bytes.Buffer
	if err := writeNameValueBlock(&raw, pairs); err != nil {
		return nil, err
	}
	if _, err := c.compressor.Write(raw.Bytes()); err != nil {
		return nil, errors.Wrap(err, "spdysession: compress header block")
	}
	if err := c.compressor.Flush(); err != nil {
		return nil, errors.Wrap(err, "spdysession: flush header compressor")
	}

	out := make([]byte, c.compressBuf.Len())
	copy(out, c.compressBuf.Bytes())
	return out, nil
}

// decompress inflates one frame's worth of compressed name/value bytes.
// The io.LimitedReader bounds the zlib reader to exactly len(block) bytes
// so a persistent streaming decompressor can be reused across frames
// without reading past this frame's boundary.
func (c *headerCodec) decompress(block []byte) ([]headerPair, error) {
	if c.limitReader == nil {
		c.limitReader = &io.LimitedReader{R: bytes.NewReader(block), N: int64(len(block))}
		zr, err := zlib.NewReaderDict(c.limitReader, []byte(headerDictionary))
		if err != nil {
			return nil, errors.Wrap(err, "spdysession: allocate header decompressor")
		}
		c.decompressor = zr
	} else {
		c.limitReader.R = bytes.NewReader(block)
		c.limitReader.N = int64(len(block))
	}

	pairs, err := readNameValueBlock(c.decompressor)
	if err != nil {
		return nil, errors.Wrap(err, "spdysession: decompress header block")
	}
	return pairs, nil
}

// headerPair is one name/value entry of a header block. Multiple values
// for the same name are NUL-joined on the wire.
type headerPair struct {
	Name  string
	Value string
}

func writeNameValueBlock(w io.Writer, pairs []headerPair) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(pairs))); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writeLengthPrefixed(w, p.Name); err != nil {
			return err
		}
		if err := writeLengthPrefixed(w, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeLengthPrefixed(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readNameValueBlock(r io.Reader) ([]headerPair, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	pairs := make([]headerPair, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		value, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, headerPair{Name: name, Value: value})
	}
	return pairs, nil
}

func readLengthPrefixed(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n > MaxDataFrameChunk*4 {
		return "", errors.Wrap(ErrInvalidFrame, "header name/value too large")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readFrameHeader reads and decodes the 8-byte frame prefix.
func readFrameHeader(r io.Reader) (frameHeader, error) {
	var raw [frameHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return frameHeader{}, err
	}
	first := binary.BigEndian.Uint32(raw[0:4])
	second := binary.BigEndian.Uint32(raw[4:8])

	h := frameHeader{
		flags:  uint8(second >> 24),
		length: second & 0x00FFFFFF,
	}
	if first&0x80000000 != 0 {
		h.control = true
		h.version = ProtocolVersion((first >> 16) & 0x7FFF)
		h.typ = FrameType(first & 0xFFFF)
	} else {
		h.stream = StreamID(first & 0x7FFFFFFF)
	}
	return h, nil
}

func writeFrameHeader(w io.Writer, h frameHeader) error {
	var raw [frameHeaderSize]byte
	if h.control {
		first := uint32(0x80000000) | (uint32(h.version)&0x7FFF)<<16 | uint32(h.typ)
		binary.BigEndian.PutUint32(raw[0:4], first)
	} else {
		binary.BigEndian.PutUint32(raw[0:4], uint32(h.stream)&0x7FFFFFFF)
	}
	second := uint32(h.flags)<<24 | (h.length & 0x00FFFFFF)
	binary.BigEndian.PutUint32(raw[4:8], second)
	_, err := w.Write(raw[:])
	return err
}
