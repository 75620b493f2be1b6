package spdysession

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// encodeSynStream writes a complete SYN_STREAM control frame to w, using
// codec to compress the header block.
func encodeSynStream(w io.Writer, version ProtocolVersion, f synStreamFrame, pairs []headerPair, codec *headerCodec) error {
	block, err := codec.compress(pairs)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	writeStreamID(&body, f.StreamID)
	writeStreamID(&body, f.AssociatedTo)
	body.WriteByte(f.Priority << 5)
	body.WriteByte(0) // slot, unused (CREDENTIAL frames not implemented)
	body.Write(block)

	if err := writeFrameHeader(w, frameHeader{
		control: true,
		version: version,
		typ:     FrameSynStream,
		flags:   uint8(f.Flags),
		length:  uint32(body.Len()),
	}); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func decodeSynStream(body []byte, flags uint8, codec *headerCodec) (synStreamFrame, []headerPair, error) {
	if len(body) < 10 {
		return synStreamFrame{}, nil, errors.Wrap(ErrInvalidFrame, "short SYN_STREAM")
	}
	sid := readStreamID(body[0:4])
	assoc := readStreamID(body[4:8])
	pri := body[8] >> 5
	pairs, err := codec.decompress(body[10:])
	if err != nil {
		return synStreamFrame{}, nil, err
	}
	return synStreamFrame{
		StreamID:     sid,
		AssociatedTo: assoc,
		Priority:     pri,
		Flags:        ControlFlags(flags),
	}, pairs, nil
}

func encodeSynReply(w io.Writer, version ProtocolVersion, f synReplyFrame, pairs []headerPair, codec *headerCodec) error {
	block, err := codec.compress(pairs)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	writeStreamID(&body, f.StreamID)
	body.Write(block)

	if err := writeFrameHeader(w, frameHeader{
		control: true, version: version, typ: FrameSynReply,
		flags: uint8(f.Flags), length: uint32(body.Len()),
	}); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func decodeSynReply(body []byte, flags uint8, codec *headerCodec) (synReplyFrame, []headerPair, error) {
	if len(body) < 4 {
		return synReplyFrame{}, nil, errors.Wrap(ErrInvalidFrame, "short SYN_REPLY")
	}
	sid := readStreamID(body[0:4])
	pairs, err := codec.decompress(body[4:])
	if err != nil {
		return synReplyFrame{}, nil, err
	}
	return synReplyFrame{StreamID: sid, Flags: ControlFlags(flags)}, pairs, nil
}

func encodeRstStream(w io.Writer, version ProtocolVersion, f rstStreamFrame) error {
	var body [8]byte
	binary.BigEndian.PutUint32(body[0:4], uint32(f.StreamID)&0x7FFFFFFF)
	binary.BigEndian.PutUint32(body[4:8], uint32(f.Status))
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FrameRstStream, length: 8}); err != nil {
		return err
	}
	_, err := w.Write(body[:])
	return err
}

func decodeRstStream(body []byte) (rstStreamFrame, error) {
	if len(body) != 8 {
		return rstStreamFrame{}, errors.Wrap(ErrInvalidFrame, "bad RST_STREAM length")
	}
	return rstStreamFrame{
		StreamID: readStreamID(body[0:4]),
		Status:   RSTStatus(binary.BigEndian.Uint32(body[4:8])),
	}, nil
}

func encodeSettings(w io.Writer, version ProtocolVersion, f settingsFrame) error {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint32(len(f.Settings)))
	for _, s := range f.Settings {
		idAndFlags := uint32(s.ID)&0x00FFFFFF | uint32(s.Flag)<<24
		binary.Write(&body, binary.BigEndian, idAndFlags)
		binary.Write(&body, binary.BigEndian, s.Value)
	}
	var flags uint8
	if f.ClearPersisted {
		flags = uint8(FlagClearSettings)
	}
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FrameSettings, flags: flags, length: uint32(body.Len())}); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func decodeSettings(body []byte, flags uint8) (settingsFrame, error) {
	if len(body) < 4 {
		return settingsFrame{}, errors.Wrap(ErrInvalidFrame, "short SETTINGS")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	rest := body[4:]
	if uint64(count)*8 != uint64(len(rest)) {
		return settingsFrame{}, errors.Wrap(ErrInvalidFrame, "bad SETTINGS entry count")
	}
	out := settingsFrame{ClearPersisted: flags&uint8(FlagClearSettings) != 0}
	for i := uint32(0); i < count; i++ {
		entry := rest[i*8 : i*8+8]
		idAndFlags := binary.BigEndian.Uint32(entry[0:4])
		value := binary.BigEndian.Uint32(entry[4:8])
		out.Settings = append(out.Settings, Setting{
			ID:    SettingID(idAndFlags & 0x00FFFFFF),
			Flag:  ControlFlags(idAndFlags >> 24),
			Value: value,
		})
	}
	return out, nil
}

func encodePing(w io.Writer, version ProtocolVersion, f pingFrame) error {
	var body [4]byte
	binary.BigEndian.PutUint32(body[:], f.ID)
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FramePing, length: 4}); err != nil {
		return err
	}
	_, err := w.Write(body[:])
	return err
}

func decodePing(body []byte) (pingFrame, error) {
	if len(body) != 4 {
		return pingFrame{}, errors.Wrap(ErrInvalidFrame, "bad PING length")
	}
	return pingFrame{ID: binary.BigEndian.Uint32(body)}, nil
}

func encodeGoAway(w io.Writer, version ProtocolVersion, f goAwayFrame) error {
	var body [8]byte
	binary.BigEndian.PutUint32(body[0:4], uint32(f.LastGoodStreamID)&0x7FFFFFFF)
	binary.BigEndian.PutUint32(body[4:8], uint32(f.Status))
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FrameGoAway, length: 8}); err != nil {
		return err
	}
	_, err := w.Write(body[:])
	return err
}

func decodeGoAway(body []byte) (goAwayFrame, error) {
	if len(body) != 8 {
		return goAwayFrame{}, errors.Wrap(ErrInvalidFrame, "bad GOAWAY length")
	}
	return goAwayFrame{
		LastGoodStreamID: readStreamID(body[0:4]),
		Status:           GoAwayStatus(binary.BigEndian.Uint32(body[4:8])),
	}, nil
}

func encodeHeaders(w io.Writer, version ProtocolVersion, f headersFrame, pairs []headerPair, codec *headerCodec) error {
	block, err := codec.compress(pairs)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	writeStreamID(&body, f.StreamID)
	body.Write(block)
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FrameHeaders, flags: uint8(f.Flags), length: uint32(body.Len())}); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func decodeHeaders(body []byte, flags uint8, codec *headerCodec) (headersFrame, []headerPair, error) {
	if len(body) < 4 {
		return headersFrame{}, nil, errors.Wrap(ErrInvalidFrame, "short HEADERS")
	}
	sid := readStreamID(body[0:4])
	pairs, err := codec.decompress(body[4:])
	if err != nil {
		return headersFrame{}, nil, err
	}
	return headersFrame{StreamID: sid, Flags: ControlFlags(flags)}, pairs, nil
}

func encodeWindowUpdate(w io.Writer, version ProtocolVersion, f windowUpdateFrame) error {
	var body [8]byte
	binary.BigEndian.PutUint32(body[0:4], uint32(f.StreamID)&0x7FFFFFFF)
	binary.BigEndian.PutUint32(body[4:8], f.DeltaWindowSize&0x7FFFFFFF)
	if err := writeFrameHeader(w, frameHeader{control: true, version: version, typ: FrameWindowUpdate, length: 8}); err != nil {
		return err
	}
	_, err := w.Write(body[:])
	return err
}

func decodeWindowUpdate(body []byte) (windowUpdateFrame, error) {
	if len(body) != 8 {
		return windowUpdateFrame{}, errors.Wrap(ErrInvalidFrame, "bad WINDOW_UPDATE length")
	}
	return windowUpdateFrame{
		StreamID:        readStreamID(body[0:4]),
		DeltaWindowSize: binary.BigEndian.Uint32(body[4:8]) & 0x7FFFFFFF,
	}, nil
}

func encodeData(w io.Writer, f dataFrame) error {
	if len(f.Data) > MaxDataFrameChunk {
		return errors.Wrap(ErrInvalidFrame, "data frame payload exceeds maximum chunk size")
	}
	if err := writeFrameHeader(w, frameHeader{
		control: false, stream: f.StreamID, flags: uint8(f.Flags), length: uint32(len(f.Data)),
	}); err != nil {
		return err
	}
	_, err := w.Write(f.Data)
	return err
}

func writeStreamID(buf *bytes.Buffer, id StreamID) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id)&0x7FFFFFFF)
	buf.Write(b[:])
}

func readStreamID(b []byte) StreamID {
	return StreamID(binary.BigEndian.Uint32(b) & 0x7FFFFFFF)
}
