package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	frameMagic   uint32 = 0x4d485831 // "MHX1"
	frameVersion uint16 = 1

	// FixedHeaderLen is the byte size of the wire header preceding every
	// payload.
	FixedHeaderLen = 20
)

var (
	ErrShortHeader     = errors.New("comm: short fixed header")
	ErrBadMagic        = errors.New("comm: bad frame magic")
	ErrBadVersion      = errors.New("comm: unsupported frame version")
	ErrPayloadTooLarge = errors.New("comm: payload too large")
)

// Header is the fixed wire header of the TCP transport.
type Header struct {
	Magic      uint32
	Version    uint16
	Sender     uint16
	MsgTag     uint32
	PayloadLen uint64
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64 * 1024 * 1024}
}

// EncodeHeader serializes a header in big-endian form.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Sender)
	binary.BigEndian.PutUint32(buf[8:12], h.MsgTag)
	binary.BigEndian.PutUint64(buf[12:20], h.PayloadLen)
	return buf
}

// DecodeHeader parses and validates a fixed header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("comm: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Sender:     binary.BigEndian.Uint16(b[6:8]),
		MsgTag:     binary.BigEndian.Uint32(b[8:12]),
		PayloadLen: binary.BigEndian.Uint64(b[12:20]),
	}
	if h.Magic != frameMagic {
		return Header{}, ErrBadMagic
	}
	if h.Version != frameVersion {
		return Header{}, ErrBadVersion
	}
	return h, nil
}

// ReadFrame reads one complete message from r.
func ReadFrame(r io.Reader, limits Limits) (sender, tag int, payload []byte, err error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, 0, nil, ErrShortHeader
		}
		return 0, 0, nil, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return 0, 0, nil, err
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return 0, 0, nil, ErrPayloadTooLarge
	}
	payload = make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, 0, nil, err
		}
	}
	return int(h.Sender), int(h.MsgTag), payload, nil
}

// WriteFrame writes one complete message to w.
func WriteFrame(w io.Writer, sender, tag int, payload []byte, limits Limits) error {
	if uint64(len(payload)) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	h := Header{
		Magic:      frameMagic,
		Version:    frameVersion,
		Sender:     uint16(sender),
		MsgTag:     uint32(tag),
		PayloadLen: uint64(len(payload)),
	}
	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
