package parallel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vijaysm/halo-exchange/mesh"
)

// Wire records are hand-packed big-endian, matching the transport's frame
// header. Payloads are internal to one protocol phase and never persisted.

func appendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func appendU16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

func appendU32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

func appendU64(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, v)
}

func appendF64(dst []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(v))
}

func appendKey(dst []byte, k mesh.GlobalKey) []byte {
	dst = appendU16(dst, uint16(len(k)))
	return append(dst, k...)
}

// wireReader decodes a payload with a sticky error, so record parsing can
// run unchecked and fail once at the end.
type wireReader struct {
	buf []byte
	off int
	err error
}

func newWireReader(buf []byte) *wireReader {
	return &wireReader{buf: buf}
}

func (r *wireReader) more() bool {
	return r.err == nil && r.off < len(r.buf)
}

func (r *wireReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("parallel: truncated payload at offset %d, need %d of %d bytes",
			r.off, n, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *wireReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *wireReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *wireReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *wireReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *wireReader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *wireReader) key() mesh.GlobalKey {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return mesh.GlobalKey(b)
}

func (r *wireReader) handle() mesh.EntityHandle {
	return mesh.EntityHandle(r.u64())
}
