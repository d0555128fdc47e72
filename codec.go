// Binary codec for fixed-layout structs and variable-length headers.
//
// Every persisted struct in this package (ArchiveHeader, DatabaseFile,
// Column, IndexEntry, ...) is written with a hand-written encode/decode pair
// rather than through reflection: the physical layout is fixed at compile
// time, so there is no runtime tag-walking on the hot path. This mirrors the
// source material's own style of driving header encode/decode from fixed
// byte offsets rather than a generic marshaler.
//
// Multi-byte integers are little-endian throughout; the format is not
// portable across endianness.
package strata

import (
	"encoding/binary"
	"io"
	"math"
)

// MaxStringLen is the largest string encodable with the one-byte length
// prefix used by writeString/readString.
const MaxStringLen = 255

// writeString encodes s as a one-byte length prefix followed by its raw
// UTF-8 bytes. The empty string encodes as a single zero byte.
func writeString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return ErrInvalidValue
	}
	if _, err := w.Write([]byte{byte(len(s))}); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := w.Write([]byte(s))
	return err
}

// readString decodes a string written by writeString. offset is the
// current stream position, used only to annotate a Corrupt error.
func readString(r io.Reader, offset int64) (string, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", corruptf(offset, "short read of string length prefix: %v", err)
	}
	n := int(lenBuf[0])
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", corruptf(offset+1, "short read of %d-byte string: %v", n, err)
	}
	return string(buf), nil
}

// Physical primitive tags, fixed because they are persisted (§4.1):
//
//	'?' u8 bool     'h' i16     'I' u32     'i' i32     'f' f32
//	'B' u8          'H' u16
const (
	TagBool    = '?'
	TagInt16   = 'h'
	TagUInt32  = 'I'
	TagInt32   = 'i'
	TagFloat32 = 'f'
	TagUInt8   = 'B'
	TagUInt16  = 'H'
)

// primSize returns the encoded width of a primitive tag, or 0 if unknown.
func primSize(tag byte) int {
	switch tag {
	case TagBool, TagUInt8:
		return 1
	case TagInt16, TagUInt16:
		return 2
	case TagUInt32, TagInt32, TagFloat32:
		return 4
	default:
		return 0
	}
}

// writePrim writes v (matching the Go type appropriate for tag) in
// little-endian form.
func writePrim(w io.Writer, tag byte, v any) error {
	var buf [4]byte
	switch tag {
	case TagBool:
		b := byte(0)
		if v.(bool) {
			b = 1
		}
		_, err := w.Write([]byte{b})
		return err
	case TagUInt8:
		_, err := w.Write([]byte{v.(uint8)})
		return err
	case TagInt16:
		binary.LittleEndian.PutUint16(buf[:2], uint16(v.(int16)))
		_, err := w.Write(buf[:2])
		return err
	case TagUInt16:
		binary.LittleEndian.PutUint16(buf[:2], v.(uint16))
		_, err := w.Write(buf[:2])
		return err
	case TagUInt32:
		binary.LittleEndian.PutUint32(buf[:4], v.(uint32))
		_, err := w.Write(buf[:4])
		return err
	case TagInt32:
		binary.LittleEndian.PutUint32(buf[:4], uint32(v.(int32)))
		_, err := w.Write(buf[:4])
		return err
	case TagFloat32:
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v.(float32)))
		_, err := w.Write(buf[:4])
		return err
	default:
		return ErrInvalidValue
	}
}

// readPrim reads one value of the given primitive tag, returning it boxed
// in an any. offset annotates any Corrupt error with the failing position.
func readPrim(r io.Reader, tag byte, offset int64) (any, error) {
	n := primSize(tag)
	if n == 0 {
		return nil, corruptf(offset, "unknown primitive tag %q", tag)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, corruptf(offset, "short read of %d-byte primitive %q: %v", n, tag, err)
	}
	switch tag {
	case TagBool:
		return buf[0] != 0, nil
	case TagUInt8:
		return buf[0], nil
	case TagInt16:
		return int16(binary.LittleEndian.Uint16(buf)), nil
	case TagUInt16:
		return binary.LittleEndian.Uint16(buf), nil
	case TagUInt32:
		return binary.LittleEndian.Uint32(buf), nil
	case TagInt32:
		return int32(binary.LittleEndian.Uint32(buf)), nil
	case TagFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
	default:
		return nil, corruptf(offset, "unknown primitive tag %q", tag)
	}
}
