package binary

import (
	"bytes"
	"encoding/binary"
)

// PaddedU32Size is the width of a padded 32-bit LEB128 field.
const PaddedU32Size = 5

// PaddedU64Size is the width of a padded 64-bit LEB128 field.
const PaddedU64Size = 10

// Writer provides buffered writing utilities for WASM binary encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	w.WriteU64(uint64(v))
}

// WriteU64 writes an unsigned LEB128 encoded uint64.
func (w *Writer) WriteU64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteS32 writes a signed LEB128 encoded int32.
func (w *Writer) WriteS32(v int32) {
	w.WriteS64(int64(v))
}

// WriteS64 writes a signed LEB128 encoded int64.
func (w *Writer) WriteS64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && (b&0x40) == 0) || (v == -1 && (b&0x40) != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// WriteU32Padded writes v as an unsigned LEB128 padded to exactly 5 bytes.
func (w *Writer) WriteU32Padded(v uint32) {
	var buf [PaddedU32Size]byte
	putU32Padded(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteS32Padded writes v as a signed LEB128 padded to exactly 5 bytes.
func (w *Writer) WriteS32Padded(v int32) {
	var buf [PaddedU32Size]byte
	x := int64(v)
	for i := 0; i < PaddedU32Size-1; i++ {
		buf[i] = byte(x&0x7f) | 0x80
		x >>= 7
	}
	buf[PaddedU32Size-1] = byte(x & 0x7f)
	w.buf.Write(buf[:])
}

// WriteS64Padded writes v as a signed LEB128 padded to exactly 10 bytes.
func (w *Writer) WriteS64Padded(v int64) {
	var buf [PaddedU64Size]byte
	for i := 0; i < PaddedU64Size-1; i++ {
		buf[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	buf[PaddedU64Size-1] = byte(v & 0x7f)
	w.buf.Write(buf[:])
}

// WriteU32Width writes v as an unsigned LEB128 of the given width. Widths
// below the minimal encoding fall back to the minimal encoding.
func (w *Writer) WriteU32Width(v uint32, width int) {
	if width <= SizeU64(uint64(v)) || width > PaddedU32Size {
		w.WriteU32(v)
		return
	}
	for i := 0; i < width-1; i++ {
		w.buf.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v & 0x7f))
}

// ReserveU32 writes a zero-valued padded 5-byte field and returns its position
// for a later PatchU32.
func (w *Writer) ReserveU32() int {
	pos := w.buf.Len()
	w.WriteU32Padded(0)
	return pos
}

// PatchU32 overwrites a field previously reserved with ReserveU32.
func (w *Writer) PatchU32(pos int, v uint32) {
	putU32Padded(w.buf.Bytes()[pos:pos+PaddedU32Size], v)
}

// putU32Padded stores v into dst[:5] as a padded unsigned LEB128.
func putU32Padded(dst []byte, v uint32) {
	for i := 0; i < PaddedU32Size-1; i++ {
		dst[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	dst[PaddedU32Size-1] = byte(v & 0x7f)
}

// WriteName writes a UTF-8 encoded name (length-prefixed).
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteFixed32 writes v as four little-endian bytes.
func (w *Writer) WriteFixed32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// SizeU64 returns the minimal unsigned LEB128 width of v.
func SizeU64(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// SizeS64 returns the minimal signed LEB128 width of v.
func SizeS64(v int64) int {
	n := 1
	for {
		b := v & 0x7f
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return n
		}
		n++
	}
}
