package binary

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/raweden/wasm-ylinker-sub002/errors"
)

// Reader decodes wasm primitives from a section payload or function body.
// Offsets are relative to the slice it was created over.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the offset of the next unread byte.
func (r *Reader) Position() int { return r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte { return r.data[r.pos:] }

// Skip consumes n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Len() {
		return r.truncated(n)
	}
	r.pos += n
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.truncated(1)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes consumes n bytes. The result aliases the reader's input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, r.truncated(n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.leb(32, false)
	return uint32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	return r.leb(64, false)
}

func (r *Reader) ReadS32() (int32, error) {
	v, err := r.leb(32, true)
	return int32(v), err
}

func (r *Reader) ReadS64() (int64, error) {
	v, err := r.leb(64, true)
	return int64(v), err
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	start := r.pos
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidData(errors.PhaseDecode, offset(start), "name is not valid UTF-8")
	}
	return string(b), nil
}

// ReadFixed32 reads a little-endian 32-bit word, the encoding of f32 immediates
// and the module header.
func (r *Reader) ReadFixed32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadFixed64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Wrap annotates err with what was being read and the current offset.
func (r *Reader) Wrap(what string, err error) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(what).
		Detail("at offset %d", r.pos).
		Cause(err).
		Build()
}

// leb decodes a LEB128 value of at most bits bits, allowing the padded
// forms that relocatable objects use. Signed values are sign extended from
// the final byte.
func (r *Reader) leb(bits uint, signed bool) (uint64, error) {
	start := r.pos
	limit := (bits + 6) / 7 * 7
	var v uint64
	var shift uint
	for {
		if r.pos >= len(r.data) {
			r.pos = start
			return 0, r.truncated(1)
		}
		b := r.data[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if signed && shift < 64 && b&0x40 != 0 {
				v |= ^uint64(0) << shift
			}
			if !signed && bits < 64 && v>>bits != 0 {
				return 0, errors.Overflow(errors.PhaseDecode, offset(start), v, fmt.Sprintf("u%d", bits))
			}
			return v, nil
		}
		if shift >= limit {
			return 0, errors.New(errors.PhaseDecode, errors.KindOverflow).
				Path(offset(start)...).
				Detail("LEB128 exceeds %d bytes", limit/7).
				Build()
		}
	}
}

func (r *Reader) truncated(want int) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(offset(r.pos)...).
		Detail("need %d bytes, %d left", want, r.Len()).
		Cause(io.ErrUnexpectedEOF).
		Build()
}

func offset(pos int) []string {
	return []string{fmt.Sprintf("@%d", pos)}
}
