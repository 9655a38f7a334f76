package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{
			&Error{Phase: PhaseDecode, Kind: KindOutOfBounds},
			"[decode] out_of_bounds",
		},
		{
			Reference(PhaseEncode, []string{"main", "7"}, "function"),
			"[encode] reference at main.7: function is not a member of the module",
		},
		{
			Wrap(PhaseVerify, KindInvalidData, errors.New("invalid function[2]"), "module does not compile"),
			"[verify] invalid_data: module does not compile (caused by: invalid function[2])",
		},
		{
			NotFound(PhaseRewrite, "global", "__stack_pointer"),
			`[rewrite] not_found: global "__stack_pointer" not found`,
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("rewrite f: %w", InvalidInput(PhaseRewrite, "resume index 12 outside function"))

	assert.ErrorIs(t, err, &Error{Phase: PhaseRewrite, Kind: KindInvalidInput})
	assert.NotErrorIs(t, err, &Error{Phase: PhaseDecode, Kind: KindInvalidInput})
	assert.NotErrorIs(t, err, &Error{Phase: PhaseRewrite, Kind: KindConflict})
}

func TestIsKind(t *testing.T) {
	inner := OutOfBounds(PhaseDecode, nil, 4, 2)
	wrapped := fmt.Errorf("code section: %w", Wrap(PhaseDecode, KindInvalidData, inner, "body 3"))

	assert.True(t, IsKind(wrapped, KindInvalidData))
	assert.True(t, IsKind(wrapped, KindOutOfBounds))
	assert.False(t, IsKind(wrapped, KindReference))
	assert.False(t, IsKind(io.EOF, KindInvalidData))
	assert.False(t, IsKind(nil, KindInvalidData))

	assert.ErrorIs(t, Load("read a.wasm", io.ErrUnexpectedEOF), io.ErrUnexpectedEOF)
}

func TestBuilder(t *testing.T) {
	b := New(PhaseDecode, KindInvalidShape).
		Path("f", "3").
		Value(byte(1)).
		Detail("reserved byte 0x%02x", 1)
	first := b.Build()
	second := b.Detail("plain %").Build()

	assert.Equal(t, "[decode] invalid_shape at f.3: reserved byte 0x01", first.Error())
	assert.Equal(t, byte(1), first.Value)
	assert.Equal(t, "plain %", second.Detail, "no formatting without arguments")
	assert.NotSame(t, first, second)
}

func TestConstructorKinds(t *testing.T) {
	for kind, err := range map[Kind]*Error{
		KindOutOfBounds:  OutOfBounds(PhaseDecode, nil, 10, 5),
		KindInvalidShape: InvalidShape(PhaseDecode, nil, "bad tag", byte(0x55)),
		KindUnsupported:  Unsupported(PhaseDecode, "opcode 0xff"),
		KindInvalidData:  InvalidData(PhaseDecode, nil, "bad magic"),
		KindOverflow:     Overflow(PhaseEncode, nil, uint64(1)<<40, "u32"),
		KindConflict:     Conflict(PhaseRewrite, nil, "scratch local in use"),
	} {
		assert.Equal(t, kind, err.Kind)
	}
	assert.Equal(t, 10, OutOfBounds(PhaseDecode, nil, 10, 5).Value)
}
