package ir_test

import (
	"testing"

	"github.com/a-panella/nvc/internal/ir"
	"github.com/stretchr/testify/require"
)

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "ADD", ir.OpAdd.String())
	require.Equal(t, "MACRO_FFICALL", ir.OpMacroFFICall.String())
	require.Equal(t, "INVALID", ir.Opcode(9999).String())
}

func TestIsMacroBoundaries(t *testing.T) {
	require.False(t, ir.OpRet.IsMacro())
	require.True(t, ir.OpMacroExp.IsMacro())
	require.True(t, ir.OpMacroPutPriv.IsMacro())
	require.False(t, ir.OpDebug.IsMacro())
}

func TestWidthBits(t *testing.T) {
	cases := []struct {
		w    ir.Width
		bits int
	}{
		{ir.Width8, 8},
		{ir.Width16, 16},
		{ir.Width32, 32},
		{ir.Width64, 64},
	}
	for _, c := range cases {
		require.Equal(t, c.bits, c.w.Bits())
	}
}

func TestWidthBitsPanicsOnInvalidWidth(t *testing.T) {
	require.Panics(t, func() { _ = ir.Width(42).Bits() })
}

func TestCondCodeString(t *testing.T) {
	require.Equal(t, "eq", ir.CcEQ.String())
	require.Equal(t, "invalid", ir.CondCode(200).String())
}
