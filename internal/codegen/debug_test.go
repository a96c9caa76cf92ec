package codegen

import (
	"testing"

	"github.com/a-panella/nvc/internal/ir"
	"github.com/stretchr/testify/require"
)

func sampleFunctionWithDebugInfo() *ir.Function {
	return &ir.Function{
		Name:    "proc",
		NumRegs: 1,
		Instrs: []ir.Instruction{
			{Op: ir.OpDebug, DebugIsFile: true, DebugFile: "proc.vhd", DebugLine: 10},
			{Op: ir.OpMov, Result: 0, HasResult: true, Args: []ir.Operand{ir.ImmOperand(1)}},
			{Op: ir.OpDebug, DebugLine: 11},
			{Op: ir.OpJump, Cc: ir.CcNone},
			{Op: ir.OpRet},
		},
		Blocks: []ir.Block{
			{Index: 0, Start: 0, End: 4},
			{Index: 1, Start: 4, End: 5, Preds: []int{0}, Returns: true},
		},
	}
}

func TestDebugStreamRoundTrip(t *testing.T) {
	fn := sampleFunctionWithDebugInfo()
	stream := encodeDebugStream(fn)

	entries := DecodeDebugStream(stream)

	var target *DecodedDebugEntry
	var locs []DecodedDebugEntry
	for i := range entries {
		e := entries[i]
		if e.IsTarget {
			target = &entries[i]
			continue
		}
		locs = append(locs, e)
	}

	require.NotNil(t, target, "block 1's start must be marked with a TARGET entry")
	require.Equal(t, 2, target.IRIndex, "IRIndex counts emitted (non-DEBUG) instructions, not raw array slots")

	require.Len(t, locs, 2)
	require.Equal(t, "proc.vhd", locs[0].File)
	require.Equal(t, 10, locs[0].Line)
	require.Equal(t, "proc.vhd", locs[1].File, "file carries forward to the next LOCINFO record")
	require.Equal(t, 11, locs[1].Line)
}

func TestDebugStreamLongTrapRun(t *testing.T) {
	fn := &ir.Function{Name: "longrun", NumRegs: 1}
	for i := 0; i < 40; i++ {
		fn.Instrs = append(fn.Instrs, ir.Instruction{Op: ir.OpNeg, Result: 0, HasResult: true,
			Args: []ir.Operand{ir.RegOperand(0)}})
	}
	fn.Instrs = append(fn.Instrs, ir.Instruction{Op: ir.OpRet})
	fn.Blocks = []ir.Block{{Index: 0, Start: 0, End: len(fn.Instrs)}}

	stream := encodeDebugStream(fn)
	entries := DecodeDebugStream(stream)
	require.Empty(t, entries, "a run with no targets or debug records decodes to nothing but STOP")
}

func TestDebugBuilderCachesEncoding(t *testing.T) {
	fn := sampleFunctionWithDebugInfo()
	db := newDebugBuilder(fn)
	first := db.Encode()
	second := db.Encode()
	require.True(t, &first[0] == &second[0], "Encode must memoize rather than re-walk the instruction array")
}
