package ir_test

import (
	"testing"

	"github.com/a-panella/nvc/internal/ir"
	"github.com/stretchr/testify/require"
)

// buildTwoBlockFunction builds:
//
//	blk0: r0 = MOV #1 ; JUMP blk1
//	blk1: r1 = ADD r0, #2 ; RET
func buildTwoBlockFunction() *ir.Function {
	fn := &ir.Function{
		Name:    "twoblock",
		NumRegs: 2,
		Instrs: []ir.Instruction{
			{Op: ir.OpMov, Args: []ir.Operand{ir.ImmOperand(1)}, Result: 0, HasResult: true},
			{Op: ir.OpJump, Cc: ir.CcNone, Args: []ir.Operand{}},
			{Op: ir.OpAdd, Args: []ir.Operand{ir.RegOperand(0), ir.ImmOperand(2)}, Result: 1, HasResult: true},
			{Op: ir.OpRet},
		},
	}
	fn.Blocks = []ir.Block{
		{Index: 0, Start: 0, End: 2, Succs: []int{1}},
		{Index: 1, Start: 2, End: 4, Preds: []int{0}, Returns: true},
	}
	return fn
}

func TestBlockLen(t *testing.T) {
	fn := buildTwoBlockFunction()
	require.Equal(t, 2, fn.Block0().Len())
	require.Equal(t, 2, fn.Blocks[1].Len())
}

func TestLiveInRegsCrossesBlockBoundary(t *testing.T) {
	fn := buildTwoBlockFunction()

	require.Empty(t, fn.LiveInRegs(fn.Block0()), "block 0 defines r0 itself, nothing is live-in")

	live := fn.LiveInRegs(&fn.Blocks[1])
	require.Equal(t, []ir.Reg{0}, live, "r0 is used in block 1 before any redefinition there")
}

// buildThreeBlockFunction builds:
//
//	blk0: r0 = MOV #1 ; JUMP blk1
//	blk1: r1 = MOV #2 ; JUMP blk2   (r0 untouched, not used)
//	blk2: r2 = ADD r0, r1 ; RET
//
// r0 is defined in blk0 and first used in blk2, with no mention of it at
// all in blk1 — it is live *through* blk1.
func buildThreeBlockFunction() *ir.Function {
	fn := &ir.Function{
		Name:    "threeblock",
		NumRegs: 3,
		Instrs: []ir.Instruction{
			{Op: ir.OpMov, Args: []ir.Operand{ir.ImmOperand(1)}, Result: 0, HasResult: true},
			{Op: ir.OpJump, Cc: ir.CcNone, Args: []ir.Operand{}},
			{Op: ir.OpMov, Args: []ir.Operand{ir.ImmOperand(2)}, Result: 1, HasResult: true},
			{Op: ir.OpJump, Cc: ir.CcNone, Args: []ir.Operand{}},
			{Op: ir.OpAdd, Args: []ir.Operand{ir.RegOperand(0), ir.RegOperand(1)}, Result: 2, HasResult: true},
			{Op: ir.OpRet},
		},
	}
	fn.Blocks = []ir.Block{
		{Index: 0, Start: 0, End: 2, Succs: []int{1}},
		{Index: 1, Start: 2, End: 4, Preds: []int{0}, Succs: []int{2}},
		{Index: 2, Start: 4, End: 6, Preds: []int{1}, Returns: true},
	}
	return fn
}

func TestLiveInRegsPropagatesThroughUntouchedBlock(t *testing.T) {
	fn := buildThreeBlockFunction()

	live := fn.LiveInRegs(&fn.Blocks[1])
	require.Equal(t, []ir.Reg{0}, live, "r0 is live through block 1 even though block 1 never mentions it")
}

func TestBranchTargetsSkipsBlockZero(t *testing.T) {
	fn := buildTwoBlockFunction()
	require.Equal(t, []int{2}, fn.BranchTargets())
}

func TestInstructionArgOutOfRangeReturnsZeroValue(t *testing.T) {
	in := &ir.Instruction{Args: []ir.Operand{ir.ImmOperand(7)}}
	require.Equal(t, ir.ImmOperand(7), in.Arg(0))
	require.Equal(t, ir.Operand{}, in.Arg(1))
	require.Equal(t, ir.Operand{}, in.Arg(-1))
}
