package codegen

import (
	"fmt"
	"unsafe"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// blockRecord is the Per-block Lowering Record of nvc's core §3: the
// backend basic block, the block's in-values (phis for live-in virtual
// registers) and out-values (current definitions), and the incoming/
// outgoing flag value.
type blockRecord struct {
	bb llvm.BasicBlock

	// inReg/outReg are indexed by ir.Reg. inReg[r] is non-nil (valid)
	// only for registers live-in at this block; outReg[r] holds the
	// block's current definition for every register it ever defines or
	// passes through.
	inReg  []llvm.Value
	inSet  []bool
	outReg []llvm.Value
	outSet []bool

	inFlags  llvm.Value
	outFlags llvm.Value
}

// funcBuilder is the Per-function Lowering State of nvc's core §3: the
// backend function handle, the args pointer parameter, the frame
// allocation, the stack-allocated anchor, the constant-pool global
// (AOT only), the per-block records, and the source function plus its
// CFG. It is constructed at function entry and discarded once phis are
// stitched (step 6 of §4.E).
type funcBuilder struct {
	ctx *Context
	fn  *ir.Function

	llfn   llvm.Value
	entry  llvm.BasicBlock
	anchor llvm.Value
	frame  llvm.Value

	funcParam   llvm.Value
	callerParam llvm.Value
	argsParam   llvm.Value

	// cpool is valid only in AOT mode: a private global initialized from
	// fn.CPool. In JIT mode cpoolAbs holds the absolute address of the
	// Go-owned fn.CPool backing array instead (see §4.F).
	cpool    llvm.Value
	cpoolAbs uint64

	blocks []*blockRecord

	debug debugBuilder
}

// driveLowering implements nvc's core §4.E algorithm end to end for a
// single function within ctx.
func driveLowering(ctx *Context, fn *ir.Function) {
	if len(fn.Blocks) == 0 {
		codegenapi.Fatalf(codegenapi.CategoryLoweringInvariant, fn.Name, "function has no blocks")
	}

	fb := &funcBuilder{
		ctx: ctx,
		fn:  fn,
	}

	// Step 1: allocate the backend function with the fixed entry signature
	// void(ptr func, ptr caller_anchor, ptr args) — see types.go's Entry
	// comment and §6: arg 0 is the function handle, arg 1 the caller's
	// anchor, arg 2 the args array.
	fb.llfn = llvm.AddFunction(ctx.mod, fn.Name, ctx.types.Entry)
	fb.funcParam = fb.llfn.Param(0)
	fb.callerParam = fb.llfn.Param(1)
	fb.argsParam = fb.llfn.Param(2)
	fb.funcParam.SetName("func")
	fb.callerParam.SetName("caller_anchor")
	fb.argsParam.SetName("args")

	fb.debug = newDebugBuilder(fn)

	// Step 2: AOT registration + cpool global, before any block is lowered
	// so the constructor can reference the function by value.
	if ctx.ctor != nil {
		ctx.ctor.registerFunction(ctx, fb)
	} else {
		fb.cpoolAbs = cpoolAbsoluteAddress(fn)
	}

	// Step 3: entry block.
	fb.entry = llvm.AddBasicBlock(fb.llfn, "entry")
	ctx.builder.SetInsertPointAtEnd(fb.entry)

	fb.anchor = ctx.builder.CreateAlloca(ctx.types.Anchor, "anchor")
	storeAnchorField(ctx, fb.anchor, 0, fb.callerParam)
	storeAnchorField(ctx, fb.anchor, 1, fb.funcParam)
	storeAnchorField(ctx, fb.anchor, 2, llvm.ConstInt(ctx.types.I32, 0, false))

	if fn.FrameSize > 0 {
		frameTy := llvm.ArrayType(ctx.types.I8, int(fn.FrameSize))
		fb.frame = ctx.builder.CreateAlloca(frameTy, "frame")
		fb.frame.SetAlignment(8)
	}

	// Step 4: one backend basic block per CFG block, allocated from ctx's
	// block-record pool (reset per function) rather than the heap one
	// record at a time — see nvc's core §4.B pooling idiom.
	ctx.blockPool.Reset()
	fb.blocks = make([]*blockRecord, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		rec := ctx.blockPool.Allocate()
		rec.bb = llvm.AddBasicBlock(fb.llfn, fmt.Sprintf("blk%d", blk.Index))
		rec.inReg = make([]llvm.Value, fn.NumRegs)
		rec.inSet = make([]bool, fn.NumRegs)
		rec.outReg = make([]llvm.Value, fn.NumRegs)
		rec.outSet = make([]bool, fn.NumRegs)
		fb.blocks[i] = rec
	}

	// Step 5: per block, create phis for live-in registers and flags,
	// seed out[] from in[], then lower each instruction.
	for i := range fn.Blocks {
		blk := &fn.Blocks[i]
		rec := fb.blocks[i]
		ctx.builder.SetInsertPointAtEnd(rec.bb)

		if i == 0 {
			// Block 0 has no predecessors: flags starts false, and no
			// register has an incoming phi (it may still define registers
			// used later, which step 6 treats as a single-definition
			// phi-less value downstream by never reading rec.inReg for
			// block 0's own definitions).
			rec.outFlags = llvm.ConstInt(ctx.types.I1, 0, false)
		} else {
			rec.inFlags = ctx.builder.CreatePHI(ctx.types.I1, "flags")
			rec.outFlags = rec.inFlags
			for _, r := range fn.LiveInRegs(blk) {
				phi := ctx.builder.CreatePHI(ctx.types.I64, fmt.Sprintf("r%d.in", r))
				rec.inReg[r] = phi
				rec.inSet[r] = true
				rec.outReg[r] = phi
				rec.outSet[r] = true
			}
		}

		lowerBlock(fb, blk, rec)

		if last := rec.bb.LastInstruction(); last.IsNil() || last.IsATerminatorInst().IsNil() {
			if blk.Aborts {
				ctx.builder.SetInsertPointAtEnd(rec.bb)
				ctx.builder.CreateUnreachable()
			} else if !blk.Returns {
				next := blk.Index + 1
				if next >= len(fn.Blocks) {
					codegenapi.Fatalf(codegenapi.CategoryLoweringInvariant, fn.Name,
						"block %d falls through past the last block", blk.Index)
				}
				ctx.builder.SetInsertPointAtEnd(rec.bb)
				ctx.builder.CreateBr(fb.blocks[next].bb)
			}
		}
	}

	// Step 6: stitch phis now that every block's out-values are known.
	stitchPhis(fb)

	// Step 7: branch from the entry block into block 0.
	ctx.builder.SetInsertPointAtEnd(fb.entry)
	ctx.builder.CreateBr(fb.blocks[0].bb)

	// Step 8: verify and optimize.
	verifyAndOptimize(ctx, fb)

	// Step 9: publish. AOT mode already registered fb.llfn in the
	// constructor at step 2; JIT mode adds this module to the session's
	// dylib and resolves+publishes the compiled entry point here.
	if err := ctx.mode.Publish(ctx, fn, fb.llfn); err != nil {
		codegenapi.Fatalf(codegenapi.CategoryCodegenFailure, fn.Name, "%v", err)
	}
}

// storeAnchorField stores v into the Anchor struct's field idx at ptr.
func storeAnchorField(ctx *Context, anchorPtr llvm.Value, idx int, v llvm.Value) {
	gep := ctx.builder.CreateStructGEP2(ctx.types.Anchor, anchorPtr, idx, "")
	ctx.builder.CreateStore(v, gep)
}

// touchAnchorPosition stores the current IR instruction index into the
// anchor's ir_position field. Per §4.E edge cases and §8 structural
// invariants, this must happen immediately before every CALL,
// MACRO_EXIT, and MACRO_FFICALL lowering.
func touchAnchorPosition(fb *funcBuilder, idx int) {
	storeAnchorField(fb.ctx, fb.anchor, 2, llvm.ConstInt(fb.ctx.types.I32, uint64(idx), false))
}

// stitchPhis implements §4.E step 6: for each block S and predecessor P,
// add (P.outFlags, P.bb) to S.inFlags, and for each register r with a
// live phi in S, add (P.outReg[r], P.bb). Block 0 is skipped: it has no
// phis (its flags start as the constant false seeded in step 5), so a
// CFG edge from another block into block 0 is not wired.
func stitchPhis(fb *funcBuilder) {
	fn := fb.fn
	for i := range fn.Blocks {
		blk := &fn.Blocks[i]
		rec := fb.blocks[i]

		if i == 0 {
			continue // no predecessors to wire; outFlags was seeded directly.
		}

		incomingFlags := make([]llvm.Value, 0, len(blk.Preds))
		incomingBlocks := make([]llvm.BasicBlock, 0, len(blk.Preds))
		for _, p := range blk.Preds {
			pr := fb.blocks[p]
			incomingFlags = append(incomingFlags, pr.outFlags)
			incomingBlocks = append(incomingBlocks, pr.bb)
		}
		rec.inFlags.AddIncoming(incomingFlags, incomingBlocks)

		for r := ir.Reg(0); int(r) < fn.NumRegs; r++ {
			if !rec.inSet[r] {
				continue
			}
			vals := make([]llvm.Value, 0, len(blk.Preds))
			blks := make([]llvm.BasicBlock, 0, len(blk.Preds))
			for _, p := range blk.Preds {
				pr := fb.blocks[p]
				if !pr.outSet[r] {
					codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, fn.Name, blk.Start,
						"register r%d live-in at block %d has no definition on predecessor block %d", r, blk.Index, p)
				}
				vals = append(vals, pr.outReg[r])
				blks = append(blks, pr.bb)
			}
			rec.inReg[r].AddIncoming(vals, blks)
		}
	}
}

// verifyAndOptimize runs the module verifier (debug builds) and a
// standard set of function-level cleanup passes over fb.llfn, per §4.E
// step 8.
func verifyAndOptimize(ctx *Context, fb *funcBuilder) {
	if codegenapi.PrintPreOptIR {
		fmt.Println(fb.llfn.String())
	}

	if codegenapi.VerifyEveryFunction {
		if err := llvm.VerifyFunction(fb.llfn, llvm.ReturnStatusAction); err != nil {
			codegenapi.Fatalf(codegenapi.CategoryVerifierFailure, fb.fn.Name, "%v", err)
		}
	}

	fpm := llvm.NewFunctionPassManagerForModule(ctx.mod)
	defer fpm.Dispose()
	fpm.AddScalarReplAggregatesPass()
	fpm.AddInstructionCombiningPass()
	fpm.AddReassociatePass()
	fpm.AddGVNPass()
	fpm.AddCFGSimplificationPass()
	fpm.InitializeFunc()
	fpm.RunFunc(fb.llfn)
	fpm.FinalizeFunc()

	if codegenapi.PrintPostOptIR {
		fmt.Println(fb.llfn.String())
	}
}

// cpoolAbsoluteAddress returns the absolute address of fn's
// Go-allocated constant pool bytes, used in JIT mode where the constant
// pool is addressed directly rather than via a module-global (§4.F).
func cpoolAbsoluteAddress(fn *ir.Function) uint64 {
	if len(fn.CPool) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&fn.CPool[0])))
}
