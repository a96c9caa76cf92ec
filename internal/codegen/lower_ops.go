package codegen

import (
	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// JITMaxArgs is the fixed size of the args array threaded through every
// entry function, per §6. RECV/SEND at index JITMaxArgs-1 succeeds;
// at JITMaxArgs it is a lowering invariant violation (§8 boundary
// behavior).
const JITMaxArgs = 64

// opHandler lowers one instruction. Per nvc's core Design Notes
// ("per-instruction dispatch table" re-architecture), handlers are
// looked up from opTable rather than selected by a large switch; each
// handler shares the narrow lowerCursor context (current function
// builder, current block record, current instruction index).
type opHandler func(lc *lowerCursor, in *ir.Instruction)

var opTable map[ir.Opcode]opHandler

func init() {
	opTable = map[ir.Opcode]opHandler{
		ir.OpRecv:  lowerRecv,
		ir.OpSend:  lowerSend,
		ir.OpStore: lowerStore,
		ir.OpLoad:  lowerLoad,
		ir.OpULoad: lowerULoad,

		ir.OpAdd: lowerArith(llvm.OpAdd, "add"),
		ir.OpSub: lowerArith(llvm.OpSub, "sub"),
		ir.OpMul: lowerArith(llvm.OpMul, "mul"),
		ir.OpDiv: lowerDiv,
		ir.OpRem: lowerRem,

		ir.OpFAdd:   lowerFBinOp(llvm.OpFAdd),
		ir.OpFSub:   lowerFBinOp(llvm.OpFSub),
		ir.OpFMul:   lowerFBinOp(llvm.OpFMul),
		ir.OpFDiv:   lowerFBinOp(llvm.OpFDiv),
		ir.OpFNeg:   lowerFNeg,
		ir.OpFCvtNS: lowerFCvtNS,
		ir.OpSCvtF:  lowerSCvtF,

		ir.OpNot: lowerNot,
		ir.OpAnd: lowerBitwise(llvm.OpAnd),
		ir.OpOr:  lowerBitwise(llvm.OpOr),
		ir.OpXor: lowerBitwise(llvm.OpXor),

		ir.OpCmp:  lowerCmp,
		ir.OpFCmp: lowerFCmp,
		ir.OpCSet: lowerCSet,
		ir.OpCSel: lowerCSel,

		ir.OpJump: lowerJump,
		ir.OpCall: lowerCall,
		ir.OpLea:  lowerLea,
		ir.OpMov:  lowerMov,
		ir.OpNeg:  lowerNeg,
		ir.OpRet:  lowerRet,
		ir.OpDebug: func(*lowerCursor, *ir.Instruction) {
			// No code: contributes only to the debug byte stream, computed
			// separately by debug.go from the Function directly.
		},

		ir.OpMacroExp:     lowerMacroExp,
		ir.OpMacroFExp:    lowerMacroFExp,
		ir.OpMacroCopy:    lowerMacroCopy,
		ir.OpMacroBzero:   lowerMacroBzero,
		ir.OpMacroExit:    lowerMacroExit,
		ir.OpMacroFFICall: lowerMacroFFICall,
		ir.OpMacroGAlloc:  lowerMacroGAlloc,
		ir.OpMacroGetPriv: lowerMacroGetPriv,
		ir.OpMacroPutPriv: lowerMacroPutPriv,
	}
}

// lowerBlock lowers every instruction in blk in order, dispatching
// through opTable. Per §4.G, any opcode/operand combination outside the
// documented contract is a programmer error: handlers call
// codegenapi.FatalfAt instead of attempting a best-effort lowering.
func lowerBlock(fb *funcBuilder, blk *ir.Block, rec *blockRecord) {
	instrs := fb.fn.InstrsOf(blk)
	for j := range instrs {
		idx := blk.Start + j
		in := &instrs[j]
		h, ok := opTable[in.Op]
		if !ok {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, fb.fn.Name, idx, "unknown opcode %s", in.Op)
		}
		lc := &lowerCursor{fb: fb, rec: rec, idx: idx}
		h(lc, in)
	}
}

func argsSlot(lc *lowerCursor, n int64) llvm.Value {
	if n < 0 || n >= JITMaxArgs {
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"args index %d out of range [0, %d)", n, JITMaxArgs)
	}
	t := &lc.fb.ctx.types
	idx := []llvm.Value{llvm.ConstInt(t.I32, uint64(n), false)}
	return lc.fb.ctx.builder.CreateGEP2(t.I64, lc.fb.argsParam, idx, "")
}

func lowerRecv(lc *lowerCursor, in *ir.Instruction) {
	n := in.Arg(0).Imm
	slot := argsSlot(lc, n)
	v := lc.fb.ctx.builder.CreateLoad2(lc.fb.ctx.types.I64, slot, "")
	lc.sextResult(in, v)
}

func lowerSend(lc *lowerCursor, in *ir.Instruction) {
	n := in.Arg(0).Imm
	v := lc.get(in.Arg(1))
	slot := argsSlot(lc, n)
	lc.fb.ctx.builder.CreateStore(v, slot)
}

func lowerStore(lc *lowerCursor, in *ir.Instruction) {
	addr := lc.get(in.Arg(0))
	v := lc.get(in.Arg(1))
	ty := lc.fb.ctx.types.IntType(in.Width)
	lc.fb.ctx.builder.CreateStore(lc.coerce(v, ty), addr)
}

func lowerLoad(lc *lowerCursor, in *ir.Instruction) {
	addr := lc.get(in.Arg(0))
	ty := lc.fb.ctx.types.IntType(in.Width)
	v := lc.fb.ctx.builder.CreateLoad2(ty, addr, "")
	lc.sextResult(in, v)
}

func lowerULoad(lc *lowerCursor, in *ir.Instruction) {
	addr := lc.get(in.Arg(0))
	ty := lc.fb.ctx.types.IntType(in.Width)
	v := lc.fb.ctx.builder.CreateLoad2(ty, addr, "")
	lc.zextResult(in, v)
}

// lowerArith returns a handler for ADD/SUB/MUL, which per §4.G branch on
// Cc: CcO calls the signed-overflow intrinsic and sign-extends,
// CcC calls the unsigned-carry intrinsic and zero-extends, and any
// other Cc emits a plain i64 operation.
func lowerArith(plain llvm.Opcode, name string) opHandler {
	return func(lc *lowerCursor, in *ir.Instruction) {
		a := lc.get(in.Arg(0))
		b := lc.get(in.Arg(1))
		t := &lc.fb.ctx.types

		switch in.Cc {
		case ir.CcO, ir.CcC:
			signed := in.Cc == ir.CcO
			w := in.Width
			ity := t.IntType(w)
			na := lc.coerce(a, ity)
			nb := lc.coerce(b, ity)
			fn := lc.fb.ctx.protos.OverflowIntrinsic(signed, name, w)
			fnTy := llvm.FunctionType(t.OverflowType(w), []llvm.Type{ity, ity}, false)
			res := lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{na, nb}, "")
			val := lc.fb.ctx.builder.CreateExtractValue(res, 0, "")
			ov := lc.fb.ctx.builder.CreateExtractValue(res, 1, "")
			lc.setFlags(ov)
			if signed {
				lc.sextResult(in, val)
			} else {
				lc.zextResult(in, val)
			}
		default:
			var v llvm.Value
			switch plain {
			case llvm.OpAdd:
				v = lc.fb.ctx.builder.CreateAdd(a, b, "")
			case llvm.OpSub:
				v = lc.fb.ctx.builder.CreateSub(a, b, "")
			case llvm.OpMul:
				v = lc.fb.ctx.builder.CreateMul(a, b, "")
			}
			lc.sextResult(in, v)
		}
	}
}

func lowerDiv(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	b := lc.get(in.Arg(1))
	v := lc.fb.ctx.builder.CreateSDiv(a, b, "")
	lc.sextResult(in, v)
}

func lowerRem(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	b := lc.get(in.Arg(1))
	v := lc.fb.ctx.builder.CreateSRem(a, b, "")
	lc.sextResult(in, v)
}

func lowerFBinOp(op llvm.Opcode) opHandler {
	return func(lc *lowerCursor, in *ir.Instruction) {
		a := lc.asDouble(lc.get(in.Arg(0)))
		b := lc.asDouble(lc.get(in.Arg(1)))
		var v llvm.Value
		switch op {
		case llvm.OpFAdd:
			v = lc.fb.ctx.builder.CreateFAdd(a, b, "")
		case llvm.OpFSub:
			v = lc.fb.ctx.builder.CreateFSub(a, b, "")
		case llvm.OpFMul:
			v = lc.fb.ctx.builder.CreateFMul(a, b, "")
		case llvm.OpFDiv:
			v = lc.fb.ctx.builder.CreateFDiv(a, b, "")
		}
		lc.sextResult(in, v)
	}
}

func lowerFNeg(lc *lowerCursor, in *ir.Instruction) {
	a := lc.asDouble(lc.get(in.Arg(0)))
	v := lc.fb.ctx.builder.CreateFNeg(a, "")
	lc.sextResult(in, v)
}

func lowerFCvtNS(lc *lowerCursor, in *ir.Instruction) {
	a := lc.asDouble(lc.get(in.Arg(0)))
	rounded := lc.fb.ctx.builder.CreateCall2(
		llvm.FunctionType(lc.fb.ctx.types.F64, []llvm.Type{lc.fb.ctx.types.F64}, false),
		lc.fb.ctx.protos.Round(), []llvm.Value{a}, "")
	v := lc.fb.ctx.builder.CreateFPToSI(rounded, lc.fb.ctx.types.I64, "")
	lc.sextResult(in, v)
}

func lowerSCvtF(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	v := lc.fb.ctx.builder.CreateSIToFP(a, lc.fb.ctx.types.F64, "")
	lc.sextResult(in, v)
}

func lowerNot(lc *lowerCursor, in *ir.Instruction) {
	a := lc.coerce(lc.get(in.Arg(0)), lc.fb.ctx.types.I1)
	v := lc.fb.ctx.builder.CreateNot(a, "")
	lc.zextResult(in, v)
}

func lowerBitwise(op llvm.Opcode) opHandler {
	return func(lc *lowerCursor, in *ir.Instruction) {
		a := lc.coerce(lc.get(in.Arg(0)), lc.fb.ctx.types.I1)
		b := lc.coerce(lc.get(in.Arg(1)), lc.fb.ctx.types.I1)
		var v llvm.Value
		switch op {
		case llvm.OpAnd:
			v = lc.fb.ctx.builder.CreateAnd(a, b, "")
		case llvm.OpOr:
			v = lc.fb.ctx.builder.CreateOr(a, b, "")
		case llvm.OpXor:
			v = lc.fb.ctx.builder.CreateXor(a, b, "")
		}
		lc.zextResult(in, v)
	}
}

func intPredicate(cc ir.CondCode, lc *lowerCursor) llvm.IntPredicate {
	switch cc {
	case ir.CcEQ:
		return llvm.IntEQ
	case ir.CcNE:
		return llvm.IntNE
	case ir.CcGT:
		return llvm.IntSGT
	case ir.CcLT:
		return llvm.IntSLT
	case ir.CcLE:
		return llvm.IntSLE
	case ir.CcGE:
		return llvm.IntSGE
	default:
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"invalid CMP condition code %s", cc)
		panic("unreachable")
	}
}

func lowerCmp(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	b := lc.get(in.Arg(1))
	pred := intPredicate(in.Cc, lc)
	v := lc.fb.ctx.builder.CreateICmp(pred, a, b, "")
	lc.setFlags(v)
}

// floatPredicate maps CMP condition codes onto the unordered FCMP family
// per §4.G/§9: preserved verbatim from the source's behavior rather than
// switched to the ordered family, an open design question flagged again
// in DESIGN.md.
func floatPredicate(cc ir.CondCode, lc *lowerCursor) llvm.FloatPredicate {
	switch cc {
	case ir.CcEQ:
		return llvm.FloatUEQ
	case ir.CcNE:
		return llvm.FloatUNE
	case ir.CcGT:
		return llvm.FloatUGT
	case ir.CcLT:
		return llvm.FloatULT
	case ir.CcLE:
		return llvm.FloatULE
	case ir.CcGE:
		return llvm.FloatUGE
	default:
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"invalid FCMP condition code %s", cc)
		panic("unreachable")
	}
}

func lowerFCmp(lc *lowerCursor, in *ir.Instruction) {
	a := lc.asDouble(lc.get(in.Arg(0)))
	b := lc.asDouble(lc.get(in.Arg(1)))
	pred := floatPredicate(in.Cc, lc)
	v := lc.fb.ctx.builder.CreateFCmp(pred, a, b, "")
	lc.setFlags(v)
}

func lowerCSet(lc *lowerCursor, in *ir.Instruction) {
	lc.zextResult(in, lc.rec.outFlags)
}

func lowerCSel(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	b := lc.get(in.Arg(1))
	v := lc.fb.ctx.builder.CreateSelect(lc.rec.outFlags, a, b, "")
	lc.sextResult(in, v)
}

// lowerJump implements §4.G JUMP: CcNone is unconditional to the unique
// successor, CcT/CcF is conditional on flags with successor index 1 as
// the "true" target and the following block in index order as the
// "false" target. Any other Cc is a compile-time failure.
func lowerJump(lc *lowerCursor, in *ir.Instruction) {
	blk := lc.currentBlock()
	switch in.Cc {
	case ir.CcNone:
		if len(blk.Succs) != 1 {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
				"unconditional JUMP must have exactly one successor, got %d", len(blk.Succs))
		}
		lc.fb.ctx.builder.CreateBr(lc.fb.blocks[blk.Succs[0]].bb)
	case ir.CcT, ir.CcF:
		if len(blk.Succs) != 2 {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
				"conditional JUMP must have exactly two successors, got %d", len(blk.Succs))
		}
		trueTarget := lc.fb.blocks[blk.Succs[1]].bb
		falseTarget := lc.fb.blocks[blk.Index+1].bb
		flags := lc.rec.outFlags
		if in.Cc == ir.CcF {
			flags = lc.fb.ctx.builder.CreateNot(flags, "")
		}
		lc.fb.ctx.builder.CreateCondBr(flags, trueTarget, falseTarget)
	default:
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"JUMP with invalid condition code %s", in.Cc)
	}
}

func (lc *lowerCursor) currentBlock() *ir.Block {
	for i := range lc.fb.fn.Blocks {
		if lc.fb.blocks[i] == lc.rec {
			return &lc.fb.fn.Blocks[i]
		}
	}
	panic("codegen: block record not found in function")
}

// lowerCall implements §4.G CALL: store ir_position, then dispatch via
// the active Mode (direct absolute pointer in JIT, trampoline+private
// global in AOT).
func lowerCall(lc *lowerCursor, in *ir.Instruction) {
	touchAnchorPosition(lc.fb, lc.idx)
	lc.fb.ctx.mode.EmitCall(lc.fb, in.Callee)
}

func lowerLea(lc *lowerCursor, in *ir.Instruction) {
	arg := in.Arg(0)
	v := lc.get(arg)
	t := &lc.fb.ctx.types
	var result llvm.Value
	if v.Type().TypeKind() == llvm.PointerTypeKind {
		result = lc.fb.ctx.builder.CreatePtrToInt(v, t.I64, "")
	} else {
		// §9 open question: preserved verbatim — a non-pointer operand is
		// zero-extended rather than treated as a no-op, even though most
		// callers pass an already-i64 value.
		if v.Type().TypeKind() == llvm.IntegerTypeKind && v.Type().IntTypeWidth() < 64 {
			result = lc.fb.ctx.builder.CreateZExt(v, t.I64, "")
		} else {
			result = lc.coerce(v, t.I64)
		}
	}
	lc.zextResult(in, result)
}

func lowerMov(lc *lowerCursor, in *ir.Instruction) {
	lc.sextResult(in, lc.get(in.Arg(0)))
}

func lowerNeg(lc *lowerCursor, in *ir.Instruction) {
	a := lc.get(in.Arg(0))
	v := lc.fb.ctx.builder.CreateNeg(a, "")
	lc.sextResult(in, v)
}

func lowerRet(lc *lowerCursor, in *ir.Instruction) {
	lc.fb.ctx.builder.CreateRetVoid()
}

func lowerMacroExp(lc *lowerCursor, in *ir.Instruction) {
	base := lc.get(in.Arg(0))
	exp := lc.get(in.Arg(1))
	t := &lc.fb.ctx.types
	baseF := lc.fb.ctx.builder.CreateUIToFP(base, t.F64, "")
	expF := lc.fb.ctx.builder.CreateUIToFP(exp, t.F64, "")
	fnTy := llvm.FunctionType(t.F64, []llvm.Type{t.F64, t.F64}, false)
	res := lc.fb.ctx.builder.CreateCall2(fnTy, lc.fb.ctx.protos.Pow(), []llvm.Value{baseF, expF}, "")
	v := lc.fb.ctx.builder.CreateFPToUI(res, t.I64, "")
	lc.zextResult(in, v)
}

func lowerMacroFExp(lc *lowerCursor, in *ir.Instruction) {
	base := lc.asDouble(lc.get(in.Arg(0)))
	exp := lc.asDouble(lc.get(in.Arg(1)))
	t := &lc.fb.ctx.types
	fnTy := llvm.FunctionType(t.F64, []llvm.Type{t.F64, t.F64}, false)
	res := lc.fb.ctx.builder.CreateCall2(fnTy, lc.fb.ctx.protos.Pow(), []llvm.Value{base, exp}, "")
	lc.sextResult(in, res)
}

func lowerMacroCopy(lc *lowerCursor, in *ir.Instruction) {
	if !in.HasResult || !lc.rec.outSet[in.Result] {
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"MACRO_COPY requires the byte count pre-loaded into its result register")
	}
	count := lc.rec.outReg[in.Result]
	dst := lc.get(in.Arg(0))
	src := lc.get(in.Arg(1))
	lc.fb.ctx.builder.CreateMemMove(dst, 1, src, 1, count)
}

func lowerMacroBzero(lc *lowerCursor, in *ir.Instruction) {
	if !in.HasResult || !lc.rec.outSet[in.Result] {
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"MACRO_BZERO requires the byte count pre-loaded into its result register")
	}
	count := lc.rec.outReg[in.Result]
	dst := lc.get(in.Arg(0))
	zero := llvm.ConstInt(lc.fb.ctx.types.I8, 0, false)
	lc.fb.ctx.builder.CreateMemSet(dst, zero, count, 1)
}

func lowerMacroExit(lc *lowerCursor, in *ir.Instruction) {
	touchAnchorPosition(lc.fb, lc.idx)
	which := lc.get(in.Arg(0))
	fn := lc.fb.ctx.protos.DoExit()
	fnTy := llvm.FunctionType(lc.fb.ctx.types.Void, []llvm.Type{lc.fb.ctx.types.I32, lc.fb.ctx.types.Ptr, lc.fb.ctx.types.Ptr}, false)
	lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{which, lc.fb.anchor, lc.fb.argsParam}, "")
}

func lowerMacroFFICall(lc *lowerCursor, in *ir.Instruction) {
	touchAnchorPosition(lc.fb, lc.idx)
	arg := in.Arg(0)
	t := &lc.fb.ctx.types
	var foreign llvm.Value
	if lc.fb.ctx.mode.name() == "jit" {
		foreign = lc.get(arg)
		fn := lc.fb.ctx.protos.DoFFICall()
		fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr}, false)
		lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{foreign, lc.fb.anchor, lc.fb.argsParam}, "")
		return
	}
	foreign = lc.fb.ctx.mode.EmitForeignReference(lc.fb, arg.Sym, arg.Spec)
	fn := lc.fb.ctx.protos.DoFFICall()
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr}, false)
	lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{foreign, lc.fb.anchor, lc.fb.argsParam}, "")
}

func lowerMacroGAlloc(lc *lowerCursor, in *ir.Instruction) {
	touchAnchorPosition(lc.fb, lc.idx)
	size := lc.get(in.Arg(0))
	t := &lc.fb.ctx.types
	size32 := lc.coerce(size, t.I32)
	one := llvm.ConstInt(t.I32, 1, false)
	fn := lc.fb.ctx.protos.MspaceAlloc()
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.I32, t.I32}, false)
	ptr := lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{size32, one}, "")
	v := lc.fb.ctx.builder.CreatePtrToInt(ptr, t.I64, "")
	lc.zextResult(in, v)
}

func lowerMacroGetPriv(lc *lowerCursor, in *ir.Instruction) {
	slot := lc.get(in.Arg(0))
	t := &lc.fb.ctx.types
	slot32 := lc.coerce(slot, t.I32)
	fn := lc.fb.ctx.protos.GetPriv()
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.I32}, false)
	ptr := lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{slot32}, "")
	v := lc.fb.ctx.builder.CreatePtrToInt(ptr, t.I64, "")
	lc.zextResult(in, v)
}

func lowerMacroPutPriv(lc *lowerCursor, in *ir.Instruction) {
	slot := lc.get(in.Arg(0))
	ptrVal := lc.get(in.Arg(1))
	t := &lc.fb.ctx.types
	slot32 := lc.coerce(slot, t.I32)
	ptr := lc.coerce(ptrVal, t.Ptr)
	fn := lc.fb.ctx.protos.PutPriv()
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.I32, t.Ptr}, false)
	lc.fb.ctx.builder.CreateCall2(fnTy, fn, []llvm.Value{slot32, ptr}, "")
}
