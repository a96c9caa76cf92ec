package codegen

import (
	"fmt"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// lowerCursor tracks which CFG block is currently being lowered, so get()
// knows which blockRecord's out-values to read from. It is set by
// lowerBlock before dispatching each instruction.
type lowerCursor struct {
	fb  *funcBuilder
	rec *blockRecord
	idx int // current instruction's index into fn.Instrs
}

// get materializes op as an llvm.Value per nvc's core §4.F.
func (lc *lowerCursor) get(op ir.Operand) llvm.Value {
	ctx := lc.fb.ctx
	t := &ctx.types
	switch op.Kind {
	case ir.OperandReg:
		if !lc.rec.outSet[op.Reg] {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
				"register r%d read before definition", op.Reg)
		}
		return lc.rec.outReg[op.Reg]

	case ir.OperandImm:
		return llvm.ConstInt(t.I64, uint64(op.Imm), true)

	case ir.OperandImmF:
		return llvm.ConstFloat(t.F64, op.ImmF)

	case ir.OperandFrameAddr:
		if lc.fb.frame.IsNil() {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
				"frame address operand in a function with zero frame size")
		}
		idx := []llvm.Value{llvm.ConstInt(t.I32, 0, false), llvm.ConstInt(t.I64, uint64(op.Imm), false)}
		frameTy := llvm.ArrayType(t.I8, int(lc.fb.fn.FrameSize))
		return ctx.builder.CreateGEP2(frameTy, lc.fb.frame, idx, "")

	case ir.OperandCPoolAddr:
		if !lc.fb.cpool.IsNil() {
			arrTy := llvm.ArrayType(t.I8, len(lc.fb.fn.CPool))
			idx := []llvm.Value{llvm.ConstInt(t.I32, 0, false), llvm.ConstInt(t.I64, uint64(op.Imm), false)}
			return ctx.builder.CreateGEP2(arrTy, lc.fb.cpool, idx, "")
		}
		abs := lc.fb.cpoolAbs + uint64(op.Imm)
		return ctx.builder.CreateIntToPtr(llvm.ConstInt(t.I64, abs, false), t.Ptr, "")

	case ir.OperandRegOffset:
		base := lc.get(ir.RegOperand(op.Reg))
		return ctx.builder.CreateAdd(base, llvm.ConstInt(t.I64, uint64(op.Imm), true), "")

	case ir.OperandExitTag, ir.OperandHandleTag:
		return llvm.ConstInt(t.I32, uint64(op.Imm), true)

	case ir.OperandAbsAddr:
		if ctx.mode.name() == "aot" && op.Imm != 0 {
			codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
				"absolute address at non-zero offset %d must be indirected via get_func/get_foreign in AOT mode", op.Imm)
		}
		return ctx.builder.CreateIntToPtr(llvm.ConstInt(t.I64, uint64(op.Imm), false), t.Ptr, "")

	case ir.OperandForeign:
		return lc.fb.ctx.mode.EmitForeignReference(lc.fb, op.Sym, op.Spec)

	default:
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"unknown operand kind %d", op.Kind)
		panic("unreachable")
	}
}

// coerce converts v to to, per §4.F: integer widths via sign-extend or
// truncate, to i1 via "not equal to zero", integer<->pointer via
// inttoptr/ptrtoint, and integer<->double via bit-cast — never numeric
// conversion (that is the job of the dedicated FCVTNS/SCVTF ops in
// §4.G).
func (lc *lowerCursor) coerce(v llvm.Value, to llvm.Type) llvm.Value {
	b := lc.fb.ctx.builder
	from := v.Type()
	if from == to {
		return v
	}

	if to.TypeKind() == llvm.IntegerTypeKind && from.TypeKind() == llvm.IntegerTypeKind {
		if to.IntTypeWidth() == 1 {
			zero := llvm.ConstInt(from, 0, false)
			return b.CreateICmp(llvm.IntNE, v, zero, "")
		}
		if from.IntTypeWidth() == 1 {
			return b.CreateZExt(v, to, "")
		}
		if to.IntTypeWidth() > from.IntTypeWidth() {
			return b.CreateSExt(v, to, "")
		}
		return b.CreateTrunc(v, to, "")
	}

	if to.TypeKind() == llvm.PointerTypeKind && from.TypeKind() == llvm.IntegerTypeKind {
		return b.CreateIntToPtr(v, to, "")
	}
	if to.TypeKind() == llvm.IntegerTypeKind && from.TypeKind() == llvm.PointerTypeKind {
		return b.CreatePtrToInt(v, to, "")
	}

	if (to.TypeKind() == llvm.DoubleTypeKind && from.TypeKind() == llvm.IntegerTypeKind) ||
		(to.TypeKind() == llvm.IntegerTypeKind && from.TypeKind() == llvm.DoubleTypeKind) {
		return b.CreateBitCast(v, to, "")
	}

	codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
		"impossible coercion from %s to %s", from.String(), to.String())
	panic("unreachable")
}

// asDouble bit-casts a register's i64 payload to double; see §4.F/§4.G
// note that FP operands are carried bit-cast, never converted.
func (lc *lowerCursor) asDouble(v llvm.Value) llvm.Value {
	return lc.coerce(v, lc.fb.ctx.types.F64)
}

// setResult stores v into the result register named by in, applying
// sext_result or zext_result semantics per §4.F, and annotates it with
// a debug name.
func (lc *lowerCursor) setResult(in *ir.Instruction, v llvm.Value, zeroExtend bool) {
	if !in.HasResult {
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"opcode %s produced a value but has no result register", in.Op)
	}
	t := &lc.fb.ctx.types
	var widened llvm.Value
	switch v.Type().TypeKind() {
	case llvm.DoubleTypeKind:
		widened = lc.fb.ctx.builder.CreateBitCast(v, t.I64, "")
	case llvm.PointerTypeKind:
		widened = lc.fb.ctx.builder.CreatePtrToInt(v, t.I64, "")
	case llvm.IntegerTypeKind:
		if v.Type().IntTypeWidth() == 64 {
			widened = v
		} else if zeroExtend {
			widened = lc.fb.ctx.builder.CreateZExt(v, t.I64, "")
		} else {
			widened = lc.fb.ctx.builder.CreateSExt(v, t.I64, "")
		}
	default:
		codegenapi.FatalfAt(codegenapi.CategoryLoweringInvariant, lc.fb.fn.Name, lc.idx,
			"cannot widen result of kind %d to i64", v.Type().TypeKind())
	}
	widened.SetName(fmt.Sprintf("r%d", in.Result))
	lc.rec.outReg[in.Result] = widened
	lc.rec.outSet[in.Result] = true
}

// sextResult stores a sign-extended (or bit-cast, for doubles) result.
func (lc *lowerCursor) sextResult(in *ir.Instruction, v llvm.Value) { lc.setResult(in, v, false) }

// zextResult stores a zero-extended result.
func (lc *lowerCursor) zextResult(in *ir.Instruction, v llvm.Value) { lc.setResult(in, v, true) }

// setFlags records v (an i1) as this block's current flags out-value.
func (lc *lowerCursor) setFlags(v llvm.Value) {
	lc.rec.outFlags = v
}
