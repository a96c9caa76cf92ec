package codegen

import (
	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// typeTable is the fixed set of primitive and aggregate types the
// backend needs, materialized once per Context and cached by slot. Per
// nvc's core §4.B, requesting a slot before init runs is a bug, not a
// recoverable condition — there is exactly one call site (create, in
// context.go) that calls init, so every other access just reads already-filled
// fields.
//
// This repo targets opaque pointers unconditionally (nvc's core Design
// Notes "Opaque-pointer dual mode" re-architecture): there is a single
// Ptr type used everywhere a pointer is needed, addressed with
// byte-granular GEPs rather than element-typed ones.
type typeTable struct {
	initialized bool

	Void llvm.Type
	I1   llvm.Type
	I8   llvm.Type
	I16  llvm.Type
	I32  llvm.Type
	I64  llvm.Type
	// Iptr is the pointer-sized integer type (i64 on every target this
	// backend supports; see frontend note in frontend/frontend.go-style
	// 64-bit assumption in nvc's core §3).
	Iptr llvm.Type
	Ptr  llvm.Type
	F64  llvm.Type

	// Overflow is indexed by ir.Width and holds the `{iN, i1}` unpacked
	// struct type overflow-checked arithmetic returns, per §4.C.
	Overflow [4]llvm.Type

	// Entry is the fixed entry-function signature type:
	// void(ptr func, ptr caller_anchor, ptr args), per §6.
	Entry llvm.Type
	// EntryFnPtr is Entry as a pointer-to-function type, used whenever a
	// value needs to be "the entry function pointer" rather than the
	// function type itself (the JIT call path's absolute entry-pointer
	// constant).
	EntryFnPtr llvm.Type

	// Ctor is a module constructor's signature: void().
	Ctor llvm.Type

	// Anchor is `{ptr caller, ptr function, i32 ir_position}`; field
	// order is load-bearing, see §3/§6.
	Anchor llvm.Type

	// CtorEntry is `{i32 priority, ptr ctor_fn, ptr data}`, the element
	// type of llvm.global_ctors; see §4.H.
	CtorEntry llvm.Type
}

// ctorPriority is the fixed priority every nvc module constructor uses.
const ctorPriority = 65535

func (t *typeTable) init(ctx llvm.Context) {
	t.Void = ctx.VoidType()
	t.I1 = ctx.Int1Type()
	t.I8 = ctx.Int8Type()
	t.I16 = ctx.Int16Type()
	t.I32 = ctx.Int32Type()
	t.I64 = ctx.Int64Type()
	t.Iptr = t.I64
	t.Ptr = llvm.PointerType(t.I8, 0)
	t.F64 = ctx.DoubleType()

	t.Overflow[ir.Width8] = ctx.StructType([]llvm.Type{t.I8, t.I1}, false)
	t.Overflow[ir.Width16] = ctx.StructType([]llvm.Type{t.I16, t.I1}, false)
	t.Overflow[ir.Width32] = ctx.StructType([]llvm.Type{t.I32, t.I1}, false)
	t.Overflow[ir.Width64] = ctx.StructType([]llvm.Type{t.I64, t.I1}, false)

	t.Entry = llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr}, false)
	t.EntryFnPtr = llvm.PointerType(t.Entry, 0)

	t.Ctor = llvm.FunctionType(t.Void, nil, false)

	t.Anchor = ctx.StructType([]llvm.Type{t.Ptr, t.Ptr, t.I32}, false)

	t.CtorEntry = ctx.StructType([]llvm.Type{t.I32, t.Ptr, t.Ptr}, false)

	t.initialized = true
}

// OverflowType returns the `{iN, i1}` struct type for width w.
func (t *typeTable) OverflowType(w ir.Width) llvm.Type {
	t.requireInit()
	return t.Overflow[w]
}

// IntType returns the plain integer type for width w.
func (t *typeTable) IntType(w ir.Width) llvm.Type {
	t.requireInit()
	switch w {
	case ir.Width8:
		return t.I8
	case ir.Width16:
		return t.I16
	case ir.Width32:
		return t.I32
	case ir.Width64:
		return t.I64
	default:
		codegenapi.Fatalf(codegenapi.CategoryLoweringInvariant, "", "invalid integer width %d", w)
		panic("unreachable")
	}
}

func (t *typeTable) requireInit() {
	if !t.initialized {
		panic("codegen: type table slot requested before initialization")
	}
}
