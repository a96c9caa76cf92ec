package codegen

import (
	"fmt"

	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// prototypeCache lazily materializes llvm.Value function declarations
// for the overflow intrinsics and the runtime helper symbols named in
// nvc's core §4.C, and reuses them on every subsequent request within
// the same Context. Lookups are idempotent: the first caller to ask for
// a given symbol pays for AddFunction, every later caller gets the
// cached llvm.Value.
type prototypeCache struct {
	ctx   *Context
	funcs map[string]llvm.Value
}

func (p *prototypeCache) init(ctx *Context) {
	p.ctx = ctx
	p.funcs = make(map[string]llvm.Value)
}

func (p *prototypeCache) get(name string, fnTy llvm.Type) llvm.Value {
	if v, ok := p.funcs[name]; ok {
		return v
	}
	if v := p.ctx.mod.NamedFunction(name); !v.IsNil() {
		p.funcs[name] = v
		return v
	}
	v := llvm.AddFunction(p.ctx.mod, name, fnTy)
	p.funcs[name] = v
	return v
}

// overflowIntrinsicName returns the canonical symbol for the
// signed/unsigned overflow-checked add/sub/mul intrinsic at width w, per
// §4.C.
func overflowIntrinsicName(signed bool, op string, w ir.Width) string {
	s := "u"
	if signed {
		s = "s"
	}
	return fmt.Sprintf("llvm.%s%s.with.overflow.i%d", s, op, w.Bits())
}

// OverflowIntrinsic returns the `{T,i1}(T,T) -> {T,i1}` overflow-checked
// arithmetic intrinsic for signedness/op/width.
func (p *prototypeCache) OverflowIntrinsic(signed bool, op string, w ir.Width) llvm.Value {
	name := overflowIntrinsicName(signed, op, w)
	t := &p.ctx.types
	it := t.IntType(w)
	fnTy := llvm.FunctionType(t.OverflowType(w), []llvm.Type{it, it}, false)
	return p.get(name, fnTy)
}

// Pow returns llvm.pow.f64(double,double) -> double.
func (p *prototypeCache) Pow() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.F64, []llvm.Type{t.F64, t.F64}, false)
	return p.get("llvm.pow.f64", fnTy)
}

// Round returns llvm.round.f64(double) -> double.
func (p *prototypeCache) Round() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.F64, []llvm.Type{t.F64}, false)
	return p.get("llvm.round.f64", fnTy)
}

// DoExit returns __nvc_do_exit(i32, ptr anchor, ptr args).
func (p *prototypeCache) DoExit() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.I32, t.Ptr, t.Ptr}, false)
	return p.get("__nvc_do_exit", fnTy)
}

// DoFFICall returns __nvc_do_fficall(ptr foreign, ptr anchor, ptr args).
func (p *prototypeCache) DoFFICall() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr}, false)
	return p.get("__nvc_do_fficall", fnTy)
}

// GetPriv returns __nvc_getpriv(i32) -> ptr.
func (p *prototypeCache) GetPriv() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.I32}, false)
	return p.get("__nvc_getpriv", fnTy)
}

// PutPriv returns __nvc_putpriv(i32, ptr).
func (p *prototypeCache) PutPriv() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.I32, t.Ptr}, false)
	return p.get("__nvc_putpriv", fnTy)
}

// MspaceAlloc returns __nvc_mspace_alloc(i32 size, i32 nelems) -> ptr.
func (p *prototypeCache) MspaceAlloc() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.I32, t.I32}, false)
	return p.get("__nvc_mspace_alloc", fnTy)
}

// Trampoline returns __nvc_trampoline(ptr func, ptr anchor, ptr args),
// the AOT indirection helper for CALL, per §4.G.
func (p *prototypeCache) Trampoline() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr}, false)
	return p.get("__nvc_trampoline", fnTy)
}

// Register returns __nvc_register(ptr name, ptr entry, ptr debug_bytes,
// i32 nirs), the AOT constructor's per-function registration call.
func (p *prototypeCache) Register() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr, t.I32}, false)
	return p.get("__nvc_register", fnTy)
}

// GetFunc returns __nvc_get_func(ptr name) -> ptr.
func (p *prototypeCache) GetFunc() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.Ptr}, false)
	return p.get("__nvc_get_func", fnTy)
}

// GetForeign returns __nvc_get_foreign(ptr name, i64 spec) -> ptr.
func (p *prototypeCache) GetForeign() llvm.Value {
	t := &p.ctx.types
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.Ptr, t.I64}, false)
	return p.get("__nvc_get_foreign", fnTy)
}
