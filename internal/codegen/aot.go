package codegen

import (
	"fmt"
	"os"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// nvcABIVersion is written into every AOT object's __nvc_abi_version
// global so the loader can refuse a unit built against an incompatible
// core.
const nvcABIVersion = 1

// ctorState is the AOT Module Constructor of nvc's core §4.H: every
// function lowered into an AOT Context registers itself into a single
// shared constructor, which the loader runs (via llvm.global_ctors) once
// the object is mapped in.
type ctorState struct {
	fn   llvm.Value
	body llvm.BasicBlock

	// funcGlobals/foreignGlobals dedupe "<name>.func"/"<sym>.ffi" globals
	// across every function in the unit, not just the one currently being
	// lowered — two functions calling the same callee share one resolved
	// pointer slot.
	funcGlobals    map[string]llvm.Value
	foreignGlobals map[string]llvm.Value
}

// newAOTMode builds the shared constructor, the __nvc_abi_version global,
// and the llvm.global_ctors entry, installs ctx.ctor, and returns the AOT
// Mode implementation.
func newAOTMode(ctx *Context) Mode {
	ctor := &ctorState{
		funcGlobals:    make(map[string]llvm.Value),
		foreignGlobals: make(map[string]llvm.Value),
	}
	ctor.fn = llvm.AddFunction(ctx.mod, "__nvc_module_ctor", ctx.types.Ctor)
	ctor.fn.SetLinkage(llvm.InternalLinkage)
	ctor.body = llvm.AddBasicBlock(ctor.fn, "entry")

	abi := llvm.AddGlobal(ctx.mod, ctx.types.I32, "__nvc_abi_version")
	abi.SetInitializer(llvm.ConstInt(ctx.types.I32, nvcABIVersion, false))
	abi.SetGlobalConstant(true)

	entry := llvm.ConstStruct([]llvm.Value{
		llvm.ConstInt(ctx.types.I32, ctorPriority, false),
		ctor.fn,
		llvm.ConstPointerNull(ctx.types.Ptr),
	}, false)
	gcVar := llvm.AddGlobal(ctx.mod, llvm.ArrayType(ctx.types.CtorEntry, 1), "llvm.global_ctors")
	gcVar.SetInitializer(llvm.ConstArray(ctx.types.CtorEntry, []llvm.Value{entry}))
	gcVar.SetLinkage(llvm.AppendingLinkage)

	ctx.ctor = ctor
	return &aotMode{}
}

// registerFunction implements §4.E step 2 for AOT: materializes the
// private constant-pool global from fn.CPool (if non-empty) and appends
// a __nvc_register call — carrying the function's name, entry pointer,
// encoded debug stream, and instruction count — to the shared
// constructor body.
func (c *ctorState) registerFunction(ctx *Context, fb *funcBuilder) {
	fn := fb.fn
	t := &ctx.types

	if len(fn.CPool) > 0 {
		arrTy := llvm.ArrayType(t.I8, len(fn.CPool))
		g := llvm.AddGlobal(ctx.mod, arrTy, fn.Name+".cpool")
		elems := make([]llvm.Value, len(fn.CPool))
		for i, b := range fn.CPool {
			elems[i] = llvm.ConstInt(t.I8, uint64(b), false)
		}
		g.SetInitializer(llvm.ConstArray(t.I8, elems))
		g.SetLinkage(llvm.PrivateLinkage)
		g.SetGlobalConstant(true)
		fb.cpool = g
	}

	ctx.builder.SetInsertPointAtEnd(c.body)

	nameGlobal := ctx.strs.Intern(append([]byte(fn.Name), 0))
	debugGlobal := ctx.strs.Intern(fb.debug.Encode())
	registerTy := llvm.FunctionType(t.Void, []llvm.Type{t.Ptr, t.Ptr, t.Ptr, t.I32}, false)
	ctx.builder.CreateCall2(registerTy, ctx.protos.Register(),
		[]llvm.Value{nameGlobal, fb.llfn, debugGlobal, llvm.ConstInt(t.I32, uint64(len(fn.Instrs)), false)}, "")

	// driveLowering repositions the builder at fb.entry immediately after
	// this call returns (§4.E step 3), so there is nothing to restore here.
}

// ensureFuncGlobal returns the private "<name>.func" global for a callee,
// creating it and emitting its __nvc_get_func population call into the
// constructor body the first time name is seen anywhere in the unit.
// Callers must save and restore the builder's insert point around this
// call: it repositions the builder into the constructor body.
func (c *ctorState) ensureFuncGlobal(ctx *Context, name string) llvm.Value {
	if g, ok := c.funcGlobals[name]; ok {
		return g
	}
	t := &ctx.types
	g := llvm.AddGlobal(ctx.mod, t.Ptr, name+".func")
	g.SetInitializer(llvm.ConstPointerNull(t.Ptr))
	g.SetLinkage(llvm.PrivateLinkage)
	c.funcGlobals[name] = g

	ctx.builder.SetInsertPointAtEnd(c.body)
	nameStr := ctx.strs.Intern(append([]byte(name), 0))
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.Ptr}, false)
	resolved := ctx.builder.CreateCall2(fnTy, ctx.protos.GetFunc(), []llvm.Value{nameStr}, "")
	ctx.builder.CreateStore(resolved, g)
	return g
}

// ensureForeignGlobal is ensureFuncGlobal's counterpart for MACRO_FFICALL
// foreign-symbol references, keyed by (sym, spec) since the same symbol
// name can be bound under two different calling-convention specs.
func (c *ctorState) ensureForeignGlobal(ctx *Context, sym string, spec int64) llvm.Value {
	key := fmt.Sprintf("%s#%d", sym, spec)
	if g, ok := c.foreignGlobals[key]; ok {
		return g
	}
	t := &ctx.types
	g := llvm.AddGlobal(ctx.mod, t.Ptr, sym+".ffi")
	g.SetInitializer(llvm.ConstPointerNull(t.Ptr))
	g.SetLinkage(llvm.PrivateLinkage)
	c.foreignGlobals[key] = g

	ctx.builder.SetInsertPointAtEnd(c.body)
	nameStr := ctx.strs.Intern(append([]byte(sym), 0))
	fnTy := llvm.FunctionType(t.Ptr, []llvm.Type{t.Ptr, t.I64}, false)
	resolved := ctx.builder.CreateCall2(fnTy, ctx.protos.GetForeign(),
		[]llvm.Value{nameStr, llvm.ConstInt(t.I64, uint64(spec), true)}, "")
	ctx.builder.CreateStore(resolved, g)
	return g
}

// aotMode is stateless: every method it needs (ctor, types, builder)
// hangs off the *Context or *funcBuilder passed in.
type aotMode struct{}

func (m *aotMode) name() string { return "aot" }

// EmitCall loads the callee's resolved entry pointer out of its
// "<name>.func" global and dispatches through __nvc_trampoline, which
// shares the fixed entry-function signature — the trampoline stands in
// for "entry" while the loaded handle becomes its "func" argument.
func (m *aotMode) EmitCall(fb *funcBuilder, name string) {
	ctx := fb.ctx
	saved := ctx.builder.GetInsertBlock()
	g := ctx.ctor.ensureFuncGlobal(ctx, name)
	ctx.builder.SetInsertPointAtEnd(saved)

	loaded := ctx.builder.CreateLoad2(ctx.types.Ptr, g, "")
	ctx.builder.CreateCall2(ctx.types.Entry, ctx.protos.Trampoline(),
		[]llvm.Value{loaded, fb.anchor, fb.argsParam}, "")
}

func (m *aotMode) EmitForeignReference(fb *funcBuilder, sym string, spec int64) llvm.Value {
	ctx := fb.ctx
	saved := ctx.builder.GetInsertBlock()
	g := ctx.ctor.ensureForeignGlobal(ctx, sym, spec)
	ctx.builder.SetInsertPointAtEnd(saved)

	return ctx.builder.CreateLoad2(ctx.types.Ptr, g, "")
}

// Publish is a no-op in AOT mode: the whole unit is published once, at
// FinalizeAOT.
func (m *aotMode) Publish(ctx *Context, fn *ir.Function, entry llvm.Value) error { return nil }

// FinalizeAOT closes the shared constructor, verifies and emits the
// module to an object file at outputPath. Callers must not call
// CompileFunction on ctx again afterward.
func (c *Context) FinalizeAOT(outputPath string) (err error) {
	defer codegenapi.Recover(&err)
	if c.ctor == nil {
		codegenapi.Fatalf(codegenapi.CategoryLoweringInvariant, "", "FinalizeAOT called on a non-AOT Context")
	}

	c.builder.SetInsertPointAtEnd(c.ctor.body)
	c.builder.CreateRetVoid()

	if verr := llvm.VerifyModule(c.mod, llvm.ReturnStatusAction); verr != nil {
		codegenapi.Fatalf(codegenapi.CategoryVerifierFailure, "", "%v", verr)
	}

	buf, err := c.machine.EmitToMemoryBuffer(c.mod, llvm.ObjectFile)
	if err != nil {
		codegenapi.Fatalf(codegenapi.CategoryCodegenFailure, "", "object emission: %v", err)
	}
	defer buf.Dispose()

	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		codegenapi.Fatalf(codegenapi.CategoryCodegenFailure, "", "writing %s: %v", outputPath, err)
	}
	return nil
}
