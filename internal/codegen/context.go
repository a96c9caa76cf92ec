// Package codegen implements nvc's core code-generation backend: it
// lowers an already-built, per-function register IR (internal/ir) into
// either a JIT-published machine-code entry point or an AOT object file,
// via tinygo.org/x/go-llvm.
package codegen

import (
	"fmt"
	"sync"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

var initTargets sync.Once

func ensureTargetsInitialized() {
	initTargets.Do(func() {
		llvm.InitializeAllTargetInfos()
		llvm.InitializeAllTargets()
		llvm.InitializeAllTargetMCs()
		llvm.InitializeAllAsmParsers()
		llvm.InitializeAllAsmPrinters()
	})
}

// Context is the Target/Module Context of nvc's core §4.A: one per
// compilation unit, owning the target-machine descriptor, the module,
// the IR builder, the data layout, the type table, the prototype cache,
// the string pool, and — in AOT mode only — the shared module
// constructor. It is never shared across goroutines; per §5 every
// compilation job owns its own Context end to end.
type Context struct {
	llctx   llvm.Context
	mod     llvm.Module
	builder llvm.Builder

	target     llvm.Target
	machine    llvm.TargetMachine
	dataLayout llvm.TargetData
	triple     string

	types  typeTable
	protos prototypeCache
	strs   stringPool

	// blockPool supplies each function compile's blockRecord slice;
	// driveLowering resets it at the start of every function, so pages
	// allocated for one function's blocks are reused by the next.
	blockPool codegenapi.Pool[blockRecord]

	mode Mode
	ctor *ctorState // non-nil only in AOT mode, see aot.go
}

// RelocMode selects position-independent vs. default relocation, per
// §4.A ("PIC for AOT, default for JIT").
type RelocMode int

const (
	RelocDefault RelocMode = iota
	RelocPIC
)

func (r RelocMode) llvm() llvm.RelocMode {
	if r == RelocPIC {
		return llvm.RelocPIC
	}
	return llvm.RelocDefault
}

// create builds a Context targeting the host triple. codeModel uses
// LLVM's default; relocation is selected by the caller per §4.A.
func create(name string, reloc RelocMode) (*Context, error) {
	ensureTargetsInitialized()

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, fmt.Errorf("codegen: target lookup for %q: %w", triple, err)
	}

	machine := target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelDefault, reloc.llvm(), llvm.CodeModelDefault)

	dataLayout := machine.CreateTargetData()

	llctx := llvm.NewContext()
	mod := llctx.NewModule(name)
	mod.SetTarget(triple)
	mod.SetDataLayout(dataLayout.String())

	c := &Context{
		llctx:      llctx,
		mod:        mod,
		builder:    llctx.NewBuilder(),
		target:     target,
		machine:    machine,
		dataLayout: dataLayout,
		triple:     triple,
	}
	c.types.init(llctx)
	c.protos.init(c)
	c.strs.init(c)
	c.blockPool = codegenapi.NewPool[blockRecord]()
	return c, nil
}

// NewAOTContext creates a Context for ahead-of-time compilation of a
// whole unit named name. The caller must call FinalizeAOT(outputPath)
// exactly once, after every function in the unit has been lowered.
func NewAOTContext(name string) (*Context, error) {
	c, err := create(name, RelocPIC)
	if err != nil {
		return nil, err
	}
	c.mode = newAOTMode(c)
	return c, nil
}

// NewJITContext creates a Context for lazily compiling a single
// function into sess's dylib. Unlike an AOT Context, a successfully
// compiled JIT Context must not be passed to Dispose: jitMode.Publish
// hands module ownership to the execution engine it creates, and the
// Session retains that engine for its own lifetime.
func NewJITContext(name string, sess *Session) (*Context, error) {
	c, err := create(name, RelocDefault)
	if err != nil {
		return nil, err
	}
	c.mode = newJITMode(sess)
	return c, nil
}

// Module exposes the underlying LLVM module, chiefly for tests that want
// to assert on its textual form.
func (c *Context) Module() llvm.Module { return c.mod }

// Dispose releases the underlying LLVM context, builder, and target
// resources. Callers must not use the Context after calling Dispose.
func (c *Context) Dispose() {
	c.builder.Dispose()
	c.mod.Dispose()
	c.llctx.Dispose()
	c.dataLayout.Dispose()
	c.machine.Dispose()
}

// CompileFunction lowers fn into this Context's module and, depending on
// mode, either registers it with the AOT constructor or publishes it via
// the JIT session. See nvc's core §4.E for the lowering algorithm.
func (c *Context) CompileFunction(fn *ir.Function) (err error) {
	defer codegenapi.Recover(&err)
	driveLowering(c, fn)
	return nil
}
