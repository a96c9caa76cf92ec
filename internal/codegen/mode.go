package codegen

import (
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// Mode is the capability set that distinguishes JIT lowering from AOT
// lowering. The upstream backend this package is modeled on branches on
// "does a module constructor object exist" throughout; nvc's core
// Design Notes flags that as a re-architecture target, so lowering code
// in this package never tests "am I AOT" directly — it calls through
// Mode instead, and the two concrete implementations (jitMode, aotMode)
// live next to the component that constructs them (jit.go, aot.go).
type Mode interface {
	// EmitCall emits the full dispatch sequence for a CALL to the named
	// function, per §4.G: in JIT mode a direct call through an absolute
	// constant entry pointer; in AOT mode a load from a private
	// "<name>.func" global (populated by __nvc_get_func at
	// constructor time) dispatched via __nvc_trampoline. The caller has
	// already stored ir_position into the anchor.
	EmitCall(fb *funcBuilder, name string)

	// EmitForeignReference returns an llvm.Value of pointer type bound to
	// the named foreign (FFI) symbol with the given calling-convention
	// spec word, per §4.G MACRO_FFICALL.
	EmitForeignReference(fb *funcBuilder, sym string, spec int64) llvm.Value

	// Publish is called once per compiled function, after the entry
	// function has been emitted and (in AOT mode) registered in the
	// constructor. JIT mode uses this to add the module to the session's
	// dylib and publish the resulting pointer; AOT mode is a no-op here
	// since publication happens once for the whole object at
	// FinalizeAOT.
	Publish(ctx *Context, fn *ir.Function, entry llvm.Value) error

	// name reports "jit" or "aot" for diagnostics.
	name() string
}
