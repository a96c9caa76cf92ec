package codegen

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/a-panella/nvc/internal/ir"
	"tinygo.org/x/go-llvm"
)

// calleeInfo records a published function's resolved addresses: the
// machine-code entry point itself, and the "raw function handle" passed
// as the entry signature's func argument on every subsequent call to it.
// This core models both as the same address — nvc's core leaves the
// handle/entry distinction to the external function-record layer (out of
// scope per §1), so collapsing them here is a deliberate simplification,
// not a missed field.
type calleeInfo struct {
	entryAddr  uint64
	handleAddr uint64
}

// Session is the JIT Session of nvc's core §4.I: a single long-lived
// object a host process creates once and uses to lazily compile
// functions one at a time, each into its own Context/dylib, resolving
// runtime-helper and foreign symbols and publishing the result with
// release-order semantics. A Session is safe for concurrent use; per §5
// each individual compilation still completes start to finish on one
// goroutine, but Register/Compile may be called from many.
type Session struct {
	cfg SessionConfig

	runtimeSymbols map[string]unsafe.Pointer
	foreignSymbols map[string]unsafe.Pointer

	mu      sync.Mutex
	callees map[string]calleeInfo
	slots   map[string]*EntrySlot
	engines []llvm.ExecutionEngine // retained so their code stays mapped
}

// EntrySlot is the atomic publication target for a single source
// function's compiled entry pointer, per §4.I "publishes...with
// release-order semantics". Go's sync/atomic does not name an explicit
// release/acquire mode, but a Store followed cross-goroutine by a Load
// of the same address is sequenced by the memory model exactly as a
// release/acquire pair would be — which is the guarantee this type
// exists to provide.
type EntrySlot struct {
	addr atomic.Uintptr
}

// Load returns the most recently published address, or 0 if the
// function has not yet been compiled.
func (s *EntrySlot) Load() uintptr { return s.addr.Load() }

func (s *EntrySlot) store(addr uintptr) { s.addr.Store(addr) }

// NewSession constructs a Session. runtimeSymbols maps every
// __nvc_do_exit/__nvc_do_fficall/__nvc_getpriv/... helper name the
// lowered IR may call to its host-process address; foreignSymbols maps
// FFI symbol names the same way. Both are typically built once at
// process start from the host's own symbol table.
func NewSession(runtimeSymbols, foreignSymbols map[string]unsafe.Pointer, warn func(string)) *Session {
	return &Session{
		cfg:            LoadSessionConfig(warn),
		runtimeSymbols: runtimeSymbols,
		foreignSymbols: foreignSymbols,
		callees:        make(map[string]calleeInfo),
		slots:          make(map[string]*EntrySlot),
	}
}

// Register associates fn's entry slot with the session ahead of
// compilation, so Publish can find it once fn is actually compiled. The
// host calls this once per source function, typically well before the
// function is ever hot enough to JIT.
func (s *Session) Register(name string, slot *EntrySlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = slot
}

// ShouldCompile reports whether name may be compiled: true unless
// NVC_JIT_ONLY is set and names a different function.
func (s *Session) ShouldCompile(name string) bool {
	return s.cfg.OnlyFunction == "" || s.cfg.OnlyFunction == name
}

// Compile lowers fn into a fresh Context and, via jitMode's Publish,
// resolves and publishes its entry point. It is a no-op returning nil
// when NVC_JIT_ONLY names a different function.
func (s *Session) Compile(fn *ir.Function) error {
	if !s.ShouldCompile(fn.Name) {
		return nil
	}
	ctx, err := NewJITContext(fn.Name, s)
	if err != nil {
		return err
	}
	return ctx.CompileFunction(fn)
}

func (s *Session) lookupCallee(name string) (calleeInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.callees[name]
	return info, ok
}

func (s *Session) lookupForeign(sym string) (unsafe.Pointer, bool) {
	p, ok := s.foreignSymbols[sym]
	return p, ok
}

func (s *Session) lookupSlot(name string) (*EntrySlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[name]
	return slot, ok
}

func (s *Session) registerCallee(name string, info calleeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callees[name] = info
}

func (s *Session) retain(ee llvm.ExecutionEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines = append(s.engines, ee)
}

// jitMode is the JIT Mode implementation, holding a back-reference to
// the owning Session so EmitCall/EmitForeignReference can resolve
// already-published addresses.
type jitMode struct {
	sess *Session
}

func newJITMode(sess *Session) Mode { return &jitMode{sess: sess} }

func (m *jitMode) name() string { return "jit" }

// EmitCall loads the callee's entry pointer and function handle as
// absolute constants, per §4.G, and calls through them directly using
// the fixed entry-function signature. The callee must already have been
// published — nvc's core leaves "what to do if it hasn't" (compile it
// synchronously, trap to an interpreter, ...) to the caller-side tiering
// policy, out of scope per §1.
func (m *jitMode) EmitCall(fb *funcBuilder, name string) {
	info, ok := m.sess.lookupCallee(name)
	if !ok {
		codegenapi.Fatalf(codegenapi.CategorySymbolResolution, fb.fn.Name,
			"callee %q has not been published to this session", name)
	}
	ctx := fb.ctx
	t := &ctx.types
	entryConst := ctx.builder.CreateIntToPtr(llvm.ConstInt(t.I64, info.entryAddr, false), t.EntryFnPtr, "")
	handleConst := ctx.builder.CreateIntToPtr(llvm.ConstInt(t.I64, info.handleAddr, false), t.Ptr, "")
	ctx.builder.CreateCall2(t.Entry, entryConst, []llvm.Value{handleConst, fb.anchor, fb.argsParam}, "")
}

// EmitForeignReference resolves sym directly against the session's host
// symbol table and returns it as an absolute-constant pointer; the spec
// word is not needed in JIT mode since there is no constructor-time
// indirection to carry it through.
func (m *jitMode) EmitForeignReference(fb *funcBuilder, sym string, spec int64) llvm.Value {
	addr, ok := m.sess.lookupForeign(sym)
	if !ok {
		codegenapi.Fatalf(codegenapi.CategorySymbolResolution, fb.fn.Name,
			"foreign symbol %q is not bound in this session", sym)
	}
	ctx := fb.ctx
	return ctx.builder.CreateIntToPtr(
		llvm.ConstInt(ctx.types.I64, uint64(uintptr(addr)), false), ctx.types.Ptr, "")
}

// Publish adds ctx's module to a fresh MCJIT execution engine, maps in
// every known runtime-helper symbol, resolves fn's compiled address,
// and stores it into the session's callee table and (if registered)
// fn's EntrySlot with release-order semantics. The engine is retained
// for the Session's lifetime so its generated code stays resident.
//
// NewMCJITCompiler takes ownership of ctx.mod; ctx.Dispose must never be
// called on a Context that reached this point successfully.
func (m *jitMode) Publish(ctx *Context, fn *ir.Function, entry llvm.Value) error {
	options := llvm.NewMCJITCompilerOptions()
	options.SetMCJITOptimizationLevel(2)
	ee, err := llvm.NewMCJITCompiler(ctx.mod, options)
	if err != nil {
		return err
	}

	for name, ptr := range m.sess.runtimeSymbols {
		if nf := ctx.mod.NamedFunction(name); !nf.IsNil() {
			ee.AddGlobalMapping(nf, ptr)
		}
	}

	addr := ee.GetFunctionAddress(fn.Name)
	if addr == 0 {
		codegenapi.Fatalf(codegenapi.CategorySymbolResolution, fn.Name,
			"MCJIT resolved a zero address for the compiled entry point")
	}

	info := calleeInfo{entryAddr: addr, handleAddr: addr}
	m.sess.registerCallee(fn.Name, info)
	if slot, ok := m.sess.lookupSlot(fn.Name); ok {
		slot.store(uintptr(addr))
	}
	m.sess.retain(ee)
	return nil
}
