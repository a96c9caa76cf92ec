package codegen

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// stringPool deduplicates private constant byte strings emitted into
// the module, per nvc's core §4.D. Interning the same bytes twice
// returns the previously-created global instead of emitting a second
// copy.
type stringPool struct {
	ctx     *Context
	byBytes map[string]llvm.Value
	next    int
}

func (p *stringPool) init(ctx *Context) {
	p.ctx = ctx
	p.byBytes = make(map[string]llvm.Value)
}

// Intern returns a byte-pointer constant referencing data, creating a
// new private unnamed-addr constant global the first time data (by
// content) is seen.
func (p *stringPool) Intern(data []byte) llvm.Value {
	key := string(data)
	if v, ok := p.byBytes[key]; ok {
		return v
	}

	arrTy := llvm.ArrayType(p.ctx.types.I8, len(data))
	g := llvm.AddGlobal(p.ctx.mod, arrTy, fmt.Sprintf(".Lstr.%d", p.next))
	p.next++

	elems := make([]llvm.Value, len(data))
	for i, b := range data {
		elems[i] = llvm.ConstInt(p.ctx.types.I8, uint64(b), false)
	}
	g.SetInitializer(llvm.ConstArray(p.ctx.types.I8, elems))
	g.SetLinkage(llvm.PrivateLinkage)
	g.SetGlobalConstant(true)
	g.SetUnnamedAddr(true)

	// With opaque pointers the raw global value already has pointer type
	// and needs no GEP to "decay" to a byte pointer (see nvc's core
	// Design Notes on targeting opaque pointers unconditionally).
	p.byBytes[key] = g
	return g
}
