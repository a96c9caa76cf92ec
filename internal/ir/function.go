// Package ir models the register-based, per-function intermediate
// representation that the codegen backend (internal/codegen) lowers.
// Building this IR — the VHDL front-end, elaboration, and the
// interpreter that executes it directly — is out of scope for this
// repository (see nvc's core PURPOSE & SCOPE); this package only fixes
// the shape of the artifact the interpreter hands to the backend, so
// that the backend has something concrete to compile against.
package ir

// Block is one basic block of a Function's control-flow graph.
//
// Instructions belonging to the block are Function.Instrs[Start:End].
// A block has at most one terminator, as the last instruction in its
// range; JUMP with CcNone has exactly one successor, JUMP with CcT/CcF
// has exactly two (index 1 is the "true" target, the block immediately
// following in block order is the "false" target, per §4.G), and RET
// has none. A block with Aborts set and no terminator gets an
// `unreachable` inserted by the lowering driver; a block that falls off
// the end without a terminator and without Aborts gets an unconditional
// branch to the next block in index order.
type Block struct {
	Index        int
	Start, End   int
	Succs        []int
	Preds        []int
	Aborts       bool
	Returns      bool
}

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return b.End - b.Start }

// Function is a single source function's IR, as handed to the codegen
// backend's Per-function Lowering Driver (component E).
type Function struct {
	Name string

	// NumRegs is the number of virtual registers used by this function;
	// every register index in Instrs.Args/Result is in [0, NumRegs).
	NumRegs int

	// FrameSize is the byte size of the function's spill/locals frame.
	// Zero means no frame allocation is emitted (see core §8 boundary
	// behaviors).
	FrameSize int64

	// CPool is the function's constant pool: an immutable byte region
	// addressed by OperandCPoolAddr offsets.
	CPool []byte

	// Instrs is the flat instruction array; Block.Start/End slice it.
	Instrs []Instruction

	// Blocks is indexed by Block.Index == its position in this slice;
	// Blocks[0] is the function's unique entry block.
	Blocks []Block
}

// Block0 returns the function's entry block.
func (f *Function) Block0() *Block { return &f.Blocks[0] }

// InstrsOf returns the instruction slice belonging to block b.
func (f *Function) InstrsOf(b *Block) []Instruction { return f.Instrs[b.Start:b.End] }

// blockUseDef returns b's upward-exposed uses (registers read before any
// local definition) and its defs (registers this block assigns at least
// once), the two per-block sets a standard backward liveness dataflow
// is built from.
func blockUseDef(f *Function, b *Block) (use, def map[Reg]bool) {
	use = make(map[Reg]bool)
	def = make(map[Reg]bool)
	for i := b.Start; i < b.End; i++ {
		in := &f.Instrs[i]
		// MACRO_COPY/MACRO_BZERO read their byte count from the result
		// register, so it is a use when not already defined locally.
		if (in.Op == OpMacroCopy || in.Op == OpMacroBzero) && in.HasResult && !def[in.Result] {
			use[in.Result] = true
		}
		for _, a := range in.Args {
			if (a.Kind == OperandReg || a.Kind == OperandRegOffset) && !def[a.Reg] {
				use[a.Reg] = true
			}
		}
		if in.HasResult {
			def[in.Result] = true
		}
	}
	return use, def
}

func mapsEqual(a, b map[Reg]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if !b[r] {
			return false
		}
	}
	return true
}

// LiveInRegs returns the set of virtual registers live-in at block b: a
// register r is live-in if some instruction in b or a block reachable
// from b reads r before (or without) b redefining it. The codegen
// lowering driver calls this once per block to decide which phis to
// create; see nvc's core §4.E step 5 and the Per-block Lowering Record
// invariant in §3.
//
// This is standard backward dataflow over the block's CFG (Block.Succs),
// iterated to a fixpoint: liveOut[b] = union of liveIn[s] for s in
// b.Succs, liveIn[b] = use[b] ∪ (liveOut[b] \ def[b]). A single
// block-local scan of b's own instructions is not enough — a register
// defined in an ancestor block and used only in a descendant, with no
// use or redefinition in b itself, is live *through* b and still needs a
// phi there, even though nothing in b's own instruction range mentions
// it.
func (f *Function) LiveInRegs(b *Block) []Reg {
	n := len(f.Blocks)
	use := make([]map[Reg]bool, n)
	def := make([]map[Reg]bool, n)
	liveIn := make([]map[Reg]bool, n)
	liveOut := make([]map[Reg]bool, n)
	for i := range f.Blocks {
		use[i], def[i] = blockUseDef(f, &f.Blocks[i])
		liveIn[i] = make(map[Reg]bool)
		liveOut[i] = make(map[Reg]bool)
	}

	for {
		changed := false
		for i := range f.Blocks {
			newOut := make(map[Reg]bool)
			for _, s := range f.Blocks[i].Succs {
				for r := range liveIn[s] {
					newOut[r] = true
				}
			}
			newIn := make(map[Reg]bool, len(use[i]))
			for r := range use[i] {
				newIn[r] = true
			}
			for r := range newOut {
				if !def[i][r] {
					newIn[r] = true
				}
			}
			if !mapsEqual(newIn, liveIn[i]) || !mapsEqual(newOut, liveOut[i]) {
				changed = true
			}
			liveIn[i] = newIn
			liveOut[i] = newOut
		}
		if !changed {
			break
		}
	}

	in := liveIn[b.Index]
	out := make([]Reg, 0, len(in))
	for r := range in {
		out = append(out, r)
	}
	return out
}

// BranchTargets returns, in ascending order, the IR instruction index of
// every block's first instruction except block 0's — i.e. every
// instruction index reachable via a JUMP edge. The debug byte stream
// encoder (internal/codegen's debug component) marks each with a TARGET
// tag; see nvc's core §6.
func (f *Function) BranchTargets() []int {
	targets := make([]int, 0, len(f.Blocks)-1)
	for i := 1; i < len(f.Blocks); i++ {
		targets = append(targets, f.Blocks[i].Start)
	}
	return targets
}
