package ir

// Reg is a numbered virtual register carrying a 64-bit payload, per
// nvc's core Data Model (Virtual Register Model).
type Reg uint32

// RegInvalid marks an operand slot that does not reference a register.
const RegInvalid Reg = ^Reg(0)

// OperandKind tags the shape of an Operand. Each IR instruction's Args
// carry zero or more Operand(s) whose Kind the operation's lowering
// handler (internal/codegen's Operation Lowering component) dispatches
// on; see nvc's core §4.F Value/Address Lowering.
type OperandKind uint8

const (
	// OperandReg references a virtual register's current out-value.
	OperandReg OperandKind = iota
	// OperandImm is a 64-bit integer literal.
	OperandImm
	// OperandImmF is a double-precision literal.
	OperandImmF
	// OperandFrameAddr is a byte offset into the function's frame.
	OperandFrameAddr
	// OperandCPoolAddr is a byte offset into the function's constant pool.
	OperandCPoolAddr
	// OperandRegOffset is a virtual register plus a constant displacement.
	OperandRegOffset
	// OperandExitTag is an exit-reason constant consumed by MACRO_EXIT.
	OperandExitTag
	// OperandHandleTag is an opaque small-integer handle (e.g. a private
	// storage slot index for MACRO_GETPRIV/MACRO_PUTPRIV).
	OperandHandleTag
	// OperandAbsAddr is an absolute address, valid at offset 0 only in
	// AOT mode (anything else must be indirected, see §4.F).
	OperandAbsAddr
	// OperandForeign names a foreign (FFI) symbol together with its
	// calling-convention spec word.
	OperandForeign
)

// Operand is a single argument to an Instruction. Only the fields
// relevant to Kind are meaningful; see nvc's core §4.F for the per-kind
// contract.
type Operand struct {
	Kind OperandKind

	// Reg is valid for OperandReg and OperandRegOffset.
	Reg Reg
	// Imm carries: the literal for OperandImm, the byte offset for
	// OperandFrameAddr/OperandCPoolAddr, the displacement for
	// OperandRegOffset, the exit kind for OperandExitTag (as ExitKind),
	// and the handle value for OperandHandleTag.
	Imm int64
	// ImmF is valid for OperandImmF.
	ImmF float64
	// Sym names the absolute symbol (OperandAbsAddr) or foreign symbol
	// (OperandForeign).
	Sym string
	// Spec is the FFI calling-convention spec word, valid for
	// OperandForeign.
	Spec int64
}

// RegOperand constructs a register operand.
func RegOperand(r Reg) Operand { return Operand{Kind: OperandReg, Reg: r} }

// ImmOperand constructs a 64-bit integer literal operand.
func ImmOperand(v int64) Operand { return Operand{Kind: OperandImm, Imm: v} }

// ImmFOperand constructs a double literal operand.
func ImmFOperand(v float64) Operand { return Operand{Kind: OperandImmF, ImmF: v} }

// FrameAddrOperand constructs a frame-relative address operand.
func FrameAddrOperand(off int64) Operand { return Operand{Kind: OperandFrameAddr, Imm: off} }

// CPoolAddrOperand constructs a constant-pool-relative address operand.
func CPoolAddrOperand(off int64) Operand { return Operand{Kind: OperandCPoolAddr, Imm: off} }

// RegOffsetOperand constructs a register-plus-displacement address operand.
func RegOffsetOperand(r Reg, disp int64) Operand {
	return Operand{Kind: OperandRegOffset, Reg: r, Imm: disp}
}

// ExitTagOperand constructs an exit-reason operand.
func ExitTagOperand(k ExitKind) Operand { return Operand{Kind: OperandExitTag, Imm: int64(k)} }

// HandleTagOperand constructs an opaque handle operand.
func HandleTagOperand(v int64) Operand { return Operand{Kind: OperandHandleTag, Imm: v} }

// AbsAddrOperand constructs an absolute-address operand naming a symbol.
func AbsAddrOperand(sym string, offset int64) Operand {
	return Operand{Kind: OperandAbsAddr, Sym: sym, Imm: offset}
}

// ForeignOperand constructs a foreign (FFI) symbol operand.
func ForeignOperand(sym string, spec int64) Operand {
	return Operand{Kind: OperandForeign, Sym: sym, Spec: spec}
}
