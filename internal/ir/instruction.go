package ir

// Instruction is one entry of a Function's flat instruction array. A
// single flattened type is used for every Opcode (instead of one Go type
// per opcode) so that Block instruction ranges are simple index slices
// and the codegen backend can dispatch on Op without an interface
// indirection per instruction.
//
// Field usage is opcode-dependent; see nvc's core §4.G for the full
// per-opcode contract. Args holds operands in the order a given opcode
// expects them (documented at each lowering handler, not repeated here).
type Instruction struct {
	Op  Opcode
	Cc  CondCode
	Args []Operand

	// Result names the destination virtual register. Valid only when
	// HasResult is true; per the core's Virtual Register Model every
	// stored result is i64 regardless of the operation's natural width.
	Result    Reg
	HasResult bool

	// Width applies to STORE/LOAD/ULOAD (memory access size) and to
	// overflow-checked ADD/SUB/MUL (the checked integer width).
	Width Width

	// Callee names the target function for CALL.
	Callee string

	// DebugFile/DebugLine/DebugIsFile carry a DEBUG pseudo-instruction's
	// contribution to the function's debug byte stream (§6). DEBUG emits
	// no code; DebugIsFile distinguishes a file-change record (DebugFile
	// set) from a line-only record (DebugLine only).
	DebugFile     string
	DebugLine     int
	DebugIsFile   bool
}

// Arg returns the i-th operand, or the zero Operand if absent.
func (in *Instruction) Arg(i int) Operand {
	if i < 0 || i >= len(in.Args) {
		return Operand{}
	}
	return in.Args[i]
}
