package codegenapi

// These consts gate verbose diagnostic output. They must stay disabled by
// default — flip one locally when debugging a specific lowering, the
// same way wazero's wazevoapi.debug_consts gates its SSA/regalloc dumps
// behind consts rather than a runtime log-level check, so the disabled
// branches cost nothing in a production build.
const (
	// PrintPreOptIR dumps the lowered function's textual IR immediately
	// after it is lowered, before the function-level optimization passes
	// run (see nvc's core §4.E step 8).
	PrintPreOptIR = false

	// PrintPostOptIR dumps the function's textual IR after optimization.
	PrintPostOptIR = false

	// VerifyEveryFunction runs the module verifier after every single
	// function lowering instead of only once per compilation unit; useful
	// when bisecting which function miscompiles.
	VerifyEveryFunction = false
)
