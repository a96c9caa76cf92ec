package codegenapi

import "fmt"

// Category distinguishes the fatal-error taxonomy from nvc's core §7.
type Category int

const (
	// CategoryLoweringInvariant covers a missing register definition, an
	// unknown opcode/operand combination, an out-of-range immediate, or
	// an impossible coercion — a programmer error in the IR or the
	// lowering code, never a user-facing condition.
	CategoryLoweringInvariant Category = iota
	// CategoryVerifierFailure covers a failing module verifier run (debug
	// builds only).
	CategoryVerifierFailure
	// CategoryCodegenFailure covers target lookup or object-file write
	// failures.
	CategoryCodegenFailure
	// CategorySymbolResolution covers a JIT symbol lookup that failed to
	// resolve a published entry point.
	CategorySymbolResolution
)

func (c Category) String() string {
	switch c {
	case CategoryLoweringInvariant:
		return "lowering invariant violation"
	case CategoryVerifierFailure:
		return "verifier failure"
	case CategoryCodegenFailure:
		return "codegen failure"
	case CategorySymbolResolution:
		return "symbol resolution failure"
	default:
		return "unknown"
	}
}

// LoweringError is the structured diagnostic panicked by any fatal
// condition in the codegen core. Per nvc's core §7, no exception
// propagates out of the core as a Go error value while lowering is in
// progress; instead a single recover() at each public entry point
// (Context.CompileFunction in both modes, Context.FinalizeAOT for AOT) converts this
// into a returned error, citing enough context for a human to find the
// offending instruction.
type LoweringError struct {
	Category  Category
	Function  string
	InstrIdx  int
	HasInstr  bool
	Detail    string
}

func (e *LoweringError) Error() string {
	if e.HasInstr {
		return fmt.Sprintf("%s: function %q, instruction #%d: %s", e.Category, e.Function, e.InstrIdx, e.Detail)
	}
	return fmt.Sprintf("%s: function %q: %s", e.Category, e.Function, e.Detail)
}

// Fatalf panics with a LoweringError carrying no instruction index. Used
// for whole-function or whole-module failures (verifier, target lookup,
// object emission, symbol resolution).
func Fatalf(cat Category, function, format string, args ...interface{}) {
	panic(&LoweringError{Category: cat, Function: function, Detail: fmt.Sprintf(format, args...)})
}

// FatalfAt panics with a LoweringError citing the offending instruction
// index, per §7's "dump of the offending IR instruction's index".
func FatalfAt(cat Category, function string, instrIdx int, format string, args ...interface{}) {
	panic(&LoweringError{
		Category: cat, Function: function, InstrIdx: instrIdx, HasInstr: true,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Recover converts a panicking *LoweringError into a returned error via
// *errp, and re-panics anything else (a LoweringError is the only
// recoverable-at-the-boundary panic the core raises). Call as:
//
//	defer codegenapi.Recover(&err)
func Recover(errp *error) {
	if r := recover(); r != nil {
		if le, ok := r.(*LoweringError); ok {
			*errp = le
			return
		}
		panic(r)
	}
}
