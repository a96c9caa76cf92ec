package codegenapi_test

import (
	"testing"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/stretchr/testify/require"
)

func TestLoweringErrorFormatting(t *testing.T) {
	withInstr := &codegenapi.LoweringError{
		Category: codegenapi.CategoryLoweringInvariant,
		Function: "proc_body",
		InstrIdx: 12,
		HasInstr: true,
		Detail:   "register r3 read before definition",
	}
	require.Equal(t,
		`lowering invariant violation: function "proc_body", instruction #12: register r3 read before definition`,
		withInstr.Error())

	whole := &codegenapi.LoweringError{
		Category: codegenapi.CategoryCodegenFailure,
		Function: "unit",
		Detail:   "target lookup failed",
	}
	require.Equal(t, `codegen failure: function "unit": target lookup failed`, whole.Error())
}

func TestRecoverConvertsLoweringErrorToErrorValue(t *testing.T) {
	run := func() (err error) {
		defer codegenapi.Recover(&err)
		codegenapi.FatalfAt(codegenapi.CategorySymbolResolution, "f", 3, "callee %q unresolved", "g")
		return nil
	}

	err := run()
	require.Error(t, err)
	var le *codegenapi.LoweringError
	require.ErrorAs(t, err, &le)
	require.Equal(t, codegenapi.CategorySymbolResolution, le.Category)
	require.Equal(t, 3, le.InstrIdx)
}

func TestRecoverRepanicsNonLoweringErrorPanics(t *testing.T) {
	run := func() (err error) {
		defer codegenapi.Recover(&err)
		panic("not a lowering error")
	}
	require.PanicsWithValue(t, "not a lowering error", func() { _ = run() })
}

func TestFatalfOmitsInstrIdx(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		le, ok := r.(*codegenapi.LoweringError)
		require.True(t, ok)
		require.False(t, le.HasInstr)
	}()
	codegenapi.Fatalf(codegenapi.CategoryVerifierFailure, "f", "boom")
}
