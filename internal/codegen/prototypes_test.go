package codegen

import (
	"testing"

	"github.com/a-panella/nvc/internal/ir"
	"github.com/stretchr/testify/require"
)

func TestOverflowIntrinsicName(t *testing.T) {
	require.Equal(t, "llvm.sadd.with.overflow.i32", overflowIntrinsicName(true, "add", ir.Width32))
	require.Equal(t, "llvm.usub.with.overflow.i64", overflowIntrinsicName(false, "sub", ir.Width64))
	require.Equal(t, "llvm.umul.with.overflow.i8", overflowIntrinsicName(false, "mul", ir.Width8))
}
