package codegenapi_test

import (
	"testing"

	"github.com/a-panella/nvc/internal/codegenapi"
	"github.com/stretchr/testify/require"
)

type phiRecord struct {
	reg int
	val string
}

func TestPoolAllocateGrowsAcrossPages(t *testing.T) {
	p := codegenapi.NewPool[phiRecord]()

	const n = 300 // spans more than two 128-entry pages
	ptrs := make([]*phiRecord, n)
	for i := 0; i < n; i++ {
		rec := p.Allocate()
		rec.reg = i
		ptrs[i] = rec
	}

	require.Equal(t, n, p.Allocated())
	for i := 0; i < n; i++ {
		require.Equal(t, i, p.View(i).reg)
		require.Same(t, ptrs[i], p.View(i))
	}
}

func TestPoolResetZeroesAndReclaims(t *testing.T) {
	p := codegenapi.NewPool[phiRecord]()
	rec := p.Allocate()
	rec.val = "stale"

	p.Reset()
	require.Equal(t, 0, p.Allocated())

	fresh := p.Allocate()
	require.Equal(t, "", fresh.val, "reused page slots must be zeroed on Reset")
}
