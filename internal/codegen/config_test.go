package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSessionConfigDefaults(t *testing.T) {
	t.Setenv("NVC_JIT_ONLY", "")
	t.Setenv("NVC_JIT_THRESHOLD", "")
	cfg := LoadSessionConfig(nil)
	require.Equal(t, "", cfg.OnlyFunction)
	require.Equal(t, 0, cfg.Threshold)
}

func TestLoadSessionConfigParsesValidValues(t *testing.T) {
	t.Setenv("NVC_JIT_ONLY", "proc_body")
	t.Setenv("NVC_JIT_THRESHOLD", "1000")
	cfg := LoadSessionConfig(nil)
	require.Equal(t, "proc_body", cfg.OnlyFunction)
	require.Equal(t, 1000, cfg.Threshold)
}

func TestLoadSessionConfigWarnsOnMalformedThreshold(t *testing.T) {
	t.Setenv("NVC_JIT_THRESHOLD", "not-a-number")
	var warned string
	cfg := LoadSessionConfig(func(msg string) { warned = msg })
	require.Equal(t, 0, cfg.Threshold, "tiering stays disabled rather than failing compilation")
	require.Contains(t, warned, "NVC_JIT_THRESHOLD")
}

func TestLoadSessionConfigWarnsOnNegativeThreshold(t *testing.T) {
	t.Setenv("NVC_JIT_THRESHOLD", "-5")
	var warned string
	cfg := LoadSessionConfig(func(msg string) { warned = msg })
	require.Equal(t, 0, cfg.Threshold)
	require.Contains(t, warned, "negative")
}
