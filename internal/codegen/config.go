package codegen

import (
	"fmt"
	"os"
	"strconv"
)

// Env variable names, per nvc's core §6.
const (
	envJITOnly     = "NVC_JIT_ONLY"
	envJITThreshold = "NVC_JIT_THRESHOLD"
)

// SessionConfig is an immutable snapshot of the JIT session's process
// environment, parsed once at Session construction rather than read
// ad hoc from os.Getenv at call sites — the ambient-configuration
// convention this repo's teacher (wazero) follows throughout its own
// config.go files.
type SessionConfig struct {
	// OnlyFunction restricts compilation to the named function when
	// non-empty.
	OnlyFunction string
	// Threshold is the tiering threshold a caller-side policy (out of
	// scope for this core, per §1) may consult; non-positive disables
	// tiering, negative is a misconfiguration warning per §7.
	Threshold int
}

// LoadSessionConfig reads and validates NVC_JIT_ONLY/NVC_JIT_THRESHOLD.
// A malformed NVC_JIT_THRESHOLD is a §7 "misconfiguration" — logged as a
// warning via warn and the feature (tiering) is disabled, never fatal.
func LoadSessionConfig(warn func(string)) SessionConfig {
	cfg := SessionConfig{OnlyFunction: os.Getenv(envJITOnly)}

	if raw, ok := os.LookupEnv(envJITThreshold); ok {
		v, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			if warn != nil {
				warn(fmt.Sprintf("%s=%q is not a valid integer; tiering disabled", envJITThreshold, raw))
			}
		case v < 0:
			if warn != nil {
				warn(fmt.Sprintf("%s=%d is negative; tiering disabled", envJITThreshold, v))
			}
		default:
			cfg.Threshold = v
		}
	}
	return cfg
}
