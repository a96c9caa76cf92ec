package codegen

import "github.com/a-panella/nvc/internal/ir"

// Debug byte stream tags, per nvc's core §6: a sequence of 4-bit-tag/
// 4-bit-payload bytes.
const (
	dbgTrap        = 0x0
	dbgLongTrap    = 0x1
	dbgTarget      = 0x2
	dbgFile        = 0x3
	dbgLocInfo     = 0x4
	dbgLongLocInfo = 0x5
	dbgStop        = 0xF

	maxShortRun = 15
)

// debugBuilder encodes a Function's debug byte stream. Its only state is
// the cached encoding (the encoder's working state lives in the encode
// loop); it is kept as a field on funcBuilder so each function's stream
// is computed exactly once, lazily, the first time AOT registration
// needs it.
type debugBuilder struct {
	fn       *ir.Function
	encoded  []byte
	didEncode bool
}

func newDebugBuilder(fn *ir.Function) debugBuilder {
	return debugBuilder{fn: fn}
}

// Encode returns the function's debug byte stream, computing it on
// first use and caching the result.
func (d *debugBuilder) Encode() []byte {
	if d.didEncode {
		return d.encoded
	}
	d.encoded = encodeDebugStream(d.fn)
	d.didEncode = true
	return d.encoded
}

// encodeDebugStream walks fn's instructions in IR-index order and emits
// TARGET marks for every branch-destination index, and FILE/LOCINFO
// records for every DEBUG pseudo-instruction, run-length-encoding the
// non-target, non-debug instructions between them as TRAP/LONG_TRAP, per
// §6.
func encodeDebugStream(fn *ir.Function) []byte {
	targets := make(map[int]bool)
	for _, t := range fn.BranchTargets() {
		targets[t] = true
	}

	var out []byte
	run := 0
	curLine := -1
	curFile := ""

	flushRun := func() {
		for run > maxShortRun {
			out = append(out, byte(dbgLongTrap)<<4)
			n := run
			if n > 0xFFFF {
				n = 0xFFFF
			}
			out = append(out, byte(n&0xFF), byte(n>>8))
			run -= n
		}
		if run > 0 {
			out = append(out, byte(dbgTrap)<<4|byte(run))
			run = 0
		}
	}

	for i := range fn.Instrs {
		in := &fn.Instrs[i]

		if targets[i] {
			flushRun()
			out = append(out, byte(dbgTarget)<<4)
		}

		if in.Op != ir.OpDebug {
			run++
			continue
		}

		flushRun()
		if in.DebugIsFile && in.DebugFile != curFile {
			curFile = in.DebugFile
			n := len(in.DebugFile)
			logLen := 0
			for v := n + 1; v > 1; v >>= 1 {
				logLen++
			}
			out = append(out, byte(dbgFile)<<4|byte(logLen))
			out = append(out, []byte(in.DebugFile)...)
			out = append(out, 0)
		}
		if in.DebugLine != curLine {
			delta := in.DebugLine - curLine
			if curLine >= 0 && delta >= 0 && delta <= maxShortRun {
				out = append(out, byte(dbgLocInfo)<<4|byte(delta))
			} else {
				out = append(out, byte(dbgLongLocInfo)<<4)
				ln := uint16(in.DebugLine)
				out = append(out, byte(ln&0xFF), byte(ln>>8))
			}
			curLine = in.DebugLine
		}
	}
	flushRun()
	out = append(out, byte(dbgStop)<<4)
	return out
}

// DecodedDebugEntry is one (ir_position -> source location) mapping, or
// a bare target mark, produced by DecodeDebugStream. It exists so tests
// and the runtime unwinder's Go-side counterpart can walk the stream
// without re-deriving the byte format.
type DecodedDebugEntry struct {
	IRIndex  int
	IsTarget bool
	File     string
	Line     int
	HasLoc   bool
}

// DecodeDebugStream reverses encodeDebugStream, reconstructing the
// (ir_position -> file, line) mapping and the target-mark set, per §8's
// "decoding the emitted stream yields exactly the sequence of targets
// and mappings present in the source IR".
func DecodeDebugStream(stream []byte) []DecodedDebugEntry {
	var out []DecodedDebugEntry
	irIdx := 0
	curFile := ""
	curLine := 0
	i := 0
	for i < len(stream) {
		b := stream[i]
		tag := b >> 4
		payload := int(b & 0xF)
		i++
		switch tag {
		case dbgTrap:
			irIdx += payload
		case dbgLongTrap:
			n := int(stream[i]) | int(stream[i+1])<<8
			i += 2
			irIdx += n
		case dbgTarget:
			out = append(out, DecodedDebugEntry{IRIndex: irIdx, IsTarget: true})
		case dbgFile:
			start := i
			for stream[i] != 0 {
				i++
			}
			curFile = string(stream[start:i])
			i++ // skip NUL
		case dbgLocInfo:
			curLine += payload
			out = append(out, DecodedDebugEntry{IRIndex: irIdx, File: curFile, Line: curLine, HasLoc: true})
		case dbgLongLocInfo:
			curLine = int(stream[i]) | int(stream[i+1])<<8
			i += 2
			out = append(out, DecodedDebugEntry{IRIndex: irIdx, File: curFile, Line: curLine, HasLoc: true})
		case dbgStop:
			return out
		default:
			panic("codegen: invalid debug stream tag")
		}
	}
	return out
}
