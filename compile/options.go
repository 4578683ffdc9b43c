package compile

import "io"

// Options configures one Pipeline run: the target knobs plus the stage-stop
// and dump toggles a driver or test uses to inspect an intermediate result
// instead of running the whole pipeline to a HEX image.
type Options struct {
	// RVC, if set, permits the assembler to emit compressed (16-bit)
	// encodings where the instruction qualifies. Unused by the current
	// RV32I backend; carried so a future backend can read it.
	RVC bool

	// Debug requests extra symbol-table bookkeeping in the assembled
	// output. Recorded for forward compatibility; this backend does not
	// yet emit a symbol table.
	Debug bool

	// Optimize selects an optimization level. Only "none" is implemented;
	// Pipeline rejects any other value rather than silently ignoring it.
	Optimize string

	// LoadAddress is where the first linked function is placed; every
	// later function follows it in module order.
	LoadAddress uint32

	// EntrySymbol, if non-empty and defined, becomes the image's Intel HEX
	// start-linear-address record.
	EntrySymbol string

	StopAfterIR        bool
	StopAfterLegalize  bool
	StopAfterSelect    bool
	StopAfterAlloc     bool
	StopAfterAssemble  bool

	DumpIR         bool
	DumpFrame      bool
	DumpAllocation bool
	DumpSelect     bool
	DumpAssembly   bool
	DumpHex        bool
	Verbose        bool

	// Out receives every Dump*/Verbose trace line; os.Stdout when nil.
	Out io.Writer
}

// DefaultOptions returns an Options with every toggle off and the only
// implemented optimization level selected.
func DefaultOptions() Options {
	return Options{Optimize: "none"}
}
