package backend

// Relocation marks a spot in Code that encodes a reference to Symbol (a
// call target, or the symbol an "la" address load names) which the
// linking step must patch once every
// function's final load address is known.
type Relocation struct {
	Offset int
	Symbol string
}

// AssembledFunction is the binary output of assembling one MachineFunction:
// its code bytes, every label's offset within them, and any unresolved
// symbol references left for the linker pass that resolves cross-function
// call targets.
type AssembledFunction struct {
	Name         string
	Code         []byte
	Labels       map[string]int // label name -> byte offset within Code
	Relocations  []Relocation
}

// Assembler turns selected, colored MachineFunctions into bytes. A concrete
// architecture's Assembler also owns its own mnemonic syntax for assembling
// runtime helper source returned by Architecture.RuntimeHelpers.
type Assembler interface {
	// AssembleFunction encodes mf, whose instructions must already carry
	// only PReg/Immediate/Symbol operands (no VRegs).
	AssembleFunction(mf *MachineFunction) (*AssembledFunction, error)

	// AssembleSource parses and encodes raw assembly text (used for
	// runtime helpers authored as text rather than built from MachineInstructions).
	AssembleSource(name, source string) (*AssembledFunction, error)

	// PatchRelocation overwrites the placeholder bytes at code[offset:]
	// left for one Relocation with the real encoding, now that the linking
	// step has computed relativeOffset (target address minus the address
	// of the instruction being patched).
	PatchRelocation(code []byte, offset int, relativeOffset int32) error
}
