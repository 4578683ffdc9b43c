package riscv

import "retarget/backend"

// Arch is the RV32I target. RVC is reported through Options as "rvc";
// instruction selection, register allocation and the assembler do not
// read it, so the assembler emits only 32-bit encodings either way.
type Arch struct {
	RVC bool
}

func (a *Arch) Name() string { return "riscv" }

func (a *Arch) Options() []string {
	if a.RVC {
		return []string{"rvc"}
	}
	return nil
}

func (a *Arch) WordSize() int { return 4 }

// HasHardwareMultiply is true: this target assumes the M extension's mul
// is always present, matching every other baseline integer operation.
func (a *Arch) HasHardwareMultiply() bool { return true }

// HasHardwareDivide is false: RV32I alone has no div instruction, so every
// OpDiv legalizes to a call into the __sdiv runtime helper.
func (a *Arch) HasHardwareDivide() bool { return false }

func (a *Arch) GeneralRegisters() []backend.PReg { return AllocatableRegisters }

func (a *Arch) CallingConvention() backend.CallingConvention { return CallingConvention{} }

func (a *Arch) InstructionSelector() backend.InstructionSelector { return Selector{} }

func (a *Arch) Assembler() backend.Assembler { return NewAssembler(a) }

func (a *Arch) RuntimeHelpers() map[string]string {
	return map[string]string{"__sdiv": sdivSource}
}
