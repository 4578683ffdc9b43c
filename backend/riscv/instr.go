package riscv

import (
	"fmt"
	"strings"

	"retarget/backend"
)

// Instr is one RV32I assembly instruction, still expressed over VReg
// operands until the register allocator rewrites them to PReg.
type Instr struct {
	Mnem    string
	Rd      *backend.VReg
	Args    []backend.Operand
	Cmt     string
	label   string
}

// NewInstr builds a real (non-label) instruction.
func NewInstr(mnem string, rd *backend.VReg, args ...backend.Operand) *Instr {
	return &Instr{Mnem: mnem, Rd: rd, Args: args}
}

// NewLabel builds a pseudo-instruction that marks a jump target.
func NewLabel(name string) *Instr {
	return &Instr{label: name}
}

func (i *Instr) Result() *backend.VReg { return i.Rd }

func (i *Instr) SetResult(v *backend.VReg) { i.Rd = v }

func (i *Instr) Operands() []backend.Operand { return i.Args }

func (i *Instr) SetOperand(idx int, v backend.Operand) { i.Args[idx] = v }

func (i *Instr) Mnemonic() string { return i.Mnem }

func (i *Instr) IsLabel() bool { return i.label != "" }

// IsMove reports whether i is a bare register-to-register "mv", the
// coalescable pseudo this backend's selector emits for ir.OpCopy and for
// moving values into/out of the ABI argument/return registers.
func (i *Instr) IsMove() bool {
	return i.Mnem == "mv" && len(i.Args) == 1 && i.Args[0].Kind != backend.OperandImmediate
}

func (i *Instr) Label() string { return i.label }

func (i *Instr) String() string {
	if i.IsLabel() {
		return i.label + ":"
	}
	parts := make([]string, 0, len(i.Args)+1)
	if i.Rd != nil {
		parts = append(parts, i.Rd.String())
	}
	for _, a := range i.Args {
		parts = append(parts, operandString(a))
	}
	s := i.Mnem
	if len(parts) > 0 {
		s += " " + strings.Join(parts, ", ")
	}
	if i.Cmt != "" {
		s += " // " + i.Cmt
	}
	return s
}

func operandString(o backend.Operand) string {
	switch o.Kind {
	case backend.OperandVReg:
		return o.VReg.String()
	case backend.OperandPReg:
		return o.PReg.Name
	case backend.OperandImmediate:
		return fmt.Sprintf("%d", o.Imm)
	case backend.OperandSymbol:
		return o.Symbol
	default:
		return "?"
	}
}
