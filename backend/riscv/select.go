package riscv

import (
	"retarget/backend"
	"retarget/ir"
)

// Selector implements backend.InstructionSelector for RV32I: each method
// recognizes one ir.Op shape and emits the RV32I instructions that realize
// it, still addressed by VReg until register allocation assigns colors.
type Selector struct{}

var binMnem = map[ir.Op]string{
	ir.OpAdd: "add", ir.OpSub: "sub", ir.OpMul: "mul",
	ir.OpAnd: "and", ir.OpOr: "or", ir.OpXor: "xor",
	ir.OpShl: "sll", ir.OpShr: "srl",
}

// immMnem is the immediate-operand form of the same opcode, used when the
// right-hand operand is a compile-time constant so the encoder can fold it
// into the instruction instead of materializing it in a register first.
var immMnem = map[ir.Op]string{
	ir.OpAdd: "addi", ir.OpAnd: "andi", ir.OpOr: "ori", ir.OpXor: "xori",
	ir.OpShl: "slli", ir.OpShr: "srli",
}

func (Selector) SelectBinary(op ir.Op, dst *backend.VReg, lhs, rhs backend.Operand) []backend.MachineInstruction {
	switch op {
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return selectCompare(op, dst, lhs, rhs)
	}
	if rhs.Kind == backend.OperandImmediate {
		if mnem, ok := immMnem[op]; ok {
			return []backend.MachineInstruction{NewInstr(mnem, dst, lhs, rhs)}
		}
	}
	mnem, ok := binMnem[op]
	if !ok {
		mnem = "add" // unreachable once every ir.Op has a mapping; kept total to avoid a nil instruction
	}
	rhsReg := rhs
	return []backend.MachineInstruction{NewInstr(mnem, dst, lhs, rhsReg)}
}

// selectCompare lowers an ordering comparison to slt plus, for the
// non-strict forms, an xori that flips the sense of the slt result; Eq and
// Ne test the xor of the operands against zero with sltiu/sltu.
// Operands are treated as signed; this core does not distinguish unsigned
// comparisons at the backend.Operand level.
func selectCompare(op ir.Op, dst *backend.VReg, lhs, rhs backend.Operand) []backend.MachineInstruction {
	switch op {
	case ir.OpLt:
		return []backend.MachineInstruction{NewInstr("slt", dst, lhs, rhs)}
	case ir.OpGe:
		return []backend.MachineInstruction{
			NewInstr("slt", dst, lhs, rhs),
			NewInstr("xori", dst, backend.VRegOperand(dst), backend.ImmOperand(1)),
		}
	case ir.OpGt:
		return []backend.MachineInstruction{NewInstr("slt", dst, rhs, lhs)}
	case ir.OpLe:
		return []backend.MachineInstruction{
			NewInstr("slt", dst, rhs, lhs),
			NewInstr("xori", dst, backend.VRegOperand(dst), backend.ImmOperand(1)),
		}
	case ir.OpEq:
		return []backend.MachineInstruction{
			NewInstr("xor", dst, lhs, rhs),
			NewInstr("sltiu", dst, backend.VRegOperand(dst), backend.ImmOperand(1)),
		}
	case ir.OpNe:
		return []backend.MachineInstruction{
			NewInstr("xor", dst, lhs, rhs),
			NewInstr("sltu", dst, backend.PRegOperand(Zero), backend.VRegOperand(dst)),
		}
	}
	return nil
}

func (Selector) SelectUnary(op ir.Op, dst *backend.VReg, src backend.Operand) []backend.MachineInstruction {
	switch op {
	case ir.OpNeg:
		return []backend.MachineInstruction{NewInstr("sub", dst, backend.PRegOperand(Zero), src)}
	case ir.OpNot:
		return []backend.MachineInstruction{NewInstr("xori", dst, src, backend.ImmOperand(-1))}
	}
	return nil
}

func (Selector) SelectLoad(dst *backend.VReg, addr backend.Operand, offset int) []backend.MachineInstruction {
	mnem := "lw"
	switch dst.Size {
	case 1:
		mnem = "lbu"
	case 2:
		mnem = "lhu"
	}
	return []backend.MachineInstruction{NewInstr(mnem, dst, addr, backend.ImmOperand(int64(offset)))}
}

func (Selector) SelectStore(addr, val backend.Operand, offset int) []backend.MachineInstruction {
	mnem := "sw"
	if val.Kind == backend.OperandVReg && val.VReg != nil {
		switch val.VReg.Size {
		case 1:
			mnem = "sb"
		case 2:
			mnem = "sh"
		}
	}
	return []backend.MachineInstruction{NewInstr(mnem, nil, addr, val, backend.ImmOperand(int64(offset)))}
}

// SelectAddr computes the address of a stack-resident local or parameter
// as fp + slot.Offset. The offset is read out of slot lazily (it is only
// known once Frame.Finalize runs, after allocation), so this emits an
// addi whose immediate operand is the slot itself rather than a baked
// number.
func (Selector) SelectAddr(dst *backend.VReg, slot *backend.FrameSlot) []backend.MachineInstruction {
	return []backend.MachineInstruction{NewInstr("addi", dst, backend.PRegOperand(FP), backend.SlotOperand(slot))}
}

func (Selector) SelectCopy(dst *backend.VReg, src backend.Operand) []backend.MachineInstruction {
	if src.Kind == backend.OperandImmediate {
		return []backend.MachineInstruction{NewInstr("li", dst, src)}
	}
	return []backend.MachineInstruction{NewInstr("mv", dst, src)}
}

// SelectCall sequences a call: move each argument into its ABI register
// (a0-a7, in order; a compile-time-constant argument materializes with
// "li" instead of "mv" since there is no source register to copy from),
// emit the call itself, then move the return value out of a0 into dst if
// it is consumed. Spilling caller-saved registers live across the call is
// LowerCalls' job, run over the whole function after allocation, not this
// selector's.
func (Selector) SelectCall(dst *backend.VReg, symbol string, args []backend.Operand) []backend.MachineInstruction {
	var out []backend.MachineInstruction
	for i, a := range args {
		if i >= len(ArgRegisters) {
			break // stack-passed arguments beyond the register window are unimplemented
		}
		mnem := "mv"
		if a.Kind == backend.OperandImmediate {
			mnem = "li"
		}
		out = append(out, NewInstr(mnem, nil, backend.PRegOperand(ArgRegisters[i]), a))
	}
	out = append(out, NewInstr("call", nil, backend.SymOperand(symbol)))
	if dst != nil {
		out = append(out, NewInstr("mv", dst, backend.PRegOperand(A0)))
	}
	return out
}

func (Selector) SelectJump(target string) []backend.MachineInstruction {
	return []backend.MachineInstruction{NewInstr("j", nil, backend.SymOperand(target))}
}

func (Selector) SelectBranch(cond backend.Operand, trueTarget, falseTarget string) []backend.MachineInstruction {
	return []backend.MachineInstruction{
		NewInstr("bne", nil, cond, backend.PRegOperand(Zero), backend.SymOperand(trueTarget)),
		NewInstr("j", nil, backend.SymOperand(falseTarget)),
	}
}

// SelectReturn only moves the return value into a0; tearing down the frame
// and the final ret instruction belong to SelectEpilogue, which the driver
// emits right after this at every return site.
func (Selector) SelectReturn(value *backend.Operand) []backend.MachineInstruction {
	if value == nil {
		return nil
	}
	if value.Kind == backend.OperandImmediate {
		return []backend.MachineInstruction{NewInstr("li", nil, backend.PRegOperand(A0), *value)}
	}
	return []backend.MachineInstruction{NewInstr("mv", nil, backend.PRegOperand(A0), *value)}
}

func (Selector) Label(name string) backend.MachineInstruction { return NewLabel(name) }
