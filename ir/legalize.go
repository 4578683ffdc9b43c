package ir

// TargetCaps narrows down exactly the target facts the legalizer needs to
// make its rewrite decisions, so this package never imports the backend
// package that actually implements an architecture.
type TargetCaps interface {
	HasHardwareMultiply() bool
	HasHardwareDivide() bool
	WordSize() int
}

// Legalize rewrites operations the target cannot execute directly into
// sequences it can: signed division without a divide instruction becomes a
// call to the __sdiv runtime helper, multiplication without a multiply
// instruction becomes a call to __smul, and any value loaded narrower than
// the target word is widened with an explicit sign/zero extension so every
// later consumer sees a full-width operand.
func Legalize(fn *Function, caps TargetCaps) {
	for _, blk := range fn.Blocks {
		legalizeBlock(fn, blk, caps)
	}
}

func legalizeBlock(fn *Function, blk *Block, caps TargetCaps) {
	out := make([]*Instruction, 0, len(blk.Instructions))
	for _, ins := range blk.Instructions {
		switch {
		case ins.Op == OpDiv && !caps.HasHardwareDivide():
			ins = &Instruction{Op: OpCall, Dst: ins.Dst, Symbol: "__sdiv", Args: ins.Args}
		case ins.Op == OpMul && !caps.HasHardwareMultiply():
			ins = &Instruction{Op: OpCall, Dst: ins.Dst, Symbol: "__smul", Args: ins.Args}
		}
		out = append(out, ins)

		if ins.Op == OpLoad && ins.Dst != nil && ins.Dst.Type.Size() < caps.WordSize() && ins.Dst.Type.Size() > 0 {
			wide := fn.Regs.New(widen(ins.Dst.Type, caps.WordSize()))
			extOp := OpZext
			if ins.Dst.Type.IsSigned() {
				extOp = OpSext
			}
			out = append(out, &Instruction{Op: extOp, Dst: wide, Args: []Value{RegValue(ins.Dst)}})
			renameReg(fn, ins.Dst, wide)
		}
	}
	blk.Instructions = out
}

func widen(t Type, wordSize int) Type {
	switch wordSize {
	case 8:
		if t.IsSigned() {
			return NewType(I64)
		}
		return NewType(U64)
	default:
		if t.IsSigned() {
			return NewType(I32)
		}
		return NewType(U32)
	}
}

// renameReg replaces every use of old with replacement across the whole
// function. Safe to call immediately after old's defining instruction,
// since old (by invariant I1) is defined exactly once and this runs before
// any later instruction has been visited.
func renameReg(fn *Function, old, replacement *Reg) {
	rename := func(v *Value) {
		if v.Reg == old {
			v.Reg = replacement
			v.Type = replacement.Type
		}
	}
	for _, blk := range fn.Blocks {
		for _, p := range blk.Phis {
			for i := range p.Edges {
				rename(&p.Edges[i].Value)
			}
		}
		for _, ins := range blk.Instructions {
			for i := range ins.Args {
				rename(&ins.Args[i])
			}
		}
		if blk.Term != nil {
			if blk.Term.Kind == TermBranch {
				rename(&blk.Term.Cond)
			}
			if blk.Term.Kind == TermReturn && blk.Term.Value != nil {
				rename(blk.Term.Value)
			}
		}
	}
}
