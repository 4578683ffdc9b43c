package backend

import (
	"fmt"

	"retarget/ir"
)

// ABIUnsupportedError reports a calling-convention shape this backend does
// not implement: more than the argument register window's worth of scalar
// parameters requires passing the overflow on the stack, which this
// backend does not lower.
type ABIUnsupportedError struct {
	Func   string
	Reason string
}

func (e *ABIUnsupportedError) Error() string {
	return fmt.Sprintf("backend: %s: %s", e.Func, e.Reason)
}

// SelectFunction runs instruction selection over fn for arch, producing a
// MachineFunction over virtual registers plus the Frame that accumulated
// every stack slot selection needed so far (parameters and locals; spill
// slots and call-save slots are added later by AllocateFunction and
// LowerCalls). It deliberately does not insert the prologue or any
// epilogue: those depend on the frame's final size, which is only known
// once allocation finishes spilling and call lowering finishes reserving
// its own scratch slots (see compile.Pipeline, which calls
// InsertPrologueEpilogue once that settles). ReturnBlocks names every
// block InsertPrologueEpilogue must append an epilogue to.
//
// Every parameter's VReg is pre-colored (AllowedSet) to the physical
// register the calling convention assigns it: the register allocator is
// then forced to put the value exactly where the caller already placed
// it, with no separate entry-move bookkeeping required.
func SelectFunction(fn *ir.Function, arch Architecture) (mf *MachineFunction, frame *Frame, returnBlocks []*MachineBlock, err error) {
	sel := arch.InstructionSelector()
	va := &VRegAllocator{}
	frame = NewFrame(fn.Name)
	regMap := map[*ir.Reg]*VReg{}

	vregFor := func(r *ir.Reg) *VReg {
		if r == nil {
			return nil
		}
		if v, ok := regMap[r]; ok {
			return v
		}
		v := va.New(arch.WordSize(), ClassGP)
		regMap[r] = v
		return v
	}
	operand := func(v ir.Value) Operand {
		if v.IsConst() {
			return ImmOperand(v.Const)
		}
		return VRegOperand(vregFor(v.Reg))
	}
	operandPtr := func(v *ir.Value) *Operand {
		if v == nil {
			return nil
		}
		o := operand(*v)
		return &o
	}

	wordSizes := make([]int, len(fn.Params))
	for i := range fn.Params {
		wordSizes[i] = arch.WordSize()
	}
	argLocs := arch.CallingConvention().ArgumentLocations(wordSizes)
	for i, p := range fn.Params {
		v := vregFor(p.Reg)
		switch argLocs[i].Kind {
		case ArgInRegister:
			v.AllowedSet = []PReg{argLocs[i].Reg}
		case ArgOnStack:
			return nil, nil, nil, &ABIUnsupportedError{
				Func:   fn.Name,
				Reason: fmt.Sprintf("parameter %d (%s) would be passed on the stack; only register arguments are implemented", i, p.Name),
			}
		}
	}

	mf = &MachineFunction{Name: fn.Name, Regs: va}

	for _, blk := range fn.Blocks {
		mb := &MachineBlock{Label: blk.Label}

		for _, ins := range blk.Instructions {
			mb.Instructions = append(mb.Instructions, selectOne(sel, frame, vregFor, operand, ins)...)
		}

		switch blk.Term.Kind {
		case ir.TermJump:
			mb.Succs = []string{blk.Term.Target.Label}
			mb.Instructions = append(mb.Instructions, sel.SelectJump(blk.Term.Target.Label)...)
		case ir.TermBranch:
			mb.Succs = []string{blk.Term.TrueTarget.Label, blk.Term.FalseTarget.Label}
			mb.Instructions = append(mb.Instructions, sel.SelectBranch(operand(blk.Term.Cond), blk.Term.TrueTarget.Label, blk.Term.FalseTarget.Label)...)
		case ir.TermReturn:
			mb.Instructions = append(mb.Instructions, sel.SelectReturn(operandPtr(blk.Term.Value))...)
			returnBlocks = append(returnBlocks, mb)
		}

		mf.Blocks = append(mf.Blocks, mb)
	}

	return mf, frame, returnBlocks, nil
}

// InsertPrologueEpilogue finalizes frame's layout and inserts the
// architecture's prologue as a new entry block ahead of fn's own entry,
// plus an epilogue appended to every block SelectFunction identified as a
// return site. Call this once allocation and call lowering have finished
// adding every spill and call-save slot the frame will ever need.
func InsertPrologueEpilogue(mf *MachineFunction, frame *Frame, sel InstructionSelector, returnBlocks []*MachineBlock) {
	frame.Finalize(true, 4)

	for _, mb := range returnBlocks {
		mb.Instructions = append(mb.Instructions, sel.SelectEpilogue(frame)...)
	}

	entryLabel := mf.Name
	if len(mf.Blocks) > 0 {
		entryLabel = mf.Blocks[0].Label
	}
	prologue := &MachineBlock{Label: mf.Name + ".prologue", Succs: []string{entryLabel}}
	prologue.Instructions = sel.SelectPrologue(frame)
	mf.Blocks = append([]*MachineBlock{prologue}, mf.Blocks...)
}

func selectOne(sel InstructionSelector, frame *Frame, vregFor func(*ir.Reg) *VReg, operand func(ir.Value) Operand, ins *ir.Instruction) []MachineInstruction {
	switch ins.Op {
	case ir.OpAddr:
		slot := frame.AddSlot(ins.Symbol, 4)
		return sel.SelectAddr(vregFor(ins.Dst), slot)
	case ir.OpLoad:
		return sel.SelectLoad(vregFor(ins.Dst), operand(ins.Args[0]), ins.Offset)
	case ir.OpStore:
		return sel.SelectStore(operand(ins.Args[0]), operand(ins.Args[1]), ins.Offset)
	case ir.OpCopy, ir.OpSext, ir.OpZext:
		return sel.SelectCopy(vregFor(ins.Dst), operand(ins.Args[0]))
	case ir.OpCall:
		args := make([]Operand, len(ins.Args))
		for i, a := range ins.Args {
			args[i] = operand(a)
		}
		return sel.SelectCall(vregFor(ins.Dst), ins.Symbol, args)
	case ir.OpNeg, ir.OpNot:
		return sel.SelectUnary(ins.Op, vregFor(ins.Dst), operand(ins.Args[0]))
	default:
		return sel.SelectBinary(ins.Op, vregFor(ins.Dst), operand(ins.Args[0]), operand(ins.Args[1]))
	}
}
