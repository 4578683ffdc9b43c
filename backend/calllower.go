package backend

import "sort"

// LowerCalls walks every "call" MachineInstruction in mf and, using the
// coloring AllocateFunction already assigned, spills whichever
// caller-saved physical registers are live across that call site to a
// scratch slot in the function's own frame beforehand and restores them
// afterward in reverse order. The slots are reserved in the frame and
// addressed off the frame pointer, so sp is not adjusted around the call;
// every store before the call is paired with one load from the same slot
// after it.
//
// ra is never part of this: the prologue/epilogue this function's own
// frame already installs preserves ra across any call the function makes,
// regardless of liveness, so a caller-save pass only ever needs to worry
// about the general-purpose caller-saved pool.
func LowerCalls(mf *MachineFunction, frame *Frame, cc CallingConvention, sel InstructionSelector) {
	li := ComputeLiveness(mf)
	callerSaved := map[string]bool{}
	for _, r := range cc.CallerSaved() {
		callerSaved[r.Name] = true
	}
	fp := cc.FramePointer()
	callSite := 0

	for _, blk := range mf.Blocks {
		liveAfter := liveAfterEachInstruction(blk, li.LiveOut[blk])

		out := make([]MachineInstruction, 0, len(blk.Instructions))
		for i, ins := range blk.Instructions {
			if ins.IsLabel() || ins.Mnemonic() != "call" {
				out = append(out, ins)
				continue
			}
			callSite++

			var saved []*VReg
			for v := range liveAfter[i] {
				if v.PhysicalReg != nil && callerSaved[v.PhysicalReg.Name] {
					saved = append(saved, v)
				}
			}
			sort.Slice(saved, func(a, b int) bool { return saved[a].ID < saved[b].ID })

			slots := make([]*FrameSlot, len(saved))
			for j, v := range saved {
				slots[j] = frame.AddCallSaveSlot(callSite, v)
				frame.Finalize(true, 4)
				out = append(out, sel.SelectStore(PRegOperand(fp), PRegOperand(*v.PhysicalReg), slots[j].Offset)...)
			}

			out = append(out, ins)

			for j := len(saved) - 1; j >= 0; j-- {
				restoreDst := &VReg{Size: saved[j].Size, Class: saved[j].Class, PhysicalReg: saved[j].PhysicalReg}
				out = append(out, sel.SelectLoad(restoreDst, PRegOperand(fp), slots[j].Offset)...)
			}
		}
		blk.Instructions = out
	}
}

// liveAfterEachInstruction returns, for each instruction index in blk, the
// set of VRegs live immediately after that instruction executes —
// liveOut for the last instruction, walking backward from there exactly
// as BuildInterferenceGraph does.
func liveAfterEachInstruction(blk *MachineBlock, liveOut map[*VReg]bool) []map[*VReg]bool {
	n := len(blk.Instructions)
	result := make([]map[*VReg]bool, n)

	cur := map[*VReg]bool{}
	for v := range liveOut {
		cur[v] = true
	}
	for i := n - 1; i >= 0; i-- {
		result[i] = copyVRegSet(cur)
		ins := blk.Instructions[i]
		if r := ins.Result(); r != nil {
			delete(cur, r)
		}
		for _, v := range vregOperands(ins) {
			cur[v] = true
		}
	}
	return result
}

func copyVRegSet(s map[*VReg]bool) map[*VReg]bool {
	out := make(map[*VReg]bool, len(s))
	for v := range s {
		out[v] = true
	}
	return out
}
