package backend

// AllocateFunction colors every VReg referenced in mf, inserting spill
// loads/stores for whatever the allocator cannot color and restarting
// until none remain: allocate a stack slot and insert loads before uses
// and stores after defs using fresh vregs, then retry allocation from
// scratch. Termination is guaranteed in at most one iteration
// per VReg: each rewrite strictly shrinks a spilled VReg's live range to
// the single instruction window between its fresh load and its use (or
// its def and its fresh store), so it cannot interfere with more than the
// pool size's worth of neighbors on the next pass.
//
// Once coloring succeeds, every distinct physical register from
// calleeSaved that some VReg was actually colored into is recorded on
// frame via ReserveCalleeSaved, so the architecture's prologue/epilogue
// knows exactly which registers it must save and restore.
func AllocateFunction(mf *MachineFunction, frame *Frame, sel InstructionSelector, fp PReg, available, calleeSaved []PReg) *AllocationResult {
	CoalesceMoves(mf, len(available))
	ra := &RegisterAllocator{Available: available}
	for {
		result := ra.Allocate(mf)
		if len(result.Spills) == 0 {
			applyColors(result)
			frame.ReserveCalleeSaved(usedCalleeSaved(result, calleeSaved))
			return result
		}
		rewriteSpills(mf, frame, result.Spills, sel, fp)
	}
}

// usedCalleeSaved returns the subset of calleeSaved that result.Colors
// actually assigned to some VReg, in calleeSaved's order, deduplicated.
func usedCalleeSaved(result *AllocationResult, calleeSaved []PReg) []PReg {
	colored := map[string]bool{}
	for _, p := range result.Colors {
		colored[p.Name] = true
	}
	var used []PReg
	for _, r := range calleeSaved {
		if colored[r.Name] {
			used = append(used, r)
		}
	}
	return used
}

// applyColors writes each VReg's assigned PReg back onto it, so later
// passes (call lowering, the assembler) can read VReg.PhysicalReg directly
// instead of threading the AllocationResult through every call.
func applyColors(result *AllocationResult) {
	for v, p := range result.Colors {
		phys := p
		v.PhysicalReg = &phys
	}
}

// rewriteSpills gives each spilled VReg a frame slot and replaces every
// use with a load from it and every def with a store to it, through fresh
// VRegs so the rewritten code has no VReg with more than a one-instruction
// live range for the spilled value. Frame.Finalize is re-run immediately
// after reserving the slot (not just once at the end) because a slot's
// offset only depends on slots reserved before it — finalizing early is
// safe and lets the load/store immediates be correct right away, rather
// than baking a placeholder that a later pass would need to patch.
func rewriteSpills(mf *MachineFunction, frame *Frame, spills []*VReg, sel InstructionSelector, fp PReg) {
	for _, v := range spills {
		slot := frame.AddSpillSlot(v)
		frame.Finalize(true, 4)

		for _, blk := range mf.Blocks {
			out := make([]MachineInstruction, 0, len(blk.Instructions))
			for _, ins := range blk.Instructions {
				if ins.IsLabel() {
					out = append(out, ins)
					continue
				}
				for i, o := range ins.Operands() {
					if o.Kind == OperandVReg && o.VReg == v {
						fresh := mf.Regs.New(v.Size, v.Class)
						out = append(out, sel.SelectLoad(fresh, PRegOperand(fp), slot.Offset)...)
						ins.SetOperand(i, VRegOperand(fresh))
					}
				}
				if ins.Result() == v {
					fresh := mf.Regs.New(v.Size, v.Class)
					ins.SetResult(fresh)
					out = append(out, ins)
					out = append(out, sel.SelectStore(PRegOperand(fp), VRegOperand(fresh), slot.Offset)...)
					continue
				}
				out = append(out, ins)
			}
			blk.Instructions = out
		}
	}
}
