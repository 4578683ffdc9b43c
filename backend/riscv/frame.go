package riscv

import "retarget/backend"

// raSlotOffset and fpSlotOffset are sp-relative offsets, valid once sp has
// moved down by frameBytes. Local/spill slots occupy [fp-Size, fp) with
// fp = sp + frameBytes, so ra is saved in the word just below the lowest
// slot and fp in the word below that; neither overlaps a slot.
func raSlotOffset(frame *backend.Frame) int { return frameBytes(frame) - frame.Size - 4 }
func fpSlotOffset(frame *backend.Frame) int { return frameBytes(frame) - frame.Size - 8 }

// frameBytes is the total stack adjustment this function's activation
// record needs: locals/spills plus the two saved registers, rounded up to
// the ABI's 16-byte alignment.
func frameBytes(frame *backend.Frame) int {
	total := frame.Size + 8
	if rem := total % 16; rem != 0 {
		total += 16 - rem
	}
	return total
}

// calleeSaveSPOffset converts a callee-save slot's frame-pointer-relative
// Offset (negative, set by Frame.Finalize) into the sp-relative offset
// that is valid at the point in the prologue/epilogue where sp has already
// moved down by n but fp has not yet been (re)established — fp = sp + n
// once the prologue finishes, so fp + slot.Offset == sp + (n + slot.Offset).
func calleeSaveSPOffset(n int, slot *backend.FrameSlot) int { return n + slot.Offset }

// SelectPrologue decrements sp, saves ra and the caller's frame pointer,
// saves every callee-saved register this function's body was colored
// into, then establishes the new frame pointer — the mirror image of
// SelectEpilogue's teardown order. frame must already be finalized
// (backend.InsertPrologueEpilogue does this before calling either Select
// method) since n depends on the final frame size, and
// frame.UsedCalleeSaved must already be set (backend.AllocateFunction
// does this once coloring succeeds, before InsertPrologueEpilogue runs).
func (Selector) SelectPrologue(frame *backend.Frame) []backend.MachineInstruction {
	n := frameBytes(frame)
	out := []backend.MachineInstruction{
		NewInstr("addi", nil, backend.PRegOperand(SP), backend.PRegOperand(SP), backend.ImmOperand(int64(-n))),
		NewInstr("sw", nil, backend.PRegOperand(SP), backend.PRegOperand(RA), backend.ImmOperand(int64(raSlotOffset(frame)))),
		NewInstr("sw", nil, backend.PRegOperand(SP), backend.PRegOperand(FP), backend.ImmOperand(int64(fpSlotOffset(frame)))),
	}
	for i, r := range frame.UsedCalleeSaved {
		off := calleeSaveSPOffset(n, frame.CalleeSaveSlots[i])
		out = append(out, NewInstr("sw", nil, backend.PRegOperand(SP), backend.PRegOperand(r), backend.ImmOperand(int64(off))))
	}
	out = append(out, NewInstr("addi", nil, backend.PRegOperand(FP), backend.PRegOperand(SP), backend.ImmOperand(int64(n))))
	return out
}

// SelectEpilogue reverses SelectPrologue exactly: restore every
// callee-saved register in the reverse of the order the prologue saved
// them, restore fp, restore ra, deallocate the same number of bytes the
// prologue subtracted, then return. Because both sides compute n the same
// way, the stack pointer is guaranteed to return to its pre-call value
// regardless of which return site in the function runs.
func (Selector) SelectEpilogue(frame *backend.Frame) []backend.MachineInstruction {
	n := frameBytes(frame)
	var out []backend.MachineInstruction
	for i := len(frame.UsedCalleeSaved) - 1; i >= 0; i-- {
		off := calleeSaveSPOffset(n, frame.CalleeSaveSlots[i])
		out = append(out, NewInstr("lw", nil, backend.PRegOperand(frame.UsedCalleeSaved[i]), backend.PRegOperand(SP), backend.ImmOperand(int64(off))))
	}
	out = append(out,
		NewInstr("lw", nil, backend.PRegOperand(FP), backend.PRegOperand(SP), backend.ImmOperand(int64(fpSlotOffset(frame)))),
		NewInstr("lw", nil, backend.PRegOperand(RA), backend.PRegOperand(SP), backend.ImmOperand(int64(raSlotOffset(frame)))),
		NewInstr("addi", nil, backend.PRegOperand(SP), backend.PRegOperand(SP), backend.ImmOperand(int64(n))),
		NewInstr("ret", nil),
	)
	return out
}
