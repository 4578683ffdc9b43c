package riscv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retarget/backend"
	"retarget/backend/riscv"
)

// TestSelectPrologueEpilogue_SavesAndRestoresUsedCalleeSaved builds a
// Frame the way AllocateFunction leaves one behind once coloring has
// assigned s1 and s2 to some VRegs, and checks that the prologue stores
// both (in addition to ra/fp) and the epilogue reloads both at the same
// offsets, addressed off sp in every case.
func TestSelectPrologueEpilogue_SavesAndRestoresUsedCalleeSaved(t *testing.T) {
	frame := backend.NewFrame("f")
	frame.AddSlot("local", 4)
	frame.ReserveCalleeSaved([]backend.PReg{riscv.S1, riscv.S2})
	frame.Finalize(true, 4)

	sel := riscv.Selector{}
	prologue := sel.SelectPrologue(frame)
	epilogue := sel.SelectEpilogue(frame)

	storeOffset := map[string]int64{}
	for _, ins := range prologue {
		if ins.Mnemonic() != "sw" {
			continue
		}
		ops := ins.Operands()
		require.Len(t, ops, 3)
		require.Equal(t, backend.OperandPReg, ops[0].Kind)
		assert.Equal(t, riscv.SP.Name, ops[0].PReg.Name, "sw must address relative to sp, not carry the value register first")
		require.Equal(t, backend.OperandPReg, ops[1].Kind)
		storeOffset[ops[1].PReg.Name] = ops[2].Imm
	}
	require.Contains(t, storeOffset, "s1")
	require.Contains(t, storeOffset, "s2")
	require.Contains(t, storeOffset, "ra")
	require.Contains(t, storeOffset, riscv.FP.Name)

	loadOffset := map[string]int64{}
	for _, ins := range epilogue {
		if ins.Mnemonic() != "lw" {
			continue
		}
		ops := ins.Operands()
		require.Len(t, ops, 3)
		require.Equal(t, backend.OperandPReg, ops[0].Kind)
		require.Equal(t, backend.OperandPReg, ops[1].Kind)
		assert.Equal(t, riscv.SP.Name, ops[1].PReg.Name, "lw must address relative to sp")
		loadOffset[ops[0].PReg.Name] = ops[2].Imm
	}

	for name, off := range storeOffset {
		assert.Equal(t, off, loadOffset[name], "save/restore offset mismatch for %s", name)
	}
	assert.Contains(t, epilogue[len(epilogue)-1].Mnemonic(), "ret")
}

// TestSelectPrologueEpilogue_NoCalleeSavedUsed_EmitsOnlyRaAndFp covers a
// function whose body never got colored into a callee-saved register:
// the prologue/epilogue must fall back to exactly the ra/fp save pair,
// the shape this backend had before callee-saved registers were tracked.
func TestSelectPrologueEpilogue_NoCalleeSavedUsed_EmitsOnlyRaAndFp(t *testing.T) {
	frame := backend.NewFrame("f")
	frame.ReserveCalleeSaved(nil)
	frame.Finalize(true, 4)

	sel := riscv.Selector{}
	prologue := sel.SelectPrologue(frame)

	swCount := 0
	for _, ins := range prologue {
		if ins.Mnemonic() == "sw" {
			swCount++
		}
	}
	assert.Equal(t, 2, swCount, "only ra and fp should be saved when no callee-saved register was allocated")
}
