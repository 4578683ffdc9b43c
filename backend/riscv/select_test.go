package riscv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retarget/backend"
	"retarget/backend/riscv"
)

// TestSelectCall_ImmediateArgument_UsesLiNotMv guards against a constant
// call argument silently becoming zero: mv's encoding reads its source as
// a register, and an immediate operand carries none, so a constant must be
// materialized with li instead.
func TestSelectCall_ImmediateArgument_UsesLiNotMv(t *testing.T) {
	sel := riscv.Selector{}
	out := sel.SelectCall(nil, "callee", []backend.Operand{backend.ImmOperand(5)})
	require.NotEmpty(t, out)

	ops := out[0].Operands()
	require.Equal(t, "li", out[0].Mnemonic())
	require.Len(t, ops, 2)
	assert.Equal(t, backend.OperandPReg, ops[0].Kind)
	assert.Equal(t, riscv.ArgRegisters[0].Name, ops[0].PReg.Name)
	assert.Equal(t, backend.OperandImmediate, ops[1].Kind)
	assert.Equal(t, int64(5), ops[1].Imm)
}

// TestSelectCall_RegisterArgument_UsesMv covers the ordinary case: a
// register-valued argument is still moved with mv, not li.
func TestSelectCall_RegisterArgument_UsesMv(t *testing.T) {
	sel := riscv.Selector{}
	v := &backend.VReg{ID: 1, Size: 4}
	out := sel.SelectCall(nil, "callee", []backend.Operand{backend.VRegOperand(v)})
	require.NotEmpty(t, out)
	assert.Equal(t, "mv", out[0].Mnemonic())
}

// TestSelectCall_EmitsCallAndMovesResult checks the tail of the sequence:
// the call itself and, when the result is consumed, a move out of a0.
func TestSelectCall_EmitsCallAndMovesResult(t *testing.T) {
	sel := riscv.Selector{}
	dst := &backend.VReg{ID: 2, Size: 4}
	out := sel.SelectCall(dst, "callee", nil)
	require.Len(t, out, 2)
	assert.Equal(t, "call", out[0].Mnemonic())
	assert.Equal(t, "mv", out[1].Mnemonic())
	assert.Same(t, dst, out[1].Result())
}
