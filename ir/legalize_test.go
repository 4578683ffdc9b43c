package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"retarget/ir"
)

type fakeCaps struct {
	mul, div bool
	word     int
}

func (c fakeCaps) HasHardwareMultiply() bool { return c.mul }
func (c fakeCaps) HasHardwareDivide() bool   { return c.div }
func (c fakeCaps) WordSize() int             { return c.word }

func TestLegalize_DivWithoutHardwareBecomesCall(t *testing.T) {
	fn := ir.NewFunction("f", ir.NewType(ir.I32))
	lhs := fn.Regs.New(ir.NewType(ir.I32))
	rhs := fn.Regs.New(ir.NewType(ir.I32))
	dst := fn.Regs.New(ir.NewType(ir.I32))
	fn.Entry.Emit(&ir.Instruction{Op: ir.OpDiv, Dst: dst, Args: []ir.Value{ir.RegValue(lhs), ir.RegValue(rhs)}})
	fn.Entry.SetReturn(&ir.Value{Reg: dst, Type: ir.NewType(ir.I32)})

	ir.Legalize(fn, fakeCaps{mul: true, div: false, word: 4})

	require.Len(t, fn.Entry.Instructions, 1)
	require.Equal(t, ir.OpCall, fn.Entry.Instructions[0].Op)
	require.Equal(t, "__sdiv", fn.Entry.Instructions[0].Symbol)
}

func TestLegalize_SubWordLoadGetsExplicitExtend(t *testing.T) {
	fn := ir.NewFunction("f", ir.NewType(ir.I32))
	addr := fn.Regs.New(ir.PtrType(4))
	loaded := fn.Regs.New(ir.NewType(ir.I8))
	fn.Entry.Emit(&ir.Instruction{Op: ir.OpLoad, Dst: loaded, Args: []ir.Value{ir.RegValue(addr)}})
	fn.Entry.SetReturn(&ir.Value{Reg: loaded, Type: ir.NewType(ir.I8)})

	ir.Legalize(fn, fakeCaps{mul: true, div: true, word: 4})

	require.Len(t, fn.Entry.Instructions, 2)
	require.Equal(t, ir.OpLoad, fn.Entry.Instructions[0].Op)
	require.Equal(t, ir.OpSext, fn.Entry.Instructions[1].Op)
	require.Equal(t, ir.I32, fn.Entry.Term.Value.Reg.Type.Kind, "return should now read the widened register")
}
