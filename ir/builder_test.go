package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"retarget/ast"
	"retarget/ir"
)

func i32() *ast.BaseType { return &ast.BaseType{Kind: ast.KindI32} }

func sym(name string, class ast.VariableClass) *ast.Symbol {
	return &ast.Symbol{Name: name, Kind: ast.SymVariable, Type: i32(), Class: class}
}

// buildAddFunction constructs `func add(a i32, b i32) i32 { return a + b }`.
func buildAddFunction() *ast.Function {
	a, b := sym("a", ast.VarParameter), sym("b", ast.VarParameter)
	add := &ast.BinaryExpr{
		Op:   ast.OpAdd,
		Left: &ast.Ident{Symbol: a},
		Right: &ast.Ident{Symbol: b},
	}
	add.Typ = i32()
	ret := &ast.ReturnStmt{Value: add}
	return &ast.Function{
		Name:       "add",
		Params:     []*ast.Param{{Symbol: a}, {Symbol: b}},
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ret}},
	}
}

func TestBuildModule_AddFunction(t *testing.T) {
	mod := &ast.Module{Name: "m", Functions: []*ast.Function{buildAddFunction()}}

	irMod, err := ir.BuildModule(mod)
	require.NoError(t, err)
	require.Len(t, irMod.Functions, 1)

	fn := irMod.Functions[0]
	require.Equal(t, "add", fn.Name)
	require.NoError(t, ir.Verify(fn))

	var sawAdd, sawReturn bool
	for _, blk := range fn.Blocks {
		for _, ins := range blk.Instructions {
			if ins.Op == ir.OpAdd {
				sawAdd = true
			}
		}
		if blk.Term != nil && blk.Term.Kind == ir.TermReturn && blk.Term.Value != nil {
			sawReturn = true
		}
	}
	require.True(t, sawAdd, "expected a lowered add instruction")
	require.True(t, sawReturn, "expected a return carrying a value")
}

func TestBuildModule_IfElseTerminatesBothArms(t *testing.T) {
	a := sym("a", ast.VarParameter)
	cond := &ast.Ident{Symbol: a}
	cond.Typ = i32()

	thenLit := &ast.Literal{Value: 1}
	thenLit.Typ = i32()
	elseLit := &ast.Literal{Value: 0}
	elseLit.Typ = i32()

	ifStmt := &ast.IfStmt{
		Cond: cond,
		Then: &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: thenLit}}},
		Else: &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: elseLit}}},
	}

	fn := &ast.Function{
		Name:       "choose",
		Params:     []*ast.Param{{Symbol: a}},
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ifStmt}},
	}

	irMod, err := ir.BuildModule(&ast.Module{Name: "m", Functions: []*ast.Function{fn}})
	require.NoError(t, err)
	require.NoError(t, ir.Verify(irMod.Functions[0]))

	for _, blk := range irMod.Functions[0].Blocks {
		require.NotNil(t, blk.Term, "block %s must be terminated", blk.Label)
	}
}

func TestBuildModule_MissingReturnIsAnError(t *testing.T) {
	fn := &ast.Function{
		Name:       "empty",
		ReturnType: i32(),
		Body:       &ast.Block{},
	}
	_, err := ir.BuildModule(&ast.Module{Name: "m", Functions: []*ast.Function{fn}})
	require.Error(t, err)
}

// TestBuildModule_BinaryPromotion_SameWidthMixedSign_ConvertsToSigned
// builds `a + b` with a typed i32 and b typed u32: same width, mixed
// signedness, so both operands of the lowered add must end up i32 (the
// signed kind), not u32.
func TestBuildModule_BinaryPromotion_SameWidthMixedSign_ConvertsToSigned(t *testing.T) {
	u32ty := &ast.BaseType{Kind: ast.KindU32}
	a := &ast.Symbol{Name: "a", Kind: ast.SymVariable, Type: i32(), Class: ast.VarParameter}
	b := &ast.Symbol{Name: "b", Kind: ast.SymVariable, Type: u32ty, Class: ast.VarParameter}

	left := &ast.Ident{Symbol: a}
	left.Typ = i32()
	right := &ast.Ident{Symbol: b}
	right.Typ = u32ty

	add := ast.NewBinary(ast.OpAdd, left, right, i32())
	ret := &ast.ReturnStmt{Value: add}

	fn := &ast.Function{
		Name:       "mix",
		Params:     []*ast.Param{{Symbol: a}, {Symbol: b}},
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ret}},
	}

	irMod, err := ir.BuildModule(&ast.Module{Name: "m", Functions: []*ast.Function{fn}})
	require.NoError(t, err)
	fnIR := irMod.Functions[0]
	require.NoError(t, ir.Verify(fnIR))

	found := false
	for _, blk := range fnIR.Blocks {
		for _, ins := range blk.Instructions {
			if ins.Op != ir.OpAdd {
				continue
			}
			require.Len(t, ins.Args, 2)
			require.Equal(t, ir.I32, ins.Args[0].Type.Kind, "lhs must be promoted to the signed kind")
			require.Equal(t, ir.I32, ins.Args[1].Type.Kind, "rhs must be promoted to the signed kind, not u32")
			found = true
		}
	}
	require.True(t, found, "expected a lowered add instruction")
}

// TestBuildModule_BinaryPromotion_SmallUnsigned_WidensToI32 builds `a + b`
// with both operands typed u8: spec's integer-promotion rule widens any
// unsigned operand narrower than i32 to i32 before the binary op, so the
// lowered add's operands must both be i32, not u8.
func TestBuildModule_BinaryPromotion_SmallUnsigned_WidensToI32(t *testing.T) {
	u8ty := &ast.BaseType{Kind: ast.KindU8}
	a := &ast.Symbol{Name: "a", Kind: ast.SymVariable, Type: u8ty, Class: ast.VarParameter}
	b := &ast.Symbol{Name: "b", Kind: ast.SymVariable, Type: u8ty, Class: ast.VarParameter}

	left := &ast.Ident{Symbol: a}
	left.Typ = u8ty
	right := &ast.Ident{Symbol: b}
	right.Typ = u8ty

	add := ast.NewBinary(ast.OpAdd, left, right, i32())
	ret := &ast.ReturnStmt{Value: add}

	fn := &ast.Function{
		Name:       "smallUnsigned",
		Params:     []*ast.Param{{Symbol: a}, {Symbol: b}},
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ret}},
	}

	irMod, err := ir.BuildModule(&ast.Module{Name: "m", Functions: []*ast.Function{fn}})
	require.NoError(t, err)
	fnIR := irMod.Functions[0]
	require.NoError(t, ir.Verify(fnIR))

	found := false
	for _, blk := range fnIR.Blocks {
		for _, ins := range blk.Instructions {
			if ins.Op != ir.OpAdd {
				continue
			}
			require.Len(t, ins.Args, 2)
			require.Equal(t, ir.I32, ins.Args[0].Type.Kind, "u8 operand must widen to i32")
			require.Equal(t, ir.I32, ins.Args[1].Type.Kind, "u8 operand must widen to i32")
			found = true
		}
	}
	require.True(t, found, "expected a lowered add instruction")
}

func TestBuildModule_ReturnValueInVoidFunctionIsTypeError(t *testing.T) {
	lit := &ast.Literal{Value: 1}
	lit.Typ = i32()
	fn := &ast.Function{
		Name: "sideEffect",
		Body: &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: lit}}},
	}
	_, err := ir.BuildModule(&ast.Module{Name: "m", Functions: []*ast.Function{fn}})
	require.Error(t, err)
	var typeErr *ir.TypeError
	require.ErrorAs(t, err, &typeErr)
}
