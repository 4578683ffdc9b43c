package compile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"retarget/ast"
	"retarget/backend/riscv"
	"retarget/compile"
)

func i32() *ast.BaseType { return &ast.BaseType{Kind: ast.KindI32} }

func sym(name string, class ast.VariableClass) *ast.Symbol {
	return &ast.Symbol{Name: name, Kind: ast.SymVariable, Type: i32(), Class: class}
}

// addModule builds `func add(a i32, b i32) i32 { return a + b }` entirely
// through the ast.New* fixture constructors, the way a test stands in for a
// parser.
func addModule() *ast.Module {
	a, b := sym("a", ast.VarParameter), sym("b", ast.VarParameter)
	sum := ast.NewBinary(ast.OpAdd, ast.NewIdent(a), ast.NewIdent(b), i32())
	fn := &ast.Function{
		Name:       "add",
		Params:     []*ast.Param{{Symbol: a}, {Symbol: b}},
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ast.NewReturn(sum)}},
	}
	return &ast.Module{Name: "m", Functions: []*ast.Function{fn}}
}

func TestPipeline_AddFunction_ParamsLandInABIRegisters(t *testing.T) {
	arch := &riscv.Arch{}
	result, err := compile.Pipeline(addModule(), arch, compile.DefaultOptions())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Image)

	mf := result.MachineFunctions["add"]
	require.NotNil(t, mf)

	// Every VReg the allocator colored for "a" and "b" must have settled on
	// the ABI argument registers a0/a1: SelectFunction pre-colors them via
	// AllowedSet, so the allocator has no freedom to pick anything else.
	alloc := result.Allocations["add"]
	require.NotEmpty(t, alloc.Colors)
	seen := map[string]bool{}
	for _, p := range alloc.Colors {
		seen[p.Name] = true
	}
	require.True(t, seen["a0"] || seen["a1"], "expected a0 or a1 among the colors assigned")

	af := result.Assembled["add"]
	require.NotNil(t, af)
	require.NotEmpty(t, af.Code)
}

func TestPipeline_StopAfterIR_SkipsLaterStages(t *testing.T) {
	arch := &riscv.Arch{}
	opts := compile.DefaultOptions()
	opts.StopAfterIR = true
	result, err := compile.Pipeline(addModule(), arch, opts)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.IR)
	require.Nil(t, result.Image)
	require.Empty(t, result.MachineFunctions)
}

func TestPipeline_DumpIR_WritesToOut(t *testing.T) {
	arch := &riscv.Arch{}
	var buf bytes.Buffer
	opts := compile.DefaultOptions()
	opts.DumpIR = true
	opts.Out = &buf
	_, err := compile.Pipeline(addModule(), arch, opts)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "func add")
}

func TestPipeline_VoidReturnWithValueIsTypeError(t *testing.T) {
	lit := ast.NewLiteral(1, i32())
	fn := &ast.Function{
		Name: "sideEffect",
		Body: &ast.Block{Stmts: []ast.Stmt{ast.NewReturn(lit)}},
	}
	mod := &ast.Module{Name: "m", Functions: []*ast.Function{fn}}

	_, err := compile.Pipeline(mod, &riscv.Arch{}, compile.DefaultOptions())
	require.Error(t, err)
	var compileErr *compile.Error
	require.ErrorAs(t, err, &compileErr)
	require.Equal(t, compile.KindType, compileErr.Kind)
}

func TestPipeline_UnsupportedOptimizeLevelRejected(t *testing.T) {
	opts := compile.DefaultOptions()
	opts.Optimize = "aggressive"
	_, err := compile.Pipeline(addModule(), &riscv.Arch{}, opts)
	require.Error(t, err)
}

// manyArgsModule builds a function with more scalar parameters than the
// argument-register window (a0-a7) can hold, to exercise the stack-argument
// ABIUnsupportedError path.
func manyArgsModule() *ast.Module {
	params := make([]*ast.Param, 0, 9)
	var body ast.Expr
	for i := 0; i < 9; i++ {
		s := sym(string(rune('a'+i)), ast.VarParameter)
		params = append(params, &ast.Param{Symbol: s})
		if body == nil {
			body = ast.NewIdent(s)
			continue
		}
		body = ast.NewBinary(ast.OpAdd, body, ast.NewIdent(s), i32())
	}
	fn := &ast.Function{
		Name:       "manyArgs",
		Params:     params,
		ReturnType: i32(),
		Body:       &ast.Block{Stmts: []ast.Stmt{ast.NewReturn(body)}},
	}
	return &ast.Module{Name: "m", Functions: []*ast.Function{fn}}
}

func TestPipeline_TooManyRegisterArgumentsIsABIUnsupported(t *testing.T) {
	_, err := compile.Pipeline(manyArgsModule(), &riscv.Arch{}, compile.DefaultOptions())
	require.Error(t, err)
	var compileErr *compile.Error
	require.ErrorAs(t, err, &compileErr)
	require.Equal(t, compile.KindABIUnsupported, compileErr.Kind)
}
