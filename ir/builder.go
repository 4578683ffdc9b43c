package ir

import (
	"fmt"

	"retarget/ast"
)

// TypeError reports an IR type mismatch caught at build time, such as
// returning a value from a void function.
type TypeError struct {
	Func   string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("ir: %s: %s", e.Func, e.Reason)
}

// Builder lowers an ast.Module into an ir.Module. Every declared variable
// (parameter or local) is given a symbolic stack slot and addressed through
// OpAddr/OpLoad/OpStore; only expression temporaries live purely in virtual
// registers. This keeps the lowering a single linear pass with no dominance-
// frontier phi placement: merging values written on different paths is a
// frame-layout concern the backend resolves, not something this IR needs to
// model directly.
type Builder struct {
	mod *Module

	fn      *Function
	cur     *Block
	symType map[*ast.Symbol]Type
}

// BuildModule lowers every function in m into the IR module.
func BuildModule(m *ast.Module) (*Module, error) {
	b := &Builder{mod: &Module{Name: m.Name}}
	for _, fn := range m.Functions {
		irFn, err := b.buildFunction(fn)
		if err != nil {
			return nil, fmt.Errorf("ir: building %q: %w", fn.Name, err)
		}
		b.mod.Functions = append(b.mod.Functions, irFn)
	}
	return b.mod, nil
}

func lowerType(t ast.Type) Type {
	bt, ok := t.(*ast.BaseType)
	if !ok {
		// Pointers, arrays and structs are all addressed, never loaded as a
		// scalar value in their own right; callers load/store through them
		// using the pointer type.
		return PtrType(4)
	}
	switch bt.Kind {
	case ast.KindI8:
		return NewType(I8)
	case ast.KindI16:
		return NewType(I16)
	case ast.KindI32:
		return NewType(I32)
	case ast.KindI64:
		return NewType(I64)
	case ast.KindU8:
		return NewType(U8)
	case ast.KindU16:
		return NewType(U16)
	case ast.KindU32, ast.KindBool:
		return NewType(U32)
	case ast.KindU64:
		return NewType(U64)
	default:
		return NewType(Void)
	}
}

func (b *Builder) buildFunction(af *ast.Function) (*Function, error) {
	retType := NewType(Void)
	if af.ReturnType != nil {
		retType = lowerType(af.ReturnType)
	}

	b.fn = NewFunction(af.Name, retType)
	b.cur = b.fn.Entry
	b.symType = map[*ast.Symbol]Type{}

	for _, p := range af.Params {
		pt := lowerType(p.Symbol.Type)
		b.symType[p.Symbol] = pt
		arg := b.fn.Regs.NewNamed(pt, p.Symbol.Name+".arg")
		b.fn.Params = append(b.fn.Params, &Param{Reg: arg, Name: p.Symbol.Name})
		slot := b.fn.Regs.NewNamed(PtrType(4), p.Symbol.Name)
		b.cur.Emit(&Instruction{Op: OpAddr, Dst: slot, Symbol: p.Symbol.Name})
		b.cur.Emit(&Instruction{Op: OpStore, Args: []Value{RegValue(slot), RegValue(arg)}})
	}

	if err := b.buildBlock(af.Body); err != nil {
		return nil, err
	}
	if !b.cur.Terminated() {
		switch {
		case retType.Kind == Void:
			b.cur.SetReturn(nil)
		case b.cur != b.fn.Entry && len(b.cur.Preds) == 0:
			// Every path already returned (e.g. both arms of an if/else), so
			// the join block left current is unreachable: drop it.
			kept := b.fn.Blocks[:0]
			for _, blk := range b.fn.Blocks {
				if blk != b.cur {
					kept = append(kept, blk)
				}
			}
			b.fn.Blocks = kept
		default:
			return nil, fmt.Errorf("function %q falls off the end without returning a value", af.Name)
		}
	}
	return b.fn, nil
}

func (b *Builder) slotAddr(sym *ast.Symbol) *Reg {
	r := b.fn.Regs.NewNamed(PtrType(4), sym.Name+".addr")
	b.cur.Emit(&Instruction{Op: OpAddr, Dst: r, Symbol: sym.Name})
	return r
}

func (b *Builder) buildBlock(blk *ast.Block) error {
	for _, s := range blk.Stmts {
		if b.cur.Terminated() {
			return nil
		}
		if err := b.buildStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.EmptyStmt:
		return nil

	case *ast.Block:
		return b.buildBlock(st)

	case *ast.VarDeclStmt:
		t := lowerType(st.Symbol.Type)
		b.symType[st.Symbol] = t
		if st.Init != nil {
			v, err := b.buildExpr(st.Init)
			if err != nil {
				return err
			}
			addr := b.slotAddr(st.Symbol)
			b.cur.Emit(&Instruction{Op: OpStore, Args: []Value{RegValue(addr), v}})
		}
		return nil

	case *ast.AssignStmt:
		v, err := b.buildExpr(st.Value)
		if err != nil {
			return err
		}
		return b.buildStore(st.Target, v)

	case *ast.ExprStmt:
		_, err := b.buildExpr(st.Expr)
		return err

	case *ast.ReturnStmt:
		if st.Value == nil {
			b.cur.SetReturn(nil)
			return nil
		}
		if b.fn.ReturnType.Kind == Void {
			return &TypeError{Func: b.fn.Name, Reason: "return with a value in a void function"}
		}
		v, err := b.buildExpr(st.Value)
		if err != nil {
			return err
		}
		b.cur.SetReturn(&v)
		return nil

	case *ast.IfStmt:
		return b.buildIf(st)

	case *ast.WhileStmt:
		return b.buildFor(nil, st.Cond, nil, st.Body)

	case *ast.ForStmt:
		return b.buildFor(st.Init, st.Cond, st.Post, st.Body)

	case *ast.SwitchStmt:
		return b.buildSwitch(st)

	default:
		return fmt.Errorf("ir: unhandled statement %T", s)
	}
}

func (b *Builder) buildStore(target ast.Expr, v Value) error {
	switch t := target.(type) {
	case *ast.Ident:
		addr := b.slotAddr(t.Symbol)
		b.cur.Emit(&Instruction{Op: OpStore, Args: []Value{RegValue(addr), v}})
		return nil
	case *ast.MemberExpr:
		base, err := b.buildAddr(t.Object)
		if err != nil {
			return err
		}
		b.cur.Emit(&Instruction{Op: OpStore, Offset: t.Field.Offset, Args: []Value{RegValue(base), v}})
		return nil
	case *ast.IndexExpr:
		addr, err := b.buildIndexAddr(t)
		if err != nil {
			return err
		}
		b.cur.Emit(&Instruction{Op: OpStore, Args: []Value{RegValue(addr), v}})
		return nil
	case *ast.UnaryExpr:
		if t.Op == ast.OpDeref {
			addr, err := b.buildExpr(t.Operand)
			if err != nil {
				return err
			}
			b.cur.Emit(&Instruction{Op: OpStore, Args: []Value{addr, v}})
			return nil
		}
	}
	return fmt.Errorf("ir: %T is not an assignable target", target)
}

// buildAddr evaluates e to an address rather than a loaded value; used for
// the object half of a member access.
func (b *Builder) buildAddr(e ast.Expr) (*Reg, error) {
	switch ex := e.(type) {
	case *ast.Ident:
		return b.slotAddr(ex.Symbol), nil
	case *ast.UnaryExpr:
		if ex.Op == ast.OpDeref {
			v, err := b.buildExpr(ex.Operand)
			if err != nil {
				return nil, err
			}
			return v.Reg, nil
		}
	case *ast.IndexExpr:
		return b.buildIndexAddr(ex)
	}
	return nil, fmt.Errorf("ir: %T is not addressable", e)
}

func (b *Builder) buildIndexAddr(ix *ast.IndexExpr) (*Reg, error) {
	base, err := b.buildAddr(ix.Array)
	if err != nil {
		return nil, err
	}
	idx, err := b.buildExpr(ix.Index)
	if err != nil {
		return nil, err
	}
	elemSize := int64(lowerType(ix.Type()).Size())
	if elemSize == 0 {
		elemSize = 4
	}
	scaled := b.fn.Regs.New(PtrType(4))
	b.cur.Emit(&Instruction{Op: OpMul, Dst: scaled, Args: []Value{idx, ConstValue(elemSize, PtrType(4))}})
	addr := b.fn.Regs.New(PtrType(4))
	b.cur.Emit(&Instruction{Op: OpAdd, Dst: addr, Args: []Value{RegValue(base), RegValue(scaled)}})
	return addr, nil
}

func (b *Builder) buildIf(st *ast.IfStmt) error {
	cond, err := b.buildExpr(st.Cond)
	if err != nil {
		return err
	}
	thenBlk := b.fn.NewBlock("if.then")
	joinBlk := b.fn.NewBlock("if.end")

	var elseBlk *Block
	if st.Else != nil {
		elseBlk = b.fn.NewBlock("if.else")
		b.cur.SetBranch(cond, thenBlk, elseBlk)
	} else {
		b.cur.SetBranch(cond, thenBlk, joinBlk)
	}

	b.cur = thenBlk
	if err := b.buildBlock(st.Then); err != nil {
		return err
	}
	if !b.cur.Terminated() {
		b.cur.SetJump(joinBlk)
	}

	if st.Else != nil {
		b.cur = elseBlk
		if err := b.buildBlock(st.Else); err != nil {
			return err
		}
		if !b.cur.Terminated() {
			b.cur.SetJump(joinBlk)
		}
	}

	b.cur = joinBlk
	return nil
}

func (b *Builder) buildFor(init ast.Stmt, cond ast.Expr, post ast.Stmt, body *ast.Block) error {
	if init != nil {
		if err := b.buildStmt(init); err != nil {
			return err
		}
	}
	headBlk := b.fn.NewBlock("loop.head")
	bodyBlk := b.fn.NewBlock("loop.body")
	exitBlk := b.fn.NewBlock("loop.end")

	b.cur.SetJump(headBlk)
	b.cur = headBlk
	if cond != nil {
		cv, err := b.buildExpr(cond)
		if err != nil {
			return err
		}
		b.cur.SetBranch(cv, bodyBlk, exitBlk)
	} else {
		b.cur.SetJump(bodyBlk)
	}

	b.cur = bodyBlk
	if err := b.buildBlock(body); err != nil {
		return err
	}
	if !b.cur.Terminated() {
		if post != nil {
			if err := b.buildStmt(post); err != nil {
				return err
			}
		}
		b.cur.SetJump(headBlk)
	}

	b.cur = exitBlk
	return nil
}

func (b *Builder) buildSwitch(st *ast.SwitchStmt) error {
	tag, err := b.buildExpr(st.Tag)
	if err != nil {
		return err
	}
	joinBlk := b.fn.NewBlock("switch.end")

	for _, c := range st.Cases {
		caseVal, err := b.buildExpr(c.Value)
		if err != nil {
			return err
		}
		eq := b.fn.Regs.New(NewType(U32))
		b.cur.Emit(&Instruction{Op: OpEq, Dst: eq, Args: []Value{tag, caseVal}})

		matchBlk := b.fn.NewBlock("switch.case")
		nextBlk := b.fn.NewBlock("switch.next")
		b.cur.SetBranch(RegValue(eq), matchBlk, nextBlk)

		b.cur = matchBlk
		if err := b.buildBlock(c.Body); err != nil {
			return err
		}
		if !b.cur.Terminated() {
			b.cur.SetJump(joinBlk)
		}
		b.cur = nextBlk
	}

	if st.Default != nil {
		if err := b.buildBlock(st.Default); err != nil {
			return err
		}
	}
	if !b.cur.Terminated() {
		b.cur.SetJump(joinBlk)
	}
	b.cur = joinBlk
	return nil
}

func (b *Builder) buildExpr(e ast.Expr) (Value, error) {
	switch ex := e.(type) {
	case *ast.Literal:
		return ConstValue(ex.Value, lowerType(ex.Type())), nil

	case *ast.Ident:
		t, ok := b.symType[ex.Symbol]
		if !ok {
			t = lowerType(ex.Symbol.Type)
		}
		addr := b.slotAddr(ex.Symbol)
		dst := b.fn.Regs.NewNamed(t, ex.Symbol.Name)
		b.cur.Emit(&Instruction{Op: OpLoad, Dst: dst, Args: []Value{RegValue(addr)}})
		return RegValue(dst), nil

	case *ast.BinaryExpr:
		return b.buildBinary(ex)

	case *ast.UnaryExpr:
		return b.buildUnary(ex)

	case *ast.MemberExpr:
		base, err := b.buildAddr(ex.Object)
		if err != nil {
			return Value{}, err
		}
		dst := b.fn.Regs.New(lowerType(ex.Type()))
		b.cur.Emit(&Instruction{Op: OpLoad, Dst: dst, Offset: ex.Field.Offset, Args: []Value{RegValue(base)}})
		return RegValue(dst), nil

	case *ast.IndexExpr:
		addr, err := b.buildIndexAddr(ex)
		if err != nil {
			return Value{}, err
		}
		dst := b.fn.Regs.New(lowerType(ex.Type()))
		b.cur.Emit(&Instruction{Op: OpLoad, Dst: dst, Args: []Value{RegValue(addr)}})
		return RegValue(dst), nil

	case *ast.CallExpr:
		return b.buildCall(ex)

	case *ast.SizeofExpr:
		sz := int64(lowerType(ex.OperandType).Size())
		return ConstValue(sz, NewType(U32)), nil

	case *ast.CastExpr:
		v, err := b.buildExpr(ex.Operand)
		if err != nil {
			return Value{}, err
		}
		return b.buildConversion(v, lowerType(ex.Type()))

	default:
		return Value{}, fmt.Errorf("ir: unhandled expression %T", e)
	}
}

func (b *Builder) buildConversion(v Value, to Type) (Value, error) {
	from := v.Type
	if from.Kind == to.Kind {
		return v, nil
	}
	if v.IsConst() {
		return ConstValue(v.Const, to), nil
	}
	dst := b.fn.Regs.New(to)
	op := OpZext
	if to.Size() < from.Size() {
		op = OpCopy // truncation: selection narrows via the destination's width
	} else if from.IsSigned() {
		op = OpSext
	}
	b.cur.Emit(&Instruction{Op: op, Dst: dst, Args: []Value{v}})
	return RegValue(dst), nil
}

func (b *Builder) buildUnary(ex *ast.UnaryExpr) (Value, error) {
	if ex.Op == ast.OpAddrOf {
		addr, err := b.buildAddr(ex.Operand)
		if err != nil {
			return Value{}, err
		}
		return RegValue(addr), nil
	}
	if ex.Op == ast.OpDeref {
		addr, err := b.buildExpr(ex.Operand)
		if err != nil {
			return Value{}, err
		}
		dst := b.fn.Regs.New(lowerType(ex.Type()))
		b.cur.Emit(&Instruction{Op: OpLoad, Dst: dst, Args: []Value{addr}})
		return RegValue(dst), nil
	}

	v, err := b.buildExpr(ex.Operand)
	if err != nil {
		return Value{}, err
	}
	t := lowerType(ex.Type())
	dst := b.fn.Regs.New(t)
	var op Op
	switch ex.Op {
	case ast.OpNeg:
		op = OpNeg
	case ast.OpNot:
		op = OpEq // logical not, lowered as (v == 0) below
	case ast.OpBitNot:
		op = OpNot
	default:
		return Value{}, fmt.Errorf("ir: unhandled unary operator %v", ex.Op)
	}
	if ex.Op == ast.OpNot {
		b.cur.Emit(&Instruction{Op: OpEq, Dst: dst, Args: []Value{v, ConstValue(0, t)}})
	} else {
		b.cur.Emit(&Instruction{Op: op, Dst: dst, Args: []Value{v}})
	}
	return RegValue(dst), nil
}

func (b *Builder) buildBinary(ex *ast.BinaryExpr) (Value, error) {
	if ex.Op == ast.OpLogAnd || ex.Op == ast.OpLogOr {
		return b.buildShortCircuit(ex)
	}

	lhs, err := b.buildExpr(ex.Left)
	if err != nil {
		return Value{}, err
	}
	rhs, err := b.buildExpr(ex.Right)
	if err != nil {
		return Value{}, err
	}

	// Usual-arithmetic-conversion: widen the narrower operand to the wider
	// operand's width, and if widths match but signedness differs, both
	// convert to the signed kind.
	lhs, rhs = b.promote(lhs, rhs)

	resultType := lowerType(ex.Type())
	op, ok := binOpMap[ex.Op]
	if !ok {
		return Value{}, fmt.Errorf("ir: unhandled binary operator %v", ex.Op)
	}
	dst := b.fn.Regs.New(resultType)
	b.cur.Emit(&Instruction{Op: op, Dst: dst, Args: []Value{lhs, rhs}})
	return RegValue(dst), nil
}

var binOpMap = map[ast.BinOp]Op{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul, ast.OpDiv: OpDiv,
	ast.OpAnd: OpAnd, ast.OpOr: OpOr, ast.OpXor: OpXor,
	ast.OpShl: OpShl, ast.OpShr: OpShr,
	ast.OpEq: OpEq, ast.OpNe: OpNe, ast.OpLt: OpLt, ast.OpLe: OpLe,
	ast.OpGt: OpGt, ast.OpGe: OpGe,
}

// promote applies the builder's binary-operand promotion rule: an unsigned
// operand narrower than i32 widens to i32 first (integer promotion), then
// whichever operand is still narrower widens to match the other, and a
// same-width signed/unsigned mismatch converts both operands to the
// signed kind.
func (b *Builder) promote(lhs, rhs Value) (Value, Value) {
	lhs = b.promoteSmallUnsigned(lhs)
	rhs = b.promoteSmallUnsigned(rhs)

	if lhs.Type.Kind == rhs.Type.Kind {
		return lhs, rhs
	}
	if lhs.Type.Size() > rhs.Type.Size() {
		rv, _ := b.buildConversion(rhs, lhs.Type)
		return lhs, rv
	}
	if rhs.Type.Size() > lhs.Type.Size() {
		lv, _ := b.buildConversion(lhs, rhs.Type)
		return lv, rhs
	}
	unified := NewType(signedOf(lhs.Type.Kind))
	lv, _ := b.buildConversion(lhs, unified)
	rv, _ := b.buildConversion(rhs, unified)
	return lv, rv
}

// promoteSmallUnsigned widens an unsigned operand narrower than i32 to i32,
// the integer-promotion half of the promotion rule; signed operands
// narrower than i32 and anything already i32-or-wider pass through
// unchanged here and are handled by the width-widening step in promote.
func (b *Builder) promoteSmallUnsigned(v Value) Value {
	if !v.Type.IsInteger() || v.Type.IsSigned() || v.Type.Size() >= 4 {
		return v
	}
	cv, _ := b.buildConversion(v, NewType(I32))
	return cv
}

// buildShortCircuit lowers && and || into a CFG diamond rather than an
// eagerly evaluated boolean expression, so the right-hand side is only
// evaluated when it can affect the result.
func (b *Builder) buildShortCircuit(ex *ast.BinaryExpr) (Value, error) {
	lhs, err := b.buildExpr(ex.Left)
	if err != nil {
		return Value{}, err
	}

	rhsBlk := b.fn.NewBlock("sc.rhs")
	joinBlk := b.fn.NewBlock("sc.end")
	shortBlk := b.cur

	if ex.Op == ast.OpLogAnd {
		b.cur.SetBranch(lhs, rhsBlk, joinBlk)
	} else {
		b.cur.SetBranch(lhs, joinBlk, rhsBlk)
	}

	b.cur = rhsBlk
	rhs, err := b.buildExpr(ex.Right)
	if err != nil {
		return Value{}, err
	}
	b.cur.SetJump(joinBlk)
	rhsEnd := b.cur

	b.cur = joinBlk
	resultType := NewType(U32)
	dst := b.fn.Regs.New(resultType)
	b.cur.AddPhi(&Phi{Dst: dst, Edges: []PhiEdge{
		{Pred: shortBlk, Value: ConstValue(shortCircuitValue(ex.Op), resultType)},
		{Pred: rhsEnd, Value: rhs},
	}})
	return RegValue(dst), nil
}

func shortCircuitValue(op ast.BinOp) int64 {
	if op == ast.OpLogAnd {
		return 0
	}
	return 1
}

func (b *Builder) buildCall(ex *ast.CallExpr) (Value, error) {
	var args []Value
	for _, a := range ex.Args {
		v, err := b.buildExpr(a)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v)
	}
	var retType Type
	if ft, ok := ex.Callee.Type.(*ast.FunctionType); ok && ft.Return != nil {
		retType = lowerType(ft.Return)
	} else {
		retType = NewType(Void)
	}
	if retType.Kind == Void {
		b.cur.Emit(&Instruction{Op: OpCall, Symbol: ex.Callee.Name, Args: args})
		return Value{}, nil
	}
	dst := b.fn.Regs.New(retType)
	b.cur.Emit(&Instruction{Op: OpCall, Dst: dst, Symbol: ex.Callee.Name, Args: args})
	return RegValue(dst), nil
}
