package ir

import (
	"fmt"
	"strings"
)

// VerifyError collects every invariant violation found in one pass so a
// caller sees all of them at once instead of stopping at the first.
type VerifyError struct {
	Func    string
	Reasons []string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ir: function %q fails verification: %s", e.Func, strings.Join(e.Reasons, "; "))
}

// Verify checks the structural invariants every lowered Function must hold
// before it is handed to instruction selection:
//
//	I1 every Reg is defined by exactly one instruction or phi edge set
//	I2 every Reg used by an instruction is defined somewhere in the function
//	I3 each fixed-shape opcode has its operand count and, store excepted,
//	   a destination; call and addr name a symbol (operand types are not
//	   checked)
//	I4 every block ends with exactly one terminator
//	I5 every phi names exactly the block's actual predecessor set, once each
func Verify(fn *Function) error {
	var reasons []string

	defs := map[*Reg]bool{}
	noteDef := func(r *Reg, where string) {
		if r == nil {
			return
		}
		if defs[r] {
			reasons = append(reasons, fmt.Sprintf("%s redefines %s", where, r))
		}
		defs[r] = true
	}

	for _, p := range fn.Params {
		noteDef(p.Reg, "function parameter "+p.Name)
	}

	for _, blk := range fn.Blocks {
		for _, p := range blk.Phis {
			noteDef(p.Dst, blk.Label+" phi")
		}
		for _, ins := range blk.Instructions {
			noteDef(ins.Dst, blk.Label+" "+ins.Op.String())
		}
	}

	for _, blk := range fn.Blocks {
		if blk.Term == nil {
			reasons = append(reasons, fmt.Sprintf("block %s has no terminator", blk.Label))
			continue
		}
		reasons = append(reasons, checkTermUses(blk, defs)...)

		for _, p := range blk.Phis {
			reasons = append(reasons, checkPhi(blk, p)...)
		}
		for _, ins := range blk.Instructions {
			reasons = append(reasons, checkArity(blk.Label, ins)...)
			reasons = append(reasons, checkUses(blk.Label, ins, defs)...)
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return &VerifyError{Func: fn.Name, Reasons: reasons}
}

func checkUses(blockLabel string, ins *Instruction, defs map[*Reg]bool) []string {
	var reasons []string
	for _, a := range ins.Args {
		if a.Reg != nil && !defs[a.Reg] {
			reasons = append(reasons, fmt.Sprintf("%s: %s uses undefined %s", blockLabel, ins.Op, a.Reg))
		}
	}
	return reasons
}

func checkTermUses(blk *Block, defs map[*Reg]bool) []string {
	var reasons []string
	if blk.Term.Kind == TermBranch && blk.Term.Cond.Reg != nil && !defs[blk.Term.Cond.Reg] {
		reasons = append(reasons, fmt.Sprintf("%s: branch uses undefined %s", blk.Label, blk.Term.Cond.Reg))
	}
	if blk.Term.Kind == TermReturn && blk.Term.Value != nil && blk.Term.Value.Reg != nil && !defs[blk.Term.Value.Reg] {
		reasons = append(reasons, fmt.Sprintf("%s: return uses undefined %s", blk.Label, blk.Term.Value.Reg))
	}
	return reasons
}

func checkPhi(blk *Block, p *Phi) []string {
	var reasons []string
	seen := map[*Block]bool{}
	for _, e := range p.Edges {
		if seen[e.Pred] {
			reasons = append(reasons, fmt.Sprintf("%s: phi for %s names predecessor %s twice", blk.Label, p.Dst, e.Pred.Label))
		}
		seen[e.Pred] = true
	}
	if len(seen) != len(blk.Preds) {
		reasons = append(reasons, fmt.Sprintf("%s: phi for %s covers %d of %d predecessors", blk.Label, p.Dst, len(seen), len(blk.Preds)))
	}
	for _, pred := range blk.Preds {
		if !seen[pred] {
			reasons = append(reasons, fmt.Sprintf("%s: phi for %s missing edge from predecessor %s", blk.Label, p.Dst, pred.Label))
		}
	}
	return reasons
}

// arity gives the expected operand count for opcodes with a fixed shape;
// OpCall is variadic and checked separately.
var arity = map[Op]int{
	OpAdd: 2, OpSub: 2, OpMul: 2, OpDiv: 2,
	OpAnd: 2, OpOr: 2, OpXor: 2, OpShl: 2, OpShr: 2,
	OpEq: 2, OpNe: 2, OpLt: 2, OpLe: 2, OpGt: 2, OpGe: 2,
	OpNeg: 1, OpNot: 1, OpCopy: 1, OpSext: 1, OpZext: 1,
	OpLoad: 1, OpStore: 2,
}

func checkArity(blockLabel string, ins *Instruction) []string {
	var reasons []string
	if ins.Op == OpCall || ins.Op == OpAddr {
		if ins.Symbol == "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s has no symbol", blockLabel, ins.Op))
		}
		return reasons
	}
	want, ok := arity[ins.Op]
	if !ok {
		reasons = append(reasons, fmt.Sprintf("%s: unknown opcode %s", blockLabel, ins.Op))
		return reasons
	}
	if len(ins.Args) != want {
		reasons = append(reasons, fmt.Sprintf("%s: %s wants %d operands, got %d", blockLabel, ins.Op, want, len(ins.Args)))
	}
	switch ins.Op {
	case OpStore:
		// no result
	default:
		if ins.Dst == nil {
			reasons = append(reasons, fmt.Sprintf("%s: %s has no destination", blockLabel, ins.Op))
		}
	}
	return reasons
}
