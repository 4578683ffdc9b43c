package ir

import "fmt"

// Block is a basic block: a maximal straight-line instruction sequence with
// a single entry and a single exit. Every Block ends with exactly one Term
// (invariant I4); Phis hold only at block entry.
type Block struct {
	Label string

	Phis         []*Phi
	Instructions []*Instruction
	Term         *Term

	Preds []*Block
	Succs []*Block
}

// NewBlock creates an empty, unterminated Block. SetTerm must be called
// before the block is considered well-formed.
func NewBlock(label string) *Block {
	return &Block{Label: label}
}

// Emit appends an instruction to the block's straight-line body.
func (b *Block) Emit(ins *Instruction) {
	b.Instructions = append(b.Instructions, ins)
}

// AddPhi appends a phi-node to the block's entry.
func (b *Block) AddPhi(p *Phi) {
	b.Phis = append(b.Phis, p)
}

// setSucc links b -> succ and succ.Preds += b, keeping both directions of
// the CFG consistent.
func (b *Block) setSucc(succ *Block) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// SetJump terminates b with an unconditional jump to target, wiring the
// edge in both directions.
func (b *Block) SetJump(target *Block) {
	b.Term = &Term{Kind: TermJump, Target: target}
	b.setSucc(target)
}

// SetBranch terminates b with a conditional branch, wiring both edges.
func (b *Block) SetBranch(cond Value, trueTarget, falseTarget *Block) {
	b.Term = &Term{Kind: TermBranch, Cond: cond, TrueTarget: trueTarget, FalseTarget: falseTarget}
	b.setSucc(trueTarget)
	b.setSucc(falseTarget)
}

// SetReturn terminates b with a return; value is nil for a void return.
func (b *Block) SetReturn(value *Value) {
	b.Term = &Term{Kind: TermReturn, Value: value}
}

// Terminated reports whether SetJump/SetBranch/SetReturn has been called.
func (b *Block) Terminated() bool { return b.Term != nil }

func (b *Block) String() string {
	return fmt.Sprintf("%s (%d instr)", b.Label, len(b.Instructions))
}
