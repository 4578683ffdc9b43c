package ir

import "fmt"

// Reg is a virtual register: an infinite-supply, strongly-typed value born
// at build time and killed once instruction selection lowers it to a
// backend virtual register (see backend.VReg). Every Reg is defined exactly
// once (invariant I1), which Verify checks.
type Reg struct {
	ID   int
	Type Type
	Name string // optional, for debugging/dumps
}

func (r *Reg) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%%%s.%d", r.Name, r.ID)
	}
	return fmt.Sprintf("%%v%d", r.ID)
}

// RegAllocator hands out fresh Regs with strictly increasing IDs.
type RegAllocator struct {
	next int
}

// New allocates a fresh, unnamed Reg of the given Type.
func (a *RegAllocator) New(t Type) *Reg {
	r := &Reg{ID: a.next, Type: t}
	a.next++
	return r
}

// NewNamed allocates a fresh Reg carrying a debug name.
func (a *RegAllocator) NewNamed(t Type, name string) *Reg {
	r := a.New(t)
	r.Name = name
	return r
}

// Value is an instruction operand: either a Reg or a compile-time constant.
// Constants never need a physical register and are filtered out of
// liveness/interference tracking by the register allocator.
type Value struct {
	Reg   *Reg  // nil if this Value is a constant
	Const int64 // valid only if Reg == nil
	Type  Type
}

// RegValue wraps r as an operand Value.
func RegValue(r *Reg) Value { return Value{Reg: r, Type: r.Type} }

// ConstValue builds a constant operand Value of the given Type.
func ConstValue(c int64, t Type) Value { return Value{Const: c, Type: t} }

// IsConst reports whether v is a compile-time constant.
func (v Value) IsConst() bool { return v.Reg == nil }

func (v Value) String() string {
	if v.IsConst() {
		return fmt.Sprintf("#%d", v.Const)
	}
	return v.Reg.String()
}
