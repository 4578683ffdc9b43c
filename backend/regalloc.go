package backend

import "fmt"

// VReg is a backend virtual register: the unit instruction selection
// allocates and the register allocator later colors. It is distinct from
// ir.Reg (which lives purely in the architecture-independent IR);
// SelectFunction maps each ir.Reg to exactly one VReg.
type VReg struct {
	ID    int
	Size  int // bytes
	Class RegClass

	// AllowedSet constrains which physical registers may be chosen, used
	// to pre-color call argument/return registers; nil means "any register
	// in Class".
	AllowedSet []PReg

	PhysicalReg *PReg // filled in by AllocateFunction once coloring succeeds
}

func (v *VReg) String() string {
	if v.PhysicalReg != nil {
		return v.PhysicalReg.Name
	}
	return fmt.Sprintf("v%d", v.ID)
}

// VRegAllocator hands out fresh VRegs with strictly increasing IDs, one per
// MachineFunction being selected.
type VRegAllocator struct{ next int }

func (a *VRegAllocator) New(size int, class RegClass) *VReg {
	v := &VReg{ID: a.next, Size: size, Class: class}
	a.next++
	return v
}

// MachineBlock is one basic block of selected instructions, still using
// string labels for control transfers (the assembler resolves these).
type MachineBlock struct {
	Label        string
	Instructions []MachineInstruction
	Succs        []string
}

// MachineFunction is the output of instruction selection for one
// ir.Function: a sequence of MachineBlocks plus the VRegAllocator that
// minted every VReg appearing in them.
type MachineFunction struct {
	Name   string
	Blocks []*MachineBlock
	Regs   *VRegAllocator
}

func blockByLabel(mf *MachineFunction, label string) *MachineBlock {
	for _, b := range mf.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// LivenessInfo holds the backward dataflow solution for one MachineFunction:
// per block, which VRegs are used before being locally redefined (Use),
// which are (re)defined somewhere in the block (Def), and which are live on
// entry/exit (LiveIn/LiveOut).
type LivenessInfo struct {
	Use, Def         map[*MachineBlock]map[*VReg]bool
	LiveIn, LiveOut  map[*MachineBlock]map[*VReg]bool
}

func vregOperands(ins MachineInstruction) []*VReg {
	var out []*VReg
	for _, op := range ins.Operands() {
		if op.Kind == OperandVReg && op.VReg != nil {
			out = append(out, op.VReg)
		}
	}
	return out
}

// ComputeLiveness runs the standard iterate-to-fixpoint backward dataflow
// over mf's blocks.
func ComputeLiveness(mf *MachineFunction) *LivenessInfo {
	li := &LivenessInfo{
		Use:     map[*MachineBlock]map[*VReg]bool{},
		Def:     map[*MachineBlock]map[*VReg]bool{},
		LiveIn:  map[*MachineBlock]map[*VReg]bool{},
		LiveOut: map[*MachineBlock]map[*VReg]bool{},
	}

	for _, blk := range mf.Blocks {
		use, def := map[*VReg]bool{}, map[*VReg]bool{}
		for _, ins := range blk.Instructions {
			for _, v := range vregOperands(ins) {
				if !def[v] {
					use[v] = true
				}
			}
			if r := ins.Result(); r != nil {
				def[r] = true
			}
		}
		li.Use[blk] = use
		li.Def[blk] = def
		li.LiveIn[blk] = map[*VReg]bool{}
		li.LiveOut[blk] = map[*VReg]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, blk := range mf.Blocks {
			out := map[*VReg]bool{}
			for _, succLabel := range blk.Succs {
				succ := blockByLabel(mf, succLabel)
				if succ == nil {
					continue
				}
				for v := range li.LiveIn[succ] {
					out[v] = true
				}
			}
			in := map[*VReg]bool{}
			for v := range li.Use[blk] {
				in[v] = true
			}
			for v := range out {
				if !li.Def[blk][v] {
					in[v] = true
				}
			}
			if !setEqual(in, li.LiveIn[blk]) || !setEqual(out, li.LiveOut[blk]) {
				li.LiveIn[blk] = in
				li.LiveOut[blk] = out
				changed = true
			}
		}
	}
	return li
}

func setEqual(a, b map[*VReg]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

// InterferenceGraph is an undirected adjacency set over VRegs: two VRegs
// interfere if there is a program point where both are simultaneously
// live. Unlike a register-pair architecture, this flat general-purpose
// register file has no sub-register composition to account for, so edges
// are plain pairwise interference with no "is this half of that" logic.
type InterferenceGraph struct {
	edges map[*VReg]map[*VReg]bool
}

func newInterferenceGraph() *InterferenceGraph {
	return &InterferenceGraph{edges: map[*VReg]map[*VReg]bool{}}
}

func (g *InterferenceGraph) addNode(v *VReg) {
	if g.edges[v] == nil {
		g.edges[v] = map[*VReg]bool{}
	}
}

func (g *InterferenceGraph) addEdge(a, b *VReg) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.edges[a][b] = true
	g.edges[b][a] = true
}

// Neighbors returns every VReg interfering with v.
func (g *InterferenceGraph) Neighbors(v *VReg) []*VReg {
	out := make([]*VReg, 0, len(g.edges[v]))
	for n := range g.edges[v] {
		out = append(out, n)
	}
	return out
}

// Degree returns v's interference-graph degree.
func (g *InterferenceGraph) Degree(v *VReg) int { return len(g.edges[v]) }

// Interferes reports whether a and b share an edge.
func (g *InterferenceGraph) Interferes(a, b *VReg) bool { return g.edges[a][b] }

// Nodes returns every VReg added to the graph, including ones with no
// recorded interference.
func (g *InterferenceGraph) Nodes() []*VReg {
	out := make([]*VReg, 0, len(g.edges))
	for v := range g.edges {
		out = append(out, v)
	}
	return out
}

// BuildInterferenceGraph derives pairwise interference from a liveness
// solution: within each block, walk instructions backward tracking the
// live set, adding an edge between the instruction's result and every
// value live across its definition.
func BuildInterferenceGraph(mf *MachineFunction, li *LivenessInfo) *InterferenceGraph {
	g := newInterferenceGraph()

	for _, blk := range mf.Blocks {
		live := map[*VReg]bool{}
		for v := range li.LiveOut[blk] {
			live[v] = true
		}
		for i := len(blk.Instructions) - 1; i >= 0; i-- {
			ins := blk.Instructions[i]
			if r := ins.Result(); r != nil {
				g.addNode(r)
				for v := range live {
					if v != r {
						g.addEdge(r, v)
					}
				}
				delete(live, r)
			}
			for _, v := range vregOperands(ins) {
				live[v] = true
				g.addNode(v)
			}
		}
	}
	return g
}

// RegisterAllocator assigns a PReg to every VReg using Chaitin-style
// simplify/select graph coloring: repeatedly remove a node with degree
// below the number of available colors (pushing it on a stack), and when
// none remains pick a spill candidate to remove anyway; then pop the stack
// assigning each node the first color none of its already-colored
// neighbors holds.
type RegisterAllocator struct {
	Available []PReg
}

// Allocate colors every VReg referenced in mf. VRegs that cannot be
// colored with the available set are returned as Spills, in the order
// they were chosen for spilling; the caller is expected to rewrite spilled
// VRegs into explicit stack loads/stores and re-run allocation.
type AllocationResult struct {
	Colors map[*VReg]PReg
	Spills []*VReg
}

func (ra *RegisterAllocator) Allocate(mf *MachineFunction) *AllocationResult {
	li := ComputeLiveness(mf)
	g := BuildInterferenceGraph(mf, li)

	k := len(ra.Available)
	stack := ra.buildSimplificationStack(g, k)

	result := &AllocationResult{Colors: map[*VReg]PReg{}}
	colored := map[*VReg]bool{}
	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		c, ok := ra.selectColor(g, v, result.Colors, colored)
		if !ok {
			result.Spills = append(result.Spills, v)
			continue
		}
		result.Colors[v] = c
		colored[v] = true
	}
	return result
}

// buildSimplificationStack removes low-degree nodes from a working copy of
// g's degree accounting until none remain with degree < k, then removes the
// highest-degree remaining node as an optimistic spill candidate, repeating
// until the graph is empty. Every node, spill candidate or not, ends up on
// the stack: whether a candidate actually needs a stack slot is decided
// later, when Allocate pops it back off and tries to color it.
func (ra *RegisterAllocator) buildSimplificationStack(g *InterferenceGraph, k int) []*VReg {
	remaining := map[*VReg]bool{}
	for _, v := range g.Nodes() {
		remaining[v] = true
	}
	degree := func(v *VReg) int {
		n := 0
		for _, nb := range g.Neighbors(v) {
			if remaining[nb] {
				n++
			}
		}
		return n
	}

	var stack []*VReg
	for len(remaining) > 0 {
		progressed := false
		for v := range remaining {
			if degree(v) < k {
				stack = append(stack, v)
				delete(remaining, v)
				progressed = true
			}
		}
		if progressed {
			continue
		}
		spill := ra.selectSpillCandidate(remaining, degree)
		stack = append(stack, spill)
		delete(remaining, spill)
	}
	return stack
}

// selectSpillCandidate picks the highest-degree remaining node: it relieves
// the most pressure from its neighbors if ultimately spilled to memory.
func (ra *RegisterAllocator) selectSpillCandidate(remaining map[*VReg]bool, degree func(*VReg) int) *VReg {
	var best *VReg
	bestDeg := -1
	for v := range remaining {
		if d := degree(v); d > bestDeg {
			best, bestDeg = v, d
		}
	}
	return best
}

func (ra *RegisterAllocator) selectColor(g *InterferenceGraph, v *VReg, colors map[*VReg]PReg, colored map[*VReg]bool) (PReg, bool) {
	used := map[string]bool{}
	for _, nb := range g.Neighbors(v) {
		if colored[nb] {
			used[colors[nb].Name] = true
		}
	}
	candidates := ra.Available
	if len(v.AllowedSet) > 0 {
		candidates = v.AllowedSet
	}
	for _, c := range candidates {
		if !used[c.Name] {
			return c, true
		}
	}
	return PReg{}, false
}
