package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pregs(n int) []PReg {
	out := make([]PReg, n)
	for i := range out {
		out[i] = PReg{Name: string(rune('a' + i)), Index: i}
	}
	return out
}

func TestAllocate_NoInterference_BothColored(t *testing.T) {
	x, y := &VReg{ID: 1}, &VReg{ID: 2}
	g := newInterferenceGraph()
	g.addNode(x)
	g.addNode(y)

	ra := &RegisterAllocator{Available: pregs(2)}
	result := ra.allocateGraph(g)

	assert.Contains(t, result.Colors, x)
	assert.Contains(t, result.Colors, y)
	assert.Empty(t, result.Spills)
}

func TestAllocate_Interference_GetsDifferentColors(t *testing.T) {
	x, y := &VReg{ID: 1}, &VReg{ID: 2}
	g := newInterferenceGraph()
	g.addEdge(x, y)

	ra := &RegisterAllocator{Available: pregs(2)}
	result := ra.allocateGraph(g)

	assert.NotEqual(t, result.Colors[x], result.Colors[y])
	assert.Empty(t, result.Spills)
}

func TestAllocate_LinearChain_EndpointsMayShare(t *testing.T) {
	x, y, z := &VReg{ID: 1}, &VReg{ID: 2}, &VReg{ID: 3}
	g := newInterferenceGraph()
	g.addEdge(x, y)
	g.addEdge(y, z)

	ra := &RegisterAllocator{Available: pregs(2)}
	result := ra.allocateGraph(g)

	assert.Len(t, result.Colors, 3)
	assert.Empty(t, result.Spills)
	assert.NotEqual(t, result.Colors[x], result.Colors[y])
	assert.NotEqual(t, result.Colors[y], result.Colors[z])
}

// TestAllocate_RegisterPressure_ExcessNodesSpill builds a complete
// interference graph of 20 VRegs (every pair simultaneously live) against
// a pool of only 8 registers: the classic register-pressure case where
// more values are live at once than the target has registers, forcing the
// allocator to spill exactly the nodes that don't fit.
func TestAllocate_RegisterPressure_ExcessNodesSpill(t *testing.T) {
	const n, k = 20, 8
	vregs := make([]*VReg, n)
	for i := range vregs {
		vregs[i] = &VReg{ID: i}
	}
	g := newInterferenceGraph()
	for _, v := range vregs {
		g.addNode(v)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.addEdge(vregs[i], vregs[j])
		}
	}

	ra := &RegisterAllocator{Available: pregs(k)}
	result := ra.allocateGraph(g)

	assert.Len(t, result.Colors, k, "exactly the pool size should get colored")
	assert.Len(t, result.Spills, n-k, "the rest must be reported as spills")

	colors := map[PReg]bool{}
	for _, p := range result.Colors {
		colors[p] = true
	}
	assert.Len(t, colors, k, "every available color should be distinct and used")
}

// allocateGraph lets tests drive the same simplify/select coloring Allocate
// runs, from a hand-built InterferenceGraph directly, without a
// MachineFunction to derive liveness from.
func (ra *RegisterAllocator) allocateGraph(g *InterferenceGraph) *AllocationResult {
	stack := ra.buildSimplificationStack(g, len(ra.Available))

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
