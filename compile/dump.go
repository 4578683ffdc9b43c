package compile

import (
	"fmt"
	"io"
	"os"

	"retarget/backend"
	"retarget/hexfile"
	"retarget/ir"
)

func (o Options) writer() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

// DumpIR prints every function in mod in a flat, one-instruction-per-line
// form. Not meant to round-trip; just a trace for -verbose runs.
func DumpIR(w io.Writer, mod *ir.Module) {
	fmt.Fprintln(w, "========== IR ==========")
	for _, fn := range mod.Functions {
		fmt.Fprintf(w, "func %s (%d params)\n", fn.Name, len(fn.Params))
		for _, blk := range fn.Blocks {
			fmt.Fprintf(w, "  %s:\n", blk.Label)
			for _, p := range blk.Phis {
				fmt.Fprintf(w, "    %s := phi(%d edges)\n", p.Dst, len(p.Edges))
			}
			for _, ins := range blk.Instructions {
				fmt.Fprintf(w, "    %s\n", formatInstr(ins))
			}
			if blk.Term != nil {
				fmt.Fprintf(w, "    %s\n", blk.Term)
			}
		}
	}
	fmt.Fprintln(w)
}

func formatInstr(ins *ir.Instruction) string {
	if ins.Dst != nil {
		return fmt.Sprintf("%s := %s %v", ins.Dst, ins.Op, ins.Args)
	}
	return fmt.Sprintf("%s %v", ins.Op, ins.Args)
}

// DumpFrame prints one function's activation-record layout.
func DumpFrame(w io.Writer, fnName string, frame *backend.Frame) {
	fmt.Fprintf(w, "========== FRAME: %s ==========\n", fnName)
	fmt.Fprintf(w, "size=%d bytes\n", frame.Size)
	fmt.Fprintln(w)
}

// DumpAllocation prints the coloring/spill summary for one function.
func DumpAllocation(w io.Writer, fnName string, alloc *backend.AllocationResult) {
	fmt.Fprintf(w, "========== ALLOCATION: %s ==========\n", fnName)
	fmt.Fprintf(w, "colored=%d spilled=%d\n", len(alloc.Colors), len(alloc.Spills))
	fmt.Fprintln(w)
}

// DumpMachineFunction prints mf's final instruction stream in assembly
// syntax (PReg operands after allocation, VReg operands before it).
func DumpMachineFunction(w io.Writer, mf *backend.MachineFunction) {
	fmt.Fprintf(w, "========== MACHINE: %s ==========\n", mf.Name)
	for _, blk := range mf.Blocks {
		fmt.Fprintf(w, "%s:\n", blk.Label)
		for _, ins := range blk.Instructions {
			fmt.Fprintf(w, "  %s\n", ins)
		}
	}
	fmt.Fprintln(w)
}

// DumpAssembly prints a byte/relocation count summary per assembled
// function or helper.
func DumpAssembly(w io.Writer, assembled map[string]*backend.AssembledFunction) {
	fmt.Fprintln(w, "========== ASSEMBLY ==========")
	for name, af := range assembled {
		fmt.Fprintf(w, "%s: %d bytes, %d relocations\n", name, len(af.Code), len(af.Relocations))
	}
	fmt.Fprintln(w)
}

// DumpHex writes img in Intel HEX text form.
func DumpHex(w io.Writer, img *hexfile.File) {
	fmt.Fprintln(w, "========== HEX ==========")
	_ = img.Save(w)
	fmt.Fprintln(w)
}
