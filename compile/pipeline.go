// Package compile drives a whole ast.Module through IR construction,
// legalization, instruction selection, register allocation, call/prologue
// lowering, assembly and linking, down to an Intel HEX image, the way
// compile.Pipeline stages a teacher compiler's lexer-to-codegen run.
package compile

import (
	"fmt"
	"sort"

	"retarget/ast"
	"retarget/backend"
	"retarget/hexfile"
	"retarget/ir"
)

// Result collects every stage's output, so a caller can inspect an
// intermediate artifact (the IR, a function's frame, its allocation) the
// same way it inspects the final image, not only on success.
type Result struct {
	IR *ir.Module

	MachineFunctions map[string]*backend.MachineFunction
	Frames           map[string]*backend.Frame
	Allocations      map[string]*backend.AllocationResult
	Assembled        map[string]*backend.AssembledFunction

	Image *hexfile.File

	Success bool
}

func newResult() *Result {
	return &Result{
		MachineFunctions: map[string]*backend.MachineFunction{},
		Frames:           map[string]*backend.Frame{},
		Allocations:      map[string]*backend.AllocationResult{},
		Assembled:        map[string]*backend.AssembledFunction{},
	}
}

// Pipeline lowers astModule for arch: IR build, legalize/verify,
// instruction selection (with ABI argument pre-coloring), register
// allocation (coalesce, color, spill-and-retry), call and prologue/epilogue
// lowering, assembly, and linking into one Intel HEX image. Every stage's
// failure is wrapped in an Error carrying the Kind that names which stage
// found it; no stage swallows an error from the one before it.
func Pipeline(astModule *ast.Module, arch backend.Architecture, opts Options) (*Result, error) {
	if opts.Optimize != "" && opts.Optimize != "none" {
		return nil, fmt.Errorf("compile: unsupported optimize level %q; only \"none\" is implemented", opts.Optimize)
	}
	out := opts.writer()
	result := newResult()

	if opts.Verbose {
		fmt.Fprintln(out, "==> Stage 1: IR build")
	}
	irMod, err := ir.BuildModule(astModule)
	if err != nil {
		return result, &Error{Kind: KindType, Cause: err}
	}
	result.IR = irMod
	if opts.DumpIR {
		DumpIR(out, irMod)
	}
	if opts.StopAfterIR {
		result.Success = true
		return result, nil
	}

	if opts.Verbose {
		fmt.Fprintln(out, "==> Stage 2: legalize + verify")
	}
	caps := backend.Caps(arch)
	for _, fn := range irMod.Functions {
		ir.Legalize(fn, caps)
		if err := ir.Verify(fn); err != nil {
			return result, &Error{Kind: KindIRInvalid, Func: fn.Name, Cause: err}
		}
	}
	if opts.StopAfterLegalize {
		result.Success = true
		return result, nil
	}

	cc := arch.CallingConvention()
	sel := arch.InstructionSelector()
	calledSymbols := map[string]bool{}

	for _, fn := range irMod.Functions {
		if opts.Verbose {
			fmt.Fprintf(out, "==> Stage 3: select %s\n", fn.Name)
		}
		mf, frame, returnBlocks, err := backend.SelectFunction(fn, arch)
		if err != nil {
			return result, &Error{Kind: KindABIUnsupported, Func: fn.Name, Cause: err}
		}
		collectCalledSymbols(fn, calledSymbols)
		result.MachineFunctions[fn.Name] = mf
		result.Frames[fn.Name] = frame
		if opts.DumpFrame {
			DumpFrame(out, fn.Name, frame)
		}
		if opts.StopAfterSelect {
			continue
		}

		if opts.Verbose {
			fmt.Fprintf(out, "==> Stage 4: allocate %s\n", fn.Name)
		}
		alloc := backend.AllocateFunction(mf, frame, sel, cc.FramePointer(), arch.GeneralRegisters(), cc.CalleeSaved())
		result.Allocations[fn.Name] = alloc
		if opts.DumpAllocation {
			DumpAllocation(out, fn.Name, alloc)
		}
		if opts.StopAfterAlloc {
			continue
		}

		if opts.Verbose {
			fmt.Fprintf(out, "==> Stage 5: lower calls + prologue/epilogue for %s\n", fn.Name)
		}
		backend.LowerCalls(mf, frame, cc, sel)
		backend.InsertPrologueEpilogue(mf, frame, sel, returnBlocks)
		if opts.DumpSelect {
			DumpMachineFunction(out, mf)
		}
	}
	if opts.StopAfterSelect || opts.StopAfterAlloc {
		result.Success = true
		return result, nil
	}

	if opts.Verbose {
		fmt.Fprintln(out, "==> Stage 6: assemble")
	}
	assembler := arch.Assembler()
	for _, fn := range irMod.Functions {
		mf := result.MachineFunctions[fn.Name]
		af, err := assembler.AssembleFunction(mf)
		if err != nil {
			return result, &Error{Kind: KindAsm, Func: fn.Name, Cause: err}
		}
		result.Assembled[fn.Name] = af
	}

	helpers := arch.RuntimeHelpers()
	helperNames := make([]string, 0, len(helpers))
	for name := range helpers {
		if calledSymbols[name] {
			helperNames = append(helperNames, name)
		}
	}
	sort.Strings(helperNames)
	for _, name := range helperNames {
		af, err := assembler.AssembleSource(name, helpers[name])
		if err != nil {
			return result, &Error{Kind: KindAsm, Func: name, Cause: err}
		}
		result.Assembled[name] = af
	}
	if opts.DumpAssembly {
		DumpAssembly(out, result.Assembled)
	}
	if opts.StopAfterAssemble {
		result.Success = true
		return result, nil
	}

	if opts.Verbose {
		fmt.Fprintln(out, "==> Stage 7: link + HEX image")
	}
	order := make([]string, 0, len(irMod.Functions)+len(helperNames))
	for _, fn := range irMod.Functions {
		order = append(order, fn.Name)
	}
	order = append(order, helperNames...)

	image, err := linkImage(result.Assembled, order, assembler, opts.LoadAddress)
	if err != nil {
		return result, &Error{Kind: KindHex, Cause: err}
	}
	if opts.EntrySymbol != "" {
		if addr, ok := symbolAddress(result.Assembled, order, opts.LoadAddress, opts.EntrySymbol); ok {
			image.SetStartAddress(addr)
		}
	}
	result.Image = image
	if opts.DumpHex {
		DumpHex(out, image)
	}

	result.Success = true
	return result, nil
}

func collectCalledSymbols(fn *ir.Function, into map[string]bool) {
	for _, blk := range fn.Blocks {
		for _, ins := range blk.Instructions {
			if ins.Op == ir.OpCall {
				into[ins.Symbol] = true
			}
		}
	}
}
