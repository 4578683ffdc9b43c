package compile

import (
	"fmt"

	"retarget/backend"
	"retarget/hexfile"
)

// functionAlign is the byte boundary every assembled function starts on.
// RV32I instructions are 4 bytes, so word-aligning each function keeps
// every call target a valid instruction address.
const functionAlign = 4

// layout assigns each name in order a base address starting at load,
// packing functions back-to-back and padding each one up to functionAlign
// so the next function starts word-aligned.
func layout(assembled map[string]*backend.AssembledFunction, order []string, load uint32) map[string]uint32 {
	bases := make(map[string]uint32, len(order))
	addr := load
	for _, name := range order {
		af := assembled[name]
		bases[name] = addr
		size := uint32(len(af.Code))
		if rem := size % functionAlign; rem != 0 {
			size += functionAlign - rem
		}
		addr += size
	}
	return bases
}

func symbolAddress(assembled map[string]*backend.AssembledFunction, order []string, load uint32, name string) (uint32, bool) {
	bases := layout(assembled, order, load)
	addr, ok := bases[name]
	return addr, ok
}

// linkImage patches every cross-function call relocation now that each
// assembled function has a final address, then lays the patched code into
// an hexfile.File region per function. AddRegion merges adjacent regions
// automatically, so back-to-back functions collapse into one data record
// run rather than one record per function.
func linkImage(assembled map[string]*backend.AssembledFunction, order []string, asm backend.Assembler, load uint32) (*hexfile.File, error) {
	bases := layout(assembled, order, load)

	img := hexfile.New()
	for _, name := range order {
		af, ok := assembled[name]
		if !ok {
			return nil, fmt.Errorf("compile: %q selected for linking but never assembled", name)
		}
		code := append([]byte(nil), af.Code...)
		for _, rel := range af.Relocations {
			target, ok := bases[rel.Symbol]
			if !ok {
				return nil, fmt.Errorf("compile: %s: undefined symbol %q", name, rel.Symbol)
			}
			callSite := int64(bases[name]) + int64(rel.Offset)
			relOffset := int64(target) - callSite
			if err := asm.PatchRelocation(code, rel.Offset, int32(relOffset)); err != nil {
				return nil, fmt.Errorf("compile: %s: %w", name, err)
			}
		}
		if err := img.AddRegion(bases[name], code); err != nil {
			return nil, err
		}
	}
	return img, nil
}
