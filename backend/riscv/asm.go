package riscv

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"retarget/backend"
)

// Assembler encodes RV32I assembly, either selected directly from a
// MachineFunction or parsed from runtime-helper source text, using the
// same two-pass label-resolution strategy regardless of where the
// instructions came from: a first pass fixes every label's byte offset,
// then a second pass encodes each instruction now that branch/jump/la
// targets are known.
type Assembler struct {
	arch *Arch
}

func NewAssembler(a *Arch) *Assembler { return &Assembler{arch: a} }

// line is one assembly statement after flattening, independent of whether
// it was selected from MachineInstructions or parsed from text.
type line struct {
	label string // non-empty for a bare label line
	mnem  string
	ops   []operand
}

type operandKind uint8

const (
	opReg operandKind = iota
	opImm
	opSym
)

type operand struct {
	kind   operandKind
	reg    backend.PReg
	imm    int64
	symbol string
}

func (a *Assembler) AssembleFunction(mf *backend.MachineFunction) (*backend.AssembledFunction, error) {
	var lines []line
	for _, blk := range mf.Blocks {
		lines = append(lines, line{label: blk.Label})
		for _, ins := range blk.Instructions {
			if ins.IsLabel() {
				lines = append(lines, line{label: ins.Label()})
				continue
			}
			ops, err := machineOperands(ins)
			if err != nil {
				return nil, fmt.Errorf("riscv: assembling %s: %w", mf.Name, err)
			}
			lines = append(lines, line{mnem: ins.Mnemonic(), ops: ops})
		}
	}
	return assembleLines(mf.Name, lines)
}

func (a *Assembler) AssembleSource(name, source string) (*backend.AssembledFunction, error) {
	lines, err := parseSource(source)
	if err != nil {
		return nil, fmt.Errorf("riscv: parsing %s: %w", name, err)
	}
	return assembleLines(name, lines)
}

// PatchRelocation overwrites the jal ra, 0 placeholder AssembleFunction left
// at a call site with the real jal encoding now that the linker knows the
// callee's final address. Every Relocation this backend emits comes from
// the "call" case in encode, so rd is always ra; nothing else currently
// produces a Relocation.
func (a *Assembler) PatchRelocation(code []byte, offset int, relativeOffset int32) error {
	if offset < 0 || offset+4 > len(code) {
		return fmt.Errorf("riscv: relocation offset %d out of range for %d-byte function", offset, len(code))
	}
	copy(code[offset:offset+4], encodeJ(jal, RA, relativeOffset))
	return nil
}

// machineOperands produces the (rd, args...) operand order real RISC-V
// assembly syntax expects, resolving any VReg the allocator left uncolored
// as an error (AssembleFunction requires post-allocation input).
func machineOperands(ins backend.MachineInstruction) ([]operand, error) {
	var ops []operand
	if r := ins.Result(); r != nil {
		p, err := resolveVReg(r)
		if err != nil {
			return nil, err
		}
		ops = append(ops, operand{kind: opReg, reg: p})
	}
	for _, o := range ins.Operands() {
		switch o.Kind {
		case backend.OperandPReg:
			ops = append(ops, operand{kind: opReg, reg: o.PReg})
		case backend.OperandVReg:
			p, err := resolveVReg(o.VReg)
			if err != nil {
				return nil, err
			}
			ops = append(ops, operand{kind: opReg, reg: p})
		case backend.OperandImmediate:
			ops = append(ops, operand{kind: opImm, imm: o.Imm})
		case backend.OperandFrameSlot:
			ops = append(ops, operand{kind: opImm, imm: int64(o.Slot.Offset)})
		case backend.OperandSymbol:
			ops = append(ops, operand{kind: opSym, symbol: o.Symbol})
		}
	}
	return ops, nil
}

func resolveVReg(v *backend.VReg) (backend.PReg, error) {
	if v.PhysicalReg == nil {
		return backend.PReg{}, fmt.Errorf("virtual register v%d was never colored", v.ID)
	}
	return *v.PhysicalReg, nil
}

// parseSource turns assembly text into lines: `label:` on its own, or
// `mnem op, op, op` with whitespace-and-comma-separated operands. `;` and
// `//` start a comment running to end of line.
func parseSource(source string) ([]line, error) {
	var out []line
	for _, raw := range strings.Split(source, "\n") {
		text := raw
		if i := strings.IndexAny(text, ";"); i >= 0 {
			text = text[:i]
		}
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasSuffix(text, ":") {
			out = append(out, line{label: strings.TrimSuffix(text, ":")})
			continue
		}
		fields := strings.SplitN(text, " ", 2)
		mnem := fields[0]
		var ops []operand
		if len(fields) == 2 {
			for _, raw := range strings.Split(fields[1], ",") {
				tok := strings.TrimSpace(raw)
				if tok == "" {
					continue
				}
				op, err := parseOperand(tok)
				if err != nil {
					return nil, err
				}
				ops = append(ops, op)
			}
		}
		out = append(out, line{mnem: mnem, ops: ops})
	}
	return out, nil
}

func parseOperand(tok string) (operand, error) {
	if p, ok := regByName[tok]; ok {
		return operand{kind: opReg, reg: p}, nil
	}
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return operand{kind: opImm, imm: n}, nil
	}
	return operand{kind: opSym, symbol: tok}, nil
}

var regByName = func() map[string]backend.PReg {
	m := map[string]backend.PReg{}
	for _, r := range []backend.PReg{
		Zero, RA, SP, GP, TP, T0, T1, T2, FP, S1,
		A0, A1, A2, A3, A4, A5, A6, A7,
		S2, S3, S4, S5, S6, S7, S8, S9, S10, S11,
		T3, T4, T5, T6,
	} {
		m[r.Name] = r
	}
	m["x8"] = FP // s0/fp alias
	return m
}()

// instrSize returns the byte length a mnemonic expands to, used in the
// label-fixing pass. Every real RV32I instruction is 4 bytes; the two
// pseudo-instructions needing more than one real instruction (li with an
// out-of-range immediate, la) are sized for their worst case so the first
// pass never has to guess based on a label address it hasn't resolved yet.
func instrSize(mnem string) int {
	switch mnem {
	case "la":
		return 8
	case "li":
		return 8
	case "call":
		return 4
	default:
		return 4
	}
}

func assembleLines(name string, lines []line) (*backend.AssembledFunction, error) {
	labels := map[string]int{}
	offset := 0
	for _, l := range lines {
		if l.label != "" {
			labels[l.label] = offset
			continue
		}
		offset += instrSize(l.mnem)
	}

	var code []byte
	var relocs []backend.Relocation
	offset = 0
	for _, l := range lines {
		if l.label != "" {
			continue
		}
		enc, rel, err := encode(l, offset, labels)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.mnem, err)
		}
		code = append(code, enc...)
		if rel != nil {
			rel.Offset += offset
			relocs = append(relocs, *rel)
		}
		offset += len(enc)
	}

	return &backend.AssembledFunction{Name: name, Code: code, Labels: labels, Relocations: relocs}, nil
}

// encode lowers one line to its machine bytes at pc, resolving any label
// operand against labels (already-known for this two-pass scheme) and
// returning a Relocation when the target is an external symbol the linker
// must still patch (a call to another function, or an "la" load of a
// symbol's address).
func encode(l line, pc int, labels map[string]int) ([]byte, *backend.Relocation, error) {
	switch l.mnem {
	case "call":
		// The real offset is unknown until linking; emit a jal ra, 0
		// placeholder and let the Relocation carry the symbol to patch.
		return encodeJ(jal, RA, 0), &backend.Relocation{Symbol: l.ops[0].symbol}, nil
	case "j":
		target, ok := labels[l.ops[0].symbol]
		if !ok {
			return nil, nil, fmt.Errorf("undefined label %q", l.ops[0].symbol)
		}
		return encodeJ(jal, Zero, int32(target-pc)), nil, nil
	case "jal":
		return encodeJ(jal, l.ops[0].reg, int32(0)), nil, nil
	case "ret":
		return encodeI(jalr, Zero, RA, 0), nil, nil
	case "mv":
		return encodeI(addi, l.ops[0].reg, l.ops[1].reg, 0), nil, nil
	case "li":
		return encodeLI(l.ops[0].reg, l.ops[1].imm), nil, nil
	case "la":
		return encodeLI(l.ops[0].reg, 0), &backend.Relocation{Symbol: l.ops[1].symbol}, nil
	case "nop":
		return encodeI(addi, Zero, Zero, 0), nil, nil
	}

	if spec, ok := rFormat[l.mnem]; ok {
		return encodeR(spec, l.ops[0].reg, l.ops[1].reg, l.ops[2].reg), nil, nil
	}
	if spec, ok := iFormat[l.mnem]; ok {
		return encodeI(spec, l.ops[0].reg, l.ops[1].reg, int32(l.ops[2].imm)), nil, nil
	}
	if spec, ok := sFormat[l.mnem]; ok {
		// store syntax: mnem addr, val, offset (selector order)
		base, val, off := l.ops[0].reg, l.ops[1].reg, int32(l.ops[2].imm)
		return encodeS(spec, base, val, off), nil, nil
	}
	if spec, ok := bFormat[l.mnem]; ok {
		target, ok := labels[l.ops[2].symbol]
		if !ok {
			return nil, nil, fmt.Errorf("undefined label %q", l.ops[2].symbol)
		}
		return encodeB(spec, l.ops[0].reg, l.ops[1].reg, int32(target-pc)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown mnemonic %q", l.mnem)
}

// encodeLI synthesizes a 32-bit immediate load as lui+addi, the standard
// RISC-V expansion; for small immediates the lui half is simply zero,
// which still produces a correct (if redundant) two-instruction sequence.
func encodeLI(rd backend.PReg, imm int64) []byte {
	hi := int32((imm + 0x800) >> 12)
	lo := int32(imm) - (hi << 12)
	out := encodeU(lui, rd, hi)
	out = append(out, encodeI(addi, rd, rd, lo)...)
	return out
}

type rSpec struct{ opcode, funct3, funct7 uint32 }
type iSpec struct{ opcode, funct3 uint32 }
type sSpec struct{ opcode, funct3 uint32 }
type bSpec struct{ opcode, funct3 uint32 }

const (
	opOP     = 0b0110011
	opOPIMM  = 0b0010011
	opLOAD   = 0b0000011
	opSTORE  = 0b0100011
	opBRANCH = 0b1100011
	opJAL    = 0b1101111
	opJALR   = 0b1100111
	opLUI    = 0b0110111
)

var jal = iSpec{opcode: opJAL}
var jalr = iSpec{opcode: opJALR, funct3: 0}
var addi = iSpec{opcode: opOPIMM, funct3: 0b000}
var lui = iSpec{opcode: opLUI}

var rFormat = map[string]rSpec{
	"add": {opOP, 0b000, 0b0000000},
	"sub": {opOP, 0b000, 0b0100000},
	"sll": {opOP, 0b001, 0b0000000},
	"slt": {opOP, 0b010, 0b0000000},
	"sltu": {opOP, 0b011, 0b0000000},
	"xor": {opOP, 0b100, 0b0000000},
	"srl": {opOP, 0b101, 0b0000000},
	"sra": {opOP, 0b101, 0b0100000},
	"or":  {opOP, 0b110, 0b0000000},
	"and": {opOP, 0b111, 0b0000000},
	"mul": {opOP, 0b000, 0b0000001},
}

var iFormat = map[string]iSpec{
	"addi": {opOPIMM, 0b000}, "slti": {opOPIMM, 0b010}, "sltiu": {opOPIMM, 0b011},
	"xori": {opOPIMM, 0b100}, "ori": {opOPIMM, 0b110}, "andi": {opOPIMM, 0b111},
	"slli": {opOPIMM, 0b001}, "srli": {opOPIMM, 0b101},
	"lw": {opLOAD, 0b010}, "lh": {opLOAD, 0b001}, "lhu": {opLOAD, 0b101},
	"lb": {opLOAD, 0b000}, "lbu": {opLOAD, 0b100},
}

var sFormat = map[string]sSpec{
	"sw": {opSTORE, 0b010}, "sh": {opSTORE, 0b001}, "sb": {opSTORE, 0b000},
}

var bFormat = map[string]bSpec{
	"beq": {opBRANCH, 0b000}, "bne": {opBRANCH, 0b001},
	"blt": {opBRANCH, 0b100}, "bge": {opBRANCH, 0b101},
	"bltu": {opBRANCH, 0b110}, "bgeu": {opBRANCH, 0b111},
}

func encodeR(s rSpec, rd, rs1, rs2 backend.PReg) []byte {
	w := uint32(s.opcode) | uint32(rd.Index)<<7 | s.funct3<<12 |
		uint32(rs1.Index)<<15 | uint32(rs2.Index)<<20 | s.funct7<<25
	return le32(w)
}

func encodeI(s iSpec, rd, rs1 backend.PReg, imm int32) []byte {
	w := s.opcode | uint32(rd.Index)<<7 | s.funct3<<12 |
		uint32(rs1.Index)<<15 | (uint32(imm)&0xFFF)<<20
	return le32(w)
}

func encodeS(s sSpec, rs1, rs2 backend.PReg, imm int32) []byte {
	u := uint32(imm)
	lo := u & 0x1F
	hi := (u >> 5) & 0x7F
	w := s.opcode | lo<<7 | s.funct3<<12 | uint32(rs1.Index)<<15 | uint32(rs2.Index)<<20 | hi<<25
	return le32(w)
}

func encodeB(s bSpec, rs1, rs2 backend.PReg, imm int32) []byte {
	u := uint32(imm)
	bit11 := (u >> 11) & 1
	bit4_1 := (u >> 1) & 0xF
	bit10_5 := (u >> 5) & 0x3F
	bit12 := (u >> 12) & 1
	w := s.opcode | bit11<<7 | bit4_1<<8 | s.funct3<<12 |
		uint32(rs1.Index)<<15 | uint32(rs2.Index)<<20 | bit10_5<<25 | bit12<<31
	return le32(w)
}

func encodeU(s iSpec, rd backend.PReg, imm int32) []byte {
	w := s.opcode | uint32(rd.Index)<<7 | (uint32(imm)<<12)&0xFFFFF000
	return le32(w)
}

func encodeJ(s iSpec, rd backend.PReg, imm int32) []byte {
	u := uint32(imm)
	bit20 := (u >> 20) & 1
	bit10_1 := (u >> 1) & 0x3FF
	bit11 := (u >> 11) & 1
	bit19_12 := (u >> 12) & 0xFF
	w := s.opcode | uint32(rd.Index)<<7 | bit19_12<<12 | bit11<<20 | bit10_1<<21 | bit20<<31
	return le32(w)
}

func le32(w uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, w)
	return b
}
