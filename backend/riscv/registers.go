// Package riscv is the concrete RV32I backend: register file, instruction
// selection, frame/call lowering and the assembler that turns selected
// instructions into bytes.
package riscv

import "retarget/backend"

// Reg builds the PReg for RISC-V integer register index (0-31).
func Reg(index int, name string) backend.PReg {
	return backend.PReg{Name: name, Class: backend.ClassGP, Index: index}
}

// The 32 integer registers, named by their ABI role rather than xN, the
// way assembly actually written against this ABI reads.
var (
	Zero = Reg(0, "zero")
	RA   = Reg(1, "ra")
	SP   = Reg(2, "sp")
	GP   = Reg(3, "gp")
	TP   = Reg(4, "tp")
	T0   = Reg(5, "t0")
	T1   = Reg(6, "t1")
	T2   = Reg(7, "t2")
	FP   = Reg(8, "s0") // frame pointer, alias s0
	S1   = Reg(9, "s1")
	A0   = Reg(10, "a0")
	A1   = Reg(11, "a1")
	A2   = Reg(12, "a2")
	A3   = Reg(13, "a3")
	A4   = Reg(14, "a4")
	A5   = Reg(15, "a5")
	A6   = Reg(16, "a6")
	A7   = Reg(17, "a7")
	S2   = Reg(18, "s2")
	S3   = Reg(19, "s3")
	S4   = Reg(20, "s4")
	S5   = Reg(21, "s5")
	S6   = Reg(22, "s6")
	S7   = Reg(23, "s7")
	S8   = Reg(24, "s8")
	S9   = Reg(25, "s9")
	S10  = Reg(26, "s10")
	S11  = Reg(27, "s11")
	T3   = Reg(28, "t3")
	T4   = Reg(29, "t4")
	T5   = Reg(30, "t5")
	T6   = Reg(31, "t6")
)

// ArgRegisters is the full x10..x17 integer argument window (a0-a7), the
// RISC-V calling convention's actual register set with no reservation for
// a self-pointer convention this core does not use.
var ArgRegisters = []backend.PReg{A0, A1, A2, A3, A4, A5, A6, A7}

// CalleeSavedRegisters must be preserved across a call by the callee.
var CalleeSavedRegisters = []backend.PReg{S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11}

// CallerSavedRegisters may be freely clobbered by a call; a caller that
// needs their values afterward must save them itself.
var CallerSavedRegisters = []backend.PReg{T0, T1, T2, A0, A1, A2, A3, A4, A5, A6, A7, T3, T4, T5, T6}

// AllocatableRegisters is the pool the register allocator colors general
// VRegs into: s1 and s2-s11 (x9, x18-x27), exactly the allocation pool
// spec.md §3 defines. a0-a7 are reserved for the argument/return window
// (pre-colored onto parameter VRegs by SelectFunction, never handed out by
// the colorer's own Available list) and t0-t6 are left unused by the
// allocator entirely: every register this pool can produce is
// callee-saved, so a function's own prologue/epilogue — not a caller-save
// spill around each call — is what keeps a colored value alive across a
// call the function makes.
var AllocatableRegisters = []backend.PReg{
	S1,
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11,
}
