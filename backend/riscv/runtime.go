package riscv

// sdivSource is the __sdiv runtime helper: RV32I has no div instruction, so
// every legalized signed division calls into this restoring binary long
// division on the operands' magnitudes. x28 (t3) holds the dividend, x14
// (a4) the divisor, t5 the running remainder that takes one dividend bit
// per step (most significant first) and t1 the quotient; the assembler's
// own mnemonic parser assembles this text exactly like any selected
// function, so the routine is linked in as ordinary code rather than
// hand-encoded bytes.
const sdivSource = `
__sdiv:
	mv      t3, a0
	mv      a4, a1
	xor     t0, a0, a1
	bge     a0, zero, __sdiv_abs_dividend_done
	sub     t3, zero, t3
__sdiv_abs_dividend_done:
	bge     a1, zero, __sdiv_abs_divisor_done
	sub     a4, zero, a4
__sdiv_abs_divisor_done:
	li      t5, 0
	li      t1, 0
	li      t2, 32
__sdiv_loop:
	beq     t2, zero, __sdiv_apply_sign
	addi    t2, t2, -1
	slli    t1, t1, 1
	slli    t5, t5, 1
	srl     t6, t3, t2
	andi    t6, t6, 1
	or      t5, t5, t6
	sltu    t6, t5, a4
	bne     t6, zero, __sdiv_skip
	sub     t5, t5, a4
	ori     t1, t1, 1
__sdiv_skip:
	j       __sdiv_loop
__sdiv_apply_sign:
	mv      a0, t1
	bge     t0, zero, __sdiv_return
	sub     a0, zero, a0
__sdiv_return:
	ret
`
