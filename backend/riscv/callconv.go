package riscv

import "retarget/backend"

// CallingConvention implements the RV32 integer calling convention: up to
// eight arguments in a0-a7, overflow on the stack, return value in a0.
type CallingConvention struct{}

func (CallingConvention) ArgumentLocations(argWordSizes []int) []backend.ArgLocation {
	locs := make([]backend.ArgLocation, len(argWordSizes))
	stackOffset := 0
	for i := range argWordSizes {
		if i < len(ArgRegisters) {
			locs[i] = backend.ArgLocation{Kind: backend.ArgInRegister, Reg: ArgRegisters[i]}
			continue
		}
		locs[i] = backend.ArgLocation{Kind: backend.ArgOnStack, StackOffset: stackOffset}
		stackOffset += 4
	}
	return locs
}

func (CallingConvention) ReturnRegister() backend.PReg { return A0 }
func (CallingConvention) CallerSaved() []backend.PReg  { return CallerSavedRegisters }
func (CallingConvention) CalleeSaved() []backend.PReg  { return CalleeSavedRegisters }
func (CallingConvention) StackPointer() backend.PReg   { return SP }
func (CallingConvention) FramePointer() backend.PReg   { return FP }
func (CallingConvention) LinkRegister() backend.PReg   { return RA }
func (CallingConvention) StackAlignment() int          { return 16 }
