// Package classify implements the pure predicates (C4) that decide which
// decoded instructions may terminate a gadget (tails) and which may precede
// one (heads), including the stack- and base-pivot refinements used by the
// property filters.
package classify

import (
	"github.com/ropgo/ropgo/disasm/x86"
	"golang.org/x/arch/x86/x86asm"
)

// Options configures the admissibility predicates.
type Options struct {
	// Noisy relaxes head/tail admissibility: prefixes and conditional
	// branches are allowed as heads, and near indirect branches of any
	// operand kind (not just register/memory) count as JOP tails.
	Noisy bool
	// SingleRegisterOnly additionally requires a JOP tail's indirect
	// operand to read exactly one register (no scaled-index memory
	// operands with both a base and an index register read), for a
	// reliable single-register pivot rather than one that also depends on
	// an index register's value. Defaults to true outside noisy mode.
	SingleRegisterOnly bool
}

// IsTail reports whether inst may terminate a gadget under the enabled
// categories.
func IsTail(inst x86.Instruction, rop, sys, jop bool, opts Options) bool {
	if !inst.Valid {
		return false
	}
	if inst.FlowControl == x86.FlowNext {
		return false
	}
	if rop && inst.Op == x86asm.RET {
		return true
	}
	if sys && isSyscallTail(inst) {
		return true
	}
	if jop && IsJOP(inst, opts) {
		return true
	}
	return false
}

// isSyscallTail reports whether inst is a SYSCALL, or an INT 0x80.
func isSyscallTail(inst x86.Instruction) bool {
	if inst.Op == x86asm.SYSCALL {
		return true
	}
	if inst.Op == x86asm.INT {
		if imm, ok := inst.Args[0].(x86asm.Imm); ok {
			return imm == 0x80
		}
	}
	return false
}

// IsJOP reports whether inst is a JMP or CALL (near or far) whose target is
// attacker controllable via a register or dereferenced memory.
func IsJOP(inst x86.Instruction, opts Options) bool {
	if inst.Op != x86asm.JMP && inst.Op != x86asm.CALL &&
		inst.Op != x86asm.LJMP && inst.Op != x86asm.LCALL {
		return false
	}
	arg := inst.Args[0]

	if opts.Noisy {
		// Only a near-branch relative target (Rel) is excluded; memory,
		// register, and far-pointer immediate targets all qualify.
		_, isRel := arg.(x86asm.Rel)
		return !isRel
	}

	switch a := arg.(type) {
	case x86asm.Reg:
		if opts.SingleRegisterOnly {
			return countRegReads(inst) == 1
		}
		return true
	case x86asm.Mem:
		if a.Base == x86asm.EIP || a.Base == x86asm.RIP {
			return false
		}
		if opts.SingleRegisterOnly {
			return countRegReads(inst) == 1
		}
		return true
	default:
		return false
	}
}

// countRegReads counts how many distinct registers are read to compute the
// effective target: for a bare register operand this is always 1; for a
// memory operand it is the number of {base, index} registers actually
// present.
func countRegReads(inst x86.Instruction) int {
	switch a := inst.Args[0].(type) {
	case x86asm.Reg:
		return 1
	case x86asm.Mem:
		n := 0
		if a.Base != 0 {
			n++
		}
		if a.Index != 0 && a.Scale != 0 {
			n++
		}
		return n
	default:
		return 0
	}
}

// IsHead reports whether inst may precede a gadget's tail.
func IsHead(inst x86.Instruction, opts Options) bool {
	if !inst.Valid {
		return false
	}
	switch inst.FlowControl {
	case x86.FlowNext:
		// fallthrough to prefix check below
	case x86.FlowConditionalBranch:
		if !opts.Noisy {
			return false
		}
	default:
		return false
	}
	if !opts.Noisy && inst.HasLegacyPrefix() {
		return false
	}
	return true
}

// spFamily and bpFamily are the stack- and base-pointer register families
// across all three operand widths.
var spFamily = map[x86asm.Reg]bool{x86asm.SP: true, x86asm.ESP: true, x86asm.RSP: true}
var bpFamily = map[x86asm.Reg]bool{x86asm.BP: true, x86asm.EBP: true, x86asm.RBP: true}

// group1 mnemonics: op0 in family AND op1 is an immediate or a register.
var pivotGroup1 = map[x86asm.Op]bool{
	x86asm.ADC: true, x86asm.ADD: true, x86asm.SBB: true, x86asm.SUB: true,
	x86asm.CMOVA: true, x86asm.CMOVAE: true, x86asm.CMOVB: true, x86asm.CMOVBE: true,
	x86asm.CMOVE: true, x86asm.CMOVG: true, x86asm.CMOVGE: true, x86asm.CMOVL: true,
	x86asm.CMOVLE: true, x86asm.CMOVNE: true, x86asm.CMOVNO: true, x86asm.CMOVNP: true,
	x86asm.CMOVNS: true, x86asm.CMOVO: true, x86asm.CMOVP: true, x86asm.CMOVS: true,
	x86asm.CMPXCHG: true, x86asm.CMPXCHG8B: true, x86asm.CMPXCHG16B: true,
	x86asm.POP: true, x86asm.POPA: true, x86asm.POPAD: true,
}

// group2 mnemonics: op0 in family AND (op1 register OR memory with base).
var pivotGroup2 = map[x86asm.Op]bool{
	x86asm.MOV: true, x86asm.MOVBE: true, x86asm.MOVD: true,
}

// group3 mnemonics: op0 in family OR op1 in family.
var pivotGroup3 = map[x86asm.Op]bool{
	x86asm.XADD: true, x86asm.XCHG: true,
}

// IsStackPivotHead reports whether inst mutates {SP, ESP, RSP} other than
// the trivial implicit adjustment a RET performs.
func IsStackPivotHead(inst x86.Instruction) bool { return isPivotHead(inst, spFamily) }

// IsBasePivotHead reports whether inst mutates {BP, EBP, RBP}.
func IsBasePivotHead(inst x86.Instruction) bool { return isPivotHead(inst, bpFamily) }

func isPivotHead(inst x86.Instruction, family map[x86asm.Reg]bool) bool {
	if !inst.Valid {
		return false
	}
	op0, op0IsReg := inst.Args[0].(x86asm.Reg)

	switch {
	case pivotGroup1[inst.Op]:
		if !op0IsReg || !family[op0] {
			return false
		}
		switch inst.Args[1].(type) {
		case x86asm.Imm, x86asm.Reg:
			return true
		default:
			return false
		}
	case pivotGroup2[inst.Op]:
		if !op0IsReg || !family[op0] {
			return false
		}
		switch a := inst.Args[1].(type) {
		case x86asm.Reg:
			return true
		case x86asm.Mem:
			return a.Base != 0
		default:
			return false
		}
	case pivotGroup3[inst.Op]:
		if op0IsReg && family[op0] {
			return true
		}
		if op1, ok := inst.Args[1].(x86asm.Reg); ok && family[op1] {
			return true
		}
		return false
	default:
		return false
	}
}

// IsStackPivotTail reports whether inst is a RET.
func IsStackPivotTail(inst x86.Instruction) bool {
	return inst.Valid && inst.Op == x86asm.RET
}
