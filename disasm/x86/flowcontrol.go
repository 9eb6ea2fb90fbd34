package x86

import "golang.org/x/arch/x86/x86asm"

// FlowControl categorises the control-transfer behaviour of a decoded
// instruction.
type FlowControl int

// The flow-control categories named in the gadget data model.
const (
	// FlowNext is ordinary sequential flow: the instruction does not
	// transfer control away from the following byte.
	FlowNext FlowControl = iota
	FlowConditionalBranch
	FlowUnconditionalBranch
	FlowIndirectBranch
	FlowCall
	FlowIndirectCall
	FlowReturn
	FlowInterrupt
	FlowSyscall
	FlowException
)

// condBranchOps are the conditional jump and loop mnemonics; all transfer
// control only if a condition holds, so flow may still fall through.
var condBranchOps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JCXZ: true, x86asm.JE: true, x86asm.JECXZ: true, x86asm.JG: true,
	x86asm.JGE: true, x86asm.JL: true, x86asm.JLE: true, x86asm.JNE: true,
	x86asm.JNO: true, x86asm.JNP: true, x86asm.JNS: true, x86asm.JO: true,
	x86asm.JP: true, x86asm.JRCXZ: true, x86asm.JS: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
}

// classifyFlowControl derives a FlowControl category for a decoded
// instruction, including whether a JMP/CALL operand is "indirect". JOP tail
// classification does not use this category: classify.IsJOP re-examines
// the operand directly.
func classifyFlowControl(inst x86asm.Inst) FlowControl {
	switch {
	case condBranchOps[inst.Op]:
		return FlowConditionalBranch
	case inst.Op == x86asm.JMP || inst.Op == x86asm.LJMP:
		if isIndirectTarget(inst.Args[0]) {
			return FlowIndirectBranch
		}
		return FlowUnconditionalBranch
	case inst.Op == x86asm.CALL || inst.Op == x86asm.LCALL:
		if isIndirectTarget(inst.Args[0]) {
			return FlowIndirectCall
		}
		return FlowCall
	case inst.Op == x86asm.RET || inst.Op == x86asm.LRET,
		inst.Op == x86asm.IRET, inst.Op == x86asm.IRETD, inst.Op == x86asm.IRETQ:
		return FlowReturn
	case inst.Op == x86asm.SYSCALL || inst.Op == x86asm.SYSENTER:
		return FlowSyscall
	case inst.Op == x86asm.INT:
		return FlowInterrupt
	case inst.Op == x86asm.INTO, inst.Op == x86asm.UD1, inst.Op == x86asm.UD2,
		inst.Op == x86asm.SYSEXIT, inst.Op == x86asm.SYSRET:
		return FlowException
	default:
		return FlowNext
	}
}

// isIndirectTarget reports whether arg is a register or a memory operand
// whose base is not the instruction pointer (EIP/RIP-relative addressing is
// effectively a direct branch: the target is baked into the instruction at
// link/assembly time, not attacker-controlled at the operand).
func isIndirectTarget(arg x86asm.Arg) bool {
	switch a := arg.(type) {
	case x86asm.Reg:
		return true
	case x86asm.Mem:
		return a.Base != x86asm.EIP && a.Base != x86asm.RIP
	default:
		// Rel (near relative) or Imm (far ptr immediate): direct.
		return false
	}
}
