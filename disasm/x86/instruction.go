// Package x86 wraps golang.org/x/arch/x86/x86asm as the linear instruction
// decoder (C2) and the per-section disassembly cache (C3).
package x86

import "golang.org/x/arch/x86/x86asm"

// Instruction is a decoded x86 instruction, annotated with the fields the
// classifier and enumerator need beyond what x86asm.Inst carries directly.
type Instruction struct {
	x86asm.Inst

	// Address is the runtime address of the instruction's first byte.
	Address uint64
	// Valid is false when the underlying bytes could not be decoded.
	Valid bool
	// FlowControl categorises how this instruction transfers control.
	FlowControl FlowControl
}

// Legacy prefix predicates, used by the quiet-mode head admissibility
// check. x86asm does not distinguish REPE from REP, or REPNE from REPN, at
// the type level (both are byte 0xF3 / 0xF2 respectively); REPE/REPNE are
// exposed as aliases of the same underlying prefix so callers checking
// "repe" or "repne" specifically should additionally confirm the
// instruction belongs to a compare/scan family (CMPS*, SCAS*).

// HasLock reports whether the instruction carries a LOCK prefix.
func (i Instruction) HasLock() bool { return i.hasPrefix(x86asm.PrefixLOCK) }

// HasRep reports whether the instruction carries a REP prefix (0xF3) on a
// mnemonic other than a string-compare/scan (i.e. plain REP, not REPE).
func (i Instruction) HasRep() bool {
	return i.hasPrefix(x86asm.PrefixREP) && !isCmpScan(i.Op)
}

// HasRepe reports whether the instruction carries a REP prefix (0xF3) used
// as REPE on a string-compare/scan mnemonic.
func (i Instruction) HasRepe() bool {
	return i.hasPrefix(x86asm.PrefixREP) && isCmpScan(i.Op)
}

// HasRepne reports whether the instruction carries a REPN prefix (0xF2).
func (i Instruction) HasRepne() bool { return i.hasPrefix(x86asm.PrefixREPN) }

// HasXacquire reports whether the instruction carries an XACQUIRE prefix.
func (i Instruction) HasXacquire() bool { return i.hasPrefix(x86asm.PrefixXACQUIRE) }

// HasXrelease reports whether the instruction carries an XRELEASE prefix.
func (i Instruction) HasXrelease() bool { return i.hasPrefix(x86asm.PrefixXRELEASE) }

// HasLegacyPrefix reports whether any of the six legacy prefixes the quiet
// classifier cares about is present.
func (i Instruction) HasLegacyPrefix() bool {
	return i.HasLock() || i.HasRep() || i.HasRepe() || i.HasRepne() || i.HasXacquire() || i.HasXrelease()
}

// prefixFlagBits are the high status bits x86asm ORs onto a Prefix value
// (Implicit/Ignored/Invalid); they must be masked off before comparing
// against a bare prefix constant. Masking to the low byte instead would
// conflate PrefixREPN (0xF2) with PrefixXACQUIRE (0x1F2) and PrefixBND
// (0x2F2), which all share that low byte.
const prefixFlagBits = x86asm.PrefixImplicit | x86asm.PrefixIgnored | x86asm.PrefixInvalid

func (i Instruction) hasPrefix(want x86asm.Prefix) bool {
	for _, p := range i.Prefix {
		if p == 0 {
			break
		}
		if p&^prefixFlagBits == want {
			return true
		}
	}
	return false
}

func isCmpScan(op x86asm.Op) bool {
	switch op {
	case x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD, x86asm.CMPSQ,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD, x86asm.SCASQ:
		return true
	}
	return false
}

// DecodeAt decodes the instruction starting at byte offset 0 of buf,
// assuming the runtime instruction pointer is ip. Per the decoder contract,
// undecodable bytes never abort the caller: the result is flagged invalid
// with a defined length of 1 so that per-byte enumeration still makes
// forward progress.
func DecodeAt(buf []byte, bitness int, ip uint64) Instruction {
	if len(buf) == 0 {
		return Instruction{Address: ip, Valid: false, Inst: x86asm.Inst{Len: 1}}
	}
	inst, err := x86asm.Decode(buf, bitness)
	if err != nil || inst.Len == 0 {
		return Instruction{Address: ip, Valid: false, Inst: x86asm.Inst{Len: 1}}
	}
	return Instruction{
		Inst:        inst,
		Address:     ip,
		Valid:       true,
		FlowControl: classifyFlowControl(inst),
	}
}
