package classify

import (
	"testing"

	"github.com/ropgo/ropgo/disasm/x86"
)

func decode(t *testing.T, buf []byte, addr uint64) x86.Instruction {
	t.Helper()
	inst := x86.DecodeAt(buf, 64, addr)
	if !inst.Valid {
		t.Fatalf("decode %x at %#x: invalid", buf, addr)
	}
	return inst
}

func TestIsTailRet(t *testing.T) {
	ret := decode(t, []byte{0xC3}, 0x1000)
	if !IsTail(ret, true, false, false, Options{}) {
		t.Fatal("ret should be a tail when rop is enabled")
	}
	if IsTail(ret, false, false, false, Options{}) {
		t.Fatal("ret should not be a tail when rop is disabled")
	}
}

func TestIsTailSyscall(t *testing.T) {
	syscall := decode(t, []byte{0x0F, 0x05}, 0x1000)
	if !IsTail(syscall, false, true, false, Options{}) {
		t.Fatal("syscall should be a tail when sys is enabled")
	}
	if IsTail(syscall, false, false, false, Options{}) {
		t.Fatal("syscall should not be a tail when sys is disabled")
	}
}

func TestIsTailInt80(t *testing.T) {
	int80 := decode(t, []byte{0xCD, 0x80}, 0x1000)
	if !IsTail(int80, false, true, false, Options{}) {
		t.Fatal("int 0x80 should be a tail when sys is enabled")
	}
	int21 := decode(t, []byte{0xCD, 0x21}, 0x1000)
	if IsTail(int21, false, true, false, Options{}) {
		t.Fatal("int 0x21 is not a syscall tail")
	}
}

func TestIsJOPQuietRegisterIndirect(t *testing.T) {
	// jmp rax
	inst := decode(t, []byte{0xFF, 0xE0}, 0x1000)
	if !IsJOP(inst, Options{SingleRegisterOnly: true}) {
		t.Fatal("jmp rax should qualify as a JOP tail in quiet mode")
	}
}

func TestIsJOPQuietRIPRelativeIsNotIndirect(t *testing.T) {
	// jmp [rip+0] -- ModRM 0x25 with disp32 encodes a RIP-relative memory operand.
	inst := decode(t, []byte{0xFF, 0x25, 0x00, 0x00, 0x00, 0x00}, 0x1000)
	if IsJOP(inst, Options{}) {
		t.Fatal("RIP-relative jmp is a direct branch, not a JOP tail")
	}
}

func TestIsJOPNoisyExcludesOnlyNearRelImmediate(t *testing.T) {
	// jmp rel8 (near direct branch): excluded even in noisy mode.
	near := decode(t, []byte{0xEB, 0x10}, 0x1000)
	if IsJOP(near, Options{Noisy: true}) {
		t.Fatal("near relative jmp must not qualify as a JOP tail in noisy mode")
	}

	// call ptr16:32 (far call, an Imm operand kind) is only encodable in
	// 32-bit mode; it qualifies in noisy mode there.
	farInst := x86.DecodeAt([]byte{0x9A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 32, 0x1000)
	if !farInst.Valid {
		t.Skip("decoder did not recognise far call encoding")
	}
	if !IsJOP(farInst, Options{Noisy: true}) {
		t.Fatal("far call immediate should qualify as a JOP tail in noisy mode")
	}
}

func TestIsHeadQuietRejectsLegacyPrefix(t *testing.T) {
	// lock add [rax], eax
	locked := decode(t, []byte{0xF0, 0x01, 0x00}, 0x1000)
	if IsHead(locked, Options{}) {
		t.Fatal("locked instruction must not be a quiet-mode head")
	}
	if !IsHead(locked, Options{Noisy: true}) {
		t.Fatal("locked instruction should be a noisy-mode head")
	}
}

func TestIsHeadConditionalBranchOnlyInNoisyMode(t *testing.T) {
	// je rel8
	je := decode(t, []byte{0x74, 0x02}, 0x1000)
	if IsHead(je, Options{}) {
		t.Fatal("conditional branch must not be a quiet-mode head")
	}
	if !IsHead(je, Options{Noisy: true}) {
		t.Fatal("conditional branch should be a noisy-mode head")
	}
}

func TestIsStackPivotHeadAddEsp(t *testing.T) {
	// add esp, 8
	add := decode(t, []byte{0x83, 0xC4, 0x08}, 0x1000)
	if !IsStackPivotHead(add) {
		t.Fatal("add esp, 8 should be recognised as a stack-pivot head")
	}
	if IsBasePivotHead(add) {
		t.Fatal("add esp, 8 must not be a base-pivot head")
	}
}

func TestIsBasePivotHeadPopRbp(t *testing.T) {
	// pop rbp
	pop := decode(t, []byte{0x5D}, 0x1000)
	if !IsBasePivotHead(pop) {
		t.Fatal("pop rbp should be recognised as a base-pivot head")
	}
	if IsStackPivotHead(pop) {
		t.Fatal("pop rbp must not be a stack-pivot head")
	}
}

func TestIsStackPivotTailRet(t *testing.T) {
	ret := decode(t, []byte{0xC3}, 0x1000)
	if !IsStackPivotTail(ret) {
		t.Fatal("ret must be a stack-pivot tail")
	}
}
