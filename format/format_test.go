package format

import (
	"strings"
	"testing"

	"github.com/ropgo/ropgo/disasm/x86"
	"github.com/ropgo/ropgo/gadgets"
)

func gadget(t *testing.T, code []byte, addr uint64) gadgets.Gadget {
	t.Helper()
	instrs := make([]x86.Instruction, 0, len(code))
	offset := 0
	for offset < len(code) {
		inst := x86.DecodeAt(code[offset:], 64, addr+uint64(offset))
		instrs = append(instrs, inst)
		offset += inst.Len
	}
	return gadgets.Gadget{Addr: addr, Instrs: instrs}
}

func TestLineSingletonRet(t *testing.T) {
	g := gadget(t, []byte{0xC3}, 0x1000)
	line := Line(g, false)
	want := "0x00001000: ret;"
	if line != want {
		t.Fatalf("want %q, got %q", want, line)
	}
}

func TestLinePopRet(t *testing.T) {
	g := gadget(t, []byte{0x58, 0xC3}, 0x1000)
	line := Line(g, false)
	if !strings.HasPrefix(line, "0x00001000: ") {
		t.Fatalf("unexpected address prefix: %q", line)
	}
	if !strings.Contains(line, "pop") || !strings.HasSuffix(line, "ret;") {
		t.Fatalf("expected pop...; ret; body, got %q", line)
	}
}

func TestInstructionsTerminatesEachWithSemicolon(t *testing.T) {
	g := gadget(t, []byte{0x58, 0xC3}, 0x1000)
	text := Instructions(g)
	parts := strings.Split(strings.TrimSuffix(text, ";"), "; ")
	if len(parts) != 2 {
		t.Fatalf("want 2 semicolon-terminated instructions, got %q", text)
	}
}

func TestLineColourDoesNotChangeAddressDigits(t *testing.T) {
	g := gadget(t, []byte{0xC3}, 0x1000)
	plain := Line(g, false)
	coloured := Line(g, true)
	if !strings.Contains(coloured, "00001000") {
		t.Fatalf("coloured output must still contain the zero-padded address, got %q (plain: %q)", coloured, plain)
	}
}
