// Package format renders a Gadget as the one-line textual form emitted on
// stdout, with optional ANSI colouring (C7).
package format

import (
	"strings"

	"github.com/fatih/color"
	"github.com/ropgo/ropgo/gadgets"
	"golang.org/x/arch/x86/x86asm"
)

var (
	addrColour = color.New(color.FgRed)
	mnemColour = color.New(color.FgYellow)
	regColour  = color.New(color.FgRed)
)

// pivotRegisters are coloured red when rendered, matching the original's
// formatter.rs token-kind mapping (esp/rsp highlighted as the pivot
// register family; eip/rip included since this port also emits 32-bit
// output).
var pivotRegisters = map[string]bool{
	"esp": true, "rsp": true, "eip": true, "rip": true,
}

// Instructions renders the gadget's instruction sequence only (no leading
// address), terminated by "; " between instructions and ";" after the
// last. This is the text the regex filters match against.
func Instructions(g gadgets.Gadget) string {
	var b strings.Builder
	for i, inst := range g.Instrs {
		b.WriteString(x86asm.IntelSyntax(inst.Inst, inst.Address, nil))
		b.WriteByte(';')
		if i != len(g.Instrs)-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Line renders the full "0xADDR: instr1; instr2; …;" form. When colour is
// true, the address is red, mnemonics are yellow, and esp/rsp/eip/rip
// registers are red.
func Line(g gadgets.Gadget, colour bool) string {
	addr := addrHex(g.Addr)
	body := Instructions(g)
	if !colour {
		return addr + ": " + body
	}
	return addrColour.Sprint(addr) + ": " + colourBody(g)
}

// addrHex renders addr as "%#010x": "0x" followed by at least 8 zero-padded
// hex digits, more when the address needs them.
func addrHex(addr uint64) string {
	const hexDigits = "0123456789abcdef"
	var digits []byte
	for len(digits) < 8 || addr != 0 {
		digits = append(digits, hexDigits[addr&0xF])
		addr >>= 4
	}
	buf := make([]byte, 0, 2+len(digits))
	buf = append(buf, '0', 'x')
	for i := len(digits) - 1; i >= 0; i-- {
		buf = append(buf, digits[i])
	}
	return string(buf)
}

// colourBody renders each instruction with its mnemonic in yellow and any
// pivot register token in red, falling back to Instructions' plain
// rendering for the parts IntelSyntax doesn't let us intercept: tokens are
// recovered by re-splitting the formatted text, mirroring the spirit of
// the original's FormatterOutput callback without needing a callback-based
// formatter API (x86asm.IntelSyntax returns a finished string, not a token
// stream).
func colourBody(g gadgets.Gadget) string {
	var b strings.Builder
	for i, inst := range g.Instrs {
		text := x86asm.IntelSyntax(inst.Inst, inst.Address, nil)
		b.WriteString(colourInstructionText(text))
		b.WriteByte(';')
		if i != len(g.Instrs)-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// colourInstructionText colours the leading mnemonic yellow and any
// standalone esp/rsp/eip/rip register token red.
func colourInstructionText(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '[' || r == ']' || r == '+' || r == '*'
	})
	if len(fields) == 0 {
		return text
	}
	out := text
	mnem := fields[0]
	out = replaceFirst(out, mnem, mnemColour.Sprint(mnem))
	for _, f := range fields[1:] {
		if pivotRegisters[f] {
			out = strings.ReplaceAll(out, f, regColour.Sprint(f))
		}
	}
	return out
}

func replaceFirst(s, old, new string) string {
	i := strings.Index(s, old)
	if i < 0 {
		return s
	}
	return s[:i] + new + s[i+len(old):]
}
