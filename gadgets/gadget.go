// Package gadgets implements the backward gadget enumerator (C5): given a
// tail offset, walk backward through valid head instructions to produce
// every well-formed gadget up to a maximum instruction count.
package gadgets

import (
	"strings"

	"github.com/ropgo/ropgo/classify"
	"github.com/ropgo/ropgo/disasm/x86"
)

// Gadget is an ordered, non-empty sequence of decoded instructions whose
// last element is a classified tail and whose prior elements are all
// classified heads.
type Gadget struct {
	// Addr is the absolute address of the gadget's first byte.
	Addr uint64
	// Instrs is the instruction sequence, head(s) followed by the tail.
	Instrs []x86.Instruction
}

// Key returns a value suitable as a map key that identifies the gadget by
// its instruction sequence alone. Per the data model, equality and hashing
// exclude the address, so that the same instruction pattern discovered at
// multiple offsets deduplicates under the default uniq policy. Go map keys
// must be comparable, so this builds a comparable string key instead of a
// live hash; the content is effectively the gadget's formatted instruction
// text without the address.
func (g Gadget) Key() string {
	var b strings.Builder
	for _, inst := range g.Instrs {
		b.WriteString(inst.Op.String())
		b.WriteByte(':')
		for _, arg := range inst.Args {
			if arg == nil {
				break
			}
			b.WriteString(arg.String())
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	return b.String()
}

// IsStackPivot reports whether g is a stack-pivot gadget: a singleton
// gadget whose tail is itself a stack-pivot tail, or a longer gadget with
// any interior (all-but-last) instruction that is a stack-pivot head.
func (g Gadget) IsStackPivot() bool {
	if len(g.Instrs) == 1 {
		return classify.IsStackPivotTail(g.Instrs[0])
	}
	for _, inst := range g.Instrs[:len(g.Instrs)-1] {
		if classify.IsStackPivotHead(inst) {
			return true
		}
	}
	return false
}

// IsBasePivot reports whether g is a base-pivot gadget. Undefined (false)
// for a singleton gadget: there is no earlier instruction to classify as
// a base-pivot head.
func (g Gadget) IsBasePivot() bool {
	if len(g.Instrs) < 2 {
		return false
	}
	for _, inst := range g.Instrs[:len(g.Instrs)-1] {
		if classify.IsBasePivotHead(inst) {
			return true
		}
	}
	return false
}
