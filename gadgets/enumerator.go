package gadgets

import (
	"github.com/ropgo/ropgo/classify"
	"github.com/ropgo/ropgo/disasm/x86"
)

// maxBytesPerInstruction bounds how far back a gadget can reach for a given
// instruction count; it mirrors x86's 15-byte maximum instruction length.
// It is overridable via EnumerateTailWithMaxBytes for the supplemental
// --max-bytes-per-instr flag.
const maxBytesPerInstruction = 15

// TailCandidates returns every byte offset t in cache for which
// classify.IsTail holds under the given flags.
func TailCandidates(cache x86.Cache, rop, sys, jop bool, opts classify.Options) []int {
	var tails []int
	for offset, inst := range cache {
		if classify.IsTail(inst, rop, sys, jop, opts) {
			tails = append(tails, offset)
		}
	}
	return tails
}

// EnumerateTail walks backward from tail, yielding every well-formed
// gadget of 1..=maxInstr instructions ending exactly at tail. cache is
// section-local (index 0 is the section's first byte); base is the
// runtime address of cache[0].
func EnumerateTail(cache x86.Cache, tail, maxInstr int, opts classify.Options, base uint64) []Gadget {
	return enumerateTail(cache, tail, maxInstr, maxBytesPerInstruction, opts, base)
}

// EnumerateTailWithMaxBytes is EnumerateTail with an overridable per-
// instruction byte bound (supplemental --max-bytes-per-instr flag).
func EnumerateTailWithMaxBytes(cache x86.Cache, tail, maxInstr, maxBytes int, opts classify.Options, base uint64) []Gadget {
	return enumerateTail(cache, tail, maxInstr, maxBytes, opts, base)
}

// EnumerateSection collects every tail candidate in cache and enumerates
// the gadgets ending at each, sequentially. pipeline.Run does not call it:
// it fans the same per-tail work out across goroutines for every section.
func EnumerateSection(cache x86.Cache, rop, sys, jop bool, maxInstr int, opts classify.Options, base uint64) []Gadget {
	var all []Gadget
	for _, tail := range TailCandidates(cache, rop, sys, jop, opts) {
		all = append(all, EnumerateTail(cache, tail, maxInstr, opts, base)...)
	}
	return all
}

func enumerateTail(cache x86.Cache, tail, maxInstr, maxBytes int, opts classify.Options, base uint64) []Gadget {
	if maxInstr < 1 || tail < 0 || tail >= len(cache) {
		return nil
	}

	tailInst := cache[tail]

	start := tail - (maxInstr-1)*maxBytes
	if start < 0 {
		start = 0
	}

	var gadgets []Gadget
	for s := start; s <= tail; s++ {
		cursor := s
		var instrs []x86.Instruction
		ok := true
		for cursor < tail {
			if len(instrs) == maxInstr-1 {
				ok = false
				break
			}
			inst := cache[cursor]
			if !classify.IsHead(inst, opts) {
				ok = false
				break
			}
			instrs = append(instrs, inst)
			cursor += inst.Len
		}
		if !ok || cursor != tail {
			continue
		}
		instrs = append(instrs, tailInst)
		gadgets = append(gadgets, Gadget{
			Addr:   base + uint64(s),
			Instrs: instrs,
		})
	}
	return gadgets
}
