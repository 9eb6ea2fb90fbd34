package gadgets

import (
	"testing"

	"github.com/ropgo/ropgo/classify"
	"github.com/ropgo/ropgo/disasm/x86"
)

func buildCache(t *testing.T, code []byte, base uint64) x86.Cache {
	t.Helper()
	cache := make(x86.Cache, len(code))
	for offset := range code {
		cache[offset] = x86.DecodeAt(code[offset:], 64, base+uint64(offset))
	}
	return cache
}

func instrText(g Gadget) []string {
	out := make([]string, len(g.Instrs))
	for i, inst := range g.Instrs {
		out[i] = inst.Op.String()
	}
	return out
}

// S1: bytes `C3` -> one singleton ret gadget.
func TestEnumerateSectionSingletonRet(t *testing.T) {
	cache := buildCache(t, []byte{0xC3}, 0x1000)
	got := EnumerateSection(cache, true, true, true, 6, classify.Options{}, 0x1000)
	if len(got) != 1 {
		t.Fatalf("want 1 gadget, got %d", len(got))
	}
	if got[0].Addr != 0x1000 || len(got[0].Instrs) != 1 {
		t.Fatalf("unexpected gadget: %+v", got[0])
	}
}

// S2: bytes `58 C3` (pop rax; ret) -> two gadgets.
func TestEnumerateSectionPopRet(t *testing.T) {
	cache := buildCache(t, []byte{0x58, 0xC3}, 0x1000)
	got := EnumerateSection(cache, true, true, true, 6, classify.Options{}, 0x1000)
	if len(got) != 2 {
		t.Fatalf("want 2 gadgets, got %d", len(got))
	}
	byAddr := map[uint64][]string{}
	for _, g := range got {
		byAddr[g.Addr] = instrText(g)
	}
	if len(byAddr[0x1000]) != 2 {
		t.Fatalf("expected a 2-instruction gadget at 0x1000, got %v", byAddr[0x1000])
	}
	if len(byAddr[0x1001]) != 1 {
		t.Fatalf("expected a 1-instruction gadget at 0x1001, got %v", byAddr[0x1001])
	}
}

// S4: bytes `FF E0 C3` (jmp rax; ret) -> tails at offset 0 and 2 only; no
// multi-instruction gadget spans across the JOP tail at offset 0.
func TestEnumerateSectionJmpRaxDoesNotChainAsHead(t *testing.T) {
	cache := buildCache(t, []byte{0xFF, 0xE0, 0xC3}, 0x1000)
	got := EnumerateSection(cache, true, true, true, 6, classify.Options{}, 0x1000)

	addrs := map[uint64]int{}
	for _, g := range got {
		addrs[g.Addr]++
	}
	if addrs[0x1000] != 1 {
		t.Fatalf("want exactly one gadget at 0x1000, got %d", addrs[0x1000])
	}
	if addrs[0x1002] != 1 {
		t.Fatalf("want exactly one gadget at 0x1002 (singleton ret), got %d", addrs[0x1002])
	}
	if _, ok := addrs[0x1001]; ok {
		t.Fatal("offset 1 is mid-instruction and must not be a tail candidate")
	}
}

// S6: bytes `83 C4 08 C3` (add esp, 8; ret) with --stack-pivot keeps the gadget.
func TestEnumerateSectionStackPivotGadget(t *testing.T) {
	cache := buildCache(t, []byte{0x83, 0xC4, 0x08, 0xC3}, 0x1000)
	got := EnumerateSection(cache, true, true, true, 6, classify.Options{}, 0x1000)

	var found *Gadget
	for i := range got {
		if got[i].Addr == 0x1000 && len(got[i].Instrs) == 2 {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a 2-instruction gadget at 0x1000, got %+v", got)
	}
	if !found.IsStackPivot() {
		t.Fatal("add esp, 8; ret should be classified as a stack pivot")
	}
	if found.IsBasePivot() {
		t.Fatal("add esp, 8; ret must not be classified as a base pivot")
	}
}

func TestEnumerateTailRespectsMaxInstructions(t *testing.T) {
	// pop rax; pop rbx; pop rcx; ret -- cap at 2 instructions.
	cache := buildCache(t, []byte{0x58, 0x5B, 0x59, 0xC3}, 0x1000)
	tail := 3
	got := EnumerateTail(cache, tail, 2, classify.Options{}, 0x1000)
	for _, g := range got {
		if len(g.Instrs) > 2 {
			t.Fatalf("gadget exceeds max-instr bound: %+v", g)
		}
	}
	for _, g := range got {
		if len(g.Instrs) == 3 {
			t.Fatal("a 3-instruction gadget must not be yielded when max-instr is 2")
		}
	}
}

func TestEnumerateTailOutOfBoundsIsEmpty(t *testing.T) {
	cache := buildCache(t, []byte{0xC3}, 0x1000)
	if got := EnumerateTail(cache, 5, 6, classify.Options{}, 0x1000); got != nil {
		t.Fatalf("out-of-range tail offset must yield no gadgets, got %+v", got)
	}
}

func TestKeyExcludesAddress(t *testing.T) {
	a := buildCache(t, []byte{0xC3}, 0x1000)
	b := buildCache(t, []byte{0xC3}, 0x2000)
	ga := Gadget{Addr: 0x1000, Instrs: []x86.Instruction{a[0]}}
	gb := Gadget{Addr: 0x2000, Instrs: []x86.Instruction{b[0]}}
	if ga.Key() != gb.Key() {
		t.Fatalf("identical instruction sequences at different addresses must share a Key: %q vs %q", ga.Key(), gb.Key())
	}
}

func TestBasePivotUndefinedForSingleton(t *testing.T) {
	cache := buildCache(t, []byte{0xC3}, 0x1000)
	g := Gadget{Addr: 0x1000, Instrs: []x86.Instruction{cache[0]}}
	if g.IsBasePivot() {
		t.Fatal("a singleton gadget must never be classified as a base pivot")
	}
}
