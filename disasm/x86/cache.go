package x86

import "github.com/ropgo/ropgo/bin"

// Cache is the per-section disassembly cache (C3): one decoded instruction
// per byte offset, regardless of natural instruction-stream boundaries.
type Cache []Instruction

// BuildCache decodes an instruction starting at every byte of section,
// returning an array of the same length as section.Bytes. Empty sections
// yield a nil cache.
func BuildCache(section *bin.Section) Cache {
	n := len(section.Bytes)
	if n == 0 {
		return nil
	}
	cache := make(Cache, n)
	for offset := 0; offset < n; offset++ {
		ip := section.Addr(offset)
		cache[offset] = DecodeAt(section.Bytes[offset:], section.Bitness, ip)
	}
	return cache
}
