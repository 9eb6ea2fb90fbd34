// Package pipeline implements the data-parallel fan-out over tail
// candidates, deduplication, the filter stack, and the final address sort
// (C6).
package pipeline

import (
	"context"
	"regexp"
	"runtime"
	"sort"

	"github.com/ropgo/ropgo/bin"
	"github.com/ropgo/ropgo/classify"
	"github.com/ropgo/ropgo/disasm/x86"
	"github.com/ropgo/ropgo/format"
	"github.com/ropgo/ropgo/gadgets"
	"github.com/ropgo/ropgo/internal/rlog"
	"golang.org/x/sync/errgroup"
)

// AddrRange is an inclusive [Low, High] address range used by the --range
// filter.
type AddrRange struct {
	Low, High uint64
}

// Contains reports whether addr falls within r, inclusive.
func (r AddrRange) Contains(addr uint64) bool {
	return addr >= r.Low && addr <= r.High
}

// Config collects every tunable of the pipeline: the classifier flags, the
// property filters, the regex filters, and the address-range filter.
type Config struct {
	ROP, Sys, JOP         bool
	StackPivot, BasePivot bool
	MaxInstr              int
	// MaxBytesPerInstr overrides the enumerator's per-instruction byte
	// bound; 0 means "use the default of 15".
	MaxBytesPerInstr int
	Uniq             bool
	Classify         classify.Options
	IncludeRegex     []*regexp.Regexp
	ExcludeRegex     []*regexp.Regexp
	Ranges           []AddrRange
}

// Run executes the full pipeline over every section of b and returns the
// deduplicated, filtered, address-sorted gadget list.
func Run(ctx context.Context, b *bin.Binary, cfg Config) ([]gadgets.Gadget, error) {
	var collected []gadgets.Gadget

	for i := range b.Sections {
		section := &b.Sections[i]
		cache := x86.BuildCache(section)
		if cache == nil {
			continue
		}
		base := section.Addr(0)
		tails := gadgets.TailCandidates(cache, cfg.ROP, cfg.Sys, cfg.JOP, cfg.Classify)
		rlog.Dbg.Printf("section at %#x: %d tail candidates", base, len(tails))

		results, err := fanOut(ctx, cache, tails, cfg, base)
		if err != nil {
			return nil, err
		}
		collected = append(collected, results...)
	}

	collected = filterRanges(collected, cfg.Ranges)
	collected = filterRegex(collected, cfg.IncludeRegex, cfg.ExcludeRegex)
	collected = filterPivots(collected, cfg.StackPivot, cfg.BasePivot)

	if cfg.Uniq {
		collected = dedup(collected)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].Addr < collected[j].Addr })
	return collected, nil
}

// fanOut runs gadgets.EnumerateTail for each tail candidate on a bounded
// worker pool, one goroutine per available core, spreading backward
// enumeration across cores the way a work-stealing scheduler would.
// Workers are independent and share no mutable state; gadgets come back by
// value.
func fanOut(ctx context.Context, cache x86.Cache, tails []int, cfg Config, base uint64) ([]gadgets.Gadget, error) {
	if len(tails) == 0 {
		return nil, nil
	}

	maxBytes := cfg.MaxBytesPerInstr
	if maxBytes <= 0 {
		maxBytes = 15
	}

	results := make([][]gadgets.Gadget, len(tails))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, tail := range tails {
		i, tail := i, tail
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = gadgets.EnumerateTailWithMaxBytes(cache, tail, cfg.MaxInstr, maxBytes, cfg.Classify, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []gadgets.Gadget
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, nil
}

func filterRanges(in []gadgets.Gadget, ranges []AddrRange) []gadgets.Gadget {
	if len(ranges) == 0 {
		return in
	}
	out := in[:0:0]
	for _, g := range in {
		for _, r := range ranges {
			if r.Contains(g.Addr) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// filterRegex retains gadgets whose formatted instruction text (address
// excluded) matches every positive regex and no negative regex.
func filterRegex(in []gadgets.Gadget, include, exclude []*regexp.Regexp) []gadgets.Gadget {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}
	out := in[:0:0]
	for _, g := range in {
		text := format.Instructions(g)
		ok := true
		for _, re := range include {
			if !re.MatchString(text) {
				ok = false
				break
			}
		}
		if ok {
			for _, re := range exclude {
				if re.MatchString(text) {
					ok = false
					break
				}
			}
		}
		if ok {
			out = append(out, g)
		}
	}
	return out
}

func filterPivots(in []gadgets.Gadget, stackPivot, basePivot bool) []gadgets.Gadget {
	if !stackPivot && !basePivot {
		return in
	}
	out := in[:0:0]
	for _, g := range in {
		if stackPivot && !g.IsStackPivot() {
			continue
		}
		if basePivot && !g.IsBasePivot() {
			continue
		}
		out = append(out, g)
	}
	return out
}

func dedup(in []gadgets.Gadget) []gadgets.Gadget {
	seen := make(map[string]gadgets.Gadget, len(in))
	for _, g := range in {
		seen[g.Key()] = g
	}
	out := make([]gadgets.Gadget, 0, len(seen))
	for _, g := range seen {
		out = append(out, g)
	}
	return out
}
