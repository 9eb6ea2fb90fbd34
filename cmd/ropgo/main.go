// Command ropgo discovers ROP, JOP, and syscall gadgets in ELF, PE, and raw
// code blobs.
package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ropgo/ropgo/bin"
	"github.com/ropgo/ropgo/classify"
	"github.com/ropgo/ropgo/format"
	"github.com/ropgo/ropgo/internal/rlog"
	"github.com/ropgo/ropgo/pipeline"
)

func main() {
	app := &cli.App{
		Name:      "ropgo",
		Usage:     "find ROP/JOP/syscall gadgets in a binary",
		ArgsUsage: "<binary>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "noisy", Aliases: []string{"n"}, Usage: "enable low-quality head/tail admissibility"},
			&cli.BoolFlag{Name: "colour", Aliases: []string{"c"}, Usage: "force colour on/off (absent = auto)"},
			&cli.BoolFlag{Name: "norop", Aliases: []string{"r"}, Usage: "exclude ret-terminated tails"},
			&cli.BoolFlag{Name: "nosys", Aliases: []string{"s"}, Usage: "exclude syscall and int 0x80 tails"},
			&cli.BoolFlag{Name: "nojop", Aliases: []string{"j"}, Usage: "exclude indirect jmp/call tails"},
			&cli.BoolFlag{Name: "stack-pivot", Aliases: []string{"p"}, Usage: "retain only stack-pivot gadgets"},
			&cli.BoolFlag{Name: "base-pivot", Aliases: []string{"b"}, Usage: "retain only base-pivot gadgets"},
			&cli.IntFlag{Name: "max-instr", Value: 6, Usage: "upper bound on instructions per gadget"},
			&cli.IntFlag{Name: "max-bytes-per-instr", Value: 15, Usage: "upper bound on bytes per instruction when walking backward"},
			&cli.StringSliceFlag{Name: "regex", Aliases: []string{"R"}, Usage: "positive filter (repeatable, AND semantics)"},
			&cli.StringSliceFlag{Name: "N", Usage: "negative filter (repeatable, any-match excludes)"},
			&cli.BoolFlag{Name: "raw", Usage: "force raw-blob interpretation; absent = container with raw fallback on Unknown"},
			&cli.IntFlag{Name: "bits", Usage: "bitness override (32 or 64) used under --raw"},
			&cli.StringSliceFlag{Name: "range", Usage: "address-range filter 0xFROM-0xTO (repeatable, OR semantics)"},
			&cli.BoolFlag{Name: "nouniq", Aliases: []string{"u"}, Usage: "keep duplicate gadget bodies"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress debug messages"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	rlog.Quiet(c.Bool("quiet"))

	if c.Args().Len() < 1 {
		return cli.Exit("missing required argument <binary>", 1)
	}
	path := c.Args().First()

	if c.Int("max-instr") < 1 {
		return cli.Exit("--max-instr must be >= 1", 1)
	}

	rawMode := bin.RawAuto
	if c.IsSet("raw") {
		if c.Bool("raw") {
			rawMode = bin.RawForce
		} else {
			rawMode = bin.RawOff
		}
	}

	b, err := bin.Load(path, rawMode, c.Int("bits"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	include, err := compileRegexes(c.StringSlice("regex"))
	if err != nil {
		return cli.Exit(errors.Wrap(err, "compiling --regex").Error(), 1)
	}
	exclude, err := compileRegexes(c.StringSlice("N"))
	if err != nil {
		return cli.Exit(errors.Wrap(err, "compiling -N").Error(), 1)
	}
	ranges, err := parseRanges(c.StringSlice("range"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	noisy := c.Bool("noisy")
	cfg := pipeline.Config{
		ROP:              !c.Bool("norop"),
		Sys:              !c.Bool("nosys"),
		JOP:              !c.Bool("nojop"),
		StackPivot:       c.Bool("stack-pivot"),
		BasePivot:        c.Bool("base-pivot"),
		MaxInstr:         c.Int("max-instr"),
		MaxBytesPerInstr: c.Int("max-bytes-per-instr"),
		Uniq:             !c.Bool("nouniq"),
		Classify: classify.Options{
			Noisy:              noisy,
			SingleRegisterOnly: !noisy,
		},
		IncludeRegex: include,
		ExcludeRegex: exclude,
		Ranges:       ranges,
	}

	colourOn := !color.NoColor
	if c.IsSet("colour") {
		colourOn = c.Bool("colour")
	}

	start := time.Now()
	found, err := pipeline.Run(context.Background(), b, cfg)
	elapsed := time.Since(start)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	count := 0
	for _, g := range found {
		line := format.Line(g, colourOn)
		if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
			// Broken output pipe: stop emission silently, exit code stays 0.
			break
		}
		count++
	}

	fmt.Fprintf(os.Stderr, "==> Found %d gadgets in %.3f seconds\n", count, elapsed.Seconds())
	return nil
}

func compileRegexes(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, re)
	}
	return out, nil
}

func parseRanges(specs []string) ([]pipeline.AddrRange, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]pipeline.AddrRange, 0, len(specs))
	var lows bin.Addrs
	for _, spec := range specs {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid --range %q; expected 0xFROM-0xTO", spec)
		}
		var low, high bin.Addr
		if err := low.Set(parts[0]); err != nil {
			return nil, errors.Wrapf(err, "invalid --range %q", spec)
		}
		if err := high.Set(parts[1]); err != nil {
			return nil, errors.Wrapf(err, "invalid --range %q", spec)
		}
		out = append(out, pipeline.AddrRange{Low: uint64(low), High: uint64(high)})
		lows = append(lows, low)
	}
	sort.Sort(lows)
	rlog.Dbg.Printf("parsed %d address range(s), lowest bound %s", len(lows), lows[0])
	return out, nil
}
