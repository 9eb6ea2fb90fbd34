// Package rlog provides the debug/warning logger pair used throughout
// ropgo: colour-prefixed; -q/--quiet disables the debug logger only.
package rlog

import (
	"io"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
)

// Dbg logs debug messages with a "ropgo:" prefix to standard error.
var Dbg = log.New(os.Stderr, term.MagentaBold("ropgo:")+" ", 0)

// Warn logs warning messages with a "warning:" prefix to standard error.
var Warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)

// Quiet suppresses Dbg output; Warn always remains enabled.
func Quiet(quiet bool) {
	if quiet {
		Dbg.SetOutput(io.Discard)
		return
	}
	Dbg.SetOutput(os.Stderr)
}
