// Package flags is the one place the interpreter's command line is defined,
// shared between the standalone runner and the shim's re-exec of itself as
// the container init process.
package flags

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/MarcinKonowalczyk/bfvm/bf"
)

type Options struct {
	Filename string
	Config   bf.Config
}

// Parse reads the interpreter options from an argument list.
func Parse(name string, args []string) (Options, error) {
	var (
		filename string
		maxSteps uint64
		maxCells int
		onEOF    string
	)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&filename, "file", "", "source file to run")
	fs.Uint64Var(&maxSteps, "max-steps", 0, "abort after this many instructions (0 = unlimited)")
	fs.IntVar(&maxCells, "max-cells", 0, "abort once the tape grows past this many cells (0 = unlimited)")
	fs.StringVar(&onEOF, "on-eof", "zero", "what ',' does on end of input: zero or keep")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if filename == "" {
		return Options{}, fmt.Errorf("invalid argument: -file is required")
	}
	if maxCells < 0 {
		return Options{}, fmt.Errorf("invalid argument: -max-cells must not be negative")
	}

	eof, err := ParseEOF(onEOF)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Filename: filename,
		Config: bf.Config{
			MaxSteps: maxSteps,
			MaxCells: maxCells,
			OnEOF:    eof,
		},
	}, nil
}

// Args is the inverse of Parse.
func (o Options) Args() []string {
	args := []string{"-file", o.Filename}
	if o.Config.MaxSteps > 0 {
		args = append(args, "-max-steps", strconv.FormatUint(o.Config.MaxSteps, 10))
	}
	if o.Config.MaxCells > 0 {
		args = append(args, "-max-cells", strconv.Itoa(o.Config.MaxCells))
	}
	if o.Config.OnEOF != bf.EOFSetZero {
		args = append(args, "-on-eof", EOFString(o.Config.OnEOF))
	}
	return args
}

func ParseEOF(s string) (bf.EOFBehavior, error) {
	switch s {
	case "zero":
		return bf.EOFSetZero, nil
	case "keep":
		return bf.EOFLeaveUnchanged, nil
	default:
		return 0, fmt.Errorf("invalid argument: unknown eof behavior %q (want zero or keep)", s)
	}
}

func EOFString(b bf.EOFBehavior) string {
	if b == bf.EOFLeaveUnchanged {
		return "keep"
	}
	return "zero"
}
