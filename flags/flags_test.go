package flags_test

import (
	"testing"

	"github.com/MarcinKonowalczyk/bfvm/bf"
	"github.com/MarcinKonowalczyk/bfvm/flags"
	"github.com/MarcinKonowalczyk/bfvm/utils"
)

func TestParse_Defaults(t *testing.T) {
	opts, err := flags.Parse("test", []string{"-file", "program.bf"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, opts.Filename, "program.bf")
	utils.AssertEqual(t, opts.Config, bf.Config{})
}

func TestParse_AllFlags(t *testing.T) {
	opts, err := flags.Parse("test", []string{
		"-file", "program.bf",
		"-max-steps", "1000",
		"-max-cells", "30000",
		"-on-eof", "keep",
	})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, opts.Config, bf.Config{
		MaxSteps: 1000,
		MaxCells: 30000,
		OnEOF:    bf.EOFLeaveUnchanged,
	})
}

func TestParse_MissingFile(t *testing.T) {
	_, err := flags.Parse("test", []string{})
	utils.AssertError(t, err)
}

func TestParse_BadEOF(t *testing.T) {
	_, err := flags.Parse("test", []string{"-file", "program.bf", "-on-eof", "explode"})
	utils.AssertError(t, err)
}

func TestArgs_RoundTrip(t *testing.T) {
	opts := flags.Options{
		Filename: "program.bf",
		Config: bf.Config{
			MaxSteps: 42,
			MaxCells: 7,
			OnEOF:    bf.EOFLeaveUnchanged,
		},
	}
	parsed, err := flags.Parse("test", opts.Args())
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, parsed, opts)
}

func TestArgs_OmitsDefaults(t *testing.T) {
	opts := flags.Options{Filename: "program.bf"}
	utils.AssertEqualArrays(t, opts.Args(), []string{"-file", "program.bf"})
}
