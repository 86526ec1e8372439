package bf_test

import (
	"strings"
	"testing"

	"github.com/MarcinKonowalczyk/bfvm/bf"
	"github.com/MarcinKonowalczyk/bfvm/utils"
)

func TestLoad_Empty(t *testing.T) {
	program, err := bf.Load("")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.Len(), 0)
}

func TestLoad_NoBrackets(t *testing.T) {
	program, err := bf.Load("+++.")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.Len(), 4)
	for i := 0; i < program.Len(); i++ {
		utils.AssertEqual(t, program.Match(i), -1)
	}
}

func TestLoad_SingleLoop(t *testing.T) {
	program, err := bf.Load("[-]")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.Match(0), 2)
	utils.AssertEqual(t, program.Match(2), 0)
	utils.AssertEqual(t, program.Match(1), -1)
}

func TestLoad_NestedLoops(t *testing.T) {
	// [[]][] -> (0,3), (1,2), (4,5)
	program, err := bf.Load("[[]][]")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.Match(0), 3)
	utils.AssertEqual(t, program.Match(1), 2)
	utils.AssertEqual(t, program.Match(4), 5)
}

func TestLoad_MatchIsBijective(t *testing.T) {
	program, err := bf.Load("+[>[-]<[[]]]")
	utils.AssertNoError(t, err)
	commands := program.Commands()
	for i, c := range commands {
		if c != bf.LoopStart && c != bf.LoopEnd {
			utils.AssertEqual(t, program.Match(i), -1)
			continue
		}
		j := program.Match(i)
		utils.AssertNotEqual(t, j, -1)
		utils.AssertEqual(t, program.Match(j), i)
		if c == bf.LoopStart {
			utils.Assert(t, j > i, "Loop end not after loop start")
			utils.AssertEqual(t, commands[j], bf.LoopEnd)
		}
	}
}

func TestLoad_PositionsAreFiltered(t *testing.T) {
	// Comments do not count towards bracket positions.
	program, err := bf.Load("a [ b ] c")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.Len(), 2)
	utils.AssertEqual(t, program.Match(0), 1)
}

func TestLoad_UnmatchedClose(t *testing.T) {
	_, err := bf.Load("]")
	utils.AssertErrorIs(t, err, bf.ErrUnbalancedLoop)
	utils.Assert(t, strings.Contains(err.Error(), "position 0"), "Wrong position reported")
}

func TestLoad_UnmatchedCloseMidProgram(t *testing.T) {
	_, err := bf.Load("+[-]]+")
	utils.AssertErrorIs(t, err, bf.ErrUnbalancedLoop)
	utils.Assert(t, strings.Contains(err.Error(), "position 4"), "Wrong position reported")
}

func TestLoad_UnmatchedOpen(t *testing.T) {
	// One more '[' than ']'. The error points at the first open bracket
	// left pending at the end of the scan, not anywhere mid-program.
	_, err := bf.Load("++[+")
	utils.AssertErrorIs(t, err, bf.ErrUnbalancedLoop)
	utils.Assert(t, strings.Contains(err.Error(), "position 2"), "Wrong position reported")
}

func TestLoad_UnmatchedOpenNested(t *testing.T) {
	_, err := bf.Load("[[]")
	utils.AssertErrorIs(t, err, bf.ErrUnbalancedLoop)
	utils.Assert(t, strings.Contains(err.Error(), "position 0"), "Wrong position reported")
}

func TestProgram_String(t *testing.T) {
	program, err := bf.Load("comment + [ - ] comment")
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, program.String(), "+[-]")
}
