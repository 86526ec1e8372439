package bf_test

import (
	"testing"

	"github.com/MarcinKonowalczyk/bfvm/bf"
	"github.com/MarcinKonowalczyk/bfvm/utils"
)

func TestPreLex(t *testing.T) {
	input := "++\n\n--<    >.,[hello sailor]"
	expected := "++--<>.,[]"
	result := bf.PreLex(input)
	utils.AssertEqual(t, result, expected)
}

func TestPreLex_AllComments(t *testing.T) {
	input := "no instructions here at all (really)"
	result := bf.PreLex(input)
	utils.AssertEqual(t, result, "")
}

func TestLex(t *testing.T) {
	input := "+-<>.,[]"
	expected := []bf.Command{
		bf.Increment,
		bf.Decrement,
		bf.Left,
		bf.Right,
		bf.Output,
		bf.Input,
		bf.LoopStart,
		bf.LoopEnd,
	}
	result := bf.Lex(input)
	utils.AssertEqualArrays(t, expected, result)
}

func TestLex_DropsComments(t *testing.T) {
	input := "read a char: , then print it: ."
	expected := []bf.Command{
		bf.Input,
		bf.Output,
	}
	result := bf.Lex(input)
	utils.AssertEqualArrays(t, expected, result)
}

func TestCommand_String(t *testing.T) {
	utils.AssertEqual(t, bf.Increment.String(), "+")
	utils.AssertEqual(t, bf.LoopEnd.String(), "]")
	utils.AssertEqual(t, bf.Ignore.String(), " ")
}
