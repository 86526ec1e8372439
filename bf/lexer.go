package bf

// Command is one of the eight instructions. Anything else in the source is
// a comment and never makes it past the lexer.
type Command rune

const (
	Increment Command = '+'
	Decrement Command = '-'
	Left      Command = '<'
	Right     Command = '>'
	Output    Command = '.'
	Input     Command = ','
	LoopStart Command = '['
	LoopEnd   Command = ']'
	Ignore    Command = ' '
)

func parse(c rune) Command {
	switch c {
	case '+':
		return Increment
	case '-':
		return Decrement
	case '>':
		return Right
	case '<':
		return Left
	case '.':
		return Output
	case ',':
		return Input
	case '[':
		return LoopStart
	case ']':
		return LoopEnd
	default:
		return Ignore
	}
}

func (c Command) String() string {
	switch c {
	case Increment, Decrement, Left, Right, Output, Input, LoopStart, LoopEnd:
		return string(rune(c))
	default:
		return " "
	}
}

// PreLex strips everything that is not one of the eight command characters.
func PreLex(input string) string {
	var result []rune
	for _, c := range input {
		if parse(c) != Ignore {
			result = append(result, c)
		}
	}
	return string(result)
}

// Lex turns source text into a command sequence, dropping comments.
func Lex(input string) []Command {
	commands := []Command{}
	for _, c := range input {
		cmd := parse(c)
		if cmd != Ignore {
			commands = append(commands, cmd)
		}
	}
	return commands
}
