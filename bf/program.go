package bf

import "fmt"

// Program is a lexed command sequence together with its precomputed bracket
// matches. It is immutable after Load; the interpreter only reads it, so one
// Program can back any number of concurrent runs.
type Program struct {
	commands []Command
	jumps    []int
}

// Load lexes the source and resolves every loop bracket in a single pass.
// An unmatched ']' fails immediately at its position; an unmatched '['
// fails at the end of the scan, pointing at the first open bracket still
// pending. Any balanced program loads, including the empty one.
func Load(source string) (*Program, error) {
	commands := Lex(source)

	jumps := make([]int, len(commands))
	for i := range jumps {
		jumps[i] = -1
	}

	stack := []int{}
	for i, c := range commands {
		switch c {
		case LoopStart:
			stack = append(stack, i)
		case LoopEnd:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unmatched ']' at position %d: %w", i, ErrUnbalancedLoop)
			}
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jumps[j] = i
			jumps[i] = j
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("unmatched '[' at position %d: %w", stack[0], ErrUnbalancedLoop)
	}

	return &Program{
		commands: commands,
		jumps:    jumps,
	}, nil
}

// Commands returns the command sequence. The returned slice must not be
// modified.
func (p *Program) Commands() []Command {
	return p.commands
}

func (p *Program) Len() int {
	return len(p.commands)
}

// Match returns the position of the bracket matching the one at i, or -1
// if the command at i is not a bracket.
func (p *Program) Match(i int) int {
	if i < 0 || i >= len(p.jumps) {
		return -1
	}
	return p.jumps[i]
}

func (p *Program) String() string {
	s := make([]rune, len(p.commands))
	for i, c := range p.commands {
		s[i] = rune(c)
	}
	return string(s)
}
