package bf

import (
	"context"
	"fmt"
	"io"
	"os"
)

// comptime override for debug flag
// set with `-ldflags="-X 'github.com/MarcinKonowalczyk/bfvm/bf.debug=true'"`
var debug string

// EOFBehavior says what ',' does to the current cell once input runs out.
type EOFBehavior int

const (
	// Set the cell to 0 (the default).
	EOFSetZero EOFBehavior = iota
	// Leave the cell as it was.
	EOFLeaveUnchanged
)

// Config carries the optional execution guards. The zero value means no
// step ceiling, no tape ceiling and zero-on-EOF.
type Config struct {
	// MaxSteps aborts the run with ErrStepLimit once this many
	// instructions have executed. 0 means unlimited.
	MaxSteps uint64
	// MaxCells aborts the run with ErrTapeLimit once the tape would grow
	// past this many cells. 0 means unlimited.
	MaxCells int
	// OnEOF is applied when ',' hits the end of input.
	OnEOF EOFBehavior
}

type Interpreter struct {
	program     *Program
	program_ptr int
	mem         []uint8
	mem_ptr     int
	steps       uint64
	input       io.Reader
	output      io.Writer
	config      Config
	read_buf    [1]byte
}

// NewInterpreter builds a fresh machine for one run of program. The tape
// starts as a single zero cell and grows to the right on demand. A nil
// input behaves as already-exhausted; a nil output discards.
func NewInterpreter(program *Program, input io.Reader, output io.Writer, config Config) *Interpreter {
	return &Interpreter{
		program:     program,
		program_ptr: 0,
		mem:         make([]uint8, 1, 64),
		mem_ptr:     0,
		input:       input,
		output:      output,
		config:      config,
	}
}

// Reset rewinds the machine so the same program can run again.
func (i *Interpreter) Reset() {
	i.program_ptr = 0
	i.mem_ptr = 0
	i.steps = 0
	i.mem = make([]uint8, 1, 64)
}

func (i *Interpreter) MemoryLength() int {
	return len(i.mem)
}

// Index the memory. Cells the tape has not grown to yet read as zero.
func (i *Interpreter) At(j int) uint8 {
	if j < 0 || j >= len(i.mem) {
		return 0
	}
	return i.mem[j]
}

// Steps returns the number of instructions executed so far.
func (i *Interpreter) Steps() uint64 {
	return i.steps
}

// Write a debug message to stderr if debug is enabled
func logf(format string, args ...interface{}) {
	if debug != "" {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Run the program in a loop until it finishes or an error occurs
func (i *Interpreter) RunContext(ctx context.Context) error {
	commands := i.program.Commands()
	for i.program_ptr < len(commands) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i.config.MaxSteps > 0 && i.steps >= i.config.MaxSteps {
			logf("step limit hit at program position %d\n", i.program_ptr)
			return fmt.Errorf("%d instructions executed: %w", i.steps, ErrStepLimit)
		}
		i.steps++
		switch commands[i.program_ptr] {
		case Increment:
			i.mem[i.mem_ptr]++
		case Decrement:
			i.mem[i.mem_ptr]--
		case Right:
			i.mem_ptr++
			if i.mem_ptr >= len(i.mem) {
				if i.config.MaxCells > 0 && i.mem_ptr+1 > i.config.MaxCells {
					logf("tape limit hit at program position %d\n", i.program_ptr)
					return fmt.Errorf("tape would grow past %d cells: %w", i.config.MaxCells, ErrTapeLimit)
				}
				i.mem = append(i.mem, 0)
			}
		case Left:
			if i.mem_ptr == 0 {
				return fmt.Errorf("'<' at position %d: %w", i.program_ptr, ErrPointerUnderflow)
			}
			i.mem_ptr--
		case Output:
			if i.output != nil {
				if _, err := i.output.Write([]byte{i.mem[i.mem_ptr]}); err != nil {
					return fmt.Errorf("writing output: %w", err)
				}
			}
		case Input:
			if err := i.readInput(); err != nil {
				return err
			}
		case LoopStart:
			if i.mem[i.mem_ptr] == 0 {
				i.program_ptr = i.program.Match(i.program_ptr)
			}
		case LoopEnd:
			if i.mem[i.mem_ptr] != 0 {
				i.program_ptr = i.program.Match(i.program_ptr)
			}
		}
		i.program_ptr++
	}
	return nil
}

func (i *Interpreter) readInput() error {
	if i.input == nil {
		i.applyEOF()
		return nil
	}
	n, err := i.input.Read(i.read_buf[:])
	if n > 0 {
		i.mem[i.mem_ptr] = i.read_buf[0]
		return nil
	}
	if err == nil || err == io.EOF {
		logf("EOF at program position %d\n", i.program_ptr)
		i.applyEOF()
		return nil
	}
	return fmt.Errorf("reading input: %w", err)
}

func (i *Interpreter) applyEOF() {
	if i.config.OnEOF == EOFSetZero {
		i.mem[i.mem_ptr] = 0
	}
}

func (i *Interpreter) Run() error {
	return i.RunContext(context.Background())
}
