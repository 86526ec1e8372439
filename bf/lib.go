package bf

import (
	"context"
	"io"
)

// Run loads and runs source in one go.
func Run(source string, input io.Reader, output io.Writer, config Config) error {
	return RunContext(context.Background(), source, input, output, config)
}

func RunContext(ctx context.Context, source string, input io.Reader, output io.Writer, config Config) error {
	program, err := Load(source)
	if err != nil {
		return err
	}

	interpreter := NewInterpreter(program, input, output, config)
	return interpreter.RunContext(ctx)
}
