package bf

import (
	"context"
	"io"
)

// Run executes source once with the default configuration.
func Run(source string, input io.Reader, output io.Writer) error {
	return RunContext(context.Background(), source, input, output)
}

func RunContext(ctx context.Context, source string, input io.Reader, output io.Writer) error {
	var in Input
	if input != nil {
		in = NewReaderInput(input)
	}
	var out io.ByteWriter
	if output != nil {
		out = NewWriterOutput(output)
	}
	interpreter, err := NewInterpreter(DefaultConfig(), in, out)
	if err != nil {
		return err
	}
	return interpreter.RunContext(ctx, source, true)
}
