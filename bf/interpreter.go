package bf

import (
	"context"
	"io"
	"strings"

	"github.com/containerd/log"
)

// Interpreter runs programs against a single State. It is not safe for
// concurrent use; give each goroutine its own interpreter.
type Interpreter struct {
	state  *State
	input  Input
	output io.ByteWriter
	steps  uint64
}

// NewInterpreter builds an interpreter with a fresh tape. A nil input acts
// as an exhausted stream and a nil output discards everything written.
func NewInterpreter(cfg Config, input Input, output io.ByteWriter) (*Interpreter, error) {
	state, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		state:  state,
		input:  input,
		output: output,
	}, nil
}

func (i *Interpreter) State() *State {
	return i.state
}

// Steps is the number of instructions executed by the last run.
func (i *Interpreter) Steps() uint64 {
	return i.steps
}

func (i *Interpreter) Run(source string, resetState bool) error {
	return i.RunContext(context.Background(), source, resetState)
}

// RunContext executes source until it ends, fails or ctx is cancelled. The
// context is checked between instructions. On any error the state is left
// as it was when the error happened.
func (i *Interpreter) RunContext(ctx context.Context, source string, resetState bool) error {
	if strings.TrimSpace(source) == "" {
		return ErrEmptySource
	}
	if resetState {
		i.state.Reset()
	}
	i.steps = 0

	logger := log.G(ctx).WithField("size", len(source))
	logger.Debugf("running program (reset: %t)", resetState)

	// positions of the '[' of every loop currently being executed
	var loops []int

	for idx := 0; idx < len(source); idx++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c := Command(source[idx])
		if !IsInstruction(byte(c)) {
			continue
		}
		i.steps++

		var err error
		switch c {
		case Right:
			err = i.state.MovePointerRight()
		case Left:
			err = i.state.MovePointerLeft()
		case Increment:
			err = i.state.IncrementCell()
		case Decrement:
			err = i.state.DecrementCell()
		case Output:
			if i.output != nil {
				err = i.output.WriteByte(i.state.Current())
			}
		case Read:
			err = i.read()
		case LoopStart:
			if i.state.Current() != 0 {
				loops = append(loops, idx)
				break
			}
			end := matchingBracket(source, idx)
			if end < 0 {
				return &UnbalancedBracketError{Position: idx}
			}
			logger.Debugf("skipping loop %d..%d", idx, end)
			idx = end
		case LoopEnd:
			if len(loops) == 0 {
				return &UnbalancedBracketError{Position: idx}
			}
			start := loops[len(loops)-1]
			loops = loops[:len(loops)-1]
			if i.state.Current() != 0 {
				// land on the '[' so it is evaluated again
				idx = start - 1
			}
		}
		if err != nil {
			return err
		}
	}

	if len(loops) > 0 {
		return &UnbalancedBracketError{Position: loops[len(loops)-1]}
	}
	logger.Debugf("program finished after %d steps", i.steps)
	return nil
}

func (i *Interpreter) read() error {
	if i.input == nil {
		return i.state.SetCell(EOF)
	}
	value, err := i.input.ReadCell()
	if err != nil {
		return err
	}
	return i.state.SetCell(value)
}

// matchingBracket returns the index of the ']' closing the '[' at start, or
// -1 if the source ends first.
func matchingBracket(source string, start int) int {
	depth := 1
	for j := start + 1; j < len(source); j++ {
		switch Command(source[j]) {
		case LoopStart:
			depth++
		case LoopEnd:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}
