package bf

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrEmptySource is returned when a program is empty or only whitespace.
var ErrEmptySource = fmt.Errorf("source cannot be empty: %w", errdefs.ErrInvalidArgument)

// ConfigError reports an unusable interpreter configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}

// CellOverflowError is returned under the ThrowException pointer policy.
// Index is the requested pointer position, before any clamping.
type CellOverflowError struct {
	Index int
}

func (e *CellOverflowError) Error() string {
	return fmt.Sprintf("cell overflow: pointer moved to cell %d", e.Index)
}

func (e *CellOverflowError) Unwrap() error {
	return errdefs.ErrOutOfRange
}

// CellValueOverflowError is returned under the ThrowException value policy.
type CellValueOverflowError struct {
	Value int
}

func (e *CellValueOverflowError) Error() string {
	return fmt.Sprintf("cell value overflow: value %d does not fit in a byte", e.Value)
}

func (e *CellValueOverflowError) Unwrap() error {
	return errdefs.ErrOutOfRange
}

// UnbalancedBracketError points at a bracket without a partner. Position is
// a byte offset into the source.
type UnbalancedBracketError struct {
	Position int
}

func (e *UnbalancedBracketError) Error() string {
	return fmt.Sprintf("unbalanced loop instruction at byte %d", e.Position)
}

func (e *UnbalancedBracketError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}
