package bf

import (
	"fmt"
	"math"
)

const (
	DefaultCells = 1 << 15
	MaxCells     = 1 << 30
	maxCellValue = math.MaxUint8
)

// Config is fixed when an interpreter is built.
type Config struct {
	Cells         int
	CellOverflow  Policy
	ValueOverflow Policy
}

func DefaultConfig() Config {
	return Config{
		Cells:         DefaultCells,
		CellOverflow:  Ignore,
		ValueOverflow: WrapAround,
	}
}

func (c Config) Validate() error {
	if c.Cells <= 0 {
		return &ConfigError{Field: "cells", Reason: "must be at least 1"}
	}
	if c.Cells > MaxCells {
		return &ConfigError{Field: "cells", Reason: fmt.Sprintf("must be at most %d", MaxCells)}
	}
	if !c.CellOverflow.Valid() {
		return &ConfigError{Field: "cell overflow policy", Reason: "is not set"}
	}
	if !c.ValueOverflow.Valid() {
		return &ConfigError{Field: "cell value overflow policy", Reason: "is not set"}
	}
	return nil
}

// State is the tape, the pointer and the two overflow policies. All
// mutations go through its methods so the pointer stays on the tape and
// every cell holds a byte.
type State struct {
	cells         []uint8
	pointer       int
	cellOverflow  Policy
	valueOverflow Policy
}

func NewState(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &State{
		cells:         make([]uint8, cfg.Cells),
		cellOverflow:  cfg.CellOverflow,
		valueOverflow: cfg.ValueOverflow,
	}, nil
}

func (s *State) MovePointerLeft() error {
	return s.movePointer(s.pointer - 1)
}

func (s *State) MovePointerRight() error {
	return s.movePointer(s.pointer + 1)
}

func (s *State) IncrementCell() error {
	return s.changeCell(int(s.Current()) + 1)
}

func (s *State) DecrementCell() error {
	return s.changeCell(int(s.Current()) - 1)
}

// SetCell stores a raw value, usually from input. Values outside the byte
// range (including EOF) go through the value overflow policy.
func (s *State) SetCell(value int) error {
	return s.changeCell(value)
}

func (s *State) Current() uint8 {
	return s.cells[s.pointer]
}

func (s *State) Pointer() int {
	return s.pointer
}

func (s *State) Len() int {
	return len(s.cells)
}

// At returns the value of cell i. It panics if i is off the tape.
func (s *State) At(i int) uint8 {
	return s.cells[i]
}

// Cells returns a copy of the tape.
func (s *State) Cells() []uint8 {
	out := make([]uint8, len(s.cells))
	copy(out, s.cells)
	return out
}

func (s *State) Policies() (cell, value Policy) {
	return s.cellOverflow, s.valueOverflow
}

func (s *State) Reset() {
	clear(s.cells)
	s.pointer = 0
}

func (s *State) movePointer(next int) error {
	if next < 0 || next >= len(s.cells) {
		switch s.cellOverflow {
		case Ignore:
			return nil
		case WrapAround:
			if next < 0 {
				next = len(s.cells) - 1
			} else {
				next = 0
			}
		default:
			return &CellOverflowError{Index: next}
		}
	}
	s.pointer = next
	return nil
}

func (s *State) changeCell(value int) error {
	if value < 0 || value > maxCellValue {
		switch s.valueOverflow {
		case Ignore:
			return nil
		case WrapAround:
			if value < 0 {
				value = maxCellValue
			} else {
				value = 0
			}
		default:
			return &CellValueOverflowError{Value: value}
		}
	}
	s.cells[s.pointer] = uint8(value)
	return nil
}
