package bf

import (
	"fmt"
	"strings"
)

// Policy selects what happens when the pointer leaves the tape or a cell
// value leaves the byte range. The zero value is not a valid policy.
type Policy uint8

const (
	// Ignore discards the offending mutation.
	Ignore Policy = iota + 1
	// WrapAround moves to the opposite end of the range.
	WrapAround
	// ThrowException fails the run with an overflow error.
	ThrowException
)

func (p Policy) Valid() bool {
	return p >= Ignore && p <= ThrowException
}

func (p Policy) String() string {
	switch p {
	case Ignore:
		return "ignore"
	case WrapAround:
		return "wrap"
	case ThrowException:
		return "throw"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown overflow policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts the names used in flags and config files.
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "ignore":
		*p = Ignore
	case "wrap", "wraparound", "wrap-around":
		*p = WrapAround
	case "throw", "error", "exception":
		*p = ThrowException
	default:
		return fmt.Errorf("unknown overflow policy %q (want ignore, wrap or throw)", string(text))
	}
	return nil
}
