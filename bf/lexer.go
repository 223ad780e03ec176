package bf

type Command byte

const (
	Increment Command = '+'
	Decrement Command = '-'
	Left      Command = '<'
	Right     Command = '>'
	Output    Command = '.'
	Read      Command = ','
	LoopStart Command = '['
	LoopEnd   Command = ']'
)

// IsInstruction reports whether c is one of the eight instruction bytes.
// Everything else in a program is a comment.
func IsInstruction(c byte) bool {
	switch Command(c) {
	case Increment, Decrement, Left, Right, Output, Read, LoopStart, LoopEnd:
		return true
	}
	return false
}

func (c Command) String() string {
	if IsInstruction(byte(c)) {
		return string(rune(c))
	}
	return " "
}

// PreLex strips all comments from the source, leaving only instructions.
func PreLex(source string) string {
	result := make([]byte, 0, len(source))
	for i := 0; i < len(source); i++ {
		if IsInstruction(source[i]) {
			result = append(result, source[i])
		}
	}
	return string(result)
}
