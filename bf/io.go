package bf

import (
	"bufio"
	"errors"
	"io"
)

// EOF is what an Input returns once the stream is exhausted. It is outside
// the byte range, so the value overflow policy decides what it does to the
// current cell.
const EOF = -1

// Input supplies one value per ',' instruction.
type Input interface {
	ReadCell() (int, error)
}

type readerInput struct {
	r *bufio.Reader
}

// NewReaderInput reads bytes from r and reports EOF once r is drained.
func NewReaderInput(r io.Reader) Input {
	return &readerInput{r: bufio.NewReader(r)}
}

func (in *readerInput) ReadCell() (int, error) {
	b, err := in.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return EOF, nil
		}
		return 0, err
	}
	return int(b), nil
}

type writerOutput struct {
	w    io.Writer
	crlf bool
	buf  [2]byte
}

// NewWriterOutput writes every byte straight through to w.
func NewWriterOutput(w io.Writer) io.ByteWriter {
	return &writerOutput{w: w}
}

// NewCRLFOutput is like NewWriterOutput but writes '\n' as "\r\n".
func NewCRLFOutput(w io.Writer) io.ByteWriter {
	// Patch for Windows and, for some reason, docker
	return &writerOutput{w: w, crlf: true}
}

func (out *writerOutput) WriteByte(c byte) error {
	p := out.buf[:1]
	if out.crlf && c == '\n' {
		out.buf[0], out.buf[1] = '\r', '\n'
		p = out.buf[:2]
	} else {
		out.buf[0] = c
	}
	_, err := out.w.Write(p)
	return err
}
