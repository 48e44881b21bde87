package core

// streaming.go cleans upload bodies on the fly before they reach the parser:
// a leading UTF-8 byte-order mark is dropped and invalid UTF-8 bytes are
// replaced with '?', so one bad byte never fails a whole file.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizingReader yields valid UTF-8 with any leading BOM removed.
type sanitizingReader struct {
	br      *bufio.Reader
	started bool
	pending []byte // encoded bytes that did not fit the caller's buffer
	err     error
}

func newSanitizingReader(r io.Reader) *sanitizingReader {
	return &sanitizingReader{br: bufio.NewReader(r)}
}

func (s *sanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !s.started {
		s.started = true
		if head, err := s.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			s.br.Discard(len(utf8BOM))
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if n == len(p) {
		return n, nil
	}
	if s.err != nil {
		return n, s.err
	}

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			s.err = err
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		w := 1
		if r == utf8.RuneError && size == 1 {
			buf[0] = '?'
		} else {
			w = utf8.EncodeRune(buf[:], r)
		}

		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			s.pending = append(s.pending[:0], buf[c:w]...)
			break
		}
		if s.br.Buffered() == 0 {
			break
		}
	}
	return n, nil
}

// ByteCounter counts bytes read through it.
type ByteCounter struct {
	r io.Reader
	n int64
}

func (c *ByteCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Count returns the number of bytes read so far.
func (c *ByteCounter) Count() int64 {
	return c.n
}

// CleanInput wraps an upload body for parsing. The counter reports raw bytes
// consumed from r.
func CleanInput(r io.Reader) (io.Reader, *ByteCounter) {
	counter := &ByteCounter{r: r}
	return newSanitizingReader(counter), counter
}
