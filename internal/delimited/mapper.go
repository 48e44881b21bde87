package delimited

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize is the longest line Parse accepts (1MB).
var MaxLineSize = 1024 * 1024

var (
	// ErrNoHeader is returned in strict mode when the input has no header row.
	ErrNoHeader = errors.New("empty file: no header row")

	// ErrUnterminatedQuote marks a row whose quoted field never closed.
	ErrUnterminatedQuote = errors.New("malformed row: unterminated quote")
)

// RowError ties a parse failure to its 1-indexed line number.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Setter assigns one raw field value to a record.
type Setter[T any] func(rec *T, value string)

// Mapping binds header names to the setters of a record shape.
// Headers without a setter are ignored.
type Mapping[T any] map[string]Setter[T]

// Columns returns the header names the mapping understands.
func (m Mapping[T]) Columns() []string {
	cols := make([]string, 0, len(m))
	for name := range m {
		cols = append(cols, name)
	}
	return cols
}

// MapRow builds one record: the i-th field goes to the setter registered for
// the i-th header name. Fields past the shorter of header and row are ignored.
func MapRow[T any](header, fields []string, m Mapping[T]) T {
	var rec T
	n := min(len(header), len(fields))
	for i := 0; i < n; i++ {
		if set, ok := m[header[i]]; ok {
			set(&rec, fields[i])
		}
	}
	return rec
}

// Parser reads a header line followed by data lines into records of type T.
type Parser[T any] struct {
	mapping Mapping[T]
	opts    Options
}

// NewParser creates a parser for the given mapping.
func NewParser[T any](m Mapping[T], opts Options) *Parser[T] {
	return &Parser[T]{mapping: m, opts: opts.withDefaults()}
}

// Parse reads r to the end and returns one record per non-blank data line.
//
// In lenient mode an unreadable or empty input yields no records and no
// error, and rows with broken quoting are mapped as far as they go. In strict
// mode those cases return ErrNoHeader, a *RowError, or the read error.
// Context cancellation is always returned.
func (p *Parser[T]) Parse(ctx context.Context, r io.Reader) ([]T, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	var (
		header  []string
		records []T
		line    int
	)

	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields, ok := tokenize(text, p.opts)
		if header == nil {
			header = cleanHeader(fields)
			continue
		}

		if !ok && p.opts.Strict {
			return nil, &RowError{Line: line, Err: ErrUnterminatedQuote}
		}
		records = append(records, MapRow(header, fields, p.mapping))
	}

	if err := sc.Err(); err != nil {
		if p.opts.Strict {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return nil, nil
	}

	if header == nil && p.opts.Strict {
		return nil, ErrNoHeader
	}

	return records, nil
}

// cleanHeader trims whitespace and a leading byte-order mark from header names.
func cleanHeader(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if i == 0 {
			f = strings.TrimPrefix(f, "\uFEFF")
		}
		out[i] = strings.TrimSpace(f)
	}
	return out
}
