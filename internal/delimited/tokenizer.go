// Package delimited splits delimiter-separated text into fields and maps the
// resulting rows onto caller-defined record shapes.
//
// The tokenizer is tolerant of the quoting found in spreadsheet exports:
//
//   - Quoted fields may contain the delimiter and doubled quotes ("" → ").
//   - A line wrapped as a whole in one pair of quotes is unwrapped and split.
//   - Stray quotes trailing an unquoted field are dropped.
//   - An unterminated quote never fails; the rest of the line becomes the
//     last field and the row is flagged so strict parsing can reject it.
package delimited

import (
	"strings"
	"unicode/utf8"
)

// Options controls how lines are tokenized and how parse failures are reported.
type Options struct {
	// Delimiter separates fields (default ',').
	Delimiter rune

	// Quote wraps fields that contain the delimiter (default '"').
	Quote rune

	// Strict makes Parse report empty or malformed input as errors instead of
	// returning fewer records.
	Strict bool
}

// DefaultOptions returns comma-delimited, double-quoted, lenient options.
func DefaultOptions() Options {
	return Options{Delimiter: ',', Quote: '"'}
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	return o
}

// Tokenize splits one line into its fields.
//
//	Tokenize(`"a,b",c`, DefaultOptions())    // ["a,b", "c"]
//	Tokenize(`a,"b""c",d`, DefaultOptions()) // ["a", `b"c`, "d"]
func Tokenize(line string, opts Options) []string {
	fields, _ := tokenize(line, opts.withDefaults())
	return fields
}

// tokenize is Tokenize with a flag reporting whether the quoting was well formed.
func tokenize(line string, o Options) ([]string, bool) {
	rs := []rune(line)
	if inner, ok := unwrapLine(rs, o); ok {
		rs = inner
	}
	return split(rs, o)
}

// unwrapLine detects a quote pair wrapping the entire line and returns the
// unescaped content. A single quoted field without an inner delimiter is left
// alone, since it is indistinguishable from a one-column row.
func unwrapLine(rs []rune, o Options) ([]rune, bool) {
	if len(rs) == 0 || rs[0] != o.Quote {
		return nil, false
	}

	end, closed := closingQuote(rs, 0, o.Quote)
	if !closed {
		// Leading quote that never closes: a wrapper whose tail was lost.
		rest := rs[1:]
		if containsRune(rest, o.Delimiter) {
			return rest, true
		}
		return nil, false
	}
	if end != len(rs)-1 {
		return nil, false
	}

	inner := unescape(rs[1:end], o.Quote)
	if fields, _ := split(inner, o); len(fields) > 1 {
		return inner, true
	}
	return nil, false
}

// split walks the line once, field by field.
func split(rs []rune, o Options) ([]string, bool) {
	var (
		fields []string
		buf    strings.Builder
	)

	quoteLen := utf8.RuneLen(o.Quote)
	i := 0
	for {
		buf.Reset()

		if i < len(rs) && rs[i] == o.Quote {
			end, closed := closingQuote(rs, i, o.Quote)
			if !closed {
				fields = append(fields, string(rs[i+1:]))
				return fields, false
			}
			buf.WriteString(string(unescape(rs[i+1:end], o.Quote)))
			i = end + 1
		}

		// Unquoted run up to the next delimiter. Quotes here are literal, but a
		// run of them at the very end of the field is dropped.
		tail := 0
		for i < len(rs) && rs[i] != o.Delimiter {
			buf.WriteRune(rs[i])
			if rs[i] == o.Quote {
				tail++
			} else {
				tail = 0
			}
			i++
		}

		field := buf.String()
		if tail > 0 {
			field = field[:len(field)-tail*quoteLen]
		}
		fields = append(fields, field)

		if i >= len(rs) {
			return fields, true
		}
		i++ // delimiter
	}
}

// closingQuote finds the quote closing the span opened at rs[start].
// Doubled quotes inside the span are skipped.
func closingQuote(rs []rune, start int, quote rune) (int, bool) {
	for i := start + 1; i < len(rs); i++ {
		if rs[i] != quote {
			continue
		}
		if i+1 < len(rs) && rs[i+1] == quote {
			i++
			continue
		}
		return i, true
	}
	return -1, false
}

// unescape collapses doubled quotes.
func unescape(rs []rune, quote rune) []rune {
	out := make([]rune, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		out = append(out, rs[i])
		if rs[i] == quote && i+1 < len(rs) && rs[i+1] == quote {
			i++
		}
	}
	return out
}

func containsRune(rs []rune, r rune) bool {
	for _, c := range rs {
		if c == r {
			return true
		}
	}
	return false
}
