package delimited

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"empty fields", "a,,c,", []string{"a", "", "c", ""}},
		{"quoted delimiter", `"a,b",c`, []string{"a,b", "c"}},
		{"escaped quote", `a,"b""c",d`, []string{"a", `b"c`, "d"}},
		{"escaped quote at end of span", `a,"b"""`, []string{"a", `b"`}},
		{"trailing stray quote", `a,b"`, []string{"a", "b"}},
		{"trailing stray quotes", `a,b""",c`, []string{"a", "b", "c"}},
		{"mid-field quote is literal", `a"b,c`, []string{`a"b`, "c"}},
		{"text after closing quote", `"ab"c,d`, []string{"abc", "d"}},
		{"single quoted field", `"abc"`, []string{"abc"}},
		{
			name: "whole line wrapped",
			line: `"T1,John,""7.1, 2.3"""`,
			want: []string{"T1", "John", "7.1, 2.3"},
		},
		{
			name: "stray leading quote",
			line: `"T1,John,12.50`,
			want: []string{"T1", "John", "12.50"},
		},
		{"empty line", "", []string{""}},
		{"unicode", `"café, bar",naïve`, []string{"café, bar", "naïve"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.line, DefaultOptions())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestTokenize_CustomDelimiter(t *testing.T) {
	got := Tokenize(`a;"b;c";d`, Options{Delimiter: ';'})
	want := []string{"a", "b;c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTokenize_Unterminated(t *testing.T) {
	fields, ok := tokenize(`a,"open,x`, DefaultOptions())
	if ok {
		t.Error("expected unterminated quote to be reported")
	}
	want := []string{"a", "open,x"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("got %q, want %q", fields, want)
	}
}

// encodeLine quotes every field that needs it, the way a spreadsheet would.
func encodeLine(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if strings.ContainsAny(f, `,"`) {
			f = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
		}
		parts[i] = f
	}
	return strings.Join(parts, ",")
}

func TestTokenize_BalancedRoundTrip(t *testing.T) {
	rows := [][]string{
		{"a", "b"},
		{"", ""},
		{"x,y", "z"},
		{`say "hi"`, "ok", ""},
		{"7.15, -162.31", "$12.50", "2023-04-01 10:00:00"},
		{`""`, `,`, `","`},
		{"one", "two", "three", "four", "five"},
	}

	for _, fields := range rows {
		line := encodeLine(fields)
		got, ok := tokenize(line, DefaultOptions())
		if !ok {
			t.Errorf("tokenize(%q) reported malformed quoting", line)
		}
		if !reflect.DeepEqual(got, fields) {
			t.Errorf("tokenize(%q) = %q, want %q", line, got, fields)
		}
	}
}
