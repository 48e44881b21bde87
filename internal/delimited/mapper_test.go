package delimited

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

type row struct {
	ID   string
	Name string
	Note string
}

var rowMapping = Mapping[row]{
	"Id":   func(r *row, v string) { r.ID = v },
	"Name": func(r *row, v string) { r.Name = v },
	"Note": func(r *row, v string) { r.Note = v },
}

func TestMapRow(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		fields []string
		want   row
	}{
		{"all columns", []string{"Id", "Name", "Note"}, []string{"1", "Ann", "x"}, row{"1", "Ann", "x"}},
		{"reordered", []string{"Name", "Id"}, []string{"Ann", "1"}, row{ID: "1", Name: "Ann"}},
		{"unknown column ignored", []string{"Id", "Extra", "Name"}, []string{"1", "?", "Ann"}, row{ID: "1", Name: "Ann"}},
		{"short row", []string{"Id", "Name", "Note"}, []string{"1"}, row{ID: "1"}},
		{"long row", []string{"Id"}, []string{"1", "Ann", "x"}, row{ID: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapRow(tt.header, tt.fields, rowMapping); got != tt.want {
				t.Errorf("MapRow() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParser_Parse(t *testing.T) {
	input := "\uFEFFId, Name ,Note\r\n" +
		"1,Ann,\"hello, world\"\r\n" +
		"\r\n" +
		"2,Bob\r\n" +
		"\"3,Cy,wrapped\"\n"

	got, err := NewParser(rowMapping, DefaultOptions()).Parse(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []row{
		{"1", "Ann", "hello, world"},
		{"2", "Bob", ""},
		{"3", "Cy", "wrapped"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParser_Lenient(t *testing.T) {
	p := NewParser(rowMapping, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"blank lines only", "\n\n  \n", 0},
		{"header only", "Id,Name\n", 0},
		{"unterminated quote kept", "Id,Name\n1,\"Ann\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(ctx, strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d rows, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParser_LenientReadError(t *testing.T) {
	p := NewParser(rowMapping, DefaultOptions())
	got, err := p.Parse(context.Background(), iotest.ErrReader(errors.New("disk gone")))
	if err != nil {
		t.Fatalf("lenient Parse() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows, want 0", len(got))
	}
}

func TestParser_Strict(t *testing.T) {
	opts := DefaultOptions()
	opts.Strict = true
	p := NewParser(rowMapping, opts)
	ctx := context.Background()

	if _, err := p.Parse(ctx, strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("empty input: err = %v, want ErrNoHeader", err)
	}

	_, err := p.Parse(ctx, strings.NewReader("Id,Name\n1,Ann\n2,\"Bob\n"))
	var rowErr *RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("err = %v, want *RowError", err)
	}
	if rowErr.Line != 3 {
		t.Errorf("RowError.Line = %d, want 3", rowErr.Line)
	}
	if !errors.Is(err, ErrUnterminatedQuote) {
		t.Errorf("err = %v, want ErrUnterminatedQuote", err)
	}

	if _, err := p.Parse(ctx, iotest.ErrReader(errors.New("disk gone"))); err == nil {
		t.Error("expected read error in strict mode")
	}
}

func TestParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser(rowMapping, DefaultOptions()).Parse(ctx, strings.NewReader("Id\n1\n"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
