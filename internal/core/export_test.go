package core

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExportSpec_Columns(t *testing.T) {
	tests := []struct {
		name string
		spec ExportSpec
		want []string
	}{
		{"none", ExportSpec{}, nil},
		{
			name: "all in canonical order",
			spec: ExportSpec{
				IncludeLocation: true, IncludeTimezone: true, IncludeTransactionDate: true,
				IncludeAmount: true, IncludeEmail: true, IncludeName: true, IncludeTransactionID: true,
			},
			want: []string{"TransactionId", "Name", "Email", "Amount", "TransactionDate", "Timezone", "Latitude", "Longitude"},
		},
		{"location expands to two columns", ExportSpec{IncludeLocation: true}, []string{"Latitude", "Longitude"}},
		{"subset", ExportSpec{IncludeAmount: true, IncludeTransactionID: true}, []string{"TransactionId", "Amount"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Columns(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Columns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExportSpec_Validate(t *testing.T) {
	tests := []struct {
		name     string
		spec     ExportSpec
		wantKind Kind
		wantErr  bool
	}{
		{
			name:     "start after end",
			spec:     ExportSpec{StartDate: date(2024, 2, 1), EndDate: date(2024, 1, 1), IncludeName: true},
			wantKind: KindInvalidInput,
			wantErr:  true,
		},
		{
			name:     "no columns",
			spec:     ExportSpec{StartDate: date(2024, 1, 1), EndDate: date(2024, 2, 1)},
			wantKind: KindInvalidInput,
			wantErr:  true,
		},
		{
			name: "same day",
			spec: ExportSpec{StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 1), IncludeName: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != tt.wantKind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Month
		wantErr bool
	}{
		{"", 0, false},
		{"March", time.March, false},
		{"march", time.March, false},
		{" DECEMBER ", time.December, false},
		{"Mar", 0, true},
		{"3", 0, true},
		{"Smarch", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMonth(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMonth(%q) error = %v", tt.input, err)
			}
			if err != nil && KindOf(err) != KindInvalidInput {
				t.Errorf("KindOf = %v, want invalid input", KindOf(err))
			}
			if got != tt.want {
				t.Errorf("ParseMonth(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewTimeWindow(t *testing.T) {
	if _, err := NewTimeWindow("", 0, ""); KindOf(err) != KindInvalidInput {
		t.Errorf("year 0: err = %v, want invalid input", err)
	}

	w, err := NewTimeWindow("UTC", 2024, "February")
	if err != nil {
		t.Fatal(err)
	}
	start, end := w.Bounds()
	if !start.Equal(date(2024, 2, 1)) || !end.Equal(date(2024, 3, 1)) {
		t.Errorf("Bounds() = %v, %v", start, end)
	}

	w.Month = 0
	start, end = w.Bounds()
	if !start.Equal(date(2024, 1, 1)) || !end.Equal(date(2025, 1, 1)) {
		t.Errorf("whole-year Bounds() = %v, %v", start, end)
	}
}
