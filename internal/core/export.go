package core

import (
	"time"
)

// Export column names, in canonical order.
const (
	ColumnTransactionID   = "TransactionId"
	ColumnName            = "Name"
	ColumnEmail           = "Email"
	ColumnAmount          = "Amount"
	ColumnTransactionDate = "TransactionDate"
	ColumnTimezone        = "Timezone"
	ColumnLatitude        = "Latitude"
	ColumnLongitude       = "Longitude"
)

// ExportSpec selects a date range and the columns to export.
// The range is inclusive at both ends and compared in UTC.
type ExportSpec struct {
	StartDate time.Time
	EndDate   time.Time

	IncludeTransactionID   bool
	IncludeName            bool
	IncludeEmail           bool
	IncludeAmount          bool
	IncludeTransactionDate bool
	IncludeTimezone        bool
	IncludeLocation        bool // latitude and longitude
}

// Columns returns the selected columns in canonical order.
func (s ExportSpec) Columns() []string {
	var cols []string
	add := func(on bool, names ...string) {
		if on {
			cols = append(cols, names...)
		}
	}
	add(s.IncludeTransactionID, ColumnTransactionID)
	add(s.IncludeName, ColumnName)
	add(s.IncludeEmail, ColumnEmail)
	add(s.IncludeAmount, ColumnAmount)
	add(s.IncludeTransactionDate, ColumnTransactionDate)
	add(s.IncludeTimezone, ColumnTimezone)
	add(s.IncludeLocation, ColumnLatitude, ColumnLongitude)
	return cols
}

// Validate checks the range order and that at least one column is selected.
func (s ExportSpec) Validate() error {
	if s.StartDate.After(s.EndDate) {
		return invalidInput("export", "invalid date range: start %s is after end %s",
			s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly))
	}
	if len(s.Columns()) == 0 {
		return invalidInput("export", "no export columns selected")
	}
	return nil
}

// ExportFile is a rendered spreadsheet ready for download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}
