package core

// convert.go turns raw upload text into typed values.
//
// Inputs come from spreadsheet exports, so values are trimmed and common
// artifacts are tolerated: currency symbols and thousand separators in
// amounts, an extra quote pair around locations, several date layouts.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/transactions/internal/timezone"
)

// timestampLayouts are tried in order. None carries an offset: the zone comes
// from the client location.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"Jan 2, 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// parseLocalTimestamp parses a wall-clock timestamp without a zone.
func parseLocalTimestamp(raw string) (civil.DateTime, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return civil.DateTime{}, errors.New("invalid transaction date: empty")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateTimeOf(t), nil
		}
	}
	return civil.DateTime{}, fmt.Errorf("invalid transaction date %q", raw)
}

// parseAmount parses a currency amount. A leading "$" and thousand
// separators are removed; the sign may precede the symbol.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if neg {
		s = "-" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// parseLocation parses "lat, lon", optionally wrapped in quotes.
func parseLocation(raw string) (lat, lon float64, err error) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid location %q: want \"lat, lon\"", raw)
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid location %q: latitude", raw)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid location %q: longitude", raw)
	}

	if err := timezone.ValidateCoordinate(lat, lon); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
