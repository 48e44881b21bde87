package core

// error_messages.go maps technical errors to messages an API client can show.
//
// Codes are grouped by category and are stable; support staff look them up by
// code when a user reports one.
//
//	VAL001 invalid date range       "invalid date range"
//	VAL002 no export columns        "no export columns"
//	VAL003 invalid month            "invalid month"
//	VAL004 invalid year             "invalid year"
//	VAL005 invalid amount           "invalid amount"
//	VAL006 invalid date             "invalid transaction date"
//	VAL007 invalid location         "invalid location", "invalid coordinate"
//	VAL008 missing id               "missing transaction id"
//	VAL009 invalid request body     "invalid request body"
//	FILE001 file too large          "file too large"
//	FILE002 malformed row           "unterminated quote"
//	FILE003 empty file              "empty file"
//	FILE004 no file                 "no file provided"
//	FILE005 bad form                "invalid multipart form"
//	TZ001 unmapped zone             "timezone mapping not found"
//	TZ002 unknown zone id           "unknown timezone id"
//	GEO001 address lookup failed    "address lookup"
//	EXP001 nothing to export        "no transactions found"
//	DB001 connection refused        "connection refused"
//	DB002 connection reset          "connection reset"
//	DB003 timeout                   "timeout"
//	DB004 deadlock                  "deadlock"
//	UPL001 system busy              "too many concurrent uploads"
//	UPL002 request cancelled        "context canceled"
//	UPL003 request timeout          "context deadline exceeded"
//	RATE001 rate limited            "rate limit"
//	ERR000 anything else
//
// Patterns match case-insensitively with strings.Contains; the first match
// wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is a client-facing description of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Validation
	{"invalid date range", UserMessage{"Start date is after end date", "Choose a start date on or before the end date", "VAL001"}},
	{"no export columns", UserMessage{"No columns selected for export", "Select at least one column", "VAL002"}},
	{"invalid month", UserMessage{"Month is not recognized", "Use a full English month name such as March", "VAL003"}},
	{"invalid year", UserMessage{"Year is not valid", "Use a year of 1 or later", "VAL004"}},
	{"invalid amount", UserMessage{"Invalid amount detected", "Use a plain decimal amount, optionally prefixed with $", "VAL005"}},
	{"invalid transaction date", UserMessage{"Invalid transaction date detected", "Use YYYY-MM-DD HH:MM:SS without a timezone offset", "VAL006"}},
	{"invalid location", UserMessage{"Invalid client location detected", `Use "latitude, longitude" in decimal degrees`, "VAL007"}},
	{"invalid coordinate", UserMessage{"Client location is out of range", "Latitude must be within ±90 and longitude within ±180", "VAL007"}},
	{"missing transaction id", UserMessage{"A row has no transaction id", "Ensure every row has a transaction_id", "VAL008"}},
	{"invalid request body", UserMessage{"Request body could not be read", "Send a JSON body with start_date and end_date", "VAL009"}},

	// File
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"unterminated quote", UserMessage{"A row has an unterminated quoted field", "Check the row for a missing closing quote", "FILE002"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with a header row and data rows", "FILE003"}},
	{"no file provided", UserMessage{"No file was provided", "Attach the file in the 'file' form field", "FILE004"}},
	{"invalid multipart form", UserMessage{"Upload form could not be read", "Send the file as multipart/form-data", "FILE005"}},

	// Timezones
	{"timezone mapping not found", UserMessage{"A location's timezone could not be translated", "Contact support with the affected location", "TZ001"}},
	{"unknown timezone id", UserMessage{"A stored timezone is not recognized", "Contact support", "TZ002"}},
	{"address lookup", UserMessage{"Could not determine your timezone", "Please try again later", "GEO001"}},

	// Export
	{"no transactions found", UserMessage{"No transactions match the request", "Widen the date range or change the filters", "EXP001"}},

	// Database
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB002"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},

	// Upload
	{"too many concurrent uploads", UserMessage{"Too many uploads in progress", "Please wait a moment and try again", "UPL001"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL002"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL003"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB003"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user message. Unknown errors map
// to ERR000; nil maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
