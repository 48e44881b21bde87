package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/transactions/internal/delimited"
)

// Upload header names.
const (
	HeaderTransactionID   = "transaction_id"
	HeaderName            = "name"
	HeaderEmail           = "email"
	HeaderAmount          = "amount"
	HeaderTransactionDate = "transaction_date"
	HeaderClientLocation  = "client_location"
)

// IngestRecord is one uploaded row before normalization. All fields are raw text.
type IngestRecord struct {
	TransactionID   string
	Name            string
	Email           string
	Amount          string // "$12.50"
	TransactionDate string // local wall-clock time, no offset
	ClientLocation  string // "lat, lon"
}

var ingestMapping = delimited.Mapping[IngestRecord]{
	HeaderTransactionID:   func(r *IngestRecord, v string) { r.TransactionID = v },
	HeaderName:            func(r *IngestRecord, v string) { r.Name = v },
	HeaderEmail:           func(r *IngestRecord, v string) { r.Email = v },
	HeaderAmount:          func(r *IngestRecord, v string) { r.Amount = v },
	HeaderTransactionDate: func(r *IngestRecord, v string) { r.TransactionDate = v },
	HeaderClientLocation:  func(r *IngestRecord, v string) { r.ClientLocation = v },
}

// Transaction is the canonical, persisted record.
// TransactionDate is always in UTC; Timezone is the coarse zone it was
// recorded in.
type Transaction struct {
	TransactionID   string          `json:"transaction_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transaction_date"`
	Timezone        string          `json:"timezone"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
}

func transactionKey(t Transaction) string { return t.TransactionID }

// LocalDateLayout formats listing dates (two fractional digits).
const LocalDateLayout = "2006-01-02 15:04:05.00"

// LocalTransaction is a Transaction with its date re-expressed as local
// wall-clock text in Timezone.
type LocalTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate string          `json:"transaction_date"`
	Timezone        string          `json:"timezone"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
}
