// Package store persists transactions in PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/transactions/internal/config"
	"github.com/JonMunkholm/transactions/internal/core"
)

//go:embed schema.sql
var schema string

const table = "transactions"

// maxZoneOffset bounds how far any local wall clock is from UTC.
const maxZoneOffset = 14 * time.Hour

var insertColumns = []string{
	"transaction_id", "name", "email", "amount",
	"transaction_date", "timezone", "latitude", "longitude",
}

const selectColumns = "transaction_id, name, email, amount, transaction_date, timezone, latitude, longitude"

const updateSQL = `UPDATE transactions
SET name = $2, email = $3, amount = $4, transaction_date = $5,
    timezone = $6, latitude = $7, longitude = $8, updated_at = now()
WHERE transaction_id = $1`

// Localizer re-expresses an instant as wall-clock time in a coarse zone.
type Localizer interface {
	ToLocal(instant time.Time, coarse string) (civil.DateTime, error)
}

// Store implements core.Store on a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	zones Localizer
}

var _ core.Store = (*Store)(nil)

// New creates a Store. zones is used to filter listings by local date.
func New(pool *pgxpool.Pool, zones Localizer) *Store {
	return &Store{pool: pool, zones: zones}
}

// Connect opens and pings a pool configured from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the transactions table and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ExistingKeys returns which of ids are already stored.
func (s *Store) ExistingKeys(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	where, args := NewWhereBuilder().AddAny("transaction_id", ids).Build()
	rows, err := s.pool.Query(ctx, "SELECT transaction_id FROM "+table+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan existing keys: %w", err)
	}
	for _, k := range keys {
		found[k] = struct{}{}
	}
	return found, nil
}

// Insert bulk-copies new transactions. The copy is all-or-nothing.
func (s *Store) Insert(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, insertColumns,
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			return rowValues(txs[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

// Update rewrites existing transactions in one database transaction.
func (s *Store) Update(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range txs {
			batch.Queue(updateSQL, rowValues(t)...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("update transactions: %w", err)
	}
	return nil
}

func rowValues(t core.Transaction) []any {
	return []any{
		t.TransactionID, t.Name, t.Email, toNumeric(t.Amount),
		t.TransactionDate.UTC(), t.Timezone, t.Latitude, t.Longitude,
	}
}

// QueryByTimeWindow returns transactions whose local date in their own
// zone falls in w. The database narrows by UTC instant widened by the
// largest zone offset; the exact local test runs here.
func (s *Store) QueryByTimeWindow(ctx context.Context, w core.TimeWindow) ([]core.Transaction, error) {
	start, end := w.Bounds()

	wb := NewWhereBuilder().
		Add("timezone", w.Zone).
		AddHalfOpen("transaction_date", start.Add(-maxZoneOffset), end.Add(maxZoneOffset))
	where, args := wb.Build()

	query := "SELECT " + selectColumns + " FROM " + table + where + " ORDER BY transaction_date, transaction_id"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return filterLocal(txs, start, end, s.zones)
}

func scanTransaction(row pgx.CollectableRow) (core.Transaction, error) {
	var (
		t      core.Transaction
		amount pgtype.Numeric
	)
	err := row.Scan(&t.TransactionID, &t.Name, &t.Email, &amount,
		&t.TransactionDate, &t.Timezone, &t.Latitude, &t.Longitude)
	if err != nil {
		return t, err
	}
	if t.Amount, err = fromNumeric(amount); err != nil {
		return t, fmt.Errorf("transaction %s amount: %w", t.TransactionID, err)
	}
	t.TransactionDate = t.TransactionDate.UTC()
	return t, nil
}

// filterLocal keeps transactions whose local wall clock is in [start, end).
func filterLocal(txs []core.Transaction, start, end time.Time, zones Localizer) ([]core.Transaction, error) {
	out := txs[:0]
	for _, t := range txs {
		local, err := zones.ToLocal(t.TransactionDate, t.Timezone)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.TransactionID, err)
		}
		wall := local.In(time.UTC)
		if !wall.Before(start) && wall.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

// exportColumns maps export column names to database columns.
var exportColumns = map[string]string{
	core.ColumnTransactionID:   "transaction_id",
	core.ColumnName:            "name",
	core.ColumnEmail:           "email",
	core.ColumnAmount:          "amount",
	core.ColumnTransactionDate: "transaction_date",
	core.ColumnTimezone:        "timezone",
	core.ColumnLatitude:        "latitude",
	core.ColumnLongitude:       "longitude",
}

func selectList(columns []string) (string, error) {
	if len(columns) == 0 {
		return "", errors.New("no columns requested")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		dbCol, ok := exportColumns[c]
		if !ok {
			return "", fmt.Errorf("unknown export column %q", c)
		}
		quoted[i] = quoteIdentifier(dbCol)
	}
	return strings.Join(quoted, ", "), nil
}

// QueryByDateRange returns the named columns of every transaction whose
// UTC date is in [start, end]. Amounts come back as decimal.Decimal and
// dates as UTC time.Time.
func (s *Store) QueryByDateRange(ctx context.Context, start, end time.Time, columns []string) ([][]any, error) {
	cols, err := selectList(columns)
	if err != nil {
		return nil, err
	}
	where, args := NewWhereBuilder().AddClosed("transaction_date", start, end).Build()

	query := "SELECT " + cols + " FROM " + table + where + " ORDER BY transaction_date, transaction_id"
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query export range: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if values[i], err = exportValue(v); err != nil {
				return nil, err
			}
		}
		return values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan export range: %w", err)
	}
	return out, nil
}

func exportValue(v any) (any, error) {
	switch v := v.(type) {
	case pgtype.Numeric:
		return fromNumeric(v)
	case time.Time:
		return v.UTC(), nil
	default:
		return v, nil
	}
}
