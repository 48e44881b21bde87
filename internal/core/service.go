package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/transactions/internal/delimited"
	"github.com/JonMunkholm/transactions/internal/logging"
	"github.com/JonMunkholm/transactions/internal/metrics"
	"github.com/JonMunkholm/transactions/internal/timezone"
)

// Store persists transactions.
type Store interface {
	ExistingKeys(ctx context.Context, ids []string) (map[string]struct{}, error)
	Insert(ctx context.Context, txs []Transaction) error
	Update(ctx context.Context, txs []Transaction) error

	// QueryByTimeWindow returns transactions whose local date, in their own
	// zone, falls inside the window.
	QueryByTimeWindow(ctx context.Context, w TimeWindow) ([]Transaction, error)

	// QueryByDateRange returns one row per transaction in [start, end],
	// holding only the named columns, in that order.
	QueryByDateRange(ctx context.Context, start, end time.Time, columns []string) ([][]any, error)
}

// ZoneResolver maps coordinates to a coarse zone.
type ZoneResolver interface {
	Resolve(lat, lon float64) (string, error)
}

// ZoneTable translates fine-grained zones and converts wall-clock times.
type ZoneTable interface {
	Coarse(fine string, now time.Time) (string, error)
	ToUTC(local civil.DateTime, coarse string) (time.Time, error)
	ToLocal(instant time.Time, coarse string) (civil.DateTime, error)
}

// AddressLocator finds the fine-grained zone of a network address.
type AddressLocator interface {
	LookupTimezone(ctx context.Context, ip string) (string, error)
}

// SheetWriter renders rows as a spreadsheet.
type SheetWriter interface {
	Write(columns []string, rows [][]any) ([]byte, error)
}

// Archiver keeps a copy of each raw upload. It is optional.
type Archiver interface {
	Archive(ctx context.Context, uploadID, fileName string, data []byte) (string, error)
}

// Options control upload parsing.
type Options struct {
	// StrictParsing rejects malformed uploads and rows instead of skipping them.
	StrictParsing bool

	// Delimiter separates upload fields (default ',').
	Delimiter rune

	// UploadTimeout bounds one upload's processing (0 = no extra bound).
	UploadTimeout time.Duration
}

// Deps are the collaborators of a Service. Locator, Sheets and Archiver
// may be nil when the matching feature is unused.
type Deps struct {
	Store    Store
	Resolver ZoneResolver
	Zones    ZoneTable
	Locator  AddressLocator
	Sheets   SheetWriter
	Archiver Archiver
	Limiter  *UploadLimiter
}

// Service implements upload, listing and export.
type Service struct {
	store    Store
	resolver ZoneResolver
	zones    ZoneTable
	locator  AddressLocator
	sheets   SheetWriter
	archiver Archiver
	limiter  *UploadLimiter
	opts     Options
	now      func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps, opts Options) *Service {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}
	return &Service{
		store:    deps.Store,
		resolver: deps.Resolver,
		zones:    deps.Zones,
		locator:  deps.Locator,
		sheets:   deps.Sheets,
		archiver: deps.Archiver,
		limiter:  limiter,
		opts:     opts,
		now:      time.Now,
	}
}

// Limiter exposes the upload limiter for health reporting and shutdown.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// UploadResult summarizes one saved upload.
type UploadResult struct {
	UploadID     string        `json:"upload_id"`
	FileName     string        `json:"file_name"`
	ArchivedAs   string        `json:"archived_as,omitempty"`
	BytesRead    int64         `json:"bytes_read"`
	RowsRead     int           `json:"rows_read"`
	Inserted     int           `json:"inserted"`
	Updated      int           `json:"updated"`
	Skipped      []SkippedRow  `json:"skipped,omitempty"`
	Transactions []Transaction `json:"transactions"`
	Duration     time.Duration `json:"-"`
}

// SkippedRow is a row dropped in lenient mode.
type SkippedRow struct {
	Row           int    `json:"row"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason"`
}

// SaveUpload parses an upload, normalizes every row to UTC, and saves it:
// new ids are inserted and known ids updated, concurrently. The result lists
// the inserted transactions followed by the updated ones.
func (s *Service) SaveUpload(ctx context.Context, fileName string, body io.Reader) (*UploadResult, error) {
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	defer s.limiter.Release()

	if s.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.UploadTimeout)
		defer cancel()
	}

	uploadID := uuid.New().String()
	logger := logging.WithFields(ctx, "upload_id", uploadID, "file", fileName)

	result, err := s.saveUpload(ctx, uploadID, fileName, body)
	if err != nil {
		outcome := "error"
		if KindOf(err) == KindInvalidInput {
			outcome = "invalid"
		}
		metrics.Uploads.WithLabelValues(outcome).Inc()
		logger.Warn("upload failed", "error", err, "kind", KindOf(err))
		return nil, err
	}

	result.Duration = time.Since(start)
	metrics.Uploads.WithLabelValues("ok").Inc()
	metrics.UploadDuration.Observe(float64(result.Duration.Milliseconds()))
	logger.Info("upload saved",
		"bytes", result.BytesRead,
		"rows", result.RowsRead,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", len(result.Skipped),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) saveUpload(ctx context.Context, uploadID, fileName string, body io.Reader) (*UploadResult, error) {
	const op = "upload"
	logger := logging.WithFields(ctx, "upload_id", uploadID, "file", fileName)

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, internal(op, fmt.Errorf("read body: %w", err))
	}

	result := &UploadResult{UploadID: uploadID, FileName: fileName}

	if s.archiver != nil {
		name, err := s.archiver.Archive(ctx, uploadID, fileName, data)
		if err != nil {
			// Archival is best effort; the upload itself proceeds.
			metrics.ArchivedUploads.WithLabelValues("error").Inc()
			logger.Warn("archive upload failed", "error", err)
		} else {
			metrics.ArchivedUploads.WithLabelValues("ok").Inc()
			result.ArchivedAs = name
		}
	}

	records, n, err := s.parse(ctx, data)
	if err != nil {
		return nil, err
	}
	result.BytesRead = n
	result.RowsRead = len(records)
	metrics.UploadBytes.Add(float64(n))
	metrics.RowsParsed.Add(float64(len(records)))

	txs := make([]Transaction, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, internal(op, err)
		}

		tx, err := s.normalize(rec)
		if err == nil {
			txs = append(txs, tx)
			continue
		}

		// Unmapped zones fail the upload in either mode.
		if errors.Is(err, timezone.ErrUnmappedZone) {
			return nil, internal(op, fmt.Errorf("row %d: %w", i+1, err))
		}
		if s.opts.StrictParsing {
			return nil, invalidInputErr(op, fmt.Errorf("row %d: %w", i+1, err))
		}
		metrics.RowsSkipped.WithLabelValues(skipReason(err)).Inc()
		logger.Warn("skipping row", "row", i+1, "transaction_id", rec.TransactionID, "error", err)
		result.Skipped = append(result.Skipped, SkippedRow{Row: i + 1, TransactionID: rec.TransactionID, Reason: err.Error()})
	}

	toInsert, toUpdate, err := Reconcile(ctx, txs, transactionKey, s.store.ExistingKeys)
	if err != nil {
		return nil, internal(op, fmt.Errorf("existing keys: %w", err))
	}
	metrics.RowsDeduplicated.Add(float64(len(txs) - len(toInsert) - len(toUpdate)))

	if err := s.persist(ctx, toInsert, toUpdate); err != nil {
		return nil, internal(op, err)
	}

	result.Inserted = len(toInsert)
	result.Updated = len(toUpdate)
	result.Transactions = append(append(make([]Transaction, 0, len(toInsert)+len(toUpdate)), toInsert...), toUpdate...)
	return result, nil
}

// parse also returns the raw byte count the parser consumed.
func (s *Service) parse(ctx context.Context, data []byte) ([]IngestRecord, int64, error) {
	opts := delimited.DefaultOptions()
	if s.opts.Delimiter != 0 {
		opts.Delimiter = s.opts.Delimiter
	}
	opts.Strict = s.opts.StrictParsing

	clean, counter := CleanInput(bytes.NewReader(data))
	records, err := delimited.NewParser(ingestMapping, opts).Parse(ctx, clean)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, internal("upload", err)
		}
		return nil, 0, invalidInputErr("upload", err)
	}
	return records, counter.Count(), nil
}

// normalize converts one raw row into a UTC transaction.
func (s *Service) normalize(rec IngestRecord) (Transaction, error) {
	id := rec.TransactionID
	if id == "" {
		return Transaction{}, errors.New("missing transaction id")
	}

	amount, err := parseAmount(rec.Amount)
	if err != nil {
		return Transaction{}, err
	}
	local, err := parseLocalTimestamp(rec.TransactionDate)
	if err != nil {
		return Transaction{}, err
	}
	lat, lon, err := parseLocation(rec.ClientLocation)
	if err != nil {
		return Transaction{}, err
	}

	zone, err := s.resolver.Resolve(lat, lon)
	if err != nil {
		return Transaction{}, err
	}
	utc, err := s.zones.ToUTC(local, zone)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		TransactionID:   id,
		Name:            rec.Name,
		Email:           rec.Email,
		Amount:          amount,
		TransactionDate: utc,
		Timezone:        zone,
		Latitude:        lat,
		Longitude:       lon,
	}, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, timezone.ErrInvalidCoordinate):
		return "coordinate"
	default:
		return "format"
	}
}

// persist runs insert and update concurrently. Either failing fails the save.
func (s *Service) persist(ctx context.Context, toInsert, toUpdate []Transaction) error {
	g, gctx := errgroup.WithContext(ctx)

	if len(toInsert) > 0 {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.store.Insert(gctx, toInsert); err != nil {
				return fmt.Errorf("insert %d transactions: %w", len(toInsert), err)
			}
			metrics.RecordsPersisted.WithLabelValues("insert").Add(float64(len(toInsert)))
			return nil
		})
	}
	if len(toUpdate) > 0 {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.store.Update(gctx, toUpdate); err != nil {
				return fmt.Errorf("update %d transactions: %w", len(toUpdate), err)
			}
			metrics.RecordsPersisted.WithLabelValues("update").Add(float64(len(toUpdate)))
			return nil
		})
	}

	return g.Wait()
}

// ListForClientZones lists transactions of a year (and optionally a month),
// judged by local date in each transaction's own zone.
func (s *Service) ListForClientZones(ctx context.Context, year int, month string) ([]LocalTransaction, error) {
	w, err := NewTimeWindow("", year, month)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, w)
}

// ListForCallerZone is ListForClientZones restricted to transactions recorded
// in the zone of the caller's network address.
func (s *Service) ListForCallerZone(ctx context.Context, ip string, year int, month string) ([]LocalTransaction, error) {
	const op = "list"

	w, err := NewTimeWindow("", year, month)
	if err != nil {
		return nil, err
	}
	if s.locator == nil {
		return nil, internal(op, errors.New("address lookup not configured"))
	}

	fine, err := s.locator.LookupTimezone(ctx, ip)
	if err != nil {
		return nil, internal(op, fmt.Errorf("address lookup for %s: %w", ip, err))
	}

	w.Zone, err = s.zones.Coarse(fine, s.now())
	if err != nil {
		return nil, internal(op, err)
	}

	logging.FromContext(ctx).Debug("resolved caller zone", "ip", ip, "zone", fine, "coarse", w.Zone)
	return s.list(ctx, w)
}

func (s *Service) list(ctx context.Context, w TimeWindow) ([]LocalTransaction, error) {
	const op = "list"

	txs, err := s.store.QueryByTimeWindow(ctx, w)
	if err != nil {
		return nil, internal(op, err)
	}

	out := make([]LocalTransaction, 0, len(txs))
	for _, tx := range txs {
		local, err := s.zones.ToLocal(tx.TransactionDate, tx.Timezone)
		if err != nil {
			return nil, internal(op, fmt.Errorf("transaction %s: %w", tx.TransactionID, err))
		}
		out = append(out, LocalTransaction{
			TransactionID:   tx.TransactionID,
			Name:            tx.Name,
			Email:           tx.Email,
			Amount:          tx.Amount,
			TransactionDate: local.In(time.UTC).Format(LocalDateLayout),
			Timezone:        tx.Timezone,
			Latitude:        tx.Latitude,
			Longitude:       tx.Longitude,
		})
	}
	return out, nil
}

// Export renders the selected columns of every transaction in spec's
// range as a spreadsheet.
func (s *Service) Export(ctx context.Context, spec ExportSpec) (*ExportFile, error) {
	const op = "export"

	if err := spec.Validate(); err != nil {
		metrics.Exports.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if s.sheets == nil {
		return nil, internal(op, errors.New("spreadsheet writer not configured"))
	}

	columns := spec.Columns()
	rows, err := s.store.QueryByDateRange(ctx, spec.StartDate.UTC(), spec.EndDate.UTC(), columns)
	if err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		return nil, internal(op, err)
	}
	if len(rows) == 0 {
		metrics.Exports.WithLabelValues("empty").Inc()
		return nil, notFound(op, "no transactions found between %s and %s",
			spec.StartDate.Format(time.DateOnly), spec.EndDate.Format(time.DateOnly))
	}

	data, err := s.sheets.Write(columns, rows)
	if err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		return nil, internal(op, fmt.Errorf("render spreadsheet: %w", err))
	}

	metrics.Exports.WithLabelValues("ok").Inc()
	logging.FromContext(ctx).Info("export rendered", "rows", len(rows), "columns", len(columns))

	return &ExportFile{
		Name:        fmt.Sprintf("transactions_%s_%s.xlsx", spec.StartDate.Format("20060102"), spec.EndDate.Format("20060102")),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
		Rows:        len(rows),
	}, nil
}
