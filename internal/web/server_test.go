package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/transactions/internal/config"
	"github.com/JonMunkholm/transactions/internal/core"
	"github.com/JonMunkholm/transactions/internal/logging"
)

type fakeService struct {
	uploadName string
	uploadBody string
	uploadErr  error
	uploadCtx  context.Context

	listYear  int
	listMonth string
	listIP    string
	listErr   error
	listCtx   context.Context
	listed    []core.LocalTransaction

	exportSpec core.ExportSpec
	exportErr  error

	limiter *core.UploadLimiter
}

func (f *fakeService) SaveUpload(ctx context.Context, name string, body io.Reader) (*core.UploadResult, error) {
	f.uploadCtx = ctx
	data, _ := io.ReadAll(body)
	f.uploadName, f.uploadBody = name, string(data)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &core.UploadResult{
		UploadID: "u1",
		FileName: name,
		Inserted: 1,
		Transactions: []core.Transaction{{
			TransactionID:   "T-1",
			Amount:          decimal.RequireFromString("12.50"),
			TransactionDate: time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC),
			Timezone:        "W. Europe Standard Time",
		}},
	}, nil
}

func (f *fakeService) ListForClientZones(ctx context.Context, year int, month string) ([]core.LocalTransaction, error) {
	f.listCtx = ctx
	f.listYear, f.listMonth = year, month
	return f.listed, f.listErr
}

func (f *fakeService) ListForCallerZone(_ context.Context, ip string, year int, month string) ([]core.LocalTransaction, error) {
	f.listIP, f.listYear, f.listMonth = ip, year, month
	return f.listed, f.listErr
}

func (f *fakeService) Export(_ context.Context, spec core.ExportSpec) (*core.ExportFile, error) {
	f.exportSpec = spec
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &core.ExportFile{
		Name:        "transactions_20240101_20240131.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        []byte("PK\x03\x04"),
		Rows:        7,
	}, nil
}

func (f *fakeService) Limiter() *core.UploadLimiter {
	if f.limiter == nil {
		f.limiter = core.NewUploadLimiter(2, time.Second)
	}
	return f.limiter
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 10},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, svc *fakeService, checks ...HealthCheck) http.Handler {
	t.Helper()
	s := NewServer(svc, testConfig(), checks...)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s.Router()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body
}

func multipartUpload(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc)

	body, ctype := multipartUpload(t, "file", "jan.csv", "transaction_id,amount\nT-1,$12.50\n")
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.uploadName != "jan.csv" || !strings.HasPrefix(svc.uploadBody, "transaction_id,amount") {
		t.Errorf("service got name=%q body=%q", svc.uploadName, svc.uploadBody)
	}

	var result core.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.UploadID != "u1" || len(result.Transactions) != 1 || result.Transactions[0].TransactionID != "T-1" {
		t.Errorf("result = %+v", result)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		content   string
		svcErr    error
		wantCode  int
		wantError string
	}{
		{"missing file field", "other", "x", nil, http.StatusBadRequest, "FILE004"},
		{"too large", "file", strings.Repeat("x", 2<<10), nil, http.StatusRequestEntityTooLarge, "FILE001"},
		{"invalid row", "file", "x", &core.Error{Kind: core.KindInvalidInput, Op: "upload", Message: "row 2: invalid amount \"abc\""}, http.StatusBadRequest, "VAL005"},
		{"busy", "file", "x", core.ErrTooManyUploads, http.StatusTooManyRequests, "UPL001"},
		{"internal", "file", "x", &core.Error{Kind: core.KindInternal, Op: "upload", Err: errors.New("timezone mapping not found: Mars/Base")}, http.StatusInternalServerError, "TZ001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeService{uploadErr: tt.svcErr})

			body, ctype := multipartUpload(t, tt.field, "f.csv", tt.content)
			req := httptest.NewRequest(http.MethodPost, "/api/transactions/upload", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if got := decodeError(t, rec).Code; got != tt.wantError {
				t.Errorf("code = %s, want %s", got, tt.wantError)
			}
		})
	}
}

func TestUpload_OutlivesRequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestTimeout = time.Second
	cfg.Upload.MaxWaitTime = 30 * time.Second
	cfg.Upload.Timeout = 5 * time.Minute

	svc := &fakeService{}
	s := NewServer(svc, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	h := s.Router()

	body, ctype := multipartUpload(t, "file", "jan.csv", "transaction_id\nT-1\n")
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	start := time.Now()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	deadline, ok := svc.uploadCtx.Deadline()
	if !ok {
		t.Fatal("upload context has no deadline")
	}
	if left := deadline.Sub(start); left < 5*time.Minute {
		t.Errorf("upload deadline %v after start, want at least UPLOAD_TIMEOUT", left)
	}

	rec = httptest.NewRecorder()
	start = time.Now()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/client-timezone/2024", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	deadline, ok = svc.listCtx.Deadline()
	if !ok || deadline.Sub(start) > time.Second {
		t.Errorf("list deadline = %v (set %v), want within SERVER_REQUEST_TIMEOUT", deadline.Sub(start), ok)
	}
}

func TestRespondError_LogsUserMessage(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "debug", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name           string
		err            error
		wantCatalogued bool
		wantCode       string
	}{
		{"known pattern", core.ErrTooManyUploads, true, "UPL001"},
		{"unknown error", &core.Error{Kind: core.KindInternal, Op: "upload", Err: errors.New("nil pointer dereference")}, false, "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			h := newTestServer(t, &fakeService{uploadErr: tt.err})

			body, ctype := multipartUpload(t, "file", "f.csv", "x")
			req := httptest.NewRequest(http.MethodPost, "/api/transactions/upload", body)
			req.Header.Set("Content-Type", ctype)
			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry struct {
				Catalogued  bool   `json:"catalogued"`
				UserMessage string `json:"user_message"`
			}
			found := false
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				if !strings.Contains(line, `"msg":"request error"`) {
					continue
				}
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					t.Fatalf("log line is not JSON: %q", line)
				}
				found = true
			}
			if !found {
				t.Fatalf("no request error logged: %s", buf.String())
			}
			if entry.Catalogued != tt.wantCatalogued {
				t.Errorf("catalogued = %v, want %v", entry.Catalogued, tt.wantCatalogued)
			}
			if !strings.Contains(entry.UserMessage, "(Code: "+tt.wantCode+")") {
				t.Errorf("user_message = %q, want code %s", entry.UserMessage, tt.wantCode)
			}
		})
	}
}

func TestListClientZones(t *testing.T) {
	svc := &fakeService{listed: []core.LocalTransaction{{TransactionID: "T-1", TransactionDate: "2024-03-05 12:00:00.00"}}}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/client-timezone/2024?month=March", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.listYear != 2024 || svc.listMonth != "March" {
		t.Errorf("service got year=%d month=%q", svc.listYear, svc.listMonth)
	}
	var got []core.LocalTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestListClientZones_EmptyIsArray(t *testing.T) {
	h := newTestServer(t, &fakeService{listed: []core.LocalTransaction{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/client-timezone/2024", nil))

	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestListCallerZone_UsesClientAddress(t *testing.T) {
	svc := &fakeService{listed: []core.LocalTransaction{}}
	h := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions/current-timezone/2023", nil)
	req.RemoteAddr = "203.0.113.9:41234"
	req.Header.Set("X-Real-IP", "1.1.1.1") // untrusted peer, ignored
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.listIP != "203.0.113.9" || svc.listYear != 2023 || svc.listMonth != "" {
		t.Errorf("service got ip=%q year=%d month=%q", svc.listIP, svc.listYear, svc.listMonth)
	}
}

func TestList_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		svcErr   error
		wantCode int
		wantErr  string
	}{
		{"non-numeric year", "/api/transactions/client-timezone/twenty", nil, http.StatusBadRequest, "VAL004"},
		{"bad month", "/api/transactions/client-timezone/2024?month=Smarch",
			&core.Error{Kind: core.KindInvalidInput, Op: "list", Message: `invalid month "Smarch"`}, http.StatusBadRequest, "VAL003"},
		{"lookup failure", "/api/transactions/current-timezone/2024",
			&core.Error{Kind: core.KindInternal, Op: "list", Err: errors.New("address lookup: quota exceeded")}, http.StatusInternalServerError, "GEO001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeService{listErr: tt.svcErr})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := decodeError(t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestExport(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc)

	body := `{"start_date":"2024-01-01","end_date":"2024-01-31","include_transaction_id":true,"include_location":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/export/excel", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transactions_20240101_20240131.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Header().Get("X-Export-Rows") != "7" || rec.Body.String() != "PK\x03\x04" {
		t.Errorf("rows header %q, body %q", rec.Header().Get("X-Export-Rows"), rec.Body)
	}

	spec := svc.exportSpec
	if !spec.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", spec.StartDate)
	}
	if want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond); !spec.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want end of day %v", spec.EndDate, want)
	}
	if !spec.IncludeTransactionID || !spec.IncludeLocation || spec.IncludeName {
		t.Errorf("flags = %+v", spec)
	}
}

func TestExport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		svcErr   error
		wantCode int
		wantErr  string
	}{
		{"not json", `{`, nil, http.StatusBadRequest, "VAL009"},
		{"unknown field", `{"start_date":"2024-01-01","end_date":"2024-01-02","bogus":1}`, nil, http.StatusBadRequest, "VAL009"},
		{"missing dates", `{"include_name":true}`, nil, http.StatusBadRequest, "VAL009"},
		{"bad date", `{"start_date":"01/02/2024","end_date":"2024-01-02"}`, nil, http.StatusBadRequest, "VAL009"},
		{"no columns", `{"start_date":"2024-01-01","end_date":"2024-01-02"}`,
			&core.Error{Kind: core.KindInvalidInput, Op: "export", Message: "no export columns selected"}, http.StatusBadRequest, "VAL002"},
		{"nothing found", `{"start_date":"2024-01-01","end_date":"2024-01-02","include_name":true}`,
			&core.Error{Kind: core.KindNotFound, Op: "export", Message: "no transactions found between 2024-01-01 and 2024-01-02"}, http.StatusNotFound, "EXP001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeService{exportErr: tt.svcErr})
			req := httptest.NewRequest(http.MethodPost, "/api/transactions/export/excel", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if got := decodeError(t, rec).Code; got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestDateParam(t *testing.T) {
	tests := []struct {
		in       string
		want     time.Time
		dateOnly bool
	}{
		{`"2024-03-01"`, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{`"2024-03-01T10:30:00"`, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{`"2024-03-01 10:30:00.5"`, time.Date(2024, 3, 1, 10, 30, 0, 5e8, time.UTC), false},
		{`"2024-03-01T10:30:00+02:00"`, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		var d dateParam
		if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if !d.Equal(tt.want) || d.dateOnly != tt.dateOnly {
			t.Errorf("%s = %v (dateOnly %v), want %v (%v)", tt.in, d.Time, d.dateOnly, tt.want, tt.dateOnly)
		}
	}
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "database", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "database", Check: func(context.Context) error { return errors.New("connection refused") }}

	for _, tt := range []struct {
		check HealthCheck
		want  int
	}{{ok, http.StatusOK}, {down, http.StatusServiceUnavailable}} {
		h := newTestServer(t, &fakeService{}, tt.check)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != tt.want {
			t.Errorf("status = %d, want %d", rec.Code, tt.want)
		}
		var body healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Uploads.MaxConcurrent != 2 {
			t.Errorf("uploads = %+v", body.Uploads)
		}
	}
}

func TestMetricsAndNotFound(t *testing.T) {
	h := newTestServer(t, &fakeService{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "transactions_") {
		t.Errorf("metrics status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "HTTP404" {
		t.Errorf("not found = %d %s", rec.Code, rec.Body)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	s := NewServer(&fakeService{}, cfg)
	defer s.Shutdown(context.Background())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		body, ctype := multipartUpload(t, "file", "f.csv", "x")
		req := httptest.NewRequest(http.MethodPost, "/api/transactions/upload", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && decodeError(t, rec).Code != "RATE001" {
			t.Errorf("rate limit code = %s", rec.Body)
		}
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}
