package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adamscao/ctapi/internal/auth"
	"github.com/adamscao/ctapi/internal/config"
	"github.com/adamscao/ctapi/internal/models"
	"github.com/adamscao/ctapi/internal/query"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

const (
	testID     = "5f1b2c3d4e5f6a7b8c9d0e1f"
	testSHA1   = "25e77c1b23adfd3d16502cea71bd86b7dde783bb"
	testSHA256 = "d8a9a9c144d3c9122f7e8d8b8ae2c0c848d35aa1104ec44f42ebcde5e21132e3"
	testKey    = "test-api-key"
)

var testDER = []byte{0x30, 0x82, 0x01, 0x0a, 0x02, 0x82, 0x01, 0x01}

type stubGateway struct {
	mu sync.Mutex

	record  *models.CertificateRecord
	records []*models.CertificateRecord
	count   int64
	issuers []string
	err     error

	calls   int
	filters []query.Filter
}

func (g *stubGateway) note(f *query.Filter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if f != nil {
		g.filters = append(g.filters, *f)
	}
}

func (g *stubGateway) Get(_ context.Context, _ string) (*models.CertificateRecord, error) {
	g.note(nil)
	if g.err != nil {
		return nil, g.err
	}
	if g.record == nil {
		return nil, query.ErrNotFound
	}
	return g.record, nil
}

func (g *stubGateway) Find(_ context.Context, f query.Filter) ([]*models.CertificateRecord, error) {
	g.note(&f)
	return g.records, g.err
}

func (g *stubGateway) Count(_ context.Context, f query.Filter) (int64, error) {
	g.note(&f)
	return g.count, g.err
}

func (g *stubGateway) Issuers(_ context.Context) ([]string, error) {
	g.note(nil)
	return g.issuers, g.err
}

type recordingAuditor struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *recordingAuditor) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type stubHealth struct {
	err error
}

func (h stubHealth) Healthy(context.Context) error {
	return h.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Corp.DomainSuffix = "corp.example.com"
	cfg.Auth.Enabled = false
	return cfg
}

func sampleRecord() *models.CertificateRecord {
	return &models.CertificateRecord{
		ID:                 testID,
		FingerprintSHA1:    testSHA1,
		FingerprintSHA256:  testSHA256,
		RawBase64:          base64.StdEncoding.EncodeToString(testDER),
		SubjectCommonNames: []string{"www.example.com"},
		SignatureAlgorithm: "RSA-SHA256",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, gw *stubGateway, auditor *recordingAuditor) *gin.Engine {
	t.Helper()
	d := query.NewDispatcher(gw, query.Options{
		CorpDomainSuffix: cfg.Corp.DomainSuffix,
		Timeout:          time.Second,
	})
	deps := Dependencies{Dispatcher: d, Health: stubHealth{}}
	if auditor != nil {
		deps.Auditor = auditor
	}
	return NewServer(cfg, deps).Router()
}

func get(t *testing.T, router http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["message"]
}

func TestMissingParameterIsBadRequest(t *testing.T) {
	gw := &stubGateway{}
	router := newTestServer(t, testConfig(), gw, nil)

	tests := []struct {
		target string
		msg    string
	}{
		{"/v1/ct/org", "Missing org parameter"},
		{"/v1/ct/org?count=true", "Missing org parameter"},
		{"/v1/ct/zone?zone=", "Missing zone parameter"},
		{"/v1/ct/common_name", "Missing cn parameter"},
		{"/v1/ct/ip", "Missing ip parameter"},
		{"/v1/ct/fingerprint/abc123", "Invalid fingerprint value"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(t, router, tt.target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.msg, message(t, w))
		})
	}

	assert.Zero(t, gw.calls)
}

func TestUnparsableFlagIsBadRequest(t *testing.T) {
	gw := &stubGateway{}
	router := newTestServer(t, testConfig(), gw, nil)

	w := get(t, router, "/v1/ct/org?org=Example&count=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid query parameters", message(t, w))
	assert.Zero(t, gw.calls)
}

func TestEmptyResultIsNotFound(t *testing.T) {
	router := newTestServer(t, testConfig(), &stubGateway{}, nil)

	w := get(t, router, "/v1/ct/zone?zone=example.com")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No certificates found", message(t, w))

	w = get(t, router, "/v1/ct/issuers")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Signature algorithm lists by default
	w = get(t, router, "/v1/ct/signature_algorithm")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No certificates found", message(t, w))

	w = get(t, router, "/v1/ct/id/"+testID)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Certificate not found", message(t, w))
}

func TestCountBody(t *testing.T) {
	gw := &stubGateway{count: 42}
	router := newTestServer(t, testConfig(), gw, nil)

	for _, target := range []string{
		"/v1/ct/org?org=Example%20Inc&count=true",
		"/v1/ct/zone?zone=example.com&count=1",
		"/v1/ct/fingerprint/" + testSHA1 + "?count=t",
		"/v1/ct/issuers/R3?count=true",
		"/v1/ct/corp_certs?count=true",
		"/v1/ct/signature_algorithm?count=true",
		"/v1/ct/corp_count",
		"/v1/ct/total_count",
	} {
		w := get(t, router, target)
		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.JSONEq(t, `{"count":42}`, w.Body.String(), target)
	}
}

func TestZeroCountIsSuccess(t *testing.T) {
	router := newTestServer(t, testConfig(), &stubGateway{}, nil)

	w := get(t, router, "/v1/ct/total_count")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0}`, w.Body.String())
}

func TestListAndRecordBodies(t *testing.T) {
	gw := &stubGateway{
		record:  sampleRecord(),
		records: []*models.CertificateRecord{sampleRecord()},
		issuers: []string{"E1", "R3"},
	}
	router := newTestServer(t, testConfig(), gw, nil)

	w := get(t, router, "/v1/ct/common_name?cn=www.example.com")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.CertificateRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, testID, list[0].ID)

	w = get(t, router, "/v1/ct/id/"+testID)
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, testID, rec["_id"])

	w = get(t, router, "/v1/ct/issuers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["E1","R3"]`, w.Body.String())
}

func TestQueryIsIdempotent(t *testing.T) {
	gw := &stubGateway{records: []*models.CertificateRecord{sampleRecord()}}
	router := newTestServer(t, testConfig(), gw, nil)

	first := get(t, router, "/v1/ct/org?org=Example%20Inc")
	second := get(t, router, "/v1/ct/org?org=Example%20Inc")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestQueryFilters(t *testing.T) {
	gw := &stubGateway{records: []*models.CertificateRecord{sampleRecord()}}
	router := newTestServer(t, testConfig(), gw, nil)

	get(t, router, "/v1/ct/fingerprint/"+testSHA1)
	get(t, router, "/v1/ct/fingerprint/"+testSHA256)
	get(t, router, "/v1/ct/ip?ip=192.0.2.1")
	get(t, router, "/v1/ct/corp_certs?exclude_expired=true")
	get(t, router, "/v1/ct/signature_algorithm")
	get(t, router, "/v1/ct/signature_algorithm?algorithm=ECDSA-SHA256")
	get(t, router, "/v1/ct/issuers/Let's%20Encrypt")

	assert.Equal(t, []query.Filter{
		{Field: query.FieldSHA1, Value: testSHA1},
		{Field: query.FieldSHA256, Value: testSHA256},
		{Field: query.FieldName, Value: "192.0.2.1"},
		{Field: query.FieldCorporate, Value: "corp.example.com", ExcludeExpired: true},
		{Field: query.FieldSignatureAlgorithm, Value: "RSA-SHA1", ExcludeExpired: true},
		{Field: query.FieldSignatureAlgorithm, Value: "ECDSA-SHA256", ExcludeExpired: true},
		{Field: query.FieldIssuer, Value: "Let's Encrypt", ExcludeExpired: true},
	}, gw.filters)
}

func TestDownload(t *testing.T) {
	gw := &stubGateway{record: sampleRecord(), records: []*models.CertificateRecord{sampleRecord()}}
	auditor := &recordingAuditor{}
	router := newTestServer(t, testConfig(), gw, auditor)

	for _, id := range []string{testID, testSHA1, testSHA256} {
		w := get(t, router, "/v1/ct/download/"+id)
		require.Equal(t, http.StatusOK, w.Code, id)
		assert.Equal(t, testDER, w.Body.Bytes())
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename="+testID+".der", w.Header().Get("Content-Disposition"))
	}

	require.Len(t, auditor.logs, 3)
	assert.Equal(t, models.ActionCertDownload, auditor.logs[0].Action)
	assert.True(t, auditor.logs[0].Success)
}

func TestDownloadUnrecognizedID(t *testing.T) {
	gw := &stubGateway{}
	router := newTestServer(t, testConfig(), gw, nil)

	w := get(t, router, "/v1/ct/download/"+strings.Repeat("a", 39))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unrecognized ID", message(t, w))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Zero(t, gw.calls)
}

func TestDownloadCorruptPayload(t *testing.T) {
	rec := sampleRecord()
	rec.RawBase64 = "not//base64!"
	router := newTestServer(t, testConfig(), &stubGateway{record: rec}, nil)

	w := get(t, router, "/v1/ct/download/"+testID)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to decode certificate", message(t, w))
}

func TestTooManyResultsIsExplicit(t *testing.T) {
	router := newTestServer(t, testConfig(), &stubGateway{err: query.ErrTooManyResults}, nil)

	w := get(t, router, "/v1/ct/zone?zone=example.com")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Too many results, use count or narrow the query", message(t, w))
}

func TestStoreFailureHidesCause(t *testing.T) {
	router := newTestServer(t, testConfig(), &stubGateway{err: errors.New("database disk image is malformed")}, nil)

	w := get(t, router, "/v1/ct/org?org=Example")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Query failed", message(t, w))
	assert.NotContains(t, w.Body.String(), "malformed")
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeyHashes = []string{auth.HashToken(testKey)}
	auditor := &recordingAuditor{}
	router := newTestServer(t, cfg, &stubGateway{count: 7}, auditor)

	w := get(t, router, "/v1/ct/total_count")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key required", message(t, w))

	w = get(t, router, "/v1/ct/total_count", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid API key", message(t, w))

	w = get(t, router, "/v1/ct/total_count", "X-API-Key", testKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, router, "/v1/ct/total_count?api_key="+testKey)
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, auditor.logs, 1)
	assert.Equal(t, models.ActionAuthFailed, auditor.logs[0].Action)

	// Unversioned routes stay open
	w = get(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	cfg := testConfig()
	d := query.NewDispatcher(&stubGateway{}, query.Options{})

	router := NewServer(cfg, Dependencies{Dispatcher: d, Health: stubHealth{}}).Router()
	w := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	router = NewServer(cfg, Dependencies{Dispatcher: d, Health: stubHealth{err: errors.New("closed")}}).Router()
	w = get(t, router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestServer(t, cfg, &stubGateway{}, nil)
	get(t, router, "/v1/ct/total_count")

	w := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ctapi_http_requests_total")

	cfg.Metrics.Enabled = false
	router = newTestServer(t, cfg, &stubGateway{}, nil)
	w = get(t, router, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestServer(t, testConfig(), &stubGateway{}, nil)

	w := get(t, router, "/v1/ct/total_count", "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = get(t, router, "/v1/ct/total_count")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 60
	cfg.RateLimit.Burst = 2
	router := newTestServer(t, cfg, &stubGateway{}, nil)

	assert.Equal(t, http.StatusOK, get(t, router, "/v1/ct/total_count").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/v1/ct/total_count").Code)

	w := get(t, router, "/v1/ct/total_count")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", message(t, w))
}
