package httpapi

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contrava/internal/citation"
	"contrava/internal/citation/payref"
	"contrava/internal/citation/service"
	"contrava/internal/citation/store/memory"
	"contrava/pkg/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	records := memory.NewInMemory()
	svc, err := citation.NewService(records, service.WithPayRefStore(payref.NewInMemory()))
	require.NoError(t, err)
	lister, err := citation.NewQueryService(records)
	require.NoError(t, err)
	summarizer, err := citation.NewStatsService(records)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewRouter(Deps{
		Citation: citation.NewHandler(svc, lister, summarizer, logger, nil),
		Logger:   logger,
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestHealthzReportsBackendFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	records := memory.NewInMemory()
	svc, err := citation.NewService(records)
	require.NoError(t, err)
	lister, err := citation.NewQueryService(records)
	require.NoError(t, err)
	summarizer, err := citation.NewStatsService(records)
	require.NoError(t, err)

	router := NewRouter(Deps{
		Citation: citation.NewHandler(svc, lister, summarizer, logger, nil),
		Logger:   logger,
		Health:   func(r *http.Request) error { return assert.AnError },
	})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestMetricsEndpointMounted(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/healthz")
	req.Header.Set("X-Request-ID", "req-42")
	rr := testutil.DoRequest(router, req)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), "generated when absent")
}

func TestNonJSONBodyRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader("pv=PV-1"))
	req.Header.Set("Content-Type", "text/plain")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}
