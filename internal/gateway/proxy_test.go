package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(name + " " + r.Method + " " + r.URL.RequestURI()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProxy(t *testing.T, orderURL string, userURLs ...string) http.Handler {
	t.Helper()
	p, err := NewProxy(slog.New(slog.DiscardHandler), &http.Client{}, orderURL, userURLs)
	require.NoError(t, err)
	return p.Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewProxyRejectsMissingUpstreams(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	_, err := NewProxy(log, &http.Client{}, "http://orders:8091", nil)
	assert.Error(t, err, "an empty user instance list must fail startup, not panic per request")

	_, err = NewProxy(log, &http.Client{}, "", []string{"http://users:8081"})
	assert.Error(t, err)
}

func TestProxyRoutesOrdersToOrderService(t *testing.T) {
	orders := upstream(t, "orders")
	users := upstream(t, "users")
	h := newTestProxy(t, orders.URL, users.URL)

	rec := get(t, h, "/orders/abc?verbose=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders GET /orders/abc?verbose=1", rec.Body.String())
	assert.Equal(t, "orders", rec.Header().Get("X-Upstream"))
}

func TestProxyRoundRobinsUserInstances(t *testing.T) {
	orders := upstream(t, "orders")
	userA := upstream(t, "user-a")
	userB := upstream(t, "user-b")
	h := newTestProxy(t, orders.URL, userA.URL, userB.URL)

	hits := make(map[string]int)
	for i := 0; i < 4; i++ {
		rec := get(t, h, "/users/u1")
		require.Equal(t, http.StatusOK, rec.Code)
		hits[rec.Header().Get("X-Upstream")]++
	}
	assert.Equal(t, 2, hits["user-a"])
	assert.Equal(t, 2, hits["user-b"])
}

func TestProxyForwardsRequestBodyAndHeaders(t *testing.T) {
	var gotBody string
	var gotHeader string
	orders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(orders.Close)
	users := upstream(t, "users")
	h := newTestProxy(t, orders.URL, users.URL)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"amount":5}`))
	req.Header.Set("traceparent", "00-abc-def-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"amount":5}`, gotBody)
	assert.Equal(t, "00-abc-def-01", gotHeader)
}

func TestProxyReturnsBadGatewayOnDeadUpstream(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()
	users := upstream(t, "users")
	h := newTestProxy(t, dead.URL, users.URL)

	rec := get(t, h, "/orders/abc")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
