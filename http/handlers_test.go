package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mswebapp/ml"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	pages, err := LoadTemplates("", nil)
	require.NoError(t, err)
	return NewHandler(ServerConfig{Timeout: 5 * time.Second, AllowedOrigins: []string{"*"}, Templates: pages})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	SetModel(&ml.LinearRegression{Coefficients: []float64{1, 1}}, ml.TypeLinearRegression)
	defer SetModel(nil, "")

	req, err := http.NewRequest("GET", "/api/health", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	http.HandlerFunc(handleHealth).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, ml.TypeLinearRegression, payload["model"])
}

func TestHealthHandlerWithoutModel(t *testing.T) {
	SetModel(nil, "")

	rr := serve(http.HandlerFunc(handleHealth), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStaticPages(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/", "Hello, World!"},
		{http.MethodPost, "/", "Hello, World!"},
		{http.MethodGet, "/hi/Ada", "Hello Ada!"},
		{http.MethodGet, "/predict", `name="x1"`},
		{http.MethodGet, "/bye", "Goodbye!"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := serve(h, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tc.want)
		})
	}
}

func TestHelloEscapesAndNormalizesName(t *testing.T) {
	h := newTestHandler(t)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/hi/%3Cb%3Ebold", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello &lt;b&gt;bold!")

	// "e" followed by a combining acute accent is composed into one rune
	w = serve(h, httptest.NewRequest(http.MethodGet, "/hi/Jose%CC%81", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello José!")
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t)
	w := serve(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponseHeaders(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/bye", nil)
	req.Header.Set("Origin", "http://example.com")

	w := serve(h, req)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "http://example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
