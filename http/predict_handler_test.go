package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mswebapp/ml"
	"mswebapp/monitoring"
)

type fakeModel struct {
	predictions []float64
	err         error
	got         [][]float64
}

func (f *fakeModel) Predict(samples [][]float64) ([]float64, error) {
	f.got = samples
	return f.predictions, f.err
}

func (f *fakeModel) NumFeatures() int  { return len(FeatureNames) }
func (f *fakeModel) Save(string) error { return nil }
func (f *fakeModel) Load(string) error { return nil }

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/predicted", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandlePredicted(t *testing.T) {
	h := newTestHandler(t)
	model := &fakeModel{predictions: []float64{42}}
	SetModel(model, "fake")
	defer SetModel(nil, "")

	w := serve(h, postForm(url.Values{"x1": {"1.5"}, "x2": {"2"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [][]float64{{1.5, 2}}, model.got)
	assert.Contains(t, w.Body.String(), "[[1.5, 2]]")
	assert.Contains(t, w.Body.String(), "[42]")
}

func TestHandlePredictedMultipart(t *testing.T) {
	h := newTestHandler(t)
	model := &fakeModel{predictions: []float64{7}}
	SetModel(model, "fake")
	defer SetModel(nil, "")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("x1", "3"))
	require.NoError(t, form.WriteField("x2", "-4"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/predicted", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w := serve(h, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [][]float64{{3, -4}}, model.got)
}

func TestHandlePredictedRemovesUploadedFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	h := newTestHandler(t)
	SetModel(&fakeModel{predictions: []float64{1}}, "fake")
	defer SetModel(nil, "")

	for i := 0; i < 3; i++ {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		require.NoError(t, form.WriteField("x1", "1"))
		require.NoError(t, form.WriteField("x2", "2"))
		part, err := form.CreateFormFile("attachment", "blob.bin")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("a"), 200<<10))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/predicted", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		require.Equal(t, http.StatusOK, serve(h, req).Code)
	}

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandlePredictedWithLinearModel(t *testing.T) {
	h := newTestHandler(t)
	SetModel(&ml.LinearRegression{Coefficients: []float64{2, 0.5}, Intercept: 1}, ml.TypeLinearRegression)
	defer SetModel(nil, "")

	w := serve(h, postForm(url.Values{"x1": {"3"}, "x2": {"4"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "[9]")
}

func TestHandlePredictedErrors(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		name  string
		model ml.Model
		req   *http.Request
		code  int
	}{
		{"missing field", &fakeModel{}, postForm(url.Values{"x1": {"1"}}), http.StatusBadRequest},
		{"not a number", &fakeModel{}, postForm(url.Values{"x1": {"abc"}, "x2": {"1"}}), http.StatusBadRequest},
		{"not finite", &fakeModel{}, postForm(url.Values{"x1": {"NaN"}, "x2": {"1"}}), http.StatusBadRequest},
		{"model error", &fakeModel{err: errors.New("boom")}, postForm(url.Values{"x1": {"1"}, "x2": {"2"}}), http.StatusInternalServerError},
		{"no model", nil, postForm(url.Values{"x1": {"1"}, "x2": {"2"}}), http.StatusServiceUnavailable},
		{"GET", &fakeModel{}, httptest.NewRequest(http.MethodGet, "/predicted", nil), http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			SetModel(tc.model, "fake")
			defer SetModel(nil, "")

			w := serve(h, tc.req)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestPredictionMetrics(t *testing.T) {
	h := newTestHandler(t)
	SetModel(&fakeModel{predictions: []float64{1}}, "fake")
	defer SetModel(nil, "")

	require.Equal(t, http.StatusOK, serve(h, postForm(url.Values{"x1": {"1"}, "x2": {"2"}})).Code)
	require.Equal(t, http.StatusBadRequest, serve(h, postForm(url.Values{"x1": {"1"}})).Code)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `mswebapp_predictions_total{result="ok"} 1`)
	assert.Contains(t, body, `mswebapp_predictions_total{result="bad_input"} 1`)
	assert.Contains(t, body, `route="POST /predicted"`)
}

func TestHandlersKeepTheirOwnMetrics(t *testing.T) {
	first := monitoring.NewMetrics()
	second := monitoring.NewMetrics()
	h1 := NewHandler(ServerConfig{Timeout: 5 * time.Second, Metrics: first})
	h2 := NewHandler(ServerConfig{Timeout: 5 * time.Second, Metrics: second})
	SetModel(&fakeModel{predictions: []float64{1}}, "fake")
	defer SetModel(nil, "")

	require.Equal(t, http.StatusOK, serve(h1, postForm(url.Values{"x1": {"1"}, "x2": {"2"}})).Code)

	body := serve(h1, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String()
	assert.Contains(t, body, `mswebapp_predictions_total{result="ok"} 1`)
	body = serve(h2, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String()
	assert.NotContains(t, body, "mswebapp_predictions_total{")
}

func TestHandlePredictedPanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewHandler(ServerConfig{Timeout: 5 * time.Second, Logger: zap.New(core)})
	SetModel(panickingModel{&fakeModel{}}, "fake")
	defer SetModel(nil, "")

	w := serve(h, postForm(url.Values{"x1": {"1"}, "x2": {"2"}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error\n", w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

type panickingModel struct{ *fakeModel }

func (panickingModel) Predict([][]float64) ([]float64, error) {
	panic("model exploded")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "[[1, 2.5]]", formatBatch([][]string{{"1", "2.5"}}))
	assert.Equal(t, "[0.1, 3]", formatValues([]float64{0.1, 3}))
}
