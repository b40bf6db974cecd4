package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"mswebapp/ml"
	"mswebapp/monitoring"
)

const maxFormMemory = 32 << 10

// FeatureNames are the form fields read by /predicted, in model column order.
var FeatureNames = []string{"x1", "x2"}

var (
	modelMu   sync.RWMutex
	model     ml.Model
	modelType string
)

// SetModel installs the model used by /predicted. It is called once at
// startup; nil unloads it.
func SetModel(m ml.Model, typ string) {
	modelMu.Lock()
	defer modelMu.Unlock()
	model = m
	modelType = typ
}

func currentModel() (ml.Model, string) {
	modelMu.RLock()
	defer modelMu.RUnlock()
	return model, modelType
}

// handlers holds what the page routes of one mux share. Only the model is
// process-wide.
type handlers struct {
	pages   *Templates
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

type startPage struct {
	Name string
}

type predictedPage struct {
	Content    string
	Prediction string
	Samples    [][]float64
	Values     []float64
}

func RegisterHandlers(mux *http.ServeMux, pages *Templates, logger *zap.Logger, metrics *monitoring.Metrics) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{pages: pages, logger: logger, metrics: metrics}

	mux.HandleFunc("GET /api/health", handleHealth)

	mux.HandleFunc("GET /{$}", h.renderPage(PageStart, startPage{}))
	mux.HandleFunc("POST /{$}", h.renderPage(PageStart, startPage{}))
	mux.HandleFunc("GET /hi/{name}", h.handleHello)
	mux.HandleFunc("GET /predict", h.renderPage(PagePrediction, nil))
	mux.HandleFunc("POST /predicted", h.handlePredicted)
	mux.HandleFunc("GET /bye", h.renderPage(PageBye, nil))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	m, typ := currentModel()
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "no model loaded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "model": typ})
}

func (h *handlers) renderPage(name string, data interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, name, data)
	}
}

func (h *handlers) handleHello(w http.ResponseWriter, r *http.Request) {
	name := norm.NFC.String(r.PathValue("name"))
	h.render(w, r, PageStart, startPage{Name: name})
}

func (h *handlers) handlePredicted(w http.ResponseWriter, r *http.Request) {
	m, _ := currentModel()
	if m == nil {
		h.metrics.ObservePrediction(monitoring.ResultNoModel)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		return
	}

	raw, sample, err := readSample(r)
	if err != nil {
		h.metrics.ObservePrediction(monitoring.ResultBadInput)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	samples := [][]float64{sample}
	predictions, err := m.Predict(samples)
	if err != nil {
		h.metrics.ObservePrediction(monitoring.ResultError)
		h.logger.Error("predict failed", zap.String("request_id", GetRequestID(r.Context())),
			zap.Float64s("sample", sample), zap.Error(err))
		http.Error(w, "prediction failed", http.StatusInternalServerError)
		return
	}
	h.metrics.ObservePrediction(monitoring.ResultOK)
	h.logger.Debug("prediction", zap.Float64s("sample", sample), zap.Float64s("prediction", predictions))

	h.render(w, r, PagePredicted, predictedPage{
		Content:    formatBatch([][]string{raw}),
		Prediction: formatValues(predictions),
		Samples:    samples,
		Values:     predictions,
	})
}

// readSample returns the submitted feature values as typed and as numbers.
// Middleware hands handlers a copy of the request, so the server never sees
// this MultipartForm; spilled file parts are removed here.
func readSample(r *http.Request) ([]string, []float64, error) {
	err := r.ParseMultipartForm(maxFormMemory)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, nil, fmt.Errorf("invalid form: %w", err)
	}

	raw := make([]string, len(FeatureNames))
	values := make([]float64, len(FeatureNames))
	for i, field := range FeatureNames {
		v, ok := r.PostForm[field]
		if !ok || len(v) == 0 {
			return nil, nil, fmt.Errorf("missing form field %s", field)
		}
		raw[i] = v[0]
		f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil, fmt.Errorf("form field %s must be a number, got %q", field, v[0])
		}
		values[i] = f
	}
	return raw, values, nil
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	if err := h.pages.Render(w, name, data); err != nil {
		h.logger.Error("render failed", zap.String("request_id", GetRequestID(r.Context())),
			zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// formatBatch renders rows the way the form values were submitted: [[1, 2]].
func formatBatch(rows [][]string) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = "[" + strings.Join(row, ", ") + "]"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
