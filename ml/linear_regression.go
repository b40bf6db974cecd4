package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const singularTolerance = 1e-12

// LinearRegression is an ordinary least squares model:
// y = Intercept + sum(Coefficients[i] * x[i]).
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

// Fit solves the normal equations (AᵀA)β = Aᵀy where A is the feature matrix
// with a leading column of ones.
func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("samples have no features")
	}
	if len(features) < width+1 {
		return fmt.Errorf("need at least %d samples, got %d", width+1, len(features))
	}

	n := width + 1
	ata := make([][]float64, n)
	for i := range ata {
		ata[i] = make([]float64, n)
	}
	aty := make([]float64, n)

	row := make([]float64, n)
	for s, sample := range features {
		if len(sample) != width {
			return fmt.Errorf("sample %d has %d features, want %d", s, len(sample), width)
		}
		row[0] = 1
		copy(row[1:], sample)
		for i := 0; i < n; i++ {
			aty[i] += row[i] * targets[s]
			for j := 0; j < n; j++ {
				ata[i][j] += row[i] * row[j]
			}
		}
	}

	beta, err := solve(ata, aty)
	if err != nil {
		return err
	}
	lr.Intercept = beta[0]
	lr.Coefficients = beta[1:]
	return nil
}

// NumFeatures is the sample width the model expects.
func (lr *LinearRegression) NumFeatures() int {
	return len(lr.Coefficients)
}

func (lr *LinearRegression) Predict(samples [][]float64) ([]float64, error) {
	if len(lr.Coefficients) == 0 {
		return nil, errors.New("model not trained")
	}
	out := make([]float64, len(samples))
	for i, sample := range samples {
		if len(sample) != len(lr.Coefficients) {
			return nil, fmt.Errorf("sample %d has %d features, model expects %d", i, len(sample), len(lr.Coefficients))
		}
		y := lr.Intercept
		for j, x := range sample {
			y += lr.Coefficients[j] * x
		}
		out[i] = y
	}
	return out, nil
}

func (lr *LinearRegression) Save(path string) error {
	if len(lr.Coefficients) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.MarshalIndent(lr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (lr *LinearRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded LinearRegression
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Coefficients) == 0 {
		return errors.New("model has no coefficients")
	}
	if len(loaded.FeatureNames) != 0 && len(loaded.FeatureNames) != len(loaded.Coefficients) {
		return fmt.Errorf("%d feature names for %d coefficients", len(loaded.FeatureNames), len(loaded.Coefficients))
	}
	*lr = loaded
	return nil
}

// solve runs Gaussian elimination with partial pivoting. a and b are
// overwritten.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < singularTolerance {
			return nil, errors.New("singular feature matrix: features are collinear or constant")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}
