package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mswebapp/ml"
)

func writeCSV(t *testing.T, column2 func(i int) float64, target func(x1, x2 float64) float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("x1,x2,y\n")
	for i := 0; i < 20; i++ {
		x1, x2 := float64(i), column2(i)
		fmt.Fprintf(&b, "%v,%v,%v\n", x1, x2, target(x1, x2))
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func mixed(i int) float64 { return float64((i * 7) % 5) }

func TestTrainLinearRegression(t *testing.T) {
	data := writeCSV(t, mixed, func(x1, x2 float64) float64 { return 1 + 2*x1 + 3*x2 })
	out := filepath.Join(t.TempDir(), "models", "lr.json")

	err := train(trainOptions{dataPath: data, modelType: ml.TypeLinearRegression, modelPath: out, testRatio: 0.2, seed: 1}, zap.NewNop())
	require.NoError(t, err)

	model, err := ml.LoadModel(ml.TypeLinearRegression, out)
	require.NoError(t, err)
	predictions, err := model.Predict([][]float64{{1, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 6, predictions[0], 1e-6)
}

func TestTrainDecisionTree(t *testing.T) {
	// a constant second column leaves x1 as the only usable split
	data := writeCSV(t, func(int) float64 { return 0 }, func(x1, x2 float64) float64 {
		if x1 < 10 {
			return 0
		}
		return 1
	})
	out := filepath.Join(t.TempDir(), "dt.json")

	err := train(trainOptions{dataPath: data, modelType: ml.TypeDecisionTree, modelPath: out, maxDepth: 4, testRatio: 0.2, seed: 3}, zap.NewNop())
	require.NoError(t, err)

	model, err := ml.LoadModel(ml.TypeDecisionTree, out)
	require.NoError(t, err)
	predictions, err := model.Predict([][]float64{{2, 0}, {18, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, predictions)
}

func TestTrainUnsupportedType(t *testing.T) {
	data := writeCSV(t, mixed, func(x1, x2 float64) float64 { return x1 })
	err := train(trainOptions{dataPath: data, modelType: "svm", modelPath: filepath.Join(t.TempDir(), "m.json")}, zap.NewNop())
	assert.ErrorIs(t, err, ml.ErrUnsupportedModel)
}
