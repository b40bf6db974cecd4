package ml

// Supported values for the model type passed to LoadModel.
const (
	TypeLinearRegression = "linear_regression"
	TypeDecisionTree     = "decision_tree"
)

// Model is a trained predictor read from disk. Predict takes a batch of
// samples and returns one output per sample. A loaded model is never
// mutated, so Predict is safe for concurrent use. NumFeatures is the
// sample width Predict accepts.
type Model interface {
	Predict(samples [][]float64) ([]float64, error)
	NumFeatures() int
	Save(path string) error
	Load(path string) error
}
