package ml

import (
	"errors"
	"fmt"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

func LoadModel(modelType, path string) (Model, error) {
	var model Model
	switch modelType {
	case TypeLinearRegression:
		model = &LinearRegression{}
	case TypeDecisionTree:
		model = &DecisionTree{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s model from %s: %w", modelType, path, err)
	}
	return model, nil
}
