package ml

import "errors"

// RSquared returns the coefficient of determination of predicted against
// actual. A constant actual series scores 1 only on a perfect fit.
func RSquared(predicted, actual []float64) (float64, error) {
	if len(predicted) != len(actual) {
		return 0, errors.New("predicted and actual size mismatch")
	}
	if len(actual) == 0 {
		return 0, errors.New("no samples")
	}
	var mean float64
	for _, y := range actual {
		mean += y
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i, y := range actual {
		ssRes += (y - predicted[i]) * (y - predicted[i])
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}

func Accuracy(predicted, actual []float64) (float64, error) {
	if len(predicted) != len(actual) {
		return 0, errors.New("predicted and actual size mismatch")
	}
	if len(actual) == 0 {
		return 0, errors.New("no samples")
	}
	var correct int
	for i := range actual {
		if predicted[i] == actual[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual)), nil
}
