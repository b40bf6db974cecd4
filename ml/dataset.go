package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Dataset is a feature matrix with one target per row.
type Dataset struct {
	FeatureNames []string
	TargetName   string
	Features     [][]float64
	Targets      []float64
}

func (d *Dataset) Len() int {
	return len(d.Targets)
}

// LoadCSV reads a CSV file whose first row is a header. Every column but the
// last is a feature; the last column is the target.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, errors.New("csv needs at least one feature column and a target column")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	dataset := &Dataset{
		FeatureNames: header[:len(header)-1],
		TargetName:   header[len(header)-1],
	}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			values[i] = v
		}
		dataset.Features = append(dataset.Features, values[:len(values)-1])
		dataset.Targets = append(dataset.Targets, values[len(values)-1])
	}
	if dataset.Len() == 0 {
		return nil, errors.New("csv has no data rows")
	}
	return dataset, nil
}

// Labels converts targets to integer class labels. Non-integral targets are
// rejected.
func (d *Dataset) Labels() ([]int, error) {
	labels := make([]int, len(d.Targets))
	for i, t := range d.Targets {
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("row %d: target %v is not a class label", i, t)
		}
		labels[i] = int(t)
	}
	return labels, nil
}

// Split shuffles rows with the given seed and returns train and test sets.
// A ratio outside (0, 1) falls back to 0.2.
func (d *Dataset) Split(testRatio float64, seed int64) (train, test *Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(d.Len())

	train = &Dataset{FeatureNames: d.FeatureNames, TargetName: d.TargetName}
	test = &Dataset{FeatureNames: d.FeatureNames, TargetName: d.TargetName}
	split := int(math.Round(float64(d.Len()) * (1 - testRatio)))
	for i, idx := range indices {
		target := train
		if i >= split {
			target = test
		}
		target.Features = append(target.Features, d.Features[idx])
		target.Targets = append(target.Targets, d.Targets[idx])
	}
	return train, test
}
