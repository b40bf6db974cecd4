package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mswebapp/logger"
	"mswebapp/ml"
)

type trainOptions struct {
	dataPath  string
	modelType string
	modelPath string
	maxDepth  int
	testRatio float64
	seed      int64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := trainOptions{}
	cmd := &cobra.Command{
		Use:          "train_model",
		Short:        "Train a model from a CSV file and write the model artifact",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logger.Options{Level: "info", Debug: true})
			if err != nil {
				return err
			}
			defer log.Sync()
			return train(opts, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dataPath, "data", "", "CSV training data; last column is the target")
	flags.StringVar(&opts.modelType, "model_type", ml.TypeLinearRegression, "linear_regression or decision_tree")
	flags.StringVar(&opts.modelPath, "model_path", "./models/msmodel.json", "model output path")
	flags.IntVar(&opts.maxDepth, "max_depth", 10, "max tree depth (decision_tree only)")
	flags.Float64Var(&opts.testRatio, "test_ratio", 0.2, "fraction of rows held out for evaluation")
	flags.Int64Var(&opts.seed, "seed", 1, "shuffle seed for the train/test split")
	cmd.MarkFlagRequired("data")
	return cmd
}

func train(opts trainOptions, log *zap.Logger) error {
	dataset, err := ml.LoadCSV(opts.dataPath)
	if err != nil {
		return fmt.Errorf("load training data: %w", err)
	}
	trainSet, testSet := dataset.Split(opts.testRatio, opts.seed)
	log.Info("dataset loaded",
		zap.Strings("features", dataset.FeatureNames),
		zap.String("target", dataset.TargetName),
		zap.Int("train_rows", trainSet.Len()),
		zap.Int("test_rows", testSet.Len()),
	)

	var model ml.Model
	var score func(predicted, actual []float64) (float64, error)
	var metric string
	switch opts.modelType {
	case ml.TypeLinearRegression:
		lr := &ml.LinearRegression{FeatureNames: dataset.FeatureNames}
		if err := lr.Fit(trainSet.Features, trainSet.Targets); err != nil {
			return fmt.Errorf("fit linear regression: %w", err)
		}
		model, score, metric = lr, ml.RSquared, "r2"
	case ml.TypeDecisionTree:
		labels, err := trainSet.Labels()
		if err != nil {
			return err
		}
		dt := &ml.DecisionTree{}
		if err := dt.Train(trainSet.Features, labels, opts.maxDepth); err != nil {
			return fmt.Errorf("train decision tree: %w", err)
		}
		model, score, metric = dt, ml.Accuracy, "accuracy"
	default:
		return fmt.Errorf("%w: %q", ml.ErrUnsupportedModel, opts.modelType)
	}

	if testSet.Len() > 0 {
		predicted, err := model.Predict(testSet.Features)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		value, err := score(predicted, testSet.Targets)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		log.Info("model evaluated", zap.String("metric", metric), zap.Float64("value", value))
	} else {
		log.Warn("test split is empty, skipping evaluation")
	}

	if opts.modelPath == "" {
		return errors.New("model path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.modelPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := model.Save(opts.modelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	log.Info("model saved", zap.String("path", opts.modelPath), zap.String("type", opts.modelType))
	return nil
}
