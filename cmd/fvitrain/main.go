// Command fvitrain fits a value function to a parquet dataset of
// (features, target) rows and reports its error on a held-out split.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logrusorgru/aurora"

	"github.com/brensch/fvi/dataset"
	"github.com/brensch/fvi/logging"
	"github.com/brensch/fvi/onnxvalue"
	"github.com/brensch/fvi/runlog"
	"github.com/brensch/fvi/vfa"
)

func main() {
	in := flag.String("in", getEnvOrDefault("FVI_IN", ""), "Parquet file of training rows")
	model := flag.String("model", getEnvOrDefault("FVI_MODEL", "knn"), "Model: knn or ridge")
	k := flag.Int("k", getEnvIntOrDefault("FVI_K", 1), "kNN: neighbour count")
	weighting := flag.String("weighting", getEnvOrDefault("FVI_WEIGHTING", "similarity"), "kNN: uniform, inverse or similarity")
	index := flag.String("index", getEnvOrDefault("FVI_INDEX", "kdtree"), "kNN: kdtree or linear")
	normalize := flag.Bool("normalize", getEnvBoolOrDefault("FVI_NORMALIZE", true), "kNN: rescale attributes to [0,1]")
	lambda := flag.Float64("lambda", getEnvFloatOrDefault("FVI_LAMBDA", 1e-3), "ridge: L2 penalty")
	holdout := flag.Float64("holdout", getEnvFloatOrDefault("FVI_HOLDOUT", 0.2), "Fraction of rows held out for evaluation")
	seed := flag.Int("seed", getEnvIntOrDefault("FVI_SEED", 1), "Shuffle seed")
	onnxModel := flag.String("onnx-model", getEnvOrDefault("ONNX_VALUE_MODEL", ""), "If set, score this ONNX value network on every row instead of training")
	onnxSessions := flag.Int("onnx-sessions", getEnvIntOrDefault("ONNX_SESSIONS", 1), "ONNX Runtime sessions to run in parallel")
	onnxBatchSize := flag.Int("onnx-batch-size", onnxvalue.DefaultBatchSize, "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", onnxvalue.DefaultBatchTimeout, "Max time to wait for filling an ONNX batch")
	runlogPath := flag.String("runlog", getEnvOrDefault("FVI_RUNLOG", "fvi-runs.db"), "SQLite run ledger (empty disables)")
	label := flag.String("label", getEnvOrDefault("FVI_LABEL", "fvitrain"), "Label stored with the run")
	logFormat := flag.String("log-format", getEnvOrDefault("LOG_FORMAT", "pretty"), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(os.Stderr, *logFormat, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if *in == "" {
		slog.Error("-in is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := dataset.ReadParquet(*in)
	if err != nil {
		slog.Error("failed to read dataset", "path", *in, "error", err)
		os.Exit(1)
	}
	slog.Info("loaded dataset", "path", *in, "rows", ds.Len(), "attributes", ds.Schema().Attributes)

	if *onnxModel != "" {
		pool, err := onnxvalue.NewPool(*onnxModel, *onnxSessions, onnxvalue.Config{
			Attributes:   ds.Schema().Attributes,
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
		})
		if err != nil {
			slog.Error("failed to load value network", "path", *onnxModel, "error", err)
			os.Exit(1)
		}
		summary, err := evaluatePretrained(ctx, ds, pool)
		pool.Close()
		if err != nil {
			fmt.Println(aurora.Red(fmt.Sprintf("evaluation failed: %v", err)))
			os.Exit(1)
		}
		printSummary(summary)
		return
	}

	opts := []vfa.Option{vfa.WithLogger(logger.With("component", "trainer"))}
	var store *runlog.Store
	if *runlogPath != "" {
		store, err = runlog.Open(*runlogPath)
		if err != nil {
			slog.Error("failed to open run ledger", "path", *runlogPath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts, vfa.WithObserver(store.Observer(*label, logger)))
	}

	cfg := trainConfig{
		Model:     *model,
		K:         *k,
		Weighting: *weighting,
		Index:     *index,
		Normalize: *normalize,
		Lambda:    *lambda,
		Holdout:   *holdout,
		Seed:      uint64(*seed),
	}
	summary, err := trainAndEvaluate(ctx, ds, cfg, opts...)
	if err != nil {
		fmt.Println(aurora.Red(fmt.Sprintf("training failed: %v", err)))
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}

	printSummary(summary)
	if store != nil {
		printRecent(store)
	}
}

func printSummary(s trainSummary) {
	fmt.Println(aurora.Bold(aurora.Cyan(s.Model)))
	fmt.Printf("  rows        %s train / %s holdout\n", aurora.Green(s.TrainRows), aurora.Green(s.HoldoutRows))
	fmt.Printf("  attributes  %s\n", aurora.Green(s.Attributes))
	if !math.IsNaN(s.TrainRMSE) {
		fmt.Printf("  train RMSE  %s\n", aurora.Blue(fmt.Sprintf("%.6f", s.TrainRMSE)))
	}
	if math.IsNaN(s.HoldoutRMSE) {
		fmt.Printf("  holdout     %s\n", aurora.Yellow("none"))
		return
	}
	fmt.Printf("  hold RMSE   %s\n", aurora.Blue(fmt.Sprintf("%.6f", s.HoldoutRMSE)))
}

func printRecent(store *runlog.Store) {
	runs, err := store.Recent(5)
	if err != nil {
		slog.Warn("could not list recent runs", "error", err)
		return
	}
	fmt.Println(aurora.Bold("recent runs"))
	for _, r := range runs {
		status := aurora.Green("ok")
		if r.Error != "" {
			status = aurora.Red("failed")
		}
		fmt.Printf("  %s  %-24s %6d rows  %8s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Model, r.Instances, r.Duration.Round(time.Millisecond), status)
	}
}
