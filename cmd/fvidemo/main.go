// Command fvidemo runs fitted value iteration on a continuous 1-D corridor
// with a k-nearest-neighbour value function.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/fvi/dataset"
	"github.com/brensch/fvi/logging"
	"github.com/brensch/fvi/runlog"
	"github.com/brensch/fvi/vfa"
)

func main() {
	samples := flag.Int("samples", getEnvIntOrDefault("FVI_SAMPLES", 100), "Number of evenly spaced sample states in [0, 1)")
	step := flag.Float64("step", getEnvFloatOrDefault("FVI_STEP", 0.1), "Distance moved per action")
	gamma := flag.Float64("gamma", getEnvFloatOrDefault("FVI_GAMMA", 0.9), "Discount factor")
	iterations := flag.Int("iterations", getEnvIntOrDefault("FVI_ITERATIONS", 50), "Maximum number of value iterations")
	tolerance := flag.Float64("tolerance", getEnvFloatOrDefault("FVI_TOLERANCE", 1e-6), "Stop once no target changes by more than this")
	k := flag.Int("k", getEnvIntOrDefault("FVI_K", 1), "Neighbours used by the value function")
	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", ""), "If set, write the final (state, target) tuples as a parquet batch here")
	plotPath := flag.String("plot", getEnvOrDefault("FVI_PLOT", ""), "If set, write an HTML plot of the learned value function here")
	runlogPath := flag.String("runlog", getEnvOrDefault("FVI_RUNLOG", ""), "If set, record every training run in this SQLite database")
	useTUI := flag.Bool("tui", getEnvBoolOrDefault("FVI_TUI", false), "Show a progress view instead of log lines")
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

	if *samples < 1 || *iterations < 1 || *step <= 0 || *gamma < 0 || *gamma >= 1 {
		slog.Error("invalid parameters", "samples", *samples, "iterations", *iterations, "step", *step, "gamma", *gamma)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Per-train log lines would tear the progress view.
	runLogger := logger
	if *useTUI {
		runLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	trainerOpts := []vfa.Option{vfa.WithLogger(runLogger.With("component", "trainer"))}
	if *runlogPath != "" {
		store, err := runlog.Open(*runlogPath)
		if err != nil {
			slog.Error("failed to open run ledger", "path", *runlogPath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		trainerOpts = append(trainerOpts, vfa.WithObserver(store.Observer("fvidemo", runLogger)))
	}

	trainer, err := vfa.NewKNNTrainer(vfa.FeatureFunc[Position](positionFeatures), *k, trainerOpts...)
	if err != nil {
		slog.Error("failed to build trainer", "error", err)
		os.Exit(2)
	}

	env := Corridor{Step: *step}
	cfg := fviConfig{Gamma: *gamma, Iterations: *iterations, Tolerance: *tolerance}
	states := gridSamples(*samples)

	var res fviResult
	if *useTUI {
		res, err = runWithTUI(ctx, stop, env, cfg, trainer, states)
	} else {
		res, err = runFVI(ctx, env, cfg, trainer, states, func(s iterationStats) {
			slog.Info("iteration", "n", s.Iteration, "max_delta", s.MaxDelta, "elapsed", s.Elapsed)
		})
	}
	if err != nil {
		slog.Error("fitted value iteration failed", "error", err)
		os.Exit(1)
	}

	report(ctx, env, *gamma, res)

	if *outDir != "" {
		if err := dumpInstances(*outDir, res); err != nil {
			slog.Error("failed to write tuples", "error", err)
			os.Exit(1)
		}
	}
	if *plotPath != "" {
		if err := writePlot(ctx, *plotPath, env, *gamma, res.Value, 200); err != nil {
			slog.Error("failed to write plot", "error", err)
			os.Exit(1)
		}
		slog.Info("wrote plot", "path", *plotPath)
	}
}

func gridSamples(n int) []Position {
	out := make([]Position, n)
	for i := range out {
		out[i] = Position{X: float64(i) / float64(n)}
	}
	return out
}

func runWithTUI(ctx context.Context, cancel func(), env Corridor, cfg fviConfig, trainer *vfa.Trainer[Position], states []Position) (fviResult, error) {
	p := tea.NewProgram(newProgressModel(cfg.Iterations, cfg.Tolerance, cancel))

	type outcome struct {
		res fviResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runFVI(ctx, env, cfg, trainer, states, func(s iterationStats) {
			p.Send(iterationMsg(s))
		})
		done <- outcome{res, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fviResult{}, fmt.Errorf("progress view: %w", err)
	}
	// Quitting from the view cancels ctx, so the loop returns promptly.
	out := <-done
	return out.res, out.err
}

// report logs the largest gap between the learned and closed-form values
// over the sample states.
func report(ctx context.Context, env Corridor, gamma float64, res fviResult) {
	states := make([]Position, len(res.Instances))
	for i, in := range res.Instances {
		states[i] = in.State
	}
	values, err := res.Value.Values(ctx, states)
	if err != nil {
		slog.Warn("could not evaluate learned values", "error", err)
		return
	}
	worst, at := 0.0, 0.0
	for i, s := range states {
		if d := values[i] - env.OptimalValue(s, gamma); d*d > worst*worst {
			worst, at = d, s.X
		}
	}
	slog.Info("finished",
		"iterations", res.Iterations,
		"states", len(states),
		"max_error", worst,
		"max_error_at", at,
	)
}

func dumpInstances(outDir string, res fviResult) error {
	bw, err := dataset.NewBatchWriter(outDir, res.Value.Schema())
	if err != nil {
		return err
	}
	source := fmt.Sprintf("fvidemo/iter=%d", res.Iterations)
	for _, in := range res.Instances {
		if err := bw.Write(positionFeatures(in.State), in.Target, source); err != nil {
			return err
		}
	}
	path, rows, err := bw.Finalize()
	if err != nil {
		return err
	}
	slog.Info("wrote tuples", "path", path, "rows", rows)
	return nil
}
