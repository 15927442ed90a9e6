package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/brensch/fvi/vfa"
)

// writePlot renders the learned and optimal value curves over points evenly
// spaced positions to an HTML page at path.
func writePlot(ctx context.Context, path string, env Corridor, gamma float64, value *vfa.ValueFunction[Position], points int) error {
	if points < 2 {
		points = 2
	}
	xs := make([]string, points)
	states := make([]Position, points)
	for i := range states {
		x := float64(i) / float64(points-1) * 0.999
		states[i] = Position{X: x}
		xs[i] = fmt.Sprintf("%.3f", x)
	}

	learned, err := value.Values(ctx, states)
	if err != nil {
		return fmt.Errorf("evaluate plot points: %w", err)
	}

	fitted := make([]opts.LineData, points)
	optimal := make([]opts.LineData, points)
	for i, s := range states {
		fitted[i] = opts.LineData{Value: learned[i]}
		optimal[i] = opts.LineData{Value: env.OptimalValue(s, gamma)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "V(x)", Subtitle: fmt.Sprintf("corridor step=%g gamma=%g", env.Step, gamma)}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	line.SetXAxis(xs).
		AddSeries("fitted", fitted).
		AddSeries("optimal", optimal)

	page := components.NewPage()
	page.AddCharts(line)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	return nil
}
