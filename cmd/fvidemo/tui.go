package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type iterationMsg iterationStats

type doneMsg struct {
	err error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// progressModel shows fitted value iteration as it runs. The loop itself
// runs elsewhere and reports through Program.Send.
type progressModel struct {
	maxIterations int
	tolerance     float64
	startTime     time.Time
	now           time.Time

	last    iterationStats
	history []float64
	done    bool
	err     error
	quit    func()
}

func newProgressModel(maxIterations int, tolerance float64, quit func()) progressModel {
	now := time.Now()
	return progressModel{
		maxIterations: maxIterations,
		tolerance:     tolerance,
		startTime:     now,
		now:           now,
		quit:          quit,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.quit != nil {
				m.quit()
			}
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case iterationMsg:
		m.last = iterationStats(msg)
		m.history = append(m.history, msg.MaxDelta)
		if len(m.history) > 8 {
			m.history = m.history[len(m.history)-8:]
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString("Fitted value iteration\n\n")

	width := 30
	filled := 0
	if m.maxIterations > 0 {
		filled = width * m.last.Iteration / m.maxIterations
	}
	if filled > width {
		filled = width
	}
	fmt.Fprintf(&b, "[%s%s] %d/%d\n", strings.Repeat("#", filled), strings.Repeat(".", width-filled), m.last.Iteration, m.maxIterations)
	fmt.Fprintf(&b, "Max Δ target:  %.6f (stop below %g)\n", m.last.MaxDelta, m.tolerance)
	fmt.Fprintf(&b, "Elapsed:       %s\n\n", m.now.Sub(m.startTime).Round(time.Millisecond))

	b.WriteString("Recent Δ:\n")
	for _, d := range m.history {
		fmt.Fprintf(&b, "  %.6f\n", d)
	}

	switch {
	case m.err != nil:
		fmt.Fprintf(&b, "\nFailed: %v\n", m.err)
	case m.done:
		b.WriteString("\nDone.\n")
	default:
		b.WriteString("\nPress q to quit.\n")
	}
	return b.String()
}
