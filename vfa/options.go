package vfa

import (
	"io"
	"log/slog"
	"runtime"
	"time"
)

// TrainReport describes one Train call.
type TrainReport struct {
	Started    time.Time
	Duration   time.Duration
	Instances  int
	Attributes int
	Model      string
	// Err is nil when a value function was produced.
	Err error
}

// Observer is notified after every Train call, whether or not it succeeded.
type Observer interface {
	ObserveTrain(TrainReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(TrainReport)

func (f ObserverFunc) ObserveTrain(r TrainReport) { f(r) }

type options struct {
	logger    *slog.Logger
	observers []Observer
	workers   int
}

func defaultOptions() options {
	return options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers: runtime.GOMAXPROCS(0),
	}
}

type Option func(*options)

// WithLogger sets the logger used for training events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver adds an observer that receives a TrainReport per Train call.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithWorkers bounds the goroutines ValueFunction.Values uses.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}
