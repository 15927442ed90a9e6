package onnxvalue

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Pool spreads Predict calls round-robin over several clients, each with its
// own session and batching loop.
type Pool struct {
	clients []*Client
	rr      atomic.Uint64
}

func NewPool(modelPath string, sessions int, cfg Config) (*Pool, error) {
	if sessions <= 0 {
		sessions = 1
	}
	clients := make([]*Client, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewClient(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &Pool{clients: clients}, nil
}

func (p *Pool) Name() string { return fmt.Sprintf("onnx-pool(%d)", len(p.clients)) }

func (p *Pool) Predict(features []float64) (float64, error) {
	if len(p.clients) == 0 {
		return 0, errors.New("onnxvalue: pool has no clients")
	}
	idx := int((p.rr.Add(1) - 1) % uint64(len(p.clients)))
	return p.clients[idx].Predict(features)
}

func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
