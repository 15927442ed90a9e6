// Package onnxvalue evaluates a value network exported to ONNX. The network
// takes a float32 tensor [batch, attributes] named "input" and returns
// [batch, 1] named "value".
package onnxvalue

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
	DefaultInputName    = "input"
	DefaultOutputName   = "value"
)

var ErrClosed = errors.New("onnxvalue: client is closed")

type Config struct {
	// Attributes is the width of one feature vector.
	Attributes   int
	BatchSize    int
	BatchTimeout time.Duration
	InputName    string
	OutputName   string
	// Threads sets both intra- and inter-op threads of the session.
	Threads int
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
}

type request struct {
	input []float32
	resp  chan response
}

type response struct {
	value float64
	err   error
}

// Client batches Predict calls from many goroutines into single session
// runs.
type Client struct {
	session  *ort.DynamicAdvancedSession
	cfg      Config
	requests chan request
	// run answers every request in pending; batch holds their inputs
	// back to back.
	run func(pending []request, batch []float32)

	done      chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime() error {
	ortInitOnce.Do(func() {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// NewClient loads the model at modelPath.
func NewClient(modelPath string, cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if cfg.Attributes <= 0 {
		return nil, fmt.Errorf("onnxvalue: attributes must be positive, got %d", cfg.Attributes)
	}
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
		return nil, fmt.Errorf("intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(cfg.Threads); err != nil {
		return nil, fmt.Errorf("inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c := newClient(cfg, nil)
	c.session = session
	c.run = c.runBatch
	go c.batchLoop()
	return c, nil
}

// newClient returns a client without a session or running loop. cfg must
// already have its defaults applied.
func newClient(cfg Config, run func([]request, []float32)) *Client {
	return &Client{
		cfg:      cfg,
		run:      run,
		requests: make(chan request, cfg.BatchSize*2),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

func (c *Client) Name() string { return "onnx" }

// Close stops the batching loop and releases the session. Pending requests
// fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		if c.session != nil {
			err = c.session.Destroy()
		}
	})
	return err
}

// Predict evaluates a single feature vector.
func (c *Client) Predict(features []float64) (float64, error) {
	if len(features) != c.cfg.Attributes {
		return 0, fmt.Errorf("onnxvalue: got %d features, want %d", len(features), c.cfg.Attributes)
	}
	in := make([]float32, len(features))
	for i, v := range features {
		in[i] = float32(v)
	}

	req := request{input: in, resp: make(chan response, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return 0, ErrClosed
	}
	select {
	case r := <-req.resp:
		return r.value, r.err
	case <-c.loopDone:
		// The loop may have answered just before exiting.
		select {
		case r := <-req.resp:
			return r.value, r.err
		default:
			return 0, ErrClosed
		}
	}
}

func (c *Client) batchLoop() {
	defer close(c.loopDone)

	batch := make([]float32, 0, c.cfg.BatchSize*c.cfg.Attributes)
	pending := make([]request, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		c.run(pending, batch)
		pending = pending[:0]
		batch = batch[:0]
	}

	for {
		select {
		case <-c.done:
			for _, req := range pending {
				req.resp <- response{err: ErrClosed}
			}
			return
		case req := <-c.requests:
			pending = append(pending, req)
			batch = append(batch, req.input...)
			if len(pending) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (c *Client) runBatch(pending []request, batch []float32) {
	n := int64(len(pending))

	input, err := ort.NewTensor(ort.NewShape(n, int64(c.cfg.Attributes)), batch)
	if err != nil {
		failBatch(pending, fmt.Errorf("input tensor: %w", err))
		return
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		failBatch(pending, fmt.Errorf("output tensor: %w", err))
		return
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		failBatch(pending, fmt.Errorf("run session: %w", err))
		return
	}

	values := output.GetData()
	for i, req := range pending {
		req.resp <- response{value: float64(values[i])}
	}
}

func failBatch(pending []request, err error) {
	for _, req := range pending {
		req.resp <- response{err: err}
	}
}
