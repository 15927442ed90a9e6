package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// BatchWriter streams rows into outDir/tmp and moves the finished file into
// outDir on Finalize. Every row must match the schema the writer was opened
// with.
type BatchWriter struct {
	schema Schema

	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[Row]

	rows int
}

func NewBatchWriter(outDir string, schema Schema) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if schema.Attributes <= 0 {
		return nil, ErrEmptySchema
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	return &BatchWriter{
		schema:  schema,
		tmpPath: tmpPath,
		outPath: filepath.Join(absOut, name),
		file:    f,
		writer:  parquet.NewGenericWriter[Row](f, writerOptions(schema.Attributes)...),
	}, nil
}

func (b *BatchWriter) OutPath() string { return b.outPath }
func (b *BatchWriter) Rows() int       { return b.rows }

// Write appends a single tuple.
func (b *BatchWriter) Write(features []float64, target float64, source string) error {
	if b.writer == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if err := b.schema.Check(features); err != nil {
		return err
	}
	if _, err := b.writer.Write([]Row{{Features: features, Target: target, Source: source}}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	b.rows++
	return nil
}

// WriteDataset appends every row of d.
func (b *BatchWriter) WriteDataset(d *Dataset, source string) error {
	if b.writer == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if d.schema.Attributes != b.schema.Attributes {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, d.schema.Attributes, b.schema.Attributes)
	}
	if d.Len() == 0 {
		return nil
	}
	if _, err := b.writer.Write(d.Rows(source)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	b.rows += d.Len()
	return nil
}

// Finalize closes the writer and publishes the file. If nothing was written
// the tmp file is removed and the returned path is empty.
func (b *BatchWriter) Finalize() (string, int, error) {
	if b.writer == nil {
		return "", 0, nil
	}

	closeErr := b.writer.Close()
	b.writer = nil
	_ = b.file.Sync()
	fileErr := b.file.Close()
	b.file = nil

	if closeErr != nil {
		_ = os.Remove(b.tmpPath)
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		_ = os.Remove(b.tmpPath)
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if b.rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return b.outPath, b.rows, nil
}
