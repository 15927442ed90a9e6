package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const schemaVersion = "fvi_row_v1"

// Row is a single training tuple as stored on disk.
//
// Source tags where the tuple came from (e.g. "fvi/iter-12") and is ignored
// when rebuilding a Dataset.
type Row struct {
	Features []float64 `parquet:"features"`
	Target   float64   `parquet:"target"`
	Source   string    `parquet:"source,dict"`
}

// Rows converts the dataset to parquet records.
func (d *Dataset) Rows(source string) []Row {
	rows := make([]Row, d.Len())
	for i := range rows {
		rows[i] = Row{
			Features: append([]float64(nil), d.Row(i)...),
			Target:   d.targets[i],
			Source:   source,
		}
	}
	return rows
}

func writerOptions(attributes int) []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schemaVersion),
		parquet.KeyValueMetadata("attributes", strconv.Itoa(attributes)),
	}
}

// WriteParquet writes the dataset to outPath. The file is written next to
// its final name and renamed into place so readers never see a partial file.
func WriteParquet(outPath string, d *Dataset, source string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, d.Rows(source), writerOptions(d.schema.Attributes)...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadParquet loads a dataset written by WriteParquet or BatchWriter. The
// schema width is taken from the first row; any later row of a different
// width is an error.
func ReadParquet(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	var ds *Dataset
	buf := make([]Row, 256)
	line := 0
	for {
		n, err := reader.Read(buf)
		for _, r := range buf[:n] {
			if ds == nil {
				schema, serr := SchemaOf(r.Features)
				if serr != nil {
					return nil, fmt.Errorf("row %d: %w", line, serr)
				}
				ds, _ = New(schema, int(reader.NumRows()))
			}
			if aerr := ds.Add(r.Features, r.Target); aerr != nil {
				return nil, fmt.Errorf("row %d: %w", line, aerr)
			}
			line++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}
	if ds == nil {
		return nil, fmt.Errorf("read parquet %s: no rows", path)
	}
	return ds, nil
}

// WriteBatchParquet writes rows into outDir under a timestamped name and
// returns the final path.
func WriteBatchParquet(outDir string, d *Dataset, source string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano()))
	if err := WriteParquet(outPath, d, source); err != nil {
		return "", err
	}
	return outPath, nil
}
