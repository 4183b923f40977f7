package parquet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// ResultRow is one finalized quantile estimate in Parquet format.
type ResultRow struct {
	Group    string  `parquet:"group,zstd"`
	Function string  `parquet:"function,zstd"`
	Level    float64 `parquet:"level"`
	Value    float64 `parquet:"value"`
}

// WriteResults writes finalized results to a Parquet file.
func WriteResults(path string, rows []ResultRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[ResultRow](f,
		parquet.Compression(&parquet.Zstd))

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}
