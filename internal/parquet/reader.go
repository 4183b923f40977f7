// Package parquet reads input rows from Parquet files and writes finalized
// quantile results back out.
//
// The input reader is schema-driven: the value and group columns are located
// by name, so any Parquet file with a numeric value column works without a
// fixed row struct.
package parquet

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/engine"
	"github.com/xtxerr/centile/internal/errors"
)

// readBatchSize is the number of rows decoded per ReadRows call.
const readBatchSize = 4096

// ReadRows reads every (group, value) row from a Parquet file. The value
// column must hold a numeric physical kind; values convert to T. When
// groupColumn is empty all rows fall into one global group with key "".
func ReadRows[T column.Numeric](path, valueColumn, groupColumn string) ([]engine.Row[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	schema := pf.Schema()

	valueCol, ok := schema.Lookup(valueColumn)
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownColumn, "value column %q", valueColumn)
	}

	groupIdx := -1
	if groupColumn != "" {
		groupCol, ok := schema.Lookup(groupColumn)
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnknownColumn, "group column %q", groupColumn)
		}
		groupIdx = groupCol.ColumnIndex
	}

	out := make([]engine.Row[T], 0, pf.NumRows())
	buf := make([]parquet.Row, readBatchSize)

	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()

		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				var r engine.Row[T]
				for _, v := range row {
					switch v.Column() {
					case valueCol.ColumnIndex:
						value, convErr := numericValue[T](v)
						if convErr != nil {
							rows.Close()
							return nil, convErr
						}
						r.Value = value
					case groupIdx:
						r.Group = v.String()
					}
				}
				out = append(out, r)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("read rows: %w", err)
			}
		}

		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close row reader: %w", err)
		}
	}

	return out, nil
}

// numericValue converts a Parquet leaf value to the requested numeric kind.
func numericValue[T column.Numeric](v parquet.Value) (T, error) {
	if v.IsNull() {
		var zero T
		return zero, nil
	}

	switch v.Kind() {
	case parquet.Double:
		return T(v.Double()), nil
	case parquet.Float:
		return T(v.Float()), nil
	case parquet.Int64:
		return T(v.Int64()), nil
	case parquet.Int32:
		return T(v.Int32()), nil
	default:
		var zero T
		return zero, errors.Wrapf(errors.ErrUnsupportedKind,
			"parquet kind %s", v.Kind())
	}
}
