// Package exact computes exact quantiles over the same Parquet input using
// DuckDB. It sits outside the aggregation path: the engine's estimates stay
// approximate, and this service only exists to report how far off they are
// (the CLI's --verify flag).
package exact

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// Service runs exact quantile queries against Parquet files.
type Service struct {
	db *sql.DB
}

// GroupQuantiles holds the exact quantiles of one group, one value per
// requested level in request order.
type GroupQuantiles struct {
	Group  string
	Values []float64
}

// New opens an in-memory DuckDB database.
func New() (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Service{db: db}, nil
}

// Close closes the service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Quantiles computes exact interpolated quantiles per group. When
// groupColumn is empty a single global group with key "" is returned.
func (s *Service) Quantiles(ctx context.Context, path, valueColumn, groupColumn string, levels []float64) ([]GroupQuantiles, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if groupColumn != "" {
		fmt.Fprintf(&sb, "CAST(%s AS VARCHAR), ", quoteIdent(groupColumn))
	}
	for i, level := range levels {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "quantile_cont(%s, %v)", quoteIdent(valueColumn), level)
	}

	sb.WriteString(" FROM read_parquet($1)")
	if groupColumn != "" {
		fmt.Fprintf(&sb, " GROUP BY %s ORDER BY %s", quoteIdent(groupColumn), quoteIdent(groupColumn))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), path)
	if err != nil {
		return nil, fmt.Errorf("query parquet: %w", err)
	}
	defer rows.Close()

	var results []GroupQuantiles
	for rows.Next() {
		gq := GroupQuantiles{Values: make([]float64, len(levels))}

		dest := make([]any, 0, len(levels)+1)
		var group sql.NullString
		if groupColumn != "" {
			dest = append(dest, &group)
		}
		scanned := make([]sql.NullFloat64, len(levels))
		for i := range scanned {
			dest = append(dest, &scanned[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		gq.Group = group.String
		for i, v := range scanned {
			if v.Valid {
				gq.Values[i] = v.Float64
			} else {
				gq.Values[i] = math.NaN()
			}
		}
		results = append(results, gq)
	}

	return results, rows.Err()
}

// quoteIdent quotes a column name for interpolation into SQL; identifiers
// cannot be bound as parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
