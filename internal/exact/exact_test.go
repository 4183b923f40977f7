package exact

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type inputRow struct {
	Service string  `parquet:"service"`
	Latency float64 `parquet:"latency_ms"`
}

func writeInput(t *testing.T, rows []inputRow) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input file: %v", err)
	}
	w := parquet.NewGenericWriter[inputRow](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestQuantilesGrouped(t *testing.T) {
	path := writeInput(t, []inputRow{
		{Service: "api", Latency: 10},
		{Service: "api", Latency: 20},
		{Service: "api", Latency: 30},
		{Service: "db", Latency: 5},
	})

	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	got, err := svc.Quantiles(context.Background(), path, "latency_ms", "service", []float64{0.5, 1})
	if err != nil {
		t.Fatalf("Quantiles: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}
	if got[0].Group != "api" || got[0].Values[0] != 20 || got[0].Values[1] != 30 {
		t.Errorf("api = %+v", got[0])
	}
	if got[1].Group != "db" || got[1].Values[0] != 5 {
		t.Errorf("db = %+v", got[1])
	}
}

func TestQuantilesGlobal(t *testing.T) {
	path := writeInput(t, []inputRow{
		{Service: "api", Latency: 1},
		{Service: "api", Latency: 2},
	})

	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	got, err := svc.Quantiles(context.Background(), path, "latency_ms", "", []float64{0.5})
	if err != nil {
		t.Fatalf("Quantiles: %v", err)
	}
	if len(got) != 1 || got[0].Group != "" {
		t.Fatalf("got = %+v, want one global group", got)
	}
	if math.Abs(got[0].Values[0]-1.5) > 1e-9 {
		t.Errorf("median = %v, want 1.5", got[0].Values[0])
	}
}
