// centile computes approximate quantiles over numeric Parquet columns.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/centile/internal/aggregate"
	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/config"
	"github.com/xtxerr/centile/internal/engine"
	"github.com/xtxerr/centile/internal/errors"
	"github.com/xtxerr/centile/internal/exact"
	"github.com/xtxerr/centile/internal/logging"
	"github.com/xtxerr/centile/internal/parquet"
	"github.com/xtxerr/centile/internal/sample"
)

// Version is set at build time via ldflags
var Version = "dev"

// runFlags carries the CLI options that are not part of the config file.
type runFlags struct {
	verify        bool
	writePartial  string
	mergePartials []string
	outPath       string
}

func main() {
	cfgPath := flag.String("config", "", "config file path")
	input := flag.String("input", "", "input Parquet file (overrides config)")
	valueCol := flag.String("value", "", "value column (overrides config)")
	groupCol := flag.String("group", "", "group column (overrides config)")
	kind := flag.String("kind", "", "value kind (overrides config)")
	fnName := flag.String("fn", "", "aggregate function (overrides config)")
	levelsArg := flag.String("levels", "", "comma-separated quantile levels (overrides config)")
	exactKind := flag.Bool("exact-kind", false, "result kind equals the argument kind instead of float64")
	capacity := flag.Int("capacity", 0, "reservoir capacity (overrides config)")
	workers := flag.Int("workers", 0, "accumulation workers (overrides config)")
	verify := flag.Bool("verify", false, "report exact quantiles and estimation error via DuckDB")
	writePartial := flag.String("write-partial", "", "accumulate only and write partial state to this file")
	mergePartials := flag.String("merge-partials", "", "comma-separated partial state files to merge and finalize")
	outPath := flag.String("out", "", "write results to this Parquet file as well")
	format := flag.String("format", "", "output format: table or csv (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *logJSON)
	logging.Info("centile starting", "version", Version)

	// Load config
	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
		cfg = loaded
	}

	// CLI overrides
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *valueCol != "" {
		cfg.Input.ValueColumn = *valueCol
	}
	if *groupCol != "" {
		cfg.Input.GroupColumn = *groupCol
	}
	if *kind != "" {
		cfg.Input.ValueKind = *kind
	}
	if *capacity > 0 {
		cfg.Reservoir.Capacity = *capacity
	}
	if *workers > 0 {
		cfg.Engine.Workers = *workers
	}
	if *format != "" {
		cfg.Output.Format = *format
	}

	if *fnName != "" || *levelsArg != "" {
		levels, err := parseLevels(*levelsArg)
		if err != nil {
			log.Fatalf("Parse levels: %v", err)
		}
		name := *fnName
		if name == "" {
			name = "quantile"
		}
		cfg.Functions = []config.FunctionConfig{{
			Name:         name,
			Levels:       levels,
			ReturnsFloat: !*exactKind,
		}}
	}

	rf := runFlags{
		verify:       *verify,
		writePartial: *writePartial,
		outPath:      *outPath,
	}
	if rf.outPath == "" {
		rf.outPath = cfg.Output.Path
	}
	if *mergePartials != "" {
		rf.mergePartials = strings.Split(*mergePartials, ",")
		// Merge mode works on previously serialized state; no input file
		// is read, so satisfy validation with a placeholder.
		if cfg.Input.Path == "" {
			cfg.Input.Path = "-"
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Validate config: %v", err)
	}

	if err := run(cfg, rf); err != nil {
		logging.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// run dispatches on the configured value kind. Each kind gets its own
// monomorphized pipeline instantiation.
func run(cfg *config.Config, rf runFlags) error {
	switch cfg.Input.ValueKind {
	case "float64":
		return runKind[float64](cfg, rf)
	case "float32":
		return runKind[float32](cfg, rf)
	case "int64":
		return runKind[int64](cfg, rf)
	case "int32":
		return runKind[int32](cfg, rf)
	case "uint64":
		return runKind[uint64](cfg, rf)
	case "uint32":
		return runKind[uint32](cfg, rf)
	default:
		return errors.Wrapf(errors.ErrUnsupportedKind, "%q", cfg.Input.ValueKind)
	}
}

func runKind[T column.Numeric](cfg *config.Config, rf runFlags) error {
	ctx := context.Background()
	log := logging.Component("main")

	opts := engine.Options{
		Workers:   cfg.Engine.Workers,
		ChunkSize: cfg.Engine.ChunkSize,
		Capacity:  cfg.Reservoir.Capacity,
		Accuracy:  cfg.Sketch.Accuracy,
	}

	if len(rf.mergePartials) > 0 {
		lines, err := mergeAndFinalize[T](cfg, rf.mergePartials, opts)
		if err != nil {
			return err
		}
		return emit(cfg, rf, lines)
	}

	rows, err := parquet.ReadRows[T](cfg.Input.Path, cfg.Input.ValueColumn, cfg.Input.GroupColumn)
	if err != nil {
		return err
	}
	log.Info("input loaded", "path", cfg.Input.Path, "rows", len(rows))

	if rf.writePartial != "" {
		return accumulateAndWrite(ctx, cfg, rows, rf.writePartial, opts)
	}

	var lines []resultLine
	for _, fn := range cfg.Functions {
		fl, err := evalFunction(ctx, fn, rows, opts)
		if err != nil {
			return err
		}
		lines = append(lines, fl...)
	}

	if rf.verify {
		annotateExact(ctx, cfg, lines)
	}
	return emit(cfg, rf, lines)
}

// resultLine is one finalized estimate prepared for output.
type resultLine struct {
	group    string
	function string
	level    float64
	value    float64
	exact    float64
	hasExact bool
}

func evalFunction[T column.Numeric](ctx context.Context, fn config.FunctionConfig, rows []engine.Row[T], opts engine.Options) ([]resultLine, error) {
	switch fn.Name {
	case "quantile":
		if fn.ReturnsFloat {
			res, err := engine.Quantile[T, float64](ctx, rows, fn.Levels, opts)
			if err != nil {
				return nil, err
			}
			return quantileLines(fn, res), nil
		}
		res, err := engine.Quantile[T, T](ctx, rows, fn.Levels, opts)
		if err != nil {
			return nil, err
		}
		return quantileLines(fn, res), nil

	case "quantiles":
		if fn.ReturnsFloat {
			res, err := engine.Quantiles[T, float64](ctx, rows, fn.Levels, opts)
			if err != nil {
				return nil, err
			}
			return quantilesLines(fn, res), nil
		}
		res, err := engine.Quantiles[T, T](ctx, rows, fn.Levels, opts)
		if err != nil {
			return nil, err
		}
		return quantilesLines(fn, res), nil

	case "quantileSketch":
		res, err := engine.QuantileSketch(ctx, floatRows(rows), fn.Levels, opts)
		if err != nil {
			return nil, err
		}
		return quantileLines(fn, res), nil

	case "quantilesSketch":
		res, err := engine.QuantilesSketch(ctx, floatRows(rows), fn.Levels, opts)
		if err != nil {
			return nil, err
		}
		return quantilesLines(fn, res), nil

	default:
		return nil, errors.Wrapf(errors.ErrUnknownFunction, "%q", fn.Name)
	}
}

func quantileLines[R column.Numeric](fn config.FunctionConfig, res *engine.QuantileResult[R]) []resultLine {
	lines := make([]resultLine, 0, len(res.Groups))
	for i, group := range res.Groups {
		lines = append(lines, resultLine{
			group:    group,
			function: fn.Name,
			level:    fn.Levels[0],
			value:    float64(res.Values.At(i)),
		})
	}
	return lines
}

func quantilesLines[R column.Numeric](fn config.FunctionConfig, res *engine.QuantilesResult[R]) []resultLine {
	lines := make([]resultLine, 0, len(res.Groups)*len(fn.Levels))
	for i, group := range res.Groups {
		for j, v := range res.Values.Block(i) {
			lines = append(lines, resultLine{
				group:    group,
				function: fn.Name,
				level:    fn.Levels[j],
				value:    float64(v),
			})
		}
	}
	return lines
}

func floatRows[T column.Numeric](rows []engine.Row[T]) []engine.Row[float64] {
	out := make([]engine.Row[float64], len(rows))
	for i, r := range rows {
		out[i] = engine.Row[float64]{Group: r.Group, Value: float64(r.Value)}
	}
	return out
}

// accumulateAndWrite runs the accumulation phase only and writes the partial
// state for a later merge, possibly in another process.
func accumulateAndWrite[T column.Numeric](ctx context.Context, cfg *config.Config, rows []engine.Row[T], path string, opts engine.Options) error {
	fn := cfg.Functions[0]
	if fn.ReturnsFloat {
		return accumulateTyped[T, float64](ctx, fn, rows, path, opts)
	}
	return accumulateTyped[T, T](ctx, fn, rows, path, opts)
}

func accumulateTyped[T, R column.Numeric](ctx context.Context, fn config.FunctionConfig, rows []engine.Row[T], path string, opts engine.Options) error {
	agg, err := reservoirAggregator[T, R](fn)
	if err != nil {
		return err
	}

	p, err := engine.Accumulate(ctx, rows, agg, aggregate.OnEmptyFor[R](), opts)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	if err := engine.WritePartial(f, p, agg); err != nil {
		f.Close()
		return err
	}

	logging.Info("partial state written", "path", path, "groups", p.Len())
	return f.Close()
}

// mergeAndFinalize reads previously written partial states, merges them and
// finalizes the first configured function.
func mergeAndFinalize[T column.Numeric](cfg *config.Config, paths []string, opts engine.Options) ([]resultLine, error) {
	fn := cfg.Functions[0]
	if fn.ReturnsFloat {
		return mergeTyped[T, float64](fn, paths, opts)
	}
	return mergeTyped[T, T](fn, paths, opts)
}

func mergeTyped[T, R column.Numeric](fn config.FunctionConfig, paths []string, opts engine.Options) ([]resultLine, error) {
	onEmpty := aggregate.OnEmptyFor[R]()

	switch fn.Name {
	case "quantile":
		agg, err := aggregate.NewQuantile[T, R](fn.Levels)
		if err != nil {
			return nil, err
		}
		p, err := readPartials[T](paths, agg, onEmpty, opts)
		if err != nil {
			return nil, err
		}
		return quantileLines(fn, engine.FinalizeQuantile(agg, p)), nil

	case "quantiles":
		agg, err := aggregate.NewQuantiles[T, R](fn.Levels)
		if err != nil {
			return nil, err
		}
		p, err := readPartials[T](paths, agg, onEmpty, opts)
		if err != nil {
			return nil, err
		}
		return quantilesLines(fn, engine.FinalizeQuantiles(agg, p)), nil

	default:
		return nil, errors.Wrapf(errors.ErrUnknownFunction,
			"partial exchange supports reservoir functions, not %q", fn.Name)
	}
}

// reservoirAggregator builds the lifecycle surface for a reservoir function.
func reservoirAggregator[T, R column.Numeric](fn config.FunctionConfig) (engine.Aggregator[T], error) {
	switch fn.Name {
	case "quantile":
		return aggregate.NewQuantile[T, R](fn.Levels)
	case "quantiles":
		return aggregate.NewQuantiles[T, R](fn.Levels)
	default:
		return nil, errors.Wrapf(errors.ErrUnknownFunction,
			"partial exchange supports reservoir functions, not %q", fn.Name)
	}
}

func readPartials[T column.Numeric](paths []string, agg engine.Aggregator[T], onEmpty sample.OnEmpty, opts engine.Options) (*engine.Partial[T], error) {
	var merged *engine.Partial[T]

	for _, path := range paths {
		f, err := os.Open(strings.TrimSpace(path))
		if err != nil {
			return nil, fmt.Errorf("open partial file: %w", err)
		}
		p, err := engine.ReadPartial(f, agg, onEmpty, opts)
		f.Close()
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = p
		} else {
			merged.Merge(agg, p)
		}
	}

	if merged == nil {
		merged = engine.NewPartial[T](opts.Capacity, onEmpty)
	}
	return merged, nil
}

// annotateExact fills in exact quantiles computed by DuckDB. Verification
// failures degrade to a warning; the estimates are still printed.
func annotateExact(ctx context.Context, cfg *config.Config, lines []resultLine) {
	log := logging.Component("verify")

	svc, err := exact.New()
	if err != nil {
		log.Warn("verification unavailable", "error", err)
		return
	}
	defer svc.Close()

	for _, fn := range cfg.Functions {
		gqs, err := svc.Quantiles(ctx, cfg.Input.Path, cfg.Input.ValueColumn, cfg.Input.GroupColumn, fn.Levels)
		if err != nil {
			log.Warn("exact query failed", "function", fn.Name, "error", err)
			continue
		}

		index := make(map[string][]float64, len(gqs))
		for _, gq := range gqs {
			index[gq.Group] = gq.Values
		}

		for i := range lines {
			if lines[i].function != fn.Name {
				continue
			}
			values, ok := index[lines[i].group]
			if !ok {
				continue
			}
			for j, level := range fn.Levels {
				if level == lines[i].level {
					lines[i].exact = values[j]
					lines[i].hasExact = true
					break
				}
			}
		}
	}
}

// emit writes the result lines to stdout and, optionally, to Parquet.
func emit(cfg *config.Config, rf runFlags, lines []resultLine) error {
	if rf.outPath != "" {
		rows := make([]parquet.ResultRow, len(lines))
		for i, l := range lines {
			rows[i] = parquet.ResultRow{
				Group:    l.group,
				Function: l.function,
				Level:    l.level,
				Value:    l.value,
			}
		}
		if err := parquet.WriteResults(rf.outPath, rows); err != nil {
			return err
		}
		logging.Info("results written", "path", rf.outPath, "rows", len(rows))
	}

	withExact := false
	for _, l := range lines {
		if l.hasExact {
			withExact = true
			break
		}
	}

	header := []string{"group", "function", "level", "estimate"}
	if withExact {
		header = append(header, "exact", "abs error")
	}

	records := make([][]string, 0, len(lines))
	for _, l := range lines {
		rec := []string{
			l.group,
			l.function,
			strconv.FormatFloat(l.level, 'g', -1, 64),
			strconv.FormatFloat(l.value, 'g', -1, 64),
		}
		if withExact {
			exactStr, errStr := "", ""
			if l.hasExact {
				exactStr = strconv.FormatFloat(l.exact, 'g', -1, 64)
				errStr = strconv.FormatFloat(l.value-l.exact, 'g', -1, 64)
			}
			rec = append(rec, exactStr, errStr)
		}
		records = append(records, rec)
	}

	if cfg.Output.Format == "csv" {
		w := csv.NewWriter(os.Stdout)
		if err := w.Write(header); err != nil {
			return err
		}
		if err := w.WriteAll(records); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.AppendBulk(records)
	table.Render()
	return nil
}

func parseLevels(s string) ([]float64, error) {
	if s == "" {
		return []float64{0.5}, nil
	}
	parts := strings.Split(s, ",")
	levels := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("level %q: %w", part, err)
		}
		levels = append(levels, f)
	}
	return levels, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
