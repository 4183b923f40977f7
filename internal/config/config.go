// Package config provides the engine configuration: input location, sampling
// parameters, parallelism, and the aggregate functions to compute.
//
// Configuration is loaded from YAML with environment variable expansion and
// validated before any row is processed; every problem found is a
// configuration error that aborts setup.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/centile/internal/errors"
)

// Config represents the complete engine configuration.
type Config struct {
	// Input describes where rows come from.
	Input InputConfig `yaml:"input"`

	// Reservoir configures the bounded random-sample collector.
	Reservoir ReservoirConfig `yaml:"reservoir"`

	// Sketch configures the DDSketch-backed collector.
	Sketch SketchConfig `yaml:"sketch"`

	// Engine configures the parallel aggregation pipeline.
	Engine EngineConfig `yaml:"engine"`

	// Functions lists the aggregate functions to compute, in output order.
	Functions []FunctionConfig `yaml:"functions"`

	// Output configures result emission.
	Output OutputConfig `yaml:"output"`
}

// InputConfig describes the Parquet input.
type InputConfig struct {
	// Path is the Parquet file to aggregate over.
	Path string `yaml:"path"`

	// ValueColumn is the numeric column to aggregate.
	ValueColumn string `yaml:"value_column"`

	// GroupColumn is the optional grouping column. Empty means one global
	// group.
	GroupColumn string `yaml:"group_column"`

	// ValueKind is the numeric kind of the value column:
	// float64, float32, int64, int32, uint64 or uint32.
	ValueKind string `yaml:"value_kind"`
}

// ReservoirConfig configures the reservoir sample collector.
type ReservoirConfig struct {
	// Capacity is the maximum number of retained elements per group.
	Capacity int `yaml:"capacity"`
}

// SketchConfig configures the DDSketch collector.
type SketchConfig struct {
	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// EngineConfig configures the parallel aggregation pipeline.
type EngineConfig struct {
	// Workers is the number of accumulation workers. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// ChunkSize is the number of rows handed to a worker at a time.
	ChunkSize int `yaml:"chunk_size"`
}

// FunctionConfig selects one aggregate function and its level parameters.
type FunctionConfig struct {
	// Name is the function name: quantile, quantiles, quantileSketch or
	// quantilesSketch.
	Name string `yaml:"name"`

	// Levels holds the quantile level parameters in order.
	Levels []float64 `yaml:"levels"`

	// ReturnsFloat selects the float64 result kind. When false the result
	// kind equals the argument kind. Sketch functions always return float64.
	ReturnsFloat bool `yaml:"returns_float"`
}

// OutputConfig configures result emission.
type OutputConfig struct {
	// Format is "table" or "csv".
	Format string `yaml:"format"`

	// Path optionally writes results to a Parquet file as well.
	Path string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			ValueColumn: "value",
			ValueKind:   "float64",
		},
		Reservoir: ReservoirConfig{
			Capacity: 8192,
		},
		Sketch: SketchConfig{
			Accuracy: 0.01,
		},
		Engine: EngineConfig{
			Workers:   runtime.GOMAXPROCS(0),
			ChunkSize: 64 * 1024,
		},
		Functions: []FunctionConfig{
			{Name: "quantile", Levels: []float64{0.5}, ReturnsFloat: true},
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

// Load loads configuration from a YAML file, expanding environment
// variables, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are reported
// together so a broken config can be fixed in one pass.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.Input.Path == "" {
		v.AddMissing("input.path")
	}
	if c.Input.ValueColumn == "" {
		v.AddMissing("input.value_column")
	}
	switch c.Input.ValueKind {
	case "float64", "float32", "int64", "int32", "uint64", "uint32":
	case "":
		v.AddMissing("input.value_kind")
	default:
		v.Add(errors.Wrapf(errors.ErrUnsupportedKind,
			"input.value_kind %q", c.Input.ValueKind))
	}

	if c.Reservoir.Capacity <= 0 {
		v.AddField("reservoir.capacity", "must be positive")
	}
	if c.Sketch.Accuracy <= 0 || c.Sketch.Accuracy >= 1 {
		v.AddField("sketch.accuracy", "must be in (0, 1)")
	}

	if c.Engine.Workers < 0 {
		v.AddField("engine.workers", "must not be negative")
	}
	if c.Engine.ChunkSize <= 0 {
		v.AddField("engine.chunk_size", "must be positive")
	}

	if len(c.Functions) == 0 {
		v.AddMissing("functions")
	}
	for i, fn := range c.Functions {
		switch fn.Name {
		case "quantile", "quantiles", "quantileSketch", "quantilesSketch":
		default:
			v.Add(errors.Wrapf(errors.ErrUnknownFunction,
				"functions[%d].name %q", i, fn.Name))
		}
		if len(fn.Levels) == 0 {
			v.AddMissing(fmt.Sprintf("functions[%d].levels", i))
		}
	}

	switch c.Output.Format {
	case "table", "csv", "":
	default:
		v.AddField("output.format", "must be table or csv")
	}

	return v.Err()
}
