// Package config loads CLI settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every CLI subcommand.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Metrics MetricsConfig `yaml:"metrics"`
	Query   QueryConfig   `yaml:"query"`
	Tracing TracingConfig `yaml:"tracing"`
}

// DataConfig locates the input files.
type DataConfig struct {
	NEOFile string `yaml:"neo_file"`
	CADFile string `yaml:"cad_file"`
}

// MetricsConfig controls the Prometheus textfile written at exit.
type MetricsConfig struct {
	File string `yaml:"file"` // empty disables the dump
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	Limit int `yaml:"limit"` // rows printed to stdout when no outfile is given
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout or otlp
	Endpoint    string  `yaml:"endpoint"` // otlp collector host:port
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			NEOFile: "data/neos.csv",
			CADFile: "data/cad.json",
		},
		Query: QueryConfig{
			Limit: 10,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			Endpoint:    "localhost:4317",
			ServiceName: "neo",
			SampleRatio: 1,
		},
	}
}

// Load reads path over the defaults. An empty path, or a path that does not
// exist, yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Tracing.Exporter = strings.ToLower(c.Tracing.Exporter)
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("tracing exporter must be stdout or otlp, got %q", c.Tracing.Exporter)
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", r)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("NEO_NEO_FILE"); v != "" {
		c.Data.NEOFile = v
	}
	if v := os.Getenv("NEO_CAD_FILE"); v != "" {
		c.Data.CADFile = v
	}
	if v := os.Getenv("NEO_METRICS_FILE"); v != "" {
		c.Metrics.File = v
	}
	if v := os.Getenv("NEO_QUERY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("NEO_QUERY_LIMIT must be a non-negative integer, got %q", v)
		}
		c.Query.Limit = n
	}

	if v := os.Getenv("NEO_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NEO_TRACING_ENABLED must be a boolean, got %q", v)
		}
		c.Tracing.Enabled = enabled
	}
	if v := os.Getenv("NEO_TRACING_EXPORTER"); v != "" {
		c.Tracing.Exporter = v
	}
	if v := os.Getenv("NEO_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := os.Getenv("NEO_TRACING_SERVICE_NAME"); v != "" {
		c.Tracing.ServiceName = v
	}
	if v := os.Getenv("NEO_TRACING_SAMPLE_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NEO_TRACING_SAMPLE_RATIO must be a number, got %q", v)
		}
		c.Tracing.SampleRatio = r
	}
	return nil
}
