package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"
	"github.com/tailscale/hujson"

	"github.com/IvanBrykalov/shardslab/routing"
	"github.com/IvanBrykalov/shardslab/routing/random"
	"github.com/IvanBrykalov/shardslab/routing/roundrobin"
)

var (
	errConfigRead    = errors.New("cannot read config file")
	errConfigInvalid = errors.New("invalid config")
)

// config is the resolved benchmark configuration.
type config struct {
	Shards          int
	InitialPageSize int
	MaxPages        int
	Router          string

	Workers  int
	Duration time.Duration
	Reads    int // percent of ops that are Get
	Removes  int // percent that are Remove of an own index
	Takes    int // percent that are Take of an own index; the rest insert
	Preload  int
	Rate     float64 // ops/sec across all workers; 0 = unlimited
	Seed     uint64

	PprofAddr   string
	MetricsAddr string
	LogFormat   string
	LogLevel    string
	Out         string
	ConfigPath  string
}

// fileConfig is the JSONC config file. Absent fields are nil and keep the
// flag value.
type fileConfig struct {
	Shards          *int     `json:"shards"`
	InitialPageSize *int     `json:"initial_page_size"`
	MaxPages        *int     `json:"max_pages"`
	Router          *string  `json:"router"`
	Workers         *int     `json:"workers"`
	Duration        *string  `json:"duration"`
	Reads           *int     `json:"reads"`
	Removes         *int     `json:"removes"`
	Takes           *int     `json:"takes"`
	Preload         *int     `json:"preload"`
	Rate            *float64 `json:"rate"`
	Seed            *uint64  `json:"seed"`
	PprofAddr       *string  `json:"pprof"`
	MetricsAddr     *string  `json:"http"`
	LogFormat       *string  `json:"log_format"`
	LogLevel        *string  `json:"log_level"`
	Out             *string  `json:"out"`
}

// newFlagSet binds every flag to a field of cfg.
func newFlagSet(cfg *config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("slabbench", pflag.ContinueOnError)

	// ---- Slab ----
	fs.IntVar(&cfg.Shards, "shards", 0, "number of shards (0=auto)")
	fs.IntVar(&cfg.InitialPageSize, "page-size", 0, "slots in each shard's first page (0=default)")
	fs.IntVar(&cfg.MaxPages, "max-pages", 0, "pages per shard (0=default)")
	fs.StringVar(&cfg.Router, "router", "roundrobin", "shard router: roundrobin | random")

	// ---- Workload ----
	fs.IntVarP(&cfg.Workers, "workers", "w", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	fs.DurationVarP(&cfg.Duration, "duration", "d", 10*time.Second, "benchmark duration")
	fs.IntVar(&cfg.Reads, "reads", 70, "percent of ops that are Get")
	fs.IntVar(&cfg.Removes, "removes", 10, "percent of ops that are Remove")
	fs.IntVar(&cfg.Takes, "takes", 5, "percent of ops that are Take (the rest are Insert)")
	fs.IntVar(&cfg.Preload, "preload", 50_000, "values inserted before the run")
	fs.Float64Var(&cfg.Rate, "rate", 0, "total ops/sec limit across workers (0=unlimited)")
	fs.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "random seed")

	// ---- Output ----
	fs.StringVar(&cfg.PprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	fs.StringVar(&cfg.MetricsAddr, "http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text | json")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug | info | warn | error")
	fs.StringVarP(&cfg.Out, "out", "o", "", "write the JSON report to this file")
	fs.StringVarP(&cfg.ConfigPath, "config", "c", "", "JSONC config file; explicitly set flags override it")

	return fs
}

// parseArgs parses flags, overlays the config file if one is given and
// validates the result.
func parseArgs(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fs := newFlagSet(&cfg)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.ConfigPath != "" {
		fc, err := loadConfigFile(cfg.ConfigPath)
		if err != nil {
			return config{}, err
		}
		if err := fc.apply(&cfg, fs.Changed); err != nil {
			return config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, cfg.ConfigPath, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: %w", errConfigRead, err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (fileConfig, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: invalid JSONC: %w", errConfigInvalid, err)
	}
	var fc fileConfig
	if err := sonnet.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("%w: invalid JSON: %w", errConfigInvalid, err)
	}
	return fc, nil
}

// apply copies file values into cfg for every flag the command line did not
// set explicitly.
func (fc fileConfig) apply(cfg *config, changed func(name string) bool) error {
	overlay(&cfg.Shards, fc.Shards, "shards", changed)
	overlay(&cfg.InitialPageSize, fc.InitialPageSize, "page-size", changed)
	overlay(&cfg.MaxPages, fc.MaxPages, "max-pages", changed)
	overlay(&cfg.Router, fc.Router, "router", changed)
	overlay(&cfg.Workers, fc.Workers, "workers", changed)
	overlay(&cfg.Reads, fc.Reads, "reads", changed)
	overlay(&cfg.Removes, fc.Removes, "removes", changed)
	overlay(&cfg.Takes, fc.Takes, "takes", changed)
	overlay(&cfg.Preload, fc.Preload, "preload", changed)
	overlay(&cfg.Rate, fc.Rate, "rate", changed)
	overlay(&cfg.Seed, fc.Seed, "seed", changed)
	overlay(&cfg.PprofAddr, fc.PprofAddr, "pprof", changed)
	overlay(&cfg.MetricsAddr, fc.MetricsAddr, "http", changed)
	overlay(&cfg.LogFormat, fc.LogFormat, "log-format", changed)
	overlay(&cfg.LogLevel, fc.LogLevel, "log-level", changed)
	overlay(&cfg.Out, fc.Out, "out", changed)

	if fc.Duration != nil && !changed("duration") {
		d, err := time.ParseDuration(*fc.Duration)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = d
	}
	return nil
}

func overlay[T any](dst, src *T, flag string, changed func(string) bool) {
	if src != nil && !changed(flag) {
		*dst = *src
	}
}

func (c config) validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be > 0, got %v", c.Duration)
	case c.Reads < 0 || c.Removes < 0 || c.Takes < 0 || c.Reads+c.Removes+c.Takes > 100:
		return fmt.Errorf("reads/removes/takes must be non-negative and sum to at most 100, got %d/%d/%d",
			c.Reads, c.Removes, c.Takes)
	case c.Preload < 0:
		return fmt.Errorf("preload must be >= 0, got %d", c.Preload)
	case c.Rate < 0:
		return fmt.Errorf("rate must be >= 0, got %v", c.Rate)
	}
	if _, err := newRouter(c.Router); err != nil {
		return err
	}
	if _, err := newLogger(c.LogFormat, c.LogLevel, io.Discard); err != nil {
		return err
	}
	return nil
}

func newRouter(name string) (routing.Router, error) {
	switch strings.ToLower(name) {
	case "roundrobin", "rr", "":
		return roundrobin.New(), nil
	case "random":
		return random.New(), nil
	default:
		return nil, fmt.Errorf("unknown router %q (use roundrobin or random)", name)
	}
}

func newLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (use text or json)", format)
	}
}
