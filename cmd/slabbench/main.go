// Command slabbench runs a synthetic concurrent workload against a slab and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	pmet "github.com/IvanBrykalov/shardslab/metrics/prom"
	"github.com/IvanBrykalov/shardslab/slab"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "slabbench:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	// ---- Flags / config ----
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogFormat, cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.PprofAddr != "" {
		go func() {
			log.Info("pprof: serving", "addr", cfg.PprofAddr)
			log.Error("pprof: server stopped", "err", http.ListenAndServe(cfg.PprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "shardslab", "bench", nil)
	if cfg.MetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", "addr", cfg.MetricsAddr)
			log.Error("metrics: server stopped", "err", http.ListenAndServe(cfg.MetricsAddr, nil))
		}()
	}

	// ---- Build slab ----
	router, err := newRouter(cfg.Router)
	if err != nil {
		return err
	}
	s, err := slab.New[uint64](slab.Options[uint64]{
		Shards:          cfg.Shards,
		InitialPageSize: cfg.InitialPageSize,
		MaxPages:        cfg.MaxPages,
		Router:          router,
		Metrics:         metrics,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	wl := newWorkload(cfg, s)
	if err := wl.preload(); err != nil {
		return err
	}
	log.Info("preloaded", "values", cfg.Preload)

	// ---- Load generation ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	start := time.Now()
	if err := wl.run(ctx); err != nil {
		return err
	}
	rep := wl.report(time.Since(start))

	// ---- Report ----
	rep.print(stdout)
	if cfg.Out != "" {
		if err := writeReport(cfg.Out, rep); err != nil {
			return err
		}
		log.Info("report written", "path", cfg.Out)
	}
	return nil
}
