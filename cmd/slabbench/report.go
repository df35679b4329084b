package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/natefinch/atomic"
	"github.com/sugawarayuuta/sonnet"
)

// report is the benchmark result, printed and optionally written as JSON.
type report struct {
	Router    string  `json:"router"`
	Shards    int     `json:"shards"`
	Workers   int     `json:"workers"`
	Seed      uint64  `json:"seed"`
	Elapsed   string  `json:"elapsed"`
	Ops       uint64  `json:"ops"`
	OpsPerSec float64 `json:"ops_per_sec"`
	Reads     uint64  `json:"reads"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate_pct"`
	Inserts   uint64  `json:"inserts"`
	Removes   uint64  `json:"removes"`
	Takes     uint64  `json:"takes"`
	Busy      uint64  `json:"take_busy"`
	Exhausted uint64  `json:"exhausted"`
	Live      int     `json:"live"`
}

func (r report) print(w io.Writer) {
	fmt.Fprintf(w, "router=%s shards=%d workers=%d dur=%s seed=%d\n",
		r.Router, r.Shards, r.Workers, r.Elapsed, r.Seed)
	fmt.Fprintf(w, "ops=%d (%.0f ops/s)  reads=%d  inserts=%d  removes=%d  takes=%d\n",
		r.Ops, r.OpsPerSec, r.Reads, r.Inserts, r.Removes, r.Takes)
	fmt.Fprintf(w, "hits=%d  misses=%d  hit-rate=%.2f%%  take-busy=%d  exhausted=%d\n",
		r.Hits, r.Misses, r.HitRate, r.Busy, r.Exhausted)
	fmt.Fprintf(w, "live=%d\n", r.Live)
}

// writeReport atomically replaces path with the JSON-encoded report.
func writeReport(path string, r report) error {
	data, err := sonnet.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
