package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pathcanon/pathcanon/internal/logging"
)

const maxTraceLine = 4 << 20

type Summary struct {
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Operations  []CountItem    `json:"operations"`
	Failures    []CountItem    `json:"failures"`
	TopSymlinks []CountItem    `json:"top_symlinks"`
	Cache       CacheSummary   `json:"cache"`
	Latency     LatencySummary `json:"latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CacheSummary totals realpath cache lookups. A known-hard miss costs an
// lstat and a link-target miss costs a readlink.
type CacheSummary struct {
	KnownHardHits int     `json:"known_hard_hits"`
	LinkCacheHits int     `json:"link_cache_hits"`
	Lstats        int     `json:"lstats"`
	Readlinks     int     `json:"readlinks"`
	HitRatio      float64 `json:"hit_ratio"`
}

// LatencySummary is in microseconds.
type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return r.ReadFrom(file)
}

func (r *Reader) ReadFrom(in io.Reader) ([]logging.Trace, error) {
	var traces []logging.Trace
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTraceLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t logging.Trace
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !r.Since.IsZero() && t.Timestamp.Before(r.Since) {
			continue
		}
		traces = append(traces, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return traces, nil
}

func Summarize(traces []logging.Trace) Summary {
	var summary Summary
	if len(traces) == 0 {
		return summary
	}

	summary.Start = traces[0].Timestamp
	summary.End = traces[0].Timestamp

	opCounts := map[string]int{}
	failureCounts := map[string]int{}
	symlinkCounts := map[string]int{}
	latencies := make([]int64, 0, len(traces))

	for _, t := range traces {
		summary.Total++
		if t.Timestamp.Before(summary.Start) {
			summary.Start = t.Timestamp
		}
		if t.Timestamp.After(summary.End) {
			summary.End = t.Timestamp
		}

		opCounts[t.Op]++
		if t.Failed() {
			summary.Failed++
			failureCounts[t.Code]++
		} else {
			summary.Succeeded++
		}

		for _, link := range t.Splices {
			symlinkCounts[link.Path]++
		}
		if s := t.Stats; s != nil {
			summary.Cache.KnownHardHits += s.KnownHardHits
			summary.Cache.LinkCacheHits += s.LinkCacheHits
			summary.Cache.Lstats += s.Lstats
			summary.Cache.Readlinks += s.Readlinks
		}

		latencies = append(latencies, t.DurationUS)
	}

	summary.Operations = topCounts(opCounts, len(opCounts))
	summary.Failures = topCounts(failureCounts, 10)
	summary.TopSymlinks = topCounts(symlinkCounts, 5)
	summary.Cache.HitRatio = hitRatio(summary.Cache)
	summary.Latency = latencySummary(latencies)

	return summary
}

func hitRatio(c CacheSummary) float64 {
	hits := c.KnownHardHits + c.LinkCacheHits
	lookups := hits + c.Lstats + c.Readlinks
	if lookups == 0 {
		return 0
	}
	return float64(hits) / float64(lookups)
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func latencySummary(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	idx = max(0, min(idx, len(values)-1))
	return float64(values[idx])
}
