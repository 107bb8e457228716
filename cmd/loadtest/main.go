// Command loadtest drives the search service with concurrent requests and
// reports latency percentiles split by whether the query was expanded.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -queries topics.tsv -expand
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/batch"
)

var defaultQueries = []string{
	"apple pie",
	"international organized crime",
	"hubble telescope achievements",
	"#combine:fbdocs=5(rain forest)",
	"#combine:0=2:1=1(oil spill)",
}

type Stats struct {
	total       atomic.Int64
	errors      atomic.Int64
	expanded    atomic.Int64
	statusMu    sync.Mutex
	statusCodes map[int]int64
	latencyMu   sync.Mutex
	plain       []time.Duration
	withExp     []time.Duration
}

func (s *Stats) record(d time.Duration, status int, expanded bool, err error) {
	s.total.Add(1)
	if err != nil || status != http.StatusOK {
		s.errors.Add(1)
	}
	if err != nil {
		return
	}
	s.statusMu.Lock()
	s.statusCodes[status]++
	s.statusMu.Unlock()

	s.latencyMu.Lock()
	if expanded {
		s.expanded.Add(1)
		s.withExp = append(s.withExp, d)
	} else {
		s.plain = append(s.plain, d)
	}
	s.latencyMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	queryFile := flag.String("queries", "", "TSV query file; a built-in list is used when empty")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	expand := flag.Bool("expand", true, "request pseudo-relevance feedback expansion")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		parsed, err := batch.ReadQueryFile(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = queries[:0:0]
		for _, q := range parsed {
			queries = append(queries, q.Text)
		}
	}
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "no queries to send")
		os.Exit(1)
	}

	fmt.Println("=== Feedback Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique, expand=%v\n\n", len(queries), *expand)

	stats := &Stats{statusCodes: make(map[int]int64)}
	if err := run(*baseURL, queries, *concurrency, *duration, *expand, stats); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
		os.Exit(1)
	}
	report(stats, *duration)
}

func run(baseURL string, queries []string, workers int, duration time.Duration, expand bool, stats *Stats) error {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        workers * 2,
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10&expand=%t", baseURL, url.QueryEscape(q), expand)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, false, err)
					}
					continue
				}
				var body struct {
					Expanded bool `json:"expanded"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, body.Expanded, nil)
			}
			return nil
		})
	}
	return g.Wait()
}

func report(stats *Stats, duration time.Duration) {
	total := stats.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", stats.errors.Load())
	fmt.Printf("Expanded:        %d\n", stats.expanded.Load())
	if total > 0 {
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latencyMu.Lock()
	printLatencies("Expanded queries", stats.withExp)
	printLatencies("Unexpanded queries", stats.plain)
	stats.latencyMu.Unlock()

	fmt.Println("\n=== Status Codes ===")
	stats.statusMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}
	stats.statusMu.Unlock()

	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func printLatencies(title string, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	fmt.Printf("\n=== %s (%d) ===\n", title, len(sorted))
	fmt.Printf("Avg:    %s\n", sum/time.Duration(len(sorted)))
	fmt.Printf("P50:    %s\n", percentile(sorted, 50))
	fmt.Printf("P95:    %s\n", percentile(sorted, 95))
	fmt.Printf("P99:    %s\n", percentile(sorted, 99))
	fmt.Printf("Max:    %s\n", sorted[len(sorted)-1])
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
