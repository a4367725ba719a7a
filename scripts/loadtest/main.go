// Loadtest is a concurrent load testing tool for the gateway's
// /generate endpoint. It measures throughput, latency percentiles, and
// which backend in the fallback chain served each request.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/generate -concurrency 10 -requests 1000
//	go run ./scripts/loadtest -url http://localhost:8080/generate -prompt "write a haiku" -out summary.json
//
// Features:
//   - Concurrent workers for high throughput testing
//   - Per-backend latency and distribution statistics from the
//     response's backend_used field
//   - JSON summary with percentiles (p50, p90, p95, p99)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/generate", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		prompt      = flag.String("prompt", "Summarize the plot of Hamlet in two sentences.", "Prompt to send")
		backendName = flag.String("backend", "", "Preferred backend (optional)")
		timeoutSec  = flag.Int("timeout", 60, "Per-request timeout in seconds")
	)

	outJSON := flag.String("out", "", "Write JSON summary to this file (optional)")
	verbose := flag.Bool("v", false, "Verbose per-request logging to stdout")
	flag.Parse()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	payload, err := json.Marshal(map[string]string{
		"prompt":  *prompt,
		"backend": *backendName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal request body: %v\n", err)
		os.Exit(1)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total int32
	var success int32
	var failure int32

	// BackendStats tracks statistics for one backend in the chain.
	type BackendStats struct {
		Count     int32
		Success   int32
		Failure   int32
		Latencies []time.Duration
	}

	backendStats := make(map[string]*BackendStats)
	var backendMu sync.Mutex

	var allLatencies []time.Duration
	var latMu sync.Mutex

	statusCodes := make(map[int]int32)
	var statusMu sync.Mutex

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				atomic.AddInt32(&total, 1)
				start := time.Now()

				req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(payload))
				if err != nil {
					atomic.AddInt32(&failure, 1)
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				dur := time.Since(start)

				latMu.Lock()
				allLatencies = append(allLatencies, dur)
				latMu.Unlock()

				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				statusMu.Lock()
				statusCodes[resp.StatusCode]++
				statusMu.Unlock()

				ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
				if ok {
					atomic.AddInt32(&success, 1)
				} else {
					atomic.AddInt32(&failure, 1)
				}

				// The serving backend is in the response body, not a
				// header.
				backend := "(unknown)"
				body, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()
				if readErr == nil && ok {
					var generated struct {
						BackendUsed string `json:"backend_used"`
					}
					if json.Unmarshal(body, &generated) == nil && generated.BackendUsed != "" {
						backend = generated.BackendUsed
					}
				}

				backendMu.Lock()
				bs, found := backendStats[backend]
				if !found {
					bs = &BackendStats{}
					backendStats[backend] = bs
				}
				bs.Count++
				if ok {
					bs.Success++
				} else {
					bs.Failure++
				}
				bs.Latencies = append(bs.Latencies, dur)
				backendMu.Unlock()

				if *verbose {
					fmt.Printf("[%d] idx=%d backend=%s status=%d dur=%v\n", workerID, idx, backend, resp.StatusCode, dur)
				}
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)
	throughput := float64(total) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Success: %d  Failure: %d\n", total, success, failure)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var scKeys []int
	for k := range statusCodes {
		scKeys = append(scKeys, k)
	}
	sort.Ints(scKeys)
	for _, k := range scKeys {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	percentile := func(sorted []time.Duration, p float64) time.Duration {
		idx := int(float64(len(sorted)-1) * p)
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	fmt.Println("\nBackend distribution & stats:")
	var backendKeys []string
	for k := range backendStats {
		backendKeys = append(backendKeys, k)
	}
	sort.Strings(backendKeys)
	for _, k := range backendKeys {
		bs := backendStats[k]
		fmt.Printf("  %s -> total=%d success=%d failure=%d\n", k, bs.Count, bs.Success, bs.Failure)

		if len(bs.Latencies) == 0 {
			continue
		}
		tmp := make([]time.Duration, len(bs.Latencies))
		copy(tmp, bs.Latencies)
		sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

		var sum time.Duration
		for _, d := range tmp {
			sum += d
		}
		fmt.Printf("    latencies: samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			len(tmp), tmp[0], sum/time.Duration(len(tmp)), tmp[len(tmp)-1],
			percentile(tmp, 0.50), percentile(tmp, 0.90), percentile(tmp, 0.95), percentile(tmp, 0.99))
	}

	if len(allLatencies) > 0 {
		tmp := make([]time.Duration, len(allLatencies))
		copy(tmp, allLatencies)
		sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
		var sum time.Duration
		for _, d := range tmp {
			sum += d
		}
		fmt.Println("\nOverall latencies:")
		fmt.Printf("  samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			len(tmp), tmp[0], sum/time.Duration(len(tmp)), tmp[len(tmp)-1],
			percentile(tmp, 0.50), percentile(tmp, 0.90), percentile(tmp, 0.95), percentile(tmp, 0.99))
	}

	if *outJSON != "" {
		type BackendSummary struct {
			Total   int32   `json:"total"`
			Success int32   `json:"success"`
			Failure int32   `json:"failure"`
			P50     float64 `json:"p50_ms"`
			P90     float64 `json:"p90_ms"`
			P95     float64 `json:"p95_ms"`
			P99     float64 `json:"p99_ms"`
		}
		report := map[string]interface{}{
			"target":         *url,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total,
			"success":        success,
			"failure":        failure,
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
		}

		bsum := map[string]BackendSummary{}
		for k, v := range backendStats {
			bs := BackendSummary{Total: v.Count, Success: v.Success, Failure: v.Failure}
			if len(v.Latencies) > 0 {
				tmp := make([]time.Duration, len(v.Latencies))
				copy(tmp, v.Latencies)
				sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
				pick := func(p float64) float64 { return float64(percentile(tmp, p).Milliseconds()) }
				bs.P50 = pick(0.50)
				bs.P90 = pick(0.90)
				bs.P95 = pick(0.95)
				bs.P99 = pick(0.99)
			}
			bsum[k] = bs
		}
		report["backends"] = bsum

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure > 0 {
		os.Exit(2)
	}
}
