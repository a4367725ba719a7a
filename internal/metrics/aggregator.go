package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Aggregator accumulates duration samples and counters keyed by
// operation name plus a canonicalized tag string. Samples are
// append-only; summaries are computed on snapshot copies so readers
// never sort shared state.
type Aggregator struct {
	mutex     sync.RWMutex
	counters  map[string]int64
	durations map[string][]time.Duration
	startTime time.Time
}

// Summary is a point-in-time view of everything recorded so far.
type Summary struct {
	Uptime     time.Duration        `json:"uptime"`
	Counters   map[string]int64     `json:"counters"`
	Histograms map[string]Histogram `json:"histograms"`
}

// Histogram summarizes the duration samples accumulated under one key.
type Histogram struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		counters:  make(map[string]int64),
		durations: make(map[string][]time.Duration),
		startTime: time.Now(),
	}
}

// Time measures op and records the outcome under name+tags: a duration
// sample either way, plus a .success or .error counter depending on how
// op resolved. The operation's error is passed through.
func (a *Aggregator) Time(name string, tags map[string]string, op func() error) error {
	start := time.Now()
	err := op()
	elapsed := time.Since(start)

	key := Key(name, tags)
	outcome := name + ".success"
	if err != nil {
		outcome = name + ".error"
	}

	a.mutex.Lock()
	a.durations[key] = append(a.durations[key], elapsed)
	a.counters[Key(outcome, tags)]++
	a.mutex.Unlock()

	return err
}

// Increment adds n to the counter under name+tags.
func (a *Aggregator) Increment(name string, tags map[string]string, n int64) {
	key := Key(name, tags)
	a.mutex.Lock()
	a.counters[key] += n
	a.mutex.Unlock()
}

// Summary computes histograms from sorted snapshot copies of all
// accumulated samples.
func (a *Aggregator) Summary() Summary {
	a.mutex.RLock()

	summary := Summary{
		Uptime:     time.Since(a.startTime),
		Counters:   make(map[string]int64, len(a.counters)),
		Histograms: make(map[string]Histogram, len(a.durations)),
	}
	for key, count := range a.counters {
		summary.Counters[key] = count
	}

	snapshots := make(map[string][]time.Duration, len(a.durations))
	for key, samples := range a.durations {
		copied := make([]time.Duration, len(samples))
		copy(copied, samples)
		snapshots[key] = copied
	}
	a.mutex.RUnlock()

	for key, samples := range snapshots {
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		summary.Histograms[key] = Histogram{
			Count: len(samples),
			Min:   samples[0],
			Max:   samples[len(samples)-1],
			Mean:  average(samples),
			P50:   Percentile(samples, 0.50),
			P95:   Percentile(samples, 0.95),
			P99:   Percentile(samples, 0.99),
		}
	}

	return summary
}

// Reset discards all accumulated samples and counters.
func (a *Aggregator) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.counters = make(map[string]int64)
	a.durations = make(map[string][]time.Duration)
	a.startTime = time.Now()
}

// Key combines an operation name with its tags, sorted
// lexicographically so tag order never produces distinct keys for
// identical tag sets.
func Key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}

	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return name + "{" + strings.Join(pairs, ",") + "}"
}

// Percentile indexes sorted ascending samples at ceil(p*n)-1, clamped
// to the first sample.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return sum / time.Duration(len(samples))
}
