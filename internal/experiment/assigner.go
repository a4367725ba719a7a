package experiment

import (
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/avasilakis/llm-gateway/internal/metrics"
)

// weightTolerance is how far variant weights may stray from summing to
// exactly 1.0.
const weightTolerance = 0.001

var (
	// ErrInvalidWeights is returned when variant weights do not sum
	// to 1.0 within tolerance.
	ErrInvalidWeights = errors.New("variant weights must sum to 1.0")

	// ErrNotFound is returned for an unknown experiment id.
	ErrNotFound = errors.New("experiment not found")

	// ErrUnknownVariant is returned when recording against a variant
	// the experiment never declared.
	ErrUnknownVariant = errors.New("unknown variant")
)

// Variant is one named alternative under comparison, with its share of
// traffic.
type Variant struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Outcome is one recorded result for a variant.
type Outcome struct {
	Success bool
	Latency time.Duration
}

// VariantResults aggregates the outcomes recorded for one variant.
type VariantResults struct {
	SampleSize int           `json:"sample_size"`
	ErrorRate  float64       `json:"error_rate"`
	AvgLatency time.Duration `json:"avg_latency"`
	P95Latency time.Duration `json:"p95_latency"`
}

type experiment struct {
	variants []Variant
	created  time.Time
	results  map[string][]Outcome
}

// Assigner deterministically assigns subjects to experiment variants
// and accumulates per-variant outcomes.
type Assigner struct {
	mutex       sync.RWMutex
	experiments map[string]*experiment
	logger      *slog.Logger
}

func NewAssigner(logger *slog.Logger) *Assigner {
	return &Assigner{
		experiments: make(map[string]*experiment),
		logger:      logger,
	}
}

// Start creates an experiment from an ordered variant list. The weights
// must sum to 1.0 within a 0.001 tolerance.
func (a *Assigner) Start(id string, variants []Variant) error {
	if len(variants) == 0 {
		return fmt.Errorf("%w: no variants declared", ErrInvalidWeights)
	}

	sum := 0.0
	for _, v := range variants {
		sum += v.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: got %.4f", ErrInvalidWeights, sum)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, exists := a.experiments[id]; exists {
		return fmt.Errorf("experiment %q already exists", id)
	}

	declared := make([]Variant, len(variants))
	copy(declared, variants)
	a.experiments[id] = &experiment{
		variants: declared,
		created:  time.Now(),
		results:  make(map[string][]Outcome),
	}

	a.logger.Info("experiment started",
		slog.String("experiment", id),
		slog.Int("variants", len(declared)))
	return nil
}

// Assign picks a variant for subjectKey by hashing the key to [0,1) and
// walking cumulative weights in declaration order. The same key always
// lands on the same variant; an empty key is assigned uniformly at
// random.
func (a *Assigner) Assign(id, subjectKey string) (string, error) {
	a.mutex.RLock()
	exp, exists := a.experiments[id]
	a.mutex.RUnlock()

	if !exists {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	var point float64
	if subjectKey == "" {
		point = rand.Float64()
	} else {
		point = hashPoint(subjectKey)
	}

	cumulative := 0.0
	for _, v := range exp.variants {
		cumulative += v.Weight
		if point <= cumulative {
			return v.Name, nil
		}
	}

	// Floating-point drift can leave the point past the last
	// cumulative sum; fall back to the first declared variant.
	return exp.variants[0].Name, nil
}

// Record appends an outcome to the named variant's result list.
func (a *Assigner) Record(id, variant string, outcome Outcome) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	exp, exists := a.experiments[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	if !exp.declares(variant) {
		return fmt.Errorf("%w: %q in experiment %q", ErrUnknownVariant, variant, id)
	}

	exp.results[variant] = append(exp.results[variant], outcome)
	return nil
}

// Results summarizes every declared variant, including those with no
// samples yet.
func (a *Assigner) Results(id string) (map[string]VariantResults, error) {
	a.mutex.RLock()
	exp, exists := a.experiments[id]
	if !exists {
		a.mutex.RUnlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	snapshot := make(map[string][]Outcome, len(exp.variants))
	for _, v := range exp.variants {
		outcomes := exp.results[v.Name]
		copied := make([]Outcome, len(outcomes))
		copy(copied, outcomes)
		snapshot[v.Name] = copied
	}
	a.mutex.RUnlock()

	results := make(map[string]VariantResults, len(snapshot))
	for name, outcomes := range snapshot {
		results[name] = summarize(outcomes)
	}
	return results, nil
}

func (e *experiment) declares(variant string) bool {
	for _, v := range e.variants {
		if v.Name == variant {
			return true
		}
	}
	return false
}

func summarize(outcomes []Outcome) VariantResults {
	if len(outcomes) == 0 {
		return VariantResults{}
	}

	failures := 0
	var total time.Duration
	latencies := make([]time.Duration, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Success {
			failures++
		}
		total += o.Latency
		latencies = append(latencies, o.Latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return VariantResults{
		SampleSize: len(outcomes),
		ErrorRate:  float64(failures) / float64(len(outcomes)),
		AvgLatency: total / time.Duration(len(outcomes)),
		P95Latency: metrics.Percentile(latencies, 0.95),
	}
}

// hashPoint maps a subject key to [0, 1) with a stable hash.
func hashPoint(key string) float64 {
	h := crc32.ChecksumIEEE([]byte(key))
	return float64(h) / float64(1<<32)
}
