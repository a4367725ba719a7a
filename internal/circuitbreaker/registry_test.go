package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(3, 100*time.Millisecond)
	})

	It("should create a breaker on first reference", func() {
		cb := registry.GetBreaker("openai")
		Expect(cb).NotTo(BeNil())
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should return the same breaker for the same backend", func() {
		first := registry.GetBreaker("openai")
		second := registry.GetBreaker("openai")
		Expect(first).To(BeIdenticalTo(second))
	})

	It("should keep breakers independent per backend", func() {
		a := registry.GetBreaker("openai")
		b := registry.GetBreaker("anthropic")

		a.RecordFailure()
		a.RecordFailure()
		a.RecordFailure()

		Expect(a.State()).To(Equal(circuitbreaker.StateOpen))
		Expect(b.State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should return one instance under concurrent access", func() {
		var wg sync.WaitGroup
		results := make([]*circuitbreaker.CircuitBreaker, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = registry.GetBreaker("gemini")
			}(i)
		}
		wg.Wait()

		for _, cb := range results {
			Expect(cb).To(BeIdenticalTo(results[0]))
		}
	})

	Describe("Stats", func() {
		It("should report current state per backend", func() {
			registry.GetBreaker("openai")
			b := registry.GetBreaker("anthropic")
			b.RecordFailure()
			b.RecordFailure()
			b.RecordFailure()

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["openai"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["anthropic"]).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Reset", func() {
		It("should discard all breakers", func() {
			cb := registry.GetBreaker("openai")
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()

			registry.Reset()

			fresh := registry.GetBreaker("openai")
			Expect(fresh.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("OnStateChange", func() {
		It("should tag transitions with the backend name", func() {
			var mu sync.Mutex
			var names []string
			registry.OnStateChange(func(backend string, from, to circuitbreaker.State) {
				mu.Lock()
				names = append(names, backend)
				mu.Unlock()
			})

			cb := registry.GetBreaker("openai")
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()

			mu.Lock()
			defer mu.Unlock()
			Expect(names).To(Equal([]string{"openai"}))
		})
	})
})
