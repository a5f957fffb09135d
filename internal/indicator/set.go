package indicator

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// Set holds the run's indicators keyed by IR id and resolves value
// references of the form "id" (default output) or "id.output".
type Set struct {
	order []string // insertion order, for deterministic iteration
	inds  map[string]Indicator
}

// NewSet creates an empty indicator set.
func NewSet() *Set {
	return &Set{inds: make(map[string]Indicator)}
}

// Add registers an indicator under its IR id.
func (s *Set) Add(id string, ind Indicator) error {
	if _, ok := s.inds[id]; ok {
		return fmt.Errorf("duplicate indicator id %q", id)
	}
	s.order = append(s.order, id)
	s.inds[id] = ind
	return nil
}

// Len returns the number of indicators.
func (s *Set) Len() int { return len(s.inds) }

// Has reports whether an indicator id is registered.
func (s *Set) Has(id string) bool {
	_, ok := s.inds[id]
	return ok
}

// Update feeds the candle to every indicator sequentially, in insertion
// order.
func (s *Set) Update(c *types.Candle) {
	for _, id := range s.order {
		s.inds[id].Update(c)
	}
}

// UpdateParallel feeds the candle to every indicator concurrently.
// Indicators are mutually independent by construction, so this is safe; it
// only pays off for large sets and is disabled by default in config.
func (s *Set) UpdateParallel(c *types.Candle) {
	var wg sync.WaitGroup
	wg.Add(len(s.order))
	for _, id := range s.order {
		ind := s.inds[id]
		go func() {
			defer wg.Done()
			ind.Update(c)
		}()
	}
	wg.Wait()
}

// Value resolves an indicator reference. Unknown ids return NaN; the
// strategy layer treats NaN as "condition false".
func (s *Set) Value(ref string) float64 {
	id, output, _ := strings.Cut(ref, ".")
	ind, ok := s.inds[id]
	if !ok {
		return math.NaN()
	}
	return ind.Value(output)
}
