// Package indicator implements the technical indicators the strategy layer
// reads: SMA, EMA, WMA, RSI, MACD, Bollinger bands, Stochastic, ATR, ADX,
// and OBV.
//
// Every indicator is a stateful updater fed one synthetic candle per event.
// Updates are incremental (O(1) per event except small fixed-window scans)
// because the engine pushes millions of events per run. Until an indicator
// has seen enough candles to be warm, its outputs are NaN; the strategy
// evaluator treats any condition touching NaN as false.
package indicator

import (
	"fmt"
	"math"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// Indicator is the capability set every indicator exposes. Value returns the
// named output, or the default output when name is "" or "value". The
// multi-output indicators (MACD, Bollinger, Stochastic) return NaN for
// unknown output names; single-output indicators ignore the name and return
// their one value.
type Indicator interface {
	Update(c *types.Candle)
	Value(output string) float64
	Warm() bool
}

// Constructor builds an indicator from its IR params.
type Constructor func(params map[string]float64) (Indicator, error)

// registry maps IR type strings to constructors.
var registry = map[string]Constructor{
	"sma":        newSMAFromParams,
	"ema":        newEMAFromParams,
	"wma":        newWMAFromParams,
	"rsi":        newRSIFromParams,
	"macd":       newMACDFromParams,
	"bollinger":  newBollingerFromParams,
	"stochastic": newStochasticFromParams,
	"atr":        newATRFromParams,
	"adx":        newADXFromParams,
	"obv":        newOBVFromParams,
}

// New builds an indicator of the given IR type.
func New(typ string, params map[string]float64) (Indicator, error) {
	ctor, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown indicator type %q", typ)
	}
	return ctor(params)
}

// Types returns the registered indicator type names.
func Types() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// intParam reads a positive integer parameter, falling back to def when the
// key is absent. def <= 0 makes the parameter required.
func intParam(params map[string]float64, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		if def > 0 {
			return def, nil
		}
		return 0, fmt.Errorf("missing required param %q", key)
	}
	n := int(v)
	if float64(n) != v || n <= 0 {
		return 0, fmt.Errorf("param %q must be a positive integer, got %v", key, v)
	}
	return n, nil
}

func floatParam(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// window is a fixed-capacity ring buffer with a running sum, shared by the
// windowed indicators.
type window struct {
	buf   []float64
	head  int
	count int
	sum   float64
}

func newWindow(n int) *window {
	return &window{buf: make([]float64, n)}
}

// Push adds v, evicting the oldest value once full, and returns the evicted
// value and whether an eviction happened.
func (w *window) Push(v float64) (evicted float64, full bool) {
	if w.count == len(w.buf) {
		evicted = w.buf[w.head]
		w.sum -= evicted
		full = true
	} else {
		w.count++
	}
	w.buf[w.head] = v
	w.sum += v
	w.head = (w.head + 1) % len(w.buf)
	return evicted, full
}

// Full reports whether the window holds capacity values.
func (w *window) Full() bool { return w.count == len(w.buf) }

// Mean returns the average of the held values.
func (w *window) Mean() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.count)
}

// Max returns the largest held value.
func (w *window) Max() float64 {
	m := math.Inf(-1)
	for i := 0; i < w.count; i++ {
		if w.buf[i] > m {
			m = w.buf[i]
		}
	}
	return m
}

// Min returns the smallest held value.
func (w *window) Min() float64 {
	m := math.Inf(1)
	for i := 0; i < w.count; i++ {
		if w.buf[i] < m {
			m = w.buf[i]
		}
	}
	return m
}
