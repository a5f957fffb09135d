package indicator

import (
	"math"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// ————————————————————————————————————————————————————————————————————————
// SMA
// ————————————————————————————————————————————————————————————————————————

// SMA is a simple moving average of closes over a fixed period.
type SMA struct {
	win *window
}

// NewSMA creates an SMA over the given period.
func NewSMA(period int) *SMA {
	return &SMA{win: newWindow(period)}
}

func newSMAFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 0)
	if err != nil {
		return nil, err
	}
	return NewSMA(period), nil
}

func (s *SMA) Update(c *types.Candle) {
	s.win.Push(c.Close)
}

func (s *SMA) Warm() bool { return s.win.Full() }

func (s *SMA) Value(string) float64 {
	if !s.Warm() {
		return math.NaN()
	}
	return s.win.Mean()
}

// ————————————————————————————————————————————————————————————————————————
// EMA
// ————————————————————————————————————————————————————————————————————————

// EMA is an exponential moving average with alpha = 2/(period+1), seeded
// with the SMA of the first period closes.
type EMA struct {
	period int
	alpha  float64
	seed   *window
	value  float64
	warm   bool
}

// NewEMA creates an EMA over the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
		seed:   newWindow(period),
	}
}

func newEMAFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 0)
	if err != nil {
		return nil, err
	}
	return NewEMA(period), nil
}

func (e *EMA) Update(c *types.Candle) {
	e.push(c.Close)
}

func (e *EMA) push(v float64) {
	if e.warm {
		e.value = e.value*(1-e.alpha) + v*e.alpha
		return
	}
	e.seed.Push(v)
	if e.seed.Full() {
		e.value = e.seed.Mean()
		e.warm = true
	}
}

func (e *EMA) Warm() bool { return e.warm }

func (e *EMA) Value(string) float64 {
	if !e.warm {
		return math.NaN()
	}
	return e.value
}

// ————————————————————————————————————————————————————————————————————————
// WMA
// ————————————————————————————————————————————————————————————————————————

// WMA is a linearly weighted moving average: the newest close carries weight
// period, the oldest weight 1. The weighted numerator is maintained with the
// standard rolling recurrence num' = num - total + n*new.
type WMA struct {
	win    *window
	num    float64 // weighted sum: 1*oldest + ... + n*newest
	denom  float64
	period int
}

// NewWMA creates a WMA over the given period.
func NewWMA(period int) *WMA {
	return &WMA{
		win:    newWindow(period),
		denom:  float64(period) * float64(period+1) / 2,
		period: period,
	}
}

func newWMAFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 0)
	if err != nil {
		return nil, err
	}
	return NewWMA(period), nil
}

func (w *WMA) Update(c *types.Candle) {
	totalBefore := w.win.sum
	countBefore := w.win.count
	_, wasFull := w.win.Push(c.Close)
	if wasFull {
		w.num = w.num - totalBefore + float64(w.period)*c.Close
	} else {
		w.num += float64(countBefore+1) * c.Close
	}
}

func (w *WMA) Warm() bool { return w.win.Full() }

func (w *WMA) Value(string) float64 {
	if !w.Warm() {
		return math.NaN()
	}
	return w.num / w.denom
}

// ————————————————————————————————————————————————————————————————————————
// MACD
// ————————————————————————————————————————————————————————————————————————

// MACD is the difference of a fast and slow EMA plus an EMA of that
// difference. Outputs: "value" (the MACD line), "signal", "histogram".
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD(fast, slow, signal).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func newMACDFromParams(params map[string]float64) (Indicator, error) {
	fast, err := intParam(params, "fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := intParam(params, "slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := intParam(params, "signal", 9)
	if err != nil {
		return nil, err
	}
	return NewMACD(fast, slow, signal), nil
}

func (m *MACD) Update(c *types.Candle) {
	m.fast.Update(c)
	m.slow.Update(c)
	if m.fast.Warm() && m.slow.Warm() {
		m.signal.push(m.fast.Value("") - m.slow.Value(""))
	}
}

func (m *MACD) Warm() bool { return m.signal.Warm() }

func (m *MACD) Value(output string) float64 {
	if !m.Warm() {
		return math.NaN()
	}
	line := m.fast.Value("") - m.slow.Value("")
	switch output {
	case "", "value":
		return line
	case "signal":
		return m.signal.Value("")
	case "histogram":
		return line - m.signal.Value("")
	default:
		return math.NaN()
	}
}
