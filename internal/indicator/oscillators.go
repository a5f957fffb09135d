package indicator

import (
	"math"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// ————————————————————————————————————————————————————————————————————————
// RSI
// ————————————————————————————————————————————————————————————————————————

// RSI is the relative strength index with Wilder smoothing of average gains
// and losses. Output is clamped to [0, 100].
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	seen      int // deltas observed
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates an RSI over the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func newRSIFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 14)
	if err != nil {
		return nil, err
	}
	return NewRSI(period), nil
}

func (r *RSI) Update(c *types.Candle) {
	if !r.hasPrev {
		r.prevClose = c.Close
		r.hasPrev = true
		return
	}

	delta := c.Close - r.prevClose
	r.prevClose = c.Close
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.seen++
	if r.seen <= r.period {
		// Seed phase: plain average of the first period deltas.
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
		return
	}
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

func (r *RSI) Warm() bool { return r.seen >= r.period }

func (r *RSI) Value(string) float64 {
	if !r.Warm() {
		return math.NaN()
	}
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	v := 100 - 100/(1+rs)
	return math.Max(0, math.Min(100, v))
}

// ————————————————————————————————————————————————————————————————————————
// Bollinger
// ————————————————————————————————————————————————————————————————————————

// Bollinger computes SMA ± k·σ bands, with σ derived from a rolling sum of
// squares. Outputs: "upper", "middle" (default), "lower".
type Bollinger struct {
	win   *window
	sumSq float64
	k     float64
}

// NewBollinger creates Bollinger bands over period with width k.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{win: newWindow(period), k: k}
}

func newBollingerFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 20)
	if err != nil {
		return nil, err
	}
	return NewBollinger(period, floatParam(params, "k", 2)), nil
}

func (b *Bollinger) Update(c *types.Candle) {
	evicted, full := b.win.Push(c.Close)
	if full {
		b.sumSq -= evicted * evicted
	}
	b.sumSq += c.Close * c.Close
}

func (b *Bollinger) Warm() bool { return b.win.Full() }

func (b *Bollinger) Value(output string) float64 {
	if !b.Warm() {
		return math.NaN()
	}
	mean := b.win.Mean()
	variance := b.sumSq/float64(b.win.count) - mean*mean
	if variance < 0 {
		variance = 0 // floating-point cancellation
	}
	sigma := math.Sqrt(variance)

	switch output {
	case "upper":
		return mean + b.k*sigma
	case "", "value", "middle":
		return mean
	case "lower":
		return mean - b.k*sigma
	default:
		return math.NaN()
	}
}

// ————————————————————————————————————————————————————————————————————————
// Stochastic
// ————————————————————————————————————————————————————————————————————————

// Stochastic computes %K from the highest-high / lowest-low range over
// kPeriod and %D as an SMA(dPeriod) of %K. Outputs: "k" (default), "d".
type Stochastic struct {
	highs *window
	lows  *window
	d     *window
	k     float64
}

// NewStochastic creates a Stochastic(kPeriod, dPeriod) oscillator.
func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{
		highs: newWindow(kPeriod),
		lows:  newWindow(kPeriod),
		d:     newWindow(dPeriod),
	}
}

func newStochasticFromParams(params map[string]float64) (Indicator, error) {
	kPeriod, err := intParam(params, "k_period", 14)
	if err != nil {
		return nil, err
	}
	dPeriod, err := intParam(params, "d_period", 3)
	if err != nil {
		return nil, err
	}
	return NewStochastic(kPeriod, dPeriod), nil
}

func (s *Stochastic) Update(c *types.Candle) {
	s.highs.Push(c.High)
	s.lows.Push(c.Low)
	if !s.highs.Full() {
		return
	}
	hh := s.highs.Max()
	ll := s.lows.Min()
	if hh == ll {
		s.k = 50 // flat range
	} else {
		s.k = 100 * (c.Close - ll) / (hh - ll)
	}
	s.d.Push(s.k)
}

func (s *Stochastic) Warm() bool { return s.d.Full() }

func (s *Stochastic) Value(output string) float64 {
	if !s.Warm() {
		return math.NaN()
	}
	switch output {
	case "", "value", "k":
		return s.k
	case "d":
		return s.d.Mean()
	default:
		return math.NaN()
	}
}

// ————————————————————————————————————————————————————————————————————————
// ATR
// ————————————————————————————————————————————————————————————————————————

// ATR is the average true range with Wilder smoothing.
type ATR struct {
	period    int
	prevClose float64
	hasPrev   bool
	seen      int
	value     float64
}

// NewATR creates an ATR over the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func newATRFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 14)
	if err != nil {
		return nil, err
	}
	return NewATR(period), nil
}

func trueRange(c *types.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

func (a *ATR) Update(c *types.Candle) {
	if !a.hasPrev {
		a.prevClose = c.Close
		a.hasPrev = true
		return
	}
	tr := trueRange(c, a.prevClose)
	a.prevClose = c.Close

	a.seen++
	if a.seen <= a.period {
		a.value += tr / float64(a.period)
		return
	}
	p := float64(a.period)
	a.value = (a.value*(p-1) + tr) / p
}

func (a *ATR) Warm() bool { return a.seen >= a.period }

func (a *ATR) Value(string) float64 {
	if !a.Warm() {
		return math.NaN()
	}
	return a.value
}

// ————————————————————————————————————————————————————————————————————————
// ADX
// ————————————————————————————————————————————————————————————————————————

// ADX is the average directional index: Wilder-smoothed directional
// movement normalized by true range, then Wilder-smoothed again. Output is
// in [0, 100].
type ADX struct {
	period  int
	prev    types.Candle
	hasPrev bool
	seen    int // directional samples observed
	smTR    float64
	smPlus  float64
	smMinus float64
	dxSeen  int
	adx     float64
}

// NewADX creates an ADX over the given period.
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func newADXFromParams(params map[string]float64) (Indicator, error) {
	period, err := intParam(params, "period", 14)
	if err != nil {
		return nil, err
	}
	return NewADX(period), nil
}

func (a *ADX) Update(c *types.Candle) {
	if !a.hasPrev {
		a.prev = *c
		a.hasPrev = true
		return
	}

	upMove := c.High - a.prev.High
	downMove := a.prev.Low - c.Low
	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	tr := trueRange(c, a.prev.Close)
	a.prev = *c

	p := float64(a.period)
	a.seen++
	if a.seen <= a.period {
		// Seed phase: plain sums.
		a.smTR += tr
		a.smPlus += plusDM
		a.smMinus += minusDM
		if a.seen < a.period {
			return
		}
	} else {
		a.smTR = a.smTR - a.smTR/p + tr
		a.smPlus = a.smPlus - a.smPlus/p + plusDM
		a.smMinus = a.smMinus - a.smMinus/p + minusDM
	}

	if a.smTR == 0 {
		return
	}
	plusDI := 100 * a.smPlus / a.smTR
	minusDI := 100 * a.smMinus / a.smTR
	sum := plusDI + minusDI
	if sum == 0 {
		return
	}
	dx := 100 * math.Abs(plusDI-minusDI) / sum

	a.dxSeen++
	if a.dxSeen <= a.period {
		a.adx += dx / p
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}

func (a *ADX) Warm() bool { return a.dxSeen >= a.period }

func (a *ADX) Value(string) float64 {
	if !a.Warm() {
		return math.NaN()
	}
	return math.Max(0, math.Min(100, a.adx))
}

// ————————————————————————————————————————————————————————————————————————
// OBV
// ————————————————————————————————————————————————————————————————————————

// OBV is cumulative signed volume. The synthetic tape the engine produces
// carries zero volume, so OBV stays at 0 unless a real volume feed is wired
// in; it is kept so such a feed is a drop-in.
type OBV struct {
	prevClose float64
	hasPrev   bool
	value     float64
}

// NewOBV creates an on-balance-volume accumulator.
func NewOBV() *OBV {
	return &OBV{}
}

func newOBVFromParams(map[string]float64) (Indicator, error) {
	return NewOBV(), nil
}

func (o *OBV) Update(c *types.Candle) {
	if !o.hasPrev {
		o.prevClose = c.Close
		o.hasPrev = true
		return
	}
	switch {
	case c.Close > o.prevClose:
		o.value += c.Volume
	case c.Close < o.prevClose:
		o.value -= c.Volume
	}
	o.prevClose = c.Close
}

func (o *OBV) Warm() bool { return o.hasPrev }

func (o *OBV) Value(string) float64 {
	if !o.Warm() {
		return math.NaN()
	}
	return o.value
}
