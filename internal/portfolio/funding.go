package portfolio

import (
	"fmt"
	"sort"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// FundingIntervalMs is the venue's funding cadence: every eight hours.
const FundingIntervalMs = 8 * 60 * 60 * 1000

// FundingSchedule is a sorted sequence of (timestamp, rate) points with
// O(log n) rate lookup.
type FundingSchedule struct {
	points []types.FundingPoint
}

// NewFundingSchedule validates and wraps a funding history. Points must be
// strictly increasing in timestamp.
func NewFundingSchedule(points []types.FundingPoint) (*FundingSchedule, error) {
	for i := 1; i < len(points); i++ {
		if points[i].TsMs <= points[i-1].TsMs {
			return nil, fmt.Errorf("funding schedule not strictly sorted at index %d (ts %d after %d)",
				i, points[i].TsMs, points[i-1].TsMs)
		}
	}
	return &FundingSchedule{points: points}, nil
}

// ZeroFundingSchedule returns an empty schedule whose rate is always 0.
// Used for degraded mode when the funding fetch is unavailable.
func ZeroFundingSchedule() *FundingSchedule {
	return &FundingSchedule{}
}

// RateAt returns the rate of the latest point at or before tsMs, or 0 when
// tsMs precedes the schedule.
func (s *FundingSchedule) RateAt(tsMs uint64) float64 {
	// First point strictly after tsMs; the answer is the one before it.
	i := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].TsMs > tsMs
	})
	if i == 0 {
		return 0
	}
	return s.points[i-1].Rate
}

// Len returns the number of points in the schedule.
func (s *FundingSchedule) Len() int { return len(s.points) }

// Covers reports whether the schedule spans [startMs-8h, endMs], the range
// a run over [startMs, endMs] can observe.
func (s *FundingSchedule) Covers(startMs, endMs uint64) bool {
	if len(s.points) == 0 {
		return false
	}
	want := startMs
	if want > FundingIntervalMs {
		want -= FundingIntervalMs
	}
	return s.points[0].TsMs <= want && s.points[len(s.points)-1].TsMs >= endMs
}

// FundingPayment computes the payment for an open position at a mark price:
// size * mark * rate. Longs pay a positive rate, shorts receive it, which
// falls out of the signed size.
func FundingPayment(positionSize, markPx, rate float64) float64 {
	return positionSize * markPx * rate
}
