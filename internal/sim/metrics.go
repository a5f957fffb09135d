package sim

import (
	"math"

	"github.com/franalgaba/hyperliquid-backtesting/internal/portfolio"
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// minutesPerYear annualizes statistics computed on the per-minute equity
// curve.
const minutesPerYear = 365.25 * 24 * 60

// ComputeMetrics summarizes a finished run from its equity curve and trade
// log. feesPaid and fundingPaid come from the portfolio's accumulators.
func ComputeMetrics(initialCash float64, equity []types.EquityPoint, trades []types.Trade, feesPaid, fundingPaid float64) types.Metrics {
	m := types.Metrics{
		TradeCount:  len(trades),
		FeesPaid:    feesPaid,
		FundingPaid: fundingPaid,
	}
	if len(equity) == 0 || initialCash <= 0 {
		return m
	}

	final := equity[len(equity)-1].Equity
	m.TotalReturn = final/initialCash - 1

	durMs := equity[len(equity)-1].TsMs - equity[0].TsMs
	if durMs > 0 {
		years := float64(durMs) / (365.25 * 24 * 3600 * 1000)
		ratio := final / initialCash
		if ratio > 0 {
			m.AnnualizedReturn = math.Pow(ratio, 1/years) - 1
		}
	}

	m.SharpeRatio, m.SortinoRatio = riskAdjusted(equity)
	m.MaxDrawdown = maxDrawdown(equity)
	m.WinRate, m.ProfitFactor = tradeStats(trades)
	return m
}

// riskAdjusted computes annualized Sharpe and Sortino ratios over the
// per-sample equity returns (zero risk-free rate).
func riskAdjusted(equity []types.EquityPoint) (sharpe, sortino float64) {
	if len(equity) < 3 {
		return 0, 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0, 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance, downVariance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
		}
	}
	variance /= float64(len(returns) - 1)
	downVariance /= float64(len(returns))

	ann := math.Sqrt(minutesPerYear)
	if sd := math.Sqrt(variance); sd > 0 {
		sharpe = mean / sd * ann
	}
	if dd := math.Sqrt(downVariance); dd > 0 {
		sortino = mean / dd * ann
	}
	return sharpe, sortino
}

// maxDrawdown returns the largest peak-to-trough equity decline as a
// positive fraction of the peak.
func maxDrawdown(equity []types.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// tradeStats replays the trade log through a fresh portfolio and records the
// realized PnL delta of every position-reducing fill. Win rate is the share
// of reducing fills that realized a profit; profit factor is gross profit
// over gross loss.
func tradeStats(trades []types.Trade) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	p := portfolio.New(0)
	var wins, reducing int
	var grossProfit, grossLoss float64
	prevRealized := 0.0

	for _, t := range trades {
		p.ApplyFill(t.Side == types.BUY, t.Size, t.Price, 0)
		delta := p.RealizedPnL() - prevRealized
		prevRealized = p.RealizedPnL()
		if delta == 0 {
			continue
		}
		reducing++
		if delta > 0 {
			wins++
			grossProfit += delta
		} else {
			grossLoss += -delta
		}
	}

	if reducing > 0 {
		winRate = float64(wins) / float64(reducing)
	}
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		profitFactor = math.Inf(1)
	}
	return winRate, profitFactor
}
