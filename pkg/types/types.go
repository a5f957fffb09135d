// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the backtester: snapshot events,
// orders, trades, funding points, and run results. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// coinRe constrains coin names: they become path components of event files,
// so anything outside this set is rejected before touching the filesystem.
var coinRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,20}$`)

// ValidateCoin rejects coin names that are empty, too long, or contain
// characters outside [A-Za-z0-9_].
func ValidateCoin(coin string) error {
	if !coinRe.MatchString(coin) {
		return fmt.Errorf("invalid coin name %q: must match [A-Za-z0-9_]{1,20}", coin)
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// TimeInForce enumerates the supported limit-order lifecycles.
type TimeInForce string

const (
	GTC TimeInForce = "GTC" // rests until filled or cancelled
	IOC TimeInForce = "IOC" // fill what crosses now, cancel the residue
	FOK TimeInForce = "FOK" // fill the full size atomically or not at all
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
)

// Terminal reports whether the order can no longer fill.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled
}

// ————————————————————————————————————————————————————————————————————————
// Price keys
// ————————————————————————————————————————————————————————————————————————

// PriceScale is the fixed scale used to convert float prices to integer keys.
// Keying the book on scaled integers avoids floating-point equality pitfalls
// and gives deterministic iteration order.
const PriceScale = 1e8

// PriceKey is an order book key: a price scaled by PriceScale.
type PriceKey uint64

// ToPriceKey converts a float price to its scaled-integer key.
func ToPriceKey(px float64) PriceKey {
	return PriceKey(px*PriceScale + 0.5)
}

// Float returns the unscaled price.
func (k PriceKey) Float() float64 {
	return float64(k) / PriceScale
}

// ————————————————————————————————————————————————————————————————————————
// Snapshot events
// ————————————————————————————————————————————————————————————————————————

// Level is one aggregated price level from an L2 snapshot.
// Px and Sz arrive as decimal strings on the wire to preserve precision;
// N is the number of resting orders at the level (informational).
type Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  uint32 `json:"n"`
}

// ParsePx returns the level price as a float64, parsed through
// shopspring/decimal so the wire string round-trips exactly.
func (l Level) ParsePx() (float64, error) {
	d, err := decimal.NewFromString(l.Px)
	if err != nil {
		return 0, fmt.Errorf("parse px %q: %w", l.Px, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseSz returns the level size as a float64.
func (l Level) ParseSz() (float64, error) {
	d, err := decimal.NewFromString(l.Sz)
	if err != nil {
		return 0, fmt.Errorf("parse sz %q: %w", l.Sz, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// SnapshotEvent is one full L2 book snapshot for a coin at an instant.
// Levels[0] is bids (descending px), Levels[1] is asks (ascending px).
// A snapshot fully replaces the book.
type SnapshotEvent struct {
	TsMs   uint64     `json:"ts_ms"`
	Levels [2][]Level `json:"levels"`
}

// Bids returns the bid side of the snapshot.
func (e *SnapshotEvent) Bids() []Level { return e.Levels[0] }

// Asks returns the ask side of the snapshot.
func (e *SnapshotEvent) Asks() []Level { return e.Levels[1] }

// ————————————————————————————————————————————————————————————————————————
// Candles
// ————————————————————————————————————————————————————————————————————————

// Candle is a synthetic OHLC bar fabricated per event from successive mid
// prices. The engine reuses one instance across the run; indicators must
// copy any values they need to retain.
type Candle struct {
	TsMs   uint64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// OrderKind distinguishes the execution semantics of an order action.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
	KindStop   OrderKind = "STOP" // converts to MARKET when mid touches TriggerPx
	KindTake   OrderKind = "TAKE" // converts to MARKET when mid touches TriggerPx
)

// OrderAction describes what an order does when it executes. Market orders
// use Side and Sz only; limit orders add Px, Tif and the post-only /
// reduce-only flags; stop and take orders carry TriggerPx and reduce to
// market once the trigger is touched.
type OrderAction struct {
	Kind       OrderKind
	Side       Side
	Sz         float64
	Px         float64     // limit price (limit only)
	TriggerPx  float64     // trigger level (stop/take only)
	Tif        TimeInForce // limit only; zero value treated as GTC
	PostOnly   bool
	ReduceOnly bool
}

// Order is a live entry in the engine's active-order list.
type Order struct {
	ID          uint64
	Action      OrderAction
	CreatedAtMs uint64
	FilledSz    float64
	Status      OrderStatus
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() float64 {
	return o.Action.Sz - o.FilledSz
}

// FillResult is the outcome of one execution attempt against the book.
// A single order may produce several fills over successive events.
type FillResult struct {
	FilledSz    float64
	FillPrice   float64 // VWAP across swept levels
	IsMaker     bool
	StatusAfter OrderStatus
}

// ————————————————————————————————————————————————————————————————————————
// Trades, funding, equity
// ————————————————————————————————————————————————————————————————————————

// Trade is a realized fill persisted to the trade log.
type Trade struct {
	TsMs    uint64  `json:"ts_ms"`
	Symbol  string  `json:"symbol"`
	Side    Side    `json:"side"`
	Size    float64 `json:"size"`
	Price   float64 `json:"price"`
	Fee     float64 `json:"fee"`
	OrderID uint64  `json:"order_id"`
}

// FundingPoint is one (timestamp, rate) entry of the funding schedule.
// Rate is the per-interval (8h) rate, typically around 1e-4.
type FundingPoint struct {
	TsMs uint64  `json:"ts_ms"`
	Rate float64 `json:"rate"`
}

// EquityPoint is one sample of the equity curve, recorded at most once
// per minute while the engine runs, plus one closing sample at the last
// event.
type EquityPoint struct {
	TsMs          uint64  `json:"ts_ms"`
	Equity        float64 `json:"equity"`
	Cash          float64 `json:"cash"`
	PositionValue float64 `json:"position_value"`
}

// ————————————————————————————————————————————————————————————————————————
// Results
// ————————————————————————————————————————————————————————————————————————

// Metrics summarizes a completed run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	TradeCount       int     `json:"trade_count"`
	FeesPaid         float64 `json:"fees_paid"`
	FundingPaid      float64 `json:"funding_paid"`
}

// SimResult is the full output of one backtest run.
type SimResult struct {
	RunID       string        `json:"run_id"`
	Coin        string        `json:"coin"`
	StartTsMs   uint64        `json:"start_ts_ms"`
	EndTsMs     uint64        `json:"end_ts_ms"`
	InitialCash float64       `json:"initial_cash"`
	FinalEquity float64       `json:"final_equity"`
	Metrics     Metrics       `json:"metrics"`
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	EventCount  int           `json:"event_count"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}
