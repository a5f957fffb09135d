package sim

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/franalgaba/hyperliquid-backtesting/internal/book"
	"github.com/franalgaba/hyperliquid-backtesting/internal/indicator"
	"github.com/franalgaba/hyperliquid-backtesting/internal/portfolio"
	"github.com/franalgaba/hyperliquid-backtesting/internal/strategy"
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// PriceChangeThreshold gates entry-graph evaluation: the mid must have moved
// by more than this fraction since the last evaluation. Exits are never
// gated.
const PriceChangeThreshold = 1e-4

// equityIntervalMs is the equity-curve sampling cadence.
const equityIntervalMs = 60_000

// parallelIndicatorMin is the indicator count at or below which parallel
// updates cost more than they save.
const parallelIndicatorMin = 4

// Params configures one engine run.
type Params struct {
	Symbol             string
	InitialCapital     float64
	Fees               portfolio.FeeSchedule
	TradeCooldown      time.Duration
	CloseAtEnd         bool
	IndicatorsParallel bool
}

// Engine replays an ordered snapshot stream against a compiled strategy.
// All mutable state (book, portfolio, indicators, active orders) is owned by
// the engine and touched only from the strictly sequential event loop;
// reordering events would break causality between decisions and book state.
type Engine struct {
	params  Params
	logger  *slog.Logger
	bk      *book.Book
	pf      *portfolio.Portfolio
	inds    *indicator.Set
	eval    *strategy.Evaluator
	funding *portfolio.FundingSchedule
	active  *activeOrders

	// Synthetic candle, reused across events to keep the hot path
	// allocation-free.
	candle     types.Candle
	haveCandle bool

	lastEvalMid     float64
	lastEntryTsMs   uint64
	lastFundingTsMs uint64
	lastEquityTsMs  uint64
	haveEquity      bool

	// brackets remembers the entry action of orders that carry stop-loss /
	// take-profit percentages, keyed by order id, so protective orders can
	// be attached once the entry fills.
	brackets map[uint64]*strategy.Action

	trades []types.Trade
	equity []types.EquityPoint
}

// New builds an engine from run parameters, a parsed strategy, and a funding
// schedule.
func New(params Params, ir *strategy.IR, funding *portfolio.FundingSchedule, logger *slog.Logger) (*Engine, error) {
	if params.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", params.InitialCapital)
	}
	inds, err := strategy.BuildSet(ir)
	if err != nil {
		return nil, fmt.Errorf("build indicators: %w", err)
	}
	return &Engine{
		params:   params,
		logger:   logger.With("component", "engine", "symbol", params.Symbol),
		bk:       book.New(),
		pf:       portfolio.New(params.InitialCapital),
		inds:     inds,
		eval:     strategy.NewEvaluator(ir, inds),
		funding:  funding,
		active:   newActiveOrders(),
		brackets: make(map[uint64]*strategy.Action),
		trades:   make([]types.Trade, 0, 1024),
		equity:   make([]types.EquityPoint, 0, 16384),
	}, nil
}

// Run processes the event stream in order and returns the run result. The
// stream must already be sorted by timestamp and filtered to the run range.
func (e *Engine) Run(events []types.SnapshotEvent) (*types.SimResult, error) {
	started := time.Now()
	e.logger.Info("run started",
		"events", len(events),
		"initial_capital", e.params.InitialCapital,
		"indicators", e.inds.Len(),
	)

	if len(events) == 0 {
		// Boundary case: no events yields an initial equity point only.
		e.equity = append(e.equity, types.EquityPoint{
			Equity: e.params.InitialCapital,
			Cash:   e.params.InitialCapital,
		})
		return e.finish(started, 0, 0, 0, 0)
	}

	for i := range events {
		if err := e.step(&events[i]); err != nil {
			return nil, err
		}
	}

	lastTs := events[len(events)-1].TsMs
	lastMid := e.candle.Close

	if e.params.CloseAtEnd && !e.pf.Flat() && e.haveCandle {
		e.closeAtEnd(lastTs, lastMid)
	}

	// Close the curve with a final sample so metrics see the ending equity,
	// including the effect of a forced close.
	if e.haveCandle {
		e.recordEquity(lastTs, lastMid)
	}

	return e.finish(started, events[0].TsMs, lastTs, lastMid, len(events))
}

func (e *Engine) finish(started time.Time, startTs, endTs uint64, lastMid float64, eventCount int) (*types.SimResult, error) {
	metrics := ComputeMetrics(e.params.InitialCapital, e.equity, e.trades, e.pf.FeesPaid(), e.pf.FundingPaid())
	finalEquity := e.params.InitialCapital
	if len(e.equity) > 0 {
		finalEquity = e.equity[len(e.equity)-1].Equity
	}

	res := &types.SimResult{
		RunID:       uuid.NewString(),
		Coin:        e.params.Symbol,
		StartTsMs:   startTs,
		EndTsMs:     endTs,
		InitialCash: e.params.InitialCapital,
		FinalEquity: finalEquity,
		Metrics:     metrics,
		Trades:      e.trades,
		EquityCurve: e.equity,
		EventCount:  eventCount,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	e.logger.Info("run finished",
		"trades", len(e.trades),
		"final_equity", finalEquity,
		"total_return", metrics.TotalReturn,
		"elapsed", res.FinishedAt.Sub(started),
	)
	return res, nil
}

// step processes one snapshot event: book, candle, indicators, strategy,
// execution, funding, equity, in that order.
func (e *Engine) step(ev *types.SnapshotEvent) error {
	if err := e.bk.ApplySnapshot(ev); err != nil {
		return fmt.Errorf("apply snapshot at ts %d: %w", ev.TsMs, err)
	}

	mid, ok := e.bk.MidPrice()
	if !ok {
		// One-sided or empty book: no mid, no evaluation. Pending market
		// orders simply wait for the next event with depth.
		return nil
	}

	e.advanceCandle(ev.TsMs, mid)
	if e.params.IndicatorsParallel && e.inds.Len() > parallelIndicatorMin {
		e.inds.UpdateParallel(&e.candle)
	} else {
		e.inds.Update(&e.candle)
	}

	e.evaluateStrategy(ev.TsMs, mid)

	if err := e.executeOrders(ev.TsMs, mid); err != nil {
		return err
	}
	e.accrueFunding(ev.TsMs, mid)

	if ev.TsMs-e.lastEquityTsMs >= equityIntervalMs {
		e.recordEquity(ev.TsMs, mid)
	}
	return nil
}

// advanceCandle rolls the synthetic candle forward: open is the previous
// close, high/low span previous close and the new mid, close is the mid.
func (e *Engine) advanceCandle(tsMs uint64, mid float64) {
	if !e.haveCandle {
		e.candle = types.Candle{TsMs: tsMs, Open: mid, High: mid, Low: mid, Close: mid}
		e.haveCandle = true
		return
	}
	prevClose := e.candle.Close
	e.candle.TsMs = tsMs
	e.candle.Open = prevClose
	e.candle.High = math.Max(prevClose, mid)
	e.candle.Low = math.Min(prevClose, mid)
	e.candle.Close = mid
	e.candle.Volume = 0
}

// evaluateStrategy runs the entry graph when flat (throttled by price change
// and cooldown) or the exit graph when in position (every event, no gate:
// exits must be prompt).
func (e *Engine) evaluateStrategy(tsMs uint64, mid float64) {
	if e.pf.Flat() {
		if e.lastEvalMid != 0 {
			change := math.Abs(mid-e.lastEvalMid) / e.lastEvalMid
			if change <= PriceChangeThreshold {
				return
			}
		}
		if e.lastEntryTsMs != 0 && tsMs-e.lastEntryTsMs < uint64(e.params.TradeCooldown.Milliseconds()) {
			return
		}
		e.lastEvalMid = mid
		if act := e.eval.EvaluateEntry(); act != nil {
			if e.queueAction(act, tsMs, mid) {
				e.lastEntryTsMs = tsMs
			}
		}
		return
	}

	if act := e.eval.EvaluateExit(); act != nil {
		e.queueAction(act, tsMs, mid)
	}
}

// queueAction converts a strategy action into an order and queues it.
// Returns true when an order was actually queued.
func (e *Engine) queueAction(act *strategy.Action, tsMs uint64, mid float64) bool {
	action, ok := e.buildOrderAction(act, mid)
	if !ok {
		return false
	}
	if e.active.HasDuplicate(action) {
		return false
	}
	if action.Kind == types.KindLimit && !CanPlaceLimit(action, e.bk) {
		e.logger.Debug("post-only limit would cross, rejected",
			"ts", tsMs, "side", action.Side, "px", action.Px)
		return false
	}

	o := e.active.Add(action, tsMs)
	if act.Type == strategy.ActionBuy && (act.StopLossPct > 0 || act.TakeProfitPct > 0) {
		e.brackets[o.ID] = act
	}
	e.logger.Debug("order queued",
		"ts", tsMs, "order_id", o.ID, "kind", action.Kind,
		"side", action.Side, "sz", action.Sz, "px", action.Px)
	return true
}

func (e *Engine) buildOrderAction(act *strategy.Action, mid float64) (types.OrderAction, bool) {
	switch act.Type {
	case strategy.ActionBuy:
		cash := e.pf.Cash()
		if cash <= 0 {
			return types.OrderAction{}, false
		}
		// Reserve headroom for taker fee and slippage so the fill cannot
		// drive cash negative.
		costPerCoin := mid * (1 + (e.params.Fees.TakerBps+e.params.Fees.SlippageBps)/1e4)
		sz := cash * act.SizePct / 100 / costPerCoin
		if sz < MinFillSize {
			return types.OrderAction{}, false
		}
		return e.shapeOrder(act, types.BUY, sz, mid, false), true

	case strategy.ActionSell:
		pos := e.pf.Position()
		if pos.Size <= 0 {
			return types.OrderAction{}, false
		}
		sz := pos.Size * act.SizePct / 100
		if sz < MinFillSize {
			return types.OrderAction{}, false
		}
		return e.shapeOrder(act, types.SELL, sz, mid, true), true

	case strategy.ActionClose:
		pos := e.pf.Position()
		if pos.Size == 0 {
			return types.OrderAction{}, false
		}
		side := types.SELL
		if pos.Size < 0 {
			side = types.BUY
		}
		return types.OrderAction{
			Kind:       types.KindMarket,
			Side:       side,
			Sz:         math.Abs(pos.Size),
			ReduceOnly: true,
		}, true
	}
	return types.OrderAction{}, false
}

// shapeOrder applies the action's order-issuance fields: market by default,
// or a limit priced LimitOffsetBps inside the mid.
func (e *Engine) shapeOrder(act *strategy.Action, side types.Side, sz, mid float64, reduceOnly bool) types.OrderAction {
	if act.Kind != "limit" {
		return types.OrderAction{Kind: types.KindMarket, Side: side, Sz: sz, ReduceOnly: reduceOnly}
	}
	offset := mid * act.LimitOffsetBps / 1e4
	px := mid - offset
	if side == types.SELL {
		px = mid + offset
	}
	tif := types.GTC
	if act.Tif != "" {
		tif = types.TimeInForce(act.Tif)
	}
	return types.OrderAction{
		Kind:       types.KindLimit,
		Side:       side,
		Sz:         sz,
		Px:         px,
		Tif:        tif,
		PostOnly:   act.PostOnly,
		ReduceOnly: reduceOnly,
	}
}

// executeOrders attempts every live order against the current book. The
// list is walked in reverse index order so swap-and-pop removal keeps the
// remaining indices valid.
func (e *Engine) executeOrders(tsMs uint64, mid float64) error {
	for i := e.active.Len() - 1; i >= 0; i-- {
		o := e.active.orders[i]
		if o.Status.Terminal() {
			e.active.RemoveAt(i)
			continue
		}

		if o.Action.Kind == types.KindStop || o.Action.Kind == types.KindTake {
			if !triggered(o.Action, mid) {
				continue
			}
			o.Action.Kind = types.KindMarket
		}

		var res types.FillResult
		var filled bool
		switch o.Action.Kind {
		case types.KindMarket:
			res, filled = ExecuteMarket(o, e.bk)
		case types.KindLimit:
			res, filled = CheckLimitFill(o, e.bk)
			// IOC lives only on its creation event; any residue after the
			// first attempt is canceled.
			if o.Action.Tif == types.IOC && o.CreatedAtMs == tsMs && !o.Status.Terminal() {
				o.Status = types.StatusCanceled
			}
			// FOK never retries: a crossing attempt either filled in full
			// above or canceled the order; a non-crossing FOK also dies.
			if o.Action.Tif == types.FOK && !o.Status.Terminal() {
				o.Status = types.StatusCanceled
			}
		}

		if filled {
			if err := e.realizeFill(o, res, tsMs); err != nil {
				return err
			}
		}
		if o.Status.Terminal() {
			delete(e.brackets, o.ID)
			e.active.RemoveAt(i)
		}
	}

	// A position that just went flat orphans any reduce-only orders
	// (protective brackets included); they have nothing left to reduce.
	if e.pf.Flat() {
		e.cancelReduceOnly()
	}
	return nil
}

// triggered reports whether a stop or take order's level has been touched
// by the mid. Stops fire through adverse movement, takes through favorable
// movement, relative to the position the order reduces.
func triggered(a types.OrderAction, mid float64) bool {
	if a.Kind == types.KindStop {
		if a.Side == types.SELL {
			return mid <= a.TriggerPx
		}
		return mid >= a.TriggerPx
	}
	if a.Side == types.SELL {
		return mid >= a.TriggerPx
	}
	return mid <= a.TriggerPx
}

// realizeFill books a fill into the portfolio and trade log, applies fees
// and slippage, checks invariants, and attaches bracket orders when an
// entry completes.
func (e *Engine) realizeFill(o *types.Order, res types.FillResult, tsMs uint64) error {
	buy := o.Action.Side == types.BUY
	price := res.FillPrice
	if !res.IsMaker {
		price = e.params.Fees.SlippedPrice(buy, price)
	}
	fee := e.params.Fees.Fee(res.IsMaker, price*res.FilledSz)

	e.pf.ApplyFill(buy, res.FilledSz, price, fee)
	e.trades = append(e.trades, types.Trade{
		TsMs:    tsMs,
		Symbol:  e.params.Symbol,
		Side:    o.Action.Side,
		Size:    res.FilledSz,
		Price:   price,
		Fee:     fee,
		OrderID: o.ID,
	})
	e.logger.Debug("fill",
		"ts", tsMs, "order_id", o.ID, "side", o.Action.Side,
		"sz", res.FilledSz, "px", price, "maker", res.IsMaker)

	if math.IsNaN(e.pf.Cash()) || math.IsNaN(e.pf.Position().AvgEntryPx) {
		return fmt.Errorf("portfolio state is NaN after fill at ts %d, order %d", tsMs, o.ID)
	}

	if o.Status == types.StatusFilled {
		if act, ok := e.brackets[o.ID]; ok {
			delete(e.brackets, o.ID)
			e.attachBrackets(act, tsMs)
		}
	}
	return nil
}

// attachBrackets queues protective stop/take orders around the position's
// entry price after an entry order fills in full.
func (e *Engine) attachBrackets(act *strategy.Action, tsMs uint64) {
	pos := e.pf.Position()
	if pos.Size <= 0 {
		return
	}
	if act.StopLossPct > 0 {
		e.active.Add(types.OrderAction{
			Kind:       types.KindStop,
			Side:       types.SELL,
			Sz:         pos.Size,
			TriggerPx:  pos.AvgEntryPx * (1 - act.StopLossPct/100),
			ReduceOnly: true,
		}, tsMs)
	}
	if act.TakeProfitPct > 0 {
		e.active.Add(types.OrderAction{
			Kind:       types.KindTake,
			Side:       types.SELL,
			Sz:         pos.Size,
			TriggerPx:  pos.AvgEntryPx * (1 + act.TakeProfitPct/100),
			ReduceOnly: true,
		}, tsMs)
	}
}

func (e *Engine) cancelReduceOnly() {
	for i := e.active.Len() - 1; i >= 0; i-- {
		o := e.active.orders[i]
		if o.Action.ReduceOnly && !o.Status.Terminal() {
			o.Status = types.StatusCanceled
			delete(e.brackets, o.ID)
			e.active.RemoveAt(i)
		}
	}
}

// accrueFunding applies funding once per whole 8h interval. The clock
// advances whether or not a position is open; only open positions pay.
// Payments are marked at the current mid.
func (e *Engine) accrueFunding(tsMs uint64, mid float64) {
	if e.lastFundingTsMs == 0 {
		e.lastFundingTsMs = tsMs
		return
	}
	for tsMs-e.lastFundingTsMs >= portfolio.FundingIntervalMs {
		boundary := e.lastFundingTsMs + portfolio.FundingIntervalMs
		if !e.pf.Flat() {
			rate := e.funding.RateAt(boundary)
			payment := portfolio.FundingPayment(e.pf.Position().Size, mid, rate)
			e.pf.ApplyFunding(payment)
			e.logger.Debug("funding applied",
				"ts", boundary, "rate", rate, "payment", payment)
		}
		e.lastFundingTsMs = boundary
	}
}

// closeAtEnd flattens the position at the last mid with a synthetic market
// order so the run ends with realized PnL.
func (e *Engine) closeAtEnd(tsMs uint64, mid float64) {
	pos := e.pf.Position()
	side := types.SELL
	if pos.Size < 0 {
		side = types.BUY
	}
	o := e.active.Add(types.OrderAction{
		Kind:       types.KindMarket,
		Side:       side,
		Sz:         math.Abs(pos.Size),
		ReduceOnly: true,
	}, tsMs)
	o.FilledSz = o.Action.Sz
	o.Status = types.StatusFilled

	buy := side == types.BUY
	price := e.params.Fees.SlippedPrice(buy, mid)
	fee := e.params.Fees.Fee(false, price*o.Action.Sz)
	e.pf.ApplyFill(buy, o.Action.Sz, price, fee)
	e.trades = append(e.trades, types.Trade{
		TsMs:    tsMs,
		Symbol:  e.params.Symbol,
		Side:    side,
		Size:    o.Action.Sz,
		Price:   price,
		Fee:     fee,
		OrderID: o.ID,
	})
	e.logger.Info("closed position at end of stream", "px", price, "sz", o.Action.Sz)
}

// recordEquity appends an equity sample, replacing the previous sample when
// it carries the same timestamp (the end-of-run resample).
func (e *Engine) recordEquity(tsMs uint64, mid float64) {
	p := types.EquityPoint{
		TsMs:          tsMs,
		Equity:        e.pf.Equity(mid),
		Cash:          e.pf.Cash(),
		PositionValue: e.pf.PositionValue(mid),
	}
	if e.haveEquity && e.lastEquityTsMs == tsMs {
		e.equity[len(e.equity)-1] = p
	} else {
		e.equity = append(e.equity, p)
	}
	e.lastEquityTsMs = tsMs
	e.haveEquity = true
}
