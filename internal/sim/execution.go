// Package sim contains the perps playback engine: the per-event loop that
// replays historical L2 snapshots against a compiled strategy, plus the
// order-execution rules and run metrics.
package sim

import (
	"github.com/franalgaba/hyperliquid-backtesting/internal/book"
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// MinFillSize is the dust threshold: remaining size below it is treated as
// zero and the order transitions to Filled.
const MinFillSize = 1e-10

// ExecuteMarket attempts to fill a market order by sweeping the opposite
// side of the book. Returns false when the book has no opposite depth at
// all; the order stays pending and is retried on later events.
func ExecuteMarket(o *types.Order, bk *book.Book) (types.FillResult, bool) {
	res := bk.Sweep(o.Action.Side, o.Remaining())
	if res.FilledSz <= 0 {
		return types.FillResult{}, false
	}

	o.FilledSz += res.FilledSz
	o.Status = statusAfterFill(o)
	return types.FillResult{
		FilledSz:    res.FilledSz,
		FillPrice:   res.VWAP,
		IsMaker:     false,
		StatusAfter: o.Status,
	}, true
}

// CheckLimitFill attempts to fill a resting limit order. The order fills
// only when its price crosses the opposite best (buy: px >= best ask, sell:
// px <= best bid); the fill then sweeps the opposite side up to the limit
// price and the remaining size. Fills are marked maker: the order was
// resting and the market moved through it.
//
// FOK orders fill only when the sweep covers the full remaining size; a
// partial-coverage attempt cancels them instead. IOC residue handling lives
// in the engine, which knows whether this is the order's first event.
func CheckLimitFill(o *types.Order, bk *book.Book) (types.FillResult, bool) {
	crossed := false
	if o.Action.Side == types.BUY {
		if ask, ok := bk.BestAsk(); ok && o.Action.Px >= ask {
			crossed = true
		}
	} else {
		if bid, ok := bk.BestBid(); ok && o.Action.Px <= bid {
			crossed = true
		}
	}
	if !crossed {
		return types.FillResult{}, false
	}

	limitKey := types.ToPriceKey(o.Action.Px)
	res := bk.SweepToLimit(o.Action.Side, o.Remaining(), limitKey)
	if res.FilledSz <= 0 {
		return types.FillResult{}, false
	}

	if o.Action.Tif == types.FOK && res.FilledSz+MinFillSize < o.Remaining() {
		// All-or-nothing failed; the order does not retry.
		o.Status = types.StatusCanceled
		return types.FillResult{}, false
	}

	o.FilledSz += res.FilledSz
	o.Status = statusAfterFill(o)
	return types.FillResult{
		FilledSz:    res.FilledSz,
		FillPrice:   res.VWAP,
		IsMaker:     true,
		StatusAfter: o.Status,
	}, true
}

// CanPlaceLimit reports whether a limit order may be queued. Post-only
// orders must not cross the current book; anything else may be placed.
func CanPlaceLimit(action types.OrderAction, bk *book.Book) bool {
	if !action.PostOnly {
		return true
	}
	if action.Side == types.BUY {
		if ask, ok := bk.BestAsk(); ok && action.Px >= ask {
			return false
		}
	} else {
		if bid, ok := bk.BestBid(); ok && action.Px <= bid {
			return false
		}
	}
	return true
}

func statusAfterFill(o *types.Order) types.OrderStatus {
	if o.Remaining() < MinFillSize {
		o.FilledSz = o.Action.Sz
		return types.StatusFilled
	}
	return types.StatusPartiallyFilled
}
