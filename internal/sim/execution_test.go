package sim

import (
	"math"
	"testing"

	"github.com/franalgaba/hyperliquid-backtesting/internal/book"
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

func mkBook(t *testing.T, bids, asks []types.Level) *book.Book {
	t.Helper()
	b := book.New()
	if err := b.ApplySnapshot(&types.SnapshotEvent{TsMs: 1000, Levels: [2][]types.Level{bids, asks}}); err != nil {
		t.Fatal(err)
	}
	return b
}

func levels(pxSz ...string) []types.Level {
	var out []types.Level
	for i := 0; i < len(pxSz); i += 2 {
		out = append(out, types.Level{Px: pxSz[i], Sz: pxSz[i+1], N: 1})
	}
	return out
}

func TestExecuteMarketFullFill(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("100", "1"), levels("101", "2"))

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 0.5}, Status: types.StatusPending}
	res, filled := ExecuteMarket(o, b)
	if !filled {
		t.Fatal("market order did not fill")
	}
	if res.FilledSz != 0.5 || res.FillPrice != 101 || res.IsMaker {
		t.Errorf("fill = %+v, want 0.5 @ 101 taker", res)
	}
	if o.Status != types.StatusFilled || o.FilledSz != 0.5 {
		t.Errorf("order after = %v filled %v", o.Status, o.FilledSz)
	}
}

func TestExecuteMarketPartialThenRetry(t *testing.T) {
	t.Parallel()

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 0.7}, Status: types.StatusPending}

	b := mkBook(t, levels("100", "1"), levels("101", "0.3"))
	res, filled := ExecuteMarket(o, b)
	if !filled || res.FilledSz != 0.3 || res.FillPrice != 101 {
		t.Fatalf("first fill = %+v, want 0.3 @ 101", res)
	}
	if o.Status != types.StatusPartiallyFilled {
		t.Errorf("status = %v, want PARTIALLY_FILLED", o.Status)
	}

	b = mkBook(t, levels("100", "1"), levels("102", "0.5"))
	res, filled = ExecuteMarket(o, b)
	if !filled || math.Abs(res.FilledSz-0.4) > 1e-12 || res.FillPrice != 102 {
		t.Fatalf("second fill = %+v, want 0.4 @ 102", res)
	}
	if o.Status != types.StatusFilled {
		t.Errorf("status = %v, want FILLED", o.Status)
	}
}

func TestExecuteMarketNoDepth(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("100", "1"), nil)

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 1}, Status: types.StatusPending}
	_, filled := ExecuteMarket(o, b)
	if filled {
		t.Fatal("filled against an empty ask side")
	}
	if o.Status != types.StatusPending {
		t.Errorf("status = %v, want PENDING for retry", o.Status)
	}
}

func TestCheckLimitFillNotCrossed(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("100", "1"), levels("101", "1"))

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 1, Tif: types.GTC}, Status: types.StatusPending}
	if _, filled := CheckLimitFill(o, b); filled {
		t.Fatal("filled without crossing the opposite best")
	}
}

func TestCheckLimitFillCrossedVWAP(t *testing.T) {
	t.Parallel()

	// Resting buy limit at 100; the book later moves through it.
	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 1, Tif: types.GTC}, Status: types.StatusPending}

	b := mkBook(t, levels("98", "1"), levels("99", "0.6", "100", "1.0"))
	res, filled := CheckLimitFill(o, b)
	if !filled {
		t.Fatal("did not fill after book crossed the limit")
	}
	want := (0.6*99 + 0.4*100) / 1.0
	if math.Abs(res.FillPrice-want) > 1e-12 {
		t.Errorf("vwap = %v, want %v", res.FillPrice, want)
	}
	if res.FilledSz != 1.0 || !res.IsMaker {
		t.Errorf("fill = %+v, want 1.0 maker", res)
	}
	if o.Status != types.StatusFilled {
		t.Errorf("status = %v, want FILLED", o.Status)
	}
}

func TestCheckLimitFillExactlyAtLimit(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("100", "1"), levels("101", "1"))

	// buy px == best ask must fill.
	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 101, Sz: 0.5, Tif: types.GTC}, Status: types.StatusPending}
	res, filled := CheckLimitFill(o, b)
	if !filled || res.FillPrice != 101 || res.FilledSz != 0.5 {
		t.Fatalf("fill = %+v filled=%v, want 0.5 @ 101", res, filled)
	}
}

func TestCheckLimitFillSellSide(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("105", "0.4", "104", "1"), levels("106", "1"))

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.SELL, Px: 104, Sz: 1, Tif: types.GTC}, Status: types.StatusPending}
	res, filled := CheckLimitFill(o, b)
	if !filled {
		t.Fatal("sell limit below best bid did not fill")
	}
	want := (0.4*105 + 0.6*104) / 1.0
	if math.Abs(res.FillPrice-want) > 1e-12 {
		t.Errorf("vwap = %v, want %v", res.FillPrice, want)
	}
}

func TestCheckLimitFillRespectsLimitBoundary(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("98", "1"), levels("99", "0.6", "103", "5"))

	// Crossed, but only the 99 level is within the limit.
	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 2, Tif: types.GTC}, Status: types.StatusPending}
	res, filled := CheckLimitFill(o, b)
	if !filled || res.FilledSz != 0.6 || res.FillPrice != 99 {
		t.Fatalf("fill = %+v, want 0.6 @ 99", res)
	}
	if o.Status != types.StatusPartiallyFilled {
		t.Errorf("status = %v, want PARTIALLY_FILLED", o.Status)
	}
}

func TestCheckLimitFillFOK(t *testing.T) {
	t.Parallel()

	// Depth covers only 0.6 of 1.0: FOK must cancel, not partial-fill.
	b := mkBook(t, levels("98", "1"), levels("99", "0.6"))
	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 1, Tif: types.FOK}, Status: types.StatusPending}
	if _, filled := CheckLimitFill(o, b); filled {
		t.Fatal("FOK partial-filled")
	}
	if o.Status != types.StatusCanceled {
		t.Errorf("status = %v, want CANCELED", o.Status)
	}

	// Full coverage fills atomically.
	b = mkBook(t, levels("98", "1"), levels("99", "2"))
	o = &types.Order{ID: 2, Action: types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 1, Tif: types.FOK}, Status: types.StatusPending}
	res, filled := CheckLimitFill(o, b)
	if !filled || res.FilledSz != 1 {
		t.Fatalf("FOK full fill = %+v filled=%v", res, filled)
	}
}

func TestCanPlaceLimitPostOnly(t *testing.T) {
	t.Parallel()
	b := mkBook(t, levels("100", "1"), levels("101", "1"))

	crossing := types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 101, Sz: 1, PostOnly: true}
	if CanPlaceLimit(crossing, b) {
		t.Error("post-only buy at best ask was allowed")
	}

	passive := types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100.5, Sz: 1, PostOnly: true}
	if !CanPlaceLimit(passive, b) {
		t.Error("passive post-only buy was rejected")
	}

	sellCrossing := types.OrderAction{Kind: types.KindLimit, Side: types.SELL, Px: 100, Sz: 1, PostOnly: true}
	if CanPlaceLimit(sellCrossing, b) {
		t.Error("post-only sell at best bid was allowed")
	}

	notPostOnly := types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 101, Sz: 1}
	if !CanPlaceLimit(notPostOnly, b) {
		t.Error("plain crossing limit was rejected")
	}
}

func TestDustRemainderRoundsToFilled(t *testing.T) {
	t.Parallel()
	b := mkBook(t, nil, levels("101", "0.99999999999999"))

	o := &types.Order{ID: 1, Action: types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 1}, Status: types.StatusPending}
	_, filled := ExecuteMarket(o, b)
	if !filled {
		t.Fatal("no fill")
	}
	if o.Status != types.StatusFilled {
		t.Errorf("status = %v, want FILLED once remainder is dust", o.Status)
	}
	if o.FilledSz != o.Action.Sz {
		t.Errorf("filled_sz = %v, want clamped to %v", o.FilledSz, o.Action.Sz)
	}
}

func TestActiveOrdersDedupAndIDs(t *testing.T) {
	t.Parallel()
	a := newActiveOrders()

	o1 := a.Add(types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 1}, 1000)
	o2 := a.Add(types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 1}, 1000)
	if o1.ID >= o2.ID {
		t.Errorf("ids not monotonic: %d then %d", o1.ID, o2.ID)
	}

	if !a.HasDuplicate(types.OrderAction{Kind: types.KindMarket, Side: types.BUY, Sz: 2}) {
		t.Error("market dup not detected")
	}
	if a.HasDuplicate(types.OrderAction{Kind: types.KindMarket, Side: types.SELL, Sz: 1}) {
		t.Error("opposite side flagged as dup")
	}
	if !a.HasDuplicate(types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 100, Sz: 3}) {
		t.Error("same-price limit dup not detected")
	}
	if a.HasDuplicate(types.OrderAction{Kind: types.KindLimit, Side: types.BUY, Px: 101, Sz: 1}) {
		t.Error("different-price limit flagged as dup")
	}
}
