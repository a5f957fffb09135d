// Package book maintains the L2 order book state for a single coin.
//
// The book is rebuilt wholesale from each historical snapshot: both sides are
// cleared and every level reinserted. Between snapshots it is read-only. It
// answers best bid/ask and mid price in O(1) from the front of each side's
// tree, and simulates market sweeps against the displayed depth.
//
// Sweeps never mutate the book. Historical depth is authoritative; the
// simulator's hypothetical fills cannot deplete it, and the next snapshot is
// the only source of book changes. This keeps execution simulation cleanly
// separated from book state and makes runs deterministic.
package book

import (
	"github.com/tidwall/btree"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// level is one aggregated price level inside a side tree.
type level struct {
	key types.PriceKey
	sz  float64
}

// sideTree holds one side of the book, ordered by price key.
type sideTree = btree.BTreeG[level]

// Book is the L2 order book for one coin. Owned exclusively by the engine
// loop; it is not safe for concurrent use.
type Book struct {
	// Bids are sorted greatest key first, asks least first, so the best
	// price on either side is the minimum of its tree.
	bids *sideTree
	asks *sideTree
}

// New creates an empty book.
func New() *Book {
	bids := btree.NewBTreeG(func(a, b level) bool { return a.key > b.key })
	asks := btree.NewBTreeG(func(a, b level) bool { return a.key < b.key })
	return &Book{bids: bids, asks: asks}
}

// ApplySnapshot replaces both sides with the snapshot's levels. Levels with
// non-positive price or size are dropped rather than inserted, keeping the
// no-zero-level invariant. Returns the first decode error encountered.
func (b *Book) ApplySnapshot(event *types.SnapshotEvent) error {
	b.bids.Clear()
	b.asks.Clear()

	for _, l := range event.Bids() {
		if err := insertLevel(b.bids, l); err != nil {
			return err
		}
	}
	for _, l := range event.Asks() {
		if err := insertLevel(b.asks, l); err != nil {
			return err
		}
	}
	return nil
}

func insertLevel(side *sideTree, l types.Level) error {
	px, err := l.ParsePx()
	if err != nil {
		return err
	}
	sz, err := l.ParseSz()
	if err != nil {
		return err
	}
	if px <= 0 || sz <= 0 {
		return nil
	}
	key := types.ToPriceKey(px)
	if existing, ok := side.Get(level{key: key}); ok {
		// Duplicate price in one snapshot: aggregate.
		side.Set(level{key: key, sz: existing.sz + sz})
		return nil
	}
	side.Set(level{key: key, sz: sz})
	return nil
}

// BestBid returns the highest bid price, or false if the side is empty.
func (b *Book) BestBid() (float64, bool) {
	l, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return l.key.Float(), true
}

// BestAsk returns the lowest ask price, or false if the side is empty.
func (b *Book) BestAsk() (float64, bool) {
	l, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return l.key.Float(), true
}

// MidPrice returns (bestBid + bestAsk) / 2, or false if either side is empty.
func (b *Book) MidPrice() (float64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Depth returns the number of levels on each side.
func (b *Book) Depth() (bids, asks int) {
	return b.bids.Len(), b.asks.Len()
}

// SweepResult is the outcome of walking one side of the book.
type SweepResult struct {
	FilledSz  float64
	VWAP      float64 // volume-weighted average price across swept levels
	Exhausted bool    // the side ran out of depth before size was satisfied
}

// Sweep walks levels on the given side from best outward, consuming up to
// size, and returns the filled quantity and its VWAP. The taker of a BUY
// sweeps asks; the taker of a SELL sweeps bids. The book itself is left
// untouched.
func (b *Book) Sweep(takerSide types.Side, size float64) SweepResult {
	return b.sweepLimited(takerSide, size, 0, false)
}

// SweepToLimit is Sweep bounded by a limit price: the walk stops before any
// level worse than limitKey (higher than a buy limit, lower than a sell
// limit).
func (b *Book) SweepToLimit(takerSide types.Side, size float64, limitKey types.PriceKey) SweepResult {
	return b.sweepLimited(takerSide, size, limitKey, true)
}

func (b *Book) sweepLimited(takerSide types.Side, size float64, limitKey types.PriceKey, useLimit bool) SweepResult {
	side := b.asks
	if takerSide == types.SELL {
		side = b.bids
	}

	remaining := size
	var notional float64
	var filled float64
	var touched int
	var lastPx float64

	side.Scan(func(l level) bool {
		if remaining <= 0 {
			return false
		}
		if useLimit {
			if takerSide == types.BUY && l.key > limitKey {
				return false
			}
			if takerSide == types.SELL && l.key < limitKey {
				return false
			}
		}
		px := l.key.Float()
		take := min(remaining, l.sz)
		notional += take * px
		filled += take
		remaining -= take
		touched++
		lastPx = px
		return true
	})

	res := SweepResult{FilledSz: filled, Exhausted: remaining > 0}
	switch {
	case touched == 1:
		// A one-level sweep fills at exactly that level's price.
		res.VWAP = lastPx
	case filled > 0:
		res.VWAP = notional / filled
	}
	return res
}
