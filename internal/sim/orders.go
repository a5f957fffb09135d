package sim

import (
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// activeOrders is the engine's live order list. Order ids are assigned in
// emission order and are unique within a run. Removal uses swap-and-pop, so
// callers that remove while iterating must walk indices in reverse.
type activeOrders struct {
	orders []*types.Order
	nextID uint64
}

func newActiveOrders() *activeOrders {
	return &activeOrders{orders: make([]*types.Order, 0, 16), nextID: 1}
}

// Add queues a new order for the given action and returns it.
func (a *activeOrders) Add(action types.OrderAction, tsMs uint64) *types.Order {
	o := &types.Order{
		ID:          a.nextID,
		Action:      action,
		CreatedAtMs: tsMs,
		Status:      types.StatusPending,
	}
	a.nextID++
	a.orders = append(a.orders, o)
	return o
}

// HasDuplicate reports whether a live order with the same side, kind, and
// (for limits) price is already queued. The throttled evaluator re-fires
// across events; this keeps it from piling identical orders.
func (a *activeOrders) HasDuplicate(action types.OrderAction) bool {
	for _, o := range a.orders {
		if o.Status.Terminal() {
			continue
		}
		if o.Action.Side != action.Side || o.Action.Kind != action.Kind {
			continue
		}
		if action.Kind == types.KindLimit &&
			types.ToPriceKey(o.Action.Px) != types.ToPriceKey(action.Px) {
			continue
		}
		return true
	}
	return false
}

// RemoveAt swap-and-pops the order at index i.
func (a *activeOrders) RemoveAt(i int) {
	last := len(a.orders) - 1
	a.orders[i] = a.orders[last]
	a.orders[last] = nil
	a.orders = a.orders[:last]
}

// CancelAll marks every live order canceled and clears the list.
func (a *activeOrders) CancelAll() {
	for i := range a.orders {
		if !a.orders[i].Status.Terminal() {
			a.orders[i].Status = types.StatusCanceled
		}
		a.orders[i] = nil
	}
	a.orders = a.orders[:0]
}

// Len returns the number of live entries.
func (a *activeOrders) Len() int { return len(a.orders) }
