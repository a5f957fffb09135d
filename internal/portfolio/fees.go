package portfolio

// FeeSchedule computes per-fill fees from basis-point parameters.
// MakerBps may be negative for venues that pay a maker rebate.
type FeeSchedule struct {
	MakerBps    float64
	TakerBps    float64
	SlippageBps float64
}

// Fee returns the fee for a fill of the given notional. Maker fills use the
// maker rate (possibly negative), taker fills the taker rate.
func (f FeeSchedule) Fee(isMaker bool, notional float64) float64 {
	bps := f.TakerBps
	if isMaker {
		bps = f.MakerBps
	}
	return notional * bps / 1e4
}

// SlippedPrice worsens a taker fill price by the configured slippage:
// buys pay more, sells receive less. Maker fills are never slipped.
func (f FeeSchedule) SlippedPrice(buy bool, px float64) float64 {
	slip := px * f.SlippageBps / 1e4
	if buy {
		return px + slip
	}
	return px - slip
}
