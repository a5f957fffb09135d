package portfolio

import (
	"math"
	"testing"
)

func TestApplyFillOpenLong(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 0.5, 101, 0.5*101*4.5/1e4)

	pos := p.Position()
	if pos.Size != 0.5 || pos.AvgEntryPx != 101 {
		t.Errorf("position = %+v, want 0.5 @ 101", pos)
	}
	wantCash := 10000 - 0.5*101 - 0.5*101*4.5/1e4
	if math.Abs(p.Cash()-wantCash) > 1e-9 {
		t.Errorf("cash = %v, want %v", p.Cash(), wantCash)
	}
}

func TestApplyFillBlendsEntry(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 1, 100, 0)
	p.ApplyFill(true, 1, 110, 0)

	pos := p.Position()
	if pos.Size != 2 || pos.AvgEntryPx != 105 {
		t.Errorf("position = %+v, want 2 @ 105", pos)
	}
}

func TestApplyFillReduceRealizes(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 2, 100, 0)
	p.ApplyFill(false, 1, 110, 0)

	if p.RealizedPnL() != 10 {
		t.Errorf("realized = %v, want 10", p.RealizedPnL())
	}
	pos := p.Position()
	if pos.Size != 1 || pos.AvgEntryPx != 100 {
		t.Errorf("position = %+v, want 1 @ 100", pos)
	}
}

func TestApplyFillCloseToFlat(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 1, 100, 0)
	p.ApplyFill(false, 1, 90, 0)

	if !p.Flat() {
		t.Fatal("not flat after full close")
	}
	if p.RealizedPnL() != -10 {
		t.Errorf("realized = %v, want -10", p.RealizedPnL())
	}
	if p.Position().AvgEntryPx != 0 {
		t.Error("avg entry not reset on flat")
	}
	if math.Abs(p.Cash()-9990) > 1e-9 {
		t.Errorf("cash = %v, want 9990", p.Cash())
	}
}

func TestApplyFillCrossThroughZero(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 1, 100, 0)
	p.ApplyFill(false, 3, 110, 0)

	// Long 1 closed at +10; remaining 2 opens short at 110.
	if p.RealizedPnL() != 10 {
		t.Errorf("realized = %v, want 10", p.RealizedPnL())
	}
	pos := p.Position()
	if pos.Size != -2 || pos.AvgEntryPx != 110 {
		t.Errorf("position = %+v, want -2 @ 110", pos)
	}
}

func TestShortPnL(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(false, 1, 100, 0)
	if got := p.UnrealizedPnL(90); got != 10 {
		t.Errorf("short unrealized at 90 = %v, want 10", got)
	}
	p.ApplyFill(true, 1, 90, 0)
	if p.RealizedPnL() != 10 {
		t.Errorf("short realized = %v, want 10", p.RealizedPnL())
	}
	if !p.Flat() {
		t.Error("not flat after covering")
	}
}

func TestEquityConservation(t *testing.T) {
	t.Parallel()
	p := New(10000)

	fee := 0.5 * 101 * 4.5 / 1e4
	p.ApplyFill(true, 0.5, 101, fee)
	p.ApplyFunding(0.1)

	mark := 103.0
	wantEquity := 10000 - fee - 0.1 + 0.5*(mark-101)
	if math.Abs(p.Equity(mark)-wantEquity) > 1e-9 {
		t.Errorf("equity = %v, want %v", p.Equity(mark), wantEquity)
	}
	if p.FeesPaid() != fee {
		t.Errorf("feesPaid = %v, want %v", p.FeesPaid(), fee)
	}
	if p.FundingPaid() != 0.1 {
		t.Errorf("fundingPaid = %v, want 0.1", p.FundingPaid())
	}
}

func TestMakerRebateCreditsCash(t *testing.T) {
	t.Parallel()
	p := New(10000)

	p.ApplyFill(true, 1, 100, -0.02)
	if math.Abs(p.Cash()-(10000-100+0.02)) > 1e-9 {
		t.Errorf("cash = %v, rebate not credited", p.Cash())
	}
}
