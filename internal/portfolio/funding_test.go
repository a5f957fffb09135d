package portfolio

import (
	"testing"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

func TestFundingScheduleRateAt(t *testing.T) {
	t.Parallel()

	s, err := NewFundingSchedule([]types.FundingPoint{
		{TsMs: 1000, Rate: 0.0001},
		{TsMs: 2000, Rate: 0.0002},
		{TsMs: 3000, Rate: -0.0001},
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		ts   uint64
		want float64
	}{
		{500, 0},       // before the schedule
		{1000, 0.0001}, // exact boundary
		{1500, 0.0001},
		{2000, 0.0002},
		{9999, -0.0001}, // after the last point
	}
	for _, c := range cases {
		if got := s.RateAt(c.ts); got != c.want {
			t.Errorf("RateAt(%d) = %v, want %v", c.ts, got, c.want)
		}
	}
}

func TestFundingScheduleRejectsUnsorted(t *testing.T) {
	t.Parallel()

	_, err := NewFundingSchedule([]types.FundingPoint{
		{TsMs: 2000, Rate: 0.0001},
		{TsMs: 1000, Rate: 0.0002},
	})
	if err == nil {
		t.Error("unsorted schedule accepted")
	}

	_, err = NewFundingSchedule([]types.FundingPoint{
		{TsMs: 1000, Rate: 0.0001},
		{TsMs: 1000, Rate: 0.0002},
	})
	if err == nil {
		t.Error("duplicate timestamps accepted")
	}
}

func TestZeroFundingSchedule(t *testing.T) {
	t.Parallel()

	s := ZeroFundingSchedule()
	if got := s.RateAt(123456); got != 0 {
		t.Errorf("RateAt on zero schedule = %v, want 0", got)
	}
	if s.Covers(0, 1) {
		t.Error("empty schedule claims coverage")
	}
}

func TestFundingScheduleCovers(t *testing.T) {
	t.Parallel()

	start := uint64(10 * FundingIntervalMs)
	end := uint64(12 * FundingIntervalMs)
	s, err := NewFundingSchedule([]types.FundingPoint{
		{TsMs: start - FundingIntervalMs, Rate: 0.0001},
		{TsMs: end, Rate: 0.0001},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !s.Covers(start, end) {
		t.Error("schedule should cover [start-8h, end]")
	}
	if s.Covers(start, end+1) {
		t.Error("schedule should not cover past its last point")
	}
}

func TestFundingPayment(t *testing.T) {
	t.Parallel()

	// Long 1.0 at mark 1000 with rate +0.0001 pays 0.1.
	if got := FundingPayment(1.0, 1000, 0.0001); got != 0.1 {
		t.Errorf("long payment = %v, want 0.1", got)
	}
	// Short receives the same amount.
	if got := FundingPayment(-1.0, 1000, 0.0001); got != -0.1 {
		t.Errorf("short payment = %v, want -0.1", got)
	}
}

func TestFeeSchedule(t *testing.T) {
	t.Parallel()

	f := FeeSchedule{MakerBps: -1.5, TakerBps: 4.5, SlippageBps: 2}

	if got := f.Fee(false, 1000); got != 0.45 {
		t.Errorf("taker fee = %v, want 0.45", got)
	}
	if got := f.Fee(true, 1000); got != -0.15 {
		t.Errorf("maker fee = %v, want -0.15 (rebate)", got)
	}
	if got := f.SlippedPrice(true, 100); got != 100.02 {
		t.Errorf("buy slip = %v, want 100.02", got)
	}
	if got := f.SlippedPrice(false, 100); got != 99.98 {
		t.Errorf("sell slip = %v, want 99.98", got)
	}
}
