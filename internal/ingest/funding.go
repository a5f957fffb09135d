package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/franalgaba/hyperliquid-backtesting/internal/portfolio"
	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// fundingPageSize is the largest batch the info endpoint returns per call;
// the fetcher pages by advancing startTime past the last entry.
const fundingPageSize = 500

// fundingHistoryRequest is the POST /info request body.
type fundingHistoryRequest struct {
	Type      string `json:"type"`
	Coin      string `json:"coin"`
	StartTime uint64 `json:"startTime"`
	EndTime   uint64 `json:"endTime,omitempty"`
}

// fundingHistoryEntry is one element of the info endpoint's response.
type fundingHistoryEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Premium     string `json:"premium"`
	Time        uint64 `json:"time"`
}

// FundingClient fetches historical funding rates from the Hyperliquid info
// endpoint.
type FundingClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewFundingClient creates a client against the given API base URL
// (e.g. https://api.hyperliquid.xyz).
func NewFundingClient(baseURL string, logger *slog.Logger) *FundingClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &FundingClient{
		http:   client,
		logger: logger.With("component", "funding"),
	}
}

// FetchSchedule retrieves the funding history covering [startMs-8h, endMs]
// and returns it as a sorted schedule. The extra leading interval lets the
// engine price the first boundary a run can cross.
func (c *FundingClient) FetchSchedule(ctx context.Context, coin string, startMs, endMs uint64) (*portfolio.FundingSchedule, error) {
	if err := types.ValidateCoin(coin); err != nil {
		return nil, err
	}
	if endMs < startMs {
		return nil, fmt.Errorf("end %d before start %d", endMs, startMs)
	}

	from := startMs
	if from > portfolio.FundingIntervalMs {
		from -= portfolio.FundingIntervalMs
	}

	var points []types.FundingPoint
	cursor := from
	for {
		batch, err := c.fetchPage(ctx, coin, cursor, endMs)
		if err != nil {
			return nil, err
		}
		for _, entry := range batch {
			rate, err := decimal.NewFromString(entry.FundingRate)
			if err != nil {
				return nil, fmt.Errorf("parse funding rate %q at ts %d: %w", entry.FundingRate, entry.Time, err)
			}
			f, _ := rate.Float64()
			points = append(points, types.FundingPoint{TsMs: entry.Time, Rate: f})
		}
		if len(batch) < fundingPageSize {
			break
		}
		cursor = batch[len(batch)-1].Time + 1
		if cursor > endMs {
			break
		}
	}

	// The API returns ascending times; sort defensively before the schedule
	// enforces strict ordering.
	sort.Slice(points, func(i, j int) bool { return points[i].TsMs < points[j].TsMs })

	sched, err := portfolio.NewFundingSchedule(points)
	if err != nil {
		return nil, fmt.Errorf("funding history for %s: %w", coin, err)
	}
	if !sched.Covers(startMs, endMs) {
		c.logger.Warn("funding schedule does not fully cover the run range",
			"coin", coin, "points", sched.Len(), "start", startMs, "end", endMs)
	}
	c.logger.Info("funding history fetched", "coin", coin, "points", sched.Len())
	return sched, nil
}

func (c *FundingClient) fetchPage(ctx context.Context, coin string, startMs, endMs uint64) ([]fundingHistoryEntry, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(fundingHistoryRequest{
			Type:      "fundingHistory",
			Coin:      coin,
			StartTime: startMs,
			EndTime:   endMs,
		}).
		Post("/info")
	if err != nil {
		return nil, fmt.Errorf("funding history request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("funding history: %s: %s", resp.Status(), resp.String())
	}

	var batch []fundingHistoryEntry
	if err := json.Unmarshal(resp.Body(), &batch); err != nil {
		return nil, fmt.Errorf("decode funding history: %w", err)
	}
	return batch, nil
}
