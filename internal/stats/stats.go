// Package stats aggregates signal outcomes into win-rate summaries.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// Period is a rolling lookback window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists the reported windows in display order.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

func (p Period) duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// Summary holds the outcome counters for one period. Expired signals
// count toward the total but not the win rate.
type Summary struct {
	Period  Period  `json:"period"`
	Won     int     `json:"won"`
	Lost    int     `json:"lost"`
	Expired int     `json:"expired"`
	WinRate float64 `json:"win_rate"`
}

// Total returns all evaluated signals in the period.
func (s Summary) Total() int {
	return s.Won + s.Lost + s.Expired
}

// Service computes win-rate summaries from recorded signal results.
type Service struct {
	results contracts.ResultRepository

	now func() time.Time
}

// NewService creates a stats service.
func NewService(results contracts.ResultRepository) *Service {
	return &Service{results: results, now: time.Now}
}

// Record stores one evaluated outcome.
func (s *Service) Record(ctx context.Context, symbol string, tier contracts.Tier, outcome contracts.SignalOutcome) error {
	return s.results.Insert(ctx, &contracts.SignalResult{
		Symbol:      symbol,
		Tier:        tier,
		Outcome:     outcome,
		EvaluatedAt: s.now(),
	})
}

// Summarize returns the counters for one period.
func (s *Service) Summarize(ctx context.Context, period Period) (Summary, error) {
	counts, err := s.results.CountSince(ctx, s.now().Add(-period.duration()))
	if err != nil {
		return Summary{}, fmt.Errorf("count results for %s: %w", period, err)
	}

	summary := Summary{
		Period:  period,
		Won:     counts[contracts.OutcomeWon],
		Lost:    counts[contracts.OutcomeLost],
		Expired: counts[contracts.OutcomeExpired],
	}
	if decided := summary.Won + summary.Lost; decided > 0 {
		summary.WinRate = math.Round(float64(summary.Won)/float64(decided)*1000) / 10
	}
	return summary, nil
}

// SummarizeAll returns the counters for every reported period.
func (s *Service) SummarizeAll(ctx context.Context) ([]Summary, error) {
	out := make([]Summary, 0, len(Periods))
	for _, period := range Periods {
		summary, err := s.Summarize(ctx, period)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}
