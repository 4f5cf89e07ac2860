package audit

import (
	"context"
	"log/slog"
	"time"
)

// BudgetSink accumulates spend from audit entries and logs an alert when
// the UTC-day or UTC-month total crosses its budget. Budgets are advisory:
// nothing is rejected, the alert fires once per window.
type BudgetSink struct {
	log *slog.Logger

	dailyUSD   float64
	monthlyUSD float64

	day        string
	month      string
	daySpend   float64
	monthSpend float64

	dayAlerted   bool
	monthAlerted bool
}

// NewBudgetSink watches the given budgets. A zero budget disables its
// alert; log may be nil.
func NewBudgetSink(log *slog.Logger, dailyUSD, monthlyUSD float64) *BudgetSink {
	if log == nil {
		log = slog.Default()
	}
	return &BudgetSink{log: log, dailyUSD: dailyUSD, monthlyUSD: monthlyUSD}
}

// WriteBatch implements Sink. Windows roll on the entry timestamps, so
// replayed batches land in their own day or month.
func (s *BudgetSink) WriteBatch(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.CostUSD <= 0 {
			continue
		}
		s.add(e.Time.UTC(), e.CostUSD)
	}
	return nil
}

// DaySpend returns the running total for the current UTC day.
func (s *BudgetSink) DaySpend() float64 { return s.daySpend }

// MonthSpend returns the running total for the current UTC month.
func (s *BudgetSink) MonthSpend() float64 { return s.monthSpend }

func (s *BudgetSink) add(at time.Time, usd float64) {
	day := at.Format("2006-01-02")
	month := at.Format("2006-01")

	if day != s.day {
		s.day = day
		s.daySpend = 0
		s.dayAlerted = false
	}
	if month != s.month {
		s.month = month
		s.monthSpend = 0
		s.monthAlerted = false
	}

	s.daySpend += usd
	s.monthSpend += usd

	if s.dailyUSD > 0 && !s.dayAlerted && s.daySpend > s.dailyUSD {
		s.dayAlerted = true
		s.log.Warn("daily_budget_exceeded",
			slog.String("day", s.day),
			slog.Float64("spend_usd", s.daySpend),
			slog.Float64("budget_usd", s.dailyUSD),
		)
	}
	if s.monthlyUSD > 0 && !s.monthAlerted && s.monthSpend > s.monthlyUSD {
		s.monthAlerted = true
		s.log.Warn("monthly_budget_exceeded",
			slog.String("month", s.month),
			slog.Float64("spend_usd", s.monthSpend),
			slog.Float64("budget_usd", s.monthlyUSD),
		)
	}
}
