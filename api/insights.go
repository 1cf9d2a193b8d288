package api

import (
	"sort"
	"time"
)

// UrgentWithinDays marks renewals close enough to flag.
const UrgentWithinDays = 7

// Summary is the dashboard's headline numbers.
type Summary struct {
	MonthlyCost    Money
	YearlyEstimate Money
	Active         int
	NextRenewal    *Renewal
	Categories     []CategorySpend
}

// Renewal is the next charge of one subscription.
type Renewal struct {
	Subscription Subscription
	Date         Date
	DaysUntil    int
}

// Urgent reports whether the charge is due within UrgentWithinDays.
func (r Renewal) Urgent() bool {
	return r.DaysUntil <= UrgentWithinDays
}

// Summarize totals subscriptions as of now. Yearly plans count as a
// twelfth of their price per month.
func Summarize(subs []Subscription, now time.Time) Summary {
	var s Summary
	for _, sub := range subs {
		s.MonthlyCost += sub.MonthlyCost()
		s.YearlyEstimate += sub.YearlyCost()
		s.Active++
	}

	if upcoming := UpcomingRenewals(subs, now, -1); len(upcoming) > 0 {
		next := upcoming[0]
		s.NextRenewal = &next
	}
	s.Categories = CategoryBreakdown(subs)
	return s
}

// CategorySpend is one slice of the category breakdown.
type CategorySpend struct {
	Category   string
	Monthly    Money
	Count      int
	Percentage float64
}

// CategoryBreakdown groups monthly spend by category, largest first.
// Subscriptions without a category are counted as "Other".
func CategoryBreakdown(subs []Subscription) []CategorySpend {
	byName := make(map[string]*CategorySpend)
	var total Money
	for _, sub := range subs {
		name := sub.Category
		if name == "" {
			name = "Other"
		}
		cs, ok := byName[name]
		if !ok {
			cs = &CategorySpend{Category: name}
			byName[name] = cs
		}
		cs.Monthly += sub.MonthlyCost()
		cs.Count++
		total += sub.MonthlyCost()
	}

	out := make([]CategorySpend, 0, len(byName))
	for _, cs := range byName {
		if total > 0 {
			cs.Percentage = float64(cs.Monthly / total * 100)
		}
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Monthly != out[j].Monthly {
			return out[i].Monthly > out[j].Monthly
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// UpcomingRenewals lists the next charge of every subscription due within
// days of now, soonest first. A billing date already in the past is rolled
// forward by whole cycles. A negative days means no limit.
func UpcomingRenewals(subs []Subscription, now time.Time, days int) []Renewal {
	today := NewDate(now)

	var out []Renewal
	for _, sub := range subs {
		if sub.NextBillingDate.IsZero() {
			continue
		}
		next := nextCharge(sub, today)
		until := daysBetween(today, next)
		if days >= 0 && until > days {
			continue
		}
		out = append(out, Renewal{Subscription: sub, Date: next, DaysUntil: until})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysUntil != out[j].DaysUntil {
			return out[i].DaysUntil < out[j].DaysUntil
		}
		return out[i].Subscription.Name < out[j].Subscription.Name
	})
	return out
}

// MonthSpend is the projected charge total of one calendar month.
type MonthSpend struct {
	Month time.Time // first day of the month, UTC
	Total Money
}

// MonthlyTrend projects spend for the given number of calendar months
// starting with the month of now. Monthly plans bill every month; yearly
// plans bill in the month of their billing date.
func MonthlyTrend(subs []Subscription, now time.Time, months int) []MonthSpend {
	if months <= 0 {
		return nil
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	out := make([]MonthSpend, months)
	for i := range out {
		month := start.AddDate(0, i, 0)
		out[i].Month = month
		for _, sub := range subs {
			switch sub.Cycle {
			case Yearly:
				if !sub.NextBillingDate.IsZero() && sub.NextBillingDate.Month() == month.Month() {
					out[i].Total += sub.Price
				}
			default:
				out[i].Total += sub.Price
			}
		}
	}
	return out
}

// nextCharge returns the first billing date on or after today.
func nextCharge(sub Subscription, today Date) Date {
	step := 1
	if sub.Cycle == Yearly {
		step = 12
	}
	anchor := sub.NextBillingDate
	next := anchor
	for n := step; next.Before(today.Time); n += step {
		next = addMonths(anchor, n)
	}
	return next
}

// addMonths moves d by n months, clamping to the last day of the target
// month (Jan 31 + 1 month is Feb 28 or 29).
func addMonths(d Date, n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return Date{time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

func daysBetween(from, to Date) int {
	return int(to.Sub(from.Time).Hours() / 24)
}
