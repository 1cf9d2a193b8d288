package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/subtrackr/subtrackr-cli/api"
)

// trendBarWidth is the width of the largest bar in the spend trend.
const trendBarWidth = 30

// newTable builds a table for either the plain or the styled renderer.
// Plain tables use markdown borders so piped output stays readable.
func newTable(styled bool, headers ...string) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().Headers(headers...)
	if !styled {
		return t.Border(lipgloss.MarkdownBorder()).
			StyleFunc(func(_, _ int) lipgloss.Style { return cell })
	}
	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(styleDim).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true).Foreground(lipgloss.Color("99"))
			}
			return cell
		})
}

func subscriptionRows(subs []api.Subscription) [][]string {
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		category := s.Category
		if category == "" {
			category = "-"
		}
		rows = append(rows, []string{
			string(s.ID),
			s.Name,
			s.Price.String(),
			string(s.Cycle),
			s.NextBillingDate.String(),
			category,
		})
	}
	return rows
}

func renderSubscriptions(subs []api.Subscription, styled bool) string {
	if len(subs) == 0 {
		return "No subscriptions yet. Add one with: subtrackr add -name ... -price ..."
	}
	t := newTable(styled, "ID", "Name", "Price", "Cycle", "Next billing", "Category").
		Rows(subscriptionRows(subs)...)
	return t.String() + fmt.Sprintf("\n%d subscription(s)", len(subs))
}

func renderSummary(s api.Summary, styled bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monthly cost:    %s\n", s.MonthlyCost)
	fmt.Fprintf(&b, "Yearly estimate: %s\n", s.YearlyEstimate)
	fmt.Fprintf(&b, "Active:          %d\n", s.Active)
	if r := s.NextRenewal; r != nil {
		fmt.Fprintf(&b, "Next renewal:    %s on %s (%s)\n",
			r.Subscription.Name, r.Date, daysLabel(r.DaysUntil))
	}
	if len(s.Categories) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	rows := make([][]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		rows = append(rows, []string{
			c.Category,
			c.Monthly.String(),
			strconv.Itoa(c.Count),
			fmt.Sprintf("%.1f%%", c.Percentage),
		})
	}
	b.WriteString("\n")
	b.WriteString(newTable(styled, "Category", "Monthly", "Count", "Share").Rows(rows...).String())
	return b.String()
}

func renderRenewals(rs []api.Renewal, styled bool) string {
	if len(rs) == 0 {
		return "No upcoming renewals."
	}
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		due := daysLabel(r.DaysUntil)
		if r.Urgent() {
			due += " !"
		}
		rows = append(rows, []string{
			r.Subscription.Name,
			r.Subscription.Price.String(),
			r.Date.String(),
			due,
		})
	}
	return newTable(styled, "Subscription", "Amount", "Date", "Due").Rows(rows...).String()
}

func renderTrend(months []api.MonthSpend) string {
	if len(months) == 0 {
		return "No months to show."
	}
	var peak api.Money
	for _, m := range months {
		peak = max(peak, m.Total)
	}

	var b strings.Builder
	for i, m := range months {
		bar := 0
		if peak > 0 {
			bar = int(float64(m.Total) / float64(peak) * trendBarWidth)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  %-*s %s", m.Month.Format("Jan 2006"), trendBarWidth, strings.Repeat("#", bar), m.Total)
	}
	return b.String()
}

func renderNotifications(ns []api.Notification, now time.Time) string {
	if len(ns) == 0 {
		return "No notifications."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d unread\n", api.UnreadCount(ns))
	for _, n := range ns {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		fmt.Fprintf(&b, "\n%s [%s] %s  (%s, id %s)\n", mark, n.Type, n.Title, formatAge(now.Sub(n.Timestamp.Time)), n.ID)
		if n.Message != "" {
			fmt.Fprintf(&b, "  %s\n", n.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderActivities(as []api.Activity, now time.Time, styled bool) string {
	if len(as) == 0 {
		return "No activity yet."
	}
	rows := make([][]string, 0, len(as))
	for _, a := range as {
		rows = append(rows, []string{formatAge(now.Sub(a.Date.Time)), a.Type, a.Action, a.Subject})
	}
	return newTable(styled, "When", "Type", "Action", "Subject").Rows(rows...).String()
}

func renderProfile(p api.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name:     %s\n", p.DisplayName())
	fmt.Fprintf(&b, "Username: %s\n", p.Username)
	fmt.Fprintf(&b, "Email:    %s", p.Email)
	if p.Avatar != "" {
		fmt.Fprintf(&b, "\nAvatar:   %s", p.Avatar)
	}
	return b.String()
}

func renderStatus(profile string, authenticated bool, p *api.Profile) string {
	if !authenticated {
		return fmt.Sprintf("Profile %q: not logged in", profile)
	}
	if p == nil {
		return fmt.Sprintf("Profile %q: logged in", profile)
	}
	return fmt.Sprintf("Profile %q: logged in as %s", profile, p.DisplayName())
}

func daysLabel(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// formatAge formats how long ago something happened, coarsest unit first.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
