package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Cycle is how often a subscription bills.
type Cycle string

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// DateLayout is the wire format of billing dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time of day, in UTC.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// tolerate a full timestamp
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ID is a resource identifier. The backend sends integers; other
// deployments send strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Money is an amount in the account currency. Decimal fields arrive as
// JSON strings ("9.99") or numbers.
type Money float64

func (m *Money) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", s)
		}
		*m = Money(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Money(f)
	return nil
}

func (m Money) String() string {
	return "$" + strconv.FormatFloat(float64(m), 'f', 2, 64)
}

// Subscription is one recurring expense.
type Subscription struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	Price           Money  `json:"price"`
	Cycle           Cycle  `json:"cycle"`
	NextBillingDate Date   `json:"next_billing_date"`
	Category        string `json:"category"`
	Logo            string `json:"logo"`
}

// MonthlyCost is the price normalized to one month.
func (s Subscription) MonthlyCost() Money {
	if s.Cycle == Yearly {
		return s.Price / 12
	}
	return s.Price
}

// YearlyCost is the price normalized to one year.
func (s Subscription) YearlyCost() Money {
	if s.Cycle == Yearly {
		return s.Price
	}
	return s.Price * 12
}

// Categories offered when adding a subscription. Others are accepted.
var Categories = []string{
	"Entertainment",
	"Work Tools",
	"Personal",
	"Shopping",
	"Utilities",
	"Food & Drink",
	"Health & Fitness",
	"Other",
}

// SubscriptionInput is the body of create and update calls.
type SubscriptionInput struct {
	Name            string  `json:"name"              validate:"required,max=100"`
	Price           float64 `json:"price"             validate:"gte=0"`
	Cycle           Cycle   `json:"cycle"             validate:"required,oneof=monthly yearly"`
	NextBillingDate Date    `json:"next_billing_date" validate:"required"`
	Category        string  `json:"category,omitempty" validate:"omitempty,max=50"`
	Logo            string  `json:"logo"              validate:"omitempty,url"`
}

// ListSubscriptions returns the user's subscriptions, optionally limited to
// one category.
func (c *Client) ListSubscriptions(ctx context.Context, category string) ([]Subscription, error) {
	path := "/subscriptions/"
	if category != "" {
		path += "?" + url.Values{"category": {category}}.Encode()
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	subs, err := listOf[Subscription](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}

	// backends that ignore the query parameter still get filtered
	if category != "" {
		filtered := subs[:0]
		for _, s := range subs {
			if s.Category == category {
				filtered = append(filtered, s)
			}
		}
		subs = filtered
	}
	return subs, nil
}

func (c *Client) GetSubscription(ctx context.Context, id ID) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, subscriptionPath(id), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) CreateSubscription(ctx context.Context, in SubscriptionInput) (*Subscription, error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions/", in, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) UpdateSubscription(ctx context.Context, id ID, in SubscriptionInput) (*Subscription, error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodPut, subscriptionPath(id), in, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, id ID) error {
	return c.do(ctx, http.MethodDelete, subscriptionPath(id), nil, nil)
}

func subscriptionPath(id ID) string {
	return "/subscriptions/" + url.PathEscape(string(id)) + "/"
}
