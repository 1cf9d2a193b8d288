package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Timestamp is an instant that may arrive with or without a zone offset.
// Values without one are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{parsed}
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// Profile is the logged-in user.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// DisplayName is the username, or the local part of the email when the
// backend sends no username.
func (p Profile) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return local
}

func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/user/profile/me/", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Activity is one entry of the account's activity timeline.
type Activity struct {
	ID      ID        `json:"id"`
	Type    string    `json:"type"` // subscription, setting, security, notification
	Action  string    `json:"action"`
	Subject string    `json:"subject"`
	Date    Timestamp `json:"date"`
}

// Activities returns the timeline, newest first.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/activities/", nil, &raw); err != nil {
		return nil, err
	}
	items, err := listOf[Activity](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activities: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.After(items[j].Date.Time) })
	return items, nil
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationPayment     NotificationType = "payment"
	NotificationPriceChange NotificationType = "price-change"
	NotificationFeature     NotificationType = "feature"
	NotificationAccount     NotificationType = "account"
	NotificationTip         NotificationType = "tip"
)

type Notification struct {
	ID        ID               `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp Timestamp        `json:"timestamp"`
	IsRead    bool             `json:"is_read"`
}

// Notifications returns the user's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/notifications/", nil, &raw); err != nil {
		return nil, err
	}
	items, err := listOf[Notification](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notifications: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp.Time) })
	return items, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id ID) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+url.PathEscape(string(id))+"/read/", nil, nil)
}

// UnreadCount counts notifications not yet read.
func UnreadCount(ns []Notification) int {
	n := 0
	for _, x := range ns {
		if !x.IsRead {
			n++
		}
	}
	return n
}
