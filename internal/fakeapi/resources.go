package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type subscription struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Cycle           string  `json:"cycle"`
	NextBillingDate string  `json:"next_billing_date"`
	Category        string  `json:"category"`
	Logo            string  `json:"logo"`
}

type activity struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Action  string    `json:"action"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

type notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

type subscriptionInput struct {
	Name            string  `json:"name"              validate:"required"`
	Price           float64 `json:"price"             validate:"gte=0"`
	Cycle           string  `json:"cycle"             validate:"oneof=monthly yearly"`
	NextBillingDate string  `json:"next_billing_date" validate:"datetime=2006-01-02"`
	Category        string  `json:"category"`
	Logo            string  `json:"logo"`
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (subscriptionInput, bool) {
	var in subscriptionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return in, false
	}
	if errs := s.fieldErrors(in); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return in, false
	}
	return in, true
}

// AddSubscription stores a subscription for username directly.
func (s *Server) AddSubscription(username, name string, price float64, cycle, next, category string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &subscription{
		ID:              s.newIDLocked(),
		Name:            name,
		Price:           price,
		Cycle:           cycle,
		NextBillingDate: next,
		Category:        category,
	}
	s.subs[username] = append(s.subs[username], sub)
	return sub.ID
}

func (s *Server) findLocked(username, id string) (int, *subscription) {
	for i, sub := range s.subs[username] {
		if sub.ID == id {
			return i, sub
		}
	}
	return -1, nil
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)
	category := r.URL.Query().Get("category")

	s.mu.Lock()
	out := make([]subscription, 0, len(s.subs[username]))
	for _, sub := range s.subs[username] {
		if category == "" || sub.Category == category {
			out = append(out, *sub)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	username := usernameFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		ID:              s.newIDLocked(),
		Name:            in.Name,
		Price:           in.Price,
		Cycle:           in.Cycle,
		NextBillingDate: in.NextBillingDate,
		Category:        in.Category,
		Logo:            in.Logo,
	}
	s.subs[username] = append(s.subs[username], sub)
	s.recordLocked(username, "subscription", "Added new subscription", sub.Name)
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, sub := s.findLocked(usernameFrom(r), chi.URLParam(r, "id"))
	if sub == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	username := usernameFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, sub := s.findLocked(username, chi.URLParam(r, "id"))
	if sub == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if sub.Price != in.Price {
		s.notifyLocked(username, "price-change", sub.Name+" price changed",
			fmt.Sprintf("%s now costs $%.2f per %s", sub.Name, in.Price, cycleUnit(in.Cycle)))
	}
	sub.Name = in.Name
	sub.Price = in.Price
	sub.Cycle = in.Cycle
	sub.NextBillingDate = in.NextBillingDate
	sub.Category = in.Category
	sub.Logo = in.Logo
	s.recordLocked(username, "subscription", "Updated subscription", sub.Name)
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	i, sub := s.findLocked(username, chi.URLParam(r, "id"))
	if sub == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	s.subs[username] = append(s.subs[username][:i], s.subs[username][i+1:]...)
	s.recordLocked(username, "subscription", "Removed subscription", sub.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u, ok := s.users[usernameFrom(r)]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":    u.username,
		"email":       u.email,
		"avatar":      "",
		"date_joined": u.joined,
	})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]activity(nil), s.activities[usernameFrom(r)]...)
	s.mu.Unlock()

	if out == nil {
		out = []activity{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ns := s.notifications[usernameFrom(r)]
	out := make([]notification, 0, len(ns))
	for _, n := range ns {
		out = append(out, *n)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[usernameFrom(r)] {
		if n.ID == id {
			n.IsRead = true
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

func cycleUnit(cycle string) string {
	if cycle == "yearly" {
		return "year"
	}
	return "month"
}
