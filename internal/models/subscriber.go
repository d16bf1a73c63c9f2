package models

import "time"

// SubscriberStatus is the membership state of a subscriber within a list.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
)

// Subscriber represents a single recipient in a list. Email is unique
// within a list, compared case-insensitively. Ordering within a list is
// insertion order.
type Subscriber struct {
	ID        string           `json:"id"`
	ListID    string           `json:"list_id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Metadata  string           `json:"metadata"` // JSON
	Status    SubscriberStatus `json:"status"`
	AddedAt   time.Time        `json:"added_at"`
}

// List represents a subscriber list.
type List struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Subscribers []Subscriber `json:"subscribers,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ActiveSubscribers returns the list's active subscribers in insertion order.
func (l *List) ActiveSubscribers() []Subscriber {
	out := make([]Subscriber, 0, len(l.Subscribers))
	for _, s := range l.Subscribers {
		if s.Status == SubscriberActive {
			out = append(out, s)
		}
	}
	return out
}
