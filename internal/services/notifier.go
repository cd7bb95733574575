package services

import (
	"log"
	"sync"
)

// LoanChanged is published after a check-out or check-in
type LoanChanged struct {
	OwnerID int
	EventID int
	ItemID  int
}

// ItemsChanged is published after items of an owner were created, updated or deleted
type ItemsChanged struct {
	OwnerID int
}

// ProfileImageChanged is published after a user uploaded a new avatar
type ProfileImageChanged struct {
	UserID      int
	ImageKey    string
	PreviousKey *string
}

// Topic delivers values of one event type to its subscribers, synchronously
// and in subscription order
type Topic[T any] struct {
	mu       sync.RWMutex
	handlers []func(T)
}

// Subscribe registers fn for every value published after this call
func (t *Topic[T]) Subscribe(fn func(T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, fn)
}

// Publish delivers v to every subscriber. A panicking subscriber is logged
// and does not stop delivery to the others.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := make([]func(T), len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.RUnlock()

	for _, fn := range handlers {
		deliver(fn, v)
	}
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notifier: subscriber panicked: %v", r)
		}
	}()
	fn(v)
}

// Notifier groups the typed topics of the application
type Notifier struct {
	Loans         Topic[LoanChanged]
	Items         Topic[ItemsChanged]
	ProfileImages Topic[ProfileImageChanged]
}

// NewNotifier creates a notifier without subscribers
func NewNotifier() *Notifier {
	return &Notifier{}
}
