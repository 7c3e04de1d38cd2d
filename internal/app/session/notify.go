package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeType represents a session change notification type.
type ChangeType int

const (
	ChangeTrack  ChangeType = iota // Current track changed
	ChangeState                    // Playing/paused changed
	ChangeQueue                    // Queue contents or order changed
	ChangeMode                     // Shuffle or repeat mode changed
	ChangeVolume                   // Volume changed
)

// String returns the string representation of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeTrack:
		return "track"
	case ChangeState:
		return "state"
	case ChangeQueue:
		return "queue"
	case ChangeMode:
		return "mode"
	case ChangeVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Notification carries a session change to UI subscribers.
type Notification struct {
	SequenceNo uint64
	Type       ChangeType
	Status     Status
}

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Notifier fans session change notifications out to UI subscribers so they
// do not have to poll the getters.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewNotifier creates a new notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (n *Notifier) Subscribe(stream Stream) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New().String()
	n.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (n *Notifier) Unsubscribe(subscriptionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions)
}

// Broadcast sends a notification to all subscribers.
// Each stream send runs in its own goroutine with a timeout so a slow
// subscriber cannot stall the session controller.
func (n *Notifier) Broadcast(notification *Notification) {
	n.sequenceNoMu.Lock()
	n.sequenceNo++
	notification.SequenceNo = n.sequenceNo
	n.sequenceNoMu.Unlock()

	n.mu.RLock()
	subs := make([]*subscription, 0, len(n.subscriptions))
	for _, sub := range n.subscriptions {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case <-done:
				// Errors are ignored; a broken subscriber is expected to
				// unsubscribe itself.
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
}

// Close removes all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions = make(map[string]*subscription)
}
