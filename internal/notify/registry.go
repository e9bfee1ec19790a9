package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/SuPReme-0/ClassLens/internal/metrics"
)

// Subscriber is one connected real-time client.
type Subscriber struct {
	ID   string
	send chan []byte
}

// NewSubscriber creates a subscriber with a bounded outbound buffer.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{ID: uuid.NewString(), send: make(chan []byte, buffer)}
}

// Messages yields frames queued for the subscriber. It is closed on Remove.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Registry tracks connected subscribers and the class groups they joined.
// Group membership is not checked against enrollment.
type Registry struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]map[string]struct{}
	groups map[string]map[*Subscriber]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[*Subscriber]map[string]struct{}),
		groups: make(map[string]map[*Subscriber]struct{}),
	}
}

// Add registers a subscriber for global broadcasts.
func (r *Registry) Add(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; ok {
		return
	}
	r.subs[s] = make(map[string]struct{})
	metrics.Subscribers.Inc()
}

// Remove drops the subscriber from every group and closes its channel.
func (r *Registry) Remove(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined, ok := r.subs[s]
	if !ok {
		return
	}
	for group := range joined {
		r.leaveLocked(s, group)
	}
	delete(r.subs, s)
	close(s.send)
	metrics.Subscribers.Dec()
}

// Join adds a registered subscriber to a group. It reports false for unknown subscribers.
func (r *Registry) Join(s *Subscriber, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined, ok := r.subs[s]
	if !ok || group == "" {
		return false
	}
	members, ok := r.groups[group]
	if !ok {
		members = make(map[*Subscriber]struct{})
		r.groups[group] = members
	}
	members[s] = struct{}{}
	joined[group] = struct{}{}
	return true
}

// Leave removes a subscriber from a group.
func (r *Registry) Leave(s *Subscriber, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(s, group)
}

func (r *Registry) leaveLocked(s *Subscriber, group string) {
	if joined, ok := r.subs[s]; ok {
		delete(joined, group)
	}
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Broadcast queues frame for every subscriber and returns how many accepted it.
func (r *Registry) Broadcast(frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for s := range r.subs {
		if deliver(s, frame) {
			n++
		}
	}
	return n
}

// BroadcastGroup queues frame for the members of group.
func (r *Registry) BroadcastGroup(group string, frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for s := range r.groups[group] {
		if deliver(s, frame) {
			n++
		}
	}
	return n
}

// GroupSize returns the number of members in group.
func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// deliver never blocks; a slow subscriber misses the frame.
func deliver(s *Subscriber, frame []byte) bool {
	select {
	case s.send <- frame:
		metrics.Deliveries.WithLabelValues("sent").Inc()
		return true
	default:
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		return false
	}
}
