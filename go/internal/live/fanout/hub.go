package fanout

import (
	"fmt"
	"sync"

	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/rs/zerolog/log"
)

// Topic identifies a notification stream, keyed by match or by user.
type Topic string

// MatchTopic is observed by every client viewing the match.
func MatchTopic(matchID int64) Topic {
	return Topic(fmt.Sprintf("match:%d", matchID))
}

// UserTopic is a user's personal channel.
func UserTopic(userID int64) Topic {
	return Topic(fmt.Sprintf("user:%d", userID))
}

// Callback receives a notification. A returned error is logged and dropped.
type Callback func(env *events.Envelope) error

// Hub keeps per-topic subscriber registries. The hub holds only an opaque
// handle and a callback; the transport owns the connection behind it.
type Hub struct {
	mu     sync.RWMutex
	topics map[Topic]map[string]Callback
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[Topic]map[string]Callback)}
}

// Subscribe registers cb under handle. Subscribing an existing handle replaces its callback.
func (h *Hub) Subscribe(topic Topic, handle string, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]Callback)
		h.topics[topic] = subs
	}
	subs[handle] = cb

	log.Debug().
		Str("topic", string(topic)).
		Str("handle", handle).
		Int("subscribers", len(subs)).
		Msg("subscriber registered")
}

// Unsubscribe removes handle from topic. Unknown topics and handles are ignored.
func (h *Hub) Unsubscribe(topic Topic, handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, handle)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Notify delivers env to the subscribers registered at call time and returns
// how many callbacks were invoked.
func (h *Hub) Notify(topic Topic, env *events.Envelope) int {
	type target struct {
		handle string
		cb     Callback
	}

	h.mu.RLock()
	subs := h.topics[topic]
	snapshot := make([]target, 0, len(subs))
	for handle, cb := range subs {
		snapshot = append(snapshot, target{handle: handle, cb: cb})
	}
	h.mu.RUnlock()

	for _, t := range snapshot {
		deliver(topic, t.handle, t.cb, env)
	}

	if len(snapshot) > 0 {
		log.Debug().
			Str("topic", string(topic)).
			Str("event_type", string(env.Type)).
			Int("subscribers", len(snapshot)).
			Msg("event delivered")
	}
	return len(snapshot)
}

// SubscriberCount returns the number of subscribers currently registered for topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func deliver(topic Topic, handle string, cb Callback, env *events.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("topic", string(topic)).
				Str("handle", handle).
				Interface("panic", r).
				Msg("subscriber callback panicked")
		}
	}()

	if err := cb(env); err != nil {
		log.Warn().
			Err(err).
			Str("topic", string(topic)).
			Str("handle", handle).
			Str("event_type", string(env.Type)).
			Msg("subscriber callback failed")
	}
}
