package fanout

import (
	"errors"
	"sync"
	"testing"

	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(matchID int64) *events.Envelope {
	return &events.Envelope{ID: "ev-1", MatchID: matchID, Type: events.EventTypeActionChanged}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, Topic("match:7"), MatchTopic(7))
	assert.Equal(t, Topic("user:7"), UserTopic(7))
	assert.NotEqual(t, MatchTopic(7), UserTopic(7))
}

func TestNotify_DeliversToTopicSubscribersOnly(t *testing.T) {
	hub := NewHub()
	var got []string

	hub.Subscribe(MatchTopic(1), "a", func(*events.Envelope) error { got = append(got, "a"); return nil })
	hub.Subscribe(MatchTopic(1), "b", func(*events.Envelope) error { got = append(got, "b"); return nil })
	hub.Subscribe(MatchTopic(2), "c", func(*events.Envelope) error { got = append(got, "c"); return nil })

	n := hub.Notify(MatchTopic(1), testEnvelope(1))

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestNotify_NoSubscribers(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.Notify(UserTopic(9), testEnvelope(0)))
}

func TestNotify_FailingCallbackDoesNotStopBroadcast(t *testing.T) {
	hub := NewHub()
	delivered := 0

	hub.Subscribe(MatchTopic(1), "err", func(*events.Envelope) error { return errors.New("socket closed") })
	hub.Subscribe(MatchTopic(1), "panic", func(*events.Envelope) error { panic("boom") })
	hub.Subscribe(MatchTopic(1), "ok", func(*events.Envelope) error { delivered++; return nil })

	require.NotPanics(t, func() { hub.Notify(MatchTopic(1), testEnvelope(1)) })
	assert.Equal(t, 1, delivered)
}

func TestNotify_SubscriberAddedDuringDeliveryMissesThatCall(t *testing.T) {
	hub := NewHub()
	lateCalls := 0
	late := func(*events.Envelope) error { lateCalls++; return nil }

	hub.Subscribe(MatchTopic(1), "first", func(*events.Envelope) error {
		hub.Subscribe(MatchTopic(1), "late", late)
		return nil
	})

	assert.Equal(t, 1, hub.Notify(MatchTopic(1), testEnvelope(1)))
	assert.Equal(t, 0, lateCalls)

	hub.Notify(MatchTopic(1), testEnvelope(1))
	assert.Equal(t, 1, lateCalls)
}

func TestNotify_UnsubscribeDuringDeliveryIsSnapshotConsistent(t *testing.T) {
	hub := NewHub()
	calls := map[string]int{}
	var mu sync.Mutex
	record := func(h string) Callback {
		return func(*events.Envelope) error {
			mu.Lock()
			calls[h]++
			mu.Unlock()
			// every subscriber removes every other one; all still get this call
			hub.Unsubscribe(MatchTopic(1), "x")
			hub.Unsubscribe(MatchTopic(1), "y")
			return nil
		}
	}

	hub.Subscribe(MatchTopic(1), "x", record("x"))
	hub.Subscribe(MatchTopic(1), "y", record("y"))

	require.NotPanics(t, func() { hub.Notify(MatchTopic(1), testEnvelope(1)) })
	assert.Equal(t, map[string]int{"x": 1, "y": 1}, calls)
	assert.Equal(t, 0, hub.SubscriberCount(MatchTopic(1)))
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	hub := NewHub()
	hub.Subscribe(UserTopic(3), "h", func(*events.Envelope) error { return nil })

	hub.Unsubscribe(UserTopic(3), "h")
	hub.Unsubscribe(UserTopic(3), "h")
	hub.Unsubscribe(UserTopic(4), "never")

	assert.Equal(t, 0, hub.SubscriberCount(UserTopic(3)))
}

func TestSubscribe_SameHandleReplacesCallback(t *testing.T) {
	hub := NewHub()
	var got string
	hub.Subscribe(MatchTopic(1), "h", func(*events.Envelope) error { got = "old"; return nil })
	hub.Subscribe(MatchTopic(1), "h", func(*events.Envelope) error { got = "new"; return nil })

	assert.Equal(t, 1, hub.Notify(MatchTopic(1), testEnvelope(1)))
	assert.Equal(t, "new", got)
}
