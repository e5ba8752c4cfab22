package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsEnvelope(t *testing.T) {
	at := time.Date(2024, 4, 13, 15, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	env, err := New(7, EventTypeJoinDecided, JoinDecidedPayload{MatchID: 7, Approved: true, OwnerName: "anna"}, at)
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, int64(7), env.MatchID)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.JSONEq(t, `{"match_id":7,"approved":true,"owner_name":"anna"}`, string(env.Data))

	parsed, err := ParsePayload(env)
	require.NoError(t, err)
	assert.Equal(t, &JoinDecidedPayload{MatchID: 7, Approved: true, OwnerName: "anna"}, parsed)
}

func TestNew_ClockStateNullOwner(t *testing.T) {
	env, err := New(3, EventTypeClockState, ClockStatePayload{Period: 1, Remaining: 1500}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(env.Data), `"owner_id":null`)
}

func TestParsePayload_UnknownType(t *testing.T) {
	_, err := ParsePayload(&Envelope{Type: "bogus", Data: []byte(`{}`)})
	assert.Error(t, err)
}
