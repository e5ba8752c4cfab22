package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/live/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

const (
	anna = int64(1)
	bram = int64(2)

	match7 = int64(7)
	match8 = int64(8)
	teamID = int64(11)
)

type memStore struct {
	mu       sync.Mutex
	matches  map[int64]*models.Match
	playtime map[int64]map[int64]int
	users    map[int64]string
	roster   []models.Player
	actions  []models.Action
}

func newMemStore() *memStore {
	return &memStore{
		matches: map[int64]*models.Match{
			match7: {ID: match7, TeamID: teamID, CurrentPeriod: 1, PeriodMinutes: 25, TotalPeriods: 2},
			match8: {ID: match8, TeamID: teamID, CurrentPeriod: 1, PeriodMinutes: 25, TotalPeriods: 2},
		},
		playtime: map[int64]map[int64]int{},
		users:    map[int64]string{anna: "anna", bram: "bram"},
		roster:   []models.Player{{ID: 5, TeamID: teamID, FirstName: "Femke"}},
	}
}

func (s *memStore) GetMatch(_ context.Context, matchID int64) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("match %d not found", matchID)
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateMatch(_ context.Context, matchID int64, upd models.MatchUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.matches[matchID]
	if upd.Lock != nil {
		m.LockedByUserID = upd.Lock.UserID
		m.LockedAt = upd.Lock.At
	}
	if upd.IsFinalized != nil {
		m.IsFinalized = *upd.IsFinalized
	}
	return nil
}

func (s *memStore) GetPlaytime(_ context.Context, matchID int64) ([]models.PlayerPlaytime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.PlayerPlaytime
	for id, secs := range s.playtime[matchID] {
		rows = append(rows, models.PlayerPlaytime{PlayerID: id, TimePlayed: secs})
	}
	return rows, nil
}

func (s *memStore) SetPlaytime(_ context.Context, matchID, playerID int64, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playtime[matchID] == nil {
		s.playtime[matchID] = make(map[int64]int)
	}
	s.playtime[matchID][playerID] = seconds
	return nil
}

func (s *memStore) ListPlayersForTeam(_ context.Context, _ int64) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster, nil
}

func (s *memStore) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.users[userID]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("user %d not found", userID)
	}
	return &models.User{ID: userID, Username: name}, nil
}

func (s *memStore) CreateAction(_ context.Context, a models.Action) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return int64(len(s.actions)), nil
}

type fixture struct {
	store  *memStore
	ctrl   *session.Controller
	svc    *Service
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	hub := fanout.NewHub()
	ctrl := session.NewController(store, hub, nil, clockwork.NewFakeClock(), session.DefaultConfig())
	svc := NewService(DefaultConfig(), ctrl, hub)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		svc.Shutdown()
		server.Close()
	})
	return &fixture{store: store, ctrl: ctrl, svc: svc, server: server}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/live?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// readUntil reads frames until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func byRequest(id string) func(map[string]any) bool {
	return func(f map[string]any) bool { return f["request_id"] == id }
}

func byType(typ string) func(map[string]any) bool {
	return func(f map[string]any) bool { return f["type"] == typ }
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.ctrl)

	reply := d.Dispatch(context.Background(), match7, anna, Command{Type: "explode", RequestID: "x"})
	assert.Equal(t, ReplyError, reply.Type)
	assert.Equal(t, "x", reply.RequestID)
	assert.Equal(t, errclass.ErrValidation.Code, reply.Code)
	assert.Equal(t, http.StatusBadRequest, httpStatus(reply))
}

func TestDispatch_MissingData(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.ctrl)

	reply := d.Dispatch(context.Background(), match7, anna, Command{Type: CommandSubmitAction})
	assert.Equal(t, ReplyError, reply.Type)
	assert.Equal(t, errclass.ErrValidation.Code, reply.Code)
}

func TestDispatch_LockDenied(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.ctrl)
	ctx := context.Background()

	reply := d.Dispatch(ctx, match7, anna, Command{Type: CommandLock})
	require.Equal(t, ReplyResult, reply.Type)
	assert.Equal(t, "ok", reply.Data.(session.LockResult).Status)

	reply = d.Dispatch(ctx, match7, bram, Command{Type: CommandLock})
	require.Equal(t, ReplyResult, reply.Type)
	res := reply.Data.(session.LockResult)
	assert.Equal(t, "locked", res.Status)
	assert.Equal(t, "anna", res.OwnerName)
}

func TestDispatch_DecideWithdrawnRequestIsInfo(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.ctrl)
	ctx := context.Background()

	require.Equal(t, ReplyResult, d.Dispatch(ctx, match7, anna, Command{Type: CommandLock}).Type)

	reply := d.Dispatch(ctx, match7, anna, Command{
		Type: CommandDecideJoin,
		Data: json.RawMessage(`{"requester_id":2,"accept":true}`),
	})
	assert.Equal(t, ReplyInfo, reply.Type)
	assert.Equal(t, http.StatusOK, httpStatus(reply))
}

func TestDispatch_NonEditorClock(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.ctrl)
	ctx := context.Background()

	require.Equal(t, ReplyResult, d.Dispatch(ctx, match7, anna, Command{Type: CommandLock}).Type)

	reply := d.Dispatch(ctx, match7, bram, Command{Type: CommandStartClock})
	assert.Equal(t, ReplyError, reply.Type)
	assert.Equal(t, errclass.ErrConflict.Code, reply.Code)
	assert.Equal(t, http.StatusConflict, httpStatus(reply))
}

func TestHTTP_State(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/matches/7/state")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, match7, snap.MatchID)
	assert.Equal(t, 25*60, snap.Clock.Remaining)
	assert.Empty(t, snap.Collaborators)
}

func TestHTTP_StateUnknownMatch(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/matches/99/state")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(f.server.URL + "/api/matches/abc/state")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHTTP_Commands(t *testing.T) {
	f := newFixture(t)

	status, body := f.post(t, "/api/matches/7/commands", `{"type":"lock","request_id":"a","user_id":1}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "result", body["type"])
	assert.Equal(t, "ok", body["data"].(map[string]any)["status"])

	status, body = f.post(t, "/api/matches/7/commands", `{"type":"lock","user_id":2}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "locked", body["data"].(map[string]any)["status"])
	assert.Equal(t, "anna", body["data"].(map[string]any)["owner_name"])

	status, body = f.post(t, "/api/matches/7/commands", `{"type":"startClock","user_id":2}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errclass.ErrConflict.Code, body["code"])

	status, _ = f.post(t, "/api/matches/7/commands", `{"type":"lock"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/api/matches/7/commands", `{"type":"applySettings","user_id":1,"data":{"period_minutes":0,"total_periods":2}}`)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(f.server.URL + "/api/matches/7/collaborators")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var collaborators []session.Collaborator
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&collaborators))
	require.Len(t, collaborators, 1)
	assert.Equal(t, anna, collaborators[0].UserID)
	assert.True(t, collaborators[0].IsOwner)
}

func TestWebSocket_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/ws/live?user_id=1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/ws/live?match_id=99&user_id=1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_SessionFlow(t *testing.T) {
	f := newFixture(t)

	annaConn := f.dial(t, "match_id=7&user_id=1&user_name=anna")
	first := readUntil(t, annaConn, byType("result"))
	assert.Equal(t, "state", first["command"])

	send(t, annaConn, Command{Type: CommandLock, RequestID: "lock-1"})
	reply := readUntil(t, annaConn, byRequest("lock-1"))
	assert.Equal(t, "result", reply["type"])
	assert.Equal(t, "ok", reply["data"].(map[string]any)["status"])

	bramConn := f.dial(t, "match_id=7&user_id=2&user_name=bram")
	readUntil(t, bramConn, byType("result"))

	// Join request goes out to the match, the decision to the requester only.
	send(t, bramConn, Command{Type: CommandRequestJoin, RequestID: "join-1"})
	reply = readUntil(t, bramConn, byRequest("join-1"))
	assert.Equal(t, "queued", reply["data"].(map[string]any)["status"])

	pushed := readUntil(t, annaConn, byType("joinRequested"))
	assert.Equal(t, "bram", pushed["data"].(map[string]any)["requester_name"])

	send(t, annaConn, Command{Type: CommandDecideJoin, RequestID: "decide-1", Data: json.RawMessage(`{"requester_id":2,"accept":true}`)})
	readUntil(t, annaConn, byRequest("decide-1"))

	decided := readUntil(t, bramConn, byType("joinDecided"))
	assert.Equal(t, true, decided["data"].(map[string]any)["approved"])
	assert.Equal(t, "anna", decided["data"].(map[string]any)["owner_name"])

	// Collaborators may edit: bram activates a player and anna sees it.
	send(t, bramConn, Command{Type: CommandSetActivePlayer, RequestID: "active-1", Data: json.RawMessage(`{"player_id":5,"active":true}`)})
	reply = readUntil(t, bramConn, byRequest("active-1"))
	assert.Equal(t, "result", reply["type"])

	active := readUntil(t, annaConn, byType("activePlayers"))
	assert.Equal(t, []any{float64(5)}, active["data"].(map[string]any)["player_ids"])

	stats := f.svc.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.ConnectedUsers)
	assert.Equal(t, 2, stats.MatchConnections["7"])
}

func TestWebSocket_LastDisconnectReleases(t *testing.T) {
	f := newFixture(t)

	first := f.dial(t, "match_id=7&user_id=1")
	readUntil(t, first, byType("result"))
	second := f.dial(t, "match_id=7&user_id=1")
	readUntil(t, second, byType("result"))

	send(t, first, Command{Type: CommandLock, RequestID: "lock"})
	readUntil(t, first, byRequest("lock"))

	_ = first.Close()
	require.Eventually(t, func() bool {
		return f.svc.connectionManager.UserConnections(anna) == 1
	}, 3*time.Second, 10*time.Millisecond)

	collaborators, err := f.ctrl.Collaborators(context.Background(), match7)
	require.NoError(t, err)
	require.Len(t, collaborators, 1, "owner keeps the match while another connection is open")

	_ = second.Close()
	require.Eventually(t, func() bool {
		c, err := f.ctrl.Collaborators(context.Background(), match7)
		return err == nil && len(c) == 0
	}, 3*time.Second, 10*time.Millisecond)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Nil(t, f.store.matches[match7].LockedByUserID)
}

func TestWebSocket_LeavingOwnedMatchReleasesIt(t *testing.T) {
	f := newFixture(t)

	onMatch7 := f.dial(t, "match_id=7&user_id=1")
	readUntil(t, onMatch7, byType("result"))
	send(t, onMatch7, Command{Type: CommandLock, RequestID: "lock"})
	readUntil(t, onMatch7, byRequest("lock"))

	onMatch8 := f.dial(t, "match_id=8&user_id=1")
	readUntil(t, onMatch8, byType("result"))
	require.Equal(t, 2, f.svc.connectionManager.UserConnections(anna))

	_ = onMatch7.Close()
	require.Eventually(t, func() bool {
		c, err := f.ctrl.Collaborators(context.Background(), match7)
		return err == nil && len(c) == 0
	}, 3*time.Second, 10*time.Millisecond, "match 7 stays locked after its last connection closed")

	assert.Equal(t, 0, f.svc.connectionManager.MatchUserConnections(match7, anna))
	assert.Equal(t, 1, f.svc.connectionManager.MatchUserConnections(match8, anna))

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Nil(t, f.store.matches[match7].LockedByUserID)
}

func TestWebSocket_LeavingUnownedMatchKeepsOtherLock(t *testing.T) {
	f := newFixture(t)

	onMatch7 := f.dial(t, "match_id=7&user_id=1")
	readUntil(t, onMatch7, byType("result"))
	send(t, onMatch7, Command{Type: CommandLock, RequestID: "lock"})
	readUntil(t, onMatch7, byRequest("lock"))

	onMatch8 := f.dial(t, "match_id=8&user_id=1")
	readUntil(t, onMatch8, byType("result"))

	_ = onMatch8.Close()
	require.Eventually(t, func() bool {
		return f.svc.connectionManager.MatchUserConnections(match8, anna) == 0
	}, 3*time.Second, 10*time.Millisecond)

	collaborators, err := f.ctrl.Collaborators(context.Background(), match7)
	require.NoError(t, err)
	require.Len(t, collaborators, 1)
	assert.Equal(t, anna, collaborators[0].UserID)
}
