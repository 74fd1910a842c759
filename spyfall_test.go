/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/spyfall/games/spyfall"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResult struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error"`
	RoomCode string          `json:"roomCode"`
	State    *spyfall.Room   `json:"state"`
	Deleted  bool            `json:"deleted"`
	NewHost  *spyfall.Player `json:"newHost"`
	Packs    []packListing   `json:"packs"`
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *httptest.Server {
	t.Helper()

	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 64)

	mux, closeGame, err := newRouter(ctx, cfg, errs)
	require.NoError(t, err)

	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		closeGame()
	})

	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) (int, apiResult) {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var res apiResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	return resp.StatusCode, res
}

func player(id int) spyfall.Player {
	return spyfall.Player{ID: id, Name: "player " + strconv.Itoa(id)}
}

// openRoom creates a room hosted by player 1 and joins players 2..n.
func openRoom(t *testing.T, srv *httptest.Server, n int) string {
	t.Helper()

	status, res := call(t, srv, http.MethodPost, "/spyfall/api/rooms", map[string]any{"hostPlayer": player(1)})
	require.Equal(t, http.StatusCreated, status, res.Error)
	require.True(t, res.Success)
	require.Len(t, res.RoomCode, spyfall.DefaultCodeLength)

	for id := 2; id <= n; id++ {
		st, joined := call(t, srv, http.MethodPut, "/spyfall/api/rooms/"+res.RoomCode+"/players", map[string]any{"player": player(id)})
		require.Equal(t, http.StatusOK, st, joined.Error)
	}

	return res.RoomCode
}

func TestAPIRound(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 4)
	base := "/spyfall/api/rooms/" + code

	status, res := call(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, res.State.Players, 4)
	assert.Equal(t, spyfall.PhaseLobby, res.State.Phase)

	status, res = call(t, srv, http.MethodPost, base+"/start", map[string]any{"playerId": 2})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotHost", res.Error)

	status, res = call(t, srv, http.MethodPost, base+"/start", map[string]any{"playerId": 1, "locationId": "hospital", "roundDurationMinutes": 3})
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.Equal(t, spyfall.PhaseInRound, res.State.Phase)
	assert.Equal(t, "hospital", res.State.Location.ID)
	assert.Equal(t, 180, res.State.RoundDuration)
	require.NotNil(t, res.State.Spy)

	spy := *res.State.Spy

	status, res = call(t, srv, http.MethodPost, base+"/start", map[string]any{"playerId": 1})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadyStarted", res.Error)

	var agents []int
	for id := 1; id <= 4; id++ {
		if id != spy.ID {
			agents = append(agents, id)
		}
	}

	status, res = call(t, srv, http.MethodPost, base+"/timeout", map[string]any{"playerId": agents[0]})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RoundNotExpired", res.Error)

	status, res = call(t, srv, http.MethodPost, base+"/guess", map[string]any{"playerId": agents[0], "locationId": "bank"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotSpy", res.Error)

	for _, voter := range agents[:2] {
		status, res = call(t, srv, http.MethodPost, base+"/votes", map[string]any{"voterId": voter, "suspectId": spy.ID})
		require.Equal(t, http.StatusOK, status, res.Error)
	}

	require.Equal(t, spyfall.PhaseResolved, res.State.Phase)
	require.NotNil(t, res.State.Outcome)
	assert.Equal(t, spyfall.WinnerPlayers, res.State.Outcome.Winner)
	assert.Equal(t, spyfall.ReasonVote, res.State.Outcome.Reason)

	status, res = call(t, srv, http.MethodPost, base+"/lobby", map[string]any{"playerId": agents[2]})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotHost", res.Error)

	status, res = call(t, srv, http.MethodPost, base+"/lobby", map[string]any{"playerId": 1})
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.Equal(t, spyfall.PhaseLobby, res.State.Phase)
	assert.Empty(t, res.State.Votes)
}

func TestAPIErrors(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 2)
	base := "/spyfall/api/rooms/" + code

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown room", http.MethodGet, "/spyfall/api/rooms/ZZZZZZ", nil, http.StatusNotFound, "RoomNotFound"},
		{"malformed code", http.MethodGet, "/spyfall/api/rooms/no!", nil, http.StatusNotFound, "RoomNotFound"},
		{"malformed body", http.MethodPost, "/spyfall/api/rooms", "{", http.StatusBadRequest, "BadRequest"},
		{"no host player", http.MethodPost, "/spyfall/api/rooms", map[string]any{"pack": "standard"}, http.StatusBadRequest, "BadRequest"},
		{"nameless host", http.MethodPost, "/spyfall/api/rooms", map[string]any{"hostPlayer": map[string]any{"id": 1}}, http.StatusBadRequest, "InvalidPlayer"},
		{"unknown pack", http.MethodPost, "/spyfall/api/rooms", map[string]any{"hostPlayer": player(1), "pack": "moon"}, http.StatusBadRequest, "UnknownLocation"},
		{"too few players", http.MethodPost, base + "/start", map[string]any{"playerId": 1}, http.StatusUnprocessableEntity, "InsufficientPlayers"},
		{"unknown location", http.MethodPost, base + "/start", map[string]any{"playerId": 1, "locationId": "atlantis"}, http.StatusBadRequest, "UnknownLocation"},
		{"negative duration", http.MethodPost, base + "/start", map[string]any{"playerId": 1, "roundDurationMinutes": -1}, http.StatusBadRequest, "BadRequest"},
		{"vote in lobby", http.MethodPost, base + "/votes", map[string]any{"voterId": 1, "suspectId": 2}, http.StatusConflict, "InvalidPhase"},
		{"vote without suspect", http.MethodPost, base + "/votes", map[string]any{"voterId": 1}, http.StatusBadRequest, "BadRequest"},
		{"lobby without player", http.MethodPost, base + "/lobby", map[string]any{}, http.StatusBadRequest, "BadRequest"},
		{"bad player id", http.MethodDelete, base + "/players/abc", nil, http.StatusBadRequest, "BadRequest"},
		{"unknown leaver", http.MethodDelete, base + "/players/99", nil, http.StatusBadRequest, "UnknownPlayer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, res := call(t, srv, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, status)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.Error)
		})
	}
}

func TestAPILeave(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 2)
	base := "/spyfall/api/rooms/" + code

	status, res := call(t, srv, http.MethodDelete, base+"/players/1", nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.False(t, res.Deleted)
	require.NotNil(t, res.NewHost)
	assert.Equal(t, 2, res.NewHost.ID)

	status, res = call(t, srv, http.MethodDelete, base+"/players/2", nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.True(t, res.Deleted)

	status, _ = call(t, srv, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPINotify(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 3)

	status, res := call(t, srv, http.MethodPost, "/spyfall/api/rooms/"+code+"/start", map[string]any{"playerId": 1})
	require.Equal(t, http.StatusOK, status, res.Error)

	status, res = call(t, srv, http.MethodPost, "/spyfall/api/notify", map[string]any{
		"roomCode": strings.ToLower(code),
		"event":    spyfall.EventNewVote,
		"data":     map[string]any{"voterId": 1, "suspectId": 2},
	})
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.True(t, res.Success)

	_, res = call(t, srv, http.MethodGet, "/spyfall/api/rooms/"+code, nil)
	require.Len(t, res.State.Votes, 1)
	assert.Equal(t, 2, res.State.Votes[0].SuspectID)

	status, res = call(t, srv, http.MethodPost, "/spyfall/api/notify", map[string]any{
		"roomCode": code,
		"event":    spyfall.EventGameStarted,
		"data":     map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidEvent", res.Error)

	status, res = call(t, srv, http.MethodPost, "/spyfall/api/notify", map[string]any{"roomCode": code})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BadRequest", res.Error)
}

func TestAPILocations(t *testing.T) {
	srv := newTestServer(t)

	status, res := call(t, srv, http.MethodGet, "/spyfall/api/locations", nil)
	require.Equal(t, http.StatusOK, status)

	var names []string
	for _, p := range res.Packs {
		names = append(names, p.Name)
		assert.NotEmpty(t, p.Locations)
	}
	assert.Contains(t, names, spyfall.DefaultPack)

	status, res = call(t, srv, http.MethodGet, "/spyfall/api/locations?pack="+spyfall.DefaultPack, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, res.Packs, 1)

	status, res = call(t, srv, http.MethodGet, "/spyfall/api/locations?pack=moon", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UnknownLocation", res.Error)
}

func TestQRCode(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 1)

	resp, err := srv.Client().Get(srv.URL + "/spyfall/rooms/" + code + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	gone, err := srv.Client().Get(srv.URL + "/spyfall/rooms/ZZZZZZ/qr")
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestShellRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "Ok"},
		{"/version", "spyfall v" + releaseVersion},
		{"/robots.txt", "GPTBot"},
		{"/", "Spyfall"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := srv.Client().Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), tt.want)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}
}

func dial(t *testing.T, srv *httptest.Server, code, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/spyfall/rooms/" + code + "/ws" + query

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func field(t *testing.T, msg map[string]json.RawMessage, key string) string {
	t.Helper()

	var s string
	require.NoError(t, json.Unmarshal(msg[key], &s), "field %q in %v", key, msg)

	return s
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 2)

	conn := dial(t, srv, code, "?playerId=2")

	first := readMessage(t, conn)
	assert.Equal(t, "state", field(t, first, "type"))

	var state spyfall.Room
	require.NoError(t, json.Unmarshal(first["state"], &state))
	assert.Len(t, state.Players, 2)

	status, res := call(t, srv, http.MethodPut, "/spyfall/api/rooms/"+code+"/players", map[string]any{"player": player(3)})
	require.Equal(t, http.StatusOK, status, res.Error)

	joined := readMessage(t, conn)
	assert.Equal(t, spyfall.EventPlayerJoined, field(t, joined, "event"))
	assert.Equal(t, code, field(t, joined, "room"))

	e, err := spyfall.DecodeEvent(mustMarshal(t, joined))
	require.NoError(t, err)
	assert.Equal(t, res.State.Version, e.Seq)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "vote", "suspectId": 1}))

	result := readMessage(t, conn)
	assert.Equal(t, "result", field(t, result, "type"))
	assert.Equal(t, "vote", field(t, result, "action"))
	assert.Equal(t, "InvalidPhase", field(t, result, "error"))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "leave"}))

	// The event and the result race to the write pump.
	got := map[string]bool{}
	for range 2 {
		msg := readMessage(t, conn)
		if _, ok := msg["event"]; ok {
			assert.Equal(t, spyfall.EventPlayerLeft, field(t, msg, "event"))
			got["event"] = true

			continue
		}

		assert.Equal(t, "leave", field(t, msg, "action"))
		assert.JSONEq(t, "true", string(msg["success"]))
		got["result"] = true
	}
	assert.Len(t, got, 2)

	_, res = call(t, srv, http.MethodGet, "/spyfall/api/rooms/"+code, nil)
	assert.Len(t, res.State.Players, 2)
}

func TestWebSocketSpectator(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 3)

	conn := dial(t, srv, code, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "timeout"}))

	result := readMessage(t, conn)
	assert.Equal(t, "BadRequest", field(t, result, "error"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	result = readMessage(t, conn)
	assert.Equal(t, "BadRequest", field(t, result, "error"))
}

func TestWebSocketRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.wsRate = 0.001
		c.wsBurst = 1
	})
	code := openRoom(t, srv, 3)

	conn := dial(t, srv, code, "?playerId=1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "timeout"}))
	assert.Equal(t, "InvalidPhase", field(t, readMessage(t, conn), "error"))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "timeout"}))
	assert.Equal(t, "RateLimited", field(t, readMessage(t, conn), "error"))
}

func TestWebSocketDisconnectRemovesPlayer(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.playerTimeout = 50 * time.Millisecond })
	code := openRoom(t, srv, 3)
	base := "/spyfall/api/rooms/" + code

	conn := dial(t, srv, code, "?playerId=3")
	readMessage(t, conn)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, res := call(t, srv, http.MethodGet, base, nil)

		return res.State != nil && len(res.State.Players) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocketReconnectKeepsPlayer(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.playerTimeout = 100 * time.Millisecond })
	code := openRoom(t, srv, 3)
	base := "/spyfall/api/rooms/" + code

	first := dial(t, srv, code, "?playerId=2")
	readMessage(t, first)

	second := dial(t, srv, code, "?playerId=2")
	readMessage(t, second)

	require.NoError(t, first.Close())

	time.Sleep(300 * time.Millisecond)

	_, res := call(t, srv, http.MethodGet, base, nil)
	require.NotNil(t, res.State)
	assert.Len(t, res.State.Players, 3)
}

func TestWebSocketRoomClosed(t *testing.T) {
	srv := newTestServer(t)
	code := openRoom(t, srv, 1)

	conn := dial(t, srv, code, "?playerId=1")
	readMessage(t, conn)

	status, res := call(t, srv, http.MethodDelete, "/spyfall/api/rooms/"+code+"/players/1", nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	require.True(t, res.Deleted)

	closed := readMessage(t, conn)
	assert.Equal(t, spyfall.EventRoomClosed, field(t, closed, "event"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketUnknownRoom(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/spyfall/rooms/ZZZZZZ/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}
