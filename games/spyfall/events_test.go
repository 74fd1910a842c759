/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEnvelope(t *testing.T) {
	room := &Room{Code: "ABCD", Version: 3}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	e := newEvent(room, at, NewVote{Vote: Vote{VoterID: 1, SuspectID: 2, VoterName: "a", SuspectName: "b"}})
	assert.NotEqual(t, uuid.Nil, e.ID)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "new-vote", wire["event"])
	assert.Equal(t, "ABCD", wire["room"])
	assert.EqualValues(t, 3, wire["seq"])
	assert.Contains(t, wire["data"], "vote")

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.True(t, at.Equal(decoded.At))
	assert.Equal(t, e.Payload, decoded.Payload)
}

func TestDecodeEventRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "missing room", data: `{"event":"room-closed","data":{"reason":"idle"}}`},
		{name: "unknown event", data: `{"room":"ABCD","event":"confetti","data":{}}`},
		{name: "missing payload", data: `{"room":"ABCD","event":"room-closed"}`},
		{name: "wrong payload shape", data: `{"room":"ABCD","event":"new-vote","data":{"vote":"yes"}}`},
		{name: "self vote", data: `{"room":"ABCD","event":"new-vote","data":{"vote":{"voterId":1,"suspectId":1}}}`},
		{name: "round without location", data: `{"room":"ABCD","event":"game-started","data":{"roles":{"1":"Spy"},"roundDurationSeconds":60,"roundStartTimestamp":"2026-01-01T00:00:00Z"}}`},
		{name: "guess without guess", data: `{"room":"ABCD","event":"spy-guessed-wrong","data":{"spy":{"id":1}}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tc.data))
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestDecodeEventGameStarted(t *testing.T) {
	e, err := DecodeEvent([]byte(`{
		"id": "6f1c1d1e-8d1a-4c64-9a53-1b1b1b1b1b1b",
		"room": "ABCD",
		"seq": 9,
		"event": "game-started",
		"at": "2026-01-01T00:00:00Z",
		"data": {
			"location": {"id": "hospital", "name": "Hospital", "roles": ["Nurse"]},
			"spy": {"id": 2, "name": "b"},
			"roles": {"1": "Nurse", "2": "Spy"},
			"roundDurationSeconds": 480,
			"roundStartTimestamp": "2026-01-01T00:00:00Z"
		}
	}`))
	require.NoError(t, err)

	started, ok := e.Payload.(GameStarted)
	require.True(t, ok)
	assert.Equal(t, map[int]string{1: "Nurse", 2: "Spy"}, started.Roles)
	assert.Equal(t, 2, started.Spy.ID)
	assert.Equal(t, uint64(9), e.Seq)
}
