/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventPlayerJoined        = "player-joined"
	EventPlayerLeft          = "player-left"
	EventGameStarted         = "game-started"
	EventNewVote             = "new-vote"
	EventVotingResult        = "voting-result"
	EventSpyGuessedCorrectly = "spy-guessed-correctly"
	EventSpyGuessedWrong     = "spy-guessed-wrong"
	EventTimeEnded           = "time-ended"
	EventReturnToLobby       = "return-to-lobby"
	EventRoomClosed          = "room-closed"
)

// Topic is the broadcast topic for a room.
func Topic(code string) string {
	return "room-" + code
}

// Payload is one variant of the event union. Each event name has exactly one
// payload type.
type Payload interface {
	EventName() string
	validate() error
}

type PlayerJoined struct {
	Player  Player   `json:"player"`
	Players []Player `json:"players"`
}

type PlayerLeft struct {
	Player  Player   `json:"player"`
	Players []Player `json:"players"`
	NewHost *Player  `json:"newHost,omitempty"`
}

type GameStarted struct {
	Location        Location       `json:"location"`
	Spy             Player         `json:"spy"`
	Roles           map[int]string `json:"roles"`
	DurationSeconds int            `json:"roundDurationSeconds"`
	StartedAt       time.Time      `json:"roundStartTimestamp"`
}

type NewVote struct {
	Vote Vote `json:"vote"`
}

type VotingResult struct {
	Suspect Player       `json:"suspect"`
	Correct bool         `json:"correct"`
	Forfeit bool         `json:"forfeit,omitempty"`
	Tally   []TallyEntry `json:"tally"`
}

type SpyGuessedCorrectly struct {
	Spy      Player   `json:"spy"`
	Guess    string   `json:"guess"`
	Location Location `json:"location"`
}

type SpyGuessedWrong struct {
	Spy      Player   `json:"spy"`
	Guess    string   `json:"guess"`
	Location Location `json:"location"`
}

type TimeEnded struct {
	Spy      Player   `json:"spy"`
	Location Location `json:"location"`
}

type ReturnToLobby struct {
	Host Player `json:"host"`
}

type RoomClosed struct {
	Reason string `json:"reason"`
}

func (PlayerJoined) EventName() string        { return EventPlayerJoined }
func (PlayerLeft) EventName() string          { return EventPlayerLeft }
func (GameStarted) EventName() string         { return EventGameStarted }
func (NewVote) EventName() string             { return EventNewVote }
func (VotingResult) EventName() string        { return EventVotingResult }
func (SpyGuessedCorrectly) EventName() string { return EventSpyGuessedCorrectly }
func (SpyGuessedWrong) EventName() string     { return EventSpyGuessedWrong }
func (TimeEnded) EventName() string           { return EventTimeEnded }
func (ReturnToLobby) EventName() string       { return EventReturnToLobby }
func (RoomClosed) EventName() string          { return EventRoomClosed }

func (p PlayerJoined) validate() error {
	if len(p.Players) == 0 {
		return errors.New("empty roster")
	}

	return nil
}

func (p PlayerLeft) validate() error { return nil }

func (p GameStarted) validate() error {
	switch {
	case p.Location.ID == "":
		return errors.New("missing location")
	case len(p.Roles) == 0:
		return errors.New("missing roles")
	case p.DurationSeconds <= 0:
		return errors.New("round duration must be positive")
	case p.StartedAt.IsZero():
		return errors.New("missing start time")
	}

	return nil
}

func (p NewVote) validate() error {
	if p.Vote.VoterID == p.Vote.SuspectID {
		return errors.New("self vote")
	}

	return nil
}

func (p VotingResult) validate() error { return nil }

func (p SpyGuessedCorrectly) validate() error {
	if p.Guess == "" {
		return errors.New("missing guess")
	}

	return nil
}

func (p SpyGuessedWrong) validate() error {
	if p.Guess == "" {
		return errors.New("missing guess")
	}

	return nil
}

func (p TimeEnded) validate() error { return nil }

func (p ReturnToLobby) validate() error { return nil }

func (p RoomClosed) validate() error { return nil }

func newPayload(name string) (Payload, bool) {
	switch name {
	case EventPlayerJoined:
		return &PlayerJoined{}, true
	case EventPlayerLeft:
		return &PlayerLeft{}, true
	case EventGameStarted:
		return &GameStarted{}, true
	case EventNewVote:
		return &NewVote{}, true
	case EventVotingResult:
		return &VotingResult{}, true
	case EventSpyGuessedCorrectly:
		return &SpyGuessedCorrectly{}, true
	case EventSpyGuessedWrong:
		return &SpyGuessedWrong{}, true
	case EventTimeEnded:
		return &TimeEnded{}, true
	case EventReturnToLobby:
		return &ReturnToLobby{}, true
	case EventRoomClosed:
		return &RoomClosed{}, true
	default:
		return nil, false
	}
}

// Event is the envelope every broadcast travels in. Seq is the room version
// after the event was applied, so subscribers can spot gaps.
type Event struct {
	ID      uuid.UUID
	Room    string
	Seq     uint64
	Name    string
	At      time.Time
	Payload Payload
}

type wireEvent struct {
	ID   uuid.UUID       `json:"id"`
	Room string          `json:"room"`
	Seq  uint64          `json:"seq"`
	Name string          `json:"event"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

func newEvent(room *Room, at time.Time, p Payload) Event {
	return Event{
		ID:      uuid.New(),
		Room:    room.Code,
		Seq:     room.Version,
		Name:    p.EventName(),
		At:      at,
		Payload: p,
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: %q has no payload", ErrInvalidEvent, e.Name)
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireEvent{
		ID:   e.ID,
		Room: e.Room,
		Seq:  e.Seq,
		Name: e.Payload.EventName(),
		At:   e.At,
		Data: data,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeEvent(data)
	if err != nil {
		return err
	}

	*e = decoded

	return nil
}

// DecodeEvent parses an envelope and checks that its payload matches the
// shape its name promises.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if w.Room == "" {
		return Event{}, fmt.Errorf("%w: missing room", ErrInvalidEvent)
	}

	p, err := decodePayload(w.Name, w.Data)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:      w.ID,
		Room:    w.Room,
		Seq:     w.Seq,
		Name:    w.Name,
		At:      w.At,
		Payload: p,
	}, nil
}

func decodePayload(name string, data json.RawMessage) (Payload, error) {
	p, ok := newPayload(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, name)
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: %q has no payload", ErrInvalidEvent, name)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEvent, name, err)
	}

	// Handlers switch on value types, not pointers.
	v := deref(p)

	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEvent, name, err)
	}

	return v, nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *PlayerJoined:
		return *v
	case *PlayerLeft:
		return *v
	case *GameStarted:
		return *v
	case *NewVote:
		return *v
	case *VotingResult:
		return *v
	case *SpyGuessedCorrectly:
		return *v
	case *SpyGuessedWrong:
		return *v
	case *TimeEnded:
		return *v
	case *ReturnToLobby:
		return *v
	case *RoomClosed:
		return *v
	default:
		return p
	}
}
