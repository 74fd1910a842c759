/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MinPlayers is the smallest roster a round can start with: a spy plus
// two players to question each other.
const MinPlayers = 3

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseInRound  Phase = "in_round"
	PhaseResolved Phase = "resolved"
)

type Winner string

const (
	WinnerSpy     Winner = "spy"
	WinnerPlayers Winner = "players"
)

type Reason string

const (
	ReasonVote    Reason = "vote"
	ReasonGuess   Reason = "guess"
	ReasonTimeout Reason = "timeout"
	ReasonForfeit Reason = "forfeit"
)

// HostPolicy decides who becomes host when the host leaves.
type HostPolicy string

const (
	PromoteFirst  HostPolicy = "first"
	PromoteRandom HostPolicy = "random"
)

func ParseHostPolicy(s string) (HostPolicy, error) {
	switch p := HostPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PromoteFirst, PromoteRandom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown host policy %q (must be %q or %q)", s, PromoteFirst, PromoteRandom)
	}
}

// Player ids are picked by the client and only need to be unique per room.
type Player struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

type Vote struct {
	VoterID     int    `json:"voterId"`
	SuspectID   int    `json:"suspectId"`
	VoterName   string `json:"voterName"`
	SuspectName string `json:"suspectName"`
}

type Outcome struct {
	Winner  Winner  `json:"winner"`
	Reason  Reason  `json:"reason"`
	Suspect *Player `json:"suspect,omitempty"`
	Guess   string  `json:"guess,omitempty"`
	Correct bool    `json:"correct"`
}

// LeaveResult reports what a departure did to the room.
type LeaveResult struct {
	Deleted bool    `json:"deleted"`
	NewHost *Player `json:"newHost"`
}

// Room is the authoritative state of one session. The Registry is the only
// writer; everything else gets a clone.
type Room struct {
	Code           string         `json:"code"`
	Pack           string         `json:"pack"`
	Players        []Player       `json:"players"`
	Phase          Phase          `json:"phase"`
	Location       *Location      `json:"location,omitempty"`
	Spy            *Player        `json:"spy,omitempty"`
	Roles          map[int]string `json:"roles,omitempty"`
	RoundDuration  int            `json:"roundDurationSeconds"`
	RoundStartedAt *time.Time     `json:"roundStartTimestamp,omitempty"`
	Votes          []Vote         `json:"votes"`
	Outcome        *Outcome       `json:"outcome,omitempty"`
	Version        uint64         `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastActive     time.Time      `json:"lastActive"`
}

func newRoom(code, pack string, host Player, now time.Time) *Room {
	host.IsHost = true

	return &Room{
		Code:       code,
		Pack:       pack,
		Players:    []Player{host},
		Phase:      PhaseLobby,
		Votes:      []Vote{},
		CreatedAt:  now,
		LastActive: now,
	}
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}

	c := *r
	c.Players = slices.Clone(r.Players)
	c.Votes = slices.Clone(r.Votes)
	if c.Votes == nil {
		c.Votes = []Vote{}
	}

	if r.Location != nil {
		loc := *r.Location
		loc.Roles = slices.Clone(r.Location.Roles)
		c.Location = &loc
	}
	if r.Spy != nil {
		spy := *r.Spy
		c.Spy = &spy
	}
	if r.RoundStartedAt != nil {
		t := *r.RoundStartedAt
		c.RoundStartedAt = &t
	}
	if r.Roles != nil {
		c.Roles = make(map[int]string, len(r.Roles))
		for k, v := range r.Roles {
			c.Roles[k] = v
		}
	}
	if r.Outcome != nil {
		o := *r.Outcome
		if o.Suspect != nil {
			s := *o.Suspect
			o.Suspect = &s
		}
		c.Outcome = &o
	}

	return &c
}

func (r *Room) Player(id int) (Player, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return Player{}, false
	}

	return r.Players[i], true
}

func (r *Room) Host() (Player, bool) {
	for _, p := range r.Players {
		if p.IsHost {
			return p, true
		}
	}

	return Player{}, false
}

// Deadline is when the current round runs out of time.
func (r *Room) Deadline() (time.Time, bool) {
	if r.RoundStartedAt == nil {
		return time.Time{}, false
	}

	return r.RoundStartedAt.Add(time.Duration(r.RoundDuration) * time.Second), true
}

func (r *Room) Expired(now time.Time) bool {
	deadline, ok := r.Deadline()

	return ok && r.Phase == PhaseInRound && !now.Before(deadline)
}

func (r *Room) indexOf(id int) int {
	return slices.IndexFunc(r.Players, func(p Player) bool { return p.ID == id })
}

func (r *Room) isHost(id int) bool {
	p, ok := r.Player(id)

	return ok && p.IsHost
}

// syncSpy keeps the spy copy in step with roster changes such as a host
// promotion.
func (r *Room) syncSpy() {
	if r.Spy == nil {
		return
	}

	if p, ok := r.Player(r.Spy.ID); ok {
		r.Spy = &p
	}
}

func (r *Room) addPlayer(p Player) ([]Payload, error) {
	if r.indexOf(p.ID) >= 0 {
		return nil, nil
	}

	if r.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: cannot join while %s", ErrInvalidPhase, r.Phase)
	}

	p.IsHost = false
	r.Players = append(r.Players, p)

	return []Payload{PlayerJoined{Player: p, Players: slices.Clone(r.Players)}}, nil
}

func (r *Room) removePlayer(id int, policy HostPolicy, rng Random) (LeaveResult, []Payload, error) {
	i := r.indexOf(id)
	if i < 0 {
		return LeaveResult{}, nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}

	leaving := r.Players[i]
	r.Players = slices.Delete(r.Players, i, i+1)

	if len(r.Players) == 0 {
		return LeaveResult{Deleted: true}, []Payload{RoomClosed{Reason: "empty"}}, nil
	}

	var result LeaveResult
	if leaving.IsHost {
		next := 0
		if policy == PromoteRandom {
			next = rng.IntN(len(r.Players))
		}
		r.Players[next].IsHost = true

		host := r.Players[next]
		result.NewHost = &host
	}
	r.syncSpy()

	events := []Payload{PlayerLeft{
		Player:  leaving,
		Players: slices.Clone(r.Players),
		NewHost: result.NewHost,
	}}

	if r.Phase != PhaseInRound {
		return result, events, nil
	}

	if r.Spy != nil && r.Spy.ID == leaving.ID {
		r.Spy = &leaving
		r.resolve(Outcome{Winner: WinnerPlayers, Reason: ReasonForfeit, Suspect: &leaving, Correct: true})

		return result, append(events, VotingResult{
			Suspect: leaving,
			Correct: true,
			Forfeit: true,
			Tally:   Tally(r.Votes),
		}), nil
	}

	r.Votes = dropVotesFor(r.Votes, leaving.ID)

	return result, append(events, r.evaluateVotes()...), nil
}

// startRound calls pick for the location once the requester may start.
func (r *Room) startRound(requester int, pick func() (Location, error), duration time.Duration, now time.Time, rng Random) ([]Payload, error) {
	if r.Phase != PhaseLobby {
		return nil, ErrAlreadyStarted
	}

	if !r.isHost(requester) {
		return nil, ErrNotHost
	}

	loc, err := pick()
	if err != nil {
		return nil, err
	}

	if len(r.Players) < MinPlayers {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientPlayers, MinPlayers, len(r.Players))
	}

	seconds := int(duration / time.Second)
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: round duration must be positive", ErrInvalidEvent)
	}

	spy := r.Players[rng.IntN(len(r.Players))]
	started := now

	r.Phase = PhaseInRound
	r.Location = &loc
	r.Spy = &spy
	r.Roles = AssignRoles(r.Players, spy.ID, loc, rng)
	r.RoundDuration = seconds
	r.RoundStartedAt = &started
	r.Votes = []Vote{}
	r.Outcome = nil

	return []Payload{GameStarted{
		Location:        loc,
		Spy:             spy,
		Roles:           r.Roles,
		DurationSeconds: seconds,
		StartedAt:       started,
	}}, nil
}

func (r *Room) castVote(voterID, suspectID int) ([]Payload, error) {
	if r.Phase != PhaseInRound {
		return nil, fmt.Errorf("%w: voting is only open during a round", ErrInvalidPhase)
	}

	voter, ok := r.Player(voterID)
	if !ok {
		return nil, fmt.Errorf("%w: voter %d", ErrUnknownPlayer, voterID)
	}

	suspect, ok := r.Player(suspectID)
	if !ok {
		return nil, fmt.Errorf("%w: suspect %d", ErrUnknownPlayer, suspectID)
	}

	if voterID == suspectID {
		return nil, fmt.Errorf("%w: players cannot vote for themselves", ErrInvalidVote)
	}

	vote := Vote{
		VoterID:     voter.ID,
		SuspectID:   suspect.ID,
		VoterName:   voter.Name,
		SuspectName: suspect.Name,
	}

	r.Votes = slices.DeleteFunc(r.Votes, func(v Vote) bool { return v.VoterID == voterID })
	r.Votes = append(r.Votes, vote)

	return append([]Payload{NewVote{Vote: vote}}, r.evaluateVotes()...), nil
}

// evaluateVotes resolves the round if the live votes hold a decisive
// majority.
func (r *Room) evaluateVotes() []Payload {
	suspectID, decisive := Decide(r.Votes, len(r.Players))
	if !decisive {
		return nil
	}

	suspect, ok := r.Player(suspectID)
	if !ok {
		return nil
	}

	correct := r.Spy != nil && suspect.ID == r.Spy.ID
	winner := WinnerSpy
	if correct {
		winner = WinnerPlayers
	}

	tally := Tally(r.Votes)
	r.resolve(Outcome{Winner: winner, Reason: ReasonVote, Suspect: &suspect, Correct: correct})

	return []Payload{VotingResult{Suspect: suspect, Correct: correct, Tally: tally}}
}

func (r *Room) guess(playerID int, locationID string) ([]Payload, error) {
	if r.Phase != PhaseInRound {
		return nil, fmt.Errorf("%w: guesses are only allowed during a round", ErrInvalidPhase)
	}

	if _, ok := r.Player(playerID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, playerID)
	}

	if r.Spy == nil || r.Spy.ID != playerID {
		return nil, ErrNotSpy
	}

	guess := strings.ToLower(strings.TrimSpace(locationID))
	correct := r.Location != nil && guess == r.Location.ID

	outcome := Outcome{Reason: ReasonGuess, Guess: guess, Correct: correct, Winner: WinnerPlayers}
	if correct {
		outcome.Winner = WinnerSpy
	}
	r.resolve(outcome)

	if correct {
		return []Payload{SpyGuessedCorrectly{Spy: *r.Spy, Guess: guess, Location: *r.Location}}, nil
	}

	return []Payload{SpyGuessedWrong{Spy: *r.Spy, Guess: guess, Location: *r.Location}}, nil
}

func (r *Room) timeout(now time.Time) ([]Payload, error) {
	if r.Phase != PhaseInRound {
		return nil, fmt.Errorf("%w: no round is running", ErrInvalidPhase)
	}

	if !r.Expired(now) {
		deadline, _ := r.Deadline()

		return nil, fmt.Errorf("%w: %s left", ErrRoundNotExpired, deadline.Sub(now).Round(time.Second))
	}

	r.resolve(Outcome{Winner: WinnerSpy, Reason: ReasonTimeout})

	return []Payload{TimeEnded{Spy: *r.Spy, Location: *r.Location}}, nil
}

func (r *Room) returnToLobby(requester int) ([]Payload, error) {
	if r.Phase != PhaseResolved {
		return nil, fmt.Errorf("%w: round has not been resolved", ErrInvalidPhase)
	}

	host, ok := r.Host()
	if !ok || host.ID != requester {
		return nil, ErrNotHost
	}

	r.Phase = PhaseLobby
	r.Location = nil
	r.Spy = nil
	r.Roles = nil
	r.RoundDuration = 0
	r.RoundStartedAt = nil
	r.Votes = []Vote{}
	r.Outcome = nil

	return []Payload{ReturnToLobby{Host: host}}, nil
}

func (r *Room) resolve(o Outcome) {
	r.Phase = PhaseResolved
	r.Outcome = &o
}

// dropVotesFor removes every vote cast by or against the given player.
func dropVotesFor(votes []Vote, playerID int) []Vote {
	return slices.DeleteFunc(votes, func(v Vote) bool {
		return v.VoterID == playerID || v.SuspectID == playerID
	})
}
