/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Belief is one client's view of a room, built from a snapshot and then
// kept current by applying events.
type Belief struct {
	Room    string
	Self    int
	Phase   Phase
	Players []Player
	Votes   []Vote
	Outcome *Outcome

	// Role and Location are what this player was told. The spy gets
	// SpyRole and no location until the round is resolved.
	Role     string
	IsSpy    bool
	Location *Location

	// Spy is only revealed once the round is resolved.
	Spy *Player

	RoundDuration  time.Duration
	RoundStartedAt time.Time

	LastSeq   uint64
	Left      bool
	NeedsSync bool

	round *GameStarted
}

// NewBelief builds a belief from an authoritative snapshot.
func NewBelief(room *Room, self int) Belief {
	b := Belief{
		Room:    room.Code,
		Self:    self,
		Phase:   room.Phase,
		Players: slices.Clone(room.Players),
		Votes:   slices.Clone(room.Votes),
		LastSeq: room.Version,
	}

	if _, ok := room.Player(self); !ok {
		b.Left = true
	}

	if room.Outcome != nil {
		o := *room.Outcome
		b.Outcome = &o
	}

	if room.Phase != PhaseLobby && room.Spy != nil && room.Location != nil && room.RoundStartedAt != nil {
		b = b.startRound(GameStarted{
			Location:        *room.Location,
			Spy:             *room.Spy,
			Roles:           room.Roles,
			DurationSeconds: room.RoundDuration,
			StartedAt:       *room.RoundStartedAt,
		})
	}

	if room.Phase == PhaseResolved {
		b = b.reveal()
	}

	return b
}

func (b Belief) IsHost() bool {
	i := slices.IndexFunc(b.Players, func(p Player) bool { return p.ID == b.Self })

	return i >= 0 && b.Players[i].IsHost
}

// Deadline is when this client thinks the round runs out.
func (b Belief) Deadline() (time.Time, bool) {
	if b.Phase != PhaseInRound || b.RoundStartedAt.IsZero() {
		return time.Time{}, false
	}

	return b.RoundStartedAt.Add(b.RoundDuration), true
}

// Apply folds one event into the belief. It is safe to apply the same event
// twice, and events for other rooms or arriving after this player left are
// ignored.
func (b Belief) Apply(e Event) Belief {
	if e.Room != b.Room || b.Left || e.Payload == nil {
		return b
	}

	if e.Seq != 0 {
		if e.Seq <= b.LastSeq {
			return b
		}

		if e.Seq > b.LastSeq+1 {
			b.NeedsSync = true
		}

		b.LastSeq = e.Seq
	}

	switch p := e.Payload.(type) {
	case PlayerJoined:
		b.Players = slices.Clone(p.Players)
	case PlayerLeft:
		b.Players = slices.Clone(p.Players)
		if p.Player.ID == b.Self {
			b.Left = true

			return b
		}
		b.Votes = dropVotesFor(slices.Clone(b.Votes), p.Player.ID)
	case GameStarted:
		b = b.startRound(p)
	case NewVote:
		votes := slices.DeleteFunc(slices.Clone(b.Votes), func(v Vote) bool { return v.VoterID == p.Vote.VoterID })
		b.Votes = append(votes, p.Vote)
	case VotingResult:
		suspect := p.Suspect
		o := Outcome{Reason: ReasonVote, Suspect: &suspect, Correct: p.Correct, Winner: WinnerSpy}
		if p.Correct {
			o.Winner = WinnerPlayers
		}
		if p.Forfeit {
			o.Reason = ReasonForfeit
		}
		b = b.resolve(o)
	case SpyGuessedCorrectly:
		b = b.resolve(Outcome{Winner: WinnerSpy, Reason: ReasonGuess, Guess: p.Guess, Correct: true})
	case SpyGuessedWrong:
		b = b.resolve(Outcome{Winner: WinnerPlayers, Reason: ReasonGuess, Guess: p.Guess})
	case TimeEnded:
		b = b.resolve(Outcome{Winner: WinnerSpy, Reason: ReasonTimeout})
	case ReturnToLobby:
		b.Phase = PhaseLobby
		b.Votes = nil
		b.Outcome = nil
		b.Role = ""
		b.IsSpy = false
		b.Location = nil
		b.Spy = nil
		b.RoundDuration = 0
		b.RoundStartedAt = time.Time{}
		b.round = nil
	case RoomClosed:
		b.Left = true
	}

	return b
}

func (b Belief) startRound(p GameStarted) Belief {
	b.Phase = PhaseInRound
	b.Votes = nil
	b.Outcome = nil
	b.Spy = nil
	b.round = &p
	b.RoundDuration = time.Duration(p.DurationSeconds) * time.Second
	b.RoundStartedAt = p.StartedAt
	b.Role = p.Roles[b.Self]
	b.IsSpy = p.Spy.ID == b.Self

	if b.IsSpy {
		b.Location = nil
	} else {
		loc := p.Location
		b.Location = &loc
	}

	return b
}

func (b Belief) resolve(o Outcome) Belief {
	if b.Phase == PhaseResolved && b.Outcome != nil {
		return b
	}

	b.Phase = PhaseResolved
	b.Outcome = &o

	return b.reveal()
}

func (b Belief) reveal() Belief {
	if b.round == nil {
		return b
	}

	spy := b.round.Spy
	loc := b.round.Location
	b.Spy = &spy
	b.Location = &loc

	return b
}

// Won reports whether this player is on the winning side of a resolved
// round.
func (b Belief) Won() bool {
	if b.Outcome == nil {
		return false
	}

	if b.IsSpy {
		return b.Outcome.Winner == WinnerSpy
	}

	return b.Outcome.Winner == WinnerPlayers
}

// Service is the part of the Registry a Controller talks to.
type Service interface {
	GetRoom(ctx context.Context, code string) (*Room, error)
	Subscribe(ctx context.Context, code string) (Subscription, error)
	AddPlayer(ctx context.Context, code string, p Player) (*Room, error)
	RemovePlayer(ctx context.Context, code string, playerID int) (LeaveResult, error)
	StartRound(ctx context.Context, code string, requesterID int, locationID string, duration time.Duration) (*Room, error)
	CastVote(ctx context.Context, code string, voterID, suspectID int) (*Room, error)
	GuessLocation(ctx context.Context, code string, playerID int, locationID string) (*Room, error)
	ReportTimeout(ctx context.Context, code string, reporterID int) (*Room, error)
	ReturnToLobby(ctx context.Context, code string, requesterID int) (*Room, error)
}

// Controller drives one player's session. Its belief only changes through
// snapshots and events, never through its own requests.
type Controller struct {
	svc  Service
	code string
	self Player
	log  zerolog.Logger

	reportAny  bool
	reportWait time.Duration

	mu      sync.Mutex
	belief  Belief
	sub     Subscription
	changed chan struct{}
}

type ControllerOption func(*Controller)

// ReportAnyClient lets a non-host controller report the timeout once grace
// has passed after the deadline, for when the host has gone quiet.
func ReportAnyClient(grace time.Duration) ControllerOption {
	return func(c *Controller) {
		c.reportAny = true
		c.reportWait = grace
	}
}

func WithControllerLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

func NewController(svc Service, code string, self Player, opts ...ControllerOption) *Controller {
	c := &Controller{
		svc:     svc,
		code:    code,
		self:    self,
		log:     zerolog.Nop(),
		changed: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.belief = Belief{Room: code, Self: self.ID}

	return c
}

// Join subscribes to the room and then adds this player to it.
func (c *Controller) Join(ctx context.Context) error {
	return c.attach(ctx, func() (*Room, error) {
		return c.svc.AddPlayer(ctx, c.code, c.self)
	})
}

// Attach subscribes to a room this player is already in, such as one it
// just created, and then loads its state.
func (c *Controller) Attach(ctx context.Context) error {
	return c.attach(ctx, func() (*Room, error) {
		return c.svc.GetRoom(ctx, c.code)
	})
}

func (c *Controller) attach(ctx context.Context, snapshot func() (*Room, error)) error {
	sub, err := c.svc.Subscribe(ctx, c.code)
	if err != nil {
		return err
	}

	room, err := snapshot()
	if err != nil {
		_ = sub.Close()

		return err
	}

	c.mu.Lock()
	if c.sub != nil {
		_ = c.sub.Close()
	}
	c.sub = sub
	c.setLocked(NewBelief(room, c.self.ID))
	c.mu.Unlock()

	return nil
}

// Run applies events until ctx ends or the player leaves the room. A
// dropped subscription or a sequence gap triggers a resync.
func (c *Controller) Run(ctx context.Context) error {
	for {
		c.mu.Lock()
		sub := c.sub
		c.mu.Unlock()

		if sub == nil {
			return errors.New("controller is not attached")
		}

		select {
		case <-ctx.Done():
			_ = sub.Close()

			return ctx.Err()
		case e, ok := <-sub.Events():
			if !ok {
				if c.Belief().Left {
					return nil
				}

				c.log.Debug().Str("room", c.code).Int("player", c.self.ID).Msg("subscription dropped, resyncing")

				if err := c.reattach(ctx); err != nil {
					return err
				}

				continue
			}

			c.mu.Lock()
			b := c.belief.Apply(e)
			c.setLocked(b)
			c.mu.Unlock()

			if b.Left {
				_ = sub.Close()

				return nil
			}

			if b.NeedsSync {
				if err := c.resync(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Controller) reattach(ctx context.Context) error {
	err := c.Attach(ctx)
	if errors.Is(err, ErrRoomNotFound) {
		c.markLeft()

		return nil
	}

	return err
}

func (c *Controller) resync(ctx context.Context) error {
	room, err := c.svc.GetRoom(ctx, c.code)
	if errors.Is(err, ErrRoomNotFound) {
		c.markLeft()

		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A snapshot older than what was already applied is ignored.
	if room.Version >= c.belief.LastSeq {
		c.setLocked(NewBelief(room, c.self.ID))
	}

	return nil
}

func (c *Controller) markLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.belief
	b.Left = true
	c.setLocked(b)
}

func (c *Controller) setLocked(b Belief) {
	c.belief = b
	close(c.changed)
	c.changed = make(chan struct{})
}

// Belief returns the current view of the room.
func (c *Controller) Belief() Belief {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.belief
}

// WaitFor blocks until the belief satisfies cond or ctx ends.
func (c *Controller) WaitFor(ctx context.Context, cond func(Belief) bool) (Belief, error) {
	for {
		c.mu.Lock()
		b, changed := c.belief, c.changed
		c.mu.Unlock()

		if cond(b) {
			return b, nil
		}

		select {
		case <-ctx.Done():
			return b, ctx.Err()
		case <-changed:
		}
	}
}

func (c *Controller) Start(ctx context.Context, locationID string, duration time.Duration) error {
	_, err := c.svc.StartRound(ctx, c.code, c.self.ID, locationID, duration)

	return err
}

func (c *Controller) Vote(ctx context.Context, suspectID int) error {
	_, err := c.svc.CastVote(ctx, c.code, c.self.ID, suspectID)

	return err
}

func (c *Controller) Guess(ctx context.Context, locationID string) error {
	_, err := c.svc.GuessLocation(ctx, c.code, c.self.ID, locationID)

	return err
}

func (c *Controller) ReturnToLobby(ctx context.Context) error {
	_, err := c.svc.ReturnToLobby(ctx, c.code, c.self.ID)

	return err
}

// Leave removes this player from the room. Events that arrive afterwards
// are ignored.
func (c *Controller) Leave(ctx context.Context) error {
	if _, err := c.svc.RemovePlayer(ctx, c.code, c.self.ID); err != nil && !errors.Is(err, ErrRoomNotFound) {
		return err
	}

	c.markLeft()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return c.sub.Close()
	}

	return nil
}

// Tick reports the round timeout when it is this client's turn to: the host
// as soon as the deadline passes, anyone else only with ReportAnyClient and
// after the grace period. It reports whether this call resolved the round.
func (c *Controller) Tick(ctx context.Context, now time.Time) (bool, error) {
	b := c.Belief()
	if b.Left {
		return false, nil
	}

	deadline, ok := b.Deadline()
	if !ok || now.Before(deadline) {
		return false, nil
	}

	if !b.IsHost() && (!c.reportAny || now.Before(deadline.Add(c.reportWait))) {
		return false, nil
	}

	_, err := c.svc.ReportTimeout(ctx, c.code, c.self.ID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrRoundNotExpired):
		// Someone else got there first, or this clock runs ahead of the
		// server's.
		return false, nil
	default:
		return false, err
	}
}
