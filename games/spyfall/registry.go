/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRoundDuration = 8 * time.Minute

	lockStripes = 64
)

// Registry owns every room. All mutations of one room run one at a time, and
// the events they cause are published in that same order.
type Registry struct {
	store   Store
	bus     Broadcaster
	catalog ContentProvider
	rng     Random
	now     func() time.Time
	log     zerolog.Logger

	policy        HostPolicy
	codeLength    int
	defaultPack   string
	roundDuration time.Duration

	createMu sync.Mutex
	locks    [lockStripes]sync.Mutex
}

type Option func(*Registry)

func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(r *Registry) { r.bus = b }
}

func WithCatalog(c ContentProvider) Option {
	return func(r *Registry) { r.catalog = c }
}

// WithRand replaces the random source. It is wrapped in a mutex, so a plain
// *rand.Rand is fine.
func WithRand(rng Random) Option {
	return func(r *Registry) { r.rng = &lockedRandom{rng: rng} }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithHostPolicy(p HostPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

func WithCodeLength(n int) Option {
	return func(r *Registry) { r.codeLength = n }
}

func WithDefaultPack(pack string) Option {
	return func(r *Registry) { r.defaultPack = pack }
}

func WithRoundDuration(d time.Duration) Option {
	return func(r *Registry) { r.roundDuration = d }
}

// NewRegistry defaults to an in-memory store, an in-process Hub and the
// built-in location catalog.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		rng:           DefaultRandom,
		now:           time.Now,
		log:           zerolog.Nop(),
		policy:        PromoteFirst,
		codeLength:    DefaultCodeLength,
		defaultPack:   DefaultPack,
		roundDuration: DefaultRoundDuration,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if r.bus == nil {
		r.bus = NewHub(DefaultSubscriberBuffer)
	}
	if r.catalog == nil {
		r.catalog = DefaultCatalog()
	}

	switch {
	case r.codeLength < MinCodeLength || r.codeLength > MaxCodeLength:
		return nil, fmt.Errorf("room code length must be between %d and %d", MinCodeLength, MaxCodeLength)
	case r.policy != PromoteFirst && r.policy != PromoteRandom:
		return nil, fmt.Errorf("unknown host policy %q", r.policy)
	case !r.catalog.HasPack(r.defaultPack):
		return nil, fmt.Errorf("%w: default pack %q", ErrUnknownLocation, r.defaultPack)
	case r.roundDuration <= 0:
		return nil, errors.New("round duration must be positive")
	}

	return r, nil
}

func (r *Registry) Catalog() ContentProvider {
	return r.catalog
}

func (r *Registry) lock(code string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))

	return &r.locks[h.Sum32()%lockStripes]
}

func validatePlayer(p Player) (Player, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalidPlayer)
	}

	return p, nil
}

// CreateRoom opens a room in the lobby with host as its only player.
func (r *Registry) CreateRoom(ctx context.Context, host Player, pack string) (*Room, error) {
	host, err := validatePlayer(host)
	if err != nil {
		return nil, err
	}

	pack = strings.ToLower(strings.TrimSpace(pack))
	if pack == "" {
		pack = r.defaultPack
	}
	if !r.catalog.HasPack(pack) {
		return nil, fmt.Errorf("%w: pack %q", ErrUnknownLocation, pack)
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	code, err := generateCode(ctx, r.store, r.rng, r.codeLength)
	if err != nil {
		return nil, err
	}

	room := newRoom(code, pack, host, r.now())
	if err := r.store.Set(ctx, room); err != nil {
		return nil, err
	}

	r.log.Debug().Str("room", code).Int("host", host.ID).Str("pack", pack).Msg("created room")

	return room, nil
}

func (r *Registry) GetRoom(ctx context.Context, code string) (*Room, error) {
	code, ok := NormalizeCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}

	return r.store.Get(ctx, code)
}

// Subscribe follows a room's events. Subscribe before calling GetRoom: the
// subscription has no backlog.
func (r *Registry) Subscribe(ctx context.Context, code string) (Subscription, error) {
	code, _ = NormalizeCode(code)

	return r.bus.Subscribe(ctx, Topic(code))
}

// AddPlayer is idempotent on player id: joining twice returns the room as it
// is without publishing anything.
func (r *Registry) AddPlayer(ctx context.Context, code string, p Player) (*Room, error) {
	p, err := validatePlayer(p)
	if err != nil {
		return nil, err
	}

	return r.mutate(ctx, code, func(room *Room, _ time.Time) ([]Payload, error) {
		return room.addPlayer(p)
	})
}

// RemovePlayer deletes the room once its last player has left.
func (r *Registry) RemovePlayer(ctx context.Context, code string, playerID int) (LeaveResult, error) {
	var result LeaveResult

	_, err := r.mutate(ctx, code, func(room *Room, _ time.Time) ([]Payload, error) {
		res, events, err := room.removePlayer(playerID, r.policy, r.rng)
		result = res

		return events, err
	})

	return result, err
}

// StartRound moves a lobby into a round. locationID may be empty or "random".
// A zero duration uses the registry default.
func (r *Registry) StartRound(ctx context.Context, code string, requesterID int, locationID string, duration time.Duration) (*Room, error) {
	if duration <= 0 {
		duration = r.roundDuration
	}

	return r.mutate(ctx, code, func(room *Room, now time.Time) ([]Payload, error) {
		pick := func() (Location, error) {
			return r.catalog.Resolve(room.Pack, locationID, r.rng)
		}

		return room.startRound(requesterID, pick, duration, now, r.rng)
	})
}

func (r *Registry) CastVote(ctx context.Context, code string, voterID, suspectID int) (*Room, error) {
	return r.mutate(ctx, code, func(room *Room, _ time.Time) ([]Payload, error) {
		return room.castVote(voterID, suspectID)
	})
}

func (r *Registry) GuessLocation(ctx context.Context, code string, playerID int, locationID string) (*Room, error) {
	return r.mutate(ctx, code, func(room *Room, _ time.Time) ([]Payload, error) {
		return room.guess(playerID, locationID)
	})
}

// ReportTimeout may be called by any player in the room. Only the first
// report after the deadline resolves the round; later ones fail with
// ErrInvalidPhase.
func (r *Registry) ReportTimeout(ctx context.Context, code string, reporterID int) (*Room, error) {
	return r.mutate(ctx, code, func(room *Room, now time.Time) ([]Payload, error) {
		if _, ok := room.Player(reporterID); !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, reporterID)
		}

		return room.timeout(now)
	})
}

func (r *Registry) ReturnToLobby(ctx context.Context, code string, requesterID int) (*Room, error) {
	return r.mutate(ctx, code, func(room *Room, _ time.Time) ([]Payload, error) {
		return room.returnToLobby(requesterID)
	})
}

type notifyData struct {
	VoterID   *int    `json:"voterId"`
	SuspectID *int    `json:"suspectId"`
	PlayerID  *int    `json:"playerId"`
	Host      *Player `json:"host"`
}

// Notify accepts the client relay events and turns them into the matching
// operation. Events only the server may author are rejected.
func (r *Registry) Notify(ctx context.Context, code, name string, data json.RawMessage) (*Room, error) {
	var d notifyData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEvent, name, err)
		}
	}

	switch name {
	case EventNewVote:
		if d.VoterID == nil || d.SuspectID == nil {
			return nil, fmt.Errorf("%w: %q needs voterId and suspectId", ErrInvalidEvent, name)
		}

		return r.CastVote(ctx, code, *d.VoterID, *d.SuspectID)
	case EventTimeEnded:
		if d.PlayerID == nil {
			return nil, fmt.Errorf("%w: %q needs playerId", ErrInvalidEvent, name)
		}

		return r.ReportTimeout(ctx, code, *d.PlayerID)
	case EventReturnToLobby:
		switch {
		case d.PlayerID != nil:
			return r.ReturnToLobby(ctx, code, *d.PlayerID)
		case d.Host != nil:
			return r.ReturnToLobby(ctx, code, d.Host.ID)
		default:
			return nil, fmt.Errorf("%w: %q needs playerId", ErrInvalidEvent, name)
		}
	default:
		if _, ok := newPayload(name); ok {
			return nil, fmt.Errorf("%w: %q is published by the server", ErrInvalidEvent, name)
		}

		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, name)
	}
}

// ExpireRounds resolves every round whose deadline passed more than grace
// ago. It returns how many rounds it resolved.
func (r *Registry) ExpireRounds(ctx context.Context, grace time.Duration) (int, error) {
	return r.sweep(ctx, func(room *Room, now time.Time) ([]Payload, error) {
		deadline, ok := room.Deadline()
		if room.Phase != PhaseInRound || !ok || now.Before(deadline.Add(grace)) {
			return nil, nil
		}

		return room.timeout(now)
	})
}

// Reap closes rooms nobody has touched for longer than idle.
func (r *Registry) Reap(ctx context.Context, idle time.Duration) (int, error) {
	return r.sweep(ctx, func(room *Room, now time.Time) ([]Payload, error) {
		if now.Sub(room.LastActive) <= idle {
			return nil, nil
		}

		return []Payload{RoomClosed{Reason: "idle"}}, nil
	})
}

func (r *Registry) sweep(ctx context.Context, fn func(*Room, time.Time) ([]Payload, error)) (int, error) {
	codes, err := r.store.Codes(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		changed := false

		_, err := r.mutate(ctx, code, func(room *Room, now time.Time) ([]Payload, error) {
			events, err := fn(room, now)
			changed = len(events) > 0

			return events, err
		})

		switch {
		case errors.Is(err, ErrRoomNotFound):
			continue
		case err != nil:
			r.log.Warn().Err(err).Str("room", code).Msg("sweep failed")

			continue
		}

		if changed {
			n++
		}
	}

	return n, nil
}

// mutate runs fn against the stored room under the room's lock. Nothing is
// written or published unless fn returns events. A room-closed event deletes
// the room instead of saving it.
func (r *Registry) mutate(ctx context.Context, code string, fn func(*Room, time.Time) ([]Payload, error)) (*Room, error) {
	code, ok := NormalizeCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}

	mu := r.lock(code)
	mu.Lock()
	defer mu.Unlock()

	room, err := r.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	now := r.now()

	payloads, err := fn(room, now)
	if err != nil {
		return nil, err
	}

	if len(payloads) == 0 {
		return room, nil
	}

	room.LastActive = now

	events := make([]Event, 0, len(payloads))
	closed := false

	for _, p := range payloads {
		room.Version++
		events = append(events, newEvent(room, now, p))

		if p.EventName() == EventRoomClosed {
			closed = true
		}
	}

	if closed {
		err = r.store.Delete(ctx, code)
	} else {
		err = r.store.Set(ctx, room)
	}
	if err != nil {
		return nil, err
	}

	for _, e := range events {
		if err := r.bus.Publish(ctx, Topic(code), e); err != nil {
			r.log.Warn().Err(err).Str("room", code).Str("event", e.Name).Msg("publish failed")

			continue
		}

		r.log.Debug().Str("room", code).Str("event", e.Name).Uint64("seq", e.Seq).Msg("published")
	}

	return room.Clone(), nil
}

type lockedRandom struct {
	mu  sync.Mutex
	rng Random
}

func (l *lockedRandom) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.rng.IntN(n)
}

func (l *lockedRandom) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rng.Shuffle(n, swap)
}
