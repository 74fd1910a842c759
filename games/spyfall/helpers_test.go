/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// scriptedRandom hands out queued values first and falls back to a seeded
// source afterwards.
type scriptedRandom struct {
	mu       sync.Mutex
	next     []int
	fallback *rand.Rand
}

func newScriptedRandom(seed uint64) *scriptedRandom {
	return &scriptedRandom{fallback: rand.New(rand.NewPCG(seed, seed))}
}

func (s *scriptedRandom) Push(v ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next = append(s.next, v...)
}

func (s *scriptedRandom) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.next) > 0 {
		v := s.next[0]
		s.next = s.next[1:]

		return v % n
	}

	return s.fallback.IntN(n)
}

func (s *scriptedRandom) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fallback.Shuffle(n, swap)
}

type fixture struct {
	reg   *Registry
	hub   *Hub
	clock *testClock
	rng   *scriptedRandom
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		hub:   NewHub(DefaultSubscriberBuffer),
		clock: newTestClock(),
		rng:   newScriptedRandom(7),
	}

	base := []Option{
		WithBroadcaster(f.hub),
		WithClock(f.clock.Now),
		WithRand(f.rng),
	}

	reg, err := NewRegistry(append(base, opts...)...)
	require.NoError(t, err)

	f.reg = reg

	return f
}

// room creates a room hosted by player 1 and joins players 2..n.
func (f *fixture) room(t *testing.T, n int) string {
	t.Helper()

	ctx := context.Background()

	room, err := f.reg.CreateRoom(ctx, Player{ID: 1, Name: "player-1"}, "")
	require.NoError(t, err)

	for id := 2; id <= n; id++ {
		_, err := f.reg.AddPlayer(ctx, room.Code, Player{ID: id, Name: playerName(id)})
		require.NoError(t, err)
	}

	return room.Code
}

// start begins a round at hospital with the player at spyIndex as the spy.
func (f *fixture) start(t *testing.T, code string, spyIndex int, duration time.Duration) *Room {
	t.Helper()

	f.rng.Push(spyIndex)

	room, err := f.reg.StartRound(context.Background(), code, 1, "hospital", duration)
	require.NoError(t, err)

	return room
}

func playerName(id int) string {
	return fmt.Sprintf("player-%d", id)
}

func subscribe(t *testing.T, f *fixture, code string) Subscription {
	t.Helper()

	sub, err := f.reg.Subscribe(context.Background(), code)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	return sub
}

// drain collects whatever is already queued on a subscription.
func drain(sub Subscription) []Event {
	var events []Event

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}

	return names
}

func fixedLocation(loc Location) func() (Location, error) {
	return func() (Location, error) { return loc, nil }
}
