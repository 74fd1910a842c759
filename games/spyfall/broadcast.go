/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"sync"
)

const DefaultSubscriberBuffer = 64

// Broadcaster fans events out to every subscriber of a topic. Subscribers
// only see events published after they subscribed.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, e Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers a topic's events in publish order. The channel is
// closed when the subscription is closed, its context ends, or it falls
// too far behind; a closed subscriber has to resync from GetRoom.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Hub is the in-process Broadcaster.
type Hub struct {
	mu     sync.Mutex
	buffer int
	topics map[string]map[*hubSubscription]struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	return &Hub{
		buffer: buffer,
		topics: make(map[string]map[*hubSubscription]struct{}),
	}
}

type hubSubscription struct {
	hub   *Hub
	topic string
	ch    chan Event
	stop  func() bool
}

func (s *hubSubscription) Events() <-chan Event { return s.ch }

func (s *hubSubscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	s.hub.dropLocked(s)

	return nil
}

func (h *Hub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &hubSubscription{
		hub:   h,
		topic: topic,
		ch:    make(chan Event, h.buffer),
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*hubSubscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })

	h.mu.Lock()
	sub.stop = stop
	h.mu.Unlock()

	return sub, nil
}

// Publish never blocks on a slow subscriber; one whose queue is full is
// dropped instead.
func (h *Hub) Publish(ctx context.Context, topic string, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.topics[topic] {
		select {
		case sub.ch <- e:
		default:
			h.dropLocked(sub)
		}
	}

	return nil
}

// Subscribers returns how many subscriptions a topic currently has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.topics[topic])
}

// Close drops every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.topics {
		for sub := range subs {
			h.dropLocked(sub)
		}
	}

	return nil
}

func (h *Hub) dropLocked(sub *hubSubscription) {
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}

	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}

	close(sub.ch)

	if sub.stop != nil {
		sub.stop()
	}
}
