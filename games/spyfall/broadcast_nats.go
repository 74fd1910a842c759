/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const DefaultSubjectPrefix = "spyfall"

// FlushWithContext refuses contexts without a deadline.
const flushTimeout = 5 * time.Second

type NATSOptions struct {
	URL           string
	SubjectPrefix string
	Buffer        int
	MaxReconnects int
	ReconnectWait time.Duration
	Logger        zerolog.Logger
}

// NATSBroadcaster publishes each room topic on <prefix>.room-<code>, so
// several server processes can share subscribers.
type NATSBroadcaster struct {
	conn   *nats.Conn
	prefix string
	buffer int
	log    zerolog.Logger
}

// withDefaults fills unset fields. A zero MaxReconnects means reconnect
// forever, as nats itself would give up after the first disconnect.
func (o NATSOptions) withDefaults() NATSOptions {
	if o.SubjectPrefix == "" {
		o.SubjectPrefix = DefaultSubjectPrefix
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultSubscriberBuffer
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = -1
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}

	return o
}

func NewNATSBroadcaster(opts NATSOptions) (*NATSBroadcaster, error) {
	opts = opts.withDefaults()

	log := opts.Logger

	conn, err := nats.Connect(opts.URL,
		nats.Name("spyfall"),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected from nats")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to nats")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats connection closed")
		}),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: nats connect %s: %v", ErrConnectionFailure, opts.URL, err)
	}

	return &NATSBroadcaster{
		conn:   conn,
		prefix: opts.SubjectPrefix,
		buffer: opts.Buffer,
		log:    log,
	}, nil
}

func (b *NATSBroadcaster) subject(topic string) string {
	return b.prefix + "." + topic
}

func (b *NATSBroadcaster) Publish(ctx context.Context, topic string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Name, err)
	}

	if err := b.conn.Publish(b.subject(topic), data); err != nil {
		return fmt.Errorf("%w: nats publish %s: %v", ErrConnectionFailure, topic, err)
	}

	return nil
}

func (b *NATSBroadcaster) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &natsSubscription{ch: make(chan Event, b.buffer)}

	ns, err := b.conn.Subscribe(b.subject(topic), func(msg *nats.Msg) {
		e, err := DecodeEvent(msg.Data)
		if err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")

			return
		}

		sub.deliver(e)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: nats subscribe %s: %v", ErrConnectionFailure, topic, err)
	}

	// Without the flush a publish right after Subscribe can race the
	// server registering interest.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := b.conn.FlushWithContext(flushCtx); err != nil {
		_ = ns.Unsubscribe()

		return nil, fmt.Errorf("%w: nats flush: %v", ErrConnectionFailure, err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		_ = ns.Unsubscribe()

		return sub, nil
	}

	sub.nsub = ns
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })

	return sub, nil
}

// Ping round-trips to the server.
func (b *NATSBroadcaster) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := b.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: nats: %v", ErrConnectionFailure, err)
	}

	return nil
}

func (b *NATSBroadcaster) Close() error {
	b.conn.Close()

	return nil
}

type natsSubscription struct {
	mu     sync.Mutex
	nsub   *nats.Subscription
	ch     chan Event
	stop   func() bool
	closed bool
}

func (s *natsSubscription) Events() <-chan Event { return s.ch }

func (s *natsSubscription) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- e:
	default:
		s.closeLocked()
	}
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *natsSubscription) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.ch)

	if s.stop != nil {
		s.stop()
	}

	if s.nsub != nil {
		return s.nsub.Unsubscribe()
	}

	return nil
}
