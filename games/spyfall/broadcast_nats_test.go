/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSBroadcaster(t *testing.T) {
	url := os.Getenv("SPYFALL_TEST_NATS")
	if url == "" {
		t.Skip("SPYFALL_TEST_NATS not set")
	}

	b, err := NewNATSBroadcaster(NATSOptions{URL: url, SubjectPrefix: "spyfall-test", Buffer: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	reg, err := NewRegistry(WithBroadcaster(b))
	require.NoError(t, err)

	ctx := context.Background()

	room, err := reg.CreateRoom(ctx, Player{ID: 1, Name: "a"}, "")
	require.NoError(t, err)

	sub, err := reg.Subscribe(ctx, room.Code)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	for id := 2; id <= 3; id++ {
		_, err := reg.AddPlayer(ctx, room.Code, Player{ID: id, Name: playerName(id)})
		require.NoError(t, err)
	}

	for seq := uint64(1); seq <= 2; seq++ {
		select {
		case e := <-sub.Events():
			assert.Equal(t, seq, e.Seq)
			joined, ok := e.Payload.(PlayerJoined)
			require.True(t, ok)
			assert.Len(t, joined.Players, int(seq)+1)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d never arrived", seq)
		}
	}
}

func TestNATSBroadcasterUnreachable(t *testing.T) {
	_, err := NewNATSBroadcaster(NATSOptions{URL: "nats://127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrConnectionFailure)
}

func TestNATSOptionsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   NATSOptions
		want int
	}{
		{"unset reconnects forever", NATSOptions{}, -1},
		{"unlimited stays unlimited", NATSOptions{MaxReconnects: -1}, -1},
		{"explicit limit kept", NATSOptions{MaxReconnects: 5}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()

			assert.Equal(t, tt.want, got.MaxReconnects)
			assert.Equal(t, DefaultSubjectPrefix, got.SubjectPrefix)
			assert.Equal(t, DefaultSubscriberBuffer, got.Buffer)
			assert.Equal(t, 2*time.Second, got.ReconnectWait)
		})
	}
}
