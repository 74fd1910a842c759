/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"time"
)

// Reaper runs the two background sweeps: closing idle rooms and resolving
// rounds whose players stopped reporting the timeout.
type Reaper struct {
	Registry *Registry

	// IdleTimeout closes rooms untouched for this long. Zero disables it.
	IdleTimeout time.Duration

	// RoundSweep is how often expired rounds are checked for. Zero
	// disables it.
	RoundSweep time.Duration

	// RoundGrace is how long past the deadline the clients get to report
	// the timeout themselves.
	RoundGrace time.Duration
}

// Run blocks until ctx is done.
func (rp *Reaper) Run(ctx context.Context) {
	var idle, rounds <-chan time.Time

	if rp.IdleTimeout > 0 {
		t := time.NewTicker(rp.IdleTimeout / 2)
		defer t.Stop()
		idle = t.C
	}

	if rp.RoundSweep > 0 {
		t := time.NewTicker(rp.RoundSweep)
		defer t.Stop()
		rounds = t.C
	}

	if idle == nil && rounds == nil {
		return
	}

	log := rp.Registry.log

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle:
			n, err := rp.Registry.Reap(ctx, rp.IdleTimeout)
			if err != nil {
				log.Warn().Err(err).Msg("reaping idle rooms")
			}
			if n > 0 {
				log.Info().Int("rooms", n).Msg("closed idle rooms")
			}
		case <-rounds:
			n, err := rp.Registry.ExpireRounds(ctx, rp.RoundGrace)
			if err != nil {
				log.Warn().Err(err).Msg("expiring rounds")
			}
			if n > 0 {
				log.Info().Int("rooms", n).Msg("resolved expired rounds")
			}
		}
	}
}
