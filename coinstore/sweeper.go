// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinstore

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/ticker"
)

// Sweeper periodically reclaims expired reservations. A reservation only
// leaks when a caller fails to release after an error, so in a healthy
// system the sweeper finds nothing; it exists to bound the damage of that
// bug class to one reservation TTL.
type Sweeper struct {
	store Store
	tick  ticker.Ticker

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewSweeper creates a sweeper driven by the given ticker. Tests inject a
// ticker.Force to trigger sweeps deterministically.
func NewSweeper(store Store, tick ticker.Ticker) *Sweeper {
	return &Sweeper{
		store: store,
		tick:  tick,
		quit:  make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.tick.Resume()

		s.wg.Add(1)
		go s.sweepLoop()
	})
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.tick.Stop()
	})
}

// sweepLoop runs until Stop is called, expiring reservations on every tick.
func (s *Sweeper) sweepLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.tick.Ticks():
			expired, err := s.store.ExpireReservations(
				context.Background(),
			)
			if err != nil {
				log.Errorf("Reservation sweep failed: %v",
					err)
				continue
			}
			if expired > 0 {
				log.Infof("Reservation sweep reclaimed %d "+
					"coins", expired)
			}

		case <-s.quit:
			return
		}
	}
}
