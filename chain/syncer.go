// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/ticker"
	"golang.org/x/sync/errgroup"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
)

// syncFetchLimit bounds how many puzzle-hash queries run against the node in
// parallel during one sync round.
const syncFetchLimit = 4

// Syncer periodically pulls the watched puzzle hashes' coin records from the
// node and merges them into the coin store. The store snapshot is what the
// spend engine selects from, so the syncer is the single writer of coin
// state.
type Syncer struct {
	node  NodeClient
	store coinstore.Store
	watch WatchSet
	tick  ticker.Ticker

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewSyncer creates a syncer feeding store from node on the given ticker.
func NewSyncer(node NodeClient, store coinstore.Store, watch WatchSet,
	tick ticker.Ticker) *Syncer {

	return &Syncer{
		node:  node,
		store: store,
		watch: watch,
		tick:  tick,
		quit:  make(chan struct{}),
	}
}

// Start launches the background sync loop. An initial round runs
// immediately so the store is populated before the first tick.
func (s *Syncer) Start() {
	s.startOnce.Do(func() {
		log.Info("Coin syncer starting")
		s.tick.Resume()

		s.wg.Add(1)
		go s.syncLoop()
	})
}

// Stop terminates the sync loop and waits for it to exit.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.tick.Stop()

		log.Info("Coin syncer stopped")
	})
}

// syncLoop runs sync rounds until Stop.
func (s *Syncer) syncLoop() {
	defer s.wg.Done()

	// The quit channel doubles as the context for in-flight rounds, so
	// Stop also cancels a round in progress.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.quit
		cancel()
	}()

	if err := s.SyncOnce(ctx); err != nil {
		log.Errorf("Initial coin sync failed: %v", err)
	}

	for {
		select {
		case <-s.tick.Ticks():
			if err := s.SyncOnce(ctx); err != nil {
				log.Errorf("Coin sync failed: %v", err)
			}

		case <-s.quit:
			return
		}
	}
}

// SyncOnce runs a single sync round: it fetches the coin records of every
// watched puzzle hash, spent coins included so the store learns about
// spends, and merges them into the store.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	hashes := s.watch.PuzzleHashes()

	var (
		mu      sync.Mutex
		records []coinstore.CoinRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncFetchLimit)
	for _, ph := range hashes {
		ph := ph
		g.Go(func() error {
			recs, err := s.node.CoinRecordsByPuzzleHash(
				gctx, ph, true,
			)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				records = append(records, convertRecord(rec))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.store.Sync(ctx, records); err != nil {
		return err
	}

	log.Debugf("Synced %d coin records across %d puzzle hashes",
		len(records), len(hashes))
	return nil
}
