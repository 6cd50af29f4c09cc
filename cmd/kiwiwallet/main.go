// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// kiwiwallet is a command-line wallet for a Chia full node: it tracks the
// coins controlled by a seed's derived keys and builds, signs and submits
// spend bundles.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/Kiwihealthcare-Network/kiwiwallet/chain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/keychain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
	"github.com/Kiwihealthcare-Network/kiwiwallet/wallet"
)

const version = "0.1.0"

func main() {
	if err := walletMain(); err != nil {
		// go-flags already printed its own errors (including help).
		if !isFlagsError(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func isFlagsError(err error) bool {
	_, ok := err.(*flags.Error)
	return ok
}

func walletMain() error {
	cfg, args, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("kiwiwallet version %s\n", version)
		return nil
	}

	if err := initLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
	); err != nil {
		return err
	}
	defer logRotator.Close()

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	command := "balance"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	ring, err := openKeyRing(cfg)
	if err != nil {
		return err
	}

	// Address derivation needs no node connection.
	if command == "address" {
		return cmdAddress(cfg, ring, args)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	node, err := chain.NewRPCNode()
	if err != nil {
		return err
	}

	svc := chain.NewService(node, ring, cfg.CacheTTL)
	engine := wallet.NewEngine(store, ring, cfg.walletConfig())
	syncer := chain.NewSyncer(
		node, store, ring, ticker.New(cfg.SyncInterval),
	)

	ctx := context.Background()

	switch command {
	case "balance":
		return cmdBalance(ctx, svc)

	case "utxos":
		return cmdUtxos(ctx, cfg, svc)

	case "history":
		return cmdHistory(ctx, svc)

	case "send":
		return cmdSend(ctx, cfg, svc, engine, syncer, args)

	case "sweep":
		return cmdSweep(ctx, cfg, svc, engine, syncer, args)

	case "daemon":
		return cmdDaemon(cfg, store, syncer)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// openKeyRing loads the seed file and derives the configured key indexes.
// The file either holds a mnemonic sentence or a hex-encoded seed.
func openKeyRing(cfg *config) (*keychain.KeyRing, error) {
	if cfg.SeedFile == "" {
		return nil, fmt.Errorf("--seedfile is required")
	}

	raw, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	content := strings.TrimSpace(string(raw))

	var seed []byte
	if decoded, err := hex.DecodeString(content); err == nil &&
		len(decoded) >= keychain.MinSeedSize {

		seed = decoded
	} else {
		seed = keychain.SeedFromMnemonic(content, cfg.Passphrase)
	}

	ring, err := keychain.NewKeyRing(seed)
	if err != nil {
		return nil, err
	}
	ring.EnsureIndexes(cfg.KeyIndexes)
	return ring, nil
}

// openStore creates the configured coin store backend.
func openStore(cfg *config) (coinstore.Store, error) {
	switch cfg.DBBackend {
	case "memory":
		return coinstore.NewMemStore(cfg.ReservationTTL), nil
	case "sqlite":
		return coinstore.NewSQLiteStore(cfg.DBDsn, cfg.ReservationTTL)
	case "postgres":
		return coinstore.NewPostgresStore(cfg.DBDsn, cfg.ReservationTTL)
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.DBBackend)
	}
}

func cmdAddress(cfg *config, ring *keychain.KeyRing, args []string) error {
	var index uint64
	if len(args) > 0 {
		var err error
		index, err = strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("bad derivation index %q", args[0])
		}
	}

	addr, err := keychain.EncodeAddress(
		ring.Derive(uint32(index)).PuzzleHash,
		cfg.params.AddressPrefix,
	)
	if err != nil {
		return err
	}

	fmt.Println(addr)
	return nil
}

func cmdBalance(ctx context.Context, svc *chain.Service) error {
	balance, err := svc.Balance(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d mojos)\n", balance, uint64(balance))
	return nil
}

func cmdUtxos(ctx context.Context, cfg *config, svc *chain.Service) error {
	unspent, err := svc.ListUnspent(ctx)
	if err != nil {
		return err
	}

	for _, rec := range unspent {
		addr, err := keychain.EncodeAddress(
			rec.Coin.PuzzleHash, cfg.params.AddressPrefix,
		)
		if err != nil {
			return err
		}

		id := coinstore.CoinID(rec.Coin)
		fmt.Printf("%x  %12d mojos  height %-8d  %s\n",
			id[:], rec.Coin.Amount, rec.ConfirmedHeight, addr)
	}
	return nil
}

func cmdHistory(ctx context.Context, svc *chain.Service) error {
	txs, err := svc.Transactions(ctx)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		fmt.Printf("%s  %-3s  %12d mojos  height %-8d  %x\n",
			tx.Timestamp.Format(time.RFC3339), tx.Direction,
			uint64(tx.Amount), tx.Height, tx.CoinID[:8])
	}
	return nil
}

// parseFee reads the optional trailing fee argument, defaulting to zero.
func parseFee(args []string, at int) (mojo.Amount, error) {
	if len(args) <= at {
		return 0, nil
	}
	fee, err := strconv.ParseUint(args[at], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad fee %q", args[at])
	}
	return mojo.Amount(fee), nil
}

func decodeRecipient(cfg *config, addr string) (wallet.SendIntent, error) {
	prefix, ph, err := keychain.DecodeAddress(addr)
	if err != nil {
		return wallet.SendIntent{}, err
	}
	if prefix != cfg.params.AddressPrefix {
		return wallet.SendIntent{}, fmt.Errorf("address prefix %q "+
			"does not match the %s network", prefix,
			cfg.params.Name)
	}
	return wallet.SendIntent{Recipient: ph}, nil
}

// submitPending pushes a built bundle and releases its reservation when the
// node rejects it.
func submitPending(ctx context.Context, svc *chain.Service,
	engine *wallet.Engine, pending *wallet.PendingSpend) error {

	if err := svc.Submit(ctx, pending.Bundle); err != nil {
		if abErr := engine.Abandon(ctx, pending); abErr != nil {
			log.Errorf("Unable to abandon rejected spend: %v",
				abErr)
		}
		return err
	}
	return nil
}

func cmdSend(ctx context.Context, cfg *config, svc *chain.Service,
	engine *wallet.Engine, syncer *chain.Syncer, args []string) error {

	if len(args) < 2 {
		return fmt.Errorf("usage: send ADDR MOJOS [FEE]")
	}

	intent, err := decodeRecipient(cfg, args[0])
	if err != nil {
		return err
	}

	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad amount %q", args[1])
	}
	intent.Amount = mojo.Amount(amount)

	if intent.Fee, err = parseFee(args, 2); err != nil {
		return err
	}

	if err := syncer.SyncOnce(ctx); err != nil {
		return err
	}

	pending, err := engine.CreateSpendBundle(ctx, intent)
	if err != nil {
		return err
	}
	if err := submitPending(ctx, svc, engine, pending); err != nil {
		return err
	}

	fmt.Printf("sent %s to %s\n", intent.Amount, args[0])
	return nil
}

func cmdSweep(ctx context.Context, cfg *config, svc *chain.Service,
	engine *wallet.Engine, syncer *chain.Syncer, args []string) error {

	if len(args) < 1 {
		return fmt.Errorf("usage: sweep ADDR [FEE]")
	}

	intent, err := decodeRecipient(cfg, args[0])
	if err != nil {
		return err
	}
	if intent.Fee, err = parseFee(args, 1); err != nil {
		return err
	}

	if err := syncer.SyncOnce(ctx); err != nil {
		return err
	}

	pending, err := engine.CreateSweepBundle(
		ctx, intent.Recipient, intent.Fee,
	)
	if err != nil {
		return err
	}
	if err := submitPending(ctx, svc, engine, pending); err != nil {
		return err
	}

	fmt.Printf("swept wallet to %s\n", args[0])
	return nil
}

// cmdDaemon keeps the coin set synced and reservation locks swept until the
// process receives an interrupt.
func cmdDaemon(cfg *config, store coinstore.Store,
	syncer *chain.Syncer) error {

	sweeper := coinstore.NewSweeper(
		store, ticker.New(cfg.ReservationTTL/2),
	)

	syncer.Start()
	defer syncer.Stop()
	sweeper.Start()
	defer sweeper.Stop()

	log.Infof("kiwiwallet %s watching the %s network", version,
		cfg.params.Name)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("Shutting down")
	return nil
}
