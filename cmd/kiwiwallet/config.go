// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/chia-network/go-chia-libs/pkg/types"
	flags "github.com/jessevdk/go-flags"

	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
	"github.com/Kiwihealthcare-Network/kiwiwallet/wallet"
)

const (
	defaultLogFilename    = "kiwiwallet.log"
	defaultLogDirname     = "logs"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"
	defaultDBBackend      = "memory"
	defaultKeyIndexes     = 50
	defaultDustPolicy     = "reject"
	defaultDustThreshold  = 1
	defaultReservationTTL = 5 * time.Minute
	defaultSyncInterval   = 30 * time.Second
	defaultCacheTTL       = 10 * time.Second
)

var (
	defaultAppDataDir = btcutil.AppDataDir("kiwiwallet", false)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)
)

// networkParams fixes the address prefix and signature domain of one chain.
type networkParams struct {
	Name             string
	AddressPrefix    string
	GenesisChallenge types.Bytes32
}

var (
	mainNetParams = networkParams{
		Name:          "mainnet",
		AddressPrefix: "xch",
		GenesisChallenge: mustChallenge("ccd5bb71183532bff220ba46c2" +
			"68991a3ff07eb358e8255a65c30a2dce0e5fbb"),
	}

	testNet10Params = networkParams{
		Name:          "testnet10",
		AddressPrefix: "txch",
		GenesisChallenge: mustChallenge("ae83525ba8d1dd3f09b277de18" +
			"ca3e43fc0af20d20c4b3e92ef2a48bd291ccb2"),
	}
)

// mustChallenge decodes a compiled-in genesis challenge constant.
func mustChallenge(s string) types.Bytes32 {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		panic(fmt.Sprintf("bad genesis challenge constant %q", s))
	}
	var out types.Bytes32
	copy(out[:], raw)
	return out
}

// config defines the configuration options for kiwiwallet.
//
// See loadConfig for any defaults and relevant validation.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  string `short:"A" long:"appdata" description:"Application data directory"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or per subsystem as <subsystem>=<level>"`

	Network    string `long:"network" description:"Network to operate on" choice:"mainnet" choice:"testnet10"`
	SeedFile   string `long:"seedfile" description:"File containing the wallet mnemonic sentence or a hex seed"`
	Passphrase string `long:"passphrase" description:"Optional mnemonic passphrase"`
	KeyIndexes uint32 `long:"keyindexes" description:"Number of derivation indexes to track"`

	DBBackend string `long:"db" description:"Coin store backend" choice:"memory" choice:"sqlite" choice:"postgres"`
	DBDsn     string `long:"dbdsn" description:"Data source name for the sqlite or postgres backend"`

	DustThreshold  uint64        `long:"dustthreshold" description:"Smallest change output to create, in mojos"`
	DustPolicy     string        `long:"dustpolicy" description:"What to do with sub-threshold change" choice:"reject" choice:"fold"`
	MaxFee         uint64        `long:"maxfee" description:"Largest fee to accept, in mojos (0 uses the built-in ceiling)"`
	ReservationTTL time.Duration `long:"reservationttl" description:"How long spent-coin reservations are held"`
	SyncInterval   time.Duration `long:"syncinterval" description:"How often the coin set is refreshed from the node"`
	CacheTTL       time.Duration `long:"cachettl" description:"How long node query results are cached"`

	params     networkParams
	dustPolicy wallet.DustPolicy
}

// loadConfig initializes and parses the config using command line options,
// then validates the cross-field constraints the flags library cannot
// express.
func loadConfig() (*config, []string, error) {
	cfg := config{
		AppDataDir:     defaultAppDataDir,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		Network:        defaultNetwork,
		KeyIndexes:     defaultKeyIndexes,
		DBBackend:      defaultDBBackend,
		DustThreshold:  defaultDustThreshold,
		DustPolicy:     defaultDustPolicy,
		ReservationTTL: defaultReservationTTL,
		SyncInterval:   defaultSyncInterval,
		CacheTTL:       defaultCacheTTL,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] COMMAND [ARGS]\n\nCommands:\n" +
		"  address [index]            Show a receive address\n" +
		"  balance                    Show the confirmed balance\n" +
		"  utxos                      List unspent coins\n" +
		"  history                    Show the transaction history\n" +
		"  send ADDR MOJOS [FEE]      Pay MOJOS to ADDR\n" +
		"  sweep ADDR [FEE]           Send the whole balance to ADDR\n" +
		"  daemon                     Keep the coin set synced"

	remaining, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, remaining, nil
}

// validate resolves the derived fields and rejects inconsistent settings.
func (cfg *config) validate() error {
	switch cfg.Network {
	case "mainnet":
		cfg.params = mainNetParams
	case "testnet10":
		cfg.params = testNet10Params
	default:
		return fmt.Errorf("unknown network %q", cfg.Network)
	}

	switch cfg.DustPolicy {
	case "reject":
		cfg.dustPolicy = wallet.DustReject
	case "fold":
		cfg.dustPolicy = wallet.DustFoldIntoFee
	default:
		return fmt.Errorf("unknown dust policy %q", cfg.DustPolicy)
	}

	if cfg.DBBackend != "memory" && cfg.DBDsn == "" {
		return fmt.Errorf("--dbdsn is required with the %s backend",
			cfg.DBBackend)
	}

	if cfg.MaxFee != 0 && mojo.Amount(cfg.MaxFee) > wallet.DefaultMaxFee {
		return fmt.Errorf("maxfee %d exceeds the hard ceiling of %v",
			cfg.MaxFee, wallet.DefaultMaxFee)
	}

	if cfg.ReservationTTL <= 0 || cfg.SyncInterval <= 0 {
		return fmt.Errorf("reservationttl and syncinterval must be " +
			"positive")
	}

	return nil
}

// walletConfig maps the parsed flags onto the engine's configuration.
func (cfg *config) walletConfig() wallet.Config {
	return wallet.Config{
		DustThreshold:    mojo.Amount(cfg.DustThreshold),
		DustPolicy:       cfg.dustPolicy,
		GenesisChallenge: cfg.params.GenesisChallenge,
		MaxFee:           mojo.Amount(cfg.MaxFee),
	}
}
