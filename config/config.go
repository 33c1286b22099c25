// Package config handles chain-state engine configuration.
//
// Configuration splits into two categories: protocol-level knobs that
// must match across any reader of the same page store (network,
// stability threshold), and per-process runtime settings (data
// directory, RPC, logging).
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/btcstate/chainstate/pkg/btc"
)

// NetworkType identifies which Bitcoin network this engine tracks.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// BTCNetwork converts to pkg/btc.Network for address derivation.
func (n NetworkType) BTCNetwork() btc.Network {
	switch n {
	case Testnet:
		return btc.Testnet
	case Regtest:
		return btc.Regtest
	default:
		return btc.Mainnet
	}
}

// Config holds node-specific runtime configuration.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Store selects and locates the paged byte store backend.
	Store StoreConfig

	// RPC server exposing the query/admin surface.
	RPC RPCConfig

	// Logging
	Log LogConfig

	// StabilityThreshold is the unstable tree's confirmation depth k.
	StabilityThreshold uint32 `conf:"stability_threshold"`

	// Syncing gates whether the ingestion loop pulls new blocks.
	Syncing Flag `conf:"syncing"`

	// Fees are the five fee amounts set_config may update; no query
	// reports them.
	Fees Fees `conf:"fees"`

	// AdminToken gates set_config; callers must present it to mutate
	// Syncing, Fees, or StabilityThreshold.
	AdminToken string `conf:"admin_token"`
}

// Flag is a three-valued enable/disable/leave-unchanged knob, used by
// set_config to optionally toggle syncing.
type Flag uint8

const (
	FlagUnset Flag = iota
	FlagEnabled
	FlagDisabled
)

// Fees is the record of five fee amounts set_config may update.
// Carried as uint64: no Bitcoin fee schedule plausibly needs more
// range, and Go has no native 128-bit integer.
type Fees struct {
	GetUTXOs                 uint64
	GetBalance               uint64
	GetCurrentFeePercentiles uint64
	SendTransactionBase      uint64
	SendTransactionPerByte   uint64
}

// StoreConfig selects the paged byte store backend (internal/pagestore).
type StoreConfig struct {
	Backend string `conf:"store.backend"` // "memory" or "badger"
	Path    string `conf:"store.path"`
}

// RPCConfig holds the query/admin HTTP surface settings.
type RPCConfig struct {
	Enabled bool   `conf:"rpc.enabled"`
	Addr    string `conf:"rpc.addr"`
	Port    int    `conf:"rpc.port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.chainstate
//	macOS:   ~/Library/Application Support/Chainstate
//	Windows: %APPDATA%\Chainstate
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainstate"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Chainstate")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chainstate")
		}
		return filepath.Join(home, "AppData", "Roaming", "Chainstate")
	default:
		return filepath.Join(home, ".chainstate")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreFile returns the default page store file path.
func (c *Config) StoreFile() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.ChainDataDir(), "chainstate.db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "chainstate.conf")
}
