// Chainstate engine daemon.
//
// Usage:
//
//	chainstated [--datadir=...] [--rpc-addr=...]  Run engine
//	chainstated --help                            Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcstate/chainstate/config"
	"github.com/btcstate/chainstate/internal/blocksource"
	"github.com/btcstate/chainstate/internal/chainlog"
	"github.com/btcstate/chainstate/internal/engine"
	"github.com/btcstate/chainstate/internal/metrics"
	"github.com/btcstate/chainstate/internal/pagestore"
	"github.com/btcstate/chainstate/internal/rpc"
	"github.com/btcstate/chainstate/pkg/btc"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ───────────────────────
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ──────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/chainstated.log"
	}
	if err := chainlog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := chainlog.WithComponent("main")

	logger.Info().
		Str("network", string(cfg.Network)).
		Uint32("stability_threshold", cfg.StabilityThreshold).
		Msg("starting chainstated")

	// ── 3. Open the page store ──────────────────────────────────────────
	var store pagestore.Store
	switch cfg.Store.Backend {
	case "memory":
		store = pagestore.NewMemory()
	default:
		store, err = pagestore.NewBadgerStore(cfg.StoreFile())
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.StoreFile()).Msg("failed to open page store")
		}
	}
	defer store.Close()

	// ── 4. Resolve the block source ──────────────────────────────────────
	var source blocksource.Source
	if len(flags.Args) > 0 {
		fileSource, err := blocksource.NewFileSource(flags.Args[0])
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open block source directory")
		}
		source = fileSource
	} else {
		source = blocksource.NewMemorySource()
	}

	// ── 5. Wire the engine ──────────────────────────────────────────────
	// The anchor starts at the virtual pre-genesis parent (zero hash);
	// the first block the source hands back becomes height 0.
	state, err := engine.New(cfg, store, source, btc.Hash{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create engine")
	}
	if store.Size() > 0 {
		if err := state.PostUpgrade(); err != nil {
			logger.Fatal().Err(err).Msg("failed to restore engine state")
		}
		logger.Info().Msg("engine state restored from page store")
	}

	// ── 6. Start the RPC/metrics server ──────────────────────────────────
	var server *rpc.Server
	if cfg.RPC.Enabled {
		server = rpc.New(fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port), state)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start RPC server")
		}
		logger.Info().Str("addr", server.Addr()).Msg("RPC server listening")
	}

	// ── 7. Drive activation on a timer until interrupted ─────────────────
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logger.Info().Msg("shutting down")
			if server != nil {
				server.Stop()
			}
			if err := state.PreUpgrade(); err != nil {
				logger.Error().Err(err).Msg("failed to persist engine state on shutdown")
			}
			return
		case <-ticker.C:
			if err := state.Activate(func() bool { return true }); err != nil {
				logger.Error().Err(err).Msg("activation step failed")
			}
			metrics.Observe(state.Tree(), state.UTXOs(), state.IngestState())
		}
	}
}
