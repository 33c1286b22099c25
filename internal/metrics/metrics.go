// Package metrics exposes engine state as Prometheus gauges
// (main_chain_height, utxos_length, address_outpoints_length,
// ingest_state) via the /metrics route wired in internal/rpc.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/btcstate/chainstate/internal/ingest"
	"github.com/btcstate/chainstate/internal/unstable"
	"github.com/btcstate/chainstate/internal/utxo"
)

var (
	mainChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "main_chain_height",
		Help: "Height of the main chain.",
	})
	utxosLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "utxos_length",
		Help: "The size of the UTXO set.",
	})
	addressOutpointsLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "address_outpoints_length",
		Help: "The size of the address to outpoints map.",
	})
	ingestState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_state",
		Help: "Current ingestion state (0=idle, 1=fetching, 2=ingesting, 3=stabilizing).",
	})
)

func init() {
	prometheus.MustRegister(mainChainHeight, utxosLength, addressOutpointsLength, ingestState)
}

// Observe updates every gauge from the current component state. Called
// once per Activate cycle by the host (cmd/chainstated).
func Observe(tree *unstable.Tree, utxos *utxo.Set, state ingest.State) {
	mainChainHeight.Set(float64(tree.MainChainHeight()))
	utxosLength.Set(float64(utxos.Len()))
	addressOutpointsLength.Set(float64(utxos.AddressOutpointsLen()))
	ingestState.Set(float64(state))
}
