package config

// DefaultMainnet returns the default engine configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Store: StoreConfig{
			Backend: "badger",
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    8332,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		StabilityThreshold: 144,
		Syncing:            FlagEnabled,
	}
}

// DefaultTestnet returns the default engine configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 18332
	cfg.StabilityThreshold = 6
	return cfg
}

// DefaultRegtest returns the default engine configuration for regtest.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.RPC.Port = 18443
	cfg.StabilityThreshold = 0
	return cfg
}

// Default returns the default engine configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
