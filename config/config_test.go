package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultMainnetStabilityThreshold(t *testing.T) {
	cfg := Default(Mainnet)
	if cfg.StabilityThreshold != 144 {
		t.Fatalf("stability threshold = %d, want 144", cfg.StabilityThreshold)
	}
	if cfg.RPC.Port != 8332 {
		t.Fatalf("rpc port = %d, want 8332", cfg.RPC.Port)
	}
}

func TestDefaultTestnetOverridesMainnet(t *testing.T) {
	cfg := Default(Testnet)
	if cfg.Network != Testnet {
		t.Fatalf("network = %v, want Testnet", cfg.Network)
	}
	if cfg.StabilityThreshold != 6 {
		t.Fatalf("stability threshold = %d, want 6", cfg.StabilityThreshold)
	}
	if cfg.RPC.Port != 18332 {
		t.Fatalf("rpc port = %d, want 18332", cfg.RPC.Port)
	}
}

func TestDefaultRegtestZeroThreshold(t *testing.T) {
	cfg := Default(Regtest)
	if cfg.StabilityThreshold != 0 {
		t.Fatalf("stability threshold = %d, want 0", cfg.StabilityThreshold)
	}
}

func TestValidateRejectsNilConfig(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.Network = "signet"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.Store.Backend = "sqlite"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.RPC.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	for _, n := range []NetworkType{Mainnet, Testnet, Regtest} {
		if err := Validate(Default(n)); err != nil {
			t.Fatalf("Validate(Default(%v)) = %v", n, err)
		}
	}
}

func TestLoadFileMissingReturnsEmpty(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Fatalf("values = %v, want empty", values)
	}
}

func TestWriteDefaultConfigThenLoadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainstate.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if values["network"] != "testnet" {
		t.Fatalf("network = %q, want testnet", values["network"])
	}
	if values["rpc.port"] != "18332" {
		t.Fatalf("rpc.port = %q, want 18332", values["rpc.port"])
	}

	cfg := Default(Testnet)
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "badger" {
		t.Fatalf("store.backend = %q, want badger", cfg.Store.Backend)
	}
}

func TestApplyFileConfigUnknownKeyIgnored(t *testing.T) {
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, map[string]string{"nonsense.key": "x"}); err != nil {
		t.Fatalf("unexpected error for unknown key: %v", err)
	}
}

func TestApplyFileConfigSyncingFlag(t *testing.T) {
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, map[string]string{"syncing": "disabled"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Syncing != FlagDisabled {
		t.Fatalf("syncing = %v, want FlagDisabled", cfg.Syncing)
	}
}

func TestChainDataDirIncludesNetwork(t *testing.T) {
	cfg := &Config{DataDir: "/data", Network: Testnet}
	want := filepath.Join("/data", "testnet")
	if got := cfg.ChainDataDir(); got != want {
		t.Fatalf("ChainDataDir() = %q, want %q", got, want)
	}
}
