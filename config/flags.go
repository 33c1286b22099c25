package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	Network string
	DataDir string
	Config  string

	StoreBackend string
	StorePath    string

	RPC     bool
	RPCAddr string
	RPCPort int

	StabilityThreshold int64 // -1 means unset
	Syncing            string
	AdminToken         string

	LogLevel string
	LogFile  string
	LogJSON  bool

	Args []string

	SetRPC     bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{StabilityThreshold: -1}
	fs := flag.NewFlagSet("chainstated", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.Network, "network", "", "Bitcoin network: mainnet, testnet, or regtest")
	var testnet bool
	fs.BoolVar(&testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.StoreBackend, "store-backend", "", "Paged byte store backend: memory or badger")
	fs.StringVar(&f.StorePath, "store-path", "", "Paged byte store file path")

	fs.BoolVar(&f.RPC, "rpc", true, "Enable the query/admin RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")

	var stability string
	fs.StringVar(&stability, "stability-threshold", "", "Unstable tree stability threshold k")
	fs.StringVar(&f.Syncing, "syncing", "", "enabled or disabled")
	fs.StringVar(&f.AdminToken, "admin-token", "", "Token required by set_config")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if isFlagSet(fs, "testnet") && testnet {
		f.Network = "testnet"
	}
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	if stability != "" {
		if n, err := strconv.ParseInt(stability, 10, 64); err == nil {
			f.StabilityThreshold = n
		}
	}

	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.StoreBackend != "" {
		cfg.Store.Backend = f.StoreBackend
	}
	if f.StorePath != "" {
		cfg.Store.Path = f.StorePath
	}

	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}

	if f.StabilityThreshold >= 0 {
		cfg.StabilityThreshold = uint32(f.StabilityThreshold)
	}
	if f.Syncing != "" {
		cfg.Syncing = parseFlag(f.Syncing)
	}
	if f.AdminToken != "" {
		cfg.AdminToken = f.AdminToken
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `chainstated - deterministic Bitcoin UTXO chain-state engine

Usage:
  chainstated [options]
  chainstated --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network              Bitcoin network: mainnet (default), testnet, regtest
  --testnet              Shorthand for --network=testnet
  --datadir              Data directory (default: ~/.chainstate)
  --config, -c           Config file path (default: <datadir>/chainstate.conf)

Store Options:
  --store-backend        Paged byte store backend: memory or badger (default: badger)
  --store-path           Paged byte store file path

RPC Options:
  --rpc                  Enable the query/admin RPC server (default: true)
  --rpc-addr             RPC listen address (default: 127.0.0.1)
  --rpc-port             RPC port (mainnet: 8332, testnet: 18332, regtest: 18443)

Unstable Tree Options:
  --stability-threshold  Stability threshold k (mainnet default: 144)
  --syncing              enabled or disabled
  --admin-token          Token required to call set_config

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/chainstated.log)
  --log-json      Output logs as JSON

Examples:
  chainstated
  chainstated --network=testnet
  chainstated --datadir=/path/to/data --stability-threshold=6
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("chainstated version 0.1.0")
		os.Exit(0)
	}

	network := Mainnet
	switch strings.ToLower(flags.Network) {
	case "testnet":
		network = Testnet
	case "regtest":
		network = Regtest
	}

	cfg := Default(network)

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
