package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"hl_bootstrap/internal/dataType"
)

// EnvPrefix prefixes the environment variable of every flag:
// --seed-peers-amount is also read from HL_BOOTSTRAP_SEED_PEERS_AMOUNT.
const EnvPrefix = "HL_BOOTSTRAP_"

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// EnvName returns the environment variable bound to a flag.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// Load builds the settings from, in increasing precedence: built-in
// defaults, the YAML file named by --config, HL_BOOTSTRAP_* environment
// variables, and command line flags. Parsing stops at the first positional
// argument; it and everything after it is passed through to hl-visor.
//
// pflag.ErrHelp is returned unwrapped when --help is requested.
func Load(args []string, lookupEnv LookupEnvFunc) (*MainConfig, *pflag.FlagSet, error) {
	cfg := Default()

	configPath, err := findConfigPath(args, lookupEnv)
	if err != nil {
		return nil, nil, dataType.NewError(dataType.ConfigurationError, "parse flags", err)
	}
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, nil, dataType.NewError(dataType.ConfigurationError, "load config file", err)
		}
	}

	fs := NewFlagSet(cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, fs, err
		}
		return nil, fs, dataType.NewError(dataType.ConfigurationError, "parse flags", err)
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, fs, pflag.ErrHelp
	}
	if err := applyEnv(fs, lookupEnv); err != nil {
		return nil, fs, dataType.NewError(dataType.ConfigurationError, "read environment", err)
	}

	cfg.ConfigPath = configPath
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, fs, err
	}
	return cfg, fs, nil
}

// NewFlagSet binds every setting of cfg to a flag whose default is the
// current value.
func NewFlagSet(cfg *MainConfig, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hl-bootstrap", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVar(configPath, "config", *configPath, "YAML settings file")

	fs.StringVar(&cfg.Network, "network", cfg.Network, "chain to set up (mainnet or testnet); read from visor.json when empty")
	fs.StringVar(&cfg.VisorConfigPath, "visor-config-path", cfg.VisorConfigPath, "visor.json path, used to determine the chain")

	fs.StringVar(&cfg.OverrideGossipConfigPath, "override-gossip-config-path", cfg.OverrideGossipConfigPath, "override_gossip_config.json path")
	fs.DurationVar(&cfg.OverrideGossipConfigMaxAge, "override-gossip-config-max-age", cfg.OverrideGossipConfigMaxAge, "age after which seed peers are fetched and tested again")

	fs.IntVar(&cfg.SeedPeersAmount, "seed-peers-amount", cfg.SeedPeersAmount, "how many seed peers to keep in the configuration")
	fs.DurationVar(&cfg.SeedPeersMaxLatency, "seed-peers-max-latency", cfg.SeedPeersMaxLatency, "maximum connect latency of a seed peer")
	fs.StringSliceVar(&cfg.SeedPeersIgnored, "seed-peers-ignored", cfg.SeedPeersIgnored, "seed peer IPs or CIDRs to ignore")
	fs.StringVar(&cfg.SeedSource, "seed-source", cfg.SeedSource, "mainnet seed source: api or document")
	fs.StringVar(&cfg.SeedDocumentURL, "seed-document-url", cfg.SeedDocumentURL, "document listing mainnet seed peers, used with --seed-source=document")

	fs.BoolVar(&cfg.IgnoreIPv6Enabled, "ignore-ipv6-enabled", cfg.IgnoreIPv6Enabled, "do not warn when net.ipv6.conf.all.disable_ipv6 is 0")

	fs.DurationVar(&cfg.PruneDataInterval, "prune-data-interval", cfg.PruneDataInterval, "run the data pruning task at this interval (0 disables it)")
	fs.DurationVar(&cfg.PruneDataOlderThan, "prune-data-older-than", cfg.PruneDataOlderThan, "prune data older than this")
	fs.StringVar(&cfg.PruneDataDirectory, "prune-data-directory", cfg.PruneDataDirectory, "directory to prune, relative to the working directory")

	fs.StringVar(&cfg.VisorInstallDir, "visor-install-dir", cfg.VisorInstallDir, "directory hl-visor is installed into")
	fs.StringVar(&cfg.VisorBinary, "visor-binary", cfg.VisorBinary, "name of the supervised binary, looked up on PATH")
	fs.StringVar(&cfg.GPGBinary, "gpg-binary", cfg.GPGBinary, "gpg executable used to verify hl-visor")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	fs.StringVar(&cfg.LogPath, "log-path", cfg.LogPath, "also append logs to this file")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "write run metrics to this node_exporter textfile")

	fs.StringVar(&cfg.SnapshotListen, "snapshot-listen", cfg.SnapshotListen, "serve the snapshot endpoint on this address (host:port)")
	fs.StringVar(&cfg.SnapshotDirectory, "snapshot-directory", cfg.SnapshotDirectory, "directory snapshot files are written to")
	fs.StringVar(&cfg.SnapshotInfoURL, "snapshot-info-url", cfg.SnapshotInfoURL, "node info endpoint that produces snapshots")

	fs.BoolP("help", "h", false, "show help")
	return fs
}

// findConfigPath extracts --config without failing on the other flags.
func findConfigPath(args []string, lookupEnv LookupEnvFunc) (string, error) {
	var path string
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.StringVar(&path, "config", "", "")
	fs.BoolP("help", "h", false, "")
	if err := fs.Parse(args); err != nil && err != pflag.ErrHelp {
		return "", err
	}
	if fs.Changed("config") {
		return path, nil
	}
	if value, ok := lookupEnv(EnvName("config")); ok {
		return value, nil
	}
	return "", nil
}

func applyEnv(fs *pflag.FlagSet, lookupEnv LookupEnvFunc) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || f.Name == "help" || f.Name == "config" {
			return
		}
		value, ok := lookupEnv(EnvName(f.Name))
		if !ok {
			return
		}
		if setErr := fs.Set(f.Name, value); setErr != nil {
			err = fmt.Errorf("invalid %s: %w", EnvName(f.Name), setErr)
		}
	})
	return err
}
