package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hl_bootstrap/internal/dataType"
)

type MainConfig struct {
	// Network overrides the chain read from visor.json.
	Network         string `yaml:"network" validate:"omitempty,chain"`
	VisorConfigPath string `yaml:"visor_config_path" validate:"required"`

	OverrideGossipConfigPath   string        `yaml:"override_gossip_config_path" validate:"required"`
	OverrideGossipConfigMaxAge time.Duration `yaml:"override_gossip_config_max_age" validate:"gte=0"`

	SeedPeersAmount     int           `yaml:"seed_peers_amount" validate:"min=1"`
	SeedPeersMaxLatency time.Duration `yaml:"seed_peers_max_latency" validate:"gt=0"`
	SeedPeersIgnored    []string      `yaml:"seed_peers_ignored" validate:"dive,ipv4|cidrv4"`
	SeedSource          string        `yaml:"seed_source" validate:"oneof=api document"`
	SeedDocumentURL     string        `yaml:"seed_document_url" validate:"omitempty,url"`

	// IgnoreIPv6Enabled silences the net.ipv6.conf.all.disable_ipv6 advisory.
	IgnoreIPv6Enabled bool `yaml:"ignore_ipv6_enabled"`

	// PruneDataInterval enables the data pruning task when non-zero. The
	// node is then spawned as a child instead of exec'd.
	PruneDataInterval  time.Duration `yaml:"prune_data_interval" validate:"gte=0"`
	PruneDataOlderThan time.Duration `yaml:"prune_data_older_than" validate:"gt=0"`
	PruneDataDirectory string        `yaml:"prune_data_directory" validate:"required"`

	VisorInstallDir string `yaml:"visor_install_dir" validate:"required"`
	VisorBinary     string `yaml:"visor_binary" validate:"required"`
	GPGBinary       string `yaml:"gpg_binary" validate:"required"`

	LogLevel        string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string `yaml:"log_format" validate:"oneof=console json"`
	LogPath         string `yaml:"log_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	SnapshotListen    string `yaml:"snapshot_listen" validate:"omitempty,hostname_port"`
	SnapshotDirectory string `yaml:"snapshot_directory" validate:"required_with=SnapshotListen"`
	SnapshotInfoURL   string `yaml:"snapshot_info_url" validate:"required_with=SnapshotListen,omitempty,url"`

	// ConfigPath is the YAML file the settings were layered from, if any.
	ConfigPath string `yaml:"-"`
	// Args are passed through to hl-visor.
	Args []string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *MainConfig {
	return &MainConfig{
		VisorConfigPath:            "./visor.json",
		OverrideGossipConfigPath:   "./override_gossip_config.json",
		OverrideGossipConfigMaxAge: 15 * time.Minute,
		SeedPeersAmount:            5,
		// Most of the network sits in Tokyo; 80ms keeps peers on the same continent.
		SeedPeersMaxLatency: 80 * time.Millisecond,
		SeedSource:          "api",
		SeedDocumentURL:     "https://raw.githubusercontent.com/hyperliquid-dex/node/main/README.md",
		PruneDataOlderThan:  4 * time.Hour,
		PruneDataDirectory:  "hl/data",
		VisorInstallDir:     ".",
		VisorBinary:         "hl-visor",
		GPGBinary:           "gpg",
		LogLevel:            "info",
		LogFormat:           "console",
		SnapshotDirectory:   "hl/snapshots",
		SnapshotInfoURL:     "http://127.0.0.1:3001/info",
	}
}

// Chain returns the configured chain, if any.
func (c *MainConfig) Chain() (dataType.Chain, bool) {
	if c.Network == "" {
		return 0, false
	}
	chain, err := dataType.ParseChain(c.Network)
	if err != nil {
		return 0, false
	}
	return chain, true
}

// loadFile layers the YAML file at path over c. Keys absent from the file
// keep their current values.
func (c *MainConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s does not exist: %w", path, err)
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("chain", func(fl validator.FieldLevel) bool {
		_, err := dataType.ParseChain(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every setting and reports all violations at once.
func (c *MainConfig) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return dataType.Errorf(dataType.ConfigurationError, "validate settings", "%s", strings.Join(msgs, "; "))
		}
		return dataType.NewError(dataType.ConfigurationError, "validate settings", err)
	}
	return nil
}
