package visor

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"hl_bootstrap/internal/dataType"
	"hl_bootstrap/internal/utils"
)

// ReadConfig loads visor.json. A missing file is returned as an error
// wrapping fs.ErrNotExist.
func ReadConfig(path string) (dataType.VisorConfig, error) {
	var cfg dataType.VisorConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig atomically writes visor.json for chain.
func WriteConfig(path string, chain dataType.Chain) error {
	data, err := json.Marshal(dataType.VisorConfig{Chain: chain})
	if err != nil {
		return fmt.Errorf("encoding hl-visor config: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0644)
}
