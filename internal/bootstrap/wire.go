package bootstrap

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"hl_bootstrap/internal/config"
	"hl_bootstrap/internal/dataType"
	"hl_bootstrap/internal/metrics"
	"hl_bootstrap/internal/prune"
	"hl_bootstrap/internal/seed"
	"hl_bootstrap/internal/server"
	"hl_bootstrap/internal/speedtest"
	"hl_bootstrap/internal/supervisor"
	"hl_bootstrap/internal/utils"
	"hl_bootstrap/internal/visor"
)

const seedRequestTimeout = 30 * time.Second

// DefaultDeps builds the production collaborators for cfg.
func DefaultDeps(cfg *config.MainConfig, logger *zap.Logger) Deps {
	clk := clock.New()
	recorder := metrics.NewRecorder()
	seedClient := &http.Client{Timeout: seedRequestTimeout}
	// Downloads are bounded by the run context only.
	downloadClient := &http.Client{}

	return Deps{
		Logger: logger,
		Clock:  clk,
		Sysctl: utils.ReadSysctl,
		Sources: func(chain dataType.Chain) (seed.Source, error) {
			return seed.New(chain, seed.Method(cfg.SeedSource), seed.Options{
				HTTPClient:  seedClient,
				Logger:      logger,
				DocumentURL: cfg.SeedDocumentURL,
			})
		},
		Prober: speedtest.New(speedtest.Config{Logger: logger}),
		Provisioner: visor.NewProvisioner(visor.Config{
			HTTPClient: downloadClient,
			Verifier:   visor.GPGVerifier{Binary: cfg.GPGBinary},
			Logger:     logger,
			Metrics:    recorder,
		}),
		Runner:    supervisor.NewProcess(cfg.VisorInstallDir, logger),
		Pruner:    prune.NewWorker(clk, logger),
		Snapshots: server.NewSnapshotServer(cfg.SnapshotDirectory, cfg.SnapshotInfoURL, nil, logger),
		Metrics:   recorder,
	}
}
