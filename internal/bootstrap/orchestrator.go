// Package bootstrap sequences one hl-bootstrap run: choose seed peers when
// the gossip config is stale, install a verified hl-visor, then hand over
// control to it.
package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"hl_bootstrap/internal/action"
	"hl_bootstrap/internal/check"
	"hl_bootstrap/internal/config"
	"hl_bootstrap/internal/dataType"
	"hl_bootstrap/internal/metrics"
	"hl_bootstrap/internal/seed"
	"hl_bootstrap/internal/speedtest"
	"hl_bootstrap/internal/supervisor"
	"hl_bootstrap/internal/utils"
	"hl_bootstrap/internal/visor"
)

// SourceFactory returns the seed source for a chain.
type SourceFactory func(chain dataType.Chain) (seed.Source, error)

type Ranker interface {
	Rank(ctx context.Context, candidates []dataType.SeedPeer, want int, timeout time.Duration) (speedtest.Result, error)
}

type Provisioner interface {
	EnsureCurrent(ctx context.Context, installDir string, chain dataType.Chain) (visor.Outcome, error)
}

// Maintenance is a periodic background task that runs until ctx ends.
type Maintenance interface {
	Run(ctx context.Context, dir string, interval, maxAge time.Duration) error
}

type SnapshotService interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Logger      *zap.Logger
	Clock       clock.Clock
	Sysctl      check.SysctlReader
	Sources     SourceFactory
	Prober      Ranker
	Provisioner Provisioner
	Runner      supervisor.Runner
	Pruner      Maintenance
	Snapshots   SnapshotService
	Metrics     *metrics.Recorder
}

type Orchestrator struct {
	cfg *config.MainConfig
	Deps
}

func New(cfg *config.MainConfig, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Sysctl == nil {
		deps.Sysctl = utils.ReadSysctl
	}
	return &Orchestrator{cfg: cfg, Deps: deps}
}

// Run performs the whole run. It returns the exit code of the supervised
// child when one was spawned, and 0 when there was nothing to launch. When
// hl-visor replaces this process, Run does not return on success.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	chain, err := o.Prepare(ctx)
	if err == nil {
		err = o.provision(ctx, chain)
	}
	o.finish(err)
	if err != nil {
		return 1, err
	}
	return o.launch(ctx)
}

// Prepare runs everything up to provisioning: the IPv6 advisory, chain
// resolution, the freshness gate and, when stale, seed peer acquisition.
func (o *Orchestrator) Prepare(ctx context.Context) (dataType.Chain, error) {
	if !o.cfg.IgnoreIPv6Enabled {
		check.IPv6Advisory(o.Sysctl, o.Logger)
	}

	chain, err := o.resolveChain()
	if err != nil {
		return 0, err
	}
	o.Logger.Info("resolved chain", zap.Stringer("chain", chain))

	report := check.ConfigFreshness(o.cfg.OverrideGossipConfigPath, o.cfg.OverrideGossipConfigMaxAge, o.Clock.Now())
	if report.Err != nil {
		o.Logger.Warn("unable to stat gossip config, treating it as stale",
			zap.String("path", o.cfg.OverrideGossipConfigPath),
			zap.Error(report.Err),
		)
	}
	if report.Verdict == check.Fresh {
		o.Logger.Info("gossip config is fresh, skipping seed peer selection",
			zap.String("path", o.cfg.OverrideGossipConfigPath),
			zap.Duration("age", report.Age),
			zap.Duration("max_age", o.cfg.OverrideGossipConfigMaxAge),
		)
		return chain, nil
	}

	peers, err := o.acquire(ctx, chain)
	if err != nil {
		return chain, err
	}
	return chain, o.writeGossipConfig(chain, peers)
}

// resolveChain prefers the configured network and records it in visor.json
// when that file does not exist yet; otherwise the chain comes from
// visor.json.
func (o *Orchestrator) resolveChain() (dataType.Chain, error) {
	const op = "resolve chain"
	path := o.cfg.VisorConfigPath

	existing, readErr := visor.ReadConfig(path)
	if chain, ok := o.cfg.Chain(); ok {
		switch {
		case errors.Is(readErr, fs.ErrNotExist):
			if err := visor.WriteConfig(path, chain); err != nil {
				return 0, dataType.NewError(dataType.IOError, "write hl-visor config", err)
			}
			o.Logger.Info("wrote hl-visor config", zap.String("path", path), zap.Stringer("chain", chain))
		case readErr == nil && existing.Chain != chain:
			o.Logger.Warn("hl-visor config names a different chain",
				zap.String("path", path),
				zap.Stringer("configured", chain),
				zap.Stringer("visor_config", existing.Chain),
			)
		}
		return chain, nil
	}

	if readErr != nil {
		return 0, dataType.Errorf(dataType.ConfigurationError, op,
			"no network configured and unable to read %s: %w", path, readErr)
	}
	return existing.Chain, nil
}

func (o *Orchestrator) acquire(ctx context.Context, chain dataType.Chain) ([]dataType.SeedPeer, error) {
	ignored, err := dataType.NewIgnoreSet(o.cfg.SeedPeersIgnored)
	if err != nil {
		return nil, dataType.NewError(dataType.ConfigurationError, "parse ignored seed peers", err)
	}

	source, err := o.Sources(chain)
	if err != nil {
		return nil, err
	}
	candidates, err := source.Fetch(ctx, ignored)
	if err != nil {
		if dataType.KindOf(err) == dataType.KindUnknown {
			err = dataType.NewError(dataType.SourceError, "fetch seed peers", err)
		}
		return nil, err
	}
	o.Metrics.SetCandidates(len(candidates))
	o.Logger.Info("fetched seed peers",
		zap.String("source", source.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("ignored_entries", ignored.Len()),
	)
	if len(candidates) == 0 {
		o.Logger.Warn("seed source returned no peers, writing gossip config without root peers",
			zap.Stringer("chain", chain))
		return nil, nil
	}

	result, err := o.Prober.Rank(ctx, candidates, o.cfg.SeedPeersAmount, o.cfg.SeedPeersMaxLatency)
	if err != nil {
		return nil, dataType.NewError(dataType.SourceError, "rank seed peers", err)
	}
	for _, m := range result.Measurements {
		if m.OK() {
			o.Metrics.ObservePeerLatency(m.Peer, m.Latency)
		}
	}
	o.Metrics.SetProbeFailures(result.Failures())

	if len(result.Ranked) == 0 {
		return nil, dataType.Errorf(dataType.ThresholdError, "rank seed peers",
			"none of the %d seed peers connected within %s, consider raising --seed-peers-max-latency",
			len(candidates), o.cfg.SeedPeersMaxLatency)
	}

	peers := make([]dataType.SeedPeer, 0, len(result.Ranked))
	for _, ranked := range result.Ranked {
		peers = append(peers, ranked.Peer)
		o.Logger.Info("selected seed peer", zap.Stringer("peer", ranked.Peer), zap.Duration("latency", ranked.Latency))
	}
	return peers, nil
}

// writeGossipConfig regenerates the modeled fields and keeps any other
// field of the previous config for the same chain.
func (o *Orchestrator) writeGossipConfig(chain dataType.Chain, peers []dataType.SeedPeer) error {
	path := o.cfg.OverrideGossipConfigPath

	gossip := dataType.NewGossipConfig(chain)
	if previous := o.readPreviousGossipConfig(path); previous != nil && previous.Chain == chain {
		gossip.Unknown = previous.Unknown
	}
	gossip.SetPeers(peers)

	data, err := json.MarshalIndent(gossip, "", "  ")
	if err != nil {
		return dataType.NewError(dataType.IOError, "encode gossip config", err)
	}

	changed := true
	if digest, err := utils.FileDigest(path); err == nil {
		changed = digest != utils.ContentDigest(data)
	}
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return dataType.NewError(dataType.IOError, "write gossip config", err)
	}

	o.Metrics.SetSelected(len(peers))
	o.Metrics.SetConfigChanged(changed)
	o.Logger.Info("wrote gossip config",
		zap.String("path", path),
		zap.Int("root_peers", len(gossip.RootNodeIPs)),
		zap.Bool("changed", changed),
	)
	return nil
}

func (o *Orchestrator) readPreviousGossipConfig(path string) *dataType.GossipConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			o.Logger.Warn("unable to read previous gossip config", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	var previous dataType.GossipConfig
	if err := json.Unmarshal(data, &previous); err != nil {
		o.Logger.Warn("ignoring unparsable previous gossip config", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &previous
}

func (o *Orchestrator) provision(ctx context.Context, chain dataType.Chain) error {
	outcome, err := o.Provisioner.EnsureCurrent(ctx, o.cfg.VisorInstallDir, chain)
	if err != nil {
		return err
	}
	o.Logger.Info("hl-visor provisioned", zap.Stringer("outcome", outcome), zap.String("dir", o.cfg.VisorInstallDir))
	return nil
}

func (o *Orchestrator) finish(err error) {
	o.Metrics.RunFinished(o.Clock.Now(), err)
	if flushErr := o.Metrics.Flush(o.cfg.MetricsTextfile); flushErr != nil {
		o.Logger.Warn("unable to write metrics", zap.Error(flushErr))
	}
}

func (o *Orchestrator) launch(ctx context.Context) (int, error) {
	mode := action.Decide(action.Launch{
		Args:          o.cfg.Args,
		PruneInterval: o.cfg.PruneDataInterval,
		SnapshotAddr:  o.cfg.SnapshotListen,
	})
	o.Logger.Info("setup done", zap.Stringer("launch", mode), zap.Strings("args", o.cfg.Args))

	switch mode {
	case action.ExecReplace:
		return 1, o.Runner.Exec(o.cfg.VisorBinary, o.cfg.Args)
	case action.SpawnAndSupervise:
		o.startBackground()
		// Signals reach the child through forwarding, not cancellation.
		return o.Runner.Spawn(context.WithoutCancel(ctx), o.cfg.VisorBinary, o.cfg.Args)
	default:
		return 0, nil
	}
}

// startBackground starts the detached tasks that live as long as the
// process. They are never joined.
func (o *Orchestrator) startBackground() {
	if o.cfg.PruneDataInterval > 0 && o.Pruner != nil {
		go func() {
			err := o.Pruner.Run(context.Background(), o.cfg.PruneDataDirectory, o.cfg.PruneDataInterval, o.cfg.PruneDataOlderThan)
			if err != nil {
				o.Logger.Error("prune worker stopped", zap.Error(err))
			}
		}()
	}
	if o.cfg.SnapshotListen != "" && o.Snapshots != nil {
		go func() {
			if err := o.Snapshots.ListenAndServe(context.Background(), o.cfg.SnapshotListen); err != nil {
				o.Logger.Error("snapshot server stopped", zap.Error(err))
			}
		}()
	}
}
