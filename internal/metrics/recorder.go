// Package metrics records bootstrap diagnostics in a private prometheus
// registry and writes them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hl_bootstrap/internal/dataType"
)

const namespace = "hl_bootstrap"

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	registry *prometheus.Registry

	candidates     prometheus.Gauge
	probeFailures  prometheus.Gauge
	selected       prometheus.Gauge
	peerLatency    *prometheus.GaugeVec
	configChanged  prometheus.Gauge
	binaryDownload prometheus.Counter
	binaryCurrent  prometheus.Counter
	runErrors      *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_candidates",
			Help:      "Seed peers returned by the seed source after filtering.",
		}),
		probeFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_probe_failures",
			Help:      "Seed peers that could not be reached within the latency limit.",
		}),
		selected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_peers_selected",
			Help:      "Seed peers written to the gossip config.",
		}),
		peerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_peer_latency_seconds",
			Help:      "Measured TCP connect latency per reachable seed peer.",
		}, []string{"ip", "label"}),
		configChanged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gossip_config_changed",
			Help:      "1 when the last written gossip config differs from the previous one.",
		}),
		binaryDownload: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visor_downloads_total",
			Help:      "hl-visor binaries downloaded and installed.",
		}),
		binaryCurrent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visor_up_to_date_total",
			Help:      "Provisioning runs that found the installed hl-visor current.",
		}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_errors_total",
			Help:      "Failed bootstrap runs by error kind.",
		}, []string{"kind"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last bootstrap run finished.",
		}),
	}
	r.registry.MustRegister(
		r.candidates,
		r.probeFailures,
		r.selected,
		r.peerLatency,
		r.configChanged,
		r.binaryDownload,
		r.binaryCurrent,
		r.runErrors,
		r.lastRun,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SetCandidates(n int) {
	if r == nil {
		return
	}
	r.candidates.Set(float64(n))
}

func (r *Recorder) SetProbeFailures(n int) {
	if r == nil {
		return
	}
	r.probeFailures.Set(float64(n))
}

func (r *Recorder) ObservePeerLatency(peer dataType.SeedPeer, latency time.Duration) {
	if r == nil {
		return
	}
	r.peerLatency.WithLabelValues(peer.IP.String(), peer.Label).Set(latency.Seconds())
}

func (r *Recorder) SetSelected(n int) {
	if r == nil {
		return
	}
	r.selected.Set(float64(n))
}

func (r *Recorder) SetConfigChanged(changed bool) {
	if r == nil {
		return
	}
	if changed {
		r.configChanged.Set(1)
	} else {
		r.configChanged.Set(0)
	}
}

func (r *Recorder) BinaryDownloaded() {
	if r == nil {
		return
	}
	r.binaryDownload.Inc()
}

func (r *Recorder) BinaryUpToDate() {
	if r == nil {
		return
	}
	r.binaryCurrent.Inc()
}

// RunFinished stamps the run time and counts err by kind when non-nil.
func (r *Recorder) RunFinished(at time.Time, err error) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
	if err != nil {
		r.runErrors.WithLabelValues(dataType.KindOf(err).String()).Inc()
	}
}

// Flush writes the registry to path; prometheus stages and renames the file
// so the collector never reads a partial write. Empty path is a no-op.
func (r *Recorder) Flush(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return dataType.NewError(dataType.IOError, "write metrics textfile", err)
	}
	return nil
}
