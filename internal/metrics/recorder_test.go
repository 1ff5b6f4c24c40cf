package metrics

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hl_bootstrap/internal/dataType"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.SetCandidates(12)
	r.SetProbeFailures(2)
	r.SetSelected(5)
	r.SetConfigChanged(true)
	r.BinaryDownloaded()
	r.BinaryUpToDate()
	r.BinaryUpToDate()
	r.ObservePeerLatency(dataType.SeedPeer{IP: netip.MustParseAddr("1.2.3.4"), Label: "a"}, 25*time.Millisecond)
	r.RunFinished(time.Unix(1700000000, 0), dataType.NewError(dataType.ThresholdError, "rank", errors.New("none")))

	path := filepath.Join(t.TempDir(), "hl_bootstrap.prom")
	require.NoError(t, r.Flush(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	for _, line := range []string{
		"hl_bootstrap_seed_candidates 12",
		"hl_bootstrap_seed_probe_failures 2",
		"hl_bootstrap_seed_peers_selected 5",
		"hl_bootstrap_gossip_config_changed 1",
		"hl_bootstrap_visor_downloads_total 1",
		"hl_bootstrap_visor_up_to_date_total 2",
		`hl_bootstrap_seed_peer_latency_seconds{ip="1.2.3.4",label="a"} 0.025`,
		`hl_bootstrap_run_errors_total{kind="threshold error"} 1`,
		"hl_bootstrap_last_run_timestamp_seconds",
	} {
		assert.Contains(t, text, line)
	}
}

func TestRecorderFlush(t *testing.T) {
	r := NewRecorder()
	r.SetSelected(3)

	path := filepath.Join(t.TempDir(), "hl_bootstrap.prom")
	require.NoError(t, r.Flush(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hl_bootstrap_seed_peers_selected 3")

	assert.NoError(t, r.Flush(""))
}

func TestRecorderFlushError(t *testing.T) {
	r := NewRecorder()
	err := r.Flush(filepath.Join(t.TempDir(), "missing", "out.prom"))
	assert.Equal(t, dataType.IOError, dataType.KindOf(err))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SetCandidates(1)
		r.SetSelected(1)
		r.BinaryDownloaded()
		r.RunFinished(time.Now(), errors.New("x"))
		assert.NoError(t, r.Flush("/nonexistent/x.prom"))
	})
}
