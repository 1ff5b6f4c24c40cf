package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hl_bootstrap/internal/dataType"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestSpawnPropagatesExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fake-visor", `exit "$1"`)

	p := NewProcess(dir, nil)
	for _, want := range []int{0, 3} {
		code, err := p.Spawn(context.Background(), "fake-visor", []string{strconv.Itoa(want)})
		require.NoError(t, err)
		assert.Equal(t, want, code)
	}
}

func TestSpawnTerminatesChildOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fake-visor", `trap "exit 7" TERM
while true; do sleep 0.05; done`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	code, err := NewProcess(dir, nil).Spawn(ctx, "fake-visor", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fake-visor", "exit 0")

	p := NewProcess(dir, nil)
	path, err := p.Resolve("fake-visor")
	require.NoError(t, err)
	assert.Equal(t, script, path)

	_, err = NewProcess("", nil).Resolve("fake-visor-not-on-path")
	assert.Equal(t, dataType.ConfigurationError, dataType.KindOf(err))
}

func TestResolvePrefersInstallDirOverPath(t *testing.T) {
	stale := t.TempDir()
	writeScript(t, stale, "fake-visor", "exit 1")
	t.Setenv("PATH", stale)

	installed := t.TempDir()
	script := writeScript(t, installed, "fake-visor", "exit 0")

	path, err := NewProcess(installed, nil).Resolve("fake-visor")
	require.NoError(t, err)
	assert.Equal(t, script, path)

	path, err = NewProcess(t.TempDir(), nil).Resolve("fake-visor")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(stale, "fake-visor"), path)
}

func TestExec(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fake-visor", "exit 0")

	p := NewProcess(dir, nil)
	var gotPath string
	var gotArgv []string
	p.exec = func(argv0 string, argv []string, envv []string) error {
		gotPath, gotArgv = argv0, argv
		return errors.New("exec format error")
	}

	err := p.Exec("fake-visor", []string{"run-non-validator", "--replica-cmds-style", "recent-actions"})
	assert.Equal(t, dataType.IOError, dataType.KindOf(err))
	assert.Equal(t, script, gotPath)
	assert.Equal(t, []string{"fake-visor", "run-non-validator", "--replica-cmds-style", "recent-actions"}, gotArgv)
}
