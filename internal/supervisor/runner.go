// Package supervisor hands control to hl-visor, either by replacing the
// current process image or by running it as a supervised child.
package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"hl_bootstrap/internal/dataType"
)

// Runner starts the supervised binary.
type Runner interface {
	// Exec replaces the current process. It only returns on failure.
	Exec(name string, args []string) error
	// Spawn runs name as a child, forwarding SIGINT and SIGTERM to it, and
	// returns its exit code once it exits.
	Spawn(ctx context.Context, name string, args []string) (int, error)
}

// Process is the Runner backed by the operating system.
type Process struct {
	// InstallDir holds the verified hl-visor; it is searched before PATH.
	InstallDir string
	Logger     *zap.Logger

	exec func(argv0 string, argv []string, envv []string) error
}

func NewProcess(installDir string, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{
		InstallDir: installDir,
		Logger:     logger.Named("supervisor"),
		exec:       unix.Exec,
	}
}

// Resolve finds name in InstallDir, then on PATH.
func (p *Process) Resolve(name string) (string, error) {
	if p.InstallDir != "" && !strings.ContainsRune(name, os.PathSeparator) {
		if candidate, err := exec.LookPath(filepath.Join(p.InstallDir, name)); err == nil {
			return filepath.Abs(candidate)
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", dataType.NewError(dataType.ConfigurationError, "locate "+name, err)
	}
	return path, nil
}

func (p *Process) Exec(name string, args []string) error {
	path, err := p.Resolve(name)
	if err != nil {
		return err
	}
	argv := append([]string{name}, args...)
	p.Logger.Info("executing", zap.String("path", path), zap.Strings("args", args))

	err = p.exec(path, argv, os.Environ())
	return dataType.NewError(dataType.IOError, "exec "+name, err)
}

func (p *Process) Spawn(ctx context.Context, name string, args []string) (int, error) {
	path, err := p.Resolve(name)
	if err != nil {
		return -1, err
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(signals)

	if err := cmd.Start(); err != nil {
		return -1, dataType.NewError(dataType.IOError, "spawn "+name, err)
	}
	p.Logger.Info("spawned", zap.String("path", path), zap.Int("pid", cmd.Process.Pid), zap.Strings("args", args))

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	cancelled := ctx.Done()
	for {
		select {
		case sig := <-signals:
			p.Logger.Info("forwarding signal", zap.Stringer("signal", sig))
			_ = cmd.Process.Signal(sig)
		case <-cancelled:
			cancelled = nil
			_ = cmd.Process.Signal(unix.SIGTERM)
		case err := <-done:
			code, err := exitCode(err)
			p.Logger.Info("child exited", zap.Int("code", code), zap.Error(err))
			return code, err
		}
	}
}

// exitCode maps a Wait result to a shell-style exit code. A child that
// exits non-zero is not an error of the supervisor.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, dataType.NewError(dataType.IOError, "wait for child", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
