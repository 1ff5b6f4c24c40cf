package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// StagedFile is a temporary file created next to its final destination so
// that Commit can rename it into place atomically.
type StagedFile struct {
	*os.File
	target    string
	committed bool
}

// Stage creates a temporary file in the directory of target.
func Stage(target string) (*StagedFile, error) {
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating staging file for %s: %w", target, err)
	}
	return &StagedFile{File: f, target: target}, nil
}

// Target returns the final path of the staged file.
func (s *StagedFile) Target() string {
	return s.target
}

// Commit sets mode, syncs, closes and renames the staged file over its
// target. The target is never observed partially written.
func (s *StagedFile) Commit(mode fs.FileMode) error {
	if s.committed {
		return errors.New("staged file already committed")
	}
	if err := s.Chmod(mode); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", s.Name(), err)
	}
	if err := s.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", s.Name(), err)
	}
	if err := s.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("closing %s: %w", s.Name(), err)
	}
	if err := os.Rename(s.Name(), s.target); err != nil {
		return fmt.Errorf("renaming %s into place: %w", s.target, err)
	}
	s.committed = true

	syncDir(filepath.Dir(s.target))
	return nil
}

// Discard closes and removes the staged file unless it was committed.
// Safe to call more than once, and safe to defer right after Stage.
func (s *StagedFile) Discard() error {
	if s.committed {
		return nil
	}
	var err error
	if closeErr := s.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		err = multierr.Append(err, closeErr)
	}
	if removeErr := os.Remove(s.Name()); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		err = multierr.Append(err, removeErr)
	}
	s.committed = true
	return err
}

// WriteFileAtomic writes data to a staged file and renames it over path.
func WriteFileAtomic(path string, data []byte, mode fs.FileMode) (err error) {
	staged, err := Stage(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, staged.Discard())
	}()

	if _, err := staged.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", staged.Name(), err)
	}
	return staged.Commit(mode)
}

// syncDir makes a completed rename durable. Best effort.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
