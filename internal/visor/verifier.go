package visor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"hl_bootstrap/internal/dataType"
)

// Verifier checks a detached signature over a file.
type Verifier interface {
	Verify(ctx context.Context, signaturePath, dataPath string) error
}

// GPGVerifier runs "gpg --verify sig data" against the caller's keyring.
type GPGVerifier struct {
	Binary string
}

func (v GPGVerifier) Verify(ctx context.Context, signaturePath, dataPath string) error {
	binary := v.Binary
	if binary == "" {
		binary = "gpg"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "--verify", signaturePath, dataPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return dataType.Errorf(dataType.VerificationError, "verify hl-visor signature",
			"%s --verify failed: %w (stderr: %s)", binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
