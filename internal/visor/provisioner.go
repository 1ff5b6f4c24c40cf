// Package visor installs a verified hl-visor binary and manages visor.json.
package visor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hl_bootstrap/internal/dataType"
	"hl_bootstrap/internal/metrics"
	"hl_bootstrap/internal/utils"
)

const (
	MainnetBinaryURL = "https://binaries.hyperliquid.xyz/Mainnet/hl-visor"
	TestnetBinaryURL = "https://binaries.hyperliquid-testnet.xyz/Testnet/hl-visor"

	BinaryName   = "hl-visor"
	ETagFileName = ".hl-visor.etag"

	signatureSuffix = ".asc"
	binaryMode      = 0755
)

// Outcome reports what EnsureCurrent did.
type Outcome int

const (
	UpToDate Outcome = iota
	Installed
)

func (o Outcome) String() string {
	if o == Installed {
		return "installed"
	}
	return "up to date"
}

// BinaryURL returns the distribution URL of hl-visor for chain.
func BinaryURL(chain dataType.Chain) (string, error) {
	switch chain {
	case dataType.Mainnet:
		return MainnetBinaryURL, nil
	case dataType.Testnet:
		return TestnetBinaryURL, nil
	default:
		return "", dataType.Errorf(dataType.ConfigurationError, "resolve hl-visor url", "no hl-visor distribution for %s", chain)
	}
}

type Config struct {
	HTTPClient *http.Client
	Verifier   Verifier
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	// BinaryURLs overrides BinaryURL per chain.
	BinaryURLs map[dataType.Chain]string
}

type Provisioner struct {
	client   *http.Client
	verifier Verifier
	logger   *zap.Logger
	metrics  *metrics.Recorder
	urls     map[dataType.Chain]string
}

func NewProvisioner(cfg Config) *Provisioner {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Verifier == nil {
		cfg.Verifier = GPGVerifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Provisioner{
		client:   cfg.HTTPClient,
		verifier: cfg.Verifier,
		logger:   cfg.Logger.Named("visor"),
		metrics:  cfg.Metrics,
		urls:     cfg.BinaryURLs,
	}
}

func (p *Provisioner) binaryURL(chain dataType.Chain) (string, error) {
	if url, ok := p.urls[chain]; ok {
		return url, nil
	}
	return BinaryURL(chain)
}

// EnsureCurrent makes installDir/hl-visor match the published binary for
// chain. It downloads only when the remote ETag differs from the stored
// one, and replaces the binary and the ETag file only after the signature
// verified. On any failure both files are left as they were.
func (p *Provisioner) EnsureCurrent(ctx context.Context, installDir string, chain dataType.Chain) (Outcome, error) {
	url, err := p.binaryURL(chain)
	if err != nil {
		return UpToDate, err
	}
	binaryPath := filepath.Join(installDir, BinaryName)
	etagPath := filepath.Join(installDir, ETagFileName)

	p.logger.Debug("checking for hl-visor updates", zap.Stringer("chain", chain), zap.String("url", url))

	remoteETag, err := p.fetchETag(ctx, url)
	if err != nil {
		return UpToDate, err
	}
	localETag := p.readETag(etagPath)

	p.logger.Debug("comparing hl-visor etag values",
		zap.String("remote", remoteETag),
		zap.String("local", localETag),
	)
	if localETag != "" && localETag == remoteETag {
		p.logger.Debug("hl-visor appears up to date", zap.Stringer("chain", chain), zap.String("etag", remoteETag))
		p.metrics.BinaryUpToDate()
		return UpToDate, nil
	}

	p.logger.Info("downloading new hl-visor binary", zap.Stringer("chain", chain), zap.String("etag", remoteETag))
	if err := p.install(ctx, url, binaryPath); err != nil {
		return UpToDate, err
	}
	if err := utils.WriteFileAtomic(etagPath, []byte(remoteETag+"\n"), 0644); err != nil {
		return Installed, dataType.NewError(dataType.IOError, "store hl-visor etag", err)
	}

	p.metrics.BinaryDownloaded()
	p.logger.Info("installed hl-visor", zap.String("path", binaryPath), zap.String("etag", remoteETag))
	return Installed, nil
}

func (p *Provisioner) install(ctx context.Context, url, binaryPath string) (err error) {
	binary, err := utils.Stage(binaryPath)
	if err != nil {
		return dataType.NewError(dataType.IOError, "stage hl-visor", err)
	}
	defer func() {
		err = multierr.Append(err, binary.Discard())
	}()

	signature, err := utils.Stage(binaryPath + signatureSuffix)
	if err != nil {
		return dataType.NewError(dataType.IOError, "stage hl-visor signature", err)
	}
	defer func() {
		err = multierr.Append(err, signature.Discard())
	}()

	// No shared context: a failed download does not cancel its sibling.
	var g errgroup.Group
	g.Go(func() error { return p.download(ctx, url, binary) })
	g.Go(func() error { return p.download(ctx, url+signatureSuffix, signature) })
	if err := g.Wait(); err != nil {
		return err
	}

	if err := p.verifier.Verify(ctx, signature.Name(), binary.Name()); err != nil {
		if dataType.KindOf(err) == dataType.KindUnknown {
			err = dataType.NewError(dataType.VerificationError, "verify hl-visor signature", err)
		}
		return err
	}

	if err := binary.Commit(binaryMode); err != nil {
		return dataType.NewError(dataType.IOError, "install hl-visor", err)
	}
	return nil
}

func (p *Provisioner) fetchETag(ctx context.Context, url string) (string, error) {
	const op = "fetch hl-visor etag"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", dataType.NewError(dataType.SourceError, op, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", dataType.NewError(dataType.SourceError, op, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", dataType.Errorf(dataType.SourceError, op, "HEAD %s returned status %d", url, resp.StatusCode)
	}
	etag := strings.TrimSpace(resp.Header.Get("ETag"))
	if etag == "" {
		return "", dataType.Errorf(dataType.SourceError, op, "no etag header in HEAD %s response", url)
	}
	return etag, nil
}

// readETag returns the stored token, or "" when there is none or it cannot
// be read.
func (p *Provisioner) readETag(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("failed to read last stored etag", zap.String("path", path), zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (p *Provisioner) download(ctx context.Context, url string, dst io.Writer) error {
	const op = "download hl-visor"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dataType.NewError(dataType.SourceError, op, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return dataType.NewError(dataType.SourceError, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dataType.Errorf(dataType.SourceError, op, "GET %s returned status %d", url, resp.StatusCode)
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return dataType.NewError(dataType.SourceError, op, fmt.Errorf("copying %s: %w", url, err))
	}
	p.logger.Debug("downloaded", zap.String("url", url), zap.Int64("bytes", n))
	return nil
}
