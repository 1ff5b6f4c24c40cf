package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultInfoURL = "http://127.0.0.1:3001/info"

	snapshotL4       = "l4Snapshots"
	snapshotReferrer = "referrerStates"
)

// SnapshotServer asks the local node to write a file snapshot and hands the
// result to the caller, either as a path or as the file contents.
type SnapshotServer struct {
	dir     string
	infoURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewSnapshotServer(dir, infoURL string, client *http.Client, logger *zap.Logger) *SnapshotServer {
	if infoURL == "" {
		infoURL = DefaultInfoURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotServer{dir: dir, infoURL: infoURL, client: client, logger: logger.Named("snapshot")}
}

type snapshotRequest struct {
	Type                 string `json:"type"`
	IncludeUsers         *bool  `json:"includeUsers,omitempty"`
	IncludeTriggerOrders *bool  `json:"includeTriggerOrders,omitempty"`
}

type fileSnapshotPayload struct {
	Type                  string          `json:"type"`
	Request               snapshotRequest `json:"request"`
	IncludeHeightInOutput bool            `json:"includeHeightInOutput"`
	OutPath               string          `json:"outPath"`
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (s *SnapshotServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *SnapshotServer) ListenAndServe(ctx context.Context, addr string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("snapshot server listening", zap.String("addr", addr), zap.String("dir", s.dir))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *SnapshotServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	payload, stream, err := s.buildPayload(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	if err := s.requestSnapshot(r.Context(), payload); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("snapshot written", zap.String("type", payload.Request.Type), zap.String("path", payload.OutPath))

	w.Header().Set("Content-Type", "application/json")
	if !stream {
		_ = json.NewEncoder(w).Encode(map[string]string{"path": payload.OutPath})
		return
	}

	f, err := os.Open(payload.OutPath)
	if err != nil {
		w.Header().Del("Content-Type")
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("streaming snapshot failed", zap.String("path", payload.OutPath), zap.Error(err))
	}
}

func (s *SnapshotServer) buildPayload(r *http.Request) (fileSnapshotPayload, bool, error) {
	query := r.URL.Query()

	includeHeight, err := queryBool(query.Get("includeHeightInOutput"), true)
	if err != nil {
		return fileSnapshotPayload{}, false, err
	}
	stream, err := queryBool(query.Get("streamContents"), false)
	if err != nil {
		return fileSnapshotPayload{}, false, err
	}

	req := snapshotRequest{Type: query.Get("type")}
	switch req.Type {
	case snapshotL4:
		users, err := queryBool(query.Get("includeUsers"), false)
		if err != nil {
			return fileSnapshotPayload{}, false, err
		}
		triggers, err := queryBool(query.Get("includeTriggerOrders"), false)
		if err != nil {
			return fileSnapshotPayload{}, false, err
		}
		req.IncludeUsers, req.IncludeTriggerOrders = &users, &triggers
	case snapshotReferrer:
	default:
		return fileSnapshotPayload{}, false, &requestError{msg: fmt.Sprintf("unknown snapshot type %q", req.Type)}
	}

	outPath, err := s.snapshotPath(req.Type)
	if err != nil {
		return fileSnapshotPayload{}, false, err
	}
	return fileSnapshotPayload{
		Type:                  "fileSnapshot",
		Request:               req,
		IncludeHeightInOutput: includeHeight,
		OutPath:               outPath,
	}, stream, nil
}

// snapshotPath returns <dir>/<type>_<uuid v7>.json as an absolute path, so
// the node resolves it the same way regardless of its working directory.
func (s *SnapshotServer) snapshotPath(kind string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(s.dir, kind+"_"+id.String()+".json"))
}

func (s *SnapshotServer) requestSnapshot(ctx context.Context, payload fileSnapshotPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.infoURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting file snapshot: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("node info endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *SnapshotServer) fail(w http.ResponseWriter, status int, err error) {
	var reqErr *requestError
	if status == http.StatusBadRequest && !errors.As(err, &reqErr) {
		status = http.StatusInternalServerError
	}
	s.logger.Error("http handler error", zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}

func queryBool(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &requestError{msg: fmt.Sprintf("invalid boolean %q", raw)}
	}
	return v, nil
}
