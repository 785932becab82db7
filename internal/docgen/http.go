package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/docsmith/docsync/internal/models"
)

// HTTPService calls an internal documentation service over HTTP. It
// implements Generator, Classifier and Summarizer against the service's
// /generate, /classify and /summarize endpoints.
type HTTPService struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewHTTPService(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "docgen").Logger(),
	}
}

func (s *HTTPService) Generate(ctx context.Context, pc ProjectContext) (Document, error) {
	var doc Document
	if err := s.post(ctx, "/generate", pc, &doc); err != nil {
		return Document{}, &GenerationError{Op: "generate", Err: err}
	}
	if doc.Markdown == "" {
		return Document{}, &GenerationError{Op: "generate", Err: fmt.Errorf("service returned empty document")}
	}
	return doc, nil
}

func (s *HTTPService) Classify(ctx context.Context, oldDef, newDef json.RawMessage) (Verdict, error) {
	req := struct {
		Old json.RawMessage `json:"old"`
		New json.RawMessage `json:"new"`
	}{Old: oldDef, New: newDef}

	var verdict Verdict
	if err := s.post(ctx, "/classify", req, &verdict); err != nil {
		return Verdict{}, &GenerationError{Op: "classify", Err: err}
	}
	return verdict, nil
}

func (s *HTTPService) Summarize(ctx context.Context, stats models.RunStats, errs []string) (string, error) {
	req := struct {
		Stats  models.RunStats `json:"stats"`
		Errors []string        `json:"errors,omitempty"`
	}{Stats: stats, Errors: errs}

	var resp struct {
		Summary string `json:"summary"`
	}
	if err := s.post(ctx, "/summarize", req, &resp); err != nil {
		return "", &GenerationError{Op: "summarize", Err: err}
	}
	return resp.Summary, nil
}

func (s *HTTPService) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	s.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(started)).Msg("docs service call")

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("docs service returned HTTP %d: %s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
