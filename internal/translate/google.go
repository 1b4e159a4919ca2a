package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://translate.googleapis.com/translate_a/single"
	defaultTimeout  = 5 * time.Second
	maxResponseSize = 1 << 20
)

type GoogleConfig struct {
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Google calls the public gtx translation endpoint.
type Google struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

func NewGoogle(cfg GoogleConfig, log *slog.Logger) *Google {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Google{
		endpoint: cfg.Endpoint,
		client:   cfg.HTTPClient,
		log:      log.With("component", "translate"),
	}
}

func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || Same(source, target) {
		return text, nil
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	out, err := parseResponse(body)
	if err != nil {
		return "", err
	}
	g.log.Debug("translated", "source", source, "target", target, "chars", len(text), "duration", time.Since(start))
	return out, nil
}

// parseResponse joins the first column of every sentence row in the first
// element of the gtx response array.
func parseResponse(body []byte) (string, error) {
	var data []json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyResponse
	}

	var rows [][]any
	if err := json.Unmarshal(data[0], &rows); err != nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if s, ok := row[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
