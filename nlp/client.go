package nlp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/annotit/core"
)

// maxResponseSize bounds the response body read from the service.
const maxResponseSize = 64 << 20

// Client is an Annotator talking to a REST annotation service.
type Client struct {
	cfg     *Config
	dialect Dialect
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

var _ Annotator = (*Client)(nil)

// NewClient validates cfg and returns a client for it.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := DialectFor(cfg.RequestMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		dialect: dialect.WithKeys(cfg.OuterKey, cfg.ResultKey),
		http:    httpClient,
		logger:  slog.Default().With("component", "nlp", "dialect", dialect.Kind.String()),
		now:     time.Now,
	}, nil
}

// Annotate implements Annotator. The document is posted to every endpoint
// in turn. For the default dialect the last endpoint's entries win; gate-nlp
// entries of all endpoints are concatenated under one id sequence, each
// tagged with the URL that produced it.
func (c *Client) Annotate(ctx context.Context, docID, text string) (*core.AnnotationResult, error) {
	payload, err := c.dialect.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request for %s: %w", core.ErrAnnotationService, docID, err)
	}

	timestamp := c.now().Format(time.TimeOnly)
	var entries []core.AnnotationEntry
	for _, endpoint := range c.cfg.Endpoints {
		deco := decoration{
			text:        text,
			pipelineURL: endpoint,
			timestamp:   timestamp,
			firstID:     len(entries),
		}
		got, err := c.annotateAt(ctx, docID, endpoint, payload, deco)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s: %s: %w", core.ErrAnnotationService, docID, endpoint, err)
		}
		if c.dialect.Kind == DialectGate {
			entries = append(entries, got...)
		} else {
			entries = got
		}
	}

	if entries == nil {
		entries = []core.AnnotationEntry{}
	}
	return &core.AnnotationResult{SourceDocID: docID, Entries: entries}, nil
}

func (c *Client) annotateAt(ctx context.Context, docID, endpoint string, payload []byte, deco decoration) ([]core.AnnotationEntry, error) {
	var entries []core.AnnotationEntry
	err := RetryWithBackoff(ctx, func() error {
		body, err := c.post(ctx, endpoint, payload)
		if err != nil {
			c.logger.Debug("annotation request failed", "doc_id", docID, "endpoint", endpoint, "error", err)
			return err
		}
		entries, err = c.dialect.Extract(body, deco)
		return err
	}, c.cfg.MaxRetries+1, c.cfg.RetryDelay)
	return entries, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", c.dialect.ContentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}
	return body, nil
}

// Close implements Annotator.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
