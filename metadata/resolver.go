// Package metadata resolves token metadata documents from content
// gateways, with bounded concurrency and per-item error isolation.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/observability"
)

// maxDocumentBytes bounds how much of a metadata document is read. Gateway
// responses larger than this are treated as malformed.
const maxDocumentBytes = 1 << 20

// Document is a token metadata document. ImageURL is the image URI already
// rewritten to a gateway URL; Image keeps the original value.
type Document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ImageURL    string `json:"imageUrl"`
}

// Result pairs one URI with its resolution outcome. Err is non-nil when
// that URI failed; other items in the batch are unaffected.
type Result struct {
	URI      string
	Document Document
	Err      error
}

// Config configures a Resolver. Zero values are filled with defaults.
type Config struct {
	// GatewayHost is the HTTPS content gateway host, e.g.
	// "gateway.pinata.cloud".
	GatewayHost string

	// FetchTimeout bounds a single document fetch. Default: 10s.
	FetchTimeout time.Duration

	// Workers bounds concurrent fetches in a batch. Default: 8.
	Workers int

	// MemoSize is the size of the URI memoization cache. Default: 1024.
	MemoSize int
}

func (c *Config) applyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MemoSize <= 0 {
		c.MemoSize = 1024
	}
}

// Resolver fetches metadata documents through a content gateway. Successful
// resolutions are memoized by URI, so repeated listing refreshes do not
// refetch immutable content-addressed documents.
type Resolver struct {
	logger logging.Logger
	cfg    Config
	client *http.Client
	pool   pond.Pool
	memo   *lru.Cache[string, Document]
}

// NewResolver creates a Resolver. The worker pool lives until Close.
func NewResolver(logger logging.Logger, cfg Config) (*Resolver, error) {
	cfg.applyDefaults()
	if cfg.GatewayHost == "" {
		return nil, fmt.Errorf("metadata resolver requires a gateway host")
	}

	memo, err := lru.New[string, Document](cfg.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("creating memo cache: %w", err)
	}

	return &Resolver{
		logger: logging.ForComponent(logger, logging.ComponentResolver),
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		pool:   pond.NewPool(cfg.Workers),
		memo:   memo,
	}, nil
}

// Close stops the worker pool, waiting for in-flight fetches.
func (r *Resolver) Close() {
	r.pool.StopAndWait()
}

// Resolve fetches and decodes the document behind one URI. Failures are
// classified as ErrMalformed (bad URI or bad JSON) or ErrUnreachable
// (transport failure, non-2xx status).
func (r *Resolver) Resolve(ctx context.Context, uri string) (Document, error) {
	if doc, ok := r.memo.Get(uri); ok {
		observability.MetadataResolvesTotal.WithLabelValues("memo_hit").Inc()
		return doc, nil
	}

	start := time.Now()
	doc, err := r.fetch(ctx, uri)
	outcome := "success"
	switch {
	case err == nil:
		r.memo.Add(uri, doc)
	case isMalformed(err):
		outcome = "malformed"
	default:
		outcome = "unreachable"
	}
	observability.MetadataResolvesTotal.WithLabelValues(outcome).Inc()
	observability.MetadataResolveDurationSeconds.WithLabelValues(outcome).
		Observe(time.Since(start).Seconds())

	if err != nil {
		r.logger.Warn().
			Err(err).
			Str(logging.FieldURI, uri).
			Msg("metadata resolution failed")
		return Document{}, err
	}
	return doc, nil
}

// ResolveBatch resolves many URIs concurrently with the configured worker
// bound. The returned slice is positionally aligned with uris; one failed
// item never fails the batch.
func (r *Resolver) ResolveBatch(ctx context.Context, uris []string) []Result {
	results := make([]Result, len(uris))
	group := r.pool.NewGroup()

	for i, uri := range uris {
		group.Submit(func() {
			doc, err := r.Resolve(ctx, uri)
			results[i] = Result{URI: uri, Document: doc, Err: err}
		})
	}

	_ = group.Wait()
	return results
}

func (r *Resolver) fetch(ctx context.Context, uri string) (Document, error) {
	url, err := GatewayURL(r.cfg.GatewayHost, uri)
	if err != nil {
		return Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: building request for %s: %v", ErrMalformed, uri, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: fetching %s: %v", ErrUnreachable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("%w: gateway returned %d for %s", ErrUnreachable, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("%w: reading %s: %v", ErrUnreachable, url, err)
	}
	if len(body) > maxDocumentBytes {
		return Document{}, fmt.Errorf("%w: document at %s exceeds %d bytes", ErrMalformed, url, maxDocumentBytes)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: decoding %s: %v", ErrMalformed, url, err)
	}

	if doc.Image != "" {
		imageURL, err := GatewayURL(r.cfg.GatewayHost, doc.Image)
		if err == nil {
			doc.ImageURL = imageURL
		} else {
			// Keep the document; only the image pointer is bad.
			r.logger.Debug().
				Str(logging.FieldURI, doc.Image).
				Msg("image URI not rewritable, leaving as-is")
			doc.ImageURL = doc.Image
		}
	}

	return doc, nil
}

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
