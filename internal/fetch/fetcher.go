// Package fetch turns a classified reference into normalized text and metadata.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"contentflow/internal/config"
	"contentflow/internal/models"
	"contentflow/internal/retry"
	"contentflow/internal/util"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 32 << 20

// Service names double as rate limiter keys and error prefixes.
const (
	serviceReader      = "reader"
	serviceMetadata    = "metadata"
	serviceUnroll      = "tweet-unroll"
	serviceSyndication = "tweet-syndication"
	serviceDownload    = "download"
)

// ObjectReader loads uploaded documents referenced as s3://bucket/key.
type ObjectReader interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type Options struct {
	ReaderURL           string
	MetadataURL         string
	TweetUnrollURL      string
	TweetSyndicationURL string
	Timeout             time.Duration
	RatePerSec          float64
	Retry               retry.Policy
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		ReaderURL:           cfg.ReaderURL,
		MetadataURL:         cfg.MetadataURL,
		TweetUnrollURL:      cfg.TweetUnrollURL,
		TweetSyndicationURL: cfg.TweetSyndicationURL,
		Timeout:             cfg.FetchTimeout(),
		RatePerSec:          cfg.FetchRatePerSec,
		Retry:               retry.FromConfig(cfg.Retry.Fetch),
	}
}

type Fetcher struct {
	opts    Options
	client  *http.Client
	objects ObjectReader

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(opts Options, client *http.Client, objects ObjectReader) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Fetcher{opts: opts, client: client, objects: objects, limiters: map[string]*rate.Limiter{}}
}

// Fetch produces the bundle for one item. Errors wrapped with retry.Permanent
// (unsupported type or extension, no text) must not be retried by the caller.
func (f *Fetcher) Fetch(ctx context.Context, t models.ContentType, content string) (Bundle, error) {
	var (
		b   Bundle
		err error
	)
	switch t {
	case models.TypePage:
		b, err = f.fetchPage(ctx, content)
	case models.TypeTweet:
		b, err = f.fetchTweet(ctx, content)
	case models.TypeNote:
		b, err = fetchNote(content)
	case models.TypeDocument:
		b, err = f.fetchDocument(ctx, content)
	case models.TypeNotion:
		return Bundle{}, retry.Permanent(fmt.Errorf("fetch %s: %w", t, util.ErrUnsupportedType))
	default:
		return Bundle{}, retry.Permanent(fmt.Errorf("fetch %q: %w", t, util.ErrClassification))
	}
	if err != nil {
		return Bundle{}, err
	}
	b.ContentToVectorize = util.SanitizeText(b.ContentToVectorize)
	b.ContentToSave = util.SanitizeText(b.ContentToSave)
	if b.ContentToVectorize == "" {
		return Bundle{}, retry.Permanent(fmt.Errorf("fetch %s: %w", t, util.ErrNoExtractableText))
	}
	return b, b.Validate()
}

func (f *Fetcher) limiter(service string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[service]
	if !ok {
		limit := rate.Inf
		if f.opts.RatePerSec > 0 {
			limit = rate.Limit(f.opts.RatePerSec)
		}
		l = rate.NewLimiter(limit, 1)
		f.limiters[service] = l
	}
	return l
}

// get runs getOnce under the fetch retry policy.
func (f *Fetcher) get(ctx context.Context, service, rawURL, accept string) ([]byte, error) {
	var body []byte
	err := f.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = f.getOnce(ctx, service, rawURL, accept)
		return err
	})
	return body, err
}

func (f *Fetcher) getOnce(ctx context.Context, service, rawURL, accept string) ([]byte, error) {
	if err := f.limiter(service).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limiter: %w", service, err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s build request: %w", service, err))
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "contentflow/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(service, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", service, err)
	}
	return body, nil
}
