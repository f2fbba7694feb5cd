package utils

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type HTTPClientConfig struct {
	Timeout   time.Duration
	KATimeout time.Duration
	UserAgent string
	Retries   int
	RetryWait time.Duration
	RateLimit int64 // bytes per second, 0 disables throttling
}

// MeloHTTPClient wraps the stdlib client with the transport policy all
// melo downloads share: https only, a bounded per request timeout, and
// retries with exponential backoff on transient failures. The embedded
// Client is exported so tests can swap in a server trusted one.
type MeloHTTPClient struct {
	Client  *http.Client
	config  HTTPClientConfig
	limiter *rate.Limiter
}

func NewMeloHTTPClient(cfg HTTPClientConfig) *MeloHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = DefaultKATimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		Proxy:               http.ProxyFromEnvironment,
	}
	c := &MeloHTTPClient{
		Client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 64*1024 {
			burst = 64 * 1024
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Do sends the request, retrying transient failures. Responses with a
// status below 500 are returned as is for the caller to judge.
func (m *MeloHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrHTTPSRequired, req.URL)
	}
	if m.config.UserAgent != "" {
		req.Header.Set("User-Agent", m.config.UserAgent)
	}
	var resp *http.Response
	var err error
	for attempt := 1; attempt <= m.config.Retries; attempt++ {
		if attempt > 1 {
			wait := retryWait(m.config.RetryWait, attempt-1)
			log.Debug().Str("op", "utils/http").Msgf("attempt %d/%d for %s in %s", attempt, m.config.Retries, req.URL, wait.Round(time.Millisecond))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(wait):
			}
		}
		resp, err = m.Client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			err = fmt.Errorf("server returned %s for %s", resp.Status, req.URL)
			continue
		}
		return resp, nil
	}
	return nil, err
}

// retryWait doubles the base per attempt, caps it, and spreads retries
// out with a 0.5x to 1.5x jitter.
func retryWait(base time.Duration, attempt int) time.Duration {
	wait := base << (attempt - 1)
	if wait > MaxRetryWait {
		wait = MaxRetryWait
	}
	return time.Duration(float64(wait) * (0.5 + rand.Float64()))
}

// FileSize issues a HEAD request and reports the Content-Length, with
// ok false when the server does not declare one.
func (m *MeloHTTPClient) FileSize(ctx context.Context, rawURL string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := m.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, fmt.Errorf("unexpected status %s for HEAD %s", resp.Status, rawURL)
	}
	if resp.ContentLength < 0 {
		return 0, false, nil
	}
	return resp.ContentLength, true, nil
}

// GetRange downloads the inclusive byte range [start, end]. The server
// must honor the range request with a 206 and a Content-Range header.
func (m *MeloHTTPClient) GetRange(ctx context.Context, rawURL string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := m.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: got %s from %s", ErrRangeRequestsNotSupported, resp.Status, rawURL)
	}
	if resp.Header.Get("Content-Range") == "" {
		return nil, fmt.Errorf("%w: no Content-Range header from %s", ErrRangeRequestsNotSupported, rawURL)
	}
	want := end - start + 1
	data, err := io.ReadAll(m.reader(ctx, io.LimitReader(resp.Body, want)))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != want {
		return nil, fmt.Errorf("got %d bytes for a %d byte range of %s", len(data), want, rawURL)
	}
	return data, nil
}

// Get starts a full body download and returns the stream along with the
// declared size (-1 when unknown). The caller closes the stream.
func (m *MeloHTTPClient) Get(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := m.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status %s for GET %s", resp.Status, rawURL)
	}
	body := struct {
		io.Reader
		io.Closer
	}{m.reader(ctx, resp.Body), resp.Body}
	return body, resp.ContentLength, nil
}

func (m *MeloHTTPClient) reader(ctx context.Context, r io.Reader) io.Reader {
	if m.limiter == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, limiter: m.limiter}
}

type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// Read caps each read so reservations stay below the limiter burst.
func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > 16*1024 {
		p = p[:16*1024]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
