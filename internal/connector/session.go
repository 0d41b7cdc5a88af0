package connector

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
)

const maxBodyBytes = 4 << 20

// SessionConfig configures the HTTP session shared by web connectors.
type SessionConfig struct {
	UserAgent string
	Timeout   time.Duration
	Pacer     Pacer
	Retry     resilience.RetryConfig
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// session is a cookie-carrying HTTP client that paces every request, retries
// throttled ones, and maps responses onto the connector error kinds.
type session struct {
	client    *http.Client
	userAgent string
	pacer     Pacer
	retry     resilience.RetryConfig
	source    string
}

func newSession(source string, cfg SessionConfig) *session {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NoPacer{}
	}

	retry := cfg.Retry
	retry.ShouldRetry = func(err error, _ int) bool {
		return errors.Is(err, ErrRateLimited) || resilience.IsTransient(err)
	}
	retry.OnRetry = resilience.RetryLogger(source, "fetch")

	return &session{
		client: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		pacer:     pacer,
		retry:     retry,
		source:    source,
	}
}

// response is a fully read HTTP response.
type response struct {
	status   int
	finalURL *url.URL
	header   http.Header
	body     []byte
}

// fetchOptions tune how a response is judged.
type fetchOptions struct {
	// detectBlocks runs block detection; login pages disable it because
	// they legitimately live under /login.
	detectBlocks bool
}

// fetch sends the request built by build, retrying throttled and transient
// failures. The returned error always matches one of ErrAuthentication,
// ErrRateLimited or ErrExtraction unless ctx was cancelled.
func (s *session) fetch(ctx context.Context, build func(ctx context.Context) (*http.Request, error), opts fetchOptions) (*response, error) {
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*response, error) {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrapf(ErrExtraction, "%s: build request: %v", s.source, err)
		}
		if s.userAgent != "" {
			req.Header.Set("User-Agent", s.userAgent)
		}
		return s.once(req, opts)
	})
	if err == nil {
		return resp, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrExtraction) {
		return nil, err
	}
	return nil, eris.Wrapf(ErrExtraction, "%s: %v", s.source, err)
}

func (s *session) once(req *http.Request, opts fetchOptions) (*response, error) {
	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: %s %s", s.source, req.Method, req.URL.Path)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read body", s.source)
	}

	code := httpResp.StatusCode
	switch {
	case code == http.StatusTooManyRequests || code == 999:
		zap.L().Warn("source throttled request",
			zap.String("source", s.source),
			zap.Int("status", code),
		)
		return nil, &resilience.TransientError{
			Err:        eris.Wrapf(ErrRateLimited, "%s: status %d", s.source, code),
			StatusCode: code,
			RetryAfter: retryAfter(httpResp.Header),
		}
	}

	if opts.detectBlocks {
		if blocked, kind := DetectBlock(httpResp, body); blocked {
			return nil, eris.Wrapf(ErrAuthentication, "%s: blocked (%s)", s.source, kind)
		}
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, eris.Wrapf(ErrAuthentication, "%s: status %d", s.source, code)
	case resilience.IsTransientHTTPStatus(code):
		return nil, resilience.NewTransientError(eris.Errorf("%s: status %d", s.source, code), code)
	case code >= 400:
		return nil, eris.Wrapf(ErrExtraction, "%s: status %d", s.source, code)
	}

	return &response{
		status:   code,
		finalURL: httpResp.Request.URL,
		header:   httpResp.Header,
		body:     body,
	}, nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
