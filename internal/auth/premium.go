// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultPremiumLookupURL is the identity authority's lookup-by-name endpoint.
const DefaultPremiumLookupURL = "https://api.mojang.com/users/profiles/minecraft"

// Premium lookup timeouts and retry budget.
const (
	PremiumConnectTimeout = 5 * time.Second
	PremiumReadTimeout    = 5 * time.Second
	DefaultPremiumRetries = 2
	defaultRetryBase      = 250 * time.Millisecond
	maxResponseDrain      = 64 << 10
)

// Classification is the outcome of a premium lookup.
type Classification int

const (
	// LookupFailed means the authority could not be asked or gave an
	// unexpected answer. Treated as unverified for policy purposes.
	LookupFailed Classification = iota
	// Verified means the authority knows the name.
	Verified
	// NotVerified means the authority does not know the name.
	NotVerified
)

// String returns the metric label for the classification.
func (c Classification) String() string {
	switch c {
	case Verified:
		return "verified"
	case NotVerified:
		return "not_verified"
	default:
		return "lookup_failed"
	}
}

// PremiumVerifier classifies a display name against the identity authority.
// Implementations may block on network I/O and must never be called on a
// connection-handling path.
type PremiumVerifier interface {
	Classify(ctx context.Context, username string) Classification
}

// DisabledVerifier classifies everything as LookupFailed without any I/O.
type DisabledVerifier struct{}

// Classify implements PremiumVerifier.
func (DisabledVerifier) Classify(context.Context, string) Classification {
	return LookupFailed
}

// HTTPPremiumVerifier asks an HTTP identity authority whether a name
// belongs to a verified account: 200 means verified, 404 unknown.
type HTTPPremiumVerifier struct {
	baseURL   string
	client    *http.Client
	retries   uint64
	retryBase time.Duration
	logger    *slog.Logger
}

// VerifierOption configures an HTTPPremiumVerifier during construction.
type VerifierOption func(*HTTPPremiumVerifier)

// WithHTTPClient replaces the default client and its timeouts.
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *HTTPPremiumVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithRetries sets how many times a transient failure is retried and the
// base delay of the exponential backoff.
func WithRetries(retries uint64, base time.Duration) VerifierOption {
	return func(v *HTTPPremiumVerifier) {
		v.retries = retries
		if base > 0 {
			v.retryBase = base
		}
	}
}

// WithVerifierLogger sets the logger used for lookup diagnostics.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *HTTPPremiumVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewHTTPPremiumVerifier creates a verifier for the lookup endpoint at
// baseURL. The username is appended as the final path segment.
func NewHTTPPremiumVerifier(baseURL string, opts ...VerifierOption) (*HTTPPremiumVerifier, error) {
	if baseURL == "" {
		baseURL = DefaultPremiumLookupURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, oops.Code("PREMIUM_INVALID_URL").With("url", baseURL).Wrap(err)
	}

	v := &HTTPPremiumVerifier{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    newLookupClient(),
		retries:   DefaultPremiumRetries,
		retryBase: defaultRetryBase,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func newLookupClient() *http.Client {
	dialer := &net.Dialer{Timeout: PremiumConnectTimeout}
	return &http.Client{
		Timeout: PremiumConnectTimeout + PremiumReadTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   PremiumConnectTimeout,
			ResponseHeaderTimeout: PremiumReadTimeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

// Classify looks the name up, retrying transient failures. It never returns
// an error: every failure degrades to LookupFailed.
func (v *HTTPPremiumVerifier) Classify(ctx context.Context, username string) Classification {
	if username == "" {
		return LookupFailed
	}
	target := v.baseURL + "/" + url.PathEscape(username)

	result := LookupFailed
	backoff := retry.WithMaxRetries(v.retries, retry.NewExponential(v.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, transient := v.lookup(ctx, target)
		if transient != nil {
			return retry.RetryableError(transient)
		}
		result = c
		return nil
	})
	if err != nil {
		v.logger.Debug("premium lookup failed", "username", username, "error", err)
		return LookupFailed
	}
	return result
}

// lookup performs one request. The error is non-nil only for failures worth
// retrying.
func (v *HTTPPremiumVerifier) lookup(ctx context.Context, target string) (Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return LookupFailed, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return LookupFailed, oops.Code("PREMIUM_LOOKUP_TRANSPORT").Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // drained below

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain)) //nolint:errcheck // keep-alive reuse

	switch {
	case resp.StatusCode == http.StatusOK:
		return Verified, nil
	case resp.StatusCode == http.StatusNotFound:
		return NotVerified, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return LookupFailed, oops.Code("PREMIUM_LOOKUP_STATUS").
			With("status", resp.StatusCode).
			Errorf("identity authority returned %d", resp.StatusCode)
	default:
		return LookupFailed, nil
	}
}
