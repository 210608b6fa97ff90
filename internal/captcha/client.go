// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client defaults.
const (
	// DefaultVerifyURL is the reCAPTCHA siteverify endpoint.
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

	// DefaultTimeout bounds a whole Verify call, retries included.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 1

	// retryBase is the first backoff interval; it doubles on each retry.
	retryBase = 100 * time.Millisecond

	// maxResponseBytes caps how much of a provider response is read.
	maxResponseBytes = 64 << 10
)

var tracer = otel.Tracer("github.com/loginguard/loginguard/internal/captcha")

// Config configures a Client.
type Config struct {
	// Secret is the server-held provider secret. Required.
	Secret string

	// VerifyURL is the provider verification endpoint.
	// Defaults to DefaultVerifyURL if empty.
	VerifyURL string

	// Timeout bounds each Verify call including retries.
	// Defaults to DefaultTimeout if zero or negative.
	Timeout time.Duration

	// MaxRetries is how many times a transport failure or 5xx is retried.
	MaxRetries uint64

	// HTTPClient is used for outbound calls. Defaults to a client with Timeout.
	HTTPClient *http.Client
}

// Client verifies tokens against a reCAPTCHA-compatible siteverify endpoint.
type Client struct {
	secret     string
	verifyURL  string
	timeout    time.Duration
	maxRetries uint64
	httpClient *http.Client
}

// siteverifyResponse is the provider's JSON answer.
type siteverifyResponse struct {
	Success     *bool    `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// NewClient creates a Client. An empty secret is a configuration error.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, oops.Code("CONFIG_MISSING").
			In("captcha").
			Errorf("captcha provider secret is required")
	}

	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if _, err := url.ParseRequestURI(verifyURL); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			In("captcha").
			With("verify_url", verifyURL).
			Wrap(err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		secret:     cfg.Secret,
		verifyURL:  verifyURL,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		httpClient: httpClient,
	}, nil
}

// Verify checks token with the provider.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (out Outcome, err error) {
	if token == "" {
		recordVerification(ResultRejected, 0)
		return Outcome{Accepted: false, ErrorCodes: []string{ErrorCodeMissingResponse}}, nil
	}

	ctx, span := tracer.Start(ctx, "captcha.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{}
			err = unavailable().
				With("panic", fmt.Sprint(r)).
				Errorf("panic during captcha verification")
		}
		finishSpan(span, out, err)
		recordVerification(resultLabel(out, err), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	var resp siteverifyResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(retryBase))
	attempts := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var postErr error
		resp, postErr = c.post(ctx, form)
		return postErr
	})
	if err != nil {
		return Outcome{}, unavailable().
			With("verify_url", c.verifyURL).
			With("attempts", attempts).
			With("timeout", c.timeout.String()).
			Wrapf(err, "captcha verification failed")
	}

	return Outcome{
		Accepted:   *resp.Success,
		ErrorCodes: resp.ErrorCodes,
	}, nil
}

// post performs one provider call. Transport failures and 5xx responses are
// marked retryable; everything else is final.
func (c *Client) post(ctx context.Context, form url.Values) (siteverifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return siteverifyResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return siteverifyResponse{}, retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return siteverifyResponse{}, retry.RetryableError(fmt.Errorf("provider returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return siteverifyResponse{}, fmt.Errorf("provider returned %s", resp.Status)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return siteverifyResponse{}, fmt.Errorf("malformed provider response: %w", err)
	}
	if body.Success == nil {
		return siteverifyResponse{}, fmt.Errorf("malformed provider response: missing success flag")
	}
	return body, nil
}

func finishSpan(span trace.Span, out Outcome, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "captcha provider unavailable")
		return
	}
	span.SetAttributes(
		attribute.Bool("captcha.accepted", out.Accepted),
		attribute.StringSlice("captcha.error_codes", out.ErrorCodes),
	)
}

func resultLabel(out Outcome, err error) string {
	switch {
	case err != nil:
		return ResultUnavailable
	case out.Accepted:
		return ResultAccepted
	default:
		return ResultRejected
	}
}

var _ Verifier = (*Client)(nil)
