// Package reputation submits files to a VirusTotal v2 compatible service and
// retrieves their reports.
package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/verdict"
	"github.com/ahrav/scanguard/pkg/common/logger"
)

// Config controls the client's endpoints and timing.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// PollDelay is the wait between upload and the report fetch.
	PollDelay time.Duration
	// ReportRetries is the number of extra report fetches on transient failure.
	ReportRetries int
	// RetryInterval is the first backoff interval between report fetches.
	RetryInterval time.Duration
}

// DefaultConfig returns the production timing against the public v2 API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://www.virustotal.com/vtapi/v2",
		Timeout:       30 * time.Second,
		PollDelay:     2 * time.Second,
		ReportRetries: 2,
		RetryInterval: 500 * time.Millisecond,
	}
}

// Client is a VirusTotal v2 client. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client. Outbound requests are traced through otelhttp.
func NewClient(cfg Config, log *logger.Logger, tracer trace.Tracer, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.ReportRetries < 0 {
		cfg.ReportRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:     log.With("component", "reputation_client"),
		tracer:     tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads the file at path and fetches its report. It never returns a
// Go error: every failure is folded into the RawVerdict.
func (c *Client) Submit(ctx context.Context, path string) verdict.RawVerdict {
	ctx, span := c.tracer.Start(ctx, "reputation.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	v := c.submit(ctx, path)
	if v.Err != "" {
		span.SetStatus(codes.Error, v.Err)
		c.logger.Warn(ctx, "reputation submission failed", "path", path, "reason", v.Err)
	} else {
		span.SetAttributes(
			attribute.Int("reputation.response_code", int(v.Report.ResponseCode)),
			attribute.Int("reputation.positives", v.Report.Positives),
		)
	}
	return v
}

func (c *Client) submit(ctx context.Context, path string) verdict.RawVerdict {
	resource, reason := c.upload(ctx, path)
	if reason != "" {
		return verdict.Failed(reason)
	}

	if c.cfg.PollDelay > 0 {
		t := time.NewTimer(c.cfg.PollDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return verdict.Failed(fmt.Sprintf("Report fetch failed: %v", ctx.Err()))
		case <-t.C:
		}
	}

	body, reason := c.fetchReport(ctx, resource)
	if reason != "" {
		return verdict.Failed(reason)
	}

	report, err := parseReport(body)
	if err != nil {
		return verdict.Failed(fmt.Sprintf("Report parse failed: %v", err))
	}
	return verdict.RawVerdict{Report: report, Payload: json.RawMessage(body)}
}

// upload posts the file as multipart form field "file" and returns the
// resource handle, or a failure reason.
func (c *Client) upload(ctx context.Context, path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Sprintf("Upload failed: %v", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.endpoint("/file/scan", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Sprintf("Upload failed: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Sprintf("Upload failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Sprintf("Upload failed: %d", resp.StatusCode)
	}

	var sr scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Sprintf("Upload failed: decoding response: %v", err)
	}
	if sr.Resource == "" {
		return "", "No resource ID received"
	}
	return sr.Resource, ""
}

// errTransient marks report fetch failures worth retrying.
var errTransient = errors.New("transient")

// fetchReport retrieves the report body, retrying transport errors, 429 and
// 5xx responses with exponential backoff.
func (c *Client) fetchReport(ctx context.Context, resource string) ([]byte, string) {
	var (
		body   []byte
		reason string
	)

	operation := func() error {
		var err error
		body, reason, err = c.fetchReportOnce(ctx, resource)
		if err == nil {
			return nil
		}
		if errors.Is(err, errTransient) && ctx.Err() == nil {
			c.logger.Debug(ctx, "retrying report fetch", "resource", resource, "reason", reason)
			return err
		}
		return backoff.Permanent(err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.cfg.RetryInterval
	expBackoff.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.cfg.ReportRetries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, reason
	}
	return body, ""
}

func (c *Client) fetchReportOnce(ctx context.Context, resource string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.endpoint("/file/report", url.Values{"resource": {resource}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Sprintf("Report fetch failed: %v", err), err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Sprintf("Report fetch failed: %v", err), fmt.Errorf("%w: %w", errTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("Report fetch failed: %d", resp.StatusCode)
		err := fmt.Errorf("report status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", errTransient, err)
		}
		return nil, reason, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Sprintf("Report fetch failed: %v", err), fmt.Errorf("%w: %w", errTransient, err)
	}
	return body, "", nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apikey", c.cfg.APIKey)
	return c.cfg.BaseURL + path + "?" + q.Encode()
}
