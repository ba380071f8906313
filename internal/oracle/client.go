package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/model"
	"optiattack/internal/telemetry"
)

var tracer = otel.Tracer("optiattack.oracle")

var (
	// ErrUnavailable marks connectivity failures and 5xx answers.
	ErrUnavailable = errors.New("network under test unavailable")
	// ErrBadResponse marks answers that cannot be used as predictions.
	ErrBadResponse = errors.New("bad response from network under test")
)

const DefaultBasePath = "/api/v1"

// Endpoint paths relative to the base path.
const (
	PathInfo        = "/infoNUT"
	PathRun         = "/runNUT"
	PathStop        = "/stopNUT"
	PathTestResults = "/testResults"
	PathNewAction   = "/newAction"
)

type Config struct {
	Host     string
	Port     int
	BasePath string
	Timeout  time.Duration
	// RateLimit caps requests per second; 0 disables pacing.
	RateLimit float64
}

// State is the NUT state document returned by info, run and stop.
type State struct {
	IsRunning      bool   `json:"is_running"`
	ControllerHost string `json:"controller_host"`
	ControllerPort *int   `json:"controller_port"`
	RunNUT         string `json:"run_nut,omitempty"`
	StopNUT        string `json:"stop_nut,omitempty"`
	InfoNUT        string `json:"info_nut,omitempty"`
	NewAction      string `json:"new_action,omitempty"`
}

// ImageRequest is the body of runNUT and newAction.
type ImageRequest struct {
	Image [][][3]int `json:"image"`
}

// PredictionResponse is the body answered by runNUT and newAction.
type PredictionResponse struct {
	Predictions model.Predictions `json:"predictions"`
	State
}

type TestResults struct {
	Classified int `json:"classified"`
}

// Client talks to a network under test over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		baseURL: "http://" + cfg.Host + ":" + strconv.Itoa(cfg.Port) + strings.TrimRight(basePath, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logging.OrDiscard(logger),
	}
}

// NewClientForURL targets a full base URL, e.g. an httptest server plus path.
func NewClientForURL(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.OrDiscard(logger),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Info(ctx context.Context) (State, error) {
	c.logger.Info("getting NUT info")
	var st State
	err := c.do(ctx, http.MethodGet, PathInfo, nil, &st)
	return st, err
}

// Run submits the unperturbed image and returns the baseline predictions.
func (c *Client) Run(ctx context.Context, img *imaging.Image) (PredictionResponse, error) {
	c.logger.Info("running NUT on the original image")
	var resp PredictionResponse
	if err := c.do(ctx, http.MethodPost, PathRun, ImageRequest{Image: img.Rows()}, &resp); err != nil {
		return PredictionResponse{}, err
	}
	if len(resp.Predictions) == 0 {
		return PredictionResponse{}, c.fail(PathRun, ErrBadResponse, "empty predictions")
	}
	return resp, nil
}

func (c *Client) Stop(ctx context.Context) (State, error) {
	c.logger.Info("stopping NUT")
	var st State
	err := c.do(ctx, http.MethodPost, PathStop, nil, &st)
	return st, err
}

func (c *Client) TestResults(ctx context.Context) (TestResults, error) {
	var tr TestResults
	err := c.do(ctx, http.MethodGet, PathTestResults, nil, &tr)
	return tr, err
}

// Evaluate classifies one candidate image.
func (c *Client) Evaluate(ctx context.Context, img *imaging.Image) (model.Predictions, error) {
	var resp PredictionResponse
	if err := c.do(ctx, http.MethodPost, PathNewAction, ImageRequest{Image: img.Rows()}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, c.fail(PathNewAction, ErrBadResponse, "empty predictions")
	}
	return resp.Predictions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	ctx, span := tracer.Start(ctx, "oracle."+strings.TrimPrefix(path, "/"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("oracle.endpoint", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", path, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	telemetry.OracleLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.fail(path, ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(path, ErrUnavailable, "read body: "+err.Error())
	}
	switch {
	case resp.StatusCode >= 500:
		return c.fail(path, ErrUnavailable, fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.fail(path, ErrBadResponse, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(path, ErrBadResponse, "decode: "+err.Error())
	}
	return nil
}

func (c *Client) fail(path string, kind error, detail string) error {
	label := "bad_response"
	if errors.Is(kind, ErrUnavailable) {
		label = "unavailable"
	}
	telemetry.OracleErrors.WithLabelValues(path, label).Inc()
	c.logger.Error("NUT request failed", "endpoint", path, "kind", label, "detail", detail)
	return fmt.Errorf("%w: %s: %s", kind, path, detail)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
