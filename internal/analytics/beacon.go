package analytics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/pkg/concurrent"
	"github.com/echoface/adloader/pkg/logger"
	"github.com/echoface/adloader/pkg/retry"
)

// Beacon outcomes recorded in metrics.
const (
	BeaconSent    = "sent"
	BeaconFailed  = "failed"
	BeaconDropped = "dropped"
)

type BeaconConfig struct {
	MaxConcurrency   int
	Timeout          time.Duration
	UserAgent        string
	Retry            *retry.RetryConfig
	FailureThreshold int
	SuccessThreshold int
	CoolDown         time.Duration
}

func DefaultBeaconConfig() BeaconConfig {
	return BeaconConfig{
		MaxConcurrency:   8,
		Timeout:          5 * time.Second,
		UserAgent:        "adloader/1.0",
		Retry:            retry.DefaultRetryConfig(),
		FailureThreshold: 5,
		SuccessThreshold: 1,
		CoolDown:         30 * time.Second,
	}
}

// HTTPBeaconSender fires tracking GETs in the background. Send never blocks
// and failures are only logged and counted.
type HTTPBeaconSender struct {
	cfg        BeaconConfig
	client     *http.Client
	controller *concurrent.ConcurrencyController
	breaker    *CircuitBreaker
	logger     logger.Logger
	metrics    *metrics.WaterfallMetrics

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex // guards closed against in-progress Sends
	closed bool
}

type BeaconOption func(*HTTPBeaconSender)

func WithHTTPClient(c *http.Client) BeaconOption {
	return func(s *HTTPBeaconSender) { s.client = c }
}

func WithBeaconLogger(l logger.Logger) BeaconOption {
	return func(s *HTTPBeaconSender) { s.logger = l }
}

func WithBeaconMetrics(m *metrics.WaterfallMetrics) BeaconOption {
	return func(s *HTTPBeaconSender) { s.metrics = m }
}

func NewHTTPBeaconSender(cfg BeaconConfig, opts ...BeaconOption) *HTTPBeaconSender {
	def := DefaultBeaconConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Retry == nil {
		cfg.Retry = def.Retry
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &HTTPBeaconSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		controller: concurrent.NewConcurrencyController(cfg.MaxConcurrency),
		breaker:    NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.CoolDown),
		logger:     logger.Default,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send schedules one GET per url.
func (s *HTTPBeaconSender) Send(urls ...string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range urls {
		if s.closed {
			s.metrics.RecordBeacon(BeaconDropped)
			s.logger.Debug("beacon sender closed, beacon dropped", "url", u)
			continue
		}
		url := u
		s.controller.Go(s.ctx, func(ctx context.Context) {
			s.fire(ctx, url)
		})
	}
}

// Close stops accepting beacons and waits for the in-flight ones.
func (s *HTTPBeaconSender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.controller.Wait()
	s.cancel()
	return nil
}

func (s *HTTPBeaconSender) Breaker() *CircuitBreaker {
	return s.breaker
}

func (s *HTTPBeaconSender) fire(ctx context.Context, url string) {
	if !s.breaker.Allow() {
		s.metrics.RecordBeacon(BeaconDropped)
		s.logger.Warn("beacon circuit open, beacon dropped", "url", url)
		return
	}

	_, err := retry.Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.get(ctx, url)
	}, s.cfg.Retry)
	if err != nil {
		s.breaker.RecordFailure()
		s.metrics.RecordBeacon(BeaconFailed)
		s.logger.Warn("beacon failed", "url", url, "error", err)
		return
	}
	s.breaker.RecordSuccess()
	s.metrics.RecordBeacon(BeaconSent)
	s.logger.Debug("beacon sent", "url", url)
}

func (s *HTTPBeaconSender) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &retry.RetryableError{Type: retry.InternalError, Message: "build beacon request", Cause: err}
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return &retry.RetryableError{Type: retry.NetworkError, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &retry.RetryableError{Type: retry.RateLimitError, Message: "beacon rate limited"}
	case resp.StatusCode >= 500:
		return &retry.RetryableError{Type: retry.NetworkError, Message: fmt.Sprintf("beacon status %d", resp.StatusCode)}
	default:
		return &retry.RetryableError{Type: retry.ProtocolError, Message: fmt.Sprintf("beacon status %d", resp.StatusCode)}
	}
}
