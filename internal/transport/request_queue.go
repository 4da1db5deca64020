// Package transport performs waterfall fetches over HTTP.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/echoface/adloader/internal/adcore"
	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/internal/payload"
	"github.com/echoface/adloader/pkg/concurrent"
	"github.com/echoface/adloader/pkg/logger"
)

const (
	HeaderAdUnitID = "X-Ad-Unit-Id"
	HeaderAdFormat = "X-Ad-Format"

	maxBodyBytes = 4 << 20
)

// StatusError is returned for any non-200 answer. adcore.Classify maps it
// through StatusCode.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

type Config struct {
	MaxInFlight int
	Timeout     time.Duration
	UserAgent   string
}

func DefaultConfig() Config {
	return Config{
		MaxInFlight: 4,
		Timeout:     10 * time.Second,
		UserAgent:   "adloader/1.0",
	}
}

// RequestQueue implements adcore.Transport. Every request runs on its own
// goroutine, at most MaxInFlight at a time.
type RequestQueue struct {
	cfg        Config
	client     *http.Client
	controller *concurrent.ConcurrencyController
	logger     logger.Logger
	metrics    *metrics.WaterfallMetrics

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
}

type Option func(*RequestQueue)

func WithHTTPClient(c *http.Client) Option {
	return func(q *RequestQueue) { q.client = c }
}

func WithLogger(l logger.Logger) Option {
	return func(q *RequestQueue) { q.logger = l }
}

func WithMetrics(m *metrics.WaterfallMetrics) Option {
	return func(q *RequestQueue) { q.metrics = m }
}

func NewRequestQueue(cfg Config, opts ...Option) *RequestQueue {
	def := DefaultConfig()
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &RequestQueue{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		controller: concurrent.NewConcurrencyController(cfg.MaxInFlight),
		logger:     logger.Default,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit never blocks. The request's listener is called on a queue
// goroutine; a cancelled request gets no call at all.
func (q *RequestQueue) Submit(req *adcore.FetchRequest) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		go req.DeliverError(adcore.NewNetworkError(adcore.ReasonUnspecified, "request queue is closed"))
		return
	}
	q.controller.Go(req.Context(), func(ctx context.Context) {
		q.perform(ctx, req)
	})
}

// Close aborts in-flight requests and waits for their goroutines.
func (q *RequestQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.controller.Wait()
	return nil
}

func (q *RequestQueue) perform(ctx context.Context, req *adcore.FetchRequest) {
	ctx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(q.ctx, cancel)
	defer stop()

	log := q.logger.With("request_id", req.ID(), "url", req.URL())
	start := time.Now()
	q.metrics.TransportStarted()
	batch, err := q.fetch(ctx, req)
	elapsed := time.Since(start)
	q.metrics.TransportFinished(err == nil, elapsed.Seconds())

	if req.IsCanceled() {
		log.Debug("request cancelled, result dropped")
		return
	}
	if err != nil {
		netErr := adcore.Classify(err)
		log.Warn("fetch failed", "reason", netErr.Reason.String(), "error", err, "elapsed", elapsed)
		req.DeliverError(netErr)
		return
	}
	log.Debug("fetch succeeded", "candidates", batch.Len(), "elapsed", elapsed)
	req.DeliverSuccess(batch)
}

func (q *RequestQueue) fetch(ctx context.Context, req *adcore.FetchRequest) (*adcore.MultiAdResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return nil, adcore.WrapNetworkError(adcore.ReasonBadRequest, err)
	}
	httpReq.Header.Set("User-Agent", q.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.AdUnitID() != "" {
		httpReq.Header.Set(HeaderAdUnitID, req.AdUnitID())
	}
	httpReq.Header.Set(HeaderAdFormat, string(req.AdFormat()))

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	batch, err := payload.Decode(body, payload.Request{AdUnitID: req.AdUnitID(), AdFormat: req.AdFormat()})
	if err != nil {
		return nil, adcore.WrapNetworkError(adcore.ReasonServerError, err)
	}
	return batch, nil
}
