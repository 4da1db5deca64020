package adserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echoface/adloader/internal/config"
	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/internal/middleware"
	"github.com/echoface/adloader/internal/payload"
	"github.com/echoface/adloader/pkg/logger"
)

// Tracking events counted by the server.
const (
	EventBeforeLoad = "before_load"
	EventAfterLoad  = "after_load"
)

const (
	adPath         = "/m/ad"
	beforeLoadPath = "/track/before-load"
	afterLoadPath  = "/track/after-load"
)

type Server struct {
	cfg      config.WaterfallConfig
	store    Store
	logger   logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.ServerMetrics
	router   *gin.Engine
	started  time.Time

	mu       sync.Mutex
	tracking map[string]int
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry makes the server register its collectors on reg and expose
// reg on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithServerMetrics shares m with other components, such as a CachedStore.
// m must be registered on the server's registry.
func WithServerMetrics(m *metrics.ServerMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

func NewServer(cfg config.WaterfallConfig, store Store, namespace string, opts ...Option) *Server {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 2
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		logger:   logger.Default,
		started:  time.Now(),
		tracking: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewServerMetrics(s.registry, namespace)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.PrometheusMetrics(s.registry, namespace))
	r.GET(adPath, s.handleAd)
	r.GET(beforeLoadPath, s.handleTracking(EventBeforeLoad))
	r.GET(afterLoadPath, s.handleTracking(EventAfterLoad))
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	s.router = r
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Metrics() *metrics.ServerMetrics {
	return s.metrics
}

// TrackingCount returns how many beacons of event were received; for
// after-load events result narrows the count to one load result.
func (s *Server) TrackingCount(event, result string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking[trackingKey(event, result)]
}

func trackingKey(event, result string) string {
	if result == "" {
		return event
	}
	return event + ":" + result
}

func (s *Server) handleAd(c *gin.Context) {
	adUnitID := c.Query("id")
	if adUnitID == "" {
		s.metrics.RecordAdRequest("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}
	page := 1
	if p := c.Query("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			s.metrics.RecordAdRequest("bad_request")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page parameter"})
			return
		}
		page = n
	}

	wf, err := s.store.Waterfall(c.Request.Context(), adUnitID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordAdRequest("unknown_ad_unit")
		s.render(c, &payload.Response{AdResponses: []payload.Entry{}})
		return
	case err != nil:
		s.logger.Error("failed to load waterfall", "ad_unit", adUnitID, "error", err)
		s.metrics.RecordAdRequest("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "waterfall store unavailable"})
		return
	}

	resp := s.page(s.baseURL(c), wf, page)
	result := "served"
	if len(resp.AdResponses) == 0 {
		result = "empty"
	}
	s.metrics.RecordAdRequest(result)
	s.logger.Debug("serving waterfall page", "ad_unit", adUnitID, "page", page,
		"entries", len(resp.AdResponses), "next", resp.NextURL)
	s.render(c, resp)
}

// page cuts page n (1-based) out of wf. Stored entries are copied, never
// modified.
func (s *Server) page(base string, wf *Waterfall, n int) *payload.Response {
	size := s.cfg.PageSize
	start := (n - 1) * size
	if start > len(wf.Entries) {
		start = len(wf.Entries)
	}
	end := start + size
	if end > len(wf.Entries) {
		end = len(wf.Entries)
	}

	resp := &payload.Response{AdResponses: make([]payload.Entry, 0, end-start)}
	for i := start; i < end; i++ {
		entry := wf.Entries[i]
		if entry.AdUnitFormat == "" {
			entry.AdUnitFormat = wf.Format
		}
		q := url.Values{"id": {wf.AdUnitID}, "idx": {strconv.Itoa(i)}}.Encode()
		if entry.Metadata.BeforeLoadURL == "" {
			entry.Metadata.BeforeLoadURL = base + beforeLoadPath + "?" + q
		}
		if len(entry.Metadata.AfterLoadURLs) == 0 {
			entry.Metadata.AfterLoadURLs = []string{
				base + afterLoadPath + "?" + q + "&result=%%LOAD_RESULT%%&duration_ms=%%LOAD_DURATION_MS%%",
			}
		}
		resp.AdResponses = append(resp.AdResponses, entry)
	}

	if end < len(wf.Entries) {
		next := url.Values{"id": {wf.AdUnitID}, "page": {strconv.Itoa(n + 1)}}
		resp.NextURL = base + adPath + "?" + next.Encode()
	}
	return resp
}

func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) render(c *gin.Context, resp *payload.Response) {
	data, err := payload.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode waterfall page", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleTracking(event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := c.Query("result")
		if event == EventBeforeLoad {
			result = ""
		}

		s.mu.Lock()
		s.tracking[event]++
		if result != "" {
			s.tracking[trackingKey(event, result)]++
		}
		s.mu.Unlock()

		s.metrics.RecordTracking(event, result)
		s.logger.Debug("tracking event", "event", event, "ad_unit", c.Query("id"),
			"idx", c.Query("idx"), "result", result, "duration_ms", c.Query("duration_ms"))
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(s.started).String(),
	})
}
