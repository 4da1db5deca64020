package adcore

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/pkg/concurrent"
	"github.com/echoface/adloader/pkg/logger"
)

// AppContext is the execution context loaders run in: it owns the request
// queue, the beacon sender and the main looper every caller callback is
// delivered on. Loaders keep only a weak reference to it.
type AppContext struct {
	transport Transport
	beacons   BeaconSender
	looper    *concurrent.Looper
	logger    logger.Logger
	metrics   *metrics.WaterfallMetrics

	// Context for graceful shutdown
	ShutdownCtx    context.Context
	ShutdownCancel context.CancelFunc

	alive        atomic.Bool
	shutdownOnce sync.Once
}

type Option func(*AppContext)

func WithBeaconSender(sender BeaconSender) Option {
	return func(ac *AppContext) { ac.beacons = sender }
}

func WithLogger(l logger.Logger) Option {
	return func(ac *AppContext) { ac.logger = l }
}

func WithMetrics(m *metrics.WaterfallMetrics) Option {
	return func(ac *AppContext) { ac.metrics = m }
}

// WithLooper replaces the main looper. The AppContext takes ownership and
// closes it on Shutdown.
func WithLooper(l *concurrent.Looper) Option {
	return func(ac *AppContext) { ac.looper = l }
}

func NewAppContext(transport Transport, opts ...Option) *AppContext {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	ac := &AppContext{
		transport:      transport,
		logger:         logger.Default,
		ShutdownCtx:    shutdownCtx,
		ShutdownCancel: shutdownCancel,
	}
	for _, opt := range opts {
		opt(ac)
	}
	if ac.looper == nil {
		log := ac.logger
		ac.looper = concurrent.NewLooper(func(r any) {
			log.Error("panic in main looper callback", "panic", r)
		})
	}
	ac.alive.Store(true)
	return ac
}

// RequestQueue returns the transport fetches are submitted to.
func (ac *AppContext) RequestQueue() Transport {
	return ac.transport
}

// BeaconSender may return nil when analytics are not configured.
func (ac *AppContext) BeaconSender() BeaconSender {
	return ac.beacons
}

func (ac *AppContext) MainLooper() *concurrent.Looper {
	return ac.looper
}

func (ac *AppContext) Logger() logger.Logger {
	return ac.logger
}

// Metrics may return nil; WaterfallMetrics methods accept a nil receiver.
func (ac *AppContext) Metrics() *metrics.WaterfallMetrics {
	return ac.metrics
}

// IsAlive is false once Shutdown has started.
func (ac *AppContext) IsAlive() bool {
	return ac.alive.Load()
}

// Shutdown tears the context down: loaders stop fetching and reporting,
// the main looper finishes queued callbacks and stops, and the transport and
// beacon sender are closed if they implement io.Closer. Must not be called
// from a main looper callback.
func (ac *AppContext) Shutdown() {
	ac.shutdownOnce.Do(func() {
		ac.logger.Info("Initiating app context shutdown...")
		ac.alive.Store(false)
		ac.ShutdownCancel()

		ac.looper.Close()
		closeIfCloser(ac.logger, "transport", ac.transport)
		closeIfCloser(ac.logger, "beacon_sender", ac.beacons)

		ac.logger.Info("App context shutdown completed")
	})
}

func closeIfCloser(log logger.Logger, name string, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close component", "component", name, "error", err)
	}
}
