package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/echoface/adloader/internal/adserver"
	"github.com/echoface/adloader/internal/config"
	"github.com/echoface/adloader/internal/metrics"
	pkgconfig "github.com/echoface/adloader/pkg/config"
)

func main() {
	configFile := flag.String("config", "", "config file, defaults to conf/<RUN_TYPE>.yaml")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if pkgconfig.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	namespace := cfg.Monitoring.Prometheus.Namespace

	serverMetrics := metrics.NewServerMetrics(reg, namespace)
	store, err := newStore(cfg, serverMetrics)
	if err != nil {
		lg.Fatal("Failed to create waterfall store", "error", err)
	}

	server := adserver.NewServer(cfg.Waterfall, store, namespace,
		adserver.WithLogger(lg), adserver.WithRegistry(reg), adserver.WithServerMetrics(serverMetrics))

	httpServer := &http.Server{
		Addr:         cfg.GetAddress(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		lg.Info("Waterfall server starting", "address", httpServer.Addr, "store", cfg.Store.Backend,
			"page_size", cfg.Waterfall.PageSize)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("Failed to start waterfall server", "error", err)
		}
	}()

	<-shutdownCtx.Done()
	lg.Info("Shutting down waterfall server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		lg.Error("Server forced to shutdown", "error", err)
	}
	lg.Info("Waterfall server stopped")
}

func newStore(cfg *config.ServerConfig, m *metrics.ServerMetrics) (adserver.Store, error) {
	switch cfg.Store.Backend {
	case "s3":
		s3, err := adserver.NewS3Store(cfg.Store.S3)
		if err != nil {
			return nil, err
		}
		return adserver.NewCachedStore(s3, cfg.Store.CacheSize, cfg.Store.CacheTTL, m), nil
	default:
		return adserver.NewMemoryStoreFromConfig(cfg.AdUnits), nil
	}
}
