package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/echoface/adloader/internal/adcore"
	"github.com/echoface/adloader/internal/adloader"
	"github.com/echoface/adloader/internal/analytics"
	"github.com/echoface/adloader/internal/config"
	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/internal/transport"
	"github.com/echoface/adloader/pkg/logger"
	"github.com/echoface/adloader/pkg/retry"
)

// creative failures the simulation picks from
var downloadFailures = []adcore.AdError{
	adcore.AdErrorNetworkTimeout,
	adcore.AdErrorAdapterNotFound,
	adcore.AdErrorAdapterConfiguration,
	adcore.AdErrorInvalidData,
	adcore.AdErrorVideoPlayback,
	adcore.AdErrorRendering,
}

type event struct {
	ad  *adcore.AdResponse
	err error
}

// chanListener never blocks the main looper; a session that already gave up
// has nobody reading.
type chanListener chan event

func (c chanListener) OnSuccess(resp *adcore.AdResponse) { c.offer(event{ad: resp}) }
func (c chanListener) OnError(err error)                 { c.offer(event{err: err}) }

func (c chanListener) offer(ev event) {
	select {
	case c <- ev:
	default:
	}
}

type stats struct {
	sessions  int
	served    int
	failed    int
	noFill    int
	errored   int
	downloads int
}

func main() {
	configFile := flag.String("config", "", "config file, defaults to conf/<RUN_TYPE>.yaml")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	format, err := adcore.ParseAdFormat(cfg.Loader.AdFormat)
	if err != nil {
		lg.Fatal("Invalid ad format", "error", err)
	}

	var m *metrics.WaterfallMetrics
	if cfg.Monitoring.Prometheus.Enabled {
		m = metrics.NewWaterfallMetrics(prometheus.NewRegistry(),
			cfg.Monitoring.Prometheus.Namespace, cfg.Monitoring.Prometheus.Subsystem)
	}

	queue := transport.NewRequestQueue(transport.Config{
		MaxInFlight: cfg.Loader.MaxInFlight,
		Timeout:     cfg.Loader.Timeout,
		UserAgent:   cfg.Loader.UserAgent,
	}, transport.WithLogger(lg), transport.WithMetrics(m))

	opts := []adcore.Option{adcore.WithLogger(lg), adcore.WithMetrics(m)}
	if cfg.Beacon.Enabled {
		retryCfg := retry.DefaultRetryConfig()
		retryCfg.MaxRetries = cfg.Beacon.MaxRetries
		beacons := analytics.NewHTTPBeaconSender(analytics.BeaconConfig{
			MaxConcurrency:   cfg.Beacon.MaxConcurrency,
			Timeout:          cfg.Beacon.Timeout,
			UserAgent:        cfg.Loader.UserAgent,
			Retry:            retryCfg,
			FailureThreshold: cfg.Beacon.FailureThreshold,
			SuccessThreshold: 1,
			CoolDown:         cfg.Beacon.CoolDown,
		}, analytics.WithBeaconLogger(lg), analytics.WithBeaconMetrics(m))
		opts = append(opts, adcore.WithBeaconSender(beacons))
	}
	appCtx := adcore.NewAppContext(queue, opts...)
	defer appCtx.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Simulation.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Simulation.Deadline)
		defer cancel()
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	adURL := strings.TrimRight(cfg.Loader.ServerURL, "/") + "/m/ad?id=" + url.QueryEscape(cfg.Loader.AdUnitID)
	lg.Info("Waterfall client starting", "url", adURL, "format", format,
		"failure_rate", cfg.Simulation.FailureRate, "max_ads", cfg.Simulation.MaxAds, "seed", seed)

	var st stats
	for ctx.Err() == nil && (cfg.Simulation.MaxAds <= 0 || st.downloads < cfg.Simulation.MaxAds) {
		st.sessions++
		if err := runSession(ctx, lg, appCtx, adURL, cfg.Loader.AdUnitID, format, cfg.Simulation.FailureRate, rng, &st); err != nil {
			if ctx.Err() == nil {
				lg.Warn("Waterfall session ended", "session", st.sessions, "error", err)
			}
			if !errors.Is(err, adcore.ErrNoFill) {
				break
			}
		}
	}

	lg.Info("Waterfall client finished", "sessions", st.sessions, "served", st.served,
		"downloads", st.downloads, "download_failures", st.failed, "no_fill", st.noFill, "errors", st.errored)
}

// runSession walks one waterfall until a creative downloads or the loader
// gives up.
func runSession(ctx context.Context, lg logger.Logger, appCtx *adcore.AppContext, adURL, adUnitID string,
	format adcore.AdFormat, failureRate float64, rng *rand.Rand, st *stats) error {
	events := make(chanListener, 1)
	loader, err := adloader.New(adURL, format, adUnitID, appCtx, events)
	if err != nil {
		return err
	}

	var lastErr error
	for loader.HasMoreAds() {
		req := loader.LoadNextAd(lastErr)
		lastErr = nil

		ev, ok, err := waitEvent(ctx, appCtx, loader, events)
		if err != nil {
			if req != nil {
				req.Cancel()
			}
			return err
		}
		if !ok {
			// an empty batch delivers nothing; ask again
			continue
		}

		if ev.err != nil {
			if errors.Is(ev.err, adcore.ErrNoFill) {
				st.noFill++
			} else {
				st.errored++
			}
			return ev.err
		}

		st.served++
		if rng.Float64() < failureRate {
			failure := downloadFailures[rng.Intn(len(downloadFailures))]
			st.failed++
			lg.Info("Creative download failed", "ad_type", ev.ad.AdType, "error", failure)
			lastErr = failure
			continue
		}

		loader.CreativeDownloadSuccess()
		st.downloads++
		lg.Info("Creative downloaded", "ad_type", ev.ad.AdType, "network", ev.ad.NetworkType)
		return nil
	}

	st.noFill++
	return adcore.ErrNoFill
}

// waitEvent waits for the next listener callback. ok is false when the loader
// went idle without posting one.
func waitEvent(ctx context.Context, appCtx *adcore.AppContext, loader *adloader.AdLoader,
	events chanListener) (ev event, ok bool, err error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev = <-events:
			return ev, true, nil
		case <-ctx.Done():
			return event{}, false, ctx.Err()
		case <-ticker.C:
			if loader.IsRunning() {
				continue
			}
			appCtx.MainLooper().Drain()
			select {
			case ev = <-events:
				return ev, true, nil
			default:
				return event{}, false, nil
			}
		}
	}
}
