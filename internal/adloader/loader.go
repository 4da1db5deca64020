// Package adloader implements the client side of an ad waterfall: it fetches
// batches of fallback candidates, serves them one at a time and refills from
// the batch's fail URL until the server reports the waterfall finished.
package adloader

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/echoface/adloader/internal/adcore"
	"github.com/echoface/adloader/internal/analytics"
	"github.com/echoface/adloader/internal/metrics"
	"github.com/echoface/adloader/pkg/concurrent"
	"github.com/echoface/adloader/pkg/logger"
)

// ErrInvalidArgument is returned by New for a missing or malformed argument.
var ErrInvalidArgument = errors.New("adloader: invalid argument")

// Fetch stages recorded in metrics.
const (
	stageInitial = "initial"
	stageRefill  = "refill"
)

// Listener receives the loader's results. Both methods run on the app
// context's main looper, never inside a call into the loader. OnError always
// receives an *adcore.NetworkError.
type Listener interface {
	OnSuccess(resp *adcore.AdResponse)
	OnError(err error)
}

// State is the derived state of an AdLoader.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateFailed
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateFailed:
		return "failed"
	case StateExhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// AdLoader runs the waterfall for one ad unit and one caller. Its methods may
// be called from any goroutine.
type AdLoader struct {
	adFormat adcore.AdFormat
	adUnitID string
	listener Listener
	fetches  *fetchListener

	appCtx  weak.Pointer[adcore.AppContext]
	looper  *concurrent.Looper
	logger  logger.Logger
	metrics *metrics.WaterfallMetrics

	mu            sync.Mutex
	request       *adcore.FetchRequest
	cursor        *adcore.ResponseCursor // nil until the first batch arrives
	lastDelivered *adcore.AdResponse
	tracker       *analytics.ContentDownloadAnalytics

	running           atomic.Bool
	failed            atomic.Bool
	contentDownloaded atomic.Bool
}

// New creates a loader that will fetch its first batch from url. The loader
// only keeps a weak reference to appCtx.
func New(url string, adFormat adcore.AdFormat, adUnitID string, appCtx *adcore.AppContext, listener Listener) (*AdLoader, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidArgument)
	}
	if !adFormat.Valid() {
		return nil, fmt.Errorf("%w: ad format %q", ErrInvalidArgument, adFormat)
	}
	if appCtx == nil {
		return nil, fmt.Errorf("%w: nil app context", ErrInvalidArgument)
	}
	if listener == nil {
		return nil, fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}

	l := &AdLoader{
		adFormat: adFormat,
		adUnitID: adUnitID,
		listener: listener,
		appCtx:   weak.Make(appCtx),
		looper:   appCtx.MainLooper(),
		logger:   appCtx.Logger().With("ad_unit", adUnitID, "ad_format", string(adFormat)),
		metrics:  appCtx.Metrics(),
	}
	l.fetches = &fetchListener{loader: l}
	l.request = adcore.NewFetchRequest(url, adFormat, adUnitID, l.fetches)
	return l, nil
}

// HasMoreAds reports whether LoadNextAd can still produce a candidate,
// either from the buffered batch or from the server.
func (l *AdLoader) HasMoreAds() bool {
	if l.failed.Load() || l.contentDownloaded.Load() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor == nil || l.cursor.HasNext() || !l.cursor.Batch().IsWaterfallFinished()
}

// LoadNextAd moves the waterfall forward. lastErr is the creative download
// failure of the previously delivered candidate, or nil. The returned request
// can be cancelled; nil means the outcome was already posted to the listener.
//
// Call HasMoreAds first; past the end of the waterfall the listener gets
// adcore.ErrNoFill, after a transport failure adcore.ErrUnspecified.
func (l *AdLoader) LoadNextAd(lastErr error) *adcore.FetchRequest {
	l.logger.Debug("load next ad", "last_error", lastErr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return l.request
	}
	if l.failed.Load() {
		l.postError(adcore.NewNetworkError(adcore.ReasonUnspecified, "ad loader has failed"))
		return nil
	}

	if l.cursor == nil {
		return l.fetchAd(l.request, stageInitial)
	}

	if lastErr != nil {
		l.creativeDownloadFailed(lastErr)
	}

	if next := l.cursor.Next(); next != nil {
		l.postResponse(next)
		return l.request
	}

	batch := l.cursor.Batch()
	if !batch.IsWaterfallFinished() {
		req := adcore.NewFetchRequest(batch.FailURL(), l.adFormat, l.adUnitID, l.fetches)
		return l.fetchAd(req, stageRefill)
	}

	l.metrics.RecordNoFill()
	l.postError(adcore.NewNetworkError(adcore.ReasonNoFill, "waterfall exhausted"))
	return nil
}

// CreativeDownloadSuccess ends the session: the last delivered candidate's
// creative was downloaded, so no further ads are requested.
func (l *AdLoader) CreativeDownloadSuccess() {
	l.contentDownloaded.Store(true)

	l.mu.Lock()
	tracker, last := l.tracker, l.lastDelivered
	l.mu.Unlock()

	if tracker == nil {
		l.logger.Error("creative download success without a download tracker")
		return
	}
	appCtx := l.context()
	if appCtx == nil || last == nil {
		l.logger.Warn("cannot send after-load analytics", "has_context", appCtx != nil, "has_candidate", last != nil)
		return
	}
	tracker.ReportAfterLoad(appCtx, nil)
}

// IsRunning reports whether a fetch is outstanding.
func (l *AdLoader) IsRunning() bool {
	return l.running.Load()
}

// IsFailed reports whether a fetch failed. It never resets.
func (l *AdLoader) IsFailed() bool {
	return l.failed.Load()
}

func (l *AdLoader) State() State {
	switch {
	case l.failed.Load():
		return StateFailed
	case l.contentDownloaded.Load():
		return StateExhausted
	case l.running.Load():
		return StateFetching
	default:
		return StateIdle
	}
}

// caller holds mu
func (l *AdLoader) creativeDownloadFailed(lastErr error) {
	appCtx := l.context()
	if appCtx == nil || l.lastDelivered == nil {
		l.logger.Warn("cannot send creative failure analytics", "has_context", appCtx != nil, "has_candidate", l.lastDelivered != nil)
		return
	}
	if l.tracker == nil {
		return
	}
	l.tracker.ReportAfterLoad(appCtx, lastErr)
}

// fetchAd submits req and enters Fetching. Without a live app context it
// returns nil and the loader stays idle. Caller holds mu.
func (l *AdLoader) fetchAd(req *adcore.FetchRequest, stage string) *adcore.FetchRequest {
	appCtx := l.context()
	if appCtx == nil {
		l.logger.Warn("app context is gone, fetch skipped", "url", req.URL())
		return nil
	}

	l.logger.Debug("fetching ads", "url", req.URL(), "stage", stage, "request_id", req.ID())
	l.running.Store(true)
	l.request = req
	l.metrics.RecordFetch(stage)
	appCtx.RequestQueue().Submit(req)
	return req
}

func (l *AdLoader) context() *adcore.AppContext {
	appCtx := l.appCtx.Value()
	if appCtx == nil || !appCtx.IsAlive() {
		return nil
	}
	return appCtx
}

func (l *AdLoader) postResponse(resp *adcore.AdResponse) {
	if !l.looper.Post(func() { l.deliverResponse(resp) }) {
		l.logger.Warn("main looper closed, candidate dropped")
	}
}

func (l *AdLoader) postError(err *adcore.NetworkError) {
	if !l.looper.Post(func() { l.deliverError(err) }) {
		l.logger.Warn("main looper closed, error dropped", "error", err)
	}
}

// deliverResponse and deliverError run on the looper.
func (l *AdLoader) deliverResponse(resp *adcore.AdResponse) {
	tracker := analytics.NewContentDownloadAnalytics(resp)

	l.mu.Lock()
	l.tracker = tracker
	l.lastDelivered = resp
	l.mu.Unlock()

	if appCtx := l.context(); appCtx != nil {
		tracker.ReportBeforeLoad(appCtx)
	} else {
		l.logger.Warn("app context is gone, before-load analytics skipped")
	}
	l.metrics.RecordCandidate()
	l.listener.OnSuccess(resp)
}

func (l *AdLoader) deliverError(err *adcore.NetworkError) {
	l.mu.Lock()
	l.lastDelivered = nil
	l.mu.Unlock()

	l.listener.OnError(err)
}

// fetchListener receives transport callbacks on the transport's goroutines.
type fetchListener struct {
	loader *AdLoader
}

func (f *fetchListener) OnFetchSuccess(req *adcore.FetchRequest, resp *adcore.MultiAdResponse) {
	l := f.loader
	l.mu.Lock()
	defer l.mu.Unlock()

	if req != l.request {
		l.logger.Warn("result for a stale request ignored", "request_id", req.ID())
		return
	}
	l.logger.Debug("batch received", "request_id", req.ID(), "candidates", resp.Len(),
		"waterfall_finished", resp.IsWaterfallFinished())

	l.running.Store(false)
	l.cursor = resp.Cursor()
	if next := l.cursor.Next(); next != nil {
		l.postResponse(next)
	}
}

func (f *fetchListener) OnFetchError(req *adcore.FetchRequest, err error) {
	l := f.loader
	netErr := adcore.Classify(err)
	if netErr == nil {
		netErr = adcore.NewNetworkError(adcore.ReasonUnspecified, "transport reported a nil error")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if req != l.request {
		l.logger.Warn("error for a stale request ignored", "request_id", req.ID(), "error", err)
		return
	}
	l.logger.Warn("fetch failed", "request_id", req.ID(), "reason", netErr.Reason.String(), "error", err)

	l.failed.Store(true)
	l.running.Store(false)
	l.metrics.RecordFetchError(netErr.Reason.String())
	l.postError(netErr)
}
