package analytics

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/echoface/adloader/internal/adcore"
)

const (
	MacroLoadDurationMs = "%%LOAD_DURATION_MS%%"
	MacroLoadResult     = "%%LOAD_RESULT%%"
)

// Values substituted for MacroLoadResult.
const (
	ResultAdLoaded       = "ad_loaded"
	ResultMissingAdapter = "missing_adapter"
	ResultTimeout        = "timeout"
	ResultInvalidData    = "invalid_data"
)

// ContentDownloadAnalytics reports the before-load and after-load events of
// a single candidate. After-load fires at most once, and only once
// before-load has been reported.
type ContentDownloadAnalytics struct {
	candidate *adcore.AdResponse
	now       func() time.Time

	startedAt  atomic.Int64 // unix nanos, 0 until before-load
	afterFired atomic.Bool
}

func NewContentDownloadAnalytics(candidate *adcore.AdResponse) *ContentDownloadAnalytics {
	return &ContentDownloadAnalytics{candidate: candidate, now: time.Now}
}

func (a *ContentDownloadAnalytics) Candidate() *adcore.AdResponse {
	return a.candidate
}

// ReportBeforeLoad records the download start and fires the candidate's
// before-load URL. Only the first call has any effect.
func (a *ContentDownloadAnalytics) ReportBeforeLoad(appCtx *adcore.AppContext) {
	if appCtx == nil || a.candidate == nil {
		return
	}
	if !a.startedAt.CompareAndSwap(0, a.now().UnixNano()) {
		return
	}
	if a.candidate.BeforeLoadURL == "" {
		return
	}
	send(appCtx, a.candidate.BeforeLoadURL)
}

// ReportAfterLoad fires the after-load URLs with the load duration and
// result substituted. loadErr nil means the creative loaded.
func (a *ContentDownloadAnalytics) ReportAfterLoad(appCtx *adcore.AppContext, loadErr error) {
	if appCtx == nil || a.candidate == nil {
		return
	}
	started := a.startedAt.Load()
	if started == 0 {
		appCtx.Logger().Debug("after-load reported before before-load, dropped",
			"ad_unit", a.candidate.AdUnitID)
		return
	}
	if !a.afterFired.CompareAndSwap(false, true) {
		return
	}

	result := LoadResult(loadErr)
	appCtx.Metrics().RecordCreativeDownload(result)
	if len(a.candidate.AfterLoadURLs) == 0 {
		return
	}

	durationMs := a.now().Sub(time.Unix(0, started)).Milliseconds()
	replacer := strings.NewReplacer(
		MacroLoadDurationMs, strconv.FormatInt(durationMs, 10),
		MacroLoadResult, result,
	)
	urls := make([]string, 0, len(a.candidate.AfterLoadURLs))
	for _, u := range a.candidate.AfterLoadURLs {
		if u == "" {
			continue
		}
		urls = append(urls, replacer.Replace(u))
	}
	send(appCtx, urls...)
}

// LoadResult maps a creative load error onto its MacroLoadResult value.
func LoadResult(loadErr error) string {
	if loadErr == nil {
		return ResultAdLoaded
	}
	var adErr adcore.AdError
	if errors.As(loadErr, &adErr) {
		switch adErr {
		case adcore.AdErrorAdapterNotFound:
			return ResultMissingAdapter
		case adcore.AdErrorNetworkTimeout:
			return ResultTimeout
		}
	}
	return ResultInvalidData
}

func send(appCtx *adcore.AppContext, urls ...string) {
	if len(urls) == 0 {
		return
	}
	sender := appCtx.BeaconSender()
	if sender == nil {
		appCtx.Logger().Debug("no beacon sender configured, beacons dropped", "count", len(urls))
		return
	}
	sender.Send(urls...)
}
