package adcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoface/adloader/pkg/logger"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func TestClassify(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	custom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"no content", statusErr(204), ReasonNoFill},
		{"not found", statusErr(404), ReasonBadRequest},
		{"bad gateway", statusErr(502), ReasonServerError},
		{"redirect", statusErr(302), ReasonUnspecified},
		{"wrapped status", fmt.Errorf("fetch: %w", statusErr(400)), ReasonBadRequest},
		{"net error", opErr, ReasonNoConnection},
		{"deadline", context.DeadlineExceeded, ReasonNoConnection},
		{"short body", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), ReasonNoConnection},
		{"unknown", custom, ReasonUnspecified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Reason)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestClassify_PassesNetworkErrorThrough(t *testing.T) {
	orig := NewNetworkError(ReasonNoFill, "nothing left")
	got := Classify(fmt.Errorf("outer: %w", orig))
	assert.Same(t, orig, got)
	assert.Equal(t, ReasonNoFill, ReasonOf(orig))
}

func TestNetworkError_IsMatchesReason(t *testing.T) {
	err := WrapNetworkError(ReasonServerError, errors.New("upstream 503"))
	assert.ErrorIs(t, err, ErrServerError)
	assert.NotErrorIs(t, err, ErrNoFill)
	assert.Equal(t, "upstream 503", err.Error())
	assert.Equal(t, "bad_request", WrapNetworkError(ReasonBadRequest, nil).Error())
}

func TestAdFormat(t *testing.T) {
	f, err := ParseAdFormat("interstitial")
	require.NoError(t, err)
	assert.Equal(t, FormatInterstitial, f)
	assert.True(t, f.Valid())

	_, err = ParseAdFormat("popup")
	assert.Error(t, err)
	assert.False(t, AdFormat("").Valid())
}

func TestResponseCursor(t *testing.T) {
	a, b := &AdResponse{AdType: "html"}, &AdResponse{AdType: "mraid"}
	src := []*AdResponse{a, b}
	batch := NewMultiAdResponse(src, "http://next", false)
	src[0] = nil

	assert.Equal(t, 2, batch.Len())
	assert.Same(t, a, batch.At(0))
	assert.Equal(t, "http://next", batch.FailURL())
	assert.False(t, batch.IsWaterfallFinished())

	cur := batch.Cursor()
	assert.Same(t, batch, cur.Batch())
	assert.Equal(t, 2, cur.Remaining())
	assert.Same(t, a, cur.Next())
	assert.Same(t, b, cur.Next())
	assert.False(t, cur.HasNext())
	assert.Nil(t, cur.Next())
	assert.Equal(t, 0, cur.Remaining())

	// cursors are independent
	assert.Same(t, a, batch.Cursor().Next())
}

type recordingFetchListener struct {
	successes atomic.Int32
	errs      atomic.Int32
}

func (l *recordingFetchListener) OnFetchSuccess(*FetchRequest, *MultiAdResponse) { l.successes.Add(1) }
func (l *recordingFetchListener) OnFetchError(*FetchRequest, error)              { l.errs.Add(1) }

func TestFetchRequest_DeliversExactlyOnce(t *testing.T) {
	l := &recordingFetchListener{}
	req := NewFetchRequest("http://ads", FormatBanner, "unit-1", l)
	require.NotEmpty(t, req.ID())
	assert.Equal(t, "http://ads", req.URL())
	assert.Equal(t, FormatBanner, req.AdFormat())
	assert.Equal(t, "unit-1", req.AdUnitID())

	var wg sync.WaitGroup
	var delivered atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if i%2 == 0 {
				ok = req.DeliverSuccess(NewMultiAdResponse(nil, "", true))
			} else {
				ok = req.DeliverError(ErrServerError)
			}
			if ok {
				delivered.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), delivered.Load())
	assert.Equal(t, int32(1), l.successes.Load()+l.errs.Load())
}

func TestFetchRequest_CancelSuppressesDelivery(t *testing.T) {
	l := &recordingFetchListener{}
	req := NewFetchRequest("http://ads", FormatBanner, "unit-1", l)
	req.Cancel()

	assert.True(t, req.IsCanceled())
	assert.Error(t, req.Context().Err())
	assert.False(t, req.DeliverError(ErrNoConnection))
	assert.Zero(t, l.errs.Load())
}

type closingTransport struct{ closed atomic.Bool }

func (c *closingTransport) Submit(*FetchRequest) {}
func (c *closingTransport) Close() error {
	c.closed.Store(true)
	return nil
}

func TestAppContext_Shutdown(t *testing.T) {
	tr := &closingTransport{}
	ac := NewAppContext(tr, WithLogger(logger.NewNop()))
	require.True(t, ac.IsAlive())
	assert.Same(t, tr, ac.RequestQueue())
	assert.Nil(t, ac.BeaconSender())
	assert.Nil(t, ac.Metrics())

	ran := make(chan struct{})
	require.True(t, ac.MainLooper().Post(func() { close(ran) }))

	ac.Shutdown()
	ac.Shutdown()

	<-ran
	assert.False(t, ac.IsAlive())
	assert.True(t, tr.closed.Load())
	assert.True(t, ac.MainLooper().Closed())
	assert.Error(t, ac.ShutdownCtx.Err())
}
