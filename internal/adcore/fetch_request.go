package adcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	// FetchListener receives the outcome of a FetchRequest.
	FetchListener interface {
		OnFetchSuccess(req *FetchRequest, resp *MultiAdResponse)
		OnFetchError(req *FetchRequest, err error)
	}

	// Transport performs FetchRequests asynchronously. Submit must not block
	// and must not call the listener on the submitting goroutine; exactly one
	// of DeliverSuccess / DeliverError is called per request unless the
	// request was cancelled.
	Transport interface {
		Submit(req *FetchRequest)
	}

	// BeaconSender fires analytics URLs and forgets about them.
	BeaconSender interface {
		Send(urls ...string)
	}
)

// FetchRequest asks the server for one batch of waterfall candidates. It is
// also the cancellable handle the loader hands back to its caller.
type FetchRequest struct {
	id        string
	url       string
	adFormat  AdFormat
	adUnitID  string
	listener  FetchListener
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewFetchRequest(url string, adFormat AdFormat, adUnitID string, listener FetchListener) *FetchRequest {
	ctx, cancel := context.WithCancel(context.Background())
	return &FetchRequest{
		id:        uuid.NewString(),
		url:       url,
		adFormat:  adFormat,
		adUnitID:  adUnitID,
		listener:  listener,
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *FetchRequest) ID() string           { return r.id }
func (r *FetchRequest) URL() string          { return r.url }
func (r *FetchRequest) AdFormat() AdFormat   { return r.adFormat }
func (r *FetchRequest) AdUnitID() string     { return r.adUnitID }
func (r *FetchRequest) CreatedAt() time.Time { return r.createdAt }

// Context is done once the request is cancelled.
func (r *FetchRequest) Context() context.Context { return r.ctx }

// Cancel asks the transport to abandon the request. A cancelled request
// delivers nothing to its listener.
func (r *FetchRequest) Cancel() { r.cancel() }

func (r *FetchRequest) IsCanceled() bool { return r.ctx.Err() != nil }

// DeliverSuccess hands resp to the listener unless something was already
// delivered or the request was cancelled. It reports whether it delivered.
func (r *FetchRequest) DeliverSuccess(resp *MultiAdResponse) bool {
	return r.deliver(func() { r.listener.OnFetchSuccess(r, resp) })
}

// DeliverError is the failure counterpart of DeliverSuccess.
func (r *FetchRequest) DeliverError(err error) bool {
	return r.deliver(func() { r.listener.OnFetchError(r, err) })
}

func (r *FetchRequest) deliver(fn func()) bool {
	if r.IsCanceled() || r.listener == nil {
		return false
	}
	delivered := false
	r.once.Do(func() {
		delivered = true
		fn()
	})
	return delivered
}
