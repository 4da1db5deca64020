package adcore

import "time"

type (
	// AdResponse describes one waterfall candidate. Values are produced by the
	// payload decoder and must be treated as read-only afterwards.
	AdResponse struct {
		AdUnitID             string
		AdFormat             AdFormat
		AdType               string
		NetworkType          string
		CustomEventClassName string
		ServerExtras         map[string]string
		Body                 string

		ImpressionTrackingURLs []string
		ClickTrackingURL       string
		BeforeLoadURL          string
		AfterLoadURLs          []string

		RefreshInterval time.Duration
		ReceivedAt      time.Time
	}

	// MultiAdResponse is one server round trip: an ordered batch of
	// candidates plus the continuation metadata. It is never mutated; the
	// consumption position lives in a ResponseCursor.
	MultiAdResponse struct {
		responses         []*AdResponse
		failURL           string
		waterfallFinished bool
	}

	// ResponseCursor walks a MultiAdResponse front to back exactly once.
	ResponseCursor struct {
		batch *MultiAdResponse
		pos   int
	}
)

// NewMultiAdResponse copies responses, so later changes to the caller's
// slice do not leak into the batch.
func NewMultiAdResponse(responses []*AdResponse, failURL string, waterfallFinished bool) *MultiAdResponse {
	cp := make([]*AdResponse, len(responses))
	copy(cp, responses)
	return &MultiAdResponse{
		responses:         cp,
		failURL:           failURL,
		waterfallFinished: waterfallFinished,
	}
}

func (m *MultiAdResponse) Len() int {
	return len(m.responses)
}

func (m *MultiAdResponse) At(i int) *AdResponse {
	return m.responses[i]
}

// FailURL is where the next batch is requested once this one is used up.
func (m *MultiAdResponse) FailURL() string {
	return m.failURL
}

// IsWaterfallFinished reports that the server has no further batches.
func (m *MultiAdResponse) IsWaterfallFinished() bool {
	return m.waterfallFinished
}

// Cursor returns a fresh cursor positioned before the first candidate.
func (m *MultiAdResponse) Cursor() *ResponseCursor {
	return &ResponseCursor{batch: m}
}

func (c *ResponseCursor) Batch() *MultiAdResponse {
	return c.batch
}

func (c *ResponseCursor) HasNext() bool {
	return c.pos < c.batch.Len()
}

// Next returns the next candidate and advances, or nil when exhausted.
func (c *ResponseCursor) Next() *AdResponse {
	if !c.HasNext() {
		return nil
	}
	resp := c.batch.At(c.pos)
	c.pos++
	return resp
}

// Remaining is the number of candidates not yet taken.
func (c *ResponseCursor) Remaining() int {
	return c.batch.Len() - c.pos
}
