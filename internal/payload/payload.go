// Package payload decodes the multi-candidate waterfall response served by
// the ad server.
package payload

import (
	"errors"
	"fmt"
	"time"

	"github.com/echoface/adloader/internal/adcore"
	"github.com/echoface/adloader/pkg/jsonx"
)

// AdTypeClear marks the end of the waterfall: no entry after it is served
// and no further batch is requested.
const AdTypeClear = "clear"

var (
	ErrEmptyBody     = errors.New("payload: empty body")
	ErrMissingAdType = errors.New("payload: entry has no x-adtype")
)

type (
	// Response is the wire form of one batch.
	Response struct {
		AdResponses []Entry `json:"ad-responses"`
		NextURL     string  `json:"x-next-url,omitempty"`
	}

	Entry struct {
		AdUnitFormat string   `json:"adunit-format,omitempty"`
		Body         string   `json:"body,omitempty"`
		Metadata     Metadata `json:"metadata"`
	}

	Metadata struct {
		AdType               string         `json:"x-adtype,omitempty"`
		NetworkType          string         `json:"x-network-type,omitempty"`
		CustomEventClassName string         `json:"x-custom-event-class-name,omitempty"`
		CustomEventClassData map[string]any `json:"x-custom-event-class-data,omitempty"`
		BeforeLoadURL        string         `json:"x-before-load-url,omitempty"`
		AfterLoadURLs        []string       `json:"x-after-load-url,omitempty"`
		ImpTrackers          []string       `json:"x-imptracker,omitempty"`
		ClickThrough         string         `json:"x-clickthrough,omitempty"`
		RefreshTime          int            `json:"x-refreshtime,omitempty"` // seconds
	}
)

// Request carries what the decoder needs from the originating fetch.
type Request struct {
	AdUnitID string
	AdFormat adcore.AdFormat
}

// Decode parses body into a batch. Entries without an adunit-format inherit
// the request format. A "clear" entry truncates the batch there and marks
// the waterfall finished.
func Decode(body []byte, req Request) (*adcore.MultiAdResponse, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	var wire Response
	if err := jsonx.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}

	receivedAt := time.Now()
	failURL := wire.NextURL
	responses := make([]*adcore.AdResponse, 0, len(wire.AdResponses))
	for i := range wire.AdResponses {
		entry := &wire.AdResponses[i]
		if entry.Metadata.AdType == "" {
			return nil, fmt.Errorf("%w (entry %d)", ErrMissingAdType, i)
		}
		if entry.Metadata.AdType == AdTypeClear {
			failURL = ""
			break
		}
		resp, err := toAdResponse(entry, req, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("payload: entry %d: %w", i, err)
		}
		responses = append(responses, resp)
	}

	return adcore.NewMultiAdResponse(responses, failURL, failURL == ""), nil
}

func toAdResponse(e *Entry, req Request, receivedAt time.Time) (*adcore.AdResponse, error) {
	format := req.AdFormat
	if e.AdUnitFormat != "" {
		f, err := adcore.ParseAdFormat(e.AdUnitFormat)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var extras map[string]string
	if len(e.Metadata.CustomEventClassData) > 0 {
		extras = make(map[string]string, len(e.Metadata.CustomEventClassData))
		for k, v := range e.Metadata.CustomEventClassData {
			if s, ok := v.(string); ok {
				extras[k] = s
				continue
			}
			extras[k] = jsonx.JSONS(v)
		}
	}

	return &adcore.AdResponse{
		AdUnitID:               req.AdUnitID,
		AdFormat:               format,
		AdType:                 e.Metadata.AdType,
		NetworkType:            e.Metadata.NetworkType,
		CustomEventClassName:   e.Metadata.CustomEventClassName,
		ServerExtras:           extras,
		Body:                   e.Body,
		ImpressionTrackingURLs: e.Metadata.ImpTrackers,
		ClickTrackingURL:       e.Metadata.ClickThrough,
		BeforeLoadURL:          e.Metadata.BeforeLoadURL,
		AfterLoadURLs:          e.Metadata.AfterLoadURLs,
		RefreshInterval:        time.Duration(e.Metadata.RefreshTime) * time.Second,
		ReceivedAt:             receivedAt,
	}, nil
}

// Encode renders a batch in wire form. Used by the demo server.
func Encode(resp *Response) ([]byte, error) {
	return jsonx.JSONE(resp)
}
