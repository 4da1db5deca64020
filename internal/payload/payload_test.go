package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoface/adloader/internal/adcore"
)

var req = Request{AdUnitID: "unit-1", AdFormat: adcore.FormatInterstitial}

func TestDecode_Batch(t *testing.T) {
	body := []byte(`{
		"ad-responses": [
			{"body": "<html/>", "metadata": {
				"x-adtype": "html",
				"x-custom-event-class-data": {"placement": "p1", "floor": 2},
				"x-before-load-url": "http://t/before",
				"x-after-load-url": ["http://t/after?r=%%LOAD_RESULT%%"],
				"x-imptracker": ["http://t/imp"],
				"x-clickthrough": "http://t/click",
				"x-refreshtime": 30}},
			{"adunit-format": "banner", "metadata": {"x-adtype": "custom", "x-custom-event-class-name": "com.x.Banner"}}
		],
		"x-next-url": "http://ads/m/ad?id=unit-1&page=2"
	}`)

	batch, err := Decode(body, req)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "http://ads/m/ad?id=unit-1&page=2", batch.FailURL())
	assert.False(t, batch.IsWaterfallFinished())

	first := batch.At(0)
	assert.Equal(t, "unit-1", first.AdUnitID)
	assert.Equal(t, adcore.FormatInterstitial, first.AdFormat)
	assert.Equal(t, "html", first.AdType)
	assert.Equal(t, "<html/>", first.Body)
	assert.Equal(t, map[string]string{"placement": "p1", "floor": "2"}, first.ServerExtras)
	assert.Equal(t, "http://t/before", first.BeforeLoadURL)
	assert.Equal(t, []string{"http://t/after?r=%%LOAD_RESULT%%"}, first.AfterLoadURLs)
	assert.Equal(t, []string{"http://t/imp"}, first.ImpressionTrackingURLs)
	assert.Equal(t, "http://t/click", first.ClickTrackingURL)
	assert.Equal(t, 30*time.Second, first.RefreshInterval)
	assert.False(t, first.ReceivedAt.IsZero())

	second := batch.At(1)
	assert.Equal(t, adcore.FormatBanner, second.AdFormat)
	assert.Equal(t, "com.x.Banner", second.CustomEventClassName)
	assert.Nil(t, second.ServerExtras)
}

func TestDecode_ClearEndsWaterfall(t *testing.T) {
	body := []byte(`{
		"ad-responses": [
			{"metadata": {"x-adtype": "html"}},
			{"metadata": {"x-adtype": "clear"}},
			{"metadata": {"x-adtype": "html"}}
		],
		"x-next-url": "http://ads/next"
	}`)
	batch, err := Decode(body, req)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
	assert.Empty(t, batch.FailURL())
	assert.True(t, batch.IsWaterfallFinished())
}

func TestDecode_EmptyFinished(t *testing.T) {
	batch, err := Decode([]byte(`{"ad-responses": []}`), req)
	require.NoError(t, err)
	assert.Zero(t, batch.Len())
	assert.True(t, batch.IsWaterfallFinished())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil, req)
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = Decode([]byte(`{"ad-responses": [{"metadata": {}}]}`), req)
	assert.ErrorIs(t, err, ErrMissingAdType)

	_, err = Decode([]byte(`{"ad-responses": [{"adunit-format": "popup", "metadata": {"x-adtype": "html"}}]}`), req)
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`), req)
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(&Response{
		AdResponses: []Entry{{Body: "b", Metadata: Metadata{AdType: "html", RefreshTime: 5}}},
		NextURL:     "http://next",
	})
	require.NoError(t, err)

	batch, err := Decode(data, req)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())
	assert.Equal(t, "b", batch.At(0).Body)
	assert.Equal(t, "http://next", batch.FailURL())
}
