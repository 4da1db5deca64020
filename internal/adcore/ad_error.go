package adcore

// AdError is a creative download failure reported back to the loader by the
// caller, as the lastErr argument of LoadNextAd.
type AdError int

const (
	AdErrorUnspecified AdError = iota
	AdErrorNetworkTimeout
	AdErrorAdapterNotFound
	AdErrorAdapterConfiguration
	AdErrorInvalidData
	AdErrorVideoPlayback
	AdErrorRendering
)

func (e AdError) Error() string {
	switch e {
	case AdErrorNetworkTimeout:
		return "creative download timed out"
	case AdErrorAdapterNotFound:
		return "adapter not found"
	case AdErrorAdapterConfiguration:
		return "adapter configuration error"
	case AdErrorInvalidData:
		return "invalid creative data"
	case AdErrorVideoPlayback:
		return "video playback error"
	case AdErrorRendering:
		return "creative rendering error"
	default:
		return "unspecified creative error"
	}
}
