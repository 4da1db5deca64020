package adcore

import "fmt"

// AdFormat is the placement type an ad unit serves.
type AdFormat string

const (
	FormatBanner        AdFormat = "banner"
	FormatInterstitial  AdFormat = "interstitial"
	FormatRewardedVideo AdFormat = "rewarded_video"
	FormatNative        AdFormat = "native"
)

func (f AdFormat) Valid() bool {
	switch f {
	case FormatBanner, FormatInterstitial, FormatRewardedVideo, FormatNative:
		return true
	}
	return false
}

func ParseAdFormat(s string) (AdFormat, error) {
	f := AdFormat(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown ad format %q", s)
	}
	return f, nil
}
