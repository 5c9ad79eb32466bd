package openrtb_ext

import (
	"encoding/json"
	"strings"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
)

// BidAdjustmentMediaType is the media type key of bidrequest.ext.prebid.bidadjustmentfactors.mediatypes
type BidAdjustmentMediaType string

const (
	BidAdjustmentMediaTypeBanner         BidAdjustmentMediaType = "banner"
	BidAdjustmentMediaTypeAudio          BidAdjustmentMediaType = "audio"
	BidAdjustmentMediaTypeNative         BidAdjustmentMediaType = "native"
	BidAdjustmentMediaTypeVideoInstream  BidAdjustmentMediaType = "video-instream"
	BidAdjustmentMediaTypeVideoOutstream BidAdjustmentMediaType = "video-outstream"
)

const mediaTypesKey = "mediatypes"

// ExtRequestBidAdjustmentFactors defines the contract for bidrequest.ext.prebid.bidadjustmentfactors.
// Flat bidder keys sit next to an optional "mediatypes" object keyed by BidAdjustmentMediaType.
type ExtRequestBidAdjustmentFactors struct {
	Bidders    map[string]float64
	MediaTypes map[BidAdjustmentMediaType]map[string]float64
}

func (f *ExtRequestBidAdjustmentFactors) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	f.Bidders = make(map[string]float64, len(raw))
	for key, value := range raw {
		if key == mediaTypesKey {
			if err := json.Unmarshal(value, &f.MediaTypes); err != nil {
				return err
			}
			continue
		}
		var factor float64
		if err := json.Unmarshal(value, &factor); err != nil {
			return err
		}
		f.Bidders[key] = factor
	}
	return nil
}

func (f ExtRequestBidAdjustmentFactors) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(f.Bidders)+1)
	for bidder, factor := range f.Bidders {
		out[bidder] = factor
	}
	if len(f.MediaTypes) > 0 {
		out[mediaTypesKey] = f.MediaTypes
	}
	return json.Marshal(out)
}

// Factor returns the media type specific factor for the bidder, falling back to the flat bidder
// factor. Bidder names are matched case insensitively. The second result is false when nothing
// is configured.
func (f *ExtRequestBidAdjustmentFactors) Factor(bidder string, mediaType BidAdjustmentMediaType) (float64, bool) {
	if f == nil {
		return 0, false
	}
	if factor, ok := lookupFactor(f.MediaTypes[mediaType], bidder); ok {
		return factor, true
	}
	return lookupFactor(f.Bidders, bidder)
}

func lookupFactor(factors map[string]float64, bidder string) (float64, bool) {
	if factors == nil {
		return 0, false
	}
	if factor, ok := factors[bidder]; ok {
		return factor, true
	}
	for name, factor := range factors {
		if strings.EqualFold(name, bidder) {
			return factor, true
		}
	}
	return 0, false
}

// VideoAdjustmentMediaType classifies a video object: placement in-stream or unset is instream,
// every other placement is outstream.
func VideoAdjustmentMediaType(video *openrtb2.Video) BidAdjustmentMediaType {
	if video == nil || video.Placement == 0 || video.Placement == adcom1.VideoPlacementInStream {
		return BidAdjustmentMediaTypeVideoInstream
	}
	return BidAdjustmentMediaTypeVideoOutstream
}
