package openrtb_ext

import (
	"encoding/json"
	"fmt"
)

// ExtBid defines the contract for bidresponse.seatbid.bid[i].ext
type ExtBid struct {
	Prebid           *ExtBidPrebid   `json:"prebid,omitempty"`
	OriginalBidCPM   float64         `json:"origbidcpm,omitempty"`
	OriginalBidCur   string          `json:"origbidcur,omitempty"`
	Bidder           json.RawMessage `json:"bidder,omitempty"`
	StoredVideoAttrs json.RawMessage `json:"storedrequestattributes,omitempty"`
}

// ExtBidPrebid defines the contract for bidresponse.seatbid.bid[i].ext.prebid
// DealPriority represents priority of deal bid. If its non deal bid then value will be 0
// DealTierSatisfied true represents corresponding bid satisfied the deal tier
type ExtBidPrebid struct {
	BidId             string              `json:"bidid,omitempty"`
	Cache             *ExtBidPrebidCache  `json:"cache,omitempty"`
	DealPriority      int                 `json:"dealpriority,omitempty"`
	DealTierSatisfied bool                `json:"dealtiersatisfied,omitempty"`
	Events            *ExtBidPrebidEvents `json:"events,omitempty"`
	Targeting         map[string]string   `json:"targeting,omitempty"`
	TargetBidderCode  string              `json:"targetbiddercode,omitempty"`
	Type              BidType             `json:"type"`
	Video             *ExtBidPrebidVideo  `json:"video,omitempty"`
}

// ExtBidPrebidCache defines the contract for  bidresponse.seatbid.bid[i].ext.prebid.cache
type ExtBidPrebidCache struct {
	Key     string            `json:"key,omitempty"`
	Url     string            `json:"url,omitempty"`
	Bids    *ExtResponseCache `json:"bids,omitempty"`
	VastXML *ExtResponseCache `json:"vastXml,omitempty"`
}

// ExtResponseCache points at one cached entry of a bid.
type ExtResponseCache struct {
	URL     string `json:"url"`
	CacheId string `json:"cacheId"`
}

// ExtBidPrebidVideo defines the contract for bidresponse.seatbid.bid[i].ext.prebid.video
type ExtBidPrebidVideo struct {
	Duration        int    `json:"duration"`
	PrimaryCategory string `json:"primary_category"`
	VASTTagID       string `json:"vasttagid,omitempty"`
}

// ExtBidPrebidEvents defines the contract for bidresponse.seatbid.bid[i].ext.prebid.events
type ExtBidPrebidEvents struct {
	Win string `json:"win,omitempty"`
	Imp string `json:"imp,omitempty"`
}

// BidType describes the allowed values for bidresponse.seatbid.bid[i].ext.prebid.type
type BidType string

const (
	BidTypeBanner BidType = "banner"
	BidTypeVideo  BidType = "video"
	BidTypeAudio  BidType = "audio"
	BidTypeNative BidType = "native"
)

func BidTypes() []BidType {
	return []BidType{
		BidTypeBanner,
		BidTypeVideo,
		BidTypeAudio,
		BidTypeNative,
	}
}

func ParseBidType(bidType string) (BidType, error) {
	switch bidType {
	case "banner":
		return BidTypeBanner, nil
	case "video":
		return BidTypeVideo, nil
	case "audio":
		return BidTypeAudio, nil
	case "native":
		return BidTypeNative, nil
	default:
		return "", fmt.Errorf("invalid BidType: %s", bidType)
	}
}

// TargetingKeys are used throughout Prebid as keys which can be used in an ad server like DFP.
// Clients set the values we assign on the request to the ad server, where they can be substituted like macros into
// Creatives.
//
// Removing one of these, or changing the semantics of what we store there, will probably break the
// line item setups for many publishers.
type TargetingKey string

const (
	HbpbConstantKey TargetingKey = "hb_pb"

	// HbEnvKey exists to support the Prebid Universal Creative. If it exists, the only legal value is mobile-app.
	// It will exist only if the incoming bidRequest defined request.app instead of request.site.
	HbEnvKey TargetingKey = "hb_env"

	// HbBidderConstantKey is the name of the Bidder. For example, "appnexus" or "rubicon".
	HbBidderConstantKey TargetingKey = "hb_bidder"
	HbSizeConstantKey   TargetingKey = "hb_size"
	HbDealIdConstantKey TargetingKey = "hb_deal"

	// HbCacheKey and HbVastCacheKey store UUIDs which can be used to fetch things from prebid cache.
	// Callers should *never* assume that either of these exist, since the call to the cache may always fail.
	//
	// HbCacheKey's UUID will fetch the entire bid JSON, while HbVastCacheKey will fetch just the VAST XML.
	// HbVastCacheKey will only ever exist for Video bids.
	HbCacheKey     TargetingKey = "hb_cache_id"
	HbVastCacheKey TargetingKey = "hb_uuid"

	// HbConstantCacheHostKey and HbConstantCacheHostPathKey tell the creative where the cache lives.
	HbConstantCacheHostKey     TargetingKey = "hb_cache_host"
	HbConstantCacheHostPathKey TargetingKey = "hb_cache_path"

	// This is not a key, but values used by the HbEnvKey
	HbEnvKeyApp string = "mobile-app"

	HbCategoryDurationKey TargetingKey = "hb_pb_cat_dur"

	// HbFormatKey holds the media type of the bid when targeting.includeformat is set.
	HbFormatKey TargetingKey = "hb_format"
)

// BidderKey returns the key suffixed with the bidder code, cut to maxLength when it is non zero.
func (key TargetingKey) BidderKey(bidder BidderName, maxLength int) string {
	return TruncateKey(string(key)+"_"+string(bidder), maxLength)
}

// TruncatedKey returns the key cut to maxLength when it is non zero.
func (key TargetingKey) TruncatedKey(maxLength int) string {
	return TruncateKey(string(key), maxLength)
}

func TruncateKey(key string, maxLength int) string {
	if maxLength > 0 && len(key) > maxLength {
		return key[:maxLength]
	}
	return key
}
