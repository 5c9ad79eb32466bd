package exchange

import (
	"fmt"

	"github.com/prebid/prebid-auction/adservertargeting"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/pbs"
)

const defaultTruncateAttrChars = 20

// targetData holds what the targeting keywords of an auction are built from.
//
// All functions on this struct are nil-safe. If the targetData struct is nil, then they behave
// like they would if no targeting information is needed.
type targetData struct {
	targeting         *openrtb_ext.ExtRequestTargeting
	includeWinners    bool
	includeBidderKeys bool
	includeFormat     bool
	lengthMax         int
	isApp             bool
	cacheHost         string
	cachePath         string
	resolver          *adservertargeting.Resolver
}

// resolveTruncateAttrChars picks the request value over the account value over the host value.
func resolveTruncateAttrChars(targeting *openrtb_ext.ExtRequestTargeting, accountValue *int, hostValue int) int {
	if targeting != nil && targeting.TruncateAttrChars != nil {
		return *targeting.TruncateAttrChars
	}
	if accountValue != nil {
		return *accountValue
	}
	if hostValue > 0 {
		return hostValue
	}
	return defaultTruncateAttrChars
}

// makeTargeting returns the keywords of a bid, or nil when the bid gets none.
func (t *targetData) makeTargeting(bid *BidInfo) map[string]string {
	if t == nil || !bid.Targeting.IsTargetingEnabled {
		return nil
	}

	code := openrtb_ext.BidderName(bid.Targeting.BidderCode)
	keywords := make(map[string]string)
	set := func(key openrtb_ext.TargetingKey, value string) {
		if value == "" {
			return
		}
		if t.includeBidderKeys || bid.Targeting.IsAddTargetBidderCode {
			keywords[key.BidderKey(code, t.lengthMax)] = value
		}
		if t.includeWinners && bid.Targeting.IsWinningBid {
			keywords[key.TruncatedKey(t.lengthMax)] = value
		}
	}

	set(openrtb_ext.HbpbConstantKey, pbs.GetPriceBucket(bid.Bid.Price, t.targeting.GetPriceGranularity(bid.BidType)))
	set(openrtb_ext.HbBidderConstantKey, string(code))
	if bid.Bid.W != 0 && bid.Bid.H != 0 {
		set(openrtb_ext.HbSizeConstantKey, fmt.Sprintf("%dx%d", bid.Bid.W, bid.Bid.H))
	}
	set(openrtb_ext.HbDealIdConstantKey, bid.Bid.DealID)
	set(openrtb_ext.HbCacheKey, bid.CacheIDs.BidsID)
	set(openrtb_ext.HbVastCacheKey, bid.CacheIDs.VideoID)
	if (bid.CacheIDs.BidsID != "" || bid.CacheIDs.VideoID != "") && t.cacheHost != "" {
		set(openrtb_ext.HbConstantCacheHostKey, t.cacheHost)
		set(openrtb_ext.HbConstantCacheHostPathKey, t.cachePath)
	}
	set(openrtb_ext.HbCategoryDurationKey, bid.CatDur)
	if t.includeFormat {
		set(openrtb_ext.HbFormatKey, string(bid.BidType))
	}
	if t.isApp {
		set(openrtb_ext.HbEnvKey, openrtb_ext.HbEnvKeyApp)
	}

	for key, value := range t.resolver.Resolve(bid.Bid, string(code)) {
		keywords[openrtb_ext.TruncateKey(key, t.lengthMax)] = value
	}
	return keywords
}
