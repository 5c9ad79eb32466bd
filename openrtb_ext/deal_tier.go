package openrtb_ext

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

// DealTier defines the configuration of a deal tier.
type DealTier struct {
	// Prefix specifies the beginning of the hb_pb_cat_dur targeting key value. Must be non-empty.
	Prefix string `json:"prefix"`

	// MinDealTier specifies the minimum deal priority value (inclusive) that must be met for the targeting
	// key value to be modified. Must be greater than 0.
	MinDealTier int `json:"minDealTier"`
}

// Validate reports a configuration error for an incomplete tier.
func (d DealTier) Validate() error {
	if d.Prefix == "" {
		return errors.New("dealTier.prefix must be a non-empty string")
	}
	if d.MinDealTier <= 0 {
		return errors.New("dealTier.minDealTier must be greater than 0")
	}
	return nil
}

// DealTierBidderMap defines a correlation between bidders and deal tiers.
type DealTierBidderMap map[BidderName]DealTier

// ReadDealTiersFromImp returns the deal tiers of an impression of the original request (not split / cleaned).
// A tier declared in the bidder's direct imp.ext.<bidder> params takes precedence over one declared in
// imp.ext.prebid.bidder.<bidder>. Malformed tiers are reported per bidder and left out of the map.
func ReadDealTiersFromImp(imp openrtb2.Imp) (DealTierBidderMap, []error) {
	dealTiers := make(DealTierBidderMap)

	if len(imp.Ext) == 0 {
		return dealTiers, nil
	}

	var errs []error
	readTier := func(bidder string, params []byte) {
		rawTier, dataType, _, err := jsonparser.Get(params, "dealTier")
		if err != nil || dataType != jsonparser.Object {
			return
		}
		var tier DealTier
		if err := jsonutil.Unmarshal(rawTier, &tier); err != nil {
			errs = append(errs, fmt.Errorf("dealTier for bidder %s is invalid: %v", bidder, err))
			return
		}
		if _, exists := dealTiers[BidderName(bidder)]; exists {
			return
		}
		dealTiers[BidderName(bidder)] = tier
	}

	jsonparser.ObjectEach(imp.Ext, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		if dataType == jsonparser.Object && !IsBidderNameReserved(string(key)) {
			readTier(string(key), value)
		}
		return nil
	})

	if prebidBidders, dataType, _, err := jsonparser.Get(imp.Ext, "prebid", "bidder"); err == nil && dataType == jsonparser.Object {
		jsonparser.ObjectEach(prebidBidders, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
			if dataType == jsonparser.Object {
				readTier(string(key), value)
			}
			return nil
		})
	}

	return dealTiers, errs
}
