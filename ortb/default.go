package ortb

import (
	"encoding/json"
	"errors"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
	"github.com/prebid/prebid-auction/util/ptrutil"
	"github.com/tidwall/sjson"
)

const (
	DefaultPriceGranularityPrecision  = 2
	DefaultTargetingIncludeWinners    = true
	DefaultTargetingIncludeBidderKeys = true
	DefaultSecure                     = int8(1)
)

// SetDefaults fills in the request fields an auction relies on: targeting defaults under
// ext.prebid.targeting, imp.secure and tmax. Only the targeting object is rewritten in ext.
func SetDefaults(r *openrtb2.BidRequest, defaultTmax int) error {
	targetingJSON, dataType, _, err := jsonparser.Get(r.Ext, "prebid", "targeting")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return err
	}

	if dataType == jsonparser.Object {
		var targeting openrtb_ext.ExtRequestTargeting
		if err := jsonutil.Unmarshal(targetingJSON, &targeting); err != nil {
			return err
		}
		if setDefaultsTargeting(&targeting) {
			updated, err := json.Marshal(targeting)
			if err != nil {
				return err
			}
			if r.Ext, err = sjson.SetRawBytes(r.Ext, "prebid.targeting", updated); err != nil {
				return err
			}
		}
	}

	setDefaultsImp(r.Imp)

	if r.TMax == 0 {
		r.TMax = int64(defaultTmax)
	}

	return nil
}

func setDefaultsTargeting(targeting *openrtb_ext.ExtRequestTargeting) bool {
	if targeting == nil {
		return false
	}

	modified := false

	if newPG, updated := setDefaultsPriceGranularity(targeting.PriceGranularity); updated {
		modified = true
		targeting.PriceGranularity = newPG
	}

	// media type granularities are only normalized when present; an absent one falls back
	// to the request level granularity at bucketing time
	if targeting.MediaTypePriceGranularity != nil {
		mtpg := targeting.MediaTypePriceGranularity
		for _, pg := range []**openrtb_ext.PriceGranularity{&mtpg.Banner, &mtpg.Video, &mtpg.Native} {
			if *pg == nil {
				continue
			}
			if newPG, updated := setDefaultsPriceGranularity(*pg); updated {
				modified = true
				*pg = newPG
			}
		}
	}

	if targeting.IncludeWinners == nil {
		targeting.IncludeWinners = ptrutil.ToPtr(DefaultTargetingIncludeWinners)
		modified = true
	}

	if targeting.IncludeBidderKeys == nil {
		targeting.IncludeBidderKeys = ptrutil.ToPtr(DefaultTargetingIncludeBidderKeys)
		modified = true
	}

	return modified
}

func setDefaultsPriceGranularity(pg *openrtb_ext.PriceGranularity) (*openrtb_ext.PriceGranularity, bool) {
	if pg == nil || len(pg.Ranges) == 0 {
		pg = ptrutil.ToPtr(openrtb_ext.NewPriceGranularityDefault())
		return pg, true
	}

	modified := false

	if pg.Precision == nil {
		pg.Precision = ptrutil.ToPtr(DefaultPriceGranularityPrecision)
		modified = true
	}

	if setDefaultsPriceGranularityRange(pg.Ranges) {
		modified = true
	}

	return pg, modified
}

// setDefaultsPriceGranularityRange makes the ranges contiguous, each starting at the
// previous maximum.
func setDefaultsPriceGranularityRange(ranges []openrtb_ext.GranularityRange) bool {
	modified := false

	var prevMax float64 = 0
	for i, r := range ranges {
		if ranges[i].Min != prevMax {
			ranges[i].Min = prevMax
			modified = true
		}
		prevMax = r.Max
	}

	return modified
}

func setDefaultsImp(imps []openrtb2.Imp) bool {
	modified := false

	for i := range imps {
		if imps[i].Secure == nil {
			imps[i].Secure = ptrutil.ToPtr(DefaultSecure)
			modified = true
		}
	}

	return modified
}
