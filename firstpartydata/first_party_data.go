package firstpartydata

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

const (
	siteKey = "site"
	appKey  = "app"
	doohKey = "dooh"
	userKey = "user"
)

// ResolvedFirstPartyData holds the site, app, dooh and user objects a bidder receives after its
// bidder specific first party data has been merged into the request objects.
type ResolvedFirstPartyData struct {
	Site *openrtb2.Site
	App  *openrtb2.App
	DOOH *openrtb2.DOOH
	User *openrtb2.User
}

// ExtractBidderConfigFPD collects the ortb2 objects of ext.prebid.bidderconfig by bidder. When a bidder
// is listed by more than one config, the last defined object of each kind takes precedence.
func ExtractBidderConfigFPD(reqExt *openrtb_ext.ExtRequest) map[openrtb_ext.BidderName]*openrtb_ext.ORTB2 {
	fpdData := make(map[openrtb_ext.BidderName]*openrtb_ext.ORTB2)
	if reqExt == nil {
		return fpdData
	}

	for _, bidderConfig := range reqExt.Prebid.BidderConfigs {
		if bidderConfig.Config == nil || bidderConfig.Config.ORTB2 == nil {
			continue
		}
		ortb2 := bidderConfig.Config.ORTB2

		for _, bidder := range bidderConfig.Bidders {
			fpdBidderData, present := fpdData[openrtb_ext.BidderName(bidder)]
			if !present {
				fpdBidderData = &openrtb_ext.ORTB2{}
				fpdData[openrtb_ext.BidderName(bidder)] = fpdBidderData
			}
			if ortb2.Site != nil {
				fpdBidderData.Site = ortb2.Site
			}
			if ortb2.App != nil {
				fpdBidderData.App = ortb2.App
			}
			if ortb2.Dooh != nil {
				fpdBidderData.Dooh = ortb2.Dooh
			}
			if ortb2.User != nil {
				fpdBidderData.User = ortb2.User
			}
		}
	}

	return fpdData
}

// ResolveFPD merges the bidder specific first party data into copies of the request objects with JSON
// merge patch semantics. A bidder whose data cannot be applied is reported and left out of the result.
func ResolveFPD(bidRequest *openrtb2.BidRequest, fpdBidderConfigData map[openrtb_ext.BidderName]*openrtb_ext.ORTB2) (map[openrtb_ext.BidderName]*ResolvedFirstPartyData, []error) {
	var errL []error
	resolvedFpdData := make(map[openrtb_ext.BidderName]*ResolvedFirstPartyData, len(fpdBidderConfigData))

	for bidderName, fpdConfig := range fpdBidderConfigData {
		resolved, err := resolveBidder(bidRequest, fpdConfig, string(bidderName))
		if err != nil {
			errL = append(errL, err)
			continue
		}
		resolvedFpdData[bidderName] = resolved
	}

	return resolvedFpdData, errL
}

func resolveBidder(bidRequest *openrtb2.BidRequest, fpdConfig *openrtb_ext.ORTB2, bidderName string) (*ResolvedFirstPartyData, error) {
	resolved := &ResolvedFirstPartyData{
		Site: bidRequest.Site,
		App:  bidRequest.App,
		DOOH: bidRequest.DOOH,
		User: bidRequest.User,
	}
	if fpdConfig == nil {
		return resolved, nil
	}

	var err error
	if len(fpdConfig.Site) > 0 {
		if bidRequest.Site == nil {
			return nil, missingObjectError(bidderName, "Site")
		}
		if resolved.Site, err = mergeObject(bidRequest.Site, fpdConfig.Site, bidderName, siteKey); err != nil {
			return nil, err
		}
		if bidRequest.Site.Page != "" && resolved.Site.Page == "" && resolved.Site.ID == "" {
			return nil, &errortypes.BadInput{Message: fmt.Sprintf("incorrect First Party Data for bidder %s: Site object cannot set empty page if req.site.id is empty", bidderName)}
		}
	}

	if len(fpdConfig.App) > 0 {
		if bidRequest.App == nil {
			return nil, missingObjectError(bidderName, "App")
		}
		if resolved.App, err = mergeObject(bidRequest.App, fpdConfig.App, bidderName, appKey); err != nil {
			return nil, err
		}
	}

	if len(fpdConfig.Dooh) > 0 {
		if bidRequest.DOOH == nil {
			return nil, missingObjectError(bidderName, "DOOH")
		}
		if resolved.DOOH, err = mergeObject(bidRequest.DOOH, fpdConfig.Dooh, bidderName, doohKey); err != nil {
			return nil, err
		}
	}

	// a user object may be introduced by first party data alone
	if len(fpdConfig.User) > 0 {
		if resolved.User, err = mergeObject(bidRequest.User, fpdConfig.User, bidderName, userKey); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// mergeObject applies patch to the JSON form of original and decodes the outcome into a new object.
// A nil original is treated as an empty object.
func mergeObject[T any](original *T, patch json.RawMessage, bidderName, key string) (*T, error) {
	originalJSON := []byte(`{}`)
	if original != nil {
		var err error
		if originalJSON, err = jsonutil.Marshal(original); err != nil {
			return nil, err
		}
	}

	merged, err := jsonpatch.MergePatch(originalJSON, patch)
	if err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid first party data for bidder %s: %s: %v", bidderName, key, err)}
	}

	target := new(T)
	if err := jsonutil.Unmarshal(merged, target); err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid first party data for bidder %s: %s: %v", bidderName, key, err)}
	}
	return target, nil
}

func missingObjectError(bidderName, object string) error {
	return &errortypes.BadInput{Message: fmt.Sprintf("incorrect First Party Data for bidder %s: %s object is not defined in request, but defined in FPD config", bidderName, object)}
}

// Apply writes the resolved objects onto a bidder's request. A nil fpd leaves the request as is.
func (fpd *ResolvedFirstPartyData) Apply(req *openrtb2.BidRequest) {
	if fpd == nil || req == nil {
		return
	}
	req.Site = fpd.Site
	req.App = fpd.App
	req.DOOH = fpd.DOOH
	req.User = fpd.User
}
