package ortb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

type RequestValidator interface {
	ValidateImp(imp *openrtb2.Imp, index int, aliases map[string]string) []error
}

func NewRequestValidator(bidderMap map[string]openrtb_ext.BidderName, disabledBidders map[string]string) RequestValidator {
	return &standardRequestValidator{
		bidderMap:       bidderMap,
		disabledBidders: disabledBidders,
	}
}

type standardRequestValidator struct {
	bidderMap       map[string]openrtb_ext.BidderName
	disabledBidders map[string]string
}

func (srv *standardRequestValidator) ValidateImp(imp *openrtb2.Imp, index int, aliases map[string]string) []error {
	if imp.ID == "" {
		return []error{fmt.Errorf("request.imp[%d] missing required field: \"id\"", index)}
	}

	if len(imp.Metric) != 0 {
		return []error{fmt.Errorf("request.imp[%d].metric is not yet supported by prebid-auction. Support may be added in the future", index)}
	}

	if imp.Banner == nil && imp.Video == nil && imp.Audio == nil && imp.Native == nil {
		return []error{fmt.Errorf("request.imp[%d] must contain at least one of \"banner\", \"video\", \"audio\", or \"native\"", index)}
	}

	if err := validateBanner(imp.Banner, index, isInterstitial(imp)); err != nil {
		return []error{err}
	}

	if err := validateVideo(imp.Video, index); err != nil {
		return []error{err}
	}

	if err := validateAudio(imp.Audio, index); err != nil {
		return []error{err}
	}

	if err := validateNative(imp.Native, index); err != nil {
		return []error{err}
	}

	if err := validatePmp(imp.PMP, index); err != nil {
		return []error{err}
	}

	return srv.validateImpExt(imp, aliases, index)
}

// validateImpExt checks the bidders named by the imp. Bidders may be listed under
// imp.ext.prebid.bidder or, in the legacy form, as top level imp.ext keys.
func (srv *standardRequestValidator) validateImpExt(imp *openrtb2.Imp, aliases map[string]string, impIndex int) []error {
	if len(imp.Ext) == 0 {
		return []error{fmt.Errorf("request.imp[%d].ext is required", impIndex)}
	}

	var ext map[string]json.RawMessage
	if err := jsonutil.Unmarshal(imp.Ext, &ext); err != nil {
		return []error{err}
	}

	var prebid openrtb_ext.ExtImpPrebid
	if raw, ok := ext[openrtb_ext.BidderReservedPrebid.String()]; ok {
		if err := jsonutil.Unmarshal(raw, &prebid); err != nil {
			return []error{fmt.Errorf("request.imp[%d].ext.prebid is invalid: %v", impIndex, err)}
		}
	}

	errL := []error{}
	bidderCount := 0

	for bidder := range prebid.Bidder {
		if srv.isKnownBidder(bidder, aliases) {
			bidderCount++
			continue
		}
		if msg, isDisabled := srv.disabledBidders[bidder]; isDisabled {
			errL = append(errL, &errortypes.BidderTemporarilyDisabled{Message: msg})
			continue
		}
		return []error{fmt.Errorf("request.imp[%d].ext.prebid.bidder contains unknown bidder: %s. Did you forget an alias in request.ext.prebid.aliases?", impIndex, bidder)}
	}

	if prebid.Bidder == nil {
		for key := range ext {
			if openrtb_ext.IsBidderNameReserved(key) {
				continue
			}
			if srv.isKnownBidder(key, aliases) {
				bidderCount++
				continue
			}
			if msg, isDisabled := srv.disabledBidders[key]; isDisabled {
				errL = append(errL, &errortypes.BidderTemporarilyDisabled{Message: msg})
				continue
			}
			errL = append(errL, &errortypes.Warning{Message: fmt.Sprintf("request.imp[%d].ext contains unknown bidder: '%s', ignoring", impIndex, key)})
		}
	}

	if err := validateStoredBidResponses(&prebid, imp.ID); err != nil {
		return []error{err}
	}

	if bidderCount == 0 {
		errL = append(errL, fmt.Errorf("request.imp[%d].ext.prebid.bidder must contain at least one bidder", impIndex))
	}

	return errL
}

func (srv *standardRequestValidator) isKnownBidder(bidder string, aliases map[string]string) bool {
	if coreBidder, isAlias := aliases[bidder]; isAlias {
		bidder = coreBidder
	}
	_, ok := srv.bidderMap[strings.ToLower(bidder)]
	return ok
}

// validateStoredBidResponses requires every stored bid response to name a bidder of the imp.
func validateStoredBidResponses(prebid *openrtb_ext.ExtImpPrebid, impID string) error {
	for _, stored := range prebid.StoredBidResponse {
		if stored.ID == "" || stored.Bidder == "" {
			return generateStoredBidResponseValidationError(impID)
		}
		if prebid.Bidder == nil {
			continue
		}
		if _, present := prebid.Bidder[stored.Bidder]; !present {
			return generateStoredBidResponseValidationError(impID)
		}
	}
	return nil
}

func generateStoredBidResponseValidationError(impID string) error {
	return fmt.Errorf("request validation failed. Stored bid responses are specified for imp %s. Bidders specified in imp.ext should match with bidders specified in imp.ext.prebid.storedbidresponse", impID)
}

func validatePmp(pmp *openrtb2.PMP, impIndex int) error {
	if pmp == nil {
		return nil
	}

	for dealIndex, deal := range pmp.Deals {
		if deal.ID == "" {
			return fmt.Errorf("request.imp[%d].pmp.deals[%d] missing required field: \"id\"", impIndex, dealIndex)
		}
	}
	return nil
}
