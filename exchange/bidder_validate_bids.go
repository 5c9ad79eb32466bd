package exchange

import (
	"fmt"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// ValidationResult holds what is wrong with a bid. A bid with errors is removed from the auction,
// warnings alone keep it.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// String joins the errors and the warnings of the result.
func (r ValidationResult) String() string {
	return strings.Join(append(append([]string{}, r.Errors...), r.Warnings...), "; ")
}

// ResponseBidValidator checks the bids returned by a bidder against the request they answer.
type ResponseBidValidator interface {
	Validate(bid *entities.PbsOrtbBid, bidder openrtb_ext.BidderName, request *openrtb2.BidRequest) ValidationResult
}

// NewResponseBidValidator returns the validator making sure that the response contains bids which
// are valid given the initial request, so that publishers can trust the bids they get.
func NewResponseBidValidator() ResponseBidValidator {
	return &bidValidator{}
}

type bidValidator struct{}

func (v *bidValidator) Validate(bid *entities.PbsOrtbBid, bidder openrtb_ext.BidderName, request *openrtb2.BidRequest) ValidationResult {
	var result ValidationResult
	if bid == nil || bid.Bid == nil {
		result.Errors = append(result.Errors, "Empty bid object submitted.")
		return result
	}

	if bid.Bid.ID == "" {
		result.Errors = append(result.Errors, "Bid missing required field 'id'")
		return result
	}
	if bid.Bid.ImpID == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("Bid \"%s\" missing required field 'impid'", bid.Bid.ID))
		return result
	}

	imp := findImp(request, bid.Bid.ImpID)
	if imp == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Bid \"%s\" has no corresponding imp in request", bid.Bid.ID))
	}
	if bid.Bid.CrID == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("Bid \"%s\" missing creative ID", bid.Bid.ID))
	}
	if bid.Bid.AdM == "" && bid.Bid.NURL == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Bid \"%s\" from bidder %s has neither adm nor nurl", bid.Bid.ID, bidder))
	}
	if imp != nil && bid.BidType == openrtb_ext.BidTypeBanner && imp.Banner != nil && bid.Bid.W > 0 && bid.Bid.H > 0 && !bannerSizeAllowed(imp.Banner, bid.Bid.W, bid.Bid.H) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Bid \"%s\" has size %dx%d which imp %s does not request", bid.Bid.ID, bid.Bid.W, bid.Bid.H, imp.ID))
	}

	return result
}

func bannerSizeAllowed(banner *openrtb2.Banner, w, h int64) bool {
	if len(banner.Format) == 0 && banner.W == nil && banner.H == nil {
		return true
	}
	if banner.W != nil && banner.H != nil && *banner.W == w && *banner.H == h {
		return true
	}
	for _, format := range banner.Format {
		if format.W == w && format.H == h {
			return true
		}
	}
	return false
}

func findImp(request *openrtb2.BidRequest, impID string) *openrtb2.Imp {
	if request == nil {
		return nil
	}
	for i := range request.Imp {
		if request.Imp[i].ID == impID {
			return &request.Imp[i]
		}
	}
	return nil
}
