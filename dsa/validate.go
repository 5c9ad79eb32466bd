package dsa

import (
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
)

const (
	// Required - bid responses without DSA object will not be accepted
	Required = 2
	// RequiredOnlinePlatform - bid responses without DSA object will not be accepted, Publisher is an Online Platform
	RequiredOnlinePlatform = 3
)

// Validate determines whether a given bid is valid from a DSA perspective.
// A bid is considered valid unless the bid request indicates that a DSA object is required
// in bid responses and it the object happens to be missing from the specified bid.
func Validate(req *openrtb2.BidRequest, bid *entities.PbsOrtbBid) (valid bool) {
	if !dsaRequired(req) {
		return true
	}
	return hasDSA(bid)
}

func hasDSA(bid *entities.PbsOrtbBid) bool {
	if bid == nil || bid.Bid == nil {
		return false
	}
	_, dataType, _, err := jsonparser.Get(bid.Bid.Ext, "dsa")
	if dataType == jsonparser.Object && err == nil {
		return true
	} else if err != nil && err != jsonparser.KeyPathNotFoundError {
		return true
	}
	return false
}

// dsaRequired examines the bid request to determine if the dsarequired field indicates
// that bid responses include a dsa object
func dsaRequired(req *openrtb2.BidRequest) bool {
	if req == nil || req.Regs == nil || len(req.Regs.Ext) == 0 {
		return false
	}
	required, err := jsonparser.GetInt(req.Regs.Ext, "dsa", "dsarequired")
	if err != nil {
		return false
	}
	return required == Required || required == RequiredOnlinePlatform
}

// Enforce returns the participation with every bid lacking a required DSA object removed. Each
// removal is reported as a warning on the bidder response. The participation passed in is left
// untouched.
func Enforce(req *openrtb2.BidRequest, participation *entities.AuctionParticipation) *entities.AuctionParticipation {
	if participation == nil || participation.Response == nil || !dsaRequired(req) {
		return participation
	}

	bids := participation.Response.Bids()
	if len(bids) == 0 {
		return participation
	}

	kept := make([]*entities.PbsOrtbBid, 0, len(bids))
	var warnings []error
	for _, bid := range bids {
		if hasDSA(bid) {
			kept = append(kept, bid)
			continue
		}
		bidID := ""
		if bid != nil && bid.Bid != nil {
			bidID = bid.Bid.ID
		}
		warnings = append(warnings, &errortypes.Warning{
			Message:     fmt.Sprintf("bid response rejected [bid ID: %s] reason: DSA object missing when required", bidID),
			WarningCode: errortypes.InvalidBidResponseDSAWarningCode,
		})
	}

	if len(warnings) == 0 {
		return participation
	}

	response := participation.Response.WithSeatBid(participation.Response.SeatBid.WithBids(kept)).WithErrors(warnings...)
	return participation.WithResponse(response)
}
