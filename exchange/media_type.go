package exchange

import (
	"errors"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// MediaTypeResult holds the bids whose media type could be resolved and the warnings raised for the
// imps which were given up.
type MediaTypeResult struct {
	Bids     []*entities.PbsOrtbBid
	Warnings []error
}

// MediaTypeProcessor settles the media type of every bid of a bidder. A returned error fails the
// auction.
type MediaTypeProcessor interface {
	Resolve(request *openrtb2.BidRequest, bidder openrtb_ext.BidderName, bids []*entities.PbsOrtbBid) (MediaTypeResult, error)
}

func NewMediaTypeProcessor() MediaTypeProcessor {
	return &impMediaTypeProcessor{}
}

// impMediaTypeProcessor accepts a bid when the imp it answers offers its media type. A bid without
// a type gets the type of an imp offering a single one. When a bid cannot be classified every bid of
// the bidder on that imp is dropped.
type impMediaTypeProcessor struct{}

func (p *impMediaTypeProcessor) Resolve(request *openrtb2.BidRequest, bidder openrtb_ext.BidderName, bids []*entities.PbsOrtbBid) (MediaTypeResult, error) {
	if request == nil {
		return MediaTypeResult{}, errors.New("media type resolution needs the bidder request")
	}

	rejectedImps := make(map[string]bool)
	resolved := make([]*entities.PbsOrtbBid, 0, len(bids))
	var warnings []error
	for _, bid := range bids {
		imp := findImp(request, bid.Bid.ImpID)
		if imp == nil {
			rejectedImps[bid.Bid.ImpID] = true
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("bid %s of bidder %s answers unknown imp %s", bid.Bid.ID, bidder, bid.Bid.ImpID),
				WarningCode: errortypes.MediaTypeWarningCode,
			})
			continue
		}

		offered := impMediaTypes(imp)
		bidType := bid.BidType
		if bidType == "" && len(offered) == 1 {
			bidType = offered[0]
		}
		if !containsBidType(offered, bidType) {
			rejectedImps[imp.ID] = true
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("bid %s of bidder %s has media type %q which imp %s does not offer", bid.Bid.ID, bidder, bidType, imp.ID),
				WarningCode: errortypes.MediaTypeWarningCode,
			})
			continue
		}

		if bidType != bid.BidType {
			bid = bid.Clone()
			bid.BidType = bidType
		}
		resolved = append(resolved, bid)
	}

	if len(rejectedImps) == 0 {
		return MediaTypeResult{Bids: resolved}, nil
	}

	kept := resolved[:0]
	for _, bid := range resolved {
		if !rejectedImps[bid.Bid.ImpID] {
			kept = append(kept, bid)
		}
	}
	return MediaTypeResult{Bids: kept, Warnings: warnings}, nil
}

func impMediaTypes(imp *openrtb2.Imp) []openrtb_ext.BidType {
	mediaTypes := make([]openrtb_ext.BidType, 0, 4)
	if imp.Banner != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidTypeBanner)
	}
	if imp.Video != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidTypeVideo)
	}
	if imp.Audio != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidTypeAudio)
	}
	if imp.Native != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidTypeNative)
	}
	return mediaTypes
}

func containsBidType(bidTypes []openrtb_ext.BidType, bidType openrtb_ext.BidType) bool {
	for _, t := range bidTypes {
		if t == bidType {
			return true
		}
	}
	return false
}
