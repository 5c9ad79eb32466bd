package exchange

import (
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/hooks/hookexecution"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// bidStep transforms one bid. A nil bid drops it, an error next to a bid is a warning about a bid
// which is kept.
type bidStep func(bid *entities.PbsOrtbBid) (*entities.PbsOrtbBid, error)

// applyBidSteps runs the steps over every bid in order. A dropped bid skips the remaining steps.
func applyBidSteps(bids []*entities.PbsOrtbBid, steps ...bidStep) ([]*entities.PbsOrtbBid, []error) {
	kept := make([]*entities.PbsOrtbBid, 0, len(bids))
	var errs []error
	for _, bid := range bids {
		for _, step := range steps {
			var err error
			bid, err = step(bid)
			if err != nil {
				errs = append(errs, err)
			}
			if bid == nil {
				break
			}
		}
		if bid != nil {
			kept = append(kept, bid)
		}
	}
	return kept, errs
}

// processParticipation takes the raw bids of a bidder through the response hooks, validation, media
// type resolution, currency conversion and bid adjustment. The returned seat is priced in the
// auction currency. Only a failing media type resolution fails the auction.
func (e *exchange) processParticipation(participation *entities.AuctionParticipation, req *openrtb2.BidRequest, reqExt *openrtb_ext.ExtRequest, targetCurrency string, executor hookexecution.StageExecutor, pubID string) (*entities.AuctionParticipation, error) {
	response := participation.Response
	if participation.RequestRejected || response == nil || response.SeatBid == nil {
		return participation, nil
	}
	bidder := participation.Bidder

	bids, reject := executor.ExecuteRawBidderResponseStage(response.Bids(), bidder.String())
	if reject != nil {
		emptied := response.SeatBid.WithBids([]*entities.PbsOrtbBid{})
		return participation.WithResponse(response.WithSeatBid(emptied).WithErrors(reject)), nil
	}

	var errs []error
	bids, stepErrs := applyBidSteps(bids,
		e.validateBid(participation.Request, bidder, pubID),
		e.dropUnpricedBid(bidder),
	)
	errs = append(errs, stepErrs...)

	resolved, err := e.mediaTypeProcessor.Resolve(participation.Request, bidder, bids)
	if err != nil {
		return nil, err
	}
	errs = append(errs, resolved.Warnings...)

	seatCurrency := response.SeatBid.Currency
	if seatCurrency == "" {
		seatCurrency = defaultCurrency
	}
	bids, stepErrs = applyBidSteps(resolved.Bids,
		e.convertBidCurrency(req, seatCurrency, targetCurrency, bidder, pubID),
		adjustBidPrice(participation.Request, bidder, reqExt.Prebid.BidAdjustmentFactors),
	)
	errs = append(errs, stepErrs...)

	seatBid := response.SeatBid.WithBids(bids)
	seatBid.Currency = targetCurrency
	return participation.WithResponse(response.WithSeatBid(seatBid).WithErrors(errs...)), nil
}

func (e *exchange) validateBid(bidderRequest *openrtb2.BidRequest, bidder openrtb_ext.BidderName, pubID string) bidStep {
	return func(bid *entities.PbsOrtbBid) (*entities.PbsOrtbBid, error) {
		result := e.bidValidator.Validate(bid, bidder, bidderRequest)
		if result.HasErrors() {
			e.me.RecordRejectedBids(pubID, bidder, metrics.RejectedBidInvalid)
			return nil, &errortypes.InvalidBid{Message: result.String()}
		}
		if len(result.Warnings) > 0 {
			return bid, &errortypes.Warning{Message: result.String(), WarningCode: errortypes.UnknownWarningCode}
		}
		return bid, nil
	}
}

// dropUnpricedBid removes bids with no positive price unless they carry a deal.
func (e *exchange) dropUnpricedBid(bidder openrtb_ext.BidderName) bidStep {
	return func(bid *entities.PbsOrtbBid) (*entities.PbsOrtbBid, error) {
		if bid.Bid.Price > 0 || bid.Bid.DealID != "" {
			return bid, nil
		}
		e.me.RecordAdapterError(bidder, metrics.AdapterErrorUnknown)
		return nil, &errortypes.DebugWarning{
			Message:     fmt.Sprintf("Dropped bid '%s'. Does not contain a positive (or zero if there is a deal) 'price'", bid.Bid.ID),
			WarningCode: errortypes.UnknownWarningCode,
		}
	}
}

// convertBidCurrency prices the bid in the auction currency and remembers what the bidder sent.
func (e *exchange) convertBidCurrency(req *openrtb2.BidRequest, seatCurrency, targetCurrency string, bidder openrtb_ext.BidderName, pubID string) bidStep {
	return func(bid *entities.PbsOrtbBid) (*entities.PbsOrtbBid, error) {
		price, err := e.currencyConverter.ConvertCurrency(bid.Bid.Price, req, seatCurrency, targetCurrency)
		if err != nil {
			e.me.RecordRejectedBids(pubID, bidder, metrics.RejectedBidCurrency)
			return nil, &errortypes.NoConversionRate{
				Message: fmt.Sprintf("Unable to convert bid '%s' from %s to %s: %v", bid.Bid.ID, seatCurrency, targetCurrency, err),
			}
		}

		converted := bid.Clone()
		converted.OriginalBidCPM = bid.Bid.Price
		converted.OriginalBidCur = seatCurrency
		converted.Bid.Price = price
		return converted, nil
	}
}

// adjustBidPrice multiplies the price with the factor configured for the bidder and the media type
// the bid was placed for.
func adjustBidPrice(bidderRequest *openrtb2.BidRequest, bidder openrtb_ext.BidderName, factors *openrtb_ext.ExtRequestBidAdjustmentFactors) bidStep {
	return func(bid *entities.PbsOrtbBid) (*entities.PbsOrtbBid, error) {
		if factors == nil {
			return bid, nil
		}

		var mediaType openrtb_ext.BidAdjustmentMediaType
		switch bid.BidType {
		case openrtb_ext.BidTypeBanner:
			mediaType = openrtb_ext.BidAdjustmentMediaTypeBanner
		case openrtb_ext.BidTypeNative:
			mediaType = openrtb_ext.BidAdjustmentMediaTypeNative
		case openrtb_ext.BidTypeAudio:
			mediaType = openrtb_ext.BidAdjustmentMediaTypeAudio
		case openrtb_ext.BidTypeVideo:
			var video *openrtb2.Video
			if imp := findImp(bidderRequest, bid.Bid.ImpID); imp != nil {
				video = imp.Video
			}
			mediaType = openrtb_ext.VideoAdjustmentMediaType(video)
		}

		factor, ok := factors.Factor(bidder.String(), mediaType)
		if !ok {
			return bid, nil
		}
		adjusted := bid.Clone()
		adjusted.Bid.Price = bid.Bid.Price * factor
		return adjusted, nil
	}
}

type dealKey struct {
	impID  string
	dealID string
}

// dedupDealBids keeps a single bid per imp and deal. Higher deal priority wins, then higher price,
// then the bid which came first.
func dedupDealBids(participation *entities.AuctionParticipation) *entities.AuctionParticipation {
	bids := participation.Response.Bids()
	if len(bids) < 2 {
		return participation
	}

	best := make(map[dealKey]int)
	dropped := make(map[int]bool)
	for i, bid := range bids {
		if bid.Bid.DealID == "" {
			continue
		}
		key := dealKey{impID: bid.Bid.ImpID, dealID: bid.Bid.DealID}
		current, seen := best[key]
		if !seen {
			best[key] = i
			continue
		}
		if outranksDeal(bid, bids[current]) {
			dropped[current] = true
			best[key] = i
		} else {
			dropped[i] = true
		}
	}
	if len(dropped) == 0 {
		return participation
	}

	kept := make([]*entities.PbsOrtbBid, 0, len(bids)-len(dropped))
	for i, bid := range bids {
		if !dropped[i] {
			kept = append(kept, bid)
		}
	}
	response := participation.Response
	return participation.WithResponse(response.WithSeatBid(response.SeatBid.WithBids(kept)))
}

func outranksDeal(current, previous *entities.PbsOrtbBid) bool {
	if current.DealPriority != previous.DealPriority {
		return current.DealPriority > previous.DealPriority
	}
	return current.Bid.Price > previous.Bid.Price
}
