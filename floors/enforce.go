package floors

import (
	"fmt"
	"math/rand"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/currency"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

const floorPrecision float64 = 0.01

// Enforcer removes bids priced below the floor of their imp. Whether floors are enforced at all
// is decided once per auction when the enforcer is built.
type Enforcer struct {
	enforce     bool
	enforceDeal bool
	imps        map[string]openrtb2.Imp
	conversions currency.Conversions
}

// NewEnforcer builds the enforcer of an auction from the request as enriched with floors.
func NewEnforcer(req *openrtb2.BidRequest, account config.Account, conversions currency.Conversions) *Enforcer {
	return newEnforcer(req, account, conversions, rand.Intn)
}

func newEnforcer(req *openrtb2.BidRequest, account config.Account, conversions currency.Conversions, f func(int) int) *Enforcer {
	e := &Enforcer{conversions: conversions}
	if req == nil || !isValidImpBidFloorPresent(req.Imp) {
		return e
	}

	reqExt, err := openrtb_ext.ParseExtRequest(req)
	if err != nil {
		return e
	}
	floors := reqExt.Prebid.Floors

	if isPriceFloorsDisabled(account, floors) || floors.GetFloorsSkippedFlag() || !floors.GetEnforcePBS() {
		return e
	}
	if !isSatisfiedByEnforceRate(floors.GetEnforceRate(), account.PriceFloors.EnforceFloorsRate, f) {
		return e
	}

	e.enforce = true
	e.enforceDeal = account.PriceFloors.EnforceDealFloors && floors.GetFloorDeals()
	e.imps = make(map[string]openrtb2.Imp, len(req.Imp))
	for _, imp := range req.Imp {
		e.imps[imp.ID] = imp
	}
	return e
}

// Enforced reports whether bids are checked against floors in this auction.
func (e *Enforcer) Enforced() bool {
	return e != nil && e.enforce
}

// Enforce returns the participation with bids below their imp floor removed. Every rejection is
// reported as a warning on the bidder response. A participation without rejections is returned
// unchanged.
func (e *Enforcer) Enforce(participation *entities.AuctionParticipation) *entities.AuctionParticipation {
	if !e.Enforced() || participation == nil || participation.Response == nil {
		return participation
	}

	bids := participation.Response.Bids()
	if len(bids) == 0 {
		return participation
	}
	seatCur := participation.Response.SeatBid.Currency

	kept := make([]*entities.PbsOrtbBid, 0, len(bids))
	var warnings []error
	for _, bid := range bids {
		if bid == nil || bid.Bid == nil {
			continue
		}
		imp, ok := e.imps[bid.Bid.ImpID]
		if !ok || imp.BidFloor <= 0 || (hasDealID(bid) && !e.enforceDeal) {
			kept = append(kept, bid)
			continue
		}

		floorCur := imp.BidFloorCur
		if floorCur == "" {
			floorCur = defaultCurrency
		}
		rate, err := getCurrencyConversionRate(seatCur, floorCur, e.conversions)
		if err != nil {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("bid rejected [bid ID: %s] reason: error in rate conversion from %s to %s for impression id %s bidder %s: %v", bid.Bid.ID, seatCur, floorCur, imp.ID, participation.Bidder, err),
				WarningCode: errortypes.FloorBidRejectionWarningCode,
			})
			continue
		}

		bidPrice := rate * bid.Bid.Price
		if bidPrice+floorPrecision < imp.BidFloor {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("bid rejected [bid ID: %s] reason: bid price value %.4f %s is less than bidFloor value %.4f %s for impression id %s bidder %s", bid.Bid.ID, bidPrice, floorCur, imp.BidFloor, floorCur, imp.ID, participation.Bidder),
				WarningCode: errortypes.FloorBidRejectionWarningCode,
			})
			continue
		}
		kept = append(kept, bid)
	}

	if len(warnings) == 0 && len(kept) == len(bids) {
		return participation
	}

	response := participation.Response.WithSeatBid(participation.Response.SeatBid.WithBids(kept)).WithErrors(warnings...)
	return participation.WithResponse(response)
}

// isValidImpBidFloorPresent checks if non zero imp.bidfloor is present in request
func isValidImpBidFloorPresent(imps []openrtb2.Imp) bool {
	for i := range imps {
		if imps[i].BidFloor > 0 {
			return true
		}
	}
	return false
}

// isSatisfiedByEnforceRate check enforcements should be done or not based on enforceRate in config and in request
func isSatisfiedByEnforceRate(requestEnforceRate, configEnforceRate int, f func(int) int) bool {
	enforceRate := f(enforceRateMax)
	satisfiedByRequest := requestEnforceRate == 0 || enforceRate < requestEnforceRate
	satisfiedByAccount := configEnforceRate == 0 || enforceRate < configEnforceRate
	return satisfiedByRequest && satisfiedByAccount
}

func hasDealID(bid *entities.PbsOrtbBid) bool {
	return bid != nil && bid.Bid != nil && bid.Bid.DealID != ""
}

// getCurrencyConversionRate gets conversion rate in case floor currency and seatBid currency are not same
func getCurrencyConversionRate(seatBidCur, reqImpCur string, conversions currency.Conversions) (float64, error) {
	if seatBidCur == "" {
		seatBidCur = defaultCurrency
	}
	if seatBidCur == reqImpCur {
		return 1.0, nil
	}
	if conversions == nil {
		return 0, currency.ConversionNotFoundError{FromCur: seatBidCur, ToCur: reqImpCur}
	}
	return conversions.GetRate(seatBidCur, reqImpCur)
}
