package entities

import (
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// PbsOrtbSeatBid is a SeatBid returned by an AdaptedBidder.
//
// This is distinct from the openrtb2.SeatBid so that the prebid-specific metadata of every bid can be
// carried alongside it until the final response is assembled.
type PbsOrtbSeatBid struct {
	// Bids is the list of bids which this AdaptedBidder wishes to make.
	Bids []*PbsOrtbBid
	// Currency is the currency in which the bids are made.
	// Should be a valid currency ISO code.
	Currency string
	// HttpCalls is the list of debugging info. It should only be populated if the request.test == 1.
	// This will become response.ext.debug.httpcalls.{bidder} on the final Response.
	HttpCalls []*openrtb_ext.ExtHttpCall
	// Seat defines whom these extra Bids belong to.
	Seat string
}

// WithBids returns a copy of the seat bid holding the given bids.
func (s *PbsOrtbSeatBid) WithBids(bids []*PbsOrtbBid) *PbsOrtbSeatBid {
	if s == nil {
		return &PbsOrtbSeatBid{Bids: bids}
	}
	seatBid := *s
	seatBid.Bids = bids
	return &seatBid
}

// PbsOrtbBid is a Bid returned by an AdaptedBidder.
//
// PbsOrtbBid.Bid.Ext will become "response.seatbid[i].bid.ext.bidder" in the final OpenRTB response.
// PbsOrtbBid.BidType will become "response.seatbid[i].bid.ext.prebid.type" in the final OpenRTB response.
// PbsOrtbBid.BidVideo is optional but should be filled out by the Adapter if BidType is video.
// PbsOrtbBid.DealPriority is optionally provided by adapters and used internally by the exchange to support deal targeted campaigns.
// PbsOrtbBid.DealTierSatisfied is set to true by exchange.updateHbPbCatDur if deal tier satisfied otherwise it will be set to false
// PbsOrtbBid.GeneratedBidID is unique Bid id generated by prebid server if generate Bid id option is enabled in config
type PbsOrtbBid struct {
	Bid               *openrtb2.Bid
	BidType           openrtb_ext.BidType
	BidVideo          *openrtb_ext.ExtBidPrebidVideo
	DealPriority      int
	DealTierSatisfied bool
	GeneratedBidID    string
	OriginalBidCPM    float64
	OriginalBidCur    string
	TargetBidderCode  string
}

// Clone returns a copy of the bid whose openrtb2.Bid may be changed without affecting the original.
func (b *PbsOrtbBid) Clone() *PbsOrtbBid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Bid != nil {
		bid := *b.Bid
		clone.Bid = &bid
	}
	if b.BidVideo != nil {
		video := *b.BidVideo
		clone.BidVideo = &video
	}
	return &clone
}

// BidderResponse is the outcome of one bidder in an auction.
type BidderResponse struct {
	// Bidder is the name the bidder was requested under, alias included.
	Bidder openrtb_ext.BidderName
	// SeatBid is nil when the bidder did not answer.
	SeatBid *PbsOrtbSeatBid
	// Errors holds the bidder scoped errors and warnings, see errortypes for their severity.
	Errors             []error
	ResponseTimeMillis int
}

// WithSeatBid returns a copy of the response carrying the given seat bid.
func (r *BidderResponse) WithSeatBid(seatBid *PbsOrtbSeatBid) *BidderResponse {
	response := *r
	response.SeatBid = seatBid
	return &response
}

// WithErrors returns a copy of the response with errs appended to its errors.
func (r *BidderResponse) WithErrors(errs ...error) *BidderResponse {
	response := *r
	response.Errors = append(append(make([]error, 0, len(r.Errors)+len(errs)), r.Errors...), errs...)
	return &response
}

// Bids returns the bids of the response, nil-safe.
func (r *BidderResponse) Bids() []*PbsOrtbBid {
	if r == nil || r.SeatBid == nil {
		return nil
	}
	return r.SeatBid.Bids
}

// AuctionParticipation is the slice of the auction owned by one bidder: the request sent to it and
// what came back.
type AuctionParticipation struct {
	Bidder openrtb_ext.BidderName
	// CoreBidder is the canonical adapter the bidder (possibly an alias) resolves to.
	CoreBidder openrtb_ext.BidderName
	Request    *openrtb2.BidRequest
	// Response is nil until the bidder has been called.
	Response *BidderResponse
	// RequestRejected marks a participation that was dropped by a hook or by privacy enforcement.
	RequestRejected bool
}

// WithResponse returns a copy of the participation carrying the given response.
func (p *AuctionParticipation) WithResponse(response *BidderResponse) *AuctionParticipation {
	participation := *p
	participation.Response = response
	return &participation
}
