package exchange

import (
	"sort"
	"strconv"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// BidInfo is a bid on its way into the response together with everything the auction learned about
// it. Bid is a copy owned by the response.
type BidInfo struct {
	Bid               *openrtb2.Bid
	PbsBid            *entities.PbsOrtbBid
	Imp               *openrtb2.Imp
	Bidder            openrtb_ext.BidderName
	BidType           openrtb_ext.BidType
	GeneratedBidID    string
	CatDur            string
	DealTierSatisfied bool
	TargetBidderCode  string
	Targeting         TargetingInfo
	CacheIDs          CacheIDs
	Events            *openrtb_ext.ExtBidPrebidEvents
}

// TargetingInfo tells which targeting keywords a bid receives.
type TargetingInfo struct {
	IsTargetingEnabled bool
	// IsWinningBid marks the best bid of the imp.
	IsWinningBid bool
	// IsBidderWinningBid marks the best bid of its bidder on the imp.
	IsBidderWinningBid bool
	// IsAddTargetBidderCode is set for the extra multibid bids which carry their own bidder code.
	IsAddTargetBidderCode bool
	// BidderCode suffixes the bidder specific keywords.
	BidderCode string
}

// CacheIDs are the Prebid Cache keys of a bid.
type CacheIDs struct {
	BidsID  string
	VideoID string
	// TTL is the ttl seconds the entries were stored with.
	TTL int64
}

// eventBidID is the id events and cache entries refer to the bid by.
func (b *BidInfo) eventBidID() string {
	if b.GeneratedBidID != "" {
		return b.GeneratedBidID
	}
	return b.Bid.ID
}

// auction ranks the bids of every imp.
type auction struct {
	preferDeals bool
	multiBid    map[string]openrtb_ext.ExtMultiBidConfig
}

// isBetter reports whether a ranks above b. With preferdeals a deal beats any non deal bid.
func (a auction) isBetter(first, second *BidInfo) bool {
	if a.preferDeals {
		firstDeal, secondDeal := first.Bid.DealID != "", second.Bid.DealID != ""
		if firstDeal != secondDeal {
			return firstDeal
		}
	}
	return first.Bid.Price > second.Bid.Price
}

// run marks the winners of every imp and returns the bids to place in the response, in input order.
// A bidder with a multibid configuration keeps its best MaxBids bids on each imp.
func (a auction) run(bids []*BidInfo, targetingEnabled bool) []*BidInfo {
	type impBids struct {
		bidderOrder []openrtb_ext.BidderName
		byBidder    map[openrtb_ext.BidderName][]*BidInfo
	}
	var impOrder []string
	byImp := make(map[string]*impBids)
	for _, bid := range bids {
		entry, ok := byImp[bid.Bid.ImpID]
		if !ok {
			entry = &impBids{byBidder: make(map[openrtb_ext.BidderName][]*BidInfo)}
			byImp[bid.Bid.ImpID] = entry
			impOrder = append(impOrder, bid.Bid.ImpID)
		}
		if _, seen := entry.byBidder[bid.Bidder]; !seen {
			entry.bidderOrder = append(entry.bidderOrder, bid.Bidder)
		}
		entry.byBidder[bid.Bidder] = append(entry.byBidder[bid.Bidder], bid)
	}

	dropped := make(map[*BidInfo]bool)
	for _, impID := range impOrder {
		entry := byImp[impID]
		var winner *BidInfo
		for _, bidder := range entry.bidderOrder {
			ranked := entry.byBidder[bidder]
			sort.SliceStable(ranked, func(i, j int) bool {
				return a.isBetter(ranked[i], ranked[j])
			})

			config, hasMultiBid := a.multiBid[bidder.String()]
			for rank, bid := range ranked {
				bid.Targeting.BidderCode = bidder.String()
				if rank == 0 {
					bid.Targeting.IsBidderWinningBid = true
					bid.Targeting.IsTargetingEnabled = targetingEnabled
					if hasMultiBid {
						bid.TargetBidderCode = bidder.String()
					}
					continue
				}
				if !hasMultiBid {
					continue
				}
				if config.MaxBids > 0 && rank >= config.MaxBids {
					dropped[bid] = true
					continue
				}
				if config.TargetBidderCodePrefix != "" {
					code := config.TargetBidderCodePrefix + strconv.Itoa(rank+1)
					bid.TargetBidderCode = code
					bid.Targeting.BidderCode = code
					bid.Targeting.IsAddTargetBidderCode = true
					bid.Targeting.IsTargetingEnabled = targetingEnabled
				} else {
					bid.TargetBidderCode = bidder.String()
				}
			}

			if len(ranked) > 0 && (winner == nil || a.isBetter(ranked[0], winner)) {
				winner = ranked[0]
			}
		}
		if winner != nil {
			winner.Targeting.IsWinningBid = true
		}
	}

	if len(dropped) == 0 {
		return bids
	}
	kept := make([]*BidInfo, 0, len(bids)-len(dropped))
	for _, bid := range bids {
		if !dropped[bid] {
			kept = append(kept, bid)
		}
	}
	return kept
}
