package categories

import (
	"context"
	"errors"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/pbs"
	"github.com/prebid/prebid-auction/stored_requests"
)

// MappingResult is the outcome of category mapping for one auction.
type MappingResult struct {
	// BidderResponses holds the responses without the rejected and deduplicated bids.
	BidderResponses []*entities.BidderResponse
	// CatDur maps bidder and bid id of every surviving video bid to its hb_pb_cat_dur value. Bid ids
	// are only unique within a bidder.
	CatDur map[openrtb_ext.BidderName]map[string]string
	// DealTierSatisfied holds, per bidder, the ids of the bids whose deal priority satisfied their deal tier.
	DealTierSatisfied map[openrtb_ext.BidderName]map[string]bool
	// Rejections lists one message per removed bid, followed by the deal tier warnings.
	Rejections []string
}

// Mapper builds the hb_pb_cat_dur values of the video bids of an auction and deduplicates bids competing
// for the same value.
type Mapper struct {
	fetcher stored_requests.CategoryFetcher
}

func NewMapper(fetcher stored_requests.CategoryFetcher) *Mapper {
	return &Mapper{fetcher: fetcher}
}

// CatDurFor returns the hb_pb_cat_dur value of the bid, or "" when the bid was not mapped.
func (r *MappingResult) CatDurFor(bidder openrtb_ext.BidderName, bidID string) string {
	if r == nil {
		return ""
	}
	return r.CatDur[bidder][bidID]
}

// TierSatisfied reports whether the bid won its hb_pb_cat_dur value through its deal tier.
func (r *MappingResult) TierSatisfied(bidder openrtb_ext.BidderName, bidID string) bool {
	if r == nil {
		return false
	}
	return r.DealTierSatisfied[bidder][bidID]
}

type categoryLookup struct {
	mapping map[string]string
	err     error
}

type candidate struct {
	responseIndex int
	bidder        openrtb_ext.BidderName
	bid           *entities.PbsOrtbBid
	catDur        string
	tierSatisfied bool
}

// CreateCategoryMapping maps the video bids of the responses. Only server side misconfiguration of the
// request fails the call; every problem with a single bid removes that bid and is reported in Rejections.
// Deal tiers of the imps are applied only when supportDeals is set.
func (m *Mapper) CreateCategoryMapping(ctx context.Context, bidderResponses []*entities.BidderResponse, bidRequest *openrtb2.BidRequest, targeting *openrtb_ext.ExtRequestTargeting, supportDeals bool) (*MappingResult, error) {
	result := &MappingResult{
		BidderResponses:   bidderResponses,
		CatDur:            make(map[openrtb_ext.BidderName]map[string]string),
		DealTierSatisfied: make(map[openrtb_ext.BidderName]map[string]bool),
	}
	if targeting == nil {
		return result, nil
	}

	brandCat := targeting.IncludeBrandCategory
	withCategory := brandCat != nil && brandCat.WithCategory
	translateCategories := withCategory && brandCat.GetTranslateCategories()

	var primaryAdServer, publisher string
	if brandCat != nil && (translateCategories || brandCat.PrimaryAdServer != 0) {
		var err error
		if primaryAdServer, err = getPrimaryAdServer(brandCat.PrimaryAdServer); err != nil {
			return nil, err
		}
		publisher = brandCat.Publisher
	}

	granularity := targeting.GetPriceGranularity(openrtb_ext.BidTypeVideo)
	var dealTiers map[string]openrtb_ext.DealTierBidderMap
	var dealTierWarnings []string
	if supportDeals {
		dealTiers, dealTierWarnings = readDealTiers(bidRequest)
	}

	var lookup *categoryLookup
	fetchCategories := func() *categoryLookup {
		if lookup == nil {
			lookup = &categoryLookup{}
			if m.fetcher == nil {
				lookup.err = errors.New("no category fetcher configured")
			} else {
				lookup.mapping, lookup.err = m.fetcher.FetchCategories(ctx, primaryAdServer, publisher)
			}
		}
		return lookup
	}

	removed := make(map[*entities.PbsOrtbBid]bool)
	winners := make(map[string]*candidate)
	var winnerOrder []string

	for responseIndex, response := range bidderResponses {
		for _, bid := range response.Bids() {
			if bid == nil || bid.Bid == nil || bid.BidType != openrtb_ext.BidTypeVideo {
				continue
			}
			bidID := bid.Bid.ID

			var duration int
			var category string
			if bid.BidVideo != nil {
				duration = bid.BidVideo.Duration
				category = bid.BidVideo.PrimaryCategory
			}

			durationBucket, err := findDurationRange(duration, targeting.DurationRangeSec)
			if err != nil {
				removed[bid] = true
				result.Rejections = updateRejections(result.Rejections, bidID, err.Error())
				continue
			}

			if withCategory && category == "" {
				if len(bid.Bid.Cat) == 0 {
					removed[bid] = true
					result.Rejections = updateRejections(result.Rejections, bidID, "Bid did not contain a category")
					continue
				}
				if len(bid.Bid.Cat) > 1 {
					removed[bid] = true
					result.Rejections = updateRejections(result.Rejections, bidID, "Bid has more than one category")
					continue
				}
				category = bid.Bid.Cat[0]
				if translateCategories {
					categories := fetchCategories()
					if categories.err != nil {
						removed[bid] = true
						result.Rejections = updateRejections(result.Rejections, bidID, categories.err.Error())
						continue
					}
					translated, found := categories.mapping[category]
					if !found || translated == "" {
						removed[bid] = true
						reason := fmt.Sprintf("Category mapping not found for category: '%s', primary ad server: '%s', publisher: '%s'", category, primaryAdServer, publisher)
						result.Rejections = updateRejections(result.Rejections, bidID, reason)
						continue
					}
					category = translated
				}
			}

			priceBucket := pbs.GetPriceBucket(bid.Bid.Price, granularity)
			catDur := composeCatDur(priceBucket, category, durationBucket, withCategory)

			tierSatisfied := false
			if tier, configured := dealTiers[bid.Bid.ImpID][response.Bidder]; configured {
				if err := tier.Validate(); err != nil {
					dealTierWarnings = append(dealTierWarnings, fmt.Sprintf("dealTier configuration invalid for bidder '%s', imp ID '%s': %s", response.Bidder, bid.Bid.ImpID, err.Error()))
				} else if bid.DealPriority >= tier.MinDealTier {
					tierSatisfied = true
					catDur = composeCatDur(fmt.Sprintf("%s%d", tier.Prefix, bid.DealPriority), category, durationBucket, withCategory)
				} else {
					dealTierWarnings = append(dealTierWarnings, fmt.Sprintf("dealTier not satisfied for bidder '%s', imp ID '%s': deal priority %d is below the minimum %d", response.Bidder, bid.Bid.ImpID, bid.DealPriority, tier.MinDealTier))
				}
			}

			if targeting.AppendBidderNames {
				catDur = fmt.Sprintf("%s_%s", catDur, response.Bidder)
			}

			current := &candidate{responseIndex: responseIndex, bidder: response.Bidder, bid: bid, catDur: catDur, tierSatisfied: tierSatisfied}
			previous, exists := winners[catDur]
			if !exists {
				winners[catDur] = current
				winnerOrder = append(winnerOrder, catDur)
				continue
			}
			if outranks(current, previous) {
				removed[previous.bid] = true
				result.Rejections = updateRejections(result.Rejections, previous.bid.Bid.ID, "Bid was deduplicated")
				winners[catDur] = current
			} else {
				removed[bid] = true
				result.Rejections = updateRejections(result.Rejections, bidID, "Bid was deduplicated")
			}
		}
	}

	for _, catDur := range winnerOrder {
		winner := winners[catDur]
		if result.CatDur[winner.bidder] == nil {
			result.CatDur[winner.bidder] = make(map[string]string)
		}
		result.CatDur[winner.bidder][winner.bid.Bid.ID] = catDur
		if winner.tierSatisfied {
			if result.DealTierSatisfied[winner.bidder] == nil {
				result.DealTierSatisfied[winner.bidder] = make(map[string]bool)
			}
			result.DealTierSatisfied[winner.bidder][winner.bid.Bid.ID] = true
		}
	}
	result.Rejections = append(result.Rejections, dealTierWarnings...)

	if len(removed) > 0 {
		result.BidderResponses = removeBids(bidderResponses, removed)
	}
	return result, nil
}

// outranks reports whether current beats previous for the same hb_pb_cat_dur. Equal bids keep the earlier one.
func outranks(current, previous *candidate) bool {
	if current.tierSatisfied != previous.tierSatisfied {
		return current.tierSatisfied
	}
	return current.bid.Bid.Price > previous.bid.Bid.Price
}

func composeCatDur(price, category string, duration int, withCategory bool) string {
	if withCategory {
		return fmt.Sprintf("%s_%s_%ds", price, category, duration)
	}
	return fmt.Sprintf("%s_%ds", price, duration)
}

func removeBids(bidderResponses []*entities.BidderResponse, removed map[*entities.PbsOrtbBid]bool) []*entities.BidderResponse {
	reduced := make([]*entities.BidderResponse, 0, len(bidderResponses))
	for _, response := range bidderResponses {
		bids := response.Bids()
		kept := make([]*entities.PbsOrtbBid, 0, len(bids))
		for _, bid := range bids {
			if !removed[bid] {
				kept = append(kept, bid)
			}
		}
		if len(kept) == len(bids) {
			reduced = append(reduced, response)
			continue
		}
		reduced = append(reduced, response.WithSeatBid(response.SeatBid.WithBids(kept)))
	}
	return reduced
}

func readDealTiers(bidRequest *openrtb2.BidRequest) (map[string]openrtb_ext.DealTierBidderMap, []string) {
	impDealMap := make(map[string]openrtb_ext.DealTierBidderMap)
	if bidRequest == nil {
		return impDealMap, nil
	}

	var warnings []string
	for _, imp := range bidRequest.Imp {
		dealTierBidderMap, errs := openrtb_ext.ReadDealTiersFromImp(imp)
		for _, err := range errs {
			warnings = append(warnings, fmt.Sprintf("imp ID '%s': %s", imp.ID, err.Error()))
		}
		impDealMap[imp.ID] = dealTierBidderMap
	}
	return impDealMap, warnings
}

// findDurationRange returns the smallest element of durationRanges which is not less than dur. Returns
// an error if all elements are less than dur. Without ranges the duration is used as is.
func findDurationRange(dur int, durationRanges []int) (int, error) {
	if len(durationRanges) == 0 {
		return dur, nil
	}

	newDur := dur
	madeSelection := false
	for _, durationRange := range durationRanges {
		if dur > durationRange {
			continue
		}
		if !madeSelection || durationRange < newDur {
			newDur = durationRange
			madeSelection = true
		}
	}
	if !madeSelection {
		return dur, errors.New("bid duration exceeds maximum allowed")
	}
	return newDur, nil
}

func updateRejections(rejections []string, bidID string, reason string) []string {
	message := fmt.Sprintf("bid rejected [bid ID: %s] reason: %s", bidID, reason)
	return append(rejections, message)
}

func getPrimaryAdServer(adServerId int) (string, error) {
	switch adServerId {
	case 1:
		return "freewheel", nil
	case 2:
		return "dfp", nil
	case 0:
		return "", &errortypes.BadInput{Message: "Primary ad server required when translating categories"}
	default:
		return "", &errortypes.BadInput{Message: fmt.Sprintf("Primary ad server %d not recognized", adServerId)}
	}
}
