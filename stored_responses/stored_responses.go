package stored_responses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/stored_requests"
)

type ImpBiddersWithBidResponseIDs map[string]map[string]string
type StoredResponseIDs []string
type StoredResponseIdToStoredResponse map[string]json.RawMessage
type BidderImpsWithBidResponses map[openrtb_ext.BidderName]map[string]json.RawMessage
type ImpBidderStoredResp map[string]map[string]json.RawMessage
type ImpBidderReplaceImpID map[string]map[string]bool
type BidderImpReplaceImpID map[string]map[string]bool

// StoredResponses is what the auction needs to know about the stored bid responses of a request.
type StoredResponses struct {
	// BidderImps holds the stored response of each (bidder, imp) pairing.
	BidderImps BidderImpsWithBidResponses
	// ReplaceImpID tells per bidder and imp whether the stored bids get the request imp id.
	ReplaceImpID BidderImpReplaceImpID
}

// HasImp reports whether any bidder answers the imp with a stored response.
func (s StoredResponses) HasImp(impID string) bool {
	for _, imps := range s.BidderImps {
		if _, ok := imps[impID]; ok {
			return true
		}
	}
	return false
}

// ProcessStoredResponses scans the imps for ext.prebid.storedbidresponse entries and fetches the
// responses they name. Any fetch error is returned and must fail the auction.
func ProcessStoredResponses(ctx context.Context, imps []openrtb2.Imp, storedRespFetcher stored_requests.Fetcher) (StoredResponses, []error) {
	storedResponsesIds, impBidderToStoredBidResponseId, impBidderReplaceImp, err := extractStoredResponsesIds(imps)
	if err != nil {
		return StoredResponses{}, []error{err}
	}

	if len(storedResponsesIds) == 0 {
		return StoredResponses{}, nil
	}

	storedResponses, errs := storedRespFetcher.FetchResponses(ctx, storedResponsesIds)
	if len(errs) > 0 {
		return StoredResponses{}, errs
	}

	impBidderToStoredBidResponse, errs := buildStoredResponsesMaps(storedResponses, impBidderToStoredBidResponseId)
	if len(errs) > 0 {
		return StoredResponses{}, errs
	}

	return StoredResponses{
		BidderImps:   buildStoredResp(impBidderToStoredBidResponse),
		ReplaceImpID: flipMap(impBidderReplaceImp),
	}, nil
}

func extractStoredResponsesIds(imps []openrtb2.Imp) (StoredResponseIDs, ImpBiddersWithBidResponseIDs, ImpBidderReplaceImpID, error) {
	// all stored responses ids from all imps
	allStoredResponseIDs := StoredResponseIDs{}
	// imp id to bidder to stored response id
	impBiddersWithBidResponseIDs := ImpBiddersWithBidResponseIDs{}
	// imp id to bidder to replace imp id flag
	impBidderReplaceImp := ImpBidderReplaceImpID{}

	for index, imp := range imps {
		if len(imp.Ext) == 0 {
			continue
		}
		var impExt map[string]json.RawMessage
		if err := json.Unmarshal(imp.Ext, &impExt); err != nil {
			return nil, nil, nil, fmt.Errorf("request.imp[%d].ext is invalid: %v", index, err)
		}
		var impExtPrebid openrtb_ext.ExtImpPrebid
		if prebid, ok := impExt[string(openrtb_ext.BidderReservedPrebid)]; ok {
			if err := json.Unmarshal(prebid, &impExtPrebid); err != nil {
				return nil, nil, nil, fmt.Errorf("request.imp[%d].ext.prebid is invalid: %v", index, err)
			}
		}
		if len(impExtPrebid.StoredBidResponse) == 0 {
			continue
		}

		// bidders can be specified in imp.ext and in imp.ext.prebid.bidder
		allBidderNames := make([]string, 0, len(impExtPrebid.Bidder)+len(impExt))
		for bidderName := range impExtPrebid.Bidder {
			allBidderNames = append(allBidderNames, bidderName)
		}
		for key := range impExt {
			if !openrtb_ext.IsBidderNameReserved(key) {
				allBidderNames = append(allBidderNames, key)
			}
		}

		bidderStoredRespId := make(map[string]string)
		bidderReplaceImpId := make(map[string]bool)
		for _, bidderResp := range impExtPrebid.StoredBidResponse {
			if len(bidderResp.ID) == 0 || len(bidderResp.Bidder) == 0 {
				return nil, nil, nil, fmt.Errorf("request.imp[%d] has ext.prebid.storedbidresponse specified, but \"id\" or/and \"bidder\" fields are missing ", index)
			}

			for _, bidderName := range allBidderNames {
				if _, found := bidderStoredRespId[bidderName]; !found && strings.EqualFold(bidderName, bidderResp.Bidder) {
					bidderStoredRespId[bidderName] = bidderResp.ID
					impBiddersWithBidResponseIDs[imp.ID] = bidderStoredRespId

					replaceImpId := true
					if bidderResp.ReplaceImpId != nil {
						replaceImpId = *bidderResp.ReplaceImpId
					}
					bidderReplaceImpId[bidderName] = replaceImpId
					impBidderReplaceImp[imp.ID] = bidderReplaceImpId

					// ids may repeat, the fetcher returns a single entry for them
					allStoredResponseIDs = append(allStoredResponseIDs, bidderResp.ID)
				}
			}
		}
	}
	return allStoredResponseIDs, impBiddersWithBidResponseIDs, impBidderReplaceImp, nil
}

// flipMap takes map[impID][bidderName]replaceImpId and modifies it to map[bidderName][impId]replaceImpId
func flipMap(impBidderReplaceImpId ImpBidderReplaceImpID) BidderImpReplaceImpID {
	flippedMap := BidderImpReplaceImpID{}
	for impId, impData := range impBidderReplaceImpId {
		for bidder, replaceImpId := range impData {
			if _, ok := flippedMap[bidder]; !ok {
				flippedMap[bidder] = make(map[string]bool)
			}
			flippedMap[bidder][impId] = replaceImpId
		}
	}
	return flippedMap
}

func buildStoredResponsesMaps(storedResponses StoredResponseIdToStoredResponse, impBidderToStoredBidResponseId ImpBiddersWithBidResponseIDs) (ImpBidderStoredResp, []error) {
	var errs []error
	impBidderToStoredBidResponse := ImpBidderStoredResp{}

	for impId, bidderStoredResp := range impBidderToStoredBidResponseId {
		bidderStoredResponses := StoredResponseIdToStoredResponse{}
		for bidderName, id := range bidderStoredResp {
			if len(storedResponses[id]) == 0 {
				errs = append(errs, fmt.Errorf("failed to fetch stored bid response for impId = %s, bidder = %s and storedBidResponse id = %s", impId, bidderName, id))
			} else {
				bidderStoredResponses[bidderName] = storedResponses[id]
			}
		}
		impBidderToStoredBidResponse[impId] = bidderStoredResponses
	}
	return impBidderToStoredBidResponse, errs
}

func buildStoredResp(storedBidResponses ImpBidderStoredResp) BidderImpsWithBidResponses {
	// bidder -> imp id -> stored bid resp
	bidderToImpToResponses := BidderImpsWithBidResponses{}
	for impID, storedData := range storedBidResponses {
		for bidderName, storedResp := range storedData {
			if _, ok := bidderToImpToResponses[openrtb_ext.BidderName(bidderName)]; !ok {
				bidderToImpToResponses[openrtb_ext.BidderName(bidderName)] = map[string]json.RawMessage{}
			}
			bidderToImpToResponses[openrtb_ext.BidderName(bidderName)][impID] = storedResp
		}
	}
	return bidderToImpToResponses
}
