// Package ortbbidder holds the generic bidder which forwards the OpenRTB request as-is to the
// endpoint of the bidder info and reads a plain OpenRTB response back.
package ortbbidder

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

type adapter struct {
	endpoint string
}

type bidExt struct {
	Prebid *bidExtPrebid `json:"prebid,omitempty"`
	Video  *bidExtVideo  `json:"video,omitempty"`
}

type bidExtPrebid struct {
	Type         openrtb_ext.BidType `json:"type,omitempty"`
	DealPriority int                 `json:"dealpriority,omitempty"`
}

type bidExtVideo struct {
	Duration        *int   `json:"duration,omitempty"`
	PrimaryCategory string `json:"primary_category,omitempty"`
}

// Builder builds a new instance of the OpenRTB pass-through bidder.
func Builder(bidderName openrtb_ext.BidderName, info config.BidderInfo) (adapters.Bidder, error) {
	if info.Endpoint == "" {
		return nil, fmt.Errorf("bidder %s has no endpoint", bidderName)
	}
	return &adapter{endpoint: info.Endpoint}, nil
}

func (a *adapter) MakeRequests(request *openrtb2.BidRequest, requestInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, []error{err}
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")
	headers.Add("X-Openrtb-Version", "2.6")

	return []*adapters.RequestData{{
		Method:  http.MethodPost,
		Uri:     a.endpoint,
		Body:    requestJSON,
		Headers: headers,
		ImpIDs:  impIDs(request.Imp),
	}}, nil
}

func (a *adapter) MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if response.StatusCode == http.StatusBadRequest {
		return nil, []error{&errortypes.BadInput{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info", response.StatusCode),
		}}
	}
	if response.StatusCode != http.StatusOK {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info", response.StatusCode),
		}}
	}

	var bidResp openrtb2.BidResponse
	if err := json.Unmarshal(response.Body, &bidResp); err != nil {
		return nil, []error{&errortypes.BadServerResponse{Message: err.Error()}}
	}

	var errs []error
	bidResponse := adapters.NewBidderResponseWithBidsCapacity(len(internalRequest.Imp))
	if bidResp.Cur != "" {
		bidResponse.Currency = bidResp.Cur
	}
	for _, sb := range bidResp.SeatBid {
		for i := range sb.Bid {
			bid := sb.Bid[i]
			typedBid := &adapters.TypedBid{
				Bid:     &bid,
				BidType: getBidType(bid, internalRequest.Imp),
			}
			if len(bid.Ext) > 0 {
				var ext bidExt
				if err := json.Unmarshal(bid.Ext, &ext); err != nil {
					errs = append(errs, &errortypes.BadServerResponse{Message: fmt.Sprintf("bid %s has an invalid ext: %v", bid.ID, err)})
					continue
				}
				if ext.Prebid != nil {
					if ext.Prebid.Type != "" {
						typedBid.BidType = ext.Prebid.Type
					}
					typedBid.DealPriority = ext.Prebid.DealPriority
				}
				if ext.Video != nil && typedBid.BidType == openrtb_ext.BidTypeVideo {
					typedBid.BidVideo = &openrtb_ext.ExtBidPrebidVideo{PrimaryCategory: ext.Video.PrimaryCategory}
					if ext.Video.Duration != nil {
						typedBid.BidVideo.Duration = *ext.Video.Duration
					}
				}
			}
			bidResponse.Bids = append(bidResponse.Bids, typedBid)
		}
	}
	return bidResponse, errs
}

// getBidType derives the media type from bid.mtype, falling back to the media of the imp
// the bid answers, banner first.
func getBidType(bid openrtb2.Bid, imps []openrtb2.Imp) openrtb_ext.BidType {
	switch bid.MType {
	case openrtb2.MarkupBanner:
		return openrtb_ext.BidTypeBanner
	case openrtb2.MarkupVideo:
		return openrtb_ext.BidTypeVideo
	case openrtb2.MarkupAudio:
		return openrtb_ext.BidTypeAudio
	case openrtb2.MarkupNative:
		return openrtb_ext.BidTypeNative
	}

	bidType := openrtb_ext.BidTypeBanner
	for _, imp := range imps {
		if imp.ID == bid.ImpID {
			if imp.Banner != nil {
				break
			}
			if imp.Video != nil {
				bidType = openrtb_ext.BidTypeVideo
				break
			}
			if imp.Native != nil {
				bidType = openrtb_ext.BidTypeNative
				break
			}
			if imp.Audio != nil {
				bidType = openrtb_ext.BidTypeAudio
				break
			}
		}
	}
	return bidType
}

func impIDs(imps []openrtb2.Imp) []string {
	ids := make([]string, 0, len(imps))
	for _, imp := range imps {
		ids = append(ids, imp.ID)
	}
	return ids
}
