package ortbbidder

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	bidder, err := Builder("generic", config.BidderInfo{Endpoint: "http://bidder.test/auction"})
	require.NoError(t, err)
	assert.NotNil(t, bidder)

	_, err = Builder("generic", config.BidderInfo{})
	assert.EqualError(t, err, "bidder generic has no endpoint")
}

func TestMakeRequests(t *testing.T) {
	bidder, _ := Builder("generic", config.BidderInfo{Endpoint: "http://bidder.test/auction"})
	request := &openrtb2.BidRequest{ID: "req", Imp: []openrtb2.Imp{{ID: "imp1"}, {ID: "imp2"}}}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})

	assert.Empty(t, errs)
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "http://bidder.test/auction", reqs[0].Uri)
	assert.Equal(t, []string{"imp1", "imp2"}, reqs[0].ImpIDs)
	assert.Equal(t, "application/json;charset=utf-8", reqs[0].Headers.Get("Content-Type"))

	var sent openrtb2.BidRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	assert.Equal(t, "req", sent.ID)
}

func TestMakeBids(t *testing.T) {
	request := &openrtb2.BidRequest{Imp: []openrtb2.Imp{
		{ID: "banner", Banner: &openrtb2.Banner{}},
		{ID: "video", Video: &openrtb2.Video{}},
		{ID: "native", Native: &openrtb2.Native{}},
	}}

	tests := []struct {
		description      string
		response         *adapters.ResponseData
		expectedCurrency string
		expectedBids     []*adapters.TypedBid
		expectedErrors   []error
	}{
		{
			description: "no content",
			response:    &adapters.ResponseData{StatusCode: http.StatusNoContent},
		},
		{
			description:    "bad request",
			response:       &adapters.ResponseData{StatusCode: http.StatusBadRequest},
			expectedErrors: []error{&errortypes.BadInput{Message: "Unexpected status code: 400. Run with request.debug = 1 for more info"}},
		},
		{
			description:    "server error",
			response:       &adapters.ResponseData{StatusCode: http.StatusInternalServerError},
			expectedErrors: []error{&errortypes.BadServerResponse{Message: "Unexpected status code: 500. Run with request.debug = 1 for more info"}},
		},
		{
			description: "bid types from imps and mtype",
			response: &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(`{"cur":"EUR","seatbid":[{"bid":[
				{"id":"b1","impid":"banner","price":1},
				{"id":"b2","impid":"native","price":2},
				{"id":"b3","impid":"banner","price":3,"mtype":2}
			]}]}`)},
			expectedCurrency: "EUR",
			expectedBids: []*adapters.TypedBid{
				{Bid: &openrtb2.Bid{ID: "b1", ImpID: "banner", Price: 1}, BidType: openrtb_ext.BidTypeBanner},
				{Bid: &openrtb2.Bid{ID: "b2", ImpID: "native", Price: 2}, BidType: openrtb_ext.BidTypeNative},
				{Bid: &openrtb2.Bid{ID: "b3", ImpID: "banner", Price: 3, MType: openrtb2.MarkupVideo}, BidType: openrtb_ext.BidTypeVideo},
			},
		},
		{
			description: "video details and deal priority from ext",
			response: &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(`{"seatbid":[{"bid":[
				{"id":"b1","impid":"video","price":1,"ext":{"prebid":{"dealpriority":5},"video":{"duration":30,"primary_category":"IAB1"}}}
			]}]}`)},
			expectedCurrency: "USD",
			expectedBids: []*adapters.TypedBid{
				{
					Bid:          &openrtb2.Bid{ID: "b1", ImpID: "video", Price: 1, Ext: json.RawMessage(`{"prebid":{"dealpriority":5},"video":{"duration":30,"primary_category":"IAB1"}}`)},
					BidType:      openrtb_ext.BidTypeVideo,
					BidVideo:     &openrtb_ext.ExtBidPrebidVideo{Duration: 30, PrimaryCategory: "IAB1"},
					DealPriority: 5,
				},
			},
		},
	}

	bidder, _ := Builder("generic", config.BidderInfo{Endpoint: "http://bidder.test/auction"})
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			resp, errs := bidder.MakeBids(request, &adapters.RequestData{}, test.response)
			assert.Equal(t, test.expectedErrors, errs)
			if test.expectedBids == nil {
				if resp != nil {
					assert.Empty(t, resp.Bids)
				}
				return
			}
			require.NotNil(t, resp)
			assert.Equal(t, test.expectedCurrency, resp.Currency)
			require.Len(t, resp.Bids, len(test.expectedBids))
			for i, expected := range test.expectedBids {
				assert.Equal(t, expected.BidType, resp.Bids[i].BidType)
				assert.Equal(t, expected.BidVideo, resp.Bids[i].BidVideo)
				assert.Equal(t, expected.DealPriority, resp.Bids[i].DealPriority)
				assert.Equal(t, expected.Bid.ID, resp.Bids[i].Bid.ID)
				assert.Equal(t, expected.Bid.Price, resp.Bids[i].Bid.Price)
			}
		})
	}
}

func TestMakeBidsMalformedBody(t *testing.T) {
	bidder, _ := Builder("generic", config.BidderInfo{Endpoint: "http://bidder.test/auction"})
	resp, errs := bidder.MakeBids(&openrtb2.BidRequest{}, &adapters.RequestData{}, &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(`{`)})
	assert.Nil(t, resp)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
}

func TestMakeBidsInvalidBidExt(t *testing.T) {
	bidder, _ := Builder("generic", config.BidderInfo{Endpoint: "http://bidder.test/auction"})
	body := []byte(`{"seatbid":[{"bid":[{"id":"b1","impid":"i","price":1,"ext":{"prebid":"bad"}},{"id":"b2","impid":"i","price":2}]}]}`)

	resp, errs := bidder.MakeBids(&openrtb2.BidRequest{}, &adapters.RequestData{}, &adapters.ResponseData{StatusCode: http.StatusOK, Body: body})

	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	assert.Contains(t, errs[0].Error(), "bid b1 has an invalid ext")
	require.Len(t, resp.Bids, 1)
	assert.Equal(t, "b2", resp.Bids[0].Bid.ID)
}
