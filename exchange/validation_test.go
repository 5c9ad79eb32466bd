package exchange

import (
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
)

func TestBidValidator(t *testing.T) {
	w, h := int64(300), int64(250)
	request := &openrtb2.BidRequest{Imp: []openrtb2.Imp{
		{ID: "banner", Banner: &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}}},
		{ID: "fixed", Banner: &openrtb2.Banner{W: &w, H: &h}},
	}}

	testCases := []struct {
		description      string
		bid              *entities.PbsOrtbBid
		expectedErrors   int
		expectedWarnings int
	}{
		{description: "nil bid", bid: nil, expectedErrors: 1},
		{description: "missing id", bid: &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ImpID: "banner"}}, expectedErrors: 1},
		{description: "missing imp id", bid: &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid"}}, expectedErrors: 1},
		{
			description:    "unknown imp and no creative",
			bid:            &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid", ImpID: "other", AdM: "<div/>"}},
			expectedErrors: 2,
		},
		{
			description: "valid",
			bid:         &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid", ImpID: "banner", CrID: "cr", AdM: "<div/>", W: 300, H: 250}, BidType: openrtb_ext.BidTypeBanner},
		},
		{
			description:      "no markup",
			bid:              &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid", ImpID: "banner", CrID: "cr"}, BidType: openrtb_ext.BidTypeBanner},
			expectedWarnings: 1,
		},
		{
			description:      "size not requested",
			bid:              &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid", ImpID: "fixed", CrID: "cr", AdM: "<div/>", W: 728, H: 90}, BidType: openrtb_ext.BidTypeBanner},
			expectedWarnings: 1,
		},
	}

	validator := NewResponseBidValidator()
	for _, test := range testCases {
		result := validator.Validate(test.bid, "appnexus", request)
		assert.Len(t, result.Errors, test.expectedErrors, test.description)
		assert.Len(t, result.Warnings, test.expectedWarnings, test.description)
		assert.Equal(t, test.expectedErrors > 0, result.HasErrors(), test.description)
	}
}

func TestMediaTypeProcessor(t *testing.T) {
	request := &openrtb2.BidRequest{Imp: []openrtb2.Imp{
		{ID: "banner", Banner: &openrtb2.Banner{}},
		{ID: "multi", Banner: &openrtb2.Banner{}, Video: &openrtb2.Video{}},
	}}
	bid := func(id, impID string, bidType openrtb_ext.BidType) *entities.PbsOrtbBid {
		return &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: id, ImpID: impID}, BidType: bidType}
	}

	testCases := []struct {
		description      string
		bids             []*entities.PbsOrtbBid
		expectedTypes    map[string]openrtb_ext.BidType
		expectedWarnings int
	}{
		{
			description:   "matching types",
			bids:          []*entities.PbsOrtbBid{bid("a", "banner", openrtb_ext.BidTypeBanner), bid("b", "multi", openrtb_ext.BidTypeVideo)},
			expectedTypes: map[string]openrtb_ext.BidType{"a": openrtb_ext.BidTypeBanner, "b": openrtb_ext.BidTypeVideo},
		},
		{
			description:   "missing type taken from a single format imp",
			bids:          []*entities.PbsOrtbBid{bid("a", "banner", "")},
			expectedTypes: map[string]openrtb_ext.BidType{"a": openrtb_ext.BidTypeBanner},
		},
		{
			description:      "unclassifiable bid drops the imp",
			bids:             []*entities.PbsOrtbBid{bid("a", "multi", openrtb_ext.BidTypeBanner), bid("b", "multi", ""), bid("c", "banner", openrtb_ext.BidTypeBanner)},
			expectedTypes:    map[string]openrtb_ext.BidType{"c": openrtb_ext.BidTypeBanner},
			expectedWarnings: 1,
		},
		{
			description:      "unknown imp",
			bids:             []*entities.PbsOrtbBid{bid("a", "missing", openrtb_ext.BidTypeBanner)},
			expectedTypes:    map[string]openrtb_ext.BidType{},
			expectedWarnings: 1,
		},
	}

	processor := NewMediaTypeProcessor()
	for _, test := range testCases {
		result, err := processor.Resolve(request, "appnexus", test.bids)
		assert.NoError(t, err, test.description)
		types := make(map[string]openrtb_ext.BidType)
		for _, resolved := range result.Bids {
			types[resolved.Bid.ID] = resolved.BidType
		}
		assert.Equal(t, test.expectedTypes, types, test.description)
		assert.Len(t, result.Warnings, test.expectedWarnings, test.description)
	}

	_, err := processor.Resolve(nil, "appnexus", nil)
	assert.Error(t, err)
}
