package stored_responses

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStoredBidResponseFetcher struct {
	data  map[string]json.RawMessage
	calls [][]string
}

func (cf *mockStoredBidResponseFetcher) FetchRequests(ctx context.Context, requestIDs []string, impIDs []string) (map[string]json.RawMessage, map[string]json.RawMessage, []error) {
	return nil, nil, nil
}

func (cf *mockStoredBidResponseFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	cf.calls = append(cf.calls, ids)
	result := make(map[string]json.RawMessage)
	var errs []error
	for _, id := range ids {
		if resp, ok := cf.data[id]; ok {
			result[id] = resp
		} else {
			errs = append(errs, errors.New("not found: "+id))
		}
	}
	return result, errs
}

func TestExtractStoredResponsesIds(t *testing.T) {
	testCases := []struct {
		description           string
		imps                  []openrtb2.Imp
		expectedIDs           StoredResponseIDs
		expectedImpBidderIDs  ImpBiddersWithBidResponseIDs
		expectedImpBidderRepl ImpBidderReplaceImpID
		expectedError         string
	}{
		{
			description:           "no stored responses",
			imps:                  []openrtb2.Imp{{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{"placementId":1}}`)}},
			expectedIDs:           StoredResponseIDs{},
			expectedImpBidderIDs:  ImpBiddersWithBidResponseIDs{},
			expectedImpBidderRepl: ImpBidderReplaceImpID{},
		},
		{
			description:           "stored response for bidder in imp.ext",
			imps:                  []openrtb2.Imp{{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"prebid":{"storedbidresponse":[{"bidder":"appnexus","id":"123"}]}}`)}},
			expectedIDs:           StoredResponseIDs{"123"},
			expectedImpBidderIDs:  ImpBiddersWithBidResponseIDs{"imp-id1": {"appnexus": "123"}},
			expectedImpBidderRepl: ImpBidderReplaceImpID{"imp-id1": {"appnexus": true}},
		},
		{
			description:           "stored response for bidder in imp.ext.prebid.bidder with replaceimpid false",
			imps:                  []openrtb2.Imp{{ID: "imp-id1", Ext: json.RawMessage(`{"prebid":{"bidder":{"appnexus":{}},"storedbidresponse":[{"bidder":"APPNEXUS","id":"123","replaceimpid":false}]}}`)}},
			expectedIDs:           StoredResponseIDs{"123"},
			expectedImpBidderIDs:  ImpBiddersWithBidResponseIDs{"imp-id1": {"appnexus": "123"}},
			expectedImpBidderRepl: ImpBidderReplaceImpID{"imp-id1": {"appnexus": false}},
		},
		{
			description:           "stored response for bidder not in the imp is ignored",
			imps:                  []openrtb2.Imp{{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"prebid":{"storedbidresponse":[{"bidder":"rubicon","id":"123"}]}}`)}},
			expectedIDs:           StoredResponseIDs{},
			expectedImpBidderIDs:  ImpBiddersWithBidResponseIDs{},
			expectedImpBidderRepl: ImpBidderReplaceImpID{},
		},
		{
			description: "missing id",
			imps: []openrtb2.Imp{
				{ID: "imp-id0"},
				{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"prebid":{"storedbidresponse":[{"bidder":"appnexus"}]}}`)},
			},
			expectedError: "request.imp[1] has ext.prebid.storedbidresponse specified, but \"id\" or/and \"bidder\" fields are missing ",
		},
		{
			description:   "missing bidder",
			imps:          []openrtb2.Imp{{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"prebid":{"storedbidresponse":[{"id":"123"}]}}`)}},
			expectedError: "request.imp[0] has ext.prebid.storedbidresponse specified, but \"id\" or/and \"bidder\" fields are missing ",
		},
	}

	for _, test := range testCases {
		t.Run(test.description, func(t *testing.T) {
			ids, impBidderIDs, impBidderRepl, err := extractStoredResponsesIds(test.imps)
			if test.expectedError != "" {
				assert.EqualError(t, err, test.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expectedIDs, ids)
			assert.Equal(t, test.expectedImpBidderIDs, impBidderIDs)
			assert.Equal(t, test.expectedImpBidderRepl, impBidderRepl)
		})
	}
}

func TestProcessStoredResponses(t *testing.T) {
	bidResp1 := json.RawMessage(`{"seatbid":[{"bid":[{"id":"bid1","impid":"stored","price":1}]}]}`)
	bidResp2 := json.RawMessage(`{"seatbid":[{"bid":[{"id":"bid2","impid":"stored","price":2}]}]}`)
	fetcher := &mockStoredBidResponseFetcher{data: map[string]json.RawMessage{"1": bidResp1, "2": bidResp2}}

	imps := []openrtb2.Imp{
		{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"rubicon":{},"prebid":{"storedbidresponse":[{"bidder":"appnexus","id":"1"},{"bidder":"rubicon","id":"2","replaceimpid":false}]}}`)},
		{ID: "imp-id2", Ext: json.RawMessage(`{"appnexus":{}}`)},
	}

	result, errs := ProcessStoredResponses(context.Background(), imps, fetcher)

	require.Empty(t, errs)
	assert.Equal(t, BidderImpsWithBidResponses{
		"appnexus": {"imp-id1": bidResp1},
		"rubicon":  {"imp-id1": bidResp2},
	}, result.BidderImps)
	assert.Equal(t, BidderImpReplaceImpID{
		"appnexus": {"imp-id1": true},
		"rubicon":  {"imp-id1": false},
	}, result.ReplaceImpID)
	assert.True(t, result.HasImp("imp-id1"))
	assert.False(t, result.HasImp("imp-id2"))
}

func TestProcessStoredResponsesFetchFailure(t *testing.T) {
	fetcher := &mockStoredBidResponseFetcher{data: map[string]json.RawMessage{}}
	imps := []openrtb2.Imp{
		{ID: "imp-id1", Ext: json.RawMessage(`{"appnexus":{},"prebid":{"storedbidresponse":[{"bidder":"appnexus","id":"missing"}]}}`)},
	}

	result, errs := ProcessStoredResponses(context.Background(), imps, fetcher)

	assert.Len(t, errs, 1)
	assert.Empty(t, result.BidderImps)
}

func TestProcessStoredResponsesNoneRequested(t *testing.T) {
	fetcher := &mockStoredBidResponseFetcher{}

	result, errs := ProcessStoredResponses(context.Background(), []openrtb2.Imp{{ID: "imp-id1"}}, fetcher)

	assert.Empty(t, errs)
	assert.Empty(t, result.BidderImps)
	assert.Empty(t, fetcher.calls, "fetcher must not be called")
}

func TestFlipMap(t *testing.T) {
	testCases := []struct {
		description string
		in          ImpBidderReplaceImpID
		expected    BidderImpReplaceImpID
	}{
		{
			description: "empty",
			in:          ImpBidderReplaceImpID{},
			expected:    BidderImpReplaceImpID{},
		},
		{
			description: "two imps two bidders",
			in: ImpBidderReplaceImpID{
				"imp-id1": {"appnexus": true, "rubicon": false},
				"imp-id2": {"appnexus": false},
			},
			expected: BidderImpReplaceImpID{
				"appnexus": {"imp-id1": true, "imp-id2": false},
				"rubicon":  {"imp-id1": false},
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.expected, flipMap(test.in))
		})
	}
}

func TestBuildStoredResp(t *testing.T) {
	resp := json.RawMessage(`{"id":"resp"}`)
	result := buildStoredResp(ImpBidderStoredResp{
		"imp-id1": {"appnexus": resp},
		"imp-id2": {"appnexus": resp, "rubicon": resp},
	})
	assert.Equal(t, BidderImpsWithBidResponses{
		openrtb_ext.BidderName("appnexus"): {"imp-id1": resp, "imp-id2": resp},
		openrtb_ext.BidderName("rubicon"):  {"imp-id2": resp},
	}, result)
}
