package openrtb_ext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndBuildExtMultiBid(t *testing.T) {
	tests := []struct {
		description    string
		multiBid       []*ExtMultiBid
		expected       map[string]ExtMultiBidConfig
		expectedErrors int
	}{
		{
			description: "single-bidder-entry",
			multiBid:    []*ExtMultiBid{{Bidder: "pubmatic", MaxBids: intPtr(3), TargetBidderCodePrefix: "pm"}},
			expected:    map[string]ExtMultiBidConfig{"pubmatic": {Bidder: "pubmatic", MaxBids: 3, TargetBidderCodePrefix: "pm"}},
		},
		{
			description:    "both-bidder-and-bidders",
			multiBid:       []*ExtMultiBid{{Bidder: "pubmatic", Bidders: []string{"appnexus"}, MaxBids: intPtr(2)}},
			expected:       map[string]ExtMultiBidConfig{},
			expectedErrors: 1,
		},
		{
			description:    "neither-bidder-nor-bidders",
			multiBid:       []*ExtMultiBid{{MaxBids: intPtr(2)}},
			expected:       map[string]ExtMultiBidConfig{},
			expectedErrors: 1,
		},
		{
			description:    "missing-maxbids",
			multiBid:       []*ExtMultiBid{{Bidder: "pubmatic"}},
			expected:       map[string]ExtMultiBidConfig{},
			expectedErrors: 1,
		},
		{
			description: "duplicate-bidder",
			multiBid: []*ExtMultiBid{
				{Bidder: "pubmatic", MaxBids: intPtr(2)},
				{Bidders: []string{"pubmatic", "appnexus"}, MaxBids: intPtr(4)},
			},
			expected:       map[string]ExtMultiBidConfig{"pubmatic": {Bidder: "pubmatic", MaxBids: 2}},
			expectedErrors: 1,
		},
		{
			description:    "prefix-on-multi-bidder-entry",
			multiBid:       []*ExtMultiBid{{Bidders: []string{"pubmatic", "appnexus"}, MaxBids: intPtr(2), TargetBidderCodePrefix: "x"}},
			expected:       map[string]ExtMultiBidConfig{},
			expectedErrors: 1,
		},
		{
			description: "single-bidder-list-defaults",
			multiBid:    []*ExtMultiBid{{Bidders: []string{"appnexus"}, TargetBidderCodePrefix: "anx"}},
			expected:    map[string]ExtMultiBidConfig{"appnexus": {Bidder: "appnexus", MaxBids: 1, TargetBidderCodePrefix: "anx"}},
		},
		{
			description:    "maxbids-clamped",
			multiBid:       []*ExtMultiBid{{Bidder: "pubmatic", MaxBids: intPtr(20)}},
			expected:       map[string]ExtMultiBidConfig{"pubmatic": {Bidder: "pubmatic", MaxBids: MaxBidLimit}},
			expectedErrors: 1,
		},
	}

	for _, test := range tests {
		result, errs := ValidateAndBuildExtMultiBid(&ExtRequestPrebid{MultiBid: test.multiBid})
		assert.Equal(t, test.expected, result, test.description)
		assert.Len(t, errs, test.expectedErrors, test.description)
	}
}
