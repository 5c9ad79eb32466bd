package schain

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBidderToPrebidSChains(t *testing.T) {
	tests := []struct {
		description string
		giveSChains []*openrtb_ext.ExtRequestPrebidSChain
		wantResult  map[string]*openrtb2.SupplyChain
		wantError   bool
	}{
		{
			description: "no schains",
			giveSChains: nil,
			wantResult:  map[string]*openrtb2.SupplyChain{},
		},
		{
			description: "one schain shared by two bidders",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{
				{Bidders: []string{"appnexus", "rubicon"}, SChain: openrtb2.SupplyChain{Ver: "1.0"}},
			},
			wantResult: map[string]*openrtb2.SupplyChain{
				"appnexus": {Ver: "1.0"},
				"rubicon":  {Ver: "1.0"},
			},
		},
		{
			description: "bidder listed twice",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{
				{Bidders: []string{"appnexus"}, SChain: openrtb2.SupplyChain{Ver: "1.0"}},
				{Bidders: []string{"appnexus"}, SChain: openrtb2.SupplyChain{Ver: "2.0"}},
			},
			wantError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			result, err := BidderToPrebidSChains(test.giveSChains)
			if test.wantError {
				assert.Error(t, err)
				assert.Nil(t, result)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.wantResult, result)
		})
	}
}

func TestSChainWriter(t *testing.T) {
	const sellerWildCard = "sellerWildCard"
	const sellerBidder = "sellerBidder"

	bidderSChain := openrtb2.SupplyChain{Ver: "1.0", Nodes: []openrtb2.SupplyChainNode{{SID: sellerBidder}}}
	wildCardSChain := openrtb2.SupplyChain{Ver: "1.0", Nodes: []openrtb2.SupplyChainNode{{SID: sellerWildCard}}}

	tests := []struct {
		description string
		giveRequest openrtb2.BidRequest
		giveBidder  string
		giveSChains []*openrtb_ext.ExtRequestPrebidSChain
		wantSource  *openrtb2.Source
	}{
		{
			description: "no schains, source untouched",
			giveRequest: openrtb2.BidRequest{Source: &openrtb2.Source{TID: "tid", Ext: json.RawMessage(`{"schain":{"ver":"1.0"}}`)}},
			giveBidder:  "appnexus",
			wantSource:  &openrtb2.Source{TID: "tid", Ext: json.RawMessage(`{"schain":{"ver":"1.0"}}`)},
		},
		{
			description: "bidder specific schain",
			giveRequest: openrtb2.BidRequest{},
			giveBidder:  "appnexus",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{{Bidders: []string{"appnexus"}, SChain: bidderSChain}},
			wantSource:  &openrtb2.Source{SChain: &bidderSChain},
		},
		{
			description: "bidder specific schain beats wildcard",
			giveRequest: openrtb2.BidRequest{Source: &openrtb2.Source{TID: "tid"}},
			giveBidder:  "appnexus",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{
				{Bidders: []string{"*"}, SChain: wildCardSChain},
				{Bidders: []string{"appnexus"}, SChain: bidderSChain},
			},
			wantSource: &openrtb2.Source{TID: "tid", SChain: &bidderSChain},
		},
		{
			description: "wildcard schain for other bidder",
			giveRequest: openrtb2.BidRequest{},
			giveBidder:  "rubicon",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{
				{Bidders: []string{"*"}, SChain: wildCardSChain},
				{Bidders: []string{"appnexus"}, SChain: bidderSChain},
			},
			wantSource: &openrtb2.Source{SChain: &wildCardSChain},
		},
		{
			description: "schain for other bidder only",
			giveRequest: openrtb2.BidRequest{},
			giveBidder:  "rubicon",
			giveSChains: []*openrtb_ext.ExtRequestPrebidSChain{{Bidders: []string{"appnexus"}, SChain: bidderSChain}},
			wantSource:  nil,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			reqExt := &openrtb_ext.ExtRequest{Prebid: openrtb_ext.ExtRequestPrebid{SChains: test.giveSChains}}
			writer, err := NewSChainWriter(reqExt)
			require.NoError(t, err)

			originalSource := test.giveRequest.Source
			req := test.giveRequest
			writer.Write(&req, test.giveBidder)

			assert.Equal(t, test.wantSource, req.Source)
			if originalSource != nil && test.wantSource != nil && test.wantSource.SChain != nil {
				assert.Nil(t, originalSource.SChain, "original source must not change")
			}
		})
	}
}

func TestNewSChainWriterError(t *testing.T) {
	reqExt := &openrtb_ext.ExtRequest{Prebid: openrtb_ext.ExtRequestPrebid{SChains: []*openrtb_ext.ExtRequestPrebidSChain{
		{Bidders: []string{"appnexus"}},
		{Bidders: []string{"appnexus"}},
	}}}

	writer, err := NewSChainWriter(reqExt)
	assert.EqualError(t, err, "request.ext.prebid.schains contains multiple schains for bidder appnexus; it must contain no more than one per bidder.")
	assert.Nil(t, writer)
}
