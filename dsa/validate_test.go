package dsa

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		giveRequest *openrtb2.BidRequest
		giveBid     *entities.PbsOrtbBid
		wantValid   bool
	}{
		{
			name:        "not_required",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 0}}`),
			giveBid:     nil,
			wantValid:   true,
		},
		{
			name:        "required_and_bid_is_nil",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 2}}`),
			giveBid:     nil,
			wantValid:   false,
		},
		{
			name:        "required_and_bid.bid_is_nil",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 2}}`),
			giveBid:     &entities.PbsOrtbBid{},
			wantValid:   false,
		},
		{
			name:        "required_and_bid.ext.dsa_not_present",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 2}}`),
			giveBid:     &entities.PbsOrtbBid{Bid: &openrtb2.Bid{Ext: json.RawMessage(`{}`)}},
			wantValid:   false,
		},
		{
			name:        "required_and_bid.ext.dsa_present",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 2}}`),
			giveBid:     &entities.PbsOrtbBid{Bid: &openrtb2.Bid{Ext: json.RawMessage(`{"dsa": {}}`)}},
			wantValid:   true,
		},
		{
			name:        "required_and_bid.ext_malformed",
			giveRequest: requestWithRegsExt(`{"dsa": {"dsarequired": 3}}`),
			giveBid:     &entities.PbsOrtbBid{Bid: &openrtb2.Bid{Ext: json.RawMessage(`{"dsa": `)}},
			wantValid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := Validate(tt.giveRequest, tt.giveBid)
			assert.Equal(t, tt.wantValid, valid)
		})
	}
}

func TestDSARequired(t *testing.T) {
	tests := []struct {
		name         string
		giveRequest  *openrtb2.BidRequest
		wantRequired bool
	}{
		{
			name:         "nil_request",
			giveRequest:  nil,
			wantRequired: false,
		},
		{
			name:         "no_regs",
			giveRequest:  &openrtb2.BidRequest{},
			wantRequired: false,
		},
		{
			name:         "not_required_and_reg.ext.dsa_is_nil",
			giveRequest:  requestWithRegsExt(`{}`),
			wantRequired: false,
		},
		{
			name:         "not_required_and_reg.ext.dsa_is_empty",
			giveRequest:  requestWithRegsExt(`{"dsa": {}}`),
			wantRequired: false,
		},
		{
			name:         "required_and_reg.ext.dsa_is_0",
			giveRequest:  requestWithRegsExt(`{"dsa": {"dsarequired": 0}}`),
			wantRequired: false,
		},
		{
			name:         "required_and_reg.ext.dsa_is_1",
			giveRequest:  requestWithRegsExt(`{"dsa": {"dsarequired": 1}}`),
			wantRequired: false,
		},
		{
			name:         "required_and_reg.ext.dsa_is_2",
			giveRequest:  requestWithRegsExt(`{"dsa": {"dsarequired": 2}}`),
			wantRequired: true,
		},
		{
			name:         "required_and_reg.ext.dsa_is_3",
			giveRequest:  requestWithRegsExt(`{"dsa": {"dsarequired": 3}}`),
			wantRequired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			required := dsaRequired(tt.giveRequest)
			assert.Equal(t, tt.wantRequired, required)
		})
	}
}

func TestEnforce(t *testing.T) {
	withDSA := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid1", Ext: json.RawMessage(`{"dsa":{"behalf":"x"}}`)}}
	withoutDSA := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "bid2"}}

	participation := &entities.AuctionParticipation{
		Bidder: "appnexus",
		Response: &entities.BidderResponse{
			Bidder:  "appnexus",
			SeatBid: &entities.PbsOrtbSeatBid{Bids: []*entities.PbsOrtbBid{withDSA, withoutDSA}, Currency: "USD"},
		},
	}

	t.Run("not_required", func(t *testing.T) {
		result := Enforce(requestWithRegsExt(`{"dsa":{"dsarequired":1}}`), participation)
		assert.Same(t, participation, result)
	})

	t.Run("required", func(t *testing.T) {
		result := Enforce(requestWithRegsExt(`{"dsa":{"dsarequired":2}}`), participation)

		require.NotSame(t, participation, result)
		assert.Equal(t, []*entities.PbsOrtbBid{withDSA}, result.Response.Bids())
		assert.Equal(t, "USD", result.Response.SeatBid.Currency)
		require.Len(t, result.Response.Errors, 1)
		assert.True(t, errortypes.IsWarning(result.Response.Errors[0]))
		assert.Equal(t, errortypes.InvalidBidResponseDSAWarningCode, errortypes.ReadCode(result.Response.Errors[0]))
		assert.Contains(t, result.Response.Errors[0].Error(), "bid2")

		assert.Len(t, participation.Response.Bids(), 2, "input must not change")
		assert.Empty(t, participation.Response.Errors)
	})

	t.Run("no_response", func(t *testing.T) {
		p := &entities.AuctionParticipation{Bidder: "appnexus"}
		assert.Same(t, p, Enforce(requestWithRegsExt(`{"dsa":{"dsarequired":2}}`), p))
	})
}

func requestWithRegsExt(ext string) *openrtb2.BidRequest {
	return &openrtb2.BidRequest{Regs: &openrtb2.Regs{Ext: json.RawMessage(ext)}}
}
