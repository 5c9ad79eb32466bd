package hookexecution

import (
	"context"
	"errors"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/hooks"
	"github.com/prebid/prebid-auction/hooks/hookstage"
)

type mockPlanBuilder struct {
	hooks.EmptyPlanBuilder
	bidderRequestPlan     hooks.Plan[hookstage.BidderRequest]
	rawBidderResponsePlan hooks.Plan[hookstage.RawBidderResponse]
	auctionResponsePlan   hooks.Plan[hookstage.AuctionResponse]
}

func (b mockPlanBuilder) PlanForBidderRequestStage(_ string, _ *config.Account) hooks.Plan[hookstage.BidderRequest] {
	return b.bidderRequestPlan
}

func (b mockPlanBuilder) PlanForRawBidderResponseStage(_ string, _ *config.Account) hooks.Plan[hookstage.RawBidderResponse] {
	return b.rawBidderResponsePlan
}

func (b mockPlanBuilder) PlanForAuctionResponseStage(_ string, _ *config.Account) hooks.Plan[hookstage.AuctionResponse] {
	return b.auctionResponsePlan
}

type mockUpdateBAdvHook struct{}

func (h mockUpdateBAdvHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	c := hookstage.ChangeSet[hookstage.BidderRequestPayload]{}
	c.BidderRequest().BAdv().Update([]string{"blocked.com"})
	return hookstage.HookResult[hookstage.BidderRequestPayload]{ChangeSet: c}, nil
}

type mockRejectBidderHook struct {
	bidder string
}

func (h mockRejectBidderHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, payload hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	if payload.Bidder == h.bidder {
		return hookstage.HookResult[hookstage.BidderRequestPayload]{Reject: true, NbrCode: 123, Message: "bidder blocked"}, nil
	}
	return hookstage.HookResult[hookstage.BidderRequestPayload]{}, nil
}

type mockTimeoutHook struct{}

func (h mockTimeoutHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	time.Sleep(200 * time.Millisecond)
	c := hookstage.ChangeSet[hookstage.BidderRequestPayload]{}
	c.BidderRequest().BCat().Update([]string{"IAB1"})
	return hookstage.HookResult[hookstage.BidderRequestPayload]{ChangeSet: c}, nil
}

type mockFailureHook struct{}

func (h mockFailureHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	return hookstage.HookResult[hookstage.BidderRequestPayload]{}, NewFailure("attribute %s missing", "foo")
}

type mockErrorHook struct{}

func (h mockErrorHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	return hookstage.HookResult[hookstage.BidderRequestPayload]{}, errors.New("unexpected error")
}

type mockPanicHook struct{}

func (h mockPanicHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	panic("boom")
}

// mockModuleContextHook stores the bidder it saw at the bidder request stage and reads it back
// at the auction response stage.
type mockModuleContextHook struct{}

func (h mockModuleContextHook) HandleBidderRequestHook(_ context.Context, _ hookstage.ModuleInvocationContext, payload hookstage.BidderRequestPayload) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
	return hookstage.HookResult[hookstage.BidderRequestPayload]{ModuleContext: hookstage.ModuleContext{"bidder": payload.Bidder}}, nil
}

func (h mockModuleContextHook) HandleAuctionResponseHook(_ context.Context, miCtx hookstage.ModuleInvocationContext, payload hookstage.AuctionResponsePayload) (hookstage.HookResult[hookstage.AuctionResponsePayload], error) {
	bidder, _ := miCtx.ModuleContext["bidder"].(string)
	c := hookstage.ChangeSet[hookstage.AuctionResponsePayload]{}
	c.AuctionResponse().Replace(&openrtb2.BidResponse{ID: payload.BidResponse.ID, CustomData: bidder})
	return hookstage.HookResult[hookstage.AuctionResponsePayload]{ChangeSet: c}, nil
}

type mockDropBidsHook struct{}

func (h mockDropBidsHook) HandleRawBidderResponseHook(_ context.Context, _ hookstage.ModuleInvocationContext, payload hookstage.RawBidderResponsePayload) (hookstage.HookResult[hookstage.RawBidderResponsePayload], error) {
	kept := make([]*entities.PbsOrtbBid, 0, len(payload.Bids))
	for _, bid := range payload.Bids {
		if bid.Bid.Price >= 1 {
			kept = append(kept, bid)
		}
	}
	c := hookstage.ChangeSet[hookstage.RawBidderResponsePayload]{}
	c.RawBidderResponse().UpdateBids(kept)
	return hookstage.HookResult[hookstage.RawBidderResponsePayload]{ChangeSet: c}, nil
}

type mockRejectResponseHook struct{}

func (h mockRejectResponseHook) HandleRawBidderResponseHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.RawBidderResponsePayload) (hookstage.HookResult[hookstage.RawBidderResponsePayload], error) {
	return hookstage.HookResult[hookstage.RawBidderResponsePayload]{Reject: true}, nil
}

type mockRejectAuctionResponseHook struct{}

func (h mockRejectAuctionResponseHook) HandleAuctionResponseHook(_ context.Context, _ hookstage.ModuleInvocationContext, _ hookstage.AuctionResponsePayload) (hookstage.HookResult[hookstage.AuctionResponsePayload], error) {
	return hookstage.HookResult[hookstage.AuctionResponsePayload]{Reject: true}, nil
}

func bidderRequestGroup(timeout time.Duration, hooksByModule ...hooks.HookWrapper[hookstage.BidderRequest]) hooks.Group[hookstage.BidderRequest] {
	return hooks.Group[hookstage.BidderRequest]{Timeout: timeout, Hooks: hooksByModule}
}
