package hooks

import (
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/hooks/hookstage"
)

// EmptyPlanBuilder implements the ExecutionPlanBuilder interface
// and used as the stub when the hooks' functionality is disabled.
type EmptyPlanBuilder struct{}

func (e EmptyPlanBuilder) PlanForBidderRequestStage(endpoint string, account *config.Account) Plan[hookstage.BidderRequest] {
	return nil
}

func (e EmptyPlanBuilder) PlanForRawBidderResponseStage(endpoint string, account *config.Account) Plan[hookstage.RawBidderResponse] {
	return nil
}

func (e EmptyPlanBuilder) PlanForAuctionResponseStage(endpoint string, account *config.Account) Plan[hookstage.AuctionResponse] {
	return nil
}
