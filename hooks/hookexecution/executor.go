package hookexecution

import (
	"context"
	"sync"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/hooks"
	"github.com/prebid/prebid-auction/hooks/hookstage"
	"github.com/prebid/prebid-auction/metrics"
)

const EndpointAuction = "/openrtb2/auction"

// StageExecutor runs the hook stages of one auction. Implementations must be safe for the
// per-bidder stages being executed concurrently.
type StageExecutor interface {
	SetAccount(account *config.Account)
	// ExecuteBidderRequestStage returns the request to send to the bidder, which a hook may have
	// replaced. A non nil RejectError means the bidder must not be called.
	ExecuteBidderRequestStage(request *openrtb2.BidRequest, bidder string) (*openrtb2.BidRequest, *RejectError)
	// ExecuteRawBidderResponseStage returns the bids to keep for the bidder. A non nil RejectError
	// means the seat is emptied.
	ExecuteRawBidderResponseStage(bids []*entities.PbsOrtbBid, bidder string) ([]*entities.PbsOrtbBid, *RejectError)
	// ExecuteAuctionResponseStage returns the response to send, which a hook may have replaced.
	ExecuteAuctionResponseStage(response *openrtb2.BidResponse) *openrtb2.BidResponse
	GetOutcomes() []StageOutcome
}

type hookExecutor struct {
	account        *config.Account
	accountID      string
	endpoint       string
	planBuilder    hooks.ExecutionPlanBuilder
	stageOutcomes  []StageOutcome
	moduleContexts *hookstage.ModuleContexts
	metricEngine   metrics.MetricsEngine
	// Mutex needed for BidderRequest and RawBidderResponse Stages as they are run in several goroutines
	sync.Mutex
}

func NewHookExecutor(builder hooks.ExecutionPlanBuilder, endpoint string, metricEngine metrics.MetricsEngine) StageExecutor {
	return &hookExecutor{
		endpoint:       endpoint,
		planBuilder:    builder,
		stageOutcomes:  []StageOutcome{},
		moduleContexts: hookstage.NewModuleContexts(),
		metricEngine:   metricEngine,
	}
}

func (e *hookExecutor) SetAccount(account *config.Account) {
	if account == nil {
		return
	}

	e.account = account
	e.accountID = account.ID
}

func (e *hookExecutor) GetOutcomes() []StageOutcome {
	e.Lock()
	defer e.Unlock()

	outcomes := make([]StageOutcome, len(e.stageOutcomes))
	copy(outcomes, e.stageOutcomes)
	return outcomes
}

func (e *hookExecutor) ExecuteBidderRequestStage(request *openrtb2.BidRequest, bidder string) (*openrtb2.BidRequest, *RejectError) {
	plan := e.planBuilder.PlanForBidderRequestStage(e.endpoint, e.account)
	if len(plan) == 0 {
		return request, nil
	}

	handler := func(
		ctx context.Context,
		moduleCtx hookstage.ModuleInvocationContext,
		hook hookstage.BidderRequest,
		payload hookstage.BidderRequestPayload,
	) (hookstage.HookResult[hookstage.BidderRequestPayload], error) {
		return hook.HandleBidderRequestHook(ctx, moduleCtx, payload)
	}

	payload := hookstage.BidderRequestPayload{Request: request, Bidder: bidder}
	stageOutcome, payload, reject := executeStage(e.newContext(hooks.StageBidderRequest), plan, payload, handler, e.metricEngine)
	stageOutcome.Entity = EntityBidderRequest
	e.pushStageOutcome(stageOutcome)

	if reject != nil {
		return request, reject
	}
	return payload.Request, nil
}

func (e *hookExecutor) ExecuteRawBidderResponseStage(bids []*entities.PbsOrtbBid, bidder string) ([]*entities.PbsOrtbBid, *RejectError) {
	plan := e.planBuilder.PlanForRawBidderResponseStage(e.endpoint, e.account)
	if len(plan) == 0 {
		return bids, nil
	}

	handler := func(
		ctx context.Context,
		moduleCtx hookstage.ModuleInvocationContext,
		hook hookstage.RawBidderResponse,
		payload hookstage.RawBidderResponsePayload,
	) (hookstage.HookResult[hookstage.RawBidderResponsePayload], error) {
		return hook.HandleRawBidderResponseHook(ctx, moduleCtx, payload)
	}

	payload := hookstage.RawBidderResponsePayload{Bids: bids, Bidder: bidder}
	stageOutcome, payload, reject := executeStage(e.newContext(hooks.StageRawBidderResponse), plan, payload, handler, e.metricEngine)
	stageOutcome.Entity = EntityRawBidderResponse
	e.pushStageOutcome(stageOutcome)

	if reject != nil {
		return nil, reject
	}
	return payload.Bids, nil
}

func (e *hookExecutor) ExecuteAuctionResponseStage(response *openrtb2.BidResponse) *openrtb2.BidResponse {
	plan := e.planBuilder.PlanForAuctionResponseStage(e.endpoint, e.account)
	if len(plan) == 0 {
		return response
	}

	handler := func(
		ctx context.Context,
		moduleCtx hookstage.ModuleInvocationContext,
		hook hookstage.AuctionResponse,
		payload hookstage.AuctionResponsePayload,
	) (hookstage.HookResult[hookstage.AuctionResponsePayload], error) {
		return hook.HandleAuctionResponseHook(ctx, moduleCtx, payload)
	}

	payload := hookstage.AuctionResponsePayload{BidResponse: response}
	stageOutcome, payload, reject := executeStage(e.newContext(hooks.StageAuctionResponse), plan, payload, handler, e.metricEngine)
	stageOutcome.Entity = EntityAuctionResponse
	e.pushStageOutcome(stageOutcome)

	// rejection is not allowed at this stage, the response is kept
	if reject != nil {
		return response
	}
	return payload.BidResponse
}

func (e *hookExecutor) newContext(stage string) executionContext {
	return executionContext{
		endpoint:       e.endpoint,
		stage:          stage,
		accountID:      e.accountID,
		moduleContexts: e.moduleContexts,
	}
}

func (e *hookExecutor) pushStageOutcome(outcome StageOutcome) {
	e.Lock()
	defer e.Unlock()
	e.stageOutcomes = append(e.stageOutcomes, outcome)
}

// EmptyHookExecutor runs no hooks and returns every payload unchanged.
type EmptyHookExecutor struct{}

func (executor EmptyHookExecutor) SetAccount(_ *config.Account) {}

func (executor EmptyHookExecutor) ExecuteBidderRequestStage(request *openrtb2.BidRequest, _ string) (*openrtb2.BidRequest, *RejectError) {
	return request, nil
}

func (executor EmptyHookExecutor) ExecuteRawBidderResponseStage(bids []*entities.PbsOrtbBid, _ string) ([]*entities.PbsOrtbBid, *RejectError) {
	return bids, nil
}

func (executor EmptyHookExecutor) ExecuteAuctionResponseStage(response *openrtb2.BidResponse) *openrtb2.BidResponse {
	return response
}

func (executor EmptyHookExecutor) GetOutcomes() []StageOutcome {
	return []StageOutcome{}
}
