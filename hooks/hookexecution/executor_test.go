package hookexecution

import (
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/hooks"
	"github.com/prebid/prebid-auction/hooks/hookstage"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEmptyPlanDoesNotChangePayloads(t *testing.T) {
	exec := NewHookExecutor(hooks.EmptyPlanBuilder{}, EndpointAuction, &metrics.NilMetricsEngine{})
	exec.SetAccount(&config.Account{ID: "acct"})

	request := &openrtb2.BidRequest{ID: "req"}
	result, reject := exec.ExecuteBidderRequestStage(request, "appnexus")
	assert.Nil(t, reject)
	assert.Same(t, request, result)

	bids := []*entities.PbsOrtbBid{{Bid: &openrtb2.Bid{ID: "bid"}}}
	resultBids, reject := exec.ExecuteRawBidderResponseStage(bids, "appnexus")
	assert.Nil(t, reject)
	assert.Equal(t, bids, resultBids)

	response := &openrtb2.BidResponse{ID: "resp"}
	assert.Same(t, response, exec.ExecuteAuctionResponseStage(response))

	assert.Empty(t, exec.GetOutcomes())
}

func TestEmptyHookExecutor(t *testing.T) {
	exec := EmptyHookExecutor{}
	exec.SetAccount(nil)

	request := &openrtb2.BidRequest{ID: "req"}
	result, reject := exec.ExecuteBidderRequestStage(request, "appnexus")
	assert.Nil(t, reject)
	assert.Same(t, request, result)

	bids, reject := exec.ExecuteRawBidderResponseStage(nil, "appnexus")
	assert.Nil(t, reject)
	assert.Nil(t, bids)

	response := &openrtb2.BidResponse{}
	assert.Same(t, response, exec.ExecuteAuctionResponseStage(response))
	assert.Empty(t, exec.GetOutcomes())
}

func TestExecuteBidderRequestStage(t *testing.T) {
	tests := []struct {
		description      string
		plan             hooks.Plan[hookstage.BidderRequest]
		bidder           string
		expectedBAdv     []string
		expectedBCat     []string
		expectedReject   *RejectError
		expectedStatuses []Status
		expectedActions  []Action
		expectedMetrics  []metrics.ModuleStatus
	}{
		{
			description: "mutation applied",
			plan: hooks.Plan[hookstage.BidderRequest]{
				bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.badv", Code: "badv", Hook: mockUpdateBAdvHook{}}),
			},
			bidder:           "appnexus",
			expectedBAdv:     []string{"blocked.com"},
			expectedStatuses: []Status{StatusSuccess},
			expectedActions:  []Action{ActionUpdate},
			expectedMetrics:  []metrics.ModuleStatus{metrics.ModuleStatusSuccess},
		},
		{
			description: "reject stops later groups",
			plan: hooks.Plan[hookstage.BidderRequest]{
				bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.reject", Code: "reject", Hook: mockRejectBidderHook{bidder: "appnexus"}}),
				bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.badv", Code: "badv", Hook: mockUpdateBAdvHook{}}),
			},
			bidder:           "appnexus",
			expectedReject:   &RejectError{NBR: 123, Hook: HookID{ModuleCode: "vendor.reject", HookImplCode: "reject"}, Stage: hooks.StageBidderRequest},
			expectedStatuses: []Status{StatusSuccess},
			expectedActions:  []Action{ActionReject},
			expectedMetrics:  []metrics.ModuleStatus{metrics.ModuleStatusRejected},
		},
		{
			description: "no rejection for other bidder",
			plan: hooks.Plan[hookstage.BidderRequest]{
				bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.reject", Code: "reject", Hook: mockRejectBidderHook{bidder: "appnexus"}}),
				bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.badv", Code: "badv", Hook: mockUpdateBAdvHook{}}),
			},
			bidder:           "rubicon",
			expectedBAdv:     []string{"blocked.com"},
			expectedStatuses: []Status{StatusSuccess, StatusSuccess},
			expectedActions:  []Action{ActionNone, ActionUpdate},
			expectedMetrics:  []metrics.ModuleStatus{metrics.ModuleStatusNoop, metrics.ModuleStatusSuccess},
		},
		{
			description: "timeout discards late mutations",
			plan: hooks.Plan[hookstage.BidderRequest]{
				bidderRequestGroup(20*time.Millisecond,
					hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.slow", Code: "slow", Hook: mockTimeoutHook{}},
					hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.badv", Code: "badv", Hook: mockUpdateBAdvHook{}},
				),
			},
			bidder:           "appnexus",
			expectedBAdv:     []string{"blocked.com"},
			expectedStatuses: []Status{StatusTimeout, StatusSuccess},
			expectedActions:  []Action{ActionNone, ActionUpdate},
			expectedMetrics:  []metrics.ModuleStatus{metrics.ModuleStatusTimeout, metrics.ModuleStatusSuccess},
		},
		{
			description: "failures do not stop the stage",
			plan: hooks.Plan[hookstage.BidderRequest]{
				bidderRequestGroup(100*time.Millisecond,
					hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.failure", Code: "failure", Hook: mockFailureHook{}},
					hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.error", Code: "error", Hook: mockErrorHook{}},
					hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.panic", Code: "panic", Hook: mockPanicHook{}},
				),
			},
			bidder:           "appnexus",
			expectedStatuses: []Status{StatusFailure, StatusExecutionFailure, StatusExecutionFailure},
			expectedActions:  []Action{ActionNone, ActionNone, ActionNone},
			expectedMetrics:  []metrics.ModuleStatus{metrics.ModuleStatusFailed, metrics.ModuleStatusFailed, metrics.ModuleStatusFailed},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			metricEngine := &metrics.MetricsEngineMock{}
			var recorded []metrics.ModuleStatus
			metricEngine.On("RecordModuleExecution", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				labels := args.Get(0).(metrics.ModuleLabels)
				assert.Equal(t, "acct", labels.AccountID)
				assert.Equal(t, hooks.StageBidderRequest, labels.Stage)
				recorded = append(recorded, labels.Status)
			}).Return()

			exec := NewHookExecutor(mockPlanBuilder{bidderRequestPlan: test.plan}, EndpointAuction, metricEngine)
			exec.SetAccount(&config.Account{ID: "acct"})

			original := &openrtb2.BidRequest{ID: "req"}
			result, reject := exec.ExecuteBidderRequestStage(original, test.bidder)

			assert.Equal(t, test.expectedReject, reject)
			if test.expectedReject != nil {
				assert.Same(t, original, result)
			} else {
				assert.Equal(t, test.expectedBAdv, result.BAdv)
				assert.Equal(t, test.expectedBCat, result.BCat)
			}
			assert.Nil(t, original.BAdv, "auction request must not change")

			outcomes := exec.GetOutcomes()
			require.Len(t, outcomes, 1)
			assert.Equal(t, EntityBidderRequest, outcomes[0].Entity)
			assert.Equal(t, hooks.StageBidderRequest, outcomes[0].Stage)

			var statuses []Status
			var actions []Action
			for _, group := range outcomes[0].Groups {
				for _, result := range group.InvocationResults {
					statuses = append(statuses, result.Status)
					actions = append(actions, result.Action)
				}
			}
			assert.Equal(t, test.expectedStatuses, statuses)
			assert.Equal(t, test.expectedActions, actions)
			assert.Equal(t, test.expectedMetrics, recorded)
		})
	}
}

func TestExecuteRawBidderResponseStage(t *testing.T) {
	bids := []*entities.PbsOrtbBid{
		{Bid: &openrtb2.Bid{ID: "low", Price: 0.5}},
		{Bid: &openrtb2.Bid{ID: "high", Price: 2}},
	}

	dropPlan := hooks.Plan[hookstage.RawBidderResponse]{{
		Timeout: 100 * time.Millisecond,
		Hooks:   []hooks.HookWrapper[hookstage.RawBidderResponse]{{Module: "vendor.drop", Code: "drop", Hook: mockDropBidsHook{}}},
	}}
	exec := NewHookExecutor(mockPlanBuilder{rawBidderResponsePlan: dropPlan}, EndpointAuction, &metrics.NilMetricsEngine{})

	result, reject := exec.ExecuteRawBidderResponseStage(bids, "appnexus")
	require.Nil(t, reject)
	require.Len(t, result, 1)
	assert.Equal(t, "high", result[0].Bid.ID)
	assert.Len(t, bids, 2, "input bids must not change")

	rejectPlan := hooks.Plan[hookstage.RawBidderResponse]{{
		Timeout: 100 * time.Millisecond,
		Hooks:   []hooks.HookWrapper[hookstage.RawBidderResponse]{{Module: "vendor.reject", Code: "reject", Hook: mockRejectResponseHook{}}},
	}}
	exec = NewHookExecutor(mockPlanBuilder{rawBidderResponsePlan: rejectPlan}, EndpointAuction, &metrics.NilMetricsEngine{})

	result, reject = exec.ExecuteRawBidderResponseStage(bids, "appnexus")
	require.NotNil(t, reject)
	assert.Nil(t, result)
	assert.Equal(t, hooks.StageRawBidderResponse, reject.Stage)
	assert.Equal(t, EntityRawBidderResponse, exec.GetOutcomes()[0].Entity)
}

func TestExecuteAuctionResponseStage(t *testing.T) {
	contextHook := mockModuleContextHook{}
	builder := mockPlanBuilder{
		bidderRequestPlan: hooks.Plan[hookstage.BidderRequest]{
			bidderRequestGroup(100*time.Millisecond, hooks.HookWrapper[hookstage.BidderRequest]{Module: "vendor.ctx", Code: "ctx", Hook: contextHook}),
		},
		auctionResponsePlan: hooks.Plan[hookstage.AuctionResponse]{{
			Timeout: 100 * time.Millisecond,
			Hooks:   []hooks.HookWrapper[hookstage.AuctionResponse]{{Module: "vendor.ctx", Code: "ctx", Hook: contextHook}},
		}},
	}
	exec := NewHookExecutor(builder, EndpointAuction, &metrics.NilMetricsEngine{})

	_, reject := exec.ExecuteBidderRequestStage(&openrtb2.BidRequest{}, "appnexus")
	require.Nil(t, reject)

	result := exec.ExecuteAuctionResponseStage(&openrtb2.BidResponse{ID: "resp"})

	assert.Equal(t, &openrtb2.BidResponse{ID: "resp", CustomData: "appnexus"}, result, "module context is carried between stages")
	assert.Len(t, exec.GetOutcomes(), 2)
}

func TestExecuteAuctionResponseStageIgnoresReject(t *testing.T) {
	builder := mockPlanBuilder{
		auctionResponsePlan: hooks.Plan[hookstage.AuctionResponse]{{
			Timeout: 100 * time.Millisecond,
			Hooks:   []hooks.HookWrapper[hookstage.AuctionResponse]{{Module: "vendor.reject", Code: "reject", Hook: mockRejectAuctionResponseHook{}}},
		}},
	}
	exec := NewHookExecutor(builder, EndpointAuction, &metrics.NilMetricsEngine{})

	response := &openrtb2.BidResponse{ID: "resp"}
	assert.Same(t, response, exec.ExecuteAuctionResponseStage(response))
}

func TestRejectError(t *testing.T) {
	reject := &RejectError{NBR: 123, Hook: HookID{ModuleCode: "vendor.module", HookImplCode: "code"}, Stage: hooks.StageBidderRequest}

	assert.Equal(t, "Module vendor.module (hook: code) rejected request with code 123 at bidder_request stage", reject.Error())
	assert.Equal(t, errortypes.ModuleRejectionErrorCode, errortypes.ReadCode(reject))
	assert.True(t, errortypes.IsWarning(reject))
	assert.Same(t, reject, FindFirstRejectOrNil([]error{&errortypes.Timeout{}, reject}))
	assert.Nil(t, FindFirstRejectOrNil([]error{&errortypes.Timeout{}}))
}
