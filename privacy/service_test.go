package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/util/ptrutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTCFEvaluator struct {
	mock.Mock
}

func (m *mockTCFEvaluator) ResultForBidderNames(ctx context.Context, bidders []string, tcf TCFContext) (map[string]EnforcementAction, error) {
	args := m.Called(ctx, bidders, tcf)
	return args.Get(0).(map[string]EnforcementAction), args.Error(1)
}

func TestMaskEmptyBidders(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	service := NewService(tcf, config.BidderInfos{}, false)

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: &openrtb2.BidRequest{}}, nil, nil, nil)

	assert.NoError(t, err)
	assert.Empty(t, results)
	tcf.AssertNotCalled(t, "ResultForBidderNames", mock.Anything, mock.Anything, mock.Anything)
}

func TestMaskCOPPA(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, []string{"appnexus", "rubicon"}, TCFContext{}).Return(map[string]EnforcementAction{
		"rubicon": {BlockBidderRequest: true},
	}, nil)
	service := NewService(tcf, config.BidderInfos{}, true)

	req := &openrtb2.BidRequest{
		Regs:   &openrtb2.Regs{COPPA: 1},
		User:   getTestUser(),
		Device: getTestDevice(),
	}

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: req}, nil, []string{"appnexus", "rubicon"}, nil)

	require.NoError(t, err)
	require.Len(t, results, 2)
	tcf.AssertNumberOfCalls(t, "ResultForBidderNames", 1)
	assert.True(t, results[1].Enforcement.COPPA)
	assert.Equal(t, EnforcementAction{}, results[1].Enforcement.TCF, "coppa masking replaces tcf")
	assert.False(t, results[1].Blocked)
	assert.True(t, results[0].Enforcement.COPPA)
	assert.Equal(t, &openrtb2.User{Geo: &openrtb2.Geo{}}, results[0].User)
	assert.Equal(t, "1.2.3.0", results[0].Device.IP)
	assert.Equal(t, "2001:1db8:2233:4455:6677:ff00::", results[0].Device.IPv6)
	assert.Equal(t, "", results[0].Device.IFA)
	assert.Equal(t, &openrtb2.Geo{}, results[0].Device.Geo)
	assert.Equal(t, getTestUser(), req.User, "request user must not change")
}

func TestMaskCCPAAndTCF(t *testing.T) {
	bidderInfos := config.BidderInfos{
		"appnexus": {CCPAEnforced: true},
		"rubicon":  {CCPAEnforced: false},
		"pubmatic": {CCPAEnforced: true},
	}
	tcfCtx := TCFContext{GDPRApplies: true, Consent: "consent", Version: 2}

	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, []string{"appnexus", "rubicon", "pubmatic"}, tcfCtx).Return(map[string]EnforcementAction{
		"appnexus": {RemoveUserIDs: true},
		"rubicon":  {MaskGeo: true},
		"pubmatic": {BlockBidderRequest: true},
	}, nil)

	service := NewService(tcf, bidderInfos, true)

	req := &openrtb2.BidRequest{
		Regs:   &openrtb2.Regs{USPrivacy: "1NYN"},
		User:   getTestUser(),
		Device: getTestDevice(),
		Ext:    json.RawMessage(`{"prebid":{"nosale":["pubmatic"]}}`),
	}
	mctx := MaskContext{BidRequest: req, Account: &config.Account{}, TCF: tcfCtx}

	// "mine" aliases appnexus and must not cause a second evaluator entry
	bidders := []string{"appnexus", "rubicon", "pubmatic", "mine"}
	results, err := service.Mask(context.Background(), mctx, nil, bidders, map[string]string{"mine": "appnexus"})

	require.NoError(t, err)
	require.Len(t, results, 4)
	tcf.AssertNumberOfCalls(t, "ResultForBidderNames", 1)

	// appnexus supports ccpa and is not exempt
	assert.True(t, results[0].Enforcement.CCPA)
	assert.Equal(t, AllowAll(), results[0].Enforcement.TCF)
	assert.Equal(t, "", results[0].User.ID)
	assert.Equal(t, ptrutil.ToPtr(123.46), results[0].Device.Geo.Lat)
	assert.False(t, results[0].Blocked)

	// rubicon does not support ccpa so tcf applies
	assert.False(t, results[1].Enforcement.CCPA)
	assert.Equal(t, EnforcementAction{MaskGeo: true}, results[1].Enforcement.TCF)
	assert.Equal(t, "anyID", results[1].User.ID)
	assert.Equal(t, ptrutil.ToPtr(123.46), results[1].User.Geo.Lat)

	// pubmatic is exempt through nosale so tcf applies and blocks it
	assert.False(t, results[2].Enforcement.CCPA)
	assert.True(t, results[2].Blocked)

	// the alias is ccpa enforced through its core bidder info
	assert.Equal(t, "mine", results[3].Bidder)
	assert.True(t, results[3].Enforcement.CCPA)
}

func TestMaskCCPANotEnforcedByAccount(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, []string{"appnexus"}, TCFContext{}).Return(map[string]EnforcementAction{}, nil)

	service := NewService(tcf, config.BidderInfos{"appnexus": {CCPAEnforced: true}}, true)
	req := &openrtb2.BidRequest{Regs: &openrtb2.Regs{USPrivacy: "1NYN"}, User: getTestUser()}
	account := &config.Account{CCPA: config.AccountCCPA{Enabled: ptrutil.ToPtr(false)}}

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: req, Account: account}, nil, []string{"appnexus"}, nil)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Enforcement.Any())
	assert.Same(t, req.User, results[0].User)
}

func TestMaskUsesBidderSpecificUser(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, mock.Anything, mock.Anything).Return(map[string]EnforcementAction{}, nil)

	service := NewService(tcf, config.BidderInfos{}, false)
	bidderUser := &openrtb2.User{ID: "bidder-user"}
	req := &openrtb2.BidRequest{User: getTestUser()}

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: req}, map[string]*openrtb2.User{"appnexus": bidderUser}, []string{"appnexus", "rubicon"}, nil)

	require.NoError(t, err)
	assert.Same(t, bidderUser, results[0].User)
	assert.Same(t, req.User, results[1].User)
}

func TestMaskActivities(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, mock.Anything, mock.Anything).Return(map[string]EnforcementAction{}, nil)

	deny := config.Activity{Default: ptrutil.ToPtr(false)}
	ac := NewActivityControl(&config.AccountPrivacy{AllowActivities: &config.AllowActivities{
		TransmitUserFPD:    deny,
		TransmitPreciseGeo: deny,
	}})

	service := NewService(tcf, config.BidderInfos{}, false)
	req := &openrtb2.BidRequest{User: getTestUser(), Device: getTestDevice()}

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: req, ActivityControl: ac}, nil, []string{"appnexus"}, nil)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Enforcement.UFPD)
	assert.True(t, results[0].Enforcement.PreciseGeo)
	assert.False(t, results[0].Enforcement.UniqueRequestIDs)
	assert.Nil(t, results[0].User.Data)
	assert.Nil(t, results[0].User.Ext)
	assert.Equal(t, "", results[0].Device.IFA)
	assert.Equal(t, "1.2.3.0", results[0].Device.IP)
	assert.Equal(t, ptrutil.ToPtr(123.46), results[0].Device.Geo.Lat)
}

func TestMaskEvaluatorFailure(t *testing.T) {
	tcf := &mockTCFEvaluator{}
	tcf.On("ResultForBidderNames", mock.Anything, mock.Anything, mock.Anything).Return(map[string]EnforcementAction(nil), errors.New("vendor list unavailable"))

	service := NewService(tcf, config.BidderInfos{}, false)

	results, err := service.Mask(context.Background(), MaskContext{BidRequest: &openrtb2.BidRequest{}}, nil, []string{"appnexus"}, nil)

	assert.EqualError(t, err, "vendor list unavailable")
	assert.Nil(t, results)
}
