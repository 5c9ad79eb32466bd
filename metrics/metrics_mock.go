package metrics

import (
	"time"

	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordRequest mock
func (me *MetricsEngineMock) RecordRequest(labels Labels) {
	me.Called(labels)
}

// RecordImps mock
func (me *MetricsEngineMock) RecordImps(labels ImpLabels) {
	me.Called(labels)
}

// RecordRequestTime mock
func (me *MetricsEngineMock) RecordRequestTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
}

// RecordAdapterRequest mock
func (me *MetricsEngineMock) RecordAdapterRequest(labels AdapterLabels) {
	me.Called(labels)
}

// RecordAdapterPanic mock
func (me *MetricsEngineMock) RecordAdapterPanic(labels AdapterLabels) {
	me.Called(labels)
}

// RecordAdapterError mock
func (me *MetricsEngineMock) RecordAdapterError(adapterName openrtb_ext.BidderName, err AdapterError) {
	me.Called(adapterName, err)
}

// RecordAdapterBidReceived mock
func (me *MetricsEngineMock) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	me.Called(labels, bidType, hasAdm)
}

// RecordAdapterPrice mock
func (me *MetricsEngineMock) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	me.Called(labels, cpm)
}

// RecordAdapterTime mock
func (me *MetricsEngineMock) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	me.Called(labels, length)
}

// RecordRejectedBids mock
func (me *MetricsEngineMock) RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason RejectedBidReason) {
	me.Called(pubID, bidder, reason)
}

// RecordPrebidCacheRequestTime mock
func (me *MetricsEngineMock) RecordPrebidCacheRequestTime(success bool, length time.Duration) {
	me.Called(success, length)
}

// RecordRequestPrivacy mock
func (me *MetricsEngineMock) RecordRequestPrivacy(privacy PrivacyLabels) {
	me.Called(privacy)
}

// RecordAdapterGDPRRequestBlocked mock
func (me *MetricsEngineMock) RecordAdapterGDPRRequestBlocked(adapterName openrtb_ext.BidderName) {
	me.Called(adapterName)
}

// RecordStoredResponse mock
func (me *MetricsEngineMock) RecordStoredResponse(pubID string) {
	me.Called(pubID)
}

// RecordDebugRequest mock
func (me *MetricsEngineMock) RecordDebugRequest(debugEnabled bool, pubID string) {
	me.Called(debugEnabled, pubID)
}

// RecordAlert mock
func (me *MetricsEngineMock) RecordAlert(alert AlertType) {
	me.Called(alert)
}

// RecordDynamicFetchFailure mock
func (me *MetricsEngineMock) RecordDynamicFetchFailure(pubID, code string) {
	me.Called(pubID, code)
}

// RecordModuleExecution mock
func (me *MetricsEngineMock) RecordModuleExecution(labels ModuleLabels, length time.Duration) {
	me.Called(labels, length)
}
