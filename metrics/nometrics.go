package metrics

import (
	"time"

	"github.com/prebid/prebid-auction/openrtb_ext"
)

// NilMetricsEngine implements the MetricsEngine interface and records nothing. It is used when
// no metrics backend is configured.
type NilMetricsEngine struct{}

func (me *NilMetricsEngine) RecordRequest(labels Labels) {}

func (me *NilMetricsEngine) RecordImps(labels ImpLabels) {}

func (me *NilMetricsEngine) RecordRequestTime(labels Labels, length time.Duration) {}

func (me *NilMetricsEngine) RecordAdapterRequest(labels AdapterLabels) {}

func (me *NilMetricsEngine) RecordAdapterPanic(labels AdapterLabels) {}

func (me *NilMetricsEngine) RecordAdapterError(adapterName openrtb_ext.BidderName, err AdapterError) {}

func (me *NilMetricsEngine) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
}

func (me *NilMetricsEngine) RecordAdapterPrice(labels AdapterLabels, cpm float64) {}

func (me *NilMetricsEngine) RecordAdapterTime(labels AdapterLabels, length time.Duration) {}

func (me *NilMetricsEngine) RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason RejectedBidReason) {
}

func (me *NilMetricsEngine) RecordPrebidCacheRequestTime(success bool, length time.Duration) {}

func (me *NilMetricsEngine) RecordRequestPrivacy(privacy PrivacyLabels) {}

func (me *NilMetricsEngine) RecordAdapterGDPRRequestBlocked(adapterName openrtb_ext.BidderName) {}

func (me *NilMetricsEngine) RecordStoredResponse(pubID string) {}

func (me *NilMetricsEngine) RecordDebugRequest(debugEnabled bool, pubID string) {}

func (me *NilMetricsEngine) RecordAlert(alert AlertType) {}

func (me *NilMetricsEngine) RecordDynamicFetchFailure(pubID, code string) {}

func (me *NilMetricsEngine) RecordModuleExecution(labels ModuleLabels, length time.Duration) {}
