package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/openrtb_ext"
	metrics "github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry       metrics.Registry
	RequestStatuses       map[RequestType]map[RequestStatus]metrics.Meter
	ImpsTypeBanner        metrics.Meter
	ImpsTypeVideo         metrics.Meter
	ImpsTypeAudio         metrics.Meter
	ImpsTypeNative        metrics.Meter
	RequestsTimer         metrics.Timer
	PrebidCacheTimerSucc  metrics.Timer
	PrebidCacheTimerFail  metrics.Timer
	StoredResponsesMeter  metrics.Meter
	DebugRequestMeter     metrics.Meter
	GeneralAlertMeter     metrics.Meter
	PrivacyCCPARequest    metrics.Meter
	PrivacyCCPAOptOut     metrics.Meter
	PrivacyCOPPARequest   metrics.Meter
	PrivacyLMTRequest     metrics.Meter
	PrivacyTCFRequestV2   metrics.Meter
	PrivacyTCFRequestErr  metrics.Meter
	DynamicFetchFailures  metrics.Meter
	AdapterGDPRBlocked    metrics.Meter
	ModuleExecutionTimer  metrics.Timer
	ModuleExecutionStatus map[ModuleStatus]metrics.Meter

	// Metrics for each adapter, created on first use.
	AdapterMetrics  map[openrtb_ext.BidderName]*AdapterMetrics
	adapterMetricsM sync.RWMutex

	// Metrics for each account, created on first use.
	accountMetrics  map[string]*accountMetrics
	accountMetricsM sync.RWMutex

	MetricsDisabled config.DisabledMetrics
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	NoBidMeter        metrics.Meter
	GotBidsMeter      metrics.Meter
	RequestTimer      metrics.Timer
	PriceHistogram    metrics.Histogram
	ErrorMeters       map[AdapterError]metrics.Meter
	PanicMeter        metrics.Meter
	BidsReceivedMeter map[openrtb_ext.BidType]metrics.Meter
	AdmMeter          metrics.Meter
	NurlMeter         metrics.Meter
	RejectedBids      map[RejectedBidReason]metrics.Meter
	GDPRBlockedMeter  metrics.Meter
}

type accountMetrics struct {
	requestMeter      metrics.Meter
	debugRequestMeter metrics.Meter
	storedResponses   metrics.Meter
	rejectedBidsMeter metrics.Meter
	fetchFailures     map[string]metrics.Meter
}

// NewMetrics creates a new Metrics object with all the meters registered to the registry.
// Adapter and account meters are registered on first use.
func NewMetrics(registry metrics.Registry, disabled config.DisabledMetrics) *Metrics {
	m := &Metrics{
		MetricsRegistry:       registry,
		RequestStatuses:       make(map[RequestType]map[RequestStatus]metrics.Meter),
		ImpsTypeBanner:        metrics.GetOrRegisterMeter("imp_banner", registry),
		ImpsTypeVideo:         metrics.GetOrRegisterMeter("imp_video", registry),
		ImpsTypeAudio:         metrics.GetOrRegisterMeter("imp_audio", registry),
		ImpsTypeNative:        metrics.GetOrRegisterMeter("imp_native", registry),
		RequestsTimer:         metrics.GetOrRegisterTimer("request_time", registry),
		PrebidCacheTimerSucc:  metrics.GetOrRegisterTimer("prebid_cache_request_time.ok", registry),
		PrebidCacheTimerFail:  metrics.GetOrRegisterTimer("prebid_cache_request_time.err", registry),
		StoredResponsesMeter:  metrics.GetOrRegisterMeter("stored_responses", registry),
		DebugRequestMeter:     metrics.GetOrRegisterMeter("debug_requests", registry),
		GeneralAlertMeter:     metrics.GetOrRegisterMeter("alerts.general", registry),
		PrivacyCCPARequest:    metrics.GetOrRegisterMeter("privacy.request.ccpa.specified", registry),
		PrivacyCCPAOptOut:     metrics.GetOrRegisterMeter("privacy.request.ccpa.opt-out", registry),
		PrivacyCOPPARequest:   metrics.GetOrRegisterMeter("privacy.request.coppa", registry),
		PrivacyLMTRequest:     metrics.GetOrRegisterMeter("privacy.request.lmt", registry),
		PrivacyTCFRequestV2:   metrics.GetOrRegisterMeter("privacy.request.tcf.v2", registry),
		PrivacyTCFRequestErr:  metrics.GetOrRegisterMeter("privacy.request.tcf.err", registry),
		DynamicFetchFailures:  metrics.GetOrRegisterMeter("floors.fetch.failures", registry),
		AdapterGDPRBlocked:    metrics.GetOrRegisterMeter("adapter_gdpr_request_blocked", registry),
		ModuleExecutionTimer:  metrics.GetOrRegisterTimer("modules.execution_time", registry),
		ModuleExecutionStatus: make(map[ModuleStatus]metrics.Meter),
		AdapterMetrics:        make(map[openrtb_ext.BidderName]*AdapterMetrics),
		accountMetrics:        make(map[string]*accountMetrics),
		MetricsDisabled:       disabled,
	}

	for _, requestType := range RequestTypes() {
		m.RequestStatuses[requestType] = make(map[RequestStatus]metrics.Meter)
		for _, status := range RequestStatuses() {
			m.RequestStatuses[requestType][status] = metrics.GetOrRegisterMeter(fmt.Sprintf("requests.%s.%s", status, requestType), registry)
		}
	}
	for _, status := range ModuleStatuses() {
		m.ModuleExecutionStatus[status] = metrics.GetOrRegisterMeter(fmt.Sprintf("modules.%s", status), registry)
	}

	return m
}

func (me *Metrics) getAdapterMetrics(adapter openrtb_ext.BidderName) *AdapterMetrics {
	me.adapterMetricsM.RLock()
	am, ok := me.AdapterMetrics[adapter]
	me.adapterMetricsM.RUnlock()
	if ok {
		return am
	}

	me.adapterMetricsM.Lock()
	defer me.adapterMetricsM.Unlock()
	if am, ok = me.AdapterMetrics[adapter]; ok {
		return am
	}
	am = makeAdapterMetrics(me.MetricsRegistry, adapter)
	me.AdapterMetrics[adapter] = am
	return am
}

func makeAdapterMetrics(registry metrics.Registry, adapter openrtb_ext.BidderName) *AdapterMetrics {
	prefix := fmt.Sprintf("adapter.%s", adapter)
	am := &AdapterMetrics{
		NoBidMeter:        metrics.GetOrRegisterMeter(prefix+".requests.nobid", registry),
		GotBidsMeter:      metrics.GetOrRegisterMeter(prefix+".requests.gotbids", registry),
		RequestTimer:      metrics.GetOrRegisterTimer(prefix+".request_time", registry),
		PriceHistogram:    metrics.GetOrRegisterHistogram(prefix+".prices", registry, metrics.NewExpDecaySample(1028, 0.015)),
		ErrorMeters:       make(map[AdapterError]metrics.Meter),
		PanicMeter:        metrics.GetOrRegisterMeter(prefix+".requests.panic", registry),
		BidsReceivedMeter: make(map[openrtb_ext.BidType]metrics.Meter),
		AdmMeter:          metrics.GetOrRegisterMeter(prefix+".bids.adm", registry),
		NurlMeter:         metrics.GetOrRegisterMeter(prefix+".bids.nurl", registry),
		RejectedBids:      make(map[RejectedBidReason]metrics.Meter),
		GDPRBlockedMeter:  metrics.GetOrRegisterMeter(prefix+".gdpr_request_blocked", registry),
	}
	for _, err := range AdapterErrors() {
		am.ErrorMeters[err] = metrics.GetOrRegisterMeter(fmt.Sprintf("%s.requests.%s", prefix, err), registry)
	}
	for _, bidType := range openrtb_ext.BidTypes() {
		am.BidsReceivedMeter[bidType] = metrics.GetOrRegisterMeter(fmt.Sprintf("%s.%s.bids_received", prefix, bidType), registry)
	}
	for _, reason := range RejectedBidReasons() {
		am.RejectedBids[reason] = metrics.GetOrRegisterMeter(fmt.Sprintf("%s.rejected_bids.%s", prefix, reason), registry)
	}
	return am
}

func (me *Metrics) getAccountMetrics(id string) *accountMetrics {
	me.accountMetricsM.RLock()
	am, ok := me.accountMetrics[id]
	me.accountMetricsM.RUnlock()
	if ok {
		return am
	}

	me.accountMetricsM.Lock()
	defer me.accountMetricsM.Unlock()
	if am, ok = me.accountMetrics[id]; ok {
		return am
	}
	am = &accountMetrics{
		requestMeter:      metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.requests", id), me.MetricsRegistry),
		debugRequestMeter: metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.debug_requests", id), me.MetricsRegistry),
		storedResponses:   metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.stored_responses", id), me.MetricsRegistry),
		rejectedBidsMeter: metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.rejected_bids", id), me.MetricsRegistry),
		fetchFailures:     make(map[string]metrics.Meter),
	}
	me.accountMetrics[id] = am
	return am
}

func (me *Metrics) accountEnabled(pubID string) bool {
	return pubID != "" && pubID != PublisherUnknown && !me.MetricsDisabled.AccountAdapterDetails
}

func (me *Metrics) RecordRequest(labels Labels) {
	if statuses, ok := me.RequestStatuses[labels.RType]; ok {
		if meter, ok := statuses[labels.RequestStatus]; ok {
			meter.Mark(1)
		}
	}

	if me.accountEnabled(labels.PubID) {
		me.getAccountMetrics(labels.PubID).requestMeter.Mark(1)
	}
}

func (me *Metrics) RecordImps(labels ImpLabels) {
	if labels.BannerImps {
		me.ImpsTypeBanner.Mark(1)
	}
	if labels.VideoImps {
		me.ImpsTypeVideo.Mark(1)
	}
	if labels.AudioImps {
		me.ImpsTypeAudio.Mark(1)
	}
	if labels.NativeImps {
		me.ImpsTypeNative.Mark(1)
	}
}

func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	if labels.RequestStatus == RequestStatusOK {
		me.RequestsTimer.Update(length)
	}
}

func (me *Metrics) RecordAdapterRequest(labels AdapterLabels) {
	am := me.getAdapterMetrics(labels.Adapter)

	switch labels.AdapterBids {
	case AdapterBidNone:
		am.NoBidMeter.Mark(1)
	case AdapterBidPresent:
		am.GotBidsMeter.Mark(1)
	}

	for err := range labels.AdapterErrors {
		if meter, ok := am.ErrorMeters[err]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordAdapterPanic(labels AdapterLabels) {
	me.getAdapterMetrics(labels.Adapter).PanicMeter.Mark(1)
}

func (me *Metrics) RecordAdapterError(adapterName openrtb_ext.BidderName, err AdapterError) {
	if meter, ok := me.getAdapterMetrics(adapterName).ErrorMeters[err]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	am := me.getAdapterMetrics(labels.Adapter)
	if meter, ok := am.BidsReceivedMeter[bidType]; ok {
		meter.Mark(1)
	}
	if hasAdm {
		am.AdmMeter.Mark(1)
	} else {
		am.NurlMeter.Mark(1)
	}
}

func (me *Metrics) RecordAdapterPrice(labels AdapterLabels, cpm float64) {
	// Prices are recorded in thousandths to keep precision in the integer histogram.
	me.getAdapterMetrics(labels.Adapter).PriceHistogram.Update(int64(cpm * 1000))
}

func (me *Metrics) RecordAdapterTime(labels AdapterLabels, length time.Duration) {
	if len(labels.AdapterErrors) == 0 {
		me.getAdapterMetrics(labels.Adapter).RequestTimer.Update(length)
	}
}

func (me *Metrics) RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason RejectedBidReason) {
	if meter, ok := me.getAdapterMetrics(bidder).RejectedBids[reason]; ok {
		meter.Mark(1)
	}
	if me.accountEnabled(pubID) {
		me.getAccountMetrics(pubID).rejectedBidsMeter.Mark(1)
	}
}

func (me *Metrics) RecordPrebidCacheRequestTime(success bool, length time.Duration) {
	if success {
		me.PrebidCacheTimerSucc.Update(length)
	} else {
		me.PrebidCacheTimerFail.Update(length)
	}
}

func (me *Metrics) RecordRequestPrivacy(privacy PrivacyLabels) {
	if privacy.CCPAProvided {
		me.PrivacyCCPARequest.Mark(1)
		if privacy.CCPAEnforced {
			me.PrivacyCCPAOptOut.Mark(1)
		}
	}
	if privacy.COPPAEnforced {
		me.PrivacyCOPPARequest.Mark(1)
	}
	if privacy.GDPREnforced {
		if privacy.GDPRTCFVersion == TCFVersionV2 {
			me.PrivacyTCFRequestV2.Mark(1)
		} else {
			me.PrivacyTCFRequestErr.Mark(1)
		}
	}
	if privacy.LMTEnforced {
		me.PrivacyLMTRequest.Mark(1)
	}
}

func (me *Metrics) RecordAdapterGDPRRequestBlocked(adapterName openrtb_ext.BidderName) {
	me.AdapterGDPRBlocked.Mark(1)
	me.getAdapterMetrics(adapterName).GDPRBlockedMeter.Mark(1)
}

func (me *Metrics) RecordStoredResponse(pubID string) {
	me.StoredResponsesMeter.Mark(1)
	if me.accountEnabled(pubID) {
		me.getAccountMetrics(pubID).storedResponses.Mark(1)
	}
}

func (me *Metrics) RecordDebugRequest(debugEnabled bool, pubID string) {
	if !debugEnabled {
		return
	}
	me.DebugRequestMeter.Mark(1)
	if me.accountEnabled(pubID) {
		me.getAccountMetrics(pubID).debugRequestMeter.Mark(1)
	}
}

func (me *Metrics) RecordAlert(alert AlertType) {
	if alert == AlertGeneral {
		me.GeneralAlertMeter.Mark(1)
	}
}

func (me *Metrics) RecordDynamicFetchFailure(pubID, code string) {
	me.DynamicFetchFailures.Mark(1)
	if !me.accountEnabled(pubID) {
		return
	}
	am := me.getAccountMetrics(pubID)
	me.accountMetricsM.Lock()
	meter, ok := am.fetchFailures[code]
	if !ok {
		meter = metrics.GetOrRegisterMeter(fmt.Sprintf("account.%s.floors.fetch.failure.%s", pubID, code), me.MetricsRegistry)
		am.fetchFailures[code] = meter
	}
	me.accountMetricsM.Unlock()
	meter.Mark(1)
}

func (me *Metrics) RecordModuleExecution(labels ModuleLabels, length time.Duration) {
	me.ModuleExecutionTimer.Update(length)
	if meter, ok := me.ModuleExecutionStatus[labels.Status]; ok {
		meter.Mark(1)
	}
}
