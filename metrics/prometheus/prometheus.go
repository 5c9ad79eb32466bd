package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	// General Metrics
	impressions           *prometheus.CounterVec
	prebidCacheWriteTimer *prometheus.HistogramVec
	requests              *prometheus.CounterVec
	requestsTimer         *prometheus.HistogramVec
	storedResponses       prometheus.Counter
	debugRequests         prometheus.Counter
	alerts                *prometheus.CounterVec
	privacyCCPA           *prometheus.CounterVec
	privacyCOPPA          *prometheus.CounterVec
	privacyLMT            *prometheus.CounterVec
	privacyTCF            *prometheus.CounterVec
	floorsFetchFailures   *prometheus.CounterVec
	moduleCalls           *prometheus.CounterVec
	moduleDuration        *prometheus.HistogramVec

	// Adapter Metrics
	adapterBids                *prometheus.CounterVec
	adapterErrors              *prometheus.CounterVec
	adapterPanics              *prometheus.CounterVec
	adapterPrices              *prometheus.HistogramVec
	adapterRequests            *prometheus.CounterVec
	adapterRequestsTimer       *prometheus.HistogramVec
	adapterRejectedBids        *prometheus.CounterVec
	adapterGDPRBlockedRequests *prometheus.CounterVec

	// Account Metrics
	accountRequests        *prometheus.CounterVec
	accountDebugRequests   *prometheus.CounterVec
	accountStoredResponses *prometheus.CounterVec

	metricsDisabled config.DisabledMetrics
}

const (
	accountLabel        = "account"
	adapterErrorLabel   = "adapter_error"
	adapterLabel        = "adapter"
	alertLabel          = "alert"
	bidTypeLabel        = "bid_type"
	codeLabel           = "code"
	hasBidsLabel        = "has_bids"
	isAudioLabel        = "audio"
	isBannerLabel       = "banner"
	isNativeLabel       = "native"
	isVideoLabel        = "video"
	markupDeliveryLabel = "delivery"
	moduleLabel         = "module"
	optOutLabel         = "opt_out"
	reasonLabel         = "reason"
	requestStatusLabel  = "request_status"
	requestTypeLabel    = "request_type"
	stageLabel          = "stage"
	statusLabel         = "status"
	successLabel        = "success"
	versionLabel        = "version"
)

const (
	markupDeliveryAdm  = "adm"
	markupDeliveryNurl = "nurl"
)

const (
	sourceLabel   = "source"
	sourceRequest = "request"
)

// NewMetrics initializes a new Prometheus metrics instance.
func NewMetrics(cfg config.PrometheusMetrics, disabledMetrics config.DisabledMetrics) *Metrics {
	standardTimeBuckets := []float64{0.05, 0.1, 0.15, 0.20, 0.25, 0.3, 0.4, 0.5, 0.75, 1}
	cacheWriteTimeBuckets := []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 1}
	moduleTimeBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}
	priceBuckets := []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 2.5, 3, 3.5, 4, 5, 10, 20}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()
	metrics.metricsDisabled = disabledMetrics

	metrics.impressions = newCounter(cfg, metrics.Registry,
		"impressions_requests",
		"Count of requested impressions labeled by type.",
		[]string{isBannerLabel, isVideoLabel, isAudioLabel, isNativeLabel})

	metrics.prebidCacheWriteTimer = newHistogramVec(cfg, metrics.Registry,
		"prebidcache_write_time_seconds",
		"Seconds to write to Prebid Cache labeled by success or failure.",
		[]string{successLabel},
		cacheWriteTimeBuckets)

	metrics.requests = newCounter(cfg, metrics.Registry,
		"requests",
		"Count of total auction requests labeled by type and status.",
		[]string{requestTypeLabel, requestStatusLabel})

	metrics.requestsTimer = newHistogramVec(cfg, metrics.Registry,
		"request_time_seconds",
		"Seconds to resolve successful auction requests labeled by type.",
		[]string{requestTypeLabel},
		standardTimeBuckets)

	metrics.storedResponses = newCounterWithoutLabels(cfg, metrics.Registry,
		"stored_responses",
		"Count of requests answered at least partly from stored responses.")

	metrics.debugRequests = newCounterWithoutLabels(cfg, metrics.Registry,
		"debug_requests",
		"Count of auction requests with debug output enabled.")

	metrics.alerts = newCounter(cfg, metrics.Registry,
		"alerts",
		"Count of request problems the auction recovered from labeled by kind.",
		[]string{alertLabel})

	metrics.privacyCCPA = newCounter(cfg, metrics.Registry,
		"privacy_ccpa",
		"Count of total requests with CCPA information labeled by opt-out.",
		[]string{sourceLabel, optOutLabel})

	metrics.privacyCOPPA = newCounter(cfg, metrics.Registry,
		"privacy_coppa",
		"Count of total requests with COPPA enforced.",
		[]string{sourceLabel})

	metrics.privacyTCF = newCounter(cfg, metrics.Registry,
		"privacy_tcf",
		"Count of TCF versions for requests where GDPR was enforced labeled by version.",
		[]string{versionLabel, sourceLabel})

	metrics.privacyLMT = newCounter(cfg, metrics.Registry,
		"privacy_lmt",
		"Count of total requests with LMT enforced.",
		[]string{sourceLabel})

	metrics.floorsFetchFailures = newCounter(cfg, metrics.Registry,
		"floors_fetch_failures",
		"Count of failed dynamic price floor fetches labeled by failure code.",
		[]string{codeLabel})

	metrics.moduleCalls = newCounter(cfg, metrics.Registry,
		"module_calls",
		"Count of hook executions labeled by module, stage and status.",
		[]string{moduleLabel, stageLabel, statusLabel})

	metrics.moduleDuration = newHistogramVec(cfg, metrics.Registry,
		"module_duration_seconds",
		"Seconds spent in hook executions labeled by module and stage.",
		[]string{moduleLabel, stageLabel},
		moduleTimeBuckets)

	metrics.adapterBids = newCounter(cfg, metrics.Registry,
		"adapter_bids",
		"Count of bids labeled by adapter, bid type and markup delivery type (adm or nurl).",
		[]string{adapterLabel, bidTypeLabel, markupDeliveryLabel})

	metrics.adapterErrors = newCounter(cfg, metrics.Registry,
		"adapter_errors",
		"Count of errors labeled by adapter and error type.",
		[]string{adapterLabel, adapterErrorLabel})

	metrics.adapterPanics = newCounter(cfg, metrics.Registry,
		"adapter_panics",
		"Count of panics labeled by adapter.",
		[]string{adapterLabel})

	metrics.adapterPrices = newHistogramVec(cfg, metrics.Registry,
		"adapter_prices",
		"Monetary value of the bids labeled by adapter.",
		[]string{adapterLabel},
		priceBuckets)

	metrics.adapterRequests = newCounter(cfg, metrics.Registry,
		"adapter_requests",
		"Count of requests labeled by adapter and if they received bids.",
		[]string{adapterLabel, hasBidsLabel})

	metrics.adapterRequestsTimer = newHistogramVec(cfg, metrics.Registry,
		"adapter_request_time_seconds",
		"Seconds to resolve each successful request labeled by adapter.",
		[]string{adapterLabel},
		standardTimeBuckets)

	metrics.adapterRejectedBids = newCounter(cfg, metrics.Registry,
		"adapter_rejected_bids",
		"Count of bids removed from the auction labeled by adapter and reason.",
		[]string{adapterLabel, reasonLabel})

	metrics.adapterGDPRBlockedRequests = newCounter(cfg, metrics.Registry,
		"adapter_gdpr_requests_blocked",
		"Count of requests not sent to an adapter because of privacy enforcement.",
		[]string{adapterLabel})

	metrics.accountRequests = newCounter(cfg, metrics.Registry,
		"account_requests",
		"Count of total requests labeled by account.",
		[]string{accountLabel})

	metrics.accountDebugRequests = newCounter(cfg, metrics.Registry,
		"account_debug_requests",
		"Count of debug enabled requests labeled by account.",
		[]string{accountLabel})

	metrics.accountStoredResponses = newCounter(cfg, metrics.Registry,
		"account_stored_responses",
		"Count of stored response requests labeled by account.",
		[]string{accountLabel})

	preloadLabelValues(&metrics)

	return &metrics
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newCounterWithoutLabels(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Counter {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounter(opts)
	registry.MustRegister(counter)
	return counter
}

func newHistogramVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

// preloadLabelValues registers the known label combinations so series exist before first use.
func preloadLabelValues(m *Metrics) {
	for _, requestType := range requestTypesAsString() {
		for _, status := range requestStatusesAsString() {
			m.requests.With(prometheus.Labels{requestTypeLabel: requestType, requestStatusLabel: status})
		}
		m.requestsTimer.With(prometheus.Labels{requestTypeLabel: requestType})
	}
	for _, success := range boolValuesAsString() {
		m.prebidCacheWriteTimer.With(prometheus.Labels{successLabel: success})
	}
	for _, version := range tcfVersionsAsString() {
		m.privacyTCF.With(prometheus.Labels{versionLabel: version, sourceLabel: sourceRequest})
	}
}

func (m *Metrics) accountEnabled(pubID string) bool {
	return pubID != "" && pubID != metrics.PublisherUnknown && !m.metricsDisabled.AccountAdapterDetails
}

func (m *Metrics) RecordRequest(labels metrics.Labels) {
	m.requests.With(prometheus.Labels{
		requestTypeLabel:   string(labels.RType),
		requestStatusLabel: string(labels.RequestStatus),
	}).Inc()

	if m.accountEnabled(labels.PubID) {
		m.accountRequests.With(prometheus.Labels{
			accountLabel: labels.PubID,
		}).Inc()
	}
}

func (m *Metrics) RecordImps(labels metrics.ImpLabels) {
	m.impressions.With(prometheus.Labels{
		isBannerLabel: strconv.FormatBool(labels.BannerImps),
		isVideoLabel:  strconv.FormatBool(labels.VideoImps),
		isAudioLabel:  strconv.FormatBool(labels.AudioImps),
		isNativeLabel: strconv.FormatBool(labels.NativeImps),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	if labels.RequestStatus == metrics.RequestStatusOK {
		m.requestsTimer.With(prometheus.Labels{
			requestTypeLabel: string(labels.RType),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordAdapterRequest(labels metrics.AdapterLabels) {
	m.adapterRequests.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
		hasBidsLabel: strconv.FormatBool(labels.AdapterBids == metrics.AdapterBidPresent),
	}).Inc()

	for err := range labels.AdapterErrors {
		m.adapterErrors.With(prometheus.Labels{
			adapterLabel:      string(labels.Adapter),
			adapterErrorLabel: string(err),
		}).Inc()
	}
}

func (m *Metrics) RecordAdapterError(adapterName openrtb_ext.BidderName, err metrics.AdapterError) {
	m.adapterErrors.With(prometheus.Labels{
		adapterLabel:      string(adapterName),
		adapterErrorLabel: string(err),
	}).Inc()
}

func (m *Metrics) RecordAdapterPanic(labels metrics.AdapterLabels) {
	m.adapterPanics.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
	}).Inc()
}

func (m *Metrics) RecordAdapterBidReceived(labels metrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	markupDelivery := markupDeliveryNurl
	if hasAdm {
		markupDelivery = markupDeliveryAdm
	}

	m.adapterBids.With(prometheus.Labels{
		adapterLabel:        string(labels.Adapter),
		bidTypeLabel:        string(bidType),
		markupDeliveryLabel: markupDelivery,
	}).Inc()
}

func (m *Metrics) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	m.adapterPrices.With(prometheus.Labels{
		adapterLabel: string(labels.Adapter),
	}).Observe(cpm)
}

func (m *Metrics) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	if len(labels.AdapterErrors) == 0 {
		m.adapterRequestsTimer.With(prometheus.Labels{
			adapterLabel: string(labels.Adapter),
		}).Observe(length.Seconds())
	}
}

func (m *Metrics) RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason metrics.RejectedBidReason) {
	m.adapterRejectedBids.With(prometheus.Labels{
		adapterLabel: string(bidder),
		reasonLabel:  string(reason),
	}).Inc()
}

func (m *Metrics) RecordPrebidCacheRequestTime(success bool, length time.Duration) {
	m.prebidCacheWriteTimer.With(prometheus.Labels{
		successLabel: strconv.FormatBool(success),
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordRequestPrivacy(privacy metrics.PrivacyLabels) {
	if privacy.CCPAProvided {
		m.privacyCCPA.With(prometheus.Labels{
			sourceLabel: sourceRequest,
			optOutLabel: strconv.FormatBool(privacy.CCPAEnforced),
		}).Inc()
	}

	if privacy.COPPAEnforced {
		m.privacyCOPPA.With(prometheus.Labels{
			sourceLabel: sourceRequest,
		}).Inc()
	}

	if privacy.GDPREnforced {
		m.privacyTCF.With(prometheus.Labels{
			versionLabel: string(privacy.GDPRTCFVersion),
			sourceLabel:  sourceRequest,
		}).Inc()
	}

	if privacy.LMTEnforced {
		m.privacyLMT.With(prometheus.Labels{
			sourceLabel: sourceRequest,
		}).Inc()
	}
}

func (m *Metrics) RecordAdapterGDPRRequestBlocked(adapterName openrtb_ext.BidderName) {
	m.adapterGDPRBlockedRequests.With(prometheus.Labels{
		adapterLabel: string(adapterName),
	}).Inc()
}

func (m *Metrics) RecordStoredResponse(pubID string) {
	m.storedResponses.Inc()
	if m.accountEnabled(pubID) {
		m.accountStoredResponses.With(prometheus.Labels{
			accountLabel: pubID,
		}).Inc()
	}
}

func (m *Metrics) RecordDebugRequest(debugEnabled bool, pubID string) {
	if !debugEnabled {
		return
	}
	m.debugRequests.Inc()
	if m.accountEnabled(pubID) {
		m.accountDebugRequests.With(prometheus.Labels{
			accountLabel: pubID,
		}).Inc()
	}
}

func (m *Metrics) RecordAlert(alert metrics.AlertType) {
	m.alerts.With(prometheus.Labels{
		alertLabel: string(alert),
	}).Inc()
}

func (m *Metrics) RecordDynamicFetchFailure(pubID, code string) {
	m.floorsFetchFailures.With(prometheus.Labels{
		codeLabel: code,
	}).Inc()
}

func (m *Metrics) RecordModuleExecution(labels metrics.ModuleLabels, length time.Duration) {
	m.moduleCalls.With(prometheus.Labels{
		moduleLabel: labels.Module,
		stageLabel:  labels.Stage,
		statusLabel: string(labels.Status),
	}).Inc()
	m.moduleDuration.With(prometheus.Labels{
		moduleLabel: labels.Module,
		stageLabel:  labels.Stage,
	}).Observe(length.Seconds())
}
