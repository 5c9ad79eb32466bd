package config

import (
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	prometheusmetrics "github.com/prebid/prebid-auction/metrics/prometheus"
	"github.com/prebid/prebid-auction/openrtb_ext"
	gometrics "github.com/rcrowley/go-metrics"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *config.Configuration) *DetailedMetricsEngine {
	// Create a list of metrics engines to use.
	// Capacity of 2, as unlikely to have more than 2 metrics backends, and in the case
	// of 1 we won't use the list so it will be garbage collected.
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	if cfg.Metrics.GoMetrics.Enabled {
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("prebidauction."), cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.GoMetrics)
		glog.Info("go-metrics engine enabled")
	}
	if cfg.Metrics.Prometheus.Port != 0 {
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus, cfg.Metrics.Disabled)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
		glog.Infof("Prometheus metrics engine enabled on port %d", cfg.Metrics.Prometheus.Port)
	}

	// Now return the proper metrics engine
	if len(engineList) > 1 {
		returnEngine.MetricsEngine = &engineList
	} else if len(engineList) == 1 {
		returnEngine.MetricsEngine = engineList[0]
	} else {
		returnEngine.MetricsEngine = &metrics.NilMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MultiMetricsEngine that preserves links to underlying metrics engines.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases The can be useful in transitioning
// an instance from one engine to another, you can run both in parallel to verify stats match up.
type MultiMetricsEngine []metrics.MetricsEngine

// RecordRequest across all engines
func (me *MultiMetricsEngine) RecordRequest(labels metrics.Labels) {
	for _, thisME := range *me {
		thisME.RecordRequest(labels)
	}
}

// RecordImps across all engines
func (me *MultiMetricsEngine) RecordImps(labels metrics.ImpLabels) {
	for _, thisME := range *me {
		thisME.RecordImps(labels)
	}
}

// RecordRequestTime across all engines
func (me *MultiMetricsEngine) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordRequestTime(labels, length)
	}
}

// RecordAdapterRequest across all engines
func (me *MultiMetricsEngine) RecordAdapterRequest(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordAdapterRequest(labels)
	}
}

// RecordAdapterPanic across all engines
func (me *MultiMetricsEngine) RecordAdapterPanic(labels metrics.AdapterLabels) {
	for _, thisME := range *me {
		thisME.RecordAdapterPanic(labels)
	}
}

// RecordAdapterError across all engines
func (me *MultiMetricsEngine) RecordAdapterError(adapterName openrtb_ext.BidderName, err metrics.AdapterError) {
	for _, thisME := range *me {
		thisME.RecordAdapterError(adapterName, err)
	}
}

// RecordAdapterBidReceived across all engines
func (me *MultiMetricsEngine) RecordAdapterBidReceived(labels metrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	for _, thisME := range *me {
		thisME.RecordAdapterBidReceived(labels, bidType, hasAdm)
	}
}

// RecordAdapterPrice across all engines
func (me *MultiMetricsEngine) RecordAdapterPrice(labels metrics.AdapterLabels, cpm float64) {
	for _, thisME := range *me {
		thisME.RecordAdapterPrice(labels, cpm)
	}
}

// RecordAdapterTime across all engines
func (me *MultiMetricsEngine) RecordAdapterTime(labels metrics.AdapterLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAdapterTime(labels, length)
	}
}

// RecordRejectedBids across all engines
func (me *MultiMetricsEngine) RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason metrics.RejectedBidReason) {
	for _, thisME := range *me {
		thisME.RecordRejectedBids(pubID, bidder, reason)
	}
}

// RecordPrebidCacheRequestTime across all engines
func (me *MultiMetricsEngine) RecordPrebidCacheRequestTime(success bool, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordPrebidCacheRequestTime(success, length)
	}
}

// RecordRequestPrivacy across all engines
func (me *MultiMetricsEngine) RecordRequestPrivacy(privacy metrics.PrivacyLabels) {
	for _, thisME := range *me {
		thisME.RecordRequestPrivacy(privacy)
	}
}

// RecordAdapterGDPRRequestBlocked across all engines
func (me *MultiMetricsEngine) RecordAdapterGDPRRequestBlocked(adapter openrtb_ext.BidderName) {
	for _, thisME := range *me {
		thisME.RecordAdapterGDPRRequestBlocked(adapter)
	}
}

// RecordStoredResponse across all engines
func (me *MultiMetricsEngine) RecordStoredResponse(pubID string) {
	for _, thisME := range *me {
		thisME.RecordStoredResponse(pubID)
	}
}

// RecordDebugRequest across all engines
func (me *MultiMetricsEngine) RecordDebugRequest(debugEnabled bool, pubID string) {
	for _, thisME := range *me {
		thisME.RecordDebugRequest(debugEnabled, pubID)
	}
}

// RecordAlert across all engines
func (me *MultiMetricsEngine) RecordAlert(alert metrics.AlertType) {
	for _, thisME := range *me {
		thisME.RecordAlert(alert)
	}
}

// RecordDynamicFetchFailure across all engines
func (me *MultiMetricsEngine) RecordDynamicFetchFailure(pubID, code string) {
	for _, thisME := range *me {
		thisME.RecordDynamicFetchFailure(pubID, code)
	}
}

// RecordModuleExecution across all engines
func (me *MultiMetricsEngine) RecordModuleExecution(labels metrics.ModuleLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordModuleExecution(labels, length)
	}
}
