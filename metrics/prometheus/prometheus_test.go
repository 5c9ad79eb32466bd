package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func createMetricsForTesting() *Metrics {
	return NewMetrics(config.PrometheusMetrics{
		Port:      8080,
		Namespace: "prebid",
		Subsystem: "server",
	}, config.DisabledMetrics{})
}

func TestMetricCountGatekeeping(t *testing.T) {
	m := createMetricsForTesting()

	metricFamilies, err := m.Registry.Gather()
	assert.NoError(t, err, "gather metics")

	// Preloaded label combinations are exported before any value is recorded.
	assert.NotEmpty(t, metricFamilies)
	for _, family := range metricFamilies {
		assert.Contains(t, family.GetName(), "prebid_server_")
	}
}

func TestRecordRequest(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRequest(metrics.Labels{
		RType:         metrics.ReqTypeORTB2Web,
		RequestStatus: metrics.RequestStatusOK,
		PubID:         "acct",
	})
	m.RecordRequest(metrics.Labels{
		RType:         metrics.ReqTypeORTB2App,
		RequestStatus: metrics.RequestStatusBadInput,
		PubID:         metrics.PublisherUnknown,
	})

	assertCounterVecValue(t, "web ok", m.requests, 1, prometheus.Labels{requestTypeLabel: string(metrics.ReqTypeORTB2Web), requestStatusLabel: string(metrics.RequestStatusOK)})
	assertCounterVecValue(t, "app badinput", m.requests, 1, prometheus.Labels{requestTypeLabel: string(metrics.ReqTypeORTB2App), requestStatusLabel: string(metrics.RequestStatusBadInput)})
	assertCounterVecValue(t, "account", m.accountRequests, 1, prometheus.Labels{accountLabel: "acct"})
	assertCounterVecValue(t, "unknown account", m.accountRequests, 0, prometheus.Labels{accountLabel: metrics.PublisherUnknown})
}

func TestRecordAccountMetricsDisabled(t *testing.T) {
	m := NewMetrics(config.PrometheusMetrics{}, config.DisabledMetrics{AccountAdapterDetails: true})

	m.RecordRequest(metrics.Labels{RType: metrics.ReqTypeORTB2Web, RequestStatus: metrics.RequestStatusOK, PubID: "acct"})
	m.RecordDebugRequest(true, "acct")

	assertCounterVecValue(t, "account requests", m.accountRequests, 0, prometheus.Labels{accountLabel: "acct"})
	assertCounterVecValue(t, "account debug", m.accountDebugRequests, 0, prometheus.Labels{accountLabel: "acct"})
	assertCounterValue(t, "debug", m.debugRequests, 1)
}

func TestRecordAdapterRequest(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordAdapterRequest(metrics.AdapterLabels{
		Adapter:     "appnexus",
		AdapterBids: metrics.AdapterBidPresent,
		AdapterErrors: map[metrics.AdapterError]struct{}{
			metrics.AdapterErrorTimeout: {},
		},
	})

	assertCounterVecValue(t, "requests", m.adapterRequests, 1, prometheus.Labels{adapterLabel: "appnexus", hasBidsLabel: "true"})
	assertCounterVecValue(t, "errors", m.adapterErrors, 1, prometheus.Labels{adapterLabel: "appnexus", adapterErrorLabel: string(metrics.AdapterErrorTimeout)})
}

func TestRecordAdapterBidReceived(t *testing.T) {
	m := createMetricsForTesting()
	labels := metrics.AdapterLabels{Adapter: "appnexus"}

	m.RecordAdapterBidReceived(labels, openrtb_ext.BidTypeBanner, true)
	m.RecordAdapterBidReceived(labels, openrtb_ext.BidTypeVideo, false)

	assertCounterVecValue(t, "adm", m.adapterBids, 1, prometheus.Labels{adapterLabel: "appnexus", bidTypeLabel: "banner", markupDeliveryLabel: markupDeliveryAdm})
	assertCounterVecValue(t, "nurl", m.adapterBids, 1, prometheus.Labels{adapterLabel: "appnexus", bidTypeLabel: "video", markupDeliveryLabel: markupDeliveryNurl})
}

func TestRecordAdapterTime(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordAdapterTime(metrics.AdapterLabels{Adapter: "appnexus"}, 100*time.Millisecond)
	m.RecordAdapterTime(metrics.AdapterLabels{Adapter: "appnexus", AdapterErrors: map[metrics.AdapterError]struct{}{metrics.AdapterErrorTimeout: {}}}, time.Second)

	result := getHistogramFromHistogramVec(m.adapterRequestsTimer, adapterLabel, "appnexus")
	assert.Equal(t, uint64(1), result.GetSampleCount())
	assert.Equal(t, 0.1, result.GetSampleSum())
}

func TestRecordRejectedBids(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRejectedBids("acct", "appnexus", metrics.RejectedBidFloors)
	m.RecordRejectedBids("acct", "appnexus", metrics.RejectedBidFloors)
	m.RecordRejectedBids("acct", "appnexus", metrics.RejectedBidDSA)

	assertCounterVecValue(t, "floors", m.adapterRejectedBids, 2, prometheus.Labels{adapterLabel: "appnexus", reasonLabel: "floors"})
	assertCounterVecValue(t, "dsa", m.adapterRejectedBids, 1, prometheus.Labels{adapterLabel: "appnexus", reasonLabel: "dsa"})
}

func TestRecordRequestPrivacy(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRequestPrivacy(metrics.PrivacyLabels{
		CCPAProvided:   true,
		CCPAEnforced:   true,
		COPPAEnforced:  true,
		GDPREnforced:   true,
		GDPRTCFVersion: metrics.TCFVersionV2,
	})
	m.RecordRequestPrivacy(metrics.PrivacyLabels{CCPAProvided: true})

	assertCounterVecValue(t, "ccpa opt out", m.privacyCCPA, 1, prometheus.Labels{sourceLabel: sourceRequest, optOutLabel: "true"})
	assertCounterVecValue(t, "ccpa no opt out", m.privacyCCPA, 1, prometheus.Labels{sourceLabel: sourceRequest, optOutLabel: "false"})
	assertCounterVecValue(t, "coppa", m.privacyCOPPA, 1, prometheus.Labels{sourceLabel: sourceRequest})
	assertCounterVecValue(t, "tcf", m.privacyTCF, 1, prometheus.Labels{sourceLabel: sourceRequest, versionLabel: "v2"})
	assertCounterVecValue(t, "lmt", m.privacyLMT, 0, prometheus.Labels{sourceLabel: sourceRequest})
}

func TestRecordPrebidCacheRequestTime(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordPrebidCacheRequestTime(true, 5*time.Millisecond)

	result := getHistogramFromHistogramVec(m.prebidCacheWriteTimer, successLabel, "true")
	assert.Equal(t, uint64(1), result.GetSampleCount())
	assert.Equal(t, 0.005, result.GetSampleSum())
}

func TestRecordAlertAndFetchFailure(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordAlert(metrics.AlertGeneral)
	m.RecordDynamicFetchFailure("acct", "1")

	assertCounterVecValue(t, "alert", m.alerts, 1, prometheus.Labels{alertLabel: "general"})
	assertCounterVecValue(t, "fetch failure", m.floorsFetchFailures, 1, prometheus.Labels{codeLabel: "1"})
}

func TestRecordModuleExecution(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordModuleExecution(metrics.ModuleLabels{Module: "acme", Stage: "bidder_request", Status: metrics.ModuleStatusRejected}, 2*time.Millisecond)

	assertCounterVecValue(t, "calls", m.moduleCalls, 1, prometheus.Labels{moduleLabel: "acme", stageLabel: "bidder_request", statusLabel: "rejected"})
	result := getHistogramFromHistogramVecByLabels(m.moduleDuration, prometheus.Labels{moduleLabel: "acme", stageLabel: "bidder_request"})
	assert.Equal(t, uint64(1), result.GetSampleCount())
}

func assertCounterValue(t *testing.T, description string, counter prometheus.Counter, expected float64) {
	m := dto.Metric{}
	counter.Write(&m)
	assert.Equal(t, expected, m.GetCounter().GetValue(), description)
}

func assertCounterVecValue(t *testing.T, description string, counterVec *prometheus.CounterVec, expected float64, labels prometheus.Labels) {
	counter := counterVec.With(labels)
	assertCounterValue(t, description, counter, expected)
}

func getHistogramFromHistogramVec(histogram *prometheus.HistogramVec, labelKey, labelValue string) dto.Histogram {
	return getHistogramFromHistogramVecByLabels(histogram, prometheus.Labels{labelKey: labelValue})
}

func getHistogramFromHistogramVecByLabels(histogram *prometheus.HistogramVec, labels prometheus.Labels) dto.Histogram {
	var result dto.Histogram
	processMetrics(histogram, func(m dto.Metric) {
		for _, label := range m.GetLabel() {
			if value, ok := labels[label.GetName()]; !ok || value != label.GetValue() {
				return
			}
		}
		result = *m.GetHistogram()
	})
	return result
}

func processMetrics(collector prometheus.Collector, handler func(m dto.Metric)) {
	collectorChan := make(chan prometheus.Metric)
	go func() {
		collector.Collect(collectorChan)
		close(collectorChan)
	}()

	for metric := range collectorChan {
		dtoMetric := dto.Metric{}
		metric.Write(&dtoMetric)
		handler(dtoMetric)
	}
}
