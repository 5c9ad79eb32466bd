package metrics

import (
	"time"

	"github.com/prebid/prebid-auction/openrtb_ext"
)

// Labels defines the labels that can be attached to the metrics.
type Labels struct {
	Source        DemandSource
	RType         RequestType
	PubID         string // exchange specific ID, so we cannot compile in values
	RequestStatus RequestStatus
}

// AdapterLabels defines the labels that can be attached to the adapter metrics.
type AdapterLabels struct {
	Source        DemandSource
	RType         RequestType
	Adapter       openrtb_ext.BidderName
	PubID         string // exchange specific ID, so we cannot compile in values
	AdapterBids   AdapterBid
	AdapterErrors map[AdapterError]struct{}
}

// ImpLabels defines metric labels describing the impression type.
type ImpLabels struct {
	BannerImps bool
	VideoImps  bool
	AudioImps  bool
	NativeImps bool
}

// PrivacyLabels defines metrics describing the result of privacy enforcement.
type PrivacyLabels struct {
	CCPAEnforced   bool
	CCPAProvided   bool
	COPPAEnforced  bool
	GDPREnforced   bool
	GDPRTCFVersion TCFVersionValue
	LMTEnforced    bool
}

// ModuleLabels describes one hook execution.
type ModuleLabels struct {
	Module    string
	Stage     string
	AccountID string
	Status    ModuleStatus
}

// Label typecasting. See below the type definitions for possible values

// DemandSource : Demand source enumeration
type DemandSource string

// RequestType : Request type enumeration
type RequestType string

// RequestStatus : The request return status
type RequestStatus string

// AdapterBid : Whether or not the adapter returned bids
type AdapterBid string

// AdapterError : Errors which may have occurred during the adapter's execution
type AdapterError string

// RejectedBidReason : Why a returned bid was removed from the auction
type RejectedBidReason string

// AlertType : Kind of request problem the auction recovered from
type AlertType string

// ModuleStatus : Outcome of a hook execution
type ModuleStatus string

// PublisherUnknown : Default value for Labels.PubID
const PublisherUnknown = "unknown"

// The demand sources
const (
	DemandWeb     DemandSource = "web"
	DemandApp     DemandSource = "app"
	DemandDOOH    DemandSource = "dooh"
	DemandUnknown DemandSource = "unknown"
)

func DemandTypes() []DemandSource {
	return []DemandSource{
		DemandWeb,
		DemandApp,
		DemandDOOH,
		DemandUnknown,
	}
}

// The request types (endpoints)
const (
	ReqTypeORTB2Web  RequestType = "openrtb2-web"
	ReqTypeORTB2App  RequestType = "openrtb2-app"
	ReqTypeORTB2DOOH RequestType = "openrtb2-dooh"
)

func RequestTypes() []RequestType {
	return []RequestType{
		ReqTypeORTB2Web,
		ReqTypeORTB2App,
		ReqTypeORTB2DOOH,
	}
}

// Request/return status
const (
	RequestStatusOK              RequestStatus = "ok"
	RequestStatusBadInput        RequestStatus = "badinput"
	RequestStatusErr             RequestStatus = "err"
	RequestStatusNetworkErr      RequestStatus = "networkerr"
	RequestStatusRejected        RequestStatus = "rejected"
	RequestStatusAccountDisabled RequestStatus = "accountdisabled"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
		RequestStatusNetworkErr,
		RequestStatusRejected,
		RequestStatusAccountDisabled,
	}
}

// Adapter bid response status.
const (
	AdapterBidPresent AdapterBid = "bid"
	AdapterBidNone    AdapterBid = "nobid"
)

func AdapterBids() []AdapterBid {
	return []AdapterBid{
		AdapterBidPresent,
		AdapterBidNone,
	}
}

// Adapter execution status
const (
	AdapterErrorBadInput            AdapterError = "badinput"
	AdapterErrorBadServerResponse   AdapterError = "badserverresponse"
	AdapterErrorTimeout             AdapterError = "timeout"
	AdapterErrorFailedToRequestBids AdapterError = "failedtorequestbid"
	AdapterErrorValidation          AdapterError = "validation"
	AdapterErrorUnknown             AdapterError = "unknown_error"
)

func AdapterErrors() []AdapterError {
	return []AdapterError{
		AdapterErrorBadInput,
		AdapterErrorBadServerResponse,
		AdapterErrorTimeout,
		AdapterErrorFailedToRequestBids,
		AdapterErrorValidation,
		AdapterErrorUnknown,
	}
}

const (
	RejectedBidFloors   RejectedBidReason = "floors"
	RejectedBidDSA      RejectedBidReason = "dsa"
	RejectedBidCurrency RejectedBidReason = "currency"
	RejectedBidInvalid  RejectedBidReason = "invalid"
)

func RejectedBidReasons() []RejectedBidReason {
	return []RejectedBidReason{
		RejectedBidFloors,
		RejectedBidDSA,
		RejectedBidCurrency,
		RejectedBidInvalid,
	}
}

const (
	// AlertGeneral is bumped when conflicting site, app and dooh objects were reduced to one
	AlertGeneral AlertType = "general"
)

const (
	ModuleStatusSuccess  ModuleStatus = "success"
	ModuleStatusNoop     ModuleStatus = "noop"
	ModuleStatusRejected ModuleStatus = "rejected"
	ModuleStatusFailed   ModuleStatus = "failed"
	ModuleStatusTimeout  ModuleStatus = "timeout"
)

func ModuleStatuses() []ModuleStatus {
	return []ModuleStatus{
		ModuleStatusSuccess,
		ModuleStatusNoop,
		ModuleStatusRejected,
		ModuleStatusFailed,
		ModuleStatusTimeout,
	}
}

// TCFVersionValue : The possible values for TCF versions
type TCFVersionValue string

const (
	TCFVersionErr TCFVersionValue = "err"
	TCFVersionV2  TCFVersionValue = "v2"
)

// TCFVersions returns the possible values for the TCF version
func TCFVersions() []TCFVersionValue {
	return []TCFVersionValue{
		TCFVersionErr,
		TCFVersionV2,
	}
}

// TCFVersionToValue takes an integer TCF version and returns the corresponding TCFVersionValue
func TCFVersionToValue(version int) TCFVersionValue {
	if version == 2 {
		return TCFVersionV2
	}
	return TCFVersionErr
}

// MetricsEngine is a generic interface to record auction metrics into the desired backend.
// RecordRequest, RecordImps and RecordRequestTime fire once per incoming request. The adapter
// metrics fire once per bidder called, so several times per incoming request.
//
// Implementations must be safe for concurrent use.
type MetricsEngine interface {
	RecordRequest(labels Labels)
	RecordImps(labels ImpLabels)
	RecordRequestTime(labels Labels, length time.Duration)
	RecordAdapterRequest(labels AdapterLabels)
	RecordAdapterPanic(labels AdapterLabels)
	// RecordAdapterError counts one error of the adapter outside of its request, such as a dropped bid.
	RecordAdapterError(adapterName openrtb_ext.BidderName, err AdapterError)
	// This records whether or not a bid of a particular type uses `adm` or `nurl`.
	RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool)
	RecordAdapterPrice(labels AdapterLabels, cpm float64)
	RecordAdapterTime(labels AdapterLabels, length time.Duration)
	RecordRejectedBids(pubID string, bidder openrtb_ext.BidderName, reason RejectedBidReason)
	RecordPrebidCacheRequestTime(success bool, length time.Duration)
	RecordRequestPrivacy(privacy PrivacyLabels)
	RecordAdapterGDPRRequestBlocked(adapterName openrtb_ext.BidderName)
	RecordStoredResponse(pubID string)
	RecordDebugRequest(debugEnabled bool, pubID string)
	RecordAlert(alert AlertType)
	RecordDynamicFetchFailure(pubID, code string)
	RecordModuleExecution(labels ModuleLabels, length time.Duration)
}
