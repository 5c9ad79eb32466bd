package errortypes

// Numeric codes for errors surfaced in the response ext.
const (
	UnknownErrorCode = 999
	TimeoutErrorCode = iota
	BadInputErrorCode
	BadServerResponseErrorCode
	FailedToRequestBidsErrorCode
	BidderTemporarilyDisabledErrorCode
	InvalidBidErrorCode
	NoConversionRateErrorCode
	ModuleRejectionErrorCode
	FailedToUnmarshalErrorCode
	InvalidCategoryMappingErrorCode
	PrivacyEnforcementErrorCode
	StoredResponseErrorCode
	AcctRequiredErrorCode
	AccountDisabledErrorCode
	MalformedAcctErrorCode
)

// Numeric codes for warnings surfaced in the response ext.
const (
	UnknownWarningCode              = 10999
	InvalidBidderWarningCode        = iota + 10000
	DeprecatedBidderWarningCode
	AccountLevelDebugDisabledWarningCode
	BidderLevelDebugDisabledWarningCode
	MultipleCurrencyWarningCode
	MultiBidWarningCode
	AdServerTargetingWarningCode
	FloorBidRejectionWarningCode
	InvalidBidResponseDSAWarningCode
	CategoryMappingWarningCode
	DealTierWarningCode
	StoredVideoWarningCode
	MediaTypeWarningCode
	ActivityRestrictedWarningCode
)

// Coder provides an error or warning code with severity.
type Coder interface {
	Code() int
	Severity() Severity
}

// ReadCode returns the error or warning code, or UnknownErrorCode if unavailable.
func ReadCode(err error) int {
	if e, ok := err.(Coder); ok {
		return e.Code()
	}
	return UnknownErrorCode
}
