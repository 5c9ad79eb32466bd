package errortypes

// Timeout should be used to flag that a bidder failed to return a response because its
// timeout expired before a result was received.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

func (err *Timeout) Severity() Severity {
	return SeverityFatal
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the external request).
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

func (err *BadInput) Severity() Severity {
	return SeverityFatal
}

// AcctRequired should be used when the server is configured to require an account id but none was
// found in the request.
type AcctRequired struct {
	Message string
}

func (err *AcctRequired) Error() string {
	return err.Message
}

func (err *AcctRequired) Code() int {
	return AcctRequiredErrorCode
}

func (err *AcctRequired) Severity() Severity {
	return SeverityFatal
}

// AccountDisabled should be used when a request names an account which has been disabled by the host.
type AccountDisabled struct {
	Message string
}

func (err *AccountDisabled) Error() string {
	return err.Message
}

func (err *AccountDisabled) Code() int {
	return AccountDisabledErrorCode
}

func (err *AccountDisabled) Severity() Severity {
	return SeverityFatal
}

// MalformedAcct should be used when the stored account config cannot be read.
type MalformedAcct struct {
	Message string
}

func (err *MalformedAcct) Error() string {
	return err.Message
}

func (err *MalformedAcct) Code() int {
	return MalformedAcctErrorCode
}

func (err *MalformedAcct) Severity() Severity {
	return SeverityFatal
}

// BadServerResponse should be used when returning errors which are caused by bad/unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

func (err *BadServerResponse) Severity() Severity {
	return SeverityFatal
}

// FailedToRequestBids covers the case where a bidder produced no outbound requests and no errors
// explaining why.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

func (err *FailedToRequestBids) Severity() Severity {
	return SeverityFatal
}

// BidderTemporarilyDisabled is used when a bidder is configured but switched off. The auction
// continues without it.
type BidderTemporarilyDisabled struct {
	Message string
}

func (err *BidderTemporarilyDisabled) Error() string {
	return err.Message
}

func (err *BidderTemporarilyDisabled) Code() int {
	return BidderTemporarilyDisabledErrorCode
}

func (err *BidderTemporarilyDisabled) Severity() Severity {
	return SeverityWarning
}

// InvalidBid is returned when a bid fails response validation and was dropped.
type InvalidBid struct {
	Message string
}

func (err *InvalidBid) Error() string {
	return err.Message
}

func (err *InvalidBid) Code() int {
	return InvalidBidErrorCode
}

func (err *InvalidBid) Severity() Severity {
	return SeverityFatal
}

// NoConversionRate is returned when no rate is known between two currencies.
type NoConversionRate struct {
	Message string
}

func (err *NoConversionRate) Error() string {
	return err.Message
}

func (err *NoConversionRate) Code() int {
	return NoConversionRateErrorCode
}

func (err *NoConversionRate) Severity() Severity {
	return SeverityFatal
}

// InvalidCategoryMapping is returned when the server or request is misconfigured for
// brand category translation. It aborts the auction.
type InvalidCategoryMapping struct {
	Message string
}

func (err *InvalidCategoryMapping) Error() string {
	return err.Message
}

func (err *InvalidCategoryMapping) Code() int {
	return InvalidCategoryMappingErrorCode
}

func (err *InvalidCategoryMapping) Severity() Severity {
	return SeverityFatal
}

// FailedToUnmarshal should be used to represent errors that occur when unmarshaling raw json.
type FailedToUnmarshal struct {
	Message string
}

func (err *FailedToUnmarshal) Error() string {
	return err.Message
}

func (err *FailedToUnmarshal) Code() int {
	return FailedToUnmarshalErrorCode
}

func (err *FailedToUnmarshal) Severity() Severity {
	return SeverityFatal
}

// Warning is a generic non-fatal error. Throughout the codebase, an error can
// only be a warning if it's of the type defined below
type Warning struct {
	Message     string
	WarningCode int
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return err.WarningCode
}

func (err *Warning) Severity() Severity {
	return SeverityWarning
}

// DebugWarning is a warning which is only surfaced when debug is enabled for the request.
type DebugWarning struct {
	Message     string
	WarningCode int
}

func (err *DebugWarning) Error() string {
	return err.Message
}

func (err *DebugWarning) Code() int {
	return err.WarningCode
}

func (err *DebugWarning) Severity() Severity {
	return SeverityWarning
}

func (err *DebugWarning) Scope() Scope {
	return ScopeDebug
}
