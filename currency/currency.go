package currency

import (
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// GetAuctionCurrencyRates merges the rates of bidrequest.ext.prebid.currency with the server rates.
// Request rates win whenever both know a conversion.
func GetAuctionCurrencyRates(serverRates Conversions, requestRates *openrtb_ext.ExtRequestCurrency) Conversions {
	if serverRates == nil && requestRates == nil {
		return nil
	}

	if requestRates == nil {
		return serverRates
	}

	if serverRates == nil {
		return NewRates(requestRates.ConversionRates)
	}

	// If bidRequest.ext.currency.usepbsrates is nil, we understand its value as true. It will be false
	// only if it's explicitly set to false
	usePbsRates := requestRates.UsePBSRates == nil || *requestRates.UsePBSRates

	if !usePbsRates {
		return NewRates(requestRates.ConversionRates)
	}

	if len(requestRates.ConversionRates) == 0 {
		return serverRates
	}

	return NewAggregateConversions(NewRates(requestRates.ConversionRates), serverRates)
}
