package currency

import (
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// Converter converts bid prices into the auction currency.
type Converter interface {
	ConvertCurrency(price float64, bidRequest *openrtb2.BidRequest, fromCur, toCur string) (float64, error)
}

// RateConverter converts with the server rates, overridden by any rates sent in
// bidrequest.ext.prebid.currency.
type RateConverter struct {
	serverRates Conversions
}

func NewRateConverter(serverRates Conversions) *RateConverter {
	if serverRates == nil {
		serverRates = NewConstantRates()
	}
	return &RateConverter{serverRates: serverRates}
}

// ConvertCurrency returns price unchanged when both currencies are the same.
func (c *RateConverter) ConvertCurrency(price float64, bidRequest *openrtb2.BidRequest, fromCur, toCur string) (float64, error) {
	if strings.EqualFold(fromCur, toCur) {
		return price, nil
	}

	conversions := GetAuctionCurrencyRates(c.serverRates, requestRates(bidRequest))
	rate, err := conversions.GetRate(fromCur, toCur)
	if err != nil {
		return 0, err
	}
	return price * rate, nil
}

func requestRates(bidRequest *openrtb2.BidRequest) *openrtb_ext.ExtRequestCurrency {
	if bidRequest == nil || len(bidRequest.Ext) == 0 {
		return nil
	}
	raw, dataType, _, err := jsonparser.Get(bidRequest.Ext, "prebid", "currency")
	if err != nil || dataType != jsonparser.Object {
		return nil
	}
	var rates openrtb_ext.ExtRequestCurrency
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil
	}
	return &rates
}
