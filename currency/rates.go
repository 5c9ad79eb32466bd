package currency

import (
	"errors"
	"fmt"

	"golang.org/x/text/currency"
)

// ConversionNotFoundError is returned by Conversions.GetRate when neither the rate between the two
// currencies nor its reciprocal is known.
type ConversionNotFoundError struct {
	FromCur, ToCur string
}

func (err ConversionNotFoundError) Error() string {
	return fmt.Sprintf("Currency conversion rate not found: '%s' => '%s'", err.FromCur, err.ToCur)
}

// Rates holds a from -> to -> rate table in the format of the Prebid currency file.
type Rates struct {
	Conversions map[string]map[string]float64 `json:"conversions"`
}

func NewRates(conversions map[string]map[string]float64) *Rates {
	return &Rates{
		Conversions: conversions,
	}
}

// findIntermediateConversionRate looks for a base currency which both from and to are quoted in.
func findIntermediateConversionRate(r *Rates, from, to currency.Unit) (float64, error) {
	for _, conversions := range r.Conversions {
		toRate, hasToRate := conversions[to.String()]
		fromRate, hasFromRate := conversions[from.String()]

		if hasToRate && hasFromRate {
			return toRate / fromRate, nil
		}
	}

	return 0, ConversionNotFoundError{FromCur: from.String(), ToCur: to.String()}
}

// GetRate returns the rate from -> to. Lookup order is the direct entry, the reciprocal entry and
// finally a shared base currency. Codes must be ISO 4217.
func (r *Rates) GetRate(from, to string) (float64, error) {
	fromUnit, err := currency.ParseISO(from)
	if err != nil {
		return 0, err
	}
	toUnit, err := currency.ParseISO(to)
	if err != nil {
		return 0, err
	}
	if fromUnit.String() == toUnit.String() {
		return 1, nil
	}
	if r.Conversions == nil {
		return 0, errors.New("rates are nil")
	}
	if conversion, present := r.Conversions[fromUnit.String()][toUnit.String()]; present {
		return conversion, nil
	}
	if conversion, present := r.Conversions[toUnit.String()][fromUnit.String()]; present {
		return 1 / conversion, nil
	}
	return findIntermediateConversionRate(r, fromUnit, toUnit)
}

func (r *Rates) GetRates() *map[string]map[string]float64 {
	return &r.Conversions
}

// ConstantRates only knows the identity conversion. It is used when the host configures no rates.
type ConstantRates struct{}

func NewConstantRates() *ConstantRates {
	return &ConstantRates{}
}

func (r *ConstantRates) GetRate(from string, to string) (float64, error) {
	fromUnit, err := currency.ParseISO(from)
	if err != nil {
		return 0, err
	}
	toUnit, err := currency.ParseISO(to)
	if err != nil {
		return 0, err
	}

	if fromUnit.String() != toUnit.String() {
		return 0, ConversionNotFoundError{FromCur: fromUnit.String(), ToCur: toUnit.String()}
	}

	return 1, nil
}

func (r *ConstantRates) GetRates() *map[string]map[string]float64 {
	return nil
}

// AggregateConversions asks the request supplied rates first and falls back to the server rates
// only when the request does not know the pair.
type AggregateConversions struct {
	customRates, serverRates Conversions
}

// NewAggregateConversions expects both customRates and serverRates to not be nil
func NewAggregateConversions(customRates, serverRates Conversions) *AggregateConversions {
	return &AggregateConversions{
		customRates: customRates,
		serverRates: serverRates,
	}
}

func (re *AggregateConversions) GetRate(from string, to string) (float64, error) {
	rate, err := re.customRates.GetRate(from, to)
	if err == nil {
		return rate, nil
	} else if _, isMissingRateErr := err.(ConversionNotFoundError); !isMissingRateErr {
		return 0, err
	}

	return re.serverRates.GetRate(from, to)
}

// GetRates is not meaningful for a merged view.
func (re *AggregateConversions) GetRates() *map[string]map[string]float64 {
	return nil
}
