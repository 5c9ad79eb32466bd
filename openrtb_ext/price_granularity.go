package openrtb_ext

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// DefaultPriceGranularityPrecision is used when a granularity does not declare one.
	DefaultPriceGranularityPrecision = 2
	// MaxDecimalFigures bounds the precision of a custom granularity.
	MaxDecimalFigures = 15
)

// PriceGranularity defines the allowed values for bidrequest.ext.prebid.targeting.pricegranularity
// or bidrequest.ext.prebid.targeting.mediatypepricegranularity.banner|video|native
type PriceGranularity struct {
	Precision *int               `json:"precision,omitempty"`
	Ranges    []GranularityRange `json:"ranges,omitempty"`
}

// GranularityRange struct defines a range of prices used by PriceGranularity
type GranularityRange struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Increment float64 `json:"increment"`
}

// MediaTypePriceGranularity overrides the request granularity per media type.
type MediaTypePriceGranularity struct {
	Banner *PriceGranularity `json:"banner,omitempty"`
	Video  *PriceGranularity `json:"video,omitempty"`
	Native *PriceGranularity `json:"native,omitempty"`
}

// GetPrecision returns the configured precision or the default of 2.
func (pg PriceGranularity) GetPrecision() int {
	if pg.Precision == nil {
		return DefaultPriceGranularityPrecision
	}
	return *pg.Precision
}

// UnmarshalJSON accepts either one of the named granularities ("low", "med", "medium", "high",
// "auto", "dense") or a custom object with ranges.
func (pg *PriceGranularity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		named, ok := NewPriceGranularityFromLegacyID(name)
		if !ok {
			return fmt.Errorf("invalid price granularity: %s", name)
		}
		*pg = named
		return nil
	}

	type rawGranularity PriceGranularity
	var raw rawGranularity
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	custom := PriceGranularity(raw)
	if err := custom.Validate(); err != nil {
		return err
	}
	*pg = custom
	return nil
}

// Validate checks the ranges of a custom granularity.
func (pg PriceGranularity) Validate() error {
	if pg.Precision != nil && (*pg.Precision < 0 || *pg.Precision > MaxDecimalFigures) {
		return fmt.Errorf("price granularity precision must be between 0 and %d", MaxDecimalFigures)
	}
	if len(pg.Ranges) == 0 {
		return errors.New("price granularity error: empty granularity definition supplied")
	}
	prevMax := 0.0
	for _, r := range pg.Ranges {
		if r.Max <= prevMax {
			return errors.New("price granularity error: range list must be ordered with increasing \"max\"")
		}
		if r.Increment <= 0.0 {
			return errors.New("price granularity error: increment must be a nonzero positive number")
		}
		prevMax = r.Max
	}
	return nil
}

// NewPriceGranularityDefault returns the "medium" granularity.
func NewPriceGranularityDefault() PriceGranularity {
	pg, _ := NewPriceGranularityFromLegacyID("medium")
	return pg
}

// NewPriceGranularityFromLegacyID resolves one of the named granularities.
func NewPriceGranularityFromLegacyID(v string) (PriceGranularity, bool) {
	precision := DefaultPriceGranularityPrecision

	switch v {
	case "low":
		return PriceGranularity{
			Precision: &precision,
			Ranges:    []GranularityRange{{Min: 0, Max: 5, Increment: 0.5}},
		}, true
	case "med", "medium":
		return PriceGranularity{
			Precision: &precision,
			Ranges:    []GranularityRange{{Min: 0, Max: 20, Increment: 0.1}},
		}, true
	case "high":
		return PriceGranularity{
			Precision: &precision,
			Ranges:    []GranularityRange{{Min: 0, Max: 20, Increment: 0.01}},
		}, true
	case "auto":
		return PriceGranularity{
			Precision: &precision,
			Ranges: []GranularityRange{
				{Min: 0, Max: 5, Increment: 0.05},
				{Min: 5, Max: 10, Increment: 0.1},
				{Min: 10, Max: 20, Increment: 0.5},
			},
		}, true
	case "dense":
		return PriceGranularity{
			Precision: &precision,
			Ranges: []GranularityRange{
				{Min: 0, Max: 3, Increment: 0.01},
				{Min: 3, Max: 8, Increment: 0.05},
				{Min: 8, Max: 20, Increment: 0.5},
			},
		}, true
	}

	return PriceGranularity{}, false
}
