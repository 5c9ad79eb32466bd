package pbs

import (
	"testing"

	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
)

func TestGetPriceBucket(t *testing.T) {
	named := func(name string) openrtb_ext.PriceGranularity {
		pg, _ := openrtb_ext.NewPriceGranularityFromLegacyID(name)
		return pg
	}
	precisionZero := 0

	tests := []struct {
		description string
		cpm         float64
		granularity openrtb_ext.PriceGranularity
		expected    string
	}{
		{description: "low", cpm: 1.87, granularity: named("low"), expected: "1.50"},
		{description: "medium", cpm: 1.87, granularity: named("medium"), expected: "1.80"},
		{description: "high", cpm: 1.87, granularity: named("high"), expected: "1.87"},
		{description: "auto", cpm: 1.87, granularity: named("auto"), expected: "1.85"},
		{description: "dense", cpm: 1.87, granularity: named("dense"), expected: "1.87"},
		{description: "low-above-max", cpm: 5.67, granularity: named("low"), expected: "5.00"},
		{description: "medium-above-low-max", cpm: 5.72, granularity: named("medium"), expected: "5.70"},
		{description: "auto-second-range", cpm: 5.72, granularity: named("auto"), expected: "5.70"},
		{description: "dense-third-range", cpm: 9.99, granularity: named("dense"), expected: "9.50"},
		{description: "exact-increment", cpm: 0.3, granularity: named("medium"), expected: "0.30"},
		{description: "below-first-increment", cpm: 0.05, granularity: named("medium"), expected: "0.00"},
		{description: "above-all-ranges", cpm: 25, granularity: named("high"), expected: "20.00"},
		{
			description: "custom-with-offset-min",
			cpm:         7.3,
			granularity: openrtb_ext.PriceGranularity{
				Precision: &precisionZero,
				Ranges: []openrtb_ext.GranularityRange{
					{Min: 0, Max: 5, Increment: 1},
					{Min: 5, Max: 10, Increment: 2},
				},
			},
			expected: "7",
		},
		{description: "negative", cpm: -1, granularity: named("medium"), expected: ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, GetPriceBucket(test.cpm, test.granularity), test.description)
	}
}
