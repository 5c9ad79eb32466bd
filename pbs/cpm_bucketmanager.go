package pbs

import (
	"math"
	"strconv"

	"github.com/prebid/prebid-auction/openrtb_ext"
)

// quotients closer than this to an integer are snapped to it before flooring, so that
// 0.3/0.1 lands in bucket 3 and not 2.
const bucketEpsilon = 1e-9

// GetPriceBucket returns the hb_pb value of the cpm under the granularity. Prices above the highest
// range are capped at its max. Prices outside every range (e.g. negative) produce an empty string.
func GetPriceBucket(cpm float64, granularity openrtb_ext.PriceGranularity) string {
	precision := granularity.GetPrecision()

	bucketMax := 0.0
	var bucket *openrtb_ext.GranularityRange
	for i := range granularity.Ranges {
		currentRange := &granularity.Ranges[i]
		if currentRange.Max > bucketMax {
			bucketMax = currentRange.Max
		}
		if bucket == nil && cpm >= currentRange.Min && cpm <= currentRange.Max {
			bucket = currentRange
		}
	}

	if len(granularity.Ranges) > 0 && cpm > bucketMax {
		return strconv.FormatFloat(bucketMax, 'f', precision, 64)
	}
	if bucket == nil {
		return ""
	}
	return getCpmTarget(cpm, bucket.Min, bucket.Increment, precision)
}

func getCpmTarget(cpm, bucketMin, increment float64, precision int) string {
	steps := (cpm - bucketMin) / increment
	if nearest := math.Round(steps); math.Abs(steps-nearest) < bucketEpsilon {
		steps = nearest
	}
	roundedCPM := math.Floor(steps)*increment + bucketMin
	return strconv.FormatFloat(roundedCPM, 'f', precision, 64)
}
