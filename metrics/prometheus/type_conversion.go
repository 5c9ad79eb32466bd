package prometheusmetrics

import (
	"strconv"

	"github.com/prebid/prebid-auction/metrics"
)

func valuesAsString[T ~string](values []T) []string {
	valuesAsString := make([]string, len(values))
	for i, v := range values {
		valuesAsString[i] = string(v)
	}
	return valuesAsString
}

func boolValuesAsString() []string {
	return []string{
		strconv.FormatBool(true),
		strconv.FormatBool(false),
	}
}

func requestStatusesAsString() []string {
	return valuesAsString(metrics.RequestStatuses())
}

func requestTypesAsString() []string {
	return valuesAsString(metrics.RequestTypes())
}

func tcfVersionsAsString() []string {
	return valuesAsString(metrics.TCFVersions())
}
