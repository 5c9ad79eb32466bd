package privacy

// Activity defines auction actions which can be controlled directly by the publisher through
// account rules.
type Activity int

const (
	ActivityFetchBids Activity = iota + 1
	ActivityTransmitUserFPD
	ActivityTransmitPreciseGeo
	ActivityTransmitUniqueRequestIDs
	ActivityTransmitTIDs
)

func (a Activity) String() string {
	switch a {
	case ActivityFetchBids:
		return "fetchBids"
	case ActivityTransmitUserFPD:
		return "transmitUfpd"
	case ActivityTransmitPreciseGeo:
		return "transmitPreciseGeo"
	case ActivityTransmitUniqueRequestIDs:
		return "transmitUniqueRequestIds"
	case ActivityTransmitTIDs:
		return "transmitTid"
	}

	return ""
}
