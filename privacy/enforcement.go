package privacy

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// EnforcementAction is the TCF decision for one bidder.
type EnforcementAction struct {
	BlockBidderRequest bool
	RemoveUserIDs      bool
	MaskGeo            bool
	MaskDeviceIP       bool
	MaskDeviceInfo     bool
}

// AllowAll is the action of a bidder with full consent.
func AllowAll() EnforcementAction {
	return EnforcementAction{}
}

// Enforcement represents the privacy policies to enforce for one bidder request.
type Enforcement struct {
	COPPA bool
	CCPA  bool
	TCF   EnforcementAction

	// Activities denied by the account rules.
	UFPD             bool
	PreciseGeo       bool
	UniqueRequestIDs bool
}

// Any returns true if at least one privacy policy requires enforcement.
func (e Enforcement) Any() bool {
	return e.COPPA || e.CCPA || e.TCF != AllowAll() || e.UFPD || e.PreciseGeo || e.UniqueRequestIDs
}

// Apply returns the user and device to send to the bidder. Inputs are never modified; when
// nothing is enforced they are returned as is.
func (e Enforcement) Apply(user *openrtb2.User, device *openrtb2.Device) (*openrtb2.User, *openrtb2.Device) {
	if !e.Any() {
		return user, device
	}

	geo := e.getGeoScrubStrategy()
	scrubbedDevice := ScrubDevice(device, e.getDeviceIDScrubStrategy(), e.getIPv4ScrubStrategy(), e.getIPv6ScrubStrategy(), geo)
	scrubbedUser := ScrubUser(user, e.getUserScrubStrategy(), geo)
	return scrubbedUser, scrubbedDevice
}

func (e Enforcement) getDeviceIDScrubStrategy() ScrubStrategyDevice {
	if e.COPPA || e.CCPA || e.TCF.MaskDeviceInfo || e.UFPD || e.UniqueRequestIDs {
		return ScrubStrategyDeviceIDs
	}

	return ScrubStrategyDeviceNone
}

func (e Enforcement) getIPv4ScrubStrategy() ScrubStrategyIPV4 {
	if e.COPPA || e.CCPA || e.TCF.MaskDeviceIP || e.PreciseGeo {
		return ScrubStrategyIPV4Lowest8
	}

	return ScrubStrategyIPV4None
}

func (e Enforcement) getIPv6ScrubStrategy() ScrubStrategyIPV6 {
	if e.COPPA {
		return ScrubStrategyIPV6Lowest32
	}

	if e.CCPA || e.TCF.MaskDeviceIP || e.PreciseGeo {
		return ScrubStrategyIPV6Lowest16
	}

	return ScrubStrategyIPV6None
}

func (e Enforcement) getGeoScrubStrategy() ScrubStrategyGeo {
	if e.COPPA {
		return ScrubStrategyGeoFull
	}

	if e.CCPA || e.TCF.MaskGeo || e.PreciseGeo {
		return ScrubStrategyGeoReducedPrecision
	}

	return ScrubStrategyGeoNone
}

func (e Enforcement) getUserScrubStrategy() ScrubStrategyUser {
	if e.COPPA || e.UFPD {
		return ScrubStrategyUserFull
	}

	if e.CCPA || e.TCF.RemoveUserIDs || e.UniqueRequestIDs {
		return ScrubStrategyUserIDs
	}

	return ScrubStrategyUserNone
}
