package privacy

import (
	"math"
	"net"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/ortb"
	"github.com/prebid/prebid-auction/util/iputil"
	"github.com/prebid/prebid-auction/util/jsonutil"
	"github.com/prebid/prebid-auction/util/ptrutil"
)

// ScrubStrategyIPV4 defines the approach to scrub PII from an IPV4 address.
type ScrubStrategyIPV4 int

const (
	ScrubStrategyIPV4None ScrubStrategyIPV4 = iota
	// ScrubStrategyIPV4Lowest8 zeroes the last octet.
	ScrubStrategyIPV4Lowest8
)

// ScrubStrategyIPV6 defines the approach to scrub PII from an IPV6 address.
type ScrubStrategyIPV6 int

const (
	ScrubStrategyIPV6None ScrubStrategyIPV6 = iota
	ScrubStrategyIPV6Lowest16
	ScrubStrategyIPV6Lowest32
)

// ScrubStrategyGeo defines the approach to scrub PII from geographical data.
type ScrubStrategyGeo int

const (
	ScrubStrategyGeoNone ScrubStrategyGeo = iota
	// ScrubStrategyGeoReducedPrecision rounds latitude and longitude to two decimal places.
	ScrubStrategyGeoReducedPrecision
	// ScrubStrategyGeoFull replaces the geo object with an empty one.
	ScrubStrategyGeoFull
)

// ScrubStrategyUser defines the approach to scrub PII from user data.
type ScrubStrategyUser int

const (
	ScrubStrategyUserNone ScrubStrategyUser = iota
	// ScrubStrategyUserIDs removes the user id, buyer uid and eids.
	ScrubStrategyUserIDs
	// ScrubStrategyUserFull additionally removes demographics, data and the ext object.
	ScrubStrategyUserFull
)

// ScrubStrategyDevice defines the approach to scrub PII from device identifiers.
type ScrubStrategyDevice int

const (
	ScrubStrategyDeviceNone ScrubStrategyDevice = iota
	// ScrubStrategyDeviceIDs removes the advertising id and the hashed device, platform and mac ids.
	ScrubStrategyDeviceIDs
)

// ScrubDevice returns a copy of the device with the strategies applied. The original device
// is never modified.
func ScrubDevice(device *openrtb2.Device, ids ScrubStrategyDevice, ipv4 ScrubStrategyIPV4, ipv6 ScrubStrategyIPV6, geo ScrubStrategyGeo) *openrtb2.Device {
	if device == nil {
		return nil
	}

	c := ortb.CloneDevice(device)

	if ids == ScrubStrategyDeviceIDs {
		scrubDeviceIDs(c)
	}

	if ipv4 == ScrubStrategyIPV4Lowest8 {
		c.IP = scrubIP(c.IP, 24, iputil.IPv4BitSize)
	}

	switch ipv6 {
	case ScrubStrategyIPV6Lowest16:
		c.IPv6 = scrubIP(c.IPv6, 112, iputil.IPv6BitSize)
	case ScrubStrategyIPV6Lowest32:
		c.IPv6 = scrubIP(c.IPv6, 96, iputil.IPv6BitSize)
	}

	c.Geo = scrubGeo(c.Geo, geo)

	return c
}

// ScrubUser returns a copy of the user with the strategies applied. The original user is never
// modified.
func ScrubUser(user *openrtb2.User, strategy ScrubStrategyUser, geo ScrubStrategyGeo) *openrtb2.User {
	if user == nil {
		return nil
	}

	c := ortb.CloneUser(user)

	switch strategy {
	case ScrubStrategyUserFull:
		scrubUserIDs(c)
		scrubUserDemographics(c)
		c.Data = nil
		c.Ext = nil
	case ScrubStrategyUserIDs:
		scrubUserIDs(c)
	}

	c.Geo = scrubGeo(c.Geo, geo)

	return c
}

func scrubDeviceIDs(device *openrtb2.Device) {
	device.DIDMD5 = ""
	device.DIDSHA1 = ""
	device.DPIDMD5 = ""
	device.DPIDSHA1 = ""
	device.IFA = ""
	device.MACMD5 = ""
	device.MACSHA1 = ""
}

func scrubUserIDs(user *openrtb2.User) {
	user.ID = ""
	user.BuyerUID = ""
	user.EIDs = nil

	// the 2.5 location of eids
	if ext, err := jsonutil.DropElement(user.Ext, "eids"); err == nil {
		user.Ext = ext
	}
}

func scrubUserDemographics(user *openrtb2.User) {
	user.Yob = 0
	user.Gender = ""
	user.Keywords = ""
	user.KwArray = nil
}

func scrubGeo(geo *openrtb2.Geo, strategy ScrubStrategyGeo) *openrtb2.Geo {
	if geo == nil {
		return nil
	}

	switch strategy {
	case ScrubStrategyGeoFull:
		return &openrtb2.Geo{}
	case ScrubStrategyGeoReducedPrecision:
		return scrubGeoPrecision(geo)
	}
	return geo
}

func scrubGeoPrecision(geo *openrtb2.Geo) *openrtb2.Geo {
	if geo == nil {
		return nil
	}

	geoCopy := *geo
	if geo.Lat != nil {
		geoCopy.Lat = ptrutil.ToPtr(roundTo2Decimals(*geo.Lat))
	}
	if geo.Lon != nil {
		geoCopy.Lon = ptrutil.ToPtr(roundTo2Decimals(*geo.Lon))
	}
	return &geoCopy
}

func roundTo2Decimals(v float64) float64 {
	return math.Round(v*100) / 100
}

// scrubIP keeps the leading maskBits of the address. Unparseable addresses are returned as is.
func scrubIP(ip string, maskBits, bits int) string {
	if ip == "" {
		return ""
	}
	parsed, _ := iputil.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if bits == iputil.IPv4BitSize {
		if v4 := parsed.To4(); v4 != nil {
			parsed = v4
		}
	}
	mask := net.CIDRMask(maskBits, bits)
	return parsed.Mask(mask).String()
}
