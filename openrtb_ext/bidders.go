package openrtb_ext

import (
	"strings"
)

// BidderName refers to a core bidder or an alias id.
type BidderName string

func (name BidderName) String() string {
	return string(name)
}

// Names of reserved keys in imp[i].ext which are never bidder names.
const (
	BidderReservedAll      BidderName = "all"     // Reserved for the all-bidders stored request / response.
	BidderReservedAE       BidderName = "ae"      // Reserved for FLEDGE auction eligibility.
	BidderReservedContext  BidderName = "context" // Reserved for first party data.
	BidderReservedData     BidderName = "data"    // Reserved for first party data.
	BidderReservedGeneral  BidderName = "general"
	BidderReservedGPID     BidderName = "gpid"
	BidderReservedPrebid   BidderName = "prebid"
	BidderReservedSKAdN    BidderName = "skadn"
	BidderReservedTID      BidderName = "tid"
	BidderReservedBidder   BidderName = "bidder"
	BidderReservedRewarded BidderName = "rewarded"
)

// IsBidderNameReserved returns true if the specified name is a case insensitive match for a reserved bidder name.
func IsBidderNameReserved(name string) bool {
	switch strings.ToLower(name) {
	case string(BidderReservedAll),
		string(BidderReservedAE),
		string(BidderReservedContext),
		string(BidderReservedData),
		string(BidderReservedGeneral),
		string(BidderReservedGPID),
		string(BidderReservedPrebid),
		string(BidderReservedSKAdN),
		string(BidderReservedTID),
		string(BidderReservedBidder),
		string(BidderReservedRewarded):
		return true
	}
	return false
}
