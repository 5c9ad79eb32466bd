package openrtb_ext

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// ExtUser defines the OpenRTB 2.5 location of fields promoted in 2.6, used when down converting.
type ExtUser struct {
	Consent string         `json:"consent,omitempty"`
	Eids    []openrtb2.EID `json:"eids,omitempty"`
}

// ExtSource defines the OpenRTB 2.5 location of the supply chain, used when down converting.
type ExtSource struct {
	SChain *openrtb2.SupplyChain `json:"schain,omitempty"`
}
