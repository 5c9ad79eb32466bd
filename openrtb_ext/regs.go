package openrtb_ext

import (
	"encoding/json"
)

// ExtRegs defines the contract for bidrequest.regs.ext
type ExtRegs struct {
	DSA *ExtRegsDSA `json:"dsa,omitempty"`

	// GDPR should be "1" if the caller believes the user is subject to GDPR laws, "0" if not, and undefined
	// if it's unknown. For more info on this parameter, see: https://iabtechlab.com/wp-content/uploads/2018/02/OpenRTB_Advisory_GDPR_2018-02.pdf
	GDPR *int8 `json:"gdpr,omitempty"`

	// USPrivacy is a string value of the CCPA consent string.
	USPrivacy string `json:"us_privacy,omitempty"`
}

// ExtRegsDSA defines the contract for bidrequest.regs.ext.dsa
type ExtRegsDSA struct {
	Required *int8 `json:"dsarequired,omitempty"`
}

// ParseExtRegs decodes a regs.ext object. Absent input yields the zero value.
func ParseExtRegs(ext json.RawMessage) (*ExtRegs, error) {
	regsExt := &ExtRegs{}
	if len(ext) == 0 {
		return regsExt, nil
	}
	if err := json.Unmarshal(ext, regsExt); err != nil {
		return nil, err
	}
	return regsExt, nil
}
