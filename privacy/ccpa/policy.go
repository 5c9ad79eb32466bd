package ccpa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

const (
	ccpaVersion1      = '1'
	ccpaNo            = 'N'
	ccpaYes           = 'Y'
	ccpaNotApplicable = '-'
)

const (
	indexVersion                = 0
	indexExplicitNotice         = 1
	indexOptOutSale             = 2
	indexLSPACoveredTransaction = 3
)

const allBiddersMarker = "*"

// Policy represents the CCPA regulatory information from an OpenRTB bid request.
type Policy struct {
	Consent       string
	NoSaleBidders []string
}

// ReadFromRequest extracts the CCPA regulatory information from an OpenRTB bid request. The
// 2.6 location regs.us_privacy takes precedence over regs.ext.us_privacy.
func ReadFromRequest(req *openrtb2.BidRequest) (Policy, error) {
	var policy Policy

	if req == nil {
		return policy, nil
	}

	if req.Regs != nil {
		policy.Consent = req.Regs.USPrivacy
		if policy.Consent == "" && len(req.Regs.Ext) > 0 {
			consent, err := jsonparser.GetString(req.Regs.Ext, "us_privacy")
			if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
				return Policy{}, fmt.Errorf("error reading request.regs.ext: %s", err)
			}
			policy.Consent = consent
		}
	}

	ext, err := openrtb_ext.ParseExtRequest(req)
	if err != nil {
		return Policy{}, err
	}
	policy.NoSaleBidders = ext.Prebid.NoSale

	return policy, nil
}

// ParsedPolicy is a validated Policy ready for per bidder decisions.
type ParsedPolicy struct {
	consentSpecified      bool
	consentOptOutSale     bool
	noSaleForAllBidders   bool
	noSaleSpecificBidders map[string]struct{}
}

// Parse validates the policy. An invalid consent string is an error; nosale entries are not
// checked against known bidders.
func (p Policy) Parse() (ParsedPolicy, error) {
	if err := ValidateConsent(p.Consent); err != nil {
		return ParsedPolicy{}, fmt.Errorf("request.regs.ext.us_privacy %s", err.Error())
	}

	parsed := ParsedPolicy{
		consentSpecified:      p.Consent != "",
		consentOptOutSale:     p.Consent != "" && p.Consent[indexOptOutSale] == ccpaYes,
		noSaleSpecificBidders: make(map[string]struct{}, len(p.NoSaleBidders)),
	}

	for _, bidder := range p.NoSaleBidders {
		if bidder == allBiddersMarker {
			parsed.noSaleForAllBidders = true
			continue
		}
		parsed.noSaleSpecificBidders[strings.ToLower(bidder)] = struct{}{}
	}

	return parsed, nil
}

// ValidateConsent returns an error if the CCPA consent string does not adhere to the IAB spec.
func ValidateConsent(consent string) error {
	if consent == "" {
		return nil
	}

	if len(consent) != 4 {
		return errors.New("must contain 4 characters")
	}

	if consent[indexVersion] != ccpaVersion1 {
		return errors.New("must specify version 1")
	}

	var c byte

	c = consent[indexExplicitNotice]
	if c != ccpaNo && c != ccpaYes && c != ccpaNotApplicable {
		return errors.New("must specify 'N', 'Y', or '-' for the explicit notice")
	}

	c = consent[indexOptOutSale]
	if c != ccpaNo && c != ccpaYes && c != ccpaNotApplicable {
		return errors.New("must specify 'N', 'Y', or '-' for the opt-out sale")
	}

	c = consent[indexLSPACoveredTransaction]
	if c != ccpaNo && c != ccpaYes && c != ccpaNotApplicable {
		return errors.New("must specify 'N', 'Y', or '-' for the limited service provider agreement")
	}

	return nil
}

// CanEnforce returns true when the consent string carries the opt-out sale signal.
func (p ParsedPolicy) CanEnforce() bool {
	return p.consentSpecified && p.consentOptOutSale
}

// IsNoSale returns true when the bidder is exempt, either by name or by the "*" marker.
func (p ParsedPolicy) IsNoSale(bidder string) bool {
	if p.noSaleForAllBidders {
		return true
	}
	_, exists := p.noSaleSpecificBidders[strings.ToLower(bidder)]
	return exists
}

// ShouldEnforce returns true when the opt-out signal applies to the bidder.
func (p ParsedPolicy) ShouldEnforce(bidder string) bool {
	return p.CanEnforce() && !p.IsNoSale(bidder)
}
