package gdpr

import (
	"context"
	"errors"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/privacy"
)

// NewTCFEvaluator returns the evaluator used by the privacy service. With GDPR disabled every
// bidder is allowed.
func NewTCFEvaluator(cfg config.GDPR) privacy.TCFEvaluator {
	if !cfg.Enabled {
		return &AlwaysAllow{}
	}
	return &SignalEvaluator{}
}

// AlwaysAllow grants every bidder full access.
type AlwaysAllow struct{}

func (a *AlwaysAllow) ResultForBidderNames(ctx context.Context, bidders []string, tcf privacy.TCFContext) (map[string]privacy.EnforcementAction, error) {
	return allowAll(bidders), nil
}

// SignalEvaluator enforces on the gdpr signal and the presence of a usable consent string
// only. A request in GDPR scope without a valid consent has personal data masked for all
// bidders. Vendor and purpose level decisions belong to an external TCF engine.
type SignalEvaluator struct{}

func (e *SignalEvaluator) ResultForBidderNames(ctx context.Context, bidders []string, tcf privacy.TCFContext) (map[string]privacy.EnforcementAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !tcf.GDPRApplies || tcf.Version != 0 {
		return allowAll(bidders), nil
	}

	mask := privacy.EnforcementAction{
		RemoveUserIDs:  true,
		MaskGeo:        true,
		MaskDeviceIP:   true,
		MaskDeviceInfo: true,
	}
	results := make(map[string]privacy.EnforcementAction, len(bidders))
	for _, bidder := range bidders {
		results[bidder] = mask
	}
	return results, nil
}

func allowAll(bidders []string) map[string]privacy.EnforcementAction {
	results := make(map[string]privacy.EnforcementAction, len(bidders))
	for _, bidder := range bidders {
		results[bidder] = privacy.AllowAll()
	}
	return results
}

// ReadTCFContext reads the gdpr signal and consent string of the request. The 2.6 locations
// regs.gdpr and user.consent take precedence over their 2.5 ext locations. An absent signal
// falls back to defaultValue. The version is 0 when the consent string is missing or invalid.
func ReadTCFContext(req *openrtb2.BidRequest, defaultValue string) (privacy.TCFContext, error) {
	signal, err := readSignal(req)
	if err != nil {
		return privacy.TCFContext{}, err
	}

	tcf := privacy.TCFContext{
		GDPRApplies: SignalNormalize(signal, defaultValue) == SignalYes,
		Consent:     readConsent(req),
	}

	if tcf.Consent != "" {
		if parsed, err := parseConsent(tcf.Consent); err == nil {
			tcf.Version = int(parsed.encodingVersion)
		}
	}

	return tcf, nil
}

func readSignal(req *openrtb2.BidRequest) (Signal, error) {
	if req.Regs == nil {
		return SignalAmbiguous, nil
	}
	if req.Regs.GDPR != nil {
		return SignalParse(strconv.Itoa(int(*req.Regs.GDPR)))
	}
	if len(req.Regs.Ext) == 0 {
		return SignalAmbiguous, nil
	}

	value, err := jsonparser.GetInt(req.Regs.Ext, "gdpr")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return SignalAmbiguous, nil
	}
	if err != nil {
		return SignalAmbiguous, errInvalidSignal
	}
	return SignalParse(strconv.FormatInt(value, 10))
}

func readConsent(req *openrtb2.BidRequest) string {
	if req.User == nil {
		return ""
	}
	if req.User.Consent != "" {
		return req.User.Consent
	}
	consent, _ := jsonparser.GetString(req.User.Ext, "consent")
	return consent
}
