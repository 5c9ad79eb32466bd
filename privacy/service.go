package privacy

import (
	"context"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/logger"
	"github.com/prebid/prebid-auction/privacy/ccpa"
)

// TCFContext is the consent information of the request handed to the TCF evaluator.
type TCFContext struct {
	GDPRApplies bool
	Consent     string
	// Version of the TCF consent string, 0 when unknown or unparseable.
	Version int
}

// TCFEvaluator computes the per bidder TCF enforcement. Results are keyed by canonical
// bidder name.
type TCFEvaluator interface {
	ResultForBidderNames(ctx context.Context, bidders []string, tcf TCFContext) (map[string]EnforcementAction, error)
}

// MaskContext is the part of the auction the masking decisions depend on.
type MaskContext struct {
	BidRequest      *openrtb2.BidRequest
	Account         *config.Account
	TCF             TCFContext
	ActivityControl ActivityControl
}

// BidderPrivacyResult holds the user and device to send to one bidder.
type BidderPrivacyResult struct {
	Bidder      string
	User        *openrtb2.User
	Device      *openrtb2.Device
	Blocked     bool
	Enforcement Enforcement
}

type Service struct {
	tcf             TCFEvaluator
	bidderInfos     config.BidderInfos
	hostCCPAEnforce bool
}

func NewService(tcf TCFEvaluator, bidderInfos config.BidderInfos, hostCCPAEnforce bool) *Service {
	return &Service{
		tcf:             tcf,
		bidderInfos:     bidderInfos,
		hostCCPAEnforce: hostCCPAEnforce,
	}
}

// Mask decides the privacy enforcement of every bidder and returns the scrubbed user and device
// for each, in the order of bidders. A COPPA request masks everything; otherwise CCPA applies to
// bidders which support it and are not exempt, and TCF covers the rest. The TCF evaluator is
// called once for all bidders, COPPA and CCPA ones included, and its failure fails the whole call.
func (s *Service) Mask(ctx context.Context, mctx MaskContext, bidderToUser map[string]*openrtb2.User, bidders []string, aliases map[string]string) ([]BidderPrivacyResult, error) {
	if len(bidders) == 0 {
		return nil, nil
	}

	req := mctx.BidRequest
	coppa := req.Regs != nil && req.Regs.COPPA == 1

	tcfActions, err := s.tcf.ResultForBidderNames(ctx, canonicalBidderNames(bidders, aliases), mctx.TCF)
	if err != nil {
		return nil, err
	}

	ccpaPolicy, ccpaEnforced := s.readCCPA(req, mctx.Account)

	results := make([]BidderPrivacyResult, 0, len(bidders))
	for _, bidder := range bidders {
		canonical := resolveAlias(bidder, aliases)

		enforcement := Enforcement{COPPA: coppa}
		if !coppa {
			if ccpaEnforced && ccpaPolicy.ShouldEnforce(bidder) && s.bidderInfos[canonical].CCPAEnforced {
				enforcement.CCPA = true
			} else if action, ok := tcfActions[canonical]; ok {
				enforcement.TCF = action
			}
		}

		component := Component{Type: ComponentTypeBidder, Name: bidder}
		enforcement.UFPD = !mctx.ActivityControl.Allow(ActivityTransmitUserFPD, component)
		enforcement.PreciseGeo = !mctx.ActivityControl.Allow(ActivityTransmitPreciseGeo, component)
		enforcement.UniqueRequestIDs = !mctx.ActivityControl.Allow(ActivityTransmitUniqueRequestIDs, component)

		user, ok := bidderToUser[bidder]
		if !ok {
			user = req.User
		}
		maskedUser, maskedDevice := enforcement.Apply(user, req.Device)

		results = append(results, BidderPrivacyResult{
			Bidder:      bidder,
			User:        maskedUser,
			Device:      maskedDevice,
			Blocked:     enforcement.TCF.BlockBidderRequest,
			Enforcement: enforcement,
		})
	}

	return results, nil
}

func (s *Service) readCCPA(req *openrtb2.BidRequest, account *config.Account) (ccpa.ParsedPolicy, bool) {
	enforced := s.hostCCPAEnforce
	if account != nil {
		enforced = account.CCPA.EnabledOrDefault(s.hostCCPAEnforce)
	}
	if !enforced {
		return ccpa.ParsedPolicy{}, false
	}

	policy, err := ccpa.ReadFromRequest(req)
	if err != nil {
		logger.Warnf("Unable to read CCPA policy: %v", err)
		return ccpa.ParsedPolicy{}, false
	}
	parsed, err := policy.Parse()
	if err != nil {
		return ccpa.ParsedPolicy{}, false
	}
	return parsed, true
}

func resolveAlias(bidder string, aliases map[string]string) string {
	if coreBidder, ok := aliases[bidder]; ok {
		return coreBidder
	}
	return strings.ToLower(bidder)
}

// canonicalBidderNames resolves aliases and removes duplicates, keeping the first occurrence.
func canonicalBidderNames(bidders []string, aliases map[string]string) []string {
	seen := make(map[string]struct{}, len(bidders))
	names := make([]string, 0, len(bidders))
	for _, bidder := range bidders {
		name := resolveAlias(bidder, aliases)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
