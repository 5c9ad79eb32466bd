package openrtb_ext

import "fmt"

const DefaultBidLimit = 1
const MaxBidLimit = 9

// ExtMultiBid defines the contract for bidrequest.ext.prebid.multibid
type ExtMultiBid struct {
	Bidder                 string   `json:"bidder,omitempty"`
	Bidders                []string `json:"bidders,omitempty"`
	MaxBids                *int     `json:"maxbids,omitempty"`
	TargetBidderCodePrefix string   `json:"targetbiddercodeprefix,omitempty"`
}

func (mb ExtMultiBid) String() string {
	maxBids := "<nil>"
	if mb.MaxBids != nil {
		maxBids = fmt.Sprintf("%d", *mb.MaxBids)
	}
	return fmt.Sprintf("{Bidder:%s, Bidders:%v, MaxBids:%s, TargetBidderCodePrefix:%s}", mb.Bidder, mb.Bidders, maxBids, mb.TargetBidderCodePrefix)
}

// ExtMultiBidConfig is the resolved multibid setting of one bidder.
type ExtMultiBidConfig struct {
	Bidder                 string
	MaxBids                int
	TargetBidderCodePrefix string
}

// ValidateAndBuildExtMultiBid drops malformed entries of bidrequest.ext.prebid.multibid and resolves the
// remaining ones into a per-bidder map. Every dropped or corrected entry yields one error.
func ValidateAndBuildExtMultiBid(prebid *ExtRequestPrebid) (map[string]ExtMultiBidConfig, []error) {
	if prebid == nil || prebid.MultiBid == nil {
		return nil, nil
	}

	var errs []error
	multiBidMap := make(map[string]ExtMultiBidConfig)
	seen := make(map[string]struct{})
	for _, multiBid := range prebid.MultiBid {
		if multiBid == nil {
			continue
		}
		errs = append(errs, addMultiBid(multiBidMap, seen, multiBid)...)
	}

	return multiBidMap, errs
}

// Validate and add multiBid
func addMultiBid(multiBidMap map[string]ExtMultiBidConfig, seen map[string]struct{}, multiBid *ExtMultiBid) []error {
	if multiBid.Bidder != "" && len(multiBid.Bidders) > 0 {
		return []error{fmt.Errorf("multiBid entry must define either bidder or bidders, not both, ignoring %v", *multiBid)}
	}
	if multiBid.Bidder == "" && len(multiBid.Bidders) == 0 {
		return []error{fmt.Errorf("bidder(s) not specified for %v", *multiBid)}
	}

	bidders := multiBid.Bidders
	if multiBid.Bidder != "" {
		bidders = []string{multiBid.Bidder}
	}
	for _, bidder := range bidders {
		if _, ok := seen[bidder]; ok {
			return []error{fmt.Errorf("multiBid already defined for %s, ignoring this instance %v", bidder, *multiBid)}
		}
	}

	singleBidderList := multiBid.Bidder == "" && len(multiBid.Bidders) == 1
	maxBids := DefaultBidLimit
	if multiBid.MaxBids != nil {
		maxBids = *multiBid.MaxBids
	} else if !singleBidderList {
		return []error{fmt.Errorf("maxBids not defined for %v", *multiBid)}
	}

	if multiBid.Bidder == "" && !singleBidderList && multiBid.TargetBidderCodePrefix != "" {
		return []error{fmt.Errorf("targetbiddercodeprefix is not allowed for multiple bidders, ignoring %v", *multiBid)}
	}

	var errs []error
	if maxBids < DefaultBidLimit {
		errs = append(errs, fmt.Errorf("invalid maxBids value, using minimum %d limit for %v", DefaultBidLimit, *multiBid))
		maxBids = DefaultBidLimit
	}
	if maxBids > MaxBidLimit {
		errs = append(errs, fmt.Errorf("invalid maxBids value, using maximum %d limit for %v", MaxBidLimit, *multiBid))
		maxBids = MaxBidLimit
	}

	for _, bidder := range bidders {
		seen[bidder] = struct{}{}
		multiBidMap[bidder] = ExtMultiBidConfig{
			Bidder:                 bidder,
			MaxBids:                maxBids,
			TargetBidderCodePrefix: multiBid.TargetBidderCodePrefix,
		}
	}
	return errs
}
