package adservertargeting

import (
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

const (
	bidderMacro       = "{{BIDDER}}"
	impPathPrefix     = "imp."
	seatBidPathPrefix = "seatbid.bid."
)

type rule struct {
	key      string
	source   string
	value    string
	hasMacro bool
}

// Resolver evaluates the bidrequest.ext.prebid.adservertargeting rules of one request against its bids.
type Resolver struct {
	rules   []rule
	request []byte
	imps    map[string]openrtb2.Imp
	impJSON map[string][]byte
}

// NewResolver parses the rules of the request. A request without rules yields a resolver which
// resolves nothing.
func NewResolver(bidRequest *openrtb2.BidRequest) *Resolver {
	resolver := &Resolver{}
	if bidRequest == nil {
		return resolver
	}
	rulesJSON, _, _, err := jsonparser.Get(bidRequest.Ext, "prebid", "adservertargeting")
	if err != nil {
		return resolver
	}
	var targets []openrtb_ext.AdServerTarget
	if err := json.Unmarshal(rulesJSON, &targets); err != nil || len(targets) == 0 {
		return resolver
	}

	for _, target := range targets {
		if target.Key == "" {
			continue
		}
		resolver.rules = append(resolver.rules, rule{
			key:      target.Key,
			source:   strings.ToLower(target.Source),
			value:    target.Value,
			hasMacro: strings.Contains(target.Key, bidderMacro),
		})
	}

	resolver.request, _ = json.Marshal(bidRequest)
	resolver.imps = make(map[string]openrtb2.Imp, len(bidRequest.Imp))
	for _, imp := range bidRequest.Imp {
		resolver.imps[imp.ID] = imp
	}
	resolver.impJSON = make(map[string][]byte, len(bidRequest.Imp))
	return resolver
}

// Resolve returns the keywords for the bid. Rules with the bidder macro are skipped when bidderName
// is empty. When several rules produce the same key the last one wins.
func (r *Resolver) Resolve(bid *openrtb2.Bid, bidderName string) map[string]string {
	if r == nil || len(r.rules) == 0 || bid == nil {
		return nil
	}

	var bidJSON []byte
	keywords := make(map[string]string, len(r.rules))
	for _, rule := range r.rules {
		key := rule.key
		if rule.hasMacro {
			if bidderName == "" {
				continue
			}
			key = strings.Replace(key, bidderMacro, bidderName, -1)
		}

		var value string
		var found bool
		switch rule.source {
		case openrtb_ext.SourceStatic:
			value, found = rule.value, true
		case openrtb_ext.SourceBidRequest:
			value, found = r.requestValue(rule.value, bid.ImpID)
		case openrtb_ext.SourceBidResponse:
			if bidJSON == nil {
				bidJSON, _ = json.Marshal(bid)
			}
			value, found = lookupScalar(bidJSON, strings.TrimPrefix(rule.value, seatBidPathPrefix))
		}

		if found {
			keywords[key] = value
		}
	}
	return keywords
}

func (r *Resolver) requestValue(path, impID string) (string, bool) {
	if strings.HasPrefix(path, impPathPrefix) {
		return lookupScalar(r.impData(impID), strings.TrimPrefix(path, impPathPrefix))
	}
	return lookupScalar(r.request, path)
}

func (r *Resolver) impData(impID string) []byte {
	if data, ok := r.impJSON[impID]; ok {
		return data
	}
	imp, ok := r.imps[impID]
	if !ok {
		return nil
	}
	data, _ := json.Marshal(imp)
	r.impJSON[impID] = data
	return data
}
