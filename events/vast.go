package events

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
)

// VastModifier injects the imp event url of a bid into its VAST markup.
type VastModifier struct {
	Builder Builder
}

// Modify returns the VAST of the bid with an Impression tracker pointing at the imp event url. The
// second return value is false when the markup was left unchanged.
func (m VastModifier) Modify(bid *openrtb2.Bid, bidID, bidder string) (string, bool) {
	if bid == nil || bid.AdM == "" && bid.NURL == "" {
		return "", false
	}

	vast := MakeVAST(bid)
	request := &EventRequest{
		Type:        Imp,
		BidID:       bidID,
		AccountID:   m.Builder.AccountID,
		Bidder:      bidder,
		Timestamp:   m.Builder.Timestamp,
		Integration: m.Builder.Integration,
	}
	return ModifyVastXmlString(vast, EventRequestToUrl(m.Builder.ExternalURL, request))
}

// MakeVAST wraps the nurl of a bid without markup into a VAST wrapper.
func MakeVAST(bid *openrtb2.Bid) string {
	if bid.AdM == "" {
		return `<VAST version="3.0"><Ad><Wrapper>` +
			`<AdSystem>prebid.org wrapper</AdSystem>` +
			`<VASTAdTagURI><![CDATA[` + bid.NURL + `]]></VASTAdTagURI>` +
			`<Impression></Impression><Creatives></Creatives>` +
			`</Wrapper></Ad></VAST>`
	}
	return bid.AdM
}

// ModifyVastXmlString adds an Impression element holding trackerURL to every InLine and Wrapper ad
// of the document.
func ModifyVastXmlString(vastXML, trackerURL string) (string, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(vastXML)); err != nil {
		glog.Errorf("Error parsing VAST XML. '%v'", err)
		return vastXML, false
	}

	ads := doc.FindElements("VAST/Ad/InLine")
	ads = append(ads, doc.FindElements("VAST/Ad/Wrapper")...)
	if len(ads) == 0 {
		return vastXML, false
	}

	for _, ad := range ads {
		impression := ad.CreateElement("Impression")
		impression.CreateCData(trackerURL)
	}

	out, err := doc.WriteToString()
	if err != nil {
		glog.Errorf("Error writing VAST XML. '%v'", err)
		return vastXML, false
	}
	return out, true
}
