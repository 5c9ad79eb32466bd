package schain

import (
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

const sChainWildCard = "*"

// SChainWriter selects the schain of a bidder from ext.prebid.schains and writes it to the
// OpenRTB 2.6 location (req.source.schain). Version specific relocation happens later when the
// request is converted for the bidder.
type SChainWriter struct {
	sChainsByBidder map[string]*openrtb2.SupplyChain
}

// NewSChainWriter indexes the schains of the request extension by bidder.
func NewSChainWriter(reqExt *openrtb_ext.ExtRequest) (*SChainWriter, error) {
	var sChains []*openrtb_ext.ExtRequestPrebidSChain
	if reqExt != nil {
		sChains = reqExt.Prebid.SChains
	}

	sChainsByBidder, err := BidderToPrebidSChains(sChains)
	if err != nil {
		return nil, err
	}
	return &SChainWriter{sChainsByBidder: sChainsByBidder}, nil
}

// Write copies the schain for the specified bidder to req.source.schain. A bidder specific
// schain takes precedence over the wildcard one. If neither exists the request is not modified.
// The source object of the request is replaced, never changed in place.
func (w *SChainWriter) Write(req *openrtb2.BidRequest, bidder string) {
	if w == nil || req == nil {
		return
	}

	selectedSChain := w.sChainsByBidder[bidder]
	if selectedSChain == nil {
		selectedSChain = w.sChainsByBidder[sChainWildCard]
	}
	if selectedSChain == nil {
		return
	}

	if req.Source == nil {
		req.Source = &openrtb2.Source{}
	} else {
		sourceCopy := *req.Source
		req.Source = &sourceCopy
	}

	sChainCopy := *selectedSChain
	req.Source.SChain = &sChainCopy
}
