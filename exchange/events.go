package exchange

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/events"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// eventTracking has configuration fields needed for adding event tracking to an auction response
type eventTracking struct {
	enabled     bool
	builder     events.Builder
	bidderInfos config.BidderInfos
}

// newEventTracking turns events on when the account enables them and either the request asks for
// them or the account enables the request channel.
func newEventTracking(requestExtPrebid *openrtb_ext.ExtRequestPrebid, account *config.Account, auctionTimestampMs int64, bidderInfos config.BidderInfos, externalURL string) *eventTracking {
	requested := len(requestExtPrebid.Events) > 0 && string(requestExtPrebid.Events) != "null"
	channelEnabled := requestExtPrebid.Channel != nil && account.Events.IsChannelEnabled(requestExtPrebid.Channel.Name)

	return &eventTracking{
		enabled: account.Events.Enabled && (requested || channelEnabled),
		builder: events.Builder{
			ExternalURL: externalURL,
			AccountID:   account.ID,
			Timestamp:   auctionTimestampMs,
			Integration: requestExtPrebid.Integration,
		},
		bidderInfos: bidderInfos,
	}
}

// modifyBidVAST injects the imp event url into the VAST of video bids of bidders which allow it.
func (ev *eventTracking) modifyBidVAST(bid *BidInfo) {
	if !ev.enabled || bid.BidType != openrtb_ext.BidTypeVideo || !ev.bidderInfos[bid.Bidder.String()].ModifyingVastXmlAllowed {
		return
	}
	modifier := events.VastModifier{Builder: ev.builder}
	if vast, ok := modifier.Modify(bid.Bid, bid.eventBidID(), bid.Bidder.String()); ok {
		bid.Bid.AdM = vast
	}
}

// makeBidExtEvents make the data for bid.ext.prebid.events if needed, otherwise returns nil
func (ev *eventTracking) makeBidExtEvents(bid *BidInfo) *openrtb_ext.ExtBidPrebidEvents {
	if !ev.enabled || bid.BidType == openrtb_ext.BidTypeVideo {
		return nil
	}
	urls := ev.builder.CreateEvent(bid.eventBidID(), bid.Bidder.String())
	return &openrtb_ext.ExtBidPrebidEvents{Win: urls.Win, Imp: urls.Imp}
}

// patchWinURL injects "wurl" (win) event url if the bid has events, otherwise returns original json
func patchWinURL(bid *BidInfo, jsonBytes []byte) ([]byte, error) {
	if bid.Events == nil {
		return jsonBytes, nil
	}
	// wurl attribute is not in the schema, so we have to patch
	patch, err := json.Marshal(map[string]string{"wurl": bid.Events.Win})
	if err != nil {
		return jsonBytes, err
	}
	return jsonpatch.MergePatch(jsonBytes, patch)
}
