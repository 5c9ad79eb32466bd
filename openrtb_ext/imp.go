package openrtb_ext

import (
	"encoding/json"
)

// ExtImp defines the contract for bidrequest.imp[i].ext
type ExtImp struct {
	Prebid *ExtImpPrebid   `json:"prebid,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	GPID   string          `json:"gpid,omitempty"`
	TID    string          `json:"tid,omitempty"`
}

// ExtImpPrebid defines the contract for bidrequest.imp[i].ext.prebid
type ExtImpPrebid struct {
	// Bidder maps each bidder to its params for this imp.
	Bidder map[string]json.RawMessage `json:"bidder,omitempty"`

	IsRewardedInventory *int8 `json:"is_rewarded_inventory,omitempty"`

	Options *Options `json:"options,omitempty"`

	StoredRequest *ExtStoredRequest `json:"storedrequest,omitempty"`

	StoredBidResponse []ExtStoredBidResponse `json:"storedbidresponse,omitempty"`
}

// ExtStoredRequest defines the contract for bidrequest.imp[i].ext.prebid.storedrequest
type ExtStoredRequest struct {
	ID string `json:"id"`
}

// Options defines the contract for bidrequest.imp[i].ext.prebid.options
type Options struct {
	EchoVideoAttrs bool `json:"echovideoattrs"`
}

// ExtStoredBidResponse defines the contract for bidrequest.imp[i].ext.prebid.storedbidresponse
type ExtStoredBidResponse struct {
	ID     string `json:"id"`
	Bidder string `json:"bidder"`
	// ReplaceImpId writes the request imp id into the stored bids, true when unset.
	ReplaceImpId *bool `json:"replaceimpid,omitempty"`
}
