package hookstage

import (
	"context"
	"errors"

	"github.com/prebid/prebid-auction/exchange/entities"
)

// RawBidderResponse hooks are invoked for each bidder response before the exchange processes
// its bids.
//
// Rejection results in an empty seat bid for the bidder.
type RawBidderResponse interface {
	HandleRawBidderResponseHook(
		context.Context,
		ModuleInvocationContext,
		RawBidderResponsePayload,
	) (HookResult[RawBidderResponsePayload], error)
}

// RawBidderResponsePayload holds the bids of one bidder.
// Hooks are allowed to replace the bids using mutations.
type RawBidderResponsePayload struct {
	Bids   []*entities.PbsOrtbBid
	Bidder string
}

func (c *ChangeSet[T]) RawBidderResponse() ChangeSetRawBidderResponse[T] {
	return ChangeSetRawBidderResponse[T]{changeSet: c}
}

type ChangeSetRawBidderResponse[T any] struct {
	changeSet *ChangeSet[T]
}

// UpdateBids replaces the list of bids present in bidder-response.
func (c ChangeSetRawBidderResponse[T]) UpdateBids(bids []*entities.PbsOrtbBid) {
	c.changeSet.AddMutation(func(p T) (T, error) {
		payload, ok := any(p).(RawBidderResponsePayload)
		if !ok {
			return p, errors.New("failed to cast RawBidderResponsePayload")
		}
		payload.Bids = bids
		return any(payload).(T), nil
	}, MutationUpdate, "bids")
}
