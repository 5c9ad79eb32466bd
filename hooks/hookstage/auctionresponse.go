package hookstage

import (
	"context"
	"errors"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// AuctionResponse hooks are invoked after the auction response is built.
//
// Rejection is ignored at this stage, the response is returned as is.
type AuctionResponse interface {
	HandleAuctionResponseHook(
		context.Context,
		ModuleInvocationContext,
		AuctionResponsePayload,
	) (HookResult[AuctionResponsePayload], error)
}

// AuctionResponsePayload consists of the final openrtb2.BidResponse object.
// Hooks are allowed to replace it using mutations.
type AuctionResponsePayload struct {
	BidResponse *openrtb2.BidResponse
}

func (c *ChangeSet[T]) AuctionResponse() ChangeSetAuctionResponse[T] {
	return ChangeSetAuctionResponse[T]{changeSet: c}
}

type ChangeSetAuctionResponse[T any] struct {
	changeSet *ChangeSet[T]
}

// Replace substitutes the whole bid response.
func (c ChangeSetAuctionResponse[T]) Replace(response *openrtb2.BidResponse) {
	c.changeSet.AddMutation(func(p T) (T, error) {
		payload, ok := any(p).(AuctionResponsePayload)
		if !ok {
			return p, errors.New("failed to cast AuctionResponsePayload")
		}
		if response == nil {
			return p, errors.New("replacement bid response is nil")
		}
		payload.BidResponse = response
		return any(payload).(T), nil
	}, MutationUpdate, "bidresponse")
}
