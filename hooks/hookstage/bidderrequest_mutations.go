package hookstage

import (
	"errors"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
)

func (c *ChangeSet[T]) BidderRequest() ChangeSetBidderRequest[T] {
	return ChangeSetBidderRequest[T]{changeSet: c}
}

type ChangeSetBidderRequest[T any] struct {
	changeSet *ChangeSet[T]
}

// Replace substitutes the whole bidder request.
func (c ChangeSetBidderRequest[T]) Replace(request *openrtb2.BidRequest) {
	c.changeSet.AddMutation(func(p T) (T, error) {
		payload, ok := any(p).(BidderRequestPayload)
		if !ok {
			return p, errors.New("failed to cast BidderRequestPayload")
		}
		if request == nil {
			return p, errors.New("replacement bid request is nil")
		}
		payload.Request = request
		return any(payload).(T), nil
	}, MutationUpdate, "bidrequest")
}

func (c ChangeSetBidderRequest[T]) BAdv() ChangeSetBAdv[T] {
	return ChangeSetBAdv[T]{changeSetBidderRequest: c}
}

func (c ChangeSetBidderRequest[T]) BCat() ChangeSetBCat[T] {
	return ChangeSetBCat[T]{changeSetBidderRequest: c}
}

func (c ChangeSetBidderRequest[T]) CatTax() ChangeSetCatTax[T] {
	return ChangeSetCatTax[T]{changeSetBidderRequest: c}
}

// update copies the request before fn changes it so the auction level request is left intact.
func (c ChangeSetBidderRequest[T]) update(fn func(*openrtb2.BidRequest), key ...string) {
	c.changeSet.AddMutation(func(p T) (T, error) {
		payload, ok := any(p).(BidderRequestPayload)
		if !ok {
			return p, errors.New("failed to cast BidderRequestPayload")
		}
		if payload.Request == nil {
			return p, errors.New("payload contains a nil bid request")
		}
		request := *payload.Request
		fn(&request)
		payload.Request = &request
		return any(payload).(T), nil
	}, MutationUpdate, key...)
}

type ChangeSetBAdv[T any] struct {
	changeSetBidderRequest ChangeSetBidderRequest[T]
}

func (c ChangeSetBAdv[T]) Update(badv []string) {
	c.changeSetBidderRequest.update(func(r *openrtb2.BidRequest) { r.BAdv = badv }, "bidrequest", "badv")
}

type ChangeSetBCat[T any] struct {
	changeSetBidderRequest ChangeSetBidderRequest[T]
}

func (c ChangeSetBCat[T]) Update(bcat []string) {
	c.changeSetBidderRequest.update(func(r *openrtb2.BidRequest) { r.BCat = bcat }, "bidrequest", "bcat")
}

type ChangeSetCatTax[T any] struct {
	changeSetBidderRequest ChangeSetBidderRequest[T]
}

func (c ChangeSetCatTax[T]) Update(cattax adcom1.CategoryTaxonomy) {
	c.changeSetBidderRequest.update(func(r *openrtb2.BidRequest) { r.CatTax = cattax }, "bidrequest", "cattax")
}
