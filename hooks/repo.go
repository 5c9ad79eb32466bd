package hooks

import (
	"fmt"

	"github.com/prebid/prebid-auction/hooks/hookstage"
)

// HookRepository is the interface that exposes methods
// that return instance of the certain hook interface.
//
// Each method accepts hook ID and returns hook interface
// registered under this ID and true if hook found
// otherwise nil value returned with the false,
// indicating not found hook for this ID.
type HookRepository interface {
	GetBidderRequestHook(id string) (hookstage.BidderRequest, bool)
	GetRawBidderResponseHook(id string) (hookstage.RawBidderResponse, bool)
	GetAuctionResponseHook(id string) (hookstage.AuctionResponse, bool)
}

// NewHookRepository returns a new instance of the HookRepository interface.
//
// The hooks argument represents a mapping of hook IDs to types
// implementing at least one of the available hook interfaces, see [hookstage] pkg.
//
// Error returned if provided interface doesn't implement any hook interface
// or hook with same ID already exists.
func NewHookRepository(hooks map[string]interface{}) (HookRepository, error) {
	repo := new(hookRepository)
	for id, hook := range hooks {
		if err := repo.add(id, hook); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

type hookRepository struct {
	bidderRequestHooks     map[string]hookstage.BidderRequest
	rawBidderResponseHooks map[string]hookstage.RawBidderResponse
	auctionResponseHooks   map[string]hookstage.AuctionResponse
}

func (r *hookRepository) GetBidderRequestHook(id string) (hookstage.BidderRequest, bool) {
	return getHook(r.bidderRequestHooks, id)
}

func (r *hookRepository) GetRawBidderResponseHook(id string) (hookstage.RawBidderResponse, bool) {
	return getHook(r.rawBidderResponseHooks, id)
}

func (r *hookRepository) GetAuctionResponseHook(id string) (hookstage.AuctionResponse, bool) {
	return getHook(r.auctionResponseHooks, id)
}

func (r *hookRepository) add(id string, hook interface{}) error {
	var hasAnyHooks bool
	var err error

	if h, ok := hook.(hookstage.BidderRequest); ok {
		hasAnyHooks = true
		if r.bidderRequestHooks, err = addHook(r.bidderRequestHooks, h, id); err != nil {
			return err
		}
	}

	if h, ok := hook.(hookstage.RawBidderResponse); ok {
		hasAnyHooks = true
		if r.rawBidderResponseHooks, err = addHook(r.rawBidderResponseHooks, h, id); err != nil {
			return err
		}
	}

	if h, ok := hook.(hookstage.AuctionResponse); ok {
		hasAnyHooks = true
		if r.auctionResponseHooks, err = addHook(r.auctionResponseHooks, h, id); err != nil {
			return err
		}
	}

	if !hasAnyHooks {
		return fmt.Errorf(`hook "%s" does not implement any supported hook interface`, id)
	}

	return nil
}

func getHook[T any](hooks map[string]T, id string) (T, bool) {
	hook, ok := hooks[id]
	return hook, ok
}

func addHook[T any](hooks map[string]T, hook T, id string) (map[string]T, error) {
	if hooks == nil {
		hooks = make(map[string]T)
	}

	if _, ok := hooks[id]; ok {
		return nil, fmt.Errorf(`hook with ID "%s" already exists`, id)
	}

	hooks[id] = hook

	return hooks, nil
}
