package stored_requests

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fetcher knows how to fetch Stored Request data by id.
//
// Implementations must be safe for concurrent access by multiple goroutines.
// Callers are expected to share a single instance as much as possible.
type Fetcher interface {
	// FetchRequests fetches the stored requests for the given IDs.
	//
	// The first return value will be the Stored Request data, or nil if it doesn't exist.
	// If requestID is an empty string, then this value will always be nil.
	//
	// The second return value will be a map from Stored Imp data. It will have a key for every ID
	// in the impIDs list, unless errors exist.
	//
	// The returned objects can only be read from. They may not be written to.
	FetchRequests(ctx context.Context, requestIDs []string, impIDs []string) (requestData map[string]json.RawMessage, impData map[string]json.RawMessage, errs []error)
	FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error)
}

type AccountFetcher interface {
	// FetchAccount fetches the host account configuration for a publisher, merged over the given defaults
	FetchAccount(ctx context.Context, accountDefaultJSON json.RawMessage, accountID string) (json.RawMessage, []error)
}

type CategoryFetcher interface {
	// FetchCategories fetches the IAB category to ad server category mapping of the ad server and publisher.
	// An empty publisher addresses the ad server wide mapping.
	FetchCategories(ctx context.Context, primaryAdServer, publisherId string) (map[string]string, error)
}

// AllFetcher is an interface that encapsulates both the original Fetcher and the CategoryFetcher
type AllFetcher interface {
	Fetcher
	AccountFetcher
	CategoryFetcher
}

// NotFoundError is an error type to flag that an ID was not found by the Fetcher.
// This was added to support callers which expect that all IDs would not be found, and want
// to disentangle those errors from the others.
type NotFoundError struct {
	ID       string
	DataType string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(`Stored %s with ID="%s" not found.`, e.DataType, e.ID)
}

// Category is one entry of a category mapping file.
type Category struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}
