package stored_responses

import (
	"context"
	"encoding/json"

	"github.com/coocood/freecache"
	"github.com/prebid/prebid-auction/stored_requests"
)

// CachingFetcher keeps fetched stored responses in an in-memory LRU so that hot responses skip the
// backing fetcher. Stored requests and imps are passed through.
type CachingFetcher struct {
	stored_requests.Fetcher
	lru        *freecache.Cache
	ttlSeconds int
}

// NewCachingFetcher wraps fetcher with a cache of sizeBytes. A size of 0 returns fetcher unchanged.
func NewCachingFetcher(fetcher stored_requests.Fetcher, sizeBytes, ttlSeconds int) stored_requests.Fetcher {
	if sizeBytes <= 0 {
		return fetcher
	}
	return &CachingFetcher{
		Fetcher:    fetcher,
		lru:        freecache.NewCache(sizeBytes),
		ttlSeconds: ttlSeconds,
	}
}

func (f *CachingFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	data := make(map[string]json.RawMessage, len(ids))
	var missing []string
	for _, id := range ids {
		if _, ok := data[id]; ok {
			continue
		}
		if b, err := f.lru.Get([]byte(id)); err == nil {
			data[id] = b
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return data, nil
	}

	fetched, errs := f.Fetcher.FetchResponses(ctx, missing)
	for id, resp := range fetched {
		data[id] = resp
		// a value too large for the cache is simply not kept
		_ = f.lru.Set([]byte(id), resp, f.ttlSeconds)
	}
	return data, errs
}
