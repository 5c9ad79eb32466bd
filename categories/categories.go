package categories

import (
	"context"
	"fmt"
)

// Categories is an in-memory CategoryFetcher. Mappings are indexed by ad server, then by
// "<adserver>" for the ad server wide mapping or "<adserver>_<publisher>" for a publisher one.
type Categories struct {
	Categories map[string]map[string]map[string]string
}

// FetchCategories returns the IAB category to ad server category mapping of the publisher.
func (c *Categories) FetchCategories(ctx context.Context, primaryAdServer, publisherId string) (map[string]string, error) {
	if primaryAdServerMapping, primaryMappingPresent := c.Categories[primaryAdServer]; primaryMappingPresent {
		key := primaryAdServer
		if len(publisherId) > 0 {
			key = primaryAdServer + "_" + publisherId
		}
		if mapping, mappingPresent := primaryAdServerMapping[key]; mappingPresent {
			return mapping, nil
		}
	}
	return nil, fmt.Errorf("Category mapping not found for server: '%s', publisherId: '%s'", primaryAdServer, publisherId)
}
