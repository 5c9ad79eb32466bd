package exchange

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/adapters/ortbbidder"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// BuildAdapters builds an AdaptedBidder for every enabled bidder of infos. Bidders without a
// registered builder speak plain OpenRTB to their endpoint.
func BuildAdapters(client *http.Client, infos config.BidderInfos, builders map[openrtb_ext.BidderName]adapters.Builder) (map[openrtb_ext.BidderName]AdaptedBidder, []error) {
	bidders, errs := buildBidders(infos, builders)
	if len(errs) > 0 {
		return nil, errs
	}

	exchangeBidders := make(map[openrtb_ext.BidderName]AdaptedBidder, len(bidders))
	for bidderName, bidder := range bidders {
		exchangeBidders[bidderName] = AdaptBidder(bidder, client, bidderName)
	}
	return exchangeBidders, nil
}

func buildBidders(infos config.BidderInfos, builders map[openrtb_ext.BidderName]adapters.Builder) (map[openrtb_ext.BidderName]adapters.Bidder, []error) {
	bidders := make(map[openrtb_ext.BidderName]adapters.Bidder)
	var errs []error

	names := make([]string, 0, len(infos))
	for bidder := range infos {
		names = append(names, bidder)
	}
	sort.Strings(names)

	for _, bidder := range names {
		info := infos[bidder]
		if !info.IsEnabled() {
			continue
		}

		bidderName := openrtb_ext.BidderName(bidder)
		builder, found := builders[bidderName]
		if !found {
			builder = ortbbidder.Builder
		}

		bidderInstance, err := builder(bidderName, info)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", bidder, err))
			continue
		}
		bidders[bidderName] = bidderInstance
	}
	return bidders, errs
}
