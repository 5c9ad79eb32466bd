package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/openrtb/v20/openrtb3"
	"github.com/prebid/prebid-auction/adservertargeting"
	"github.com/prebid/prebid-auction/categories"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/stored_requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BidResponseCreator turns the bidder responses left after the auction into the OpenRTB response.
type BidResponseCreator interface {
	Create(ctx context.Context, bidderResponses []*entities.BidderResponse, auctionCtx *AuctionContext, reqExt *openrtb_ext.ExtRequest, targetCurrency string, cacheInfo CacheInfo, multiBid map[string]openrtb_ext.ExtMultiBidConfig) (*openrtb2.BidResponse, error)
}

// NewBidResponseCreator builds the response creator. A nil bid id generator leaves bids without a
// generated id and a nil cache disables caching.
func NewBidResponseCreator(cache CacheService, cfg *config.Configuration, infos config.BidderInfos, storedFetcher stored_requests.Fetcher, bidIDGenerator IdGenerator) BidResponseCreator {
	return &bidResponseCreator{
		cache:                 cache,
		bidderInfos:           infos,
		storedFetcher:         storedFetcher,
		bidIDGenerator:        bidIDGenerator,
		externalURL:           cfg.ExternalURL,
		hostTruncateAttrChars: cfg.Targeting.TruncateAttrChars,
	}
}

type bidResponseCreator struct {
	cache                 CacheService
	bidderInfos           config.BidderInfos
	storedFetcher         stored_requests.Fetcher
	bidIDGenerator        IdGenerator
	externalURL           string
	hostTruncateAttrChars int
}

func (c *bidResponseCreator) Create(ctx context.Context, bidderResponses []*entities.BidderResponse, auctionCtx *AuctionContext, reqExt *openrtb_ext.ExtRequest, targetCurrency string, cacheInfo CacheInfo, multiBid map[string]openrtb_ext.ExtMultiBidConfig) (*openrtb2.BidResponse, error) {
	req := auctionCtx.BidRequest
	account := &auctionCtx.Account
	bidderErrors := make(map[openrtb_ext.BidderName][]error)
	var prebidWarnings []error

	var auctionTimestampMs int64
	if !auctionCtx.StartTime.IsZero() {
		auctionTimestampMs = auctionCtx.StartTime.UnixMilli()
	}

	bids := c.collectBids(bidderResponses, req, auctionCtx.CategoryMapping, bidderErrors)

	targeting := reqExt.Prebid.Targeting
	bids = auction{
		preferDeals: targeting != nil && targeting.PreferDeals,
		multiBid:    multiBid,
	}.run(bids, targeting != nil)

	eventTracking := newEventTracking(&reqExt.Prebid, account, auctionTimestampMs, c.bidderInfos, c.externalURL)
	for _, bid := range bids {
		if bid.BidType == openrtb_ext.BidTypeNative {
			adm, err := addNativeTypes(bid.Bid, bid.Imp)
			if err != nil {
				bidderErrors[bid.Bidder] = append(bidderErrors[bid.Bidder], &errortypes.Warning{Message: err.Error(), WarningCode: errortypes.UnknownWarningCode})
			}
			bid.Bid.AdM = adm
		}
		eventTracking.modifyBidVAST(bid)
		bid.Events = eventTracking.makeBidExtEvents(bid)
	}

	var cacheResult CacheResult
	if cacheInfo.DoCaching && c.cache != nil {
		cacheResult = c.cache.CacheBids(ctx, cacheableBids(bids, cacheInfo.WinningOnly), CacheSettings{
			CacheBids:     cacheInfo.CacheBids,
			CacheVideoXML: cacheInfo.CacheVideoXML,
			AccountTTLs:   account.CacheTTL,
			Debug:         auctionCtx.Debug,
		})
		for bid, ids := range cacheResult.IDs {
			bid.CacheIDs = ids
		}
	}

	var targetingData *targetData
	if targeting != nil {
		targetingData = &targetData{
			targeting:         targeting,
			includeWinners:    targeting.GetIncludeWinners(),
			includeBidderKeys: targeting.GetIncludeBidderKeys(),
			includeFormat:     targeting.IncludeFormat,
			lengthMax:         resolveTruncateAttrChars(targeting, account.TruncateTargetAttribute, c.hostTruncateAttrChars),
			isApp:             req.App != nil,
			resolver:          adservertargeting.NewResolver(req),
		}
		if c.cache != nil {
			targetingData.cacheHost, targetingData.cachePath = c.cache.CacheHostPath()
		}
	}

	storedVideos, storedVideoErrs := c.fetchStoredVideo(ctx, req)
	for _, err := range storedVideoErrs {
		prebidWarnings = append(prebidWarnings, &errortypes.Warning{Message: err.Error(), WarningCode: errortypes.StoredVideoWarningCode})
	}

	bidsByBidder := make(map[openrtb_ext.BidderName][]*BidInfo)
	for _, bid := range bids {
		bidsByBidder[bid.Bidder] = append(bidsByBidder[bid.Bidder], bid)
	}

	seatBids := make([]openrtb2.SeatBid, 0, len(bidderResponses))
	for _, response := range bidderResponses {
		seatBid := openrtb2.SeatBid{Seat: response.Bidder.String()}
		for _, bid := range bidsByBidder[response.Bidder] {
			responseBid, err := c.makeBid(bid, targetingData, cacheInfo, storedVideos[bid.Bid.ImpID])
			if err != nil {
				bidderErrors[bid.Bidder] = append(bidderErrors[bid.Bidder], err)
				continue
			}
			seatBid.Bid = append(seatBid.Bid, *responseBid)
		}
		if len(seatBid.Bid) > 0 {
			seatBids = append(seatBids, seatBid)
		}
	}

	bidResponse := &openrtb2.BidResponse{
		ID:      req.ID,
		SeatBid: seatBids,
	}
	if len(seatBids) == 0 {
		bidResponse.NBR = openrtb3.NoBidUnknownError.Ptr()
	} else {
		bidResponse.Cur = targetCurrency
	}

	responseExt := c.makeExtBidResponse(bidderResponses, auctionCtx, auctionTimestampMs, bidderErrors, prebidWarnings, cacheResult)
	ext, err := encodeBidResponseExt(responseExt)
	if err != nil {
		return nil, err
	}
	bidResponse.Ext = ext
	return bidResponse, nil
}

// collectBids copies every bid of the responses so the response can be changed freely.
func (c *bidResponseCreator) collectBids(bidderResponses []*entities.BidderResponse, req *openrtb2.BidRequest, mapping *categories.MappingResult, bidderErrors map[openrtb_ext.BidderName][]error) []*BidInfo {
	var bids []*BidInfo
	for _, response := range bidderResponses {
		for _, pbsBid := range response.Bids() {
			bidCopy := *pbsBid.Bid
			bid := &BidInfo{
				Bid:               &bidCopy,
				PbsBid:            pbsBid,
				Imp:               findImp(req, bidCopy.ImpID),
				Bidder:            response.Bidder,
				BidType:           pbsBid.BidType,
				DealTierSatisfied: pbsBid.DealTierSatisfied,
			}
			bid.CatDur = mapping.CatDurFor(response.Bidder, bidCopy.ID)
			if mapping.TierSatisfied(response.Bidder, bidCopy.ID) {
				bid.DealTierSatisfied = true
			}
			if c.bidIDGenerator != nil {
				id, err := c.bidIDGenerator.New()
				if err != nil {
					bidderErrors[response.Bidder] = append(bidderErrors[response.Bidder], &errortypes.Warning{
						Message:     "bid id could not be generated: " + err.Error(),
						WarningCode: errortypes.UnknownWarningCode,
					})
				} else {
					bid.GeneratedBidID = id
				}
			}
			bids = append(bids, bid)
		}
	}
	return bids
}

// cacheableBids keeps the bids with a price or a deal, only the imp winners when winningOnly is set.
func cacheableBids(bids []*BidInfo, winningOnly bool) []*BidInfo {
	eligible := make([]*BidInfo, 0, len(bids))
	for _, bid := range bids {
		if bid.Bid.Price <= 0 && bid.Bid.DealID == "" {
			continue
		}
		if winningOnly && !bid.Targeting.IsWinningBid {
			continue
		}
		eligible = append(eligible, bid)
	}
	return eligible
}

// fetchStoredVideo returns the stored video objects of the imps asking for them to be echoed.
func (c *bidResponseCreator) fetchStoredVideo(ctx context.Context, req *openrtb2.BidRequest) (map[string]*openrtb2.Video, []error) {
	var imps []openrtb2.Imp
	for _, imp := range req.Imp {
		if echo, err := jsonparser.GetBoolean(imp.Ext, "prebid", "options", "echovideoattrs"); err == nil && echo {
			imps = append(imps, imp)
		}
	}
	if len(imps) == 0 {
		return nil, nil
	}
	return stored_requests.FetchStoredVideo(ctx, c.storedFetcher, imps)
}

func (c *bidResponseCreator) makeBid(bid *BidInfo, targetingData *targetData, cacheInfo CacheInfo, storedVideo *openrtb2.Video) (*openrtb2.Bid, error) {
	responseBid := bid.Bid

	prebid := &openrtb_ext.ExtBidPrebid{
		BidId:             bid.GeneratedBidID,
		DealPriority:      bid.PbsBid.DealPriority,
		DealTierSatisfied: bid.DealTierSatisfied,
		Events:            bid.Events,
		Targeting:         targetingData.makeTargeting(bid),
		TargetBidderCode:  bid.TargetBidderCode,
		Type:              bid.BidType,
	}
	if bid.PbsBid.BidVideo != nil {
		video := *bid.PbsBid.BidVideo
		prebid.Video = &video
	}

	ids := bid.CacheIDs
	if ids.BidsID != "" || ids.VideoID != "" {
		prebid.Cache = &openrtb_ext.ExtBidPrebidCache{}
		if ids.BidsID != "" {
			cacheURL := c.cache.CachedAssetURL(ids.BidsID)
			prebid.Cache.Key = ids.BidsID
			prebid.Cache.Url = cacheURL
			prebid.Cache.Bids = &openrtb_ext.ExtResponseCache{URL: cacheURL, CacheId: ids.BidsID}
			if !cacheInfo.ReturnCreativeBids {
				responseBid.AdM = ""
			}
		}
		if ids.VideoID != "" {
			prebid.Cache.VastXML = &openrtb_ext.ExtResponseCache{URL: c.cache.CachedAssetURL(ids.VideoID), CacheId: ids.VideoID}
			if !cacheInfo.ReturnCreativeVideo {
				responseBid.AdM = ""
			}
		}
		if responseBid.Exp == 0 {
			responseBid.Exp = ids.TTL
		}
	}

	ext, err := makeBidExtJSON(responseBid.Ext, prebid, bid.PbsBid.OriginalBidCPM, bid.PbsBid.OriginalBidCur, storedVideo)
	if err != nil {
		return nil, err
	}
	responseBid.Ext = ext
	return responseBid, nil
}

// makeBidExtJSON writes the prebid block next to what the bidder put in the bid ext. A bidder
// supplied prebid.meta survives.
func makeBidExtJSON(ext json.RawMessage, prebid *openrtb_ext.ExtBidPrebid, originalBidCPM float64, originalBidCur string, storedVideo *openrtb2.Video) (json.RawMessage, error) {
	extJSON := []byte(`{}`)
	var meta gjson.Result
	if len(ext) > 0 {
		parsed := gjson.ParseBytes(ext)
		if !gjson.ValidBytes(ext) || !parsed.IsObject() {
			return nil, errors.New("error validating response from server, bid ext is not a JSON object")
		}
		extJSON = append([]byte{}, ext...)
		meta = parsed.Get("prebid.meta")
	}

	prebidJSON, err := json.Marshal(prebid)
	if err != nil {
		return nil, err
	}
	if extJSON, err = sjson.SetRawBytes(extJSON, string(openrtb_ext.PrebidMessageKey), prebidJSON); err != nil {
		return nil, err
	}
	if meta.Exists() {
		if extJSON, err = sjson.SetRawBytes(extJSON, "prebid.meta", []byte(meta.Raw)); err != nil {
			return nil, err
		}
	}

	if originalBidCur != "" {
		if extJSON, err = sjson.SetBytes(extJSON, "origbidcpm", originalBidCPM); err != nil {
			return nil, err
		}
		if extJSON, err = sjson.SetBytes(extJSON, "origbidcur", originalBidCur); err != nil {
			return nil, err
		}
	}

	if storedVideo != nil {
		videoJSON, err := json.Marshal(storedVideo)
		if err != nil {
			return nil, err
		}
		if extJSON, err = sjson.SetRawBytes(extJSON, "storedrequestattributes", videoJSON); err != nil {
			return nil, err
		}
	}
	return extJSON, nil
}

func (c *bidResponseCreator) makeExtBidResponse(bidderResponses []*entities.BidderResponse, auctionCtx *AuctionContext, auctionTimestampMs int64, bidderErrors map[openrtb_ext.BidderName][]error, prebidWarnings []error, cacheResult CacheResult) *openrtb_ext.ExtBidResponse {
	ext := &openrtb_ext.ExtBidResponse{
		Errors:               make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage),
		Warnings:             make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage),
		ResponseTimeMillis:   make(map[openrtb_ext.BidderName]int, len(bidderResponses)),
		RequestTimeoutMillis: auctionCtx.TMax,
	}
	if auctionTimestampMs > 0 {
		ext.Prebid = &openrtb_ext.ExtResponsePrebid{AuctionTimestamp: auctionTimestampMs}
	}

	addMessages := func(key openrtb_ext.BidderName, errs []error) {
		if messages := errsToBidderErrors(errs); len(messages) > 0 {
			ext.Errors[key] = append(ext.Errors[key], messages...)
		}
		if messages := errsToBidderWarnings(errs, auctionCtx.Debug); len(messages) > 0 {
			ext.Warnings[key] = append(ext.Warnings[key], messages...)
		}
	}

	if auctionCtx.Debug {
		ext.Debug = &openrtb_ext.ExtResponseDebug{
			HttpCalls:       make(map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall),
			ResolvedRequest: auctionCtx.ResolvedRequest,
		}
		if len(ext.Debug.ResolvedRequest) == 0 {
			ext.Debug.ResolvedRequest, _ = json.Marshal(auctionCtx.BidRequest)
		}
	}

	for _, response := range bidderResponses {
		ext.ResponseTimeMillis[response.Bidder] = response.ResponseTimeMillis
		addMessages(response.Bidder, append(append([]error{}, response.Errors...), bidderErrors[response.Bidder]...))
		if ext.Debug != nil && response.SeatBid != nil && len(response.SeatBid.HttpCalls) > 0 {
			ext.Debug.HttpCalls[response.Bidder] = response.SeatBid.HttpCalls
		}
	}

	addMessages(openrtb_ext.PrebidMessageKey, append(append([]error{}, auctionCtx.Warnings...), prebidWarnings...))

	for _, err := range cacheResult.Errors {
		ext.Errors[openrtb_ext.CacheMessageKey] = append(ext.Errors[openrtb_ext.CacheMessageKey], openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	if ext.Debug != nil && cacheResult.HttpCall != nil {
		ext.Debug.HttpCalls[openrtb_ext.CacheMessageKey] = []*openrtb_ext.ExtHttpCall{cacheResult.HttpCall}
	}
	return ext
}

func encodeBidResponseExt(bidResponseExt *openrtb_ext.ExtBidResponse) ([]byte, error) {
	buffer := &bytes.Buffer{}
	enc := json.NewEncoder(buffer)

	enc.SetEscapeHTML(false)
	if err := enc.Encode(bidResponseExt); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}
