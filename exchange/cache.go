package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/events"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/prebid_cache_client"
)

// CacheInfo is what bidrequest.ext.prebid.cache asks for.
type CacheInfo struct {
	DoCaching           bool
	CacheBids           bool
	CacheVideoXML       bool
	ReturnCreativeBids  bool
	ReturnCreativeVideo bool
	WinningOnly         bool
}

func newCacheInfo(cache *openrtb_ext.ExtRequestPrebidCache) CacheInfo {
	info := CacheInfo{ReturnCreativeBids: true, ReturnCreativeVideo: true}
	if cache == nil {
		return info
	}
	info.CacheBids = cache.Bids != nil
	info.CacheVideoXML = cache.VastXML != nil
	info.DoCaching = info.CacheBids || info.CacheVideoXML
	if cache.Bids != nil && cache.Bids.ReturnCreative != nil {
		info.ReturnCreativeBids = *cache.Bids.ReturnCreative
	}
	if cache.VastXML != nil && cache.VastXML.ReturnCreative != nil {
		info.ReturnCreativeVideo = *cache.VastXML.ReturnCreative
	}
	if cache.WinningOnly != nil {
		info.WinningOnly = *cache.WinningOnly
	}
	return info
}

// CacheSettings tell the cache service what to store for an auction.
type CacheSettings struct {
	CacheBids     bool
	CacheVideoXML bool
	AccountTTLs   config.DefaultTTLs
	Debug         bool
}

// CacheResult holds the keys of the stored bids. Errors are reported under the "cache" key of the
// response ext.
type CacheResult struct {
	IDs      map[*BidInfo]CacheIDs
	Errors   []error
	HttpCall *openrtb_ext.ExtHttpCall
}

// CacheService stores the bids of an auction in Prebid Cache with a single call.
type CacheService interface {
	CacheBids(ctx context.Context, bids []*BidInfo, settings CacheSettings) CacheResult
	// CachedAssetURL returns the url a creative can fetch the entry from.
	CachedAssetURL(uuid string) string
	// CacheHostPath returns the host and path for the hb_cache_host and hb_cache_path keywords.
	CacheHostPath() (host, path string)
}

// NewCacheService puts bids through the Prebid Cache client. Host defaults give the ttl of bids
// which carry no exp.
func NewCacheService(client prebid_cache_client.Client, cfg *config.Cache) CacheService {
	return &prebidCacheService{
		client:      client,
		putURL:      cfg.GetPutURL(),
		defaultTTLs: cfg.DefaultTTLs,
	}
}

type prebidCacheService struct {
	client      prebid_cache_client.Client
	putURL      string
	defaultTTLs config.DefaultTTLs
}

type cacheEntry struct {
	bid   *BidInfo
	video bool
	ttl   int64
}

func (s *prebidCacheService) CacheBids(ctx context.Context, bids []*BidInfo, settings CacheSettings) CacheResult {
	result := CacheResult{IDs: make(map[*BidInfo]CacheIDs, len(bids))}

	values := make([]prebid_cache_client.Cacheable, 0, len(bids))
	entries := make([]cacheEntry, 0, len(bids))
	for _, bid := range bids {
		ttl := s.ttlSeconds(bid, settings.AccountTTLs)

		if settings.CacheBids {
			bidJSON, err := json.Marshal(bid.Bid)
			if err == nil {
				bidJSON, err = patchWinURL(bid, bidJSON)
			}
			if err != nil {
				glog.Errorf("Error marshalling OpenRTB Bid for Prebid Cache: %v", err)
				result.Errors = append(result.Errors, fmt.Errorf("bid %s could not be cached: %v", bid.Bid.ID, err))
			} else {
				values = append(values, prebid_cache_client.Cacheable{
					Type:       prebid_cache_client.TypeJSON,
					Data:       bidJSON,
					TTLSeconds: ttl,
				})
				entries = append(entries, cacheEntry{bid: bid, ttl: ttl})
			}
		}

		if settings.CacheVideoXML && bid.BidType == openrtb_ext.BidTypeVideo {
			vast := bid.Bid.AdM
			if vast == "" {
				vast = events.MakeVAST(bid.Bid)
			}
			vastJSON, err := json.Marshal(vast)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("VAST of bid %s could not be cached: %v", bid.Bid.ID, err))
				continue
			}
			vastTTL := s.vastTTLSeconds(bid, settings.AccountTTLs)
			values = append(values, prebid_cache_client.Cacheable{
				Type:       prebid_cache_client.TypeXML,
				Data:       vastJSON,
				TTLSeconds: vastTTL,
			})
			entries = append(entries, cacheEntry{bid: bid, video: true, ttl: vastTTL})
		}
	}

	if len(values) == 0 {
		return result
	}
	if settings.Debug {
		result.HttpCall = &openrtb_ext.ExtHttpCall{
			Uri:         s.putURL,
			RequestBody: string(prebid_cache_client.EncodeValues(values)),
		}
	}

	uuids, errs := s.client.PutJson(ctx, values)
	result.Errors = append(result.Errors, errs...)
	for i, entry := range entries {
		if i >= len(uuids) || uuids[i] == "" {
			continue
		}
		ids := result.IDs[entry.bid]
		if entry.ttl > ids.TTL {
			ids.TTL = entry.ttl
		}
		if entry.video {
			ids.VideoID = uuids[i]
		} else {
			ids.BidsID = uuids[i]
		}
		result.IDs[entry.bid] = ids
	}
	return result
}

// ttlSeconds uses the exp of the bid, then the account and host defaults of its media type.
func (s *prebidCacheService) ttlSeconds(bid *BidInfo, accountTTLs config.DefaultTTLs) int64 {
	if bid.Bid.Exp > 0 {
		return bid.Bid.Exp
	}
	if ttl := mediaTypeTTL(accountTTLs, bid.BidType); ttl > 0 {
		return int64(ttl)
	}
	return int64(mediaTypeTTL(s.defaultTTLs, bid.BidType))
}

// vastTTLSeconds uses the account and host video defaults, then the exp of the bid.
func (s *prebidCacheService) vastTTLSeconds(bid *BidInfo, accountTTLs config.DefaultTTLs) int64 {
	if accountTTLs.Video > 0 {
		return int64(accountTTLs.Video)
	}
	if s.defaultTTLs.Video > 0 {
		return int64(s.defaultTTLs.Video)
	}
	return bid.Bid.Exp
}

func mediaTypeTTL(ttls config.DefaultTTLs, bidType openrtb_ext.BidType) int {
	switch bidType {
	case openrtb_ext.BidTypeBanner:
		return ttls.Banner
	case openrtb_ext.BidTypeVideo:
		return ttls.Video
	case openrtb_ext.BidTypeNative:
		return ttls.Native
	case openrtb_ext.BidTypeAudio:
		return ttls.Audio
	}
	return 0
}

func (s *prebidCacheService) CachedAssetURL(uuid string) string {
	scheme, host, path := s.client.GetExtCacheData()
	if host == "" || path == "" {
		return ""
	}

	query := url.Values{"uuid": []string{uuid}}
	cacheURL := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: query.Encode(),
	}

	// URLs without a scheme will begin with //, in which case we
	// want to trim it off to keep compatbile with current behavior.
	return strings.TrimPrefix(cacheURL.String(), "//")
}

func (s *prebidCacheService) CacheHostPath() (string, string) {
	_, host, path := s.client.GetExtCacheData()
	return host, path
}
