package router

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/endpoints"
	"github.com/prebid/prebid-auction/endpoints/info"
	"github.com/prebid/prebid-auction/endpoints/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange"
	"github.com/prebid/prebid-auction/floors"
	"github.com/prebid/prebid-auction/gdpr"
	"github.com/prebid/prebid-auction/hooks"
	metricsConf "github.com/prebid/prebid-auction/metrics/config"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/ortb"
	pbc "github.com/prebid/prebid-auction/prebid_cache_client"
	"github.com/prebid/prebid-auction/privacy"
	"github.com/prebid/prebid-auction/stored_requests"
	"github.com/prebid/prebid-auction/stored_requests/backends/empty_fetcher"
	"github.com/prebid/prebid-auction/stored_requests/backends/file_fetcher"
	"github.com/prebid/prebid-auction/stored_responses"
	"github.com/rs/cors"
)

const bidderInfoDirectory = "./static/bidder-info"

// NoCache sets the response headers which keep browsers and proxies from caching auction results.
type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	BidderInfos   config.BidderInfos
	Shutdown      func()
}

// New wires every auction dependency from cfg and registers the public routes. Hook modules are
// keyed by the module code used in the hook execution plans.
func New(cfg *config.Configuration, modules map[string]interface{}) (*Router, error) {
	return newRouter(cfg, bidderInfoDirectory, modules)
}

func newRouter(cfg *config.Configuration, infoDirectory string, modules map[string]interface{}) (*Router, error) {
	r := &Router{
		Router:   httprouter.New(),
		Shutdown: func() {},
	}

	generalHttpClient := &http.Client{Transport: newTransport(cfg.Client)}
	cacheHttpClient := &http.Client{Transport: newTransport(cfg.CacheClient)}

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg)

	storedData, err := newStoredDataFetcher(cfg.StoredRequests)
	if err != nil {
		return nil, errors.Wrap(err, "stored requests could not be loaded")
	}
	storedFetcher := stored_responses.NewCachingFetcher(storedData, cfg.StoredRequests.CacheSizeBytes, cfg.StoredRequests.CacheTTLSec)

	p, _ := filepath.Abs(infoDirectory)
	bidderInfos, err := config.LoadBidderInfoFromDisk(p, cfg.Adapters)
	if err != nil {
		return nil, err
	}
	r.BidderInfos = bidderInfos

	adapters, adaptersErrs := exchange.BuildAdapters(generalHttpClient, bidderInfos, nil)
	if len(adaptersErrs) > 0 {
		return nil, errortypes.NewAggregateErrors("Failed to initialize adapters", adaptersErrs)
	}

	repo, err := hooks.NewHookRepository(modules)
	if err != nil {
		return nil, errors.Wrap(err, "hook modules could not be registered")
	}
	planBuilder := hooks.NewExecutionPlanBuilder(cfg.Hooks, repo)

	collaborators := exchange.Collaborators{
		Cache:           exchange.NewCacheService(pbc.NewClient(cacheHttpClient, &cfg.CacheURL, r.MetricsEngine), &cfg.CacheURL),
		Privacy:         privacy.NewService(gdpr.NewTCFEvaluator(cfg.GDPR), bidderInfos, cfg.CCPA.Enforce),
		CategoryFetcher: storedData,
		StoredFetcher:   storedFetcher,
	}
	if floorFetcher := floors.NewPriceFloorFetcher(cfg.PriceFloors, generalHttpClient, r.MetricsEngine); floorFetcher != nil {
		collaborators.FloorFetcher = floorFetcher
		r.Shutdown = floorFetcher.Stop
	}

	ex, err := exchange.NewExchange(adapters, cfg, r.MetricsEngine, bidderInfos, collaborators)
	if err != nil {
		return nil, err
	}

	activeBidders, disabledBidders := bidderMaps(bidderInfos)
	auctionEndpoint, err := openrtb2.NewEndpoint(ex, ortb.NewRequestValidator(activeBidders, disabledBidders), storedFetcher, storedData, cfg, r.MetricsEngine, planBuilder)
	if err != nil {
		return nil, err
	}

	r.POST("/openrtb2/auction", auctionEndpoint)
	r.GET("/info/bidders", info.NewBiddersEndpoint(bidderInfos))
	r.GET("/info/bidders/:bidderName", info.NewBidderDetailsEndpoint(bidderInfos))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))

	return r, nil
}

func newTransport(cfg config.HTTPClient) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
	}
}

// newStoredDataFetcher reads stored requests, imps, responses, accounts and category mappings from
// the configured directory. Without a directory nothing is ever found.
func newStoredDataFetcher(cfg config.StoredRequests) (stored_requests.AllFetcher, error) {
	if cfg.Directory == "" {
		glog.Info("No stored_requests.directory configured. Stored data will not be found.")
		return empty_fetcher.EmptyFetcher{}, nil
	}
	return file_fetcher.NewFileFetcher(cfg.Directory)
}

// bidderMaps splits the bidder infos into the bidders requests may name and the disabled bidders
// with the warning a request naming them gets.
func bidderMaps(infos config.BidderInfos) (map[string]openrtb_ext.BidderName, map[string]string) {
	active := make(map[string]openrtb_ext.BidderName, len(infos))
	disabled := make(map[string]string)
	for name, info := range infos {
		if info.IsEnabled() {
			active[strings.ToLower(name)] = openrtb_ext.BidderName(name)
		} else {
			disabled[name] = fmt.Sprintf("Bidder %q has been disabled on this instance of Prebid Auction. Please work with the host to enable this bidder again.", name)
		}
	}
	return active, disabled
}

// SupportCORS allows credentialed requests from any origin.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
