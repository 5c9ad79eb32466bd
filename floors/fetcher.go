package floors

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/alitto/pond"
	validator "github.com/asaskevich/govalidator"
	"github.com/golang/glog"
	"github.com/patrickmn/go-cache"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
	"golang.org/x/net/context/ctxhttp"
)

// FloorFetcher returns the floors data fetched for an account, with the fetch status.
type FloorFetcher interface {
	Fetch(configs config.AccountPriceFloors) (*openrtb_ext.PriceFloorRules, string)
}

type WorkerPool interface {
	TrySubmit(task func()) bool
	Stop()
}

// Failure codes recorded by metrics.MetricsEngine.RecordDynamicFetchFailure.
const (
	fetchFailureRequest    = "1"
	fetchFailureUnmarshal  = "2"
	fetchFailureValidation = "3"
)

var refetchCheckInterval = 300 * time.Second

// PriceFloorFetcher fetches floors JSON from account URLs in the background and serves it from
// a cache. A URL is fetched again every fetch period.
type PriceFloorFetcher struct {
	pool            WorkerPool
	fetchQueue      FetchQueue
	fetchInprogress map[string]bool
	configReceiver  chan fetchInfo
	done            chan struct{}
	cache           *cache.Cache
	cacheExpiry     time.Duration
	httpClient      *http.Client
	metricEngine    metrics.MetricsEngine
}

type fetchInfo struct {
	config.AccountFloorFetch
	FetchTime      int64
	RefetchRequest bool
}

// FetchQueue orders pending refetches by fetch time.
type FetchQueue []*fetchInfo

func (fq FetchQueue) Len() int {
	return len(fq)
}

func (fq FetchQueue) Less(i, j int) bool {
	return fq[i].FetchTime < fq[j].FetchTime
}

func (fq FetchQueue) Swap(i, j int) {
	fq[i], fq[j] = fq[j], fq[i]
}

func (fq *FetchQueue) Push(element interface{}) {
	*fq = append(*fq, element.(*fetchInfo))
}

func (fq *FetchQueue) Pop() interface{} {
	old := *fq
	n := len(old)
	info := old[n-1]
	old[n-1] = nil
	*fq = old[0 : n-1]
	return info
}

func (fq *FetchQueue) Top() *fetchInfo {
	if len(*fq) == 0 {
		return nil
	}
	return (*fq)[0]
}

// NewPriceFloorFetcher starts the fetcher loop. It returns nil when price floors are disabled
// server wide.
func NewPriceFloorFetcher(cfg config.PriceFloors, httpClient *http.Client, metricEngine metrics.MetricsEngine) *PriceFloorFetcher {
	if !cfg.Enabled {
		return nil
	}

	cacheExpiry := time.Duration(cfg.Fetcher.CacheExpiry) * time.Second
	floorFetcher := PriceFloorFetcher{
		pool:            pond.New(cfg.Fetcher.Worker, cfg.Fetcher.Capacity),
		fetchQueue:      make(FetchQueue, 0, 100),
		fetchInprogress: make(map[string]bool),
		configReceiver:  make(chan fetchInfo, cfg.Fetcher.Capacity),
		done:            make(chan struct{}),
		cacheExpiry:     cacheExpiry,
		cache:           cache.New(cacheExpiry, time.Duration(cfg.Fetcher.CacheCleanUpInt)*time.Second),
		httpClient:      httpClient,
		metricEngine:    metricEngine,
	}

	go floorFetcher.Fetcher()

	return &floorFetcher
}

func (f *PriceFloorFetcher) SetWithExpiry(key string, value interface{}, cacheExpiry time.Duration) {
	f.cache.Set(key, value, cacheExpiry)
}

func (f *PriceFloorFetcher) Get(key string) (interface{}, bool) {
	return f.cache.Get(key)
}

// Fetch returns the cached floors of the account fetch URL. On a miss the URL is queued for
// fetching and FetchInprogress is returned.
func (f *PriceFloorFetcher) Fetch(configs config.AccountPriceFloors) (*openrtb_ext.PriceFloorRules, string) {
	if f == nil || !configs.UseDynamicData || len(configs.Fetch.URL) == 0 || !validator.IsURL(configs.Fetch.URL) {
		return nil, FetchNone
	}

	if result, found := f.Get(configs.Fetch.URL); found {
		fetchedRes, ok := result.(*openrtb_ext.PriceFloorRules)
		if !ok || fetchedRes.Data == nil {
			return nil, FetchError
		}
		return fetchedRes, FetchSuccess
	}

	if configs.Enabled && configs.Fetch.Enabled && configs.Fetch.Timeout > 0 {
		info := fetchInfo{AccountFloorFetch: configs.Fetch, FetchTime: time.Now().Unix()}
		select {
		case f.configReceiver <- info:
		default:
			glog.Warningf("Price floor fetch queue is full, dropping fetch of URL %s", configs.Fetch.URL)
		}
	}

	return nil, FetchInprogress
}

func (f *PriceFloorFetcher) worker(configs config.AccountFloorFetch) {
	floorData, fetchedMaxAge := f.fetchAndValidate(configs)
	if floorData != nil {
		glog.Infof("Updating Value in cache for URL %s", configs.URL)
		cacheExpiry := f.cacheExpiry
		if fetchedMaxAge != 0 && fetchedMaxAge > configs.Period && fetchedMaxAge < math.MaxInt32 {
			cacheExpiry = time.Duration(fetchedMaxAge) * time.Second
		}
		f.SetWithExpiry(configs.URL, floorData, cacheExpiry)
	}

	refetch := fetchInfo{
		AccountFloorFetch: configs,
		FetchTime:         time.Now().Add(time.Duration(configs.Period) * time.Second).Unix(),
		RefetchRequest:    true,
	}
	select {
	case f.configReceiver <- refetch:
	case <-f.done:
	}
}

// Stop terminates the fetcher loop and its worker pool.
func (f *PriceFloorFetcher) Stop() {
	if f != nil {
		close(f.done)
	}
}

func (f *PriceFloorFetcher) submit(info *fetchInfo) {
	if !f.pool.TrySubmit(func() { f.worker(info.AccountFloorFetch) }) {
		heap.Push(&f.fetchQueue, info)
	}
}

// Fetcher is the loop receiving fetch requests and submitting due refetches to the worker pool.
func (f *PriceFloorFetcher) Fetcher() {
	ticker := time.NewTicker(refetchCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case info := <-f.configReceiver:
			if info.RefetchRequest {
				heap.Push(&f.fetchQueue, &info)
			} else if !f.fetchInprogress[info.URL] {
				f.fetchInprogress[info.URL] = true
				f.submit(&info)
			}
		case <-ticker.C:
			currentTime := time.Now().Unix()
			for top := f.fetchQueue.Top(); top != nil && top.FetchTime <= currentTime; top = f.fetchQueue.Top() {
				f.submit(heap.Pop(&f.fetchQueue).(*fetchInfo))
			}
		case <-f.done:
			f.pool.Stop()
			glog.Info("Price Floor fetcher terminated")
			return
		}
	}
}

func (f *PriceFloorFetcher) fetchAndValidate(configs config.AccountFloorFetch) (*openrtb_ext.PriceFloorRules, int) {
	floorResp, maxAge, err := f.fetchFloorRulesFromURL(configs)
	if err != nil {
		f.metricEngine.RecordDynamicFetchFailure(configs.AccountID, fetchFailureRequest)
		glog.Errorf("Error while fetching floor data from URL: %s, reason : %s", configs.URL, err.Error())
		return nil, 0
	}

	if configs.MaxFileSize > 0 && len(floorResp) > configs.MaxFileSize*1024 {
		glog.Errorf("Received invalid floor data from URL: %s, reason : floor file size is greater than MaxFileSize", configs.URL)
		return nil, 0
	}

	var priceFloors openrtb_ext.PriceFloorRules
	if err := jsonutil.Unmarshal(floorResp, &priceFloors.Data); err != nil {
		f.metricEngine.RecordDynamicFetchFailure(configs.AccountID, fetchFailureUnmarshal)
		glog.Errorf("Received invalid price floor json from URL: %s", configs.URL)
		return nil, 0
	}

	if err := validateRules(configs, &priceFloors); err != nil {
		f.metricEngine.RecordDynamicFetchFailure(configs.AccountID, fetchFailureValidation)
		glog.Errorf("Validation failed for floor JSON from URL: %s, reason: %s", configs.URL, err.Error())
		return nil, 0
	}

	return &priceFloors, maxAge
}

// fetchFloorRulesFromURL returns a price floor JSON and time for which this JSON is valid
// from provided URL with timeout constraints
func (f *PriceFloorFetcher) fetchFloorRulesFromURL(configs config.AccountFloorFetch) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(configs.Timeout)*time.Millisecond)
	defer cancel()

	httpResp, err := ctxhttp.Get(ctx, f.httpClient, configs.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("error while getting response from url : %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("no response from server, status %d", httpResp.StatusCode)
	}

	var maxAge int
	if maxAgeStr := httpResp.Header.Get("max-age"); maxAgeStr != "" {
		maxAge, _ = strconv.Atoi(maxAgeStr)
		if maxAge <= configs.Period || maxAge > math.MaxInt32 {
			glog.Errorf("Invalid max-age = %s provided, value should be valid integer and should be within (%v, %v)", maxAgeStr, configs.Period, math.MaxInt32)
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, errors.New("unable to read response")
	}

	return respBody, maxAge, nil
}

func validateRules(configs config.AccountFloorFetch, priceFloors *openrtb_ext.PriceFloorRules) error {
	if priceFloors.Data == nil {
		return errors.New("empty data in floor JSON")
	}

	if len(priceFloors.Data.ModelGroups) == 0 {
		return errors.New("no model groups found in price floor data")
	}

	if priceFloors.Data.SkipRate < skipRateMin || priceFloors.Data.SkipRate > skipRateMax {
		return errors.New("skip rate should be greater than or equal to 0 and less than 100")
	}

	for _, modelGroup := range priceFloors.Data.ModelGroups {
		if len(modelGroup.Values) == 0 || len(modelGroup.Values) > configs.MaxRules {
			return errors.New("invalid number of floor rules, floor rules should be greater than zero and less than MaxRules specified in account config")
		}

		if modelGroup.ModelWeight != 0 && (modelGroup.ModelWeight < modelWeightMin || modelGroup.ModelWeight > modelWeightMax) {
			return errors.New("modelGroup[].modelWeight should be greater than or equal to 1 and less than 100")
		}

		if modelGroup.SkipRate < skipRateMin || modelGroup.SkipRate > skipRateMax {
			return errors.New("model group skip rate should be greater than or equal to 0 and less than 100")
		}

		if modelGroup.Default < 0 {
			return errors.New("modelGroup.Default should be greater than 0")
		}
	}

	return nil
}
