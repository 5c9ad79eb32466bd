package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/categories"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/currency"
	"github.com/prebid/prebid-auction/dsa"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/floors"
	"github.com/prebid/prebid-auction/hooks/hookexecution"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/ortb"
	"github.com/prebid/prebid-auction/privacy"
	"github.com/prebid/prebid-auction/stored_requests"
	"github.com/prebid/prebid-auction/stored_requests/backends/empty_fetcher"
	"github.com/prebid/prebid-auction/stored_responses"
	"github.com/prebid/prebid-auction/timeout"
)

const defaultCurrency = "USD"

// Exchange runs Auctions. Implementations must be threadsafe, and will be shared across many goroutines.
type Exchange interface {
	// HoldAuction executes an OpenRTB v2.6 Auction. The returned context carries the bid response and
	// everything learned on the way to it. An error means the auction could not be held at all.
	HoldAuction(ctx context.Context, auctionCtx *AuctionContext) (*AuctionContext, error)
}

// AuctionContext carries an auction from the endpoint through the exchange and back.
type AuctionContext struct {
	BidRequest  *openrtb2.BidRequest
	Account     config.Account
	RequestType metrics.RequestType
	StartTime   time.Time

	TCF             privacy.TCFContext
	ActivityControl privacy.ActivityControl
	HookExecutor    hookexecution.StageExecutor

	// ResolvedRequest is echoed in ext.debug when set, otherwise the request is marshaled.
	ResolvedRequest json.RawMessage

	// Filled by the exchange.
	Debug                 bool
	TMax                  int64
	AuctionParticipations []*entities.AuctionParticipation
	CategoryMapping       *categories.MappingResult
	Warnings              []error
	BidResponse           *openrtb2.BidResponse
}

// IdGenerator creates the transaction and bid ids of an auction.
type IdGenerator interface {
	New() (string, error)
}

type uuidGenerator struct{}

func (uuidGenerator) New() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// PrivacyEnforcer masks the user and device each bidder receives.
type PrivacyEnforcer interface {
	Mask(ctx context.Context, mctx privacy.MaskContext, bidderToUser map[string]*openrtb2.User, bidders []string, aliases map[string]string) ([]privacy.BidderPrivacyResult, error)
}

// CategoryMapper computes the category and duration key of video bids and deduplicates them.
type CategoryMapper interface {
	CreateCategoryMapping(ctx context.Context, bidderResponses []*entities.BidderResponse, bidRequest *openrtb2.BidRequest, targeting *openrtb_ext.ExtRequestTargeting, supportDeals bool) (*categories.MappingResult, error)
}

type exchange struct {
	adapterMap         map[openrtb_ext.BidderName]AdaptedBidder
	bidderInfo         config.BidderInfos
	me                 metrics.MetricsEngine
	privacy            PrivacyEnforcer
	currencyConverter  currency.Converter
	serverRates        currency.Conversions
	categoryMapper     CategoryMapper
	storedFetcher      stored_requests.Fetcher
	floorFetcher       floors.FloorFetcher
	timeoutResolver    *timeout.Resolver
	bidValidator       ResponseBidValidator
	mediaTypeProcessor MediaTypeProcessor
	responseCreator    BidResponseCreator
	idGenerator        IdGenerator
	clock              clock.Clock

	debugAllowed        bool
	strictAppSiteDooh   bool
	floorsEnabled       bool
	processingOverhead  int64
	cacheExpectedMillis int64
}

// Collaborators holds the services an exchange delegates to.
type Collaborators struct {
	Cache           CacheService
	Privacy         PrivacyEnforcer
	ServerRates     currency.Conversions
	CategoryFetcher stored_requests.CategoryFetcher
	StoredFetcher   stored_requests.Fetcher
	FloorFetcher    floors.FloorFetcher
}

// NewExchange wires an exchange for the given bidders. Server rates default to the configured
// constant rates and a missing stored fetcher finds nothing.
func NewExchange(adapters map[openrtb_ext.BidderName]AdaptedBidder, cfg *config.Configuration, me metrics.MetricsEngine, infos config.BidderInfos, deps Collaborators) (Exchange, error) {
	resolver, err := timeout.NewResolver(cfg.AuctionTimeouts.Min, cfg.AuctionTimeouts.Max, cfg.AuctionTimeouts.BidderResponseDurationFactorPct)
	if err != nil {
		return nil, err
	}

	serverRates := deps.ServerRates
	if serverRates == nil {
		serverRates = currency.NewRates(cfg.CurrencyConverter.Rates)
	}
	storedFetcher := deps.StoredFetcher
	if storedFetcher == nil {
		storedFetcher = empty_fetcher.EmptyFetcher{}
	}

	e := &exchange{
		adapterMap:          adapters,
		bidderInfo:          infos,
		me:                  me,
		privacy:             deps.Privacy,
		currencyConverter:   currency.NewRateConverter(serverRates),
		serverRates:         serverRates,
		categoryMapper:      categories.NewMapper(deps.CategoryFetcher),
		storedFetcher:       storedFetcher,
		floorFetcher:        deps.FloorFetcher,
		timeoutResolver:     resolver,
		bidValidator:        NewResponseBidValidator(),
		mediaTypeProcessor:  NewMediaTypeProcessor(),
		idGenerator:         uuidGenerator{},
		clock:               clock.New(),
		debugAllowed:        cfg.Debug.Allow,
		strictAppSiteDooh:   cfg.RequestValidation.StrictAppSiteDooh,
		floorsEnabled:       cfg.PriceFloors.Enabled,
		processingOverhead:  cfg.AuctionTimeouts.ProcessingOverhead,
		cacheExpectedMillis: int64(cfg.CacheURL.ExpectedTimeMillis),
	}

	var bidIDGenerator IdGenerator
	if cfg.GenerateBidID.Type == config.BidIDGeneratorUUID {
		bidIDGenerator = e.idGenerator
	}
	e.responseCreator = NewBidResponseCreator(deps.Cache, cfg, infos, storedFetcher, bidIDGenerator)
	return e, nil
}

// bidderCall is a bidder request which went through the bidder request hooks. A rejected call
// already carries its participation.
type bidderCall struct {
	request       BidderRequest
	participation *entities.AuctionParticipation
}

type bidderResult struct {
	index    int
	response *entities.BidderResponse
}

// dispatchSettings are shared by every bidder call of an auction.
type dispatchSettings struct {
	tmax        int64
	start       time.Time
	needsCache  bool
	debug       bool
	source      metrics.DemandSource
	requestType metrics.RequestType
	pubID       string
	// numBidders is the number of bidders called concurrently. Each gets its share of tmax.
	numBidders int
}

func (e *exchange) HoldAuction(ctx context.Context, auctionCtx *AuctionContext) (*AuctionContext, error) {
	if auctionCtx == nil || auctionCtx.BidRequest == nil {
		return nil, &errortypes.BadInput{Message: "auction context carries no bid request"}
	}

	req := ortb.CloneBidRequest(auctionCtx.BidRequest)
	account := auctionCtx.Account
	var warnings []error

	siteAppWarnings, err := validateSiteAppDooh(req, e.strictAppSiteDooh, e.me)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, siteAppWarnings...)

	reqExt, err := openrtb_ext.ParseExtRequest(req)
	if err != nil {
		return nil, &errortypes.BadInput{Message: err.Error()}
	}

	targetCurrency, currencyWarnings := resolveAuctionCurrency(req)
	warnings = append(warnings, currencyWarnings...)
	conversions := currency.GetAuctionCurrencyRates(e.serverRates, reqExt.Prebid.CurrencyConversions)

	if e.floorsEnabled {
		floorErrs := floors.EnrichWithPriceFloors(req, account, conversions, e.floorFetcher)
		warnings = append(warnings, toWarnings(floorErrs)...)
	}

	debugEnabled, debugWarnings := e.resolveDebug(req, reqExt, account)
	warnings = append(warnings, debugWarnings...)
	e.me.RecordDebugRequest(debugEnabled, account.ID)

	var requestedTMax *int64
	if req.TMax > 0 {
		requestedTMax = &req.TMax
	}
	tmax := e.timeoutResolver.LimitToMax(requestedTMax)

	storedResponses, storedErrs := stored_responses.ProcessStoredResponses(ctx, req.Imp, e.storedFetcher)
	if len(storedErrs) > 0 {
		return nil, errortypes.NewAggregateErrors("stored responses", storedErrs)
	}
	if len(storedResponses.BidderImps) > 0 {
		e.me.RecordStoredResponse(account.ID)
	}

	bidderRequests, err := e.buildBidderRequests(ctx, auctionCtx, req, reqExt, storedResponses)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, bidderRequests.warnings...)
	e.me.RecordRequestPrivacy(bidderRequests.privacyLabels)

	multiBid, multiBidErrs := openrtb_ext.ValidateAndBuildExtMultiBid(&reqExt.Prebid)
	for _, multiBidErr := range multiBidErrs {
		warnings = append(warnings, &errortypes.DebugWarning{
			Message:     multiBidErr.Error(),
			WarningCode: errortypes.MultiBidWarningCode,
		})
	}

	hookExecutor := auctionCtx.HookExecutor
	if hookExecutor == nil {
		hookExecutor = hookexecution.EmptyHookExecutor{}
	}
	hookExecutor.SetAccount(&account)

	cacheInfo := newCacheInfo(reqExt.Prebid.Cache)
	calls := runBidderRequestStage(bidderRequests.requests, hookExecutor)
	participations := e.getAllBids(ctx, calls, dispatchSettings{
		tmax:        tmax,
		start:       auctionCtx.StartTime,
		needsCache:  cacheInfo.DoCaching,
		debug:       debugEnabled,
		source:      demandSource(req),
		requestType: auctionCtx.RequestType,
		pubID:       account.ID,
	})

	enforcer := floors.NewEnforcer(req, account, conversions)
	for i, participation := range participations {
		participation, err = e.processParticipation(participation, req, reqExt, targetCurrency, hookExecutor, account.ID)
		if err != nil {
			return nil, err
		}

		bidsBefore := len(participation.Response.Bids())
		participation = enforcer.Enforce(participation)
		e.recordRejections(account.ID, participation.Bidder, bidsBefore-len(participation.Response.Bids()), metrics.RejectedBidFloors)

		bidsBefore = len(participation.Response.Bids())
		participation = dsa.Enforce(req, participation)
		e.recordRejections(account.ID, participation.Bidder, bidsBefore-len(participation.Response.Bids()), metrics.RejectedBidDSA)

		participations[i] = dedupDealBids(participation)
	}

	responses := make([]*entities.BidderResponse, 0, len(participations))
	for _, participation := range participations {
		responses = append(responses, participation.Response)
	}

	var mapping *categories.MappingResult
	if targeting := reqExt.Prebid.Targeting; targeting != nil && targeting.IncludeBrandCategory != nil {
		mapping, err = e.categoryMapper.CreateCategoryMapping(ctx, responses, req, targeting, reqExt.Prebid.SupportDeals)
		if err != nil {
			return nil, fmt.Errorf("error in category mapping : %s", err.Error())
		}
		for _, rejection := range mapping.Rejections {
			warnings = append(warnings, &errortypes.Warning{
				Message:     rejection,
				WarningCode: errortypes.CategoryMappingWarningCode,
			})
		}
		if len(mapping.BidderResponses) == len(participations) {
			responses = mapping.BidderResponses
			for i := range participations {
				participations[i] = participations[i].WithResponse(responses[i])
			}
		}
	}

	result := *auctionCtx
	result.BidRequest = req
	result.Debug = debugEnabled
	result.TMax = tmax
	result.AuctionParticipations = participations
	result.CategoryMapping = mapping
	result.Warnings = append(append([]error{}, auctionCtx.Warnings...), warnings...)
	result.HookExecutor = hookExecutor

	bidResponse, err := e.responseCreator.Create(ctx, responses, &result, reqExt, targetCurrency, cacheInfo, multiBid)
	if err != nil {
		return nil, err
	}
	result.BidResponse = hookExecutor.ExecuteAuctionResponseStage(bidResponse)
	return &result, nil
}

// resolveAuctionCurrency picks the currency every bid is converted to.
func resolveAuctionCurrency(req *openrtb2.BidRequest) (string, []error) {
	if len(req.Cur) == 0 {
		return defaultCurrency, nil
	}
	for _, cur := range req.Cur[1:] {
		if !strings.EqualFold(cur, req.Cur[0]) {
			return req.Cur[0], []error{&errortypes.Warning{
				Message:     fmt.Sprintf("a single currency (%s) has been chosen for the request. ORTB 2.6 requires that all responses are in the same currency.", req.Cur[0]),
				WarningCode: errortypes.MultipleCurrencyWarningCode,
			}}
		}
	}
	return req.Cur[0], nil
}

// resolveDebug turns debug on when the request asks for it and both the host and the account allow it.
func (e *exchange) resolveDebug(req *openrtb2.BidRequest, reqExt *openrtb_ext.ExtRequest, account config.Account) (bool, []error) {
	if req.Test != 1 && !reqExt.Prebid.Debug {
		return false, nil
	}
	if !e.debugAllowed {
		return false, nil
	}
	if !account.DebugAllow {
		return false, []error{&errortypes.Warning{
			Message:     "debug turned off for account",
			WarningCode: errortypes.AccountLevelDebugDisabledWarningCode,
		}}
	}
	return true, nil
}

func runBidderRequestStage(requests []BidderRequest, executor hookexecution.StageExecutor) []bidderCall {
	calls := make([]bidderCall, 0, len(requests))
	for _, request := range requests {
		participation := &entities.AuctionParticipation{
			Bidder:     request.BidderName,
			CoreBidder: request.BidderCoreName,
			Request:    request.BidRequest,
		}

		replaced, reject := executor.ExecuteBidderRequestStage(request.BidRequest, request.BidderName.String())
		if reject != nil {
			participation.RequestRejected = true
			participation.Response = &entities.BidderResponse{
				Bidder:  request.BidderName,
				SeatBid: &entities.PbsOrtbSeatBid{Currency: defaultCurrency, Seat: request.BidderName.String()},
				Errors:  []error{reject},
			}
		} else if replaced != nil {
			request.BidRequest = replaced
			participation.Request = replaced
		}
		calls = append(calls, bidderCall{request: request, participation: participation})
	}
	return calls
}

// getAllBids calls every bidder which was not rejected in its own goroutine and waits for all of
// them. The participations keep the order of the calls.
func (e *exchange) getAllBids(ctx context.Context, calls []bidderCall, settings dispatchSettings) []*entities.AuctionParticipation {
	participations := make([]*entities.AuctionParticipation, len(calls))
	chBids := make(chan bidderResult, len(calls))

	dispatched := 0
	for _, call := range calls {
		if !call.participation.RequestRejected {
			dispatched++
		}
	}
	settings.numBidders = dispatched

	for i, call := range calls {
		if call.participation.RequestRejected {
			participations[i] = call.participation
			continue
		}
		go e.recoverSafely(calls, func(index int, call bidderCall) {
			chBids <- e.callBidder(ctx, index, call, settings)
		}, chBids, settings.pubID)(i, call)
	}

	for i := 0; i < dispatched; i++ {
		result := <-chBids
		participations[result.index] = calls[result.index].participation.WithResponse(result.response)
	}
	return participations
}

func (e *exchange) callBidder(ctx context.Context, index int, call bidderCall, settings dispatchSettings) bidderResult {
	request := call.request
	labels := metrics.AdapterLabels{
		Source:  settings.source,
		RType:   settings.requestType,
		Adapter: request.BidderCoreName,
		PubID:   settings.pubID,
	}
	defer func() {
		e.me.RecordAdapterRequest(labels)
	}()

	overhead := e.processingOverhead + e.clock.Since(settings.start).Milliseconds()
	if settings.needsCache {
		overhead += e.cacheExpectedMillis
	}
	bidderTMax := e.timeoutResolver.AdjustForBidder(settings.tmax, settings.numBidders, overhead, 1.0)

	bidRequest := *request.BidRequest
	bidRequest.TMax = bidderTMax
	request.BidRequest = &bidRequest

	bidderCtx, cancel := context.WithTimeout(ctx, time.Duration(bidderTMax)*time.Millisecond)
	defer cancel()

	var errs []error
	bidderDebug := settings.debug
	if bidderDebug && !e.bidderInfo[request.BidderCoreName.String()].DebugAllowed() {
		bidderDebug = false
		errs = append(errs, &errortypes.Warning{
			Message:     "debug turned off for bidder",
			WarningCode: errortypes.BidderLevelDebugDisabledWarningCode,
		})
	}

	start := e.clock.Now()
	seatBid, bidErrs := e.adapterMap[request.BidderCoreName].requestBid(bidderCtx, request, bidderDebug)
	elapsed := e.clock.Since(start)
	errs = append(errs, bidErrs...)

	e.me.RecordAdapterTime(labels, elapsed)
	labels.AdapterBids = bidsToMetric(seatBid)
	labels.AdapterErrors = errorsToMetric(bidErrs)
	if seatBid != nil {
		for _, bid := range seatBid.Bids {
			e.me.RecordAdapterPrice(labels, bid.Bid.Price*1000)
			e.me.RecordAdapterBidReceived(labels, bid.BidType, bid.Bid.AdM != "")
		}
	}

	return bidderResult{
		index: index,
		response: &entities.BidderResponse{
			Bidder:             request.BidderName,
			SeatBid:            seatBid,
			Errors:             errs,
			ResponseTimeMillis: int(elapsed / time.Millisecond),
		},
	}
}

func (e *exchange) recoverSafely(calls []bidderCall, inner func(int, bidderCall), chBids chan bidderResult, pubID string) func(int, bidderCall) {
	return func(index int, call bidderCall) {
		defer func() {
			if r := recover(); r != nil {
				allBidders := make([]string, 0, len(calls))
				for _, c := range calls {
					allBidders = append(allBidders, c.request.BidderName.String())
				}

				glog.Errorf("OpenRTB auction recovered panic from Bidder %s: %v. "+
					"Account id: %s, All Bidders: %s, Stack trace is: %v",
					call.request.BidderCoreName, r, pubID, strings.Join(allBidders, ","), string(debug.Stack()))
				e.me.RecordAdapterPanic(metrics.AdapterLabels{Adapter: call.request.BidderCoreName, PubID: pubID})
				// Let the master request know that there is no data here
				chBids <- bidderResult{
					index: index,
					response: &entities.BidderResponse{
						Bidder: call.request.BidderName,
						Errors: []error{&errortypes.FailedToRequestBids{Message: fmt.Sprintf("bidder %s failed unexpectedly", call.request.BidderName)}},
					},
				}
			}
		}()
		inner(index, call)
	}
}

func (e *exchange) recordRejections(pubID string, bidder openrtb_ext.BidderName, count int, reason metrics.RejectedBidReason) {
	for i := 0; i < count; i++ {
		e.me.RecordRejectedBids(pubID, bidder, reason)
	}
}

func demandSource(req *openrtb2.BidRequest) metrics.DemandSource {
	switch {
	case req.App != nil:
		return metrics.DemandApp
	case req.Site != nil:
		return metrics.DemandWeb
	case req.DOOH != nil:
		return metrics.DemandDOOH
	}
	return metrics.DemandUnknown
}

func bidsToMetric(seatBid *entities.PbsOrtbSeatBid) metrics.AdapterBid {
	if seatBid != nil && len(seatBid.Bids) != 0 {
		return metrics.AdapterBidPresent
	}
	return metrics.AdapterBidNone
}

func errorsToMetric(errs []error) map[metrics.AdapterError]struct{} {
	if len(errs) == 0 {
		return nil
	}
	ret := make(map[metrics.AdapterError]struct{}, len(errs))
	var s struct{}
	for _, err := range errs {
		switch errortypes.ReadCode(err) {
		case errortypes.TimeoutErrorCode:
			ret[metrics.AdapterErrorTimeout] = s
		case errortypes.BadInputErrorCode:
			ret[metrics.AdapterErrorBadInput] = s
		case errortypes.BadServerResponseErrorCode:
			ret[metrics.AdapterErrorBadServerResponse] = s
		case errortypes.FailedToRequestBidsErrorCode:
			ret[metrics.AdapterErrorFailedToRequestBids] = s
		case errortypes.InvalidBidErrorCode:
			ret[metrics.AdapterErrorValidation] = s
		default:
			ret[metrics.AdapterErrorUnknown] = s
		}
	}
	return ret
}

func errsToBidderErrors(errs []error) []openrtb_ext.ExtBidderMessage {
	sErr := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, err := range errortypes.FatalOnly(errs) {
		sErr = append(sErr, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	return sErr
}

// errsToBidderWarnings drops debug scoped warnings unless the auction runs in debug mode.
func errsToBidderWarnings(errs []error, debugEnabled bool) []openrtb_ext.ExtBidderMessage {
	sWarn := make([]openrtb_ext.ExtBidderMessage, 0)
	for _, warn := range errortypes.WarningOnly(errs) {
		if !debugEnabled && errortypes.ReadScope(warn) == errortypes.ScopeDebug {
			continue
		}
		sWarn = append(sWarn, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(warn),
			Message: warn.Error(),
		})
	}
	return sWarn
}

