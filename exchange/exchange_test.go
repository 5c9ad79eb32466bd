package exchange

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/openrtb/v20/openrtb3"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/hooks/hookexecution"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fixedBidder answers every request with the same seat.
type fixedBidder struct {
	seatBid  *entities.PbsOrtbSeatBid
	errs     []error
	panics   bool
	requests []*openrtb2.BidRequest
}

func (b *fixedBidder) requestBid(ctx context.Context, bidderRequest BidderRequest, debug bool) (*entities.PbsOrtbSeatBid, []error) {
	if b.panics {
		panic("bidder blew up")
	}
	b.requests = append(b.requests, bidderRequest.BidRequest)
	if b.seatBid == nil {
		return nil, b.errs
	}
	seatBid := *b.seatBid
	seatBid.Bids = make([]*entities.PbsOrtbBid, 0, len(b.seatBid.Bids))
	for _, bid := range b.seatBid.Bids {
		seatBid.Bids = append(seatBid.Bids, bid.Clone())
	}
	return &seatBid, b.errs
}

// passThroughPrivacy lets every bidder see the request user and device.
type passThroughPrivacy struct {
	blocked map[string]bool
}

func (p passThroughPrivacy) Mask(ctx context.Context, mctx privacy.MaskContext, bidderToUser map[string]*openrtb2.User, bidders []string, aliases map[string]string) ([]privacy.BidderPrivacyResult, error) {
	results := make([]privacy.BidderPrivacyResult, 0, len(bidders))
	for _, bidder := range bidders {
		results = append(results, privacy.BidderPrivacyResult{
			Bidder:  bidder,
			User:    mctx.BidRequest.User,
			Device:  mctx.BidRequest.Device,
			Blocked: p.blocked[bidder],
		})
	}
	return results, nil
}

func newTestExchange(t *testing.T, adapters map[openrtb_ext.BidderName]AdaptedBidder, deps Collaborators) Exchange {
	t.Helper()
	cfg := &config.Configuration{
		AuctionTimeouts: config.AuctionTimeouts{Min: 50, Max: 1000},
		GenerateBidID:   config.BidIDGenerator{Type: config.BidIDGeneratorNone},
		CurrencyConverter: config.CurrencyConverter{
			Rates: map[string]map[string]float64{"USD": {"EUR": 0.5}},
		},
		Debug: config.Debug{Allow: true},
	}
	infos := config.BidderInfos{}
	for name := range adapters {
		infos[name.String()] = config.BidderInfo{}
	}
	if deps.Privacy == nil {
		deps.Privacy = passThroughPrivacy{}
	}
	ex, err := NewExchange(adapters, cfg, &metrics.NilMetricsEngine{}, infos, deps)
	require.NoError(t, err)
	return ex
}

func bannerSeat(bids ...*openrtb2.Bid) *entities.PbsOrtbSeatBid {
	seatBid := &entities.PbsOrtbSeatBid{Currency: "USD"}
	for _, bid := range bids {
		seatBid.Bids = append(seatBid.Bids, &entities.PbsOrtbBid{Bid: bid, BidType: openrtb_ext.BidTypeBanner})
	}
	return seatBid
}

func auctionRequest(ext string) *openrtb2.BidRequest {
	return &openrtb2.BidRequest{
		ID:   "request",
		Site: &openrtb2.Site{Page: "http://example.com"},
		Imp: []openrtb2.Imp{{
			ID:     "imp",
			Banner: &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}},
			Ext:    json.RawMessage(`{"prebid":{"bidder":{"appnexus":{"placementId":1},"rubicon":{"zoneId":2}}}}`),
		}},
		TMax: 500,
		Ext:  json.RawMessage(ext),
	}
}

func TestHoldAuction(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "apn", ImpID: "imp", Price: 1.5, CrID: "cr", AdM: "<ad/>", W: 300, H: 250})}
	rubicon := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "rub", ImpID: "imp", Price: 0.8, CrID: "cr", AdM: "<ad/>", W: 300, H: 250})}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus, "rubicon": rubicon}, Collaborators{})

	result, err := ex.HoldAuction(context.Background(), &AuctionContext{
		BidRequest: auctionRequest(`{"prebid":{"targeting":{"pricegranularity":"low","includewinners":true,"includebidderkeys":false}}}`),
		Account:    config.Account{ID: "acct"},
		StartTime:  time.Now(),
	})

	require.NoError(t, err)
	response := result.BidResponse
	require.NotNil(t, response)
	assert.Equal(t, "request", response.ID)
	assert.Equal(t, "USD", response.Cur)
	require.Len(t, response.SeatBid, 2)
	assert.Equal(t, "appnexus", response.SeatBid[0].Seat)
	assert.Equal(t, "rubicon", response.SeatBid[1].Seat)

	winnerExt := response.SeatBid[0].Bid[0].Ext
	assert.Equal(t, "1.50", gjson.GetBytes(winnerExt, "prebid.targeting.hb_pb").String())
	assert.Equal(t, "appnexus", gjson.GetBytes(winnerExt, "prebid.targeting.hb_bidder").String())
	assert.Equal(t, "banner", gjson.GetBytes(winnerExt, "prebid.type").String())
	assert.False(t, gjson.GetBytes(response.SeatBid[1].Bid[0].Ext, "prebid.targeting").Exists(), "the loser gets no winner keys")

	assert.Equal(t, int64(500), result.TMax)
	assert.True(t, gjson.GetBytes(response.Ext, "responsetimemillis.appnexus").Exists())
	assert.Equal(t, int64(500), gjson.GetBytes(response.Ext, "tmaxrequest").Int())

	require.Len(t, appnexus.requests, 1)
	assert.JSONEq(t, `{"bidder":{"placementId":1}}`, string(appnexus.requests[0].Imp[0].Ext))
	assert.LessOrEqual(t, appnexus.requests[0].TMax, int64(500), "bidders get the time left")
}

func TestHoldAuctionCurrencyConversion(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "apn", ImpID: "imp", Price: 2, CrID: "cr", AdM: "<ad/>"})}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus}, Collaborators{})

	req := auctionRequest(`{}`)
	req.Cur = []string{"EUR"}
	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, StartTime: time.Now()})

	require.NoError(t, err)
	response := result.BidResponse
	assert.Equal(t, "EUR", response.Cur)
	require.Len(t, response.SeatBid, 1)
	bid := response.SeatBid[0].Bid[0]
	assert.Equal(t, 1.0, bid.Price)
	assert.Equal(t, 2.0, gjson.GetBytes(bid.Ext, "origbidcpm").Float())
	assert.Equal(t, "USD", gjson.GetBytes(bid.Ext, "origbidcur").String())
}

func TestHoldAuctionNoBids(t *testing.T) {
	appnexus := &fixedBidder{errs: []error{&errortypes.BadServerResponse{Message: "down"}}}
	rubicon := &fixedBidder{panics: true}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus, "rubicon": rubicon}, Collaborators{})

	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: auctionRequest(`{}`), StartTime: time.Now()})

	require.NoError(t, err)
	response := result.BidResponse
	assert.Empty(t, response.SeatBid)
	assert.Equal(t, openrtb3.NoBidUnknownError.Ptr(), response.NBR)
	assert.Equal(t, int64(errortypes.BadServerResponseErrorCode), gjson.GetBytes(response.Ext, "errors.appnexus.0.code").Int())
	assert.Equal(t, int64(errortypes.FailedToRequestBidsErrorCode), gjson.GetBytes(response.Ext, "errors.rubicon.0.code").Int())
}

func TestHoldAuctionWarnings(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat()}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus}, Collaborators{})

	req := auctionRequest(`{}`)
	req.Imp[0].Ext = json.RawMessage(`{"prebid":{"bidder":{"appnexus":{},"unknown":{}}}}`)
	req.App = &openrtb2.App{ID: "app"}
	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, StartTime: time.Now()})

	require.NoError(t, err)
	codes := make([]int, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		codes = append(codes, errortypes.ReadCode(warning))
	}
	assert.Contains(t, codes, errortypes.InvalidBidderWarningCode)
	assert.Nil(t, result.BidRequest.Site, "app is kept over site")
	assert.NotNil(t, req.Site, "the caller request is not changed")
	assert.Len(t, gjson.GetBytes(result.BidResponse.Ext, "warnings.prebid").Array(), 2)
}

func TestHoldAuctionDebug(t *testing.T) {
	appnexus := &fixedBidder{seatBid: &entities.PbsOrtbSeatBid{
		Currency:  "USD",
		HttpCalls: []*openrtb_ext.ExtHttpCall{{Uri: "http://appnexus.com", Status: 204}},
	}}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus}, Collaborators{})

	testCases := []struct {
		description   string
		account       config.Account
		expectedDebug bool
	}{
		{description: "allowed", account: config.Account{DebugAllow: true}, expectedDebug: true},
		{description: "account forbids", account: config.Account{DebugAllow: false}, expectedDebug: false},
	}

	for _, test := range testCases {
		req := auctionRequest(`{"prebid":{"debug":true}}`)
		req.Imp[0].Ext = json.RawMessage(`{"prebid":{"bidder":{"appnexus":{}}}}`)

		result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, Account: test.account, StartTime: time.Now()})

		require.NoError(t, err, test.description)
		assert.Equal(t, test.expectedDebug, result.Debug, test.description)
		debugExt := gjson.GetBytes(result.BidResponse.Ext, "debug")
		assert.Equal(t, test.expectedDebug, debugExt.Get("resolvedrequest").Exists(), test.description)
		assert.Equal(t, test.expectedDebug, debugExt.Get("httpcalls.appnexus").Exists(), test.description)
	}
}

func TestHoldAuctionPrivacyBlocked(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat()}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus}, Collaborators{
		Privacy: passThroughPrivacy{blocked: map[string]bool{"appnexus": true}},
	})

	req := auctionRequest(`{}`)
	req.Imp[0].Ext = json.RawMessage(`{"prebid":{"bidder":{"appnexus":{}}}}`)
	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, StartTime: time.Now()})

	require.NoError(t, err)
	assert.Empty(t, appnexus.requests)
	assert.Empty(t, result.AuctionParticipations)
}

func TestHoldAuctionBadRequest(t *testing.T) {
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": &fixedBidder{}}, Collaborators{})

	_, err := ex.HoldAuction(context.Background(), &AuctionContext{})
	assert.IsType(t, &errortypes.BadInput{}, err)

	_, err = ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: auctionRequest(`{"prebid":`)})
	assert.IsType(t, &errortypes.BadInput{}, err)
}

// auctionHooks rejects the bidder request of one bidder and can replace the auction response.
type auctionHooks struct {
	hookexecution.EmptyHookExecutor
	rejectBidder string
	response     *openrtb2.BidResponse
}

func (h auctionHooks) ExecuteBidderRequestStage(request *openrtb2.BidRequest, bidder string) (*openrtb2.BidRequest, *hookexecution.RejectError) {
	if bidder == h.rejectBidder {
		return nil, &hookexecution.RejectError{NBR: 123, Stage: "bidder_request"}
	}
	return request, nil
}

func (h auctionHooks) ExecuteAuctionResponseStage(response *openrtb2.BidResponse) *openrtb2.BidResponse {
	if h.response != nil {
		return h.response
	}
	return response
}

func findSeat(response *openrtb2.BidResponse, seat string) *openrtb2.SeatBid {
	for i := range response.SeatBid {
		if response.SeatBid[i].Seat == seat {
			return &response.SeatBid[i]
		}
	}
	return nil
}

func TestHoldAuctionBidderRequestHookRejects(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "apn", ImpID: "imp", Price: 1.5, CrID: "cr", AdM: "<ad/>"})}
	rubicon := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "rub", ImpID: "imp", Price: 0.8, CrID: "cr", AdM: "<ad/>"})}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus, "rubicon": rubicon}, Collaborators{})

	result, err := ex.HoldAuction(context.Background(), &AuctionContext{
		BidRequest:   auctionRequest(`{}`),
		StartTime:    time.Now(),
		HookExecutor: auctionHooks{rejectBidder: "appnexus"},
	})

	require.NoError(t, err)
	assert.Empty(t, appnexus.requests, "a rejected bidder is never called")
	assert.Len(t, rubicon.requests, 1)

	var rejected *entities.AuctionParticipation
	for _, participation := range result.AuctionParticipations {
		if participation.Bidder == "appnexus" {
			rejected = participation
		}
	}
	require.NotNil(t, rejected)
	assert.True(t, rejected.RequestRejected)
	assert.Empty(t, rejected.Response.Bids())

	assert.Nil(t, findSeat(result.BidResponse, "appnexus"))
	assert.NotNil(t, findSeat(result.BidResponse, "rubicon"))
}

func TestHoldAuctionResponseHookReplacesResponse(t *testing.T) {
	appnexus := &fixedBidder{seatBid: bannerSeat(&openrtb2.Bid{ID: "apn", ImpID: "imp", Price: 1.5, CrID: "cr", AdM: "<ad/>"})}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus}, Collaborators{})
	replaced := &openrtb2.BidResponse{ID: "replaced"}

	req := auctionRequest(`{}`)
	req.Imp[0].Ext = json.RawMessage(`{"prebid":{"bidder":{"appnexus":{}}}}`)
	result, err := ex.HoldAuction(context.Background(), &AuctionContext{
		BidRequest:   req,
		StartTime:    time.Now(),
		HookExecutor: auctionHooks{response: replaced},
	})

	require.NoError(t, err)
	assert.Same(t, replaced, result.BidResponse)
}

func TestHoldAuctionSplitsTMaxAcrossDispatchedBidders(t *testing.T) {
	bidders := map[openrtb_ext.BidderName]AdaptedBidder{
		"appnexus": &fixedBidder{seatBid: bannerSeat()},
		"rubicon":  &fixedBidder{seatBid: bannerSeat()},
		"openx":    &fixedBidder{seatBid: bannerSeat()},
	}
	ex := newTestExchange(t, bidders, Collaborators{})
	mockClock := clock.NewMock()
	ex.(*exchange).clock = mockClock

	testCases := []struct {
		description  string
		rejectBidder string
		expectedTMax int64
	}{
		{description: "three bidders share tmax", expectedTMax: 300},
		{description: "a rejected bidder takes no share", rejectBidder: "openx", expectedTMax: 450},
	}

	for _, test := range testCases {
		for _, bidder := range bidders {
			bidder.(*fixedBidder).requests = nil
		}
		req := auctionRequest(`{}`)
		req.TMax = 900
		req.Imp[0].Ext = json.RawMessage(`{"prebid":{"bidder":{"appnexus":{},"rubicon":{},"openx":{}}}}`)

		_, err := ex.HoldAuction(context.Background(), &AuctionContext{
			BidRequest:   req,
			StartTime:    mockClock.Now(),
			HookExecutor: auctionHooks{rejectBidder: test.rejectBidder},
		})

		require.NoError(t, err, test.description)
		for name, bidder := range bidders {
			requests := bidder.(*fixedBidder).requests
			if name.String() == test.rejectBidder {
				assert.Empty(t, requests, test.description)
				continue
			}
			require.Len(t, requests, 1, test.description)
			assert.Equal(t, test.expectedTMax, requests[0].TMax, "%s: %s", test.description, name)
		}
	}
}

func TestHoldAuctionCachesAllBidsInOneCall(t *testing.T) {
	bids := func(prefix string, price float64) *entities.PbsOrtbSeatBid {
		return bannerSeat(
			&openrtb2.Bid{ID: prefix + "-1", ImpID: "imp-1", Price: price, CrID: "cr", AdM: "<ad/>"},
			&openrtb2.Bid{ID: prefix + "-2", ImpID: "imp-2", Price: price + 1, CrID: "cr", AdM: "<ad/>"},
		)
	}
	appnexus := &fixedBidder{seatBid: bids("apn", 1)}
	rubicon := &fixedBidder{seatBid: bids("rub", 2)}
	cache := &fakeCacheService{}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus, "rubicon": rubicon}, Collaborators{Cache: cache})

	req := auctionRequest(`{"prebid":{"cache":{"bids":{}},"targeting":{"pricegranularity":"medium"}}}`)
	imp := req.Imp[0]
	req.Imp = []openrtb2.Imp{imp, imp}
	req.Imp[0].ID = "imp-1"
	req.Imp[1].ID = "imp-2"

	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, StartTime: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, 1, cache.calls)
	cachedIDs := make([]string, 0, len(cache.cached))
	for _, bid := range cache.cached {
		cachedIDs = append(cachedIDs, bid.Bid.ID)
	}
	assert.ElementsMatch(t, []string{"apn-1", "apn-2", "rub-1", "rub-2"}, cachedIDs)

	winner := findSeat(result.BidResponse, "rubicon")
	require.NotNil(t, winner)
	for _, bid := range winner.Bid {
		assert.Equal(t, "uuid-"+bid.ID, gjson.GetBytes(bid.Ext, "prebid.targeting.hb_cache_id").String())
	}
}

func TestHoldAuctionCategoryDurationPerBidder(t *testing.T) {
	videoSeat := func(price float64, duration int) *entities.PbsOrtbSeatBid {
		return &entities.PbsOrtbSeatBid{Currency: "USD", Bids: []*entities.PbsOrtbBid{{
			Bid:      &openrtb2.Bid{ID: "1", ImpID: "imp", Price: price, CrID: "cr", AdM: "<VAST/>"},
			BidType:  openrtb_ext.BidTypeVideo,
			BidVideo: &openrtb_ext.ExtBidPrebidVideo{Duration: duration},
		}}}
	}
	appnexus := &fixedBidder{seatBid: videoSeat(1, 10)}
	rubicon := &fixedBidder{seatBid: videoSeat(3, 25)}
	ex := newTestExchange(t, map[openrtb_ext.BidderName]AdaptedBidder{"appnexus": appnexus, "rubicon": rubicon}, Collaborators{})

	req := auctionRequest(`{"prebid":{"targeting":{"pricegranularity":"medium","includebidderkeys":true,"truncateattrchars":40,"durationrangesec":[15,30],"includebrandcategory":{"primaryadserver":1,"withcategory":false}}}}`)
	req.Imp[0].Banner = nil
	req.Imp[0].Video = &openrtb2.Video{MIMEs: []string{"video/mp4"}}

	result, err := ex.HoldAuction(context.Background(), &AuctionContext{BidRequest: req, StartTime: time.Now()})

	require.NoError(t, err)
	appnexusSeat := findSeat(result.BidResponse, "appnexus")
	rubiconSeat := findSeat(result.BidResponse, "rubicon")
	require.NotNil(t, appnexusSeat)
	require.NotNil(t, rubiconSeat)
	assert.Equal(t, "1.00_15s", gjson.GetBytes(appnexusSeat.Bid[0].Ext, "prebid.targeting.hb_pb_cat_dur_appnexus").String())
	assert.Equal(t, "3.00_30s", gjson.GetBytes(rubiconSeat.Bid[0].Ext, "prebid.targeting.hb_pb_cat_dur_rubicon").String())
}

func TestErrsToBidderWarnings(t *testing.T) {
	errs := []error{
		&errortypes.Warning{Message: "visible", WarningCode: errortypes.UnknownWarningCode},
		&errortypes.DebugWarning{Message: "debug only", WarningCode: errortypes.UnknownWarningCode},
		&errortypes.BadInput{Message: "fatal"},
	}

	assert.Len(t, errsToBidderWarnings(errs, false), 1)
	assert.Len(t, errsToBidderWarnings(errs, true), 2)
	assert.Equal(t, []openrtb_ext.ExtBidderMessage{{Code: errortypes.BadInputErrorCode, Message: "fatal"}}, errsToBidderErrors(errs))
}

func TestErrorsToMetric(t *testing.T) {
	errs := []error{
		&errortypes.Timeout{Message: "slow"},
		&errortypes.InvalidBid{Message: "bad"},
		&errortypes.Warning{Message: "other"},
	}
	expected := map[metrics.AdapterError]struct{}{
		metrics.AdapterErrorTimeout:    {},
		metrics.AdapterErrorValidation: {},
		metrics.AdapterErrorUnknown:    {},
	}
	assert.Equal(t, expected, errorsToMetric(errs))
	assert.Nil(t, errorsToMetric(nil))
}
