package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/adapters"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange/entities"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"golang.org/x/net/context/ctxhttp"
)

// AdaptedBidder defines the contract needed to participate in an Auction within an Exchange.
//
// This interface exists to help segregate core auction logic.
//
// Any logic which can be done _within a single Seat_ goes inside one of these.
// Any logic which _requires responses from all Seats_ goes inside the Exchange.
//
// This interface differs from adapters.Bidder to help minimize code duplication across the
// adapters.Bidder implementations.
type AdaptedBidder interface {
	// requestBid fetches bids for the given request.
	//
	// An AdaptedBidder *may* return two non-nil values here. Errors should describe situations which
	// make the bid (or no-bid) "less than ideal." Common examples include:
	//
	// 1. Connection issues.
	// 2. Imps with Media Types which this Bidder doesn't support.
	// 3. The Context timeout expired before all expected bids were returned.
	// 4. The Server sent back an unexpected Response, so some bids were ignored.
	//
	// Any errors will be user-facing in the API.
	// Error messages should help publishers understand what might account for "bad" bids.
	requestBid(ctx context.Context, bidderRequest BidderRequest, debug bool) (*entities.PbsOrtbSeatBid, []error)
}

// BidderRequest holds the bidder specific request and all other
// information needed to process that bidder request.
type BidderRequest struct {
	BidRequest     *openrtb2.BidRequest
	BidderName     openrtb_ext.BidderName
	BidderCoreName openrtb_ext.BidderName
	// BidderStoredResponses maps imp ids to the stored response answering them instead of the bidder.
	BidderStoredResponses map[string]json.RawMessage
	ImpReplaceImpId       map[string]bool
}

// BidderAdapter connects an adapters.Bidder to the outside world over HTTP.
type BidderAdapter struct {
	Bidder     adapters.Bidder
	BidderName openrtb_ext.BidderName
	Client     *http.Client
}

// AdaptBidder wraps a bidder so the exchange can call it.
func AdaptBidder(bidder adapters.Bidder, client *http.Client, name openrtb_ext.BidderName) AdaptedBidder {
	return &BidderAdapter{
		Bidder:     bidder,
		BidderName: name,
		Client:     client,
	}
}

// httpCallInfo is one bidder HTTP exchange, or a stored response standing in for one.
type httpCallInfo struct {
	request  *adapters.RequestData
	response *adapters.ResponseData
	err      error
}

func (bidder *BidderAdapter) requestBid(ctx context.Context, bidderRequest BidderRequest, debug bool) (*entities.PbsOrtbSeatBid, []error) {
	reqInfo := &adapters.ExtraRequestInfo{BidderCoreName: bidderRequest.BidderCoreName}

	var reqData []*adapters.RequestData
	var errs []error
	if len(bidderRequest.BidRequest.Imp) > 0 {
		reqData, errs = bidder.Bidder.MakeRequests(bidderRequest.BidRequest, reqInfo)
		if len(reqData) == 0 && len(bidderRequest.BidderStoredResponses) == 0 {
			// If the adapter also didn't give any errors, then we have a code bug
			if len(errs) == 0 {
				errs = append(errs, &errortypes.FailedToRequestBids{Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why"})
			}
			return nil, errs
		}
	}

	// Make any HTTP requests in parallel.
	// If the bidder only needs to make one, save some cycles by just using the current one.
	responseChannel := make(chan *httpCallInfo, len(reqData))
	if len(reqData) == 1 {
		responseChannel <- bidder.doRequest(ctx, reqData[0])
	} else {
		for _, oneReqData := range reqData {
			go func(data *adapters.RequestData) {
				responseChannel <- bidder.doRequest(ctx, data)
			}(oneReqData)
		}
	}

	calls := make([]*httpCallInfo, 0, len(reqData)+len(bidderRequest.BidderStoredResponses))
	for i := 0; i < len(reqData); i++ {
		calls = append(calls, <-responseChannel)
	}
	storedImpIDs := make([]string, 0, len(bidderRequest.BidderStoredResponses))
	for impID := range bidderRequest.BidderStoredResponses {
		storedImpIDs = append(storedImpIDs, impID)
	}
	sort.Strings(storedImpIDs)
	for _, impID := range storedImpIDs {
		calls = append(calls, prepareStoredResponse(impID, bidderRequest.BidderStoredResponses[impID]))
	}

	seatBid := &entities.PbsOrtbSeatBid{
		Bids:     make([]*entities.PbsOrtbBid, 0, len(calls)),
		Currency: defaultCurrency,
		Seat:     bidderRequest.BidderName.String(),
	}
	if debug {
		seatBid.HttpCalls = make([]*openrtb_ext.ExtHttpCall, 0, len(reqData))
	}

	for _, call := range calls {
		storedImpID, isStored := call.storedImpID()
		if debug && !isStored {
			seatBid.HttpCalls = append(seatBid.HttpCalls, makeExt(call))
		}

		if call.err != nil {
			errs = append(errs, call.err)
			continue
		}

		bidResponse, moreErrs := bidder.Bidder.MakeBids(bidderRequest.BidRequest, call.request, call.response)
		errs = append(errs, moreErrs...)
		if bidResponse == nil {
			continue
		}
		if bidResponse.Currency != "" {
			seatBid.Currency = bidResponse.Currency
		}

		for _, typedBid := range bidResponse.Bids {
			if typedBid == nil || typedBid.Bid == nil {
				continue
			}
			if isStored && bidderRequest.ImpReplaceImpId[storedImpID] {
				typedBid.Bid.ImpID = storedImpID
			}
			seatBid.Bids = append(seatBid.Bids, &entities.PbsOrtbBid{
				Bid:          typedBid.Bid,
				BidType:      typedBid.BidType,
				BidVideo:     typedBid.BidVideo,
				DealPriority: typedBid.DealPriority,
			})
		}
	}

	return seatBid, errs
}

// storedImpIDHeader marks the requests which stand in for a stored response.
const storedImpIDHeader = "X-Prebid-Stored-Imp"

func prepareStoredResponse(impID string, storedResponse json.RawMessage) *httpCallInfo {
	headers := http.Header{}
	headers.Set(storedImpIDHeader, impID)
	return &httpCallInfo{
		request: &adapters.RequestData{
			Headers: headers,
			ImpIDs:  []string{impID},
		},
		response: &adapters.ResponseData{
			StatusCode: http.StatusOK,
			Body:       storedResponse,
		},
	}
}

func (call *httpCallInfo) storedImpID() (string, bool) {
	if call.request == nil || call.request.Uri != "" {
		return "", false
	}
	impID := call.request.Headers.Get(storedImpIDHeader)
	return impID, impID != ""
}

// makeExt transforms information about the HTTP call into the contract class for the PBS response.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	ext := &openrtb_ext.ExtHttpCall{}

	if httpInfo != nil && httpInfo.request != nil {
		ext.Uri = httpInfo.request.Uri
		ext.RequestBody = string(httpInfo.request.Body)
		ext.RequestHeaders = filterHeader(httpInfo.request.Headers)

		if httpInfo.err == nil && httpInfo.response != nil {
			ext.ResponseBody = string(httpInfo.response.Body)
			ext.Status = httpInfo.response.StatusCode
		}
	}

	return ext
}

// filterHeader drops the headers which may carry credentials from the debug output.
func filterHeader(h http.Header) http.Header {
	clone := h.Clone()
	clone.Del("Authorization")
	clone.Del("Cookie")
	return clone
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Bidder interface.
func (bidder *BidderAdapter) doRequest(ctx context.Context, req *adapters.RequestData) *httpCallInfo {
	httpReq, err := http.NewRequest(req.Method, req.Uri, bytes.NewBuffer(req.Body))
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		err = &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Server responded with failure status: %d. Set request.test = 1 for debugging info.", httpResp.StatusCode),
		}
	}

	return &httpCallInfo{
		request: req,
		response: &adapters.ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
		err: err,
	}
}
