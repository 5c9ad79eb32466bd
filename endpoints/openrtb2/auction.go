package openrtb2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/buger/jsonparser"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/account"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/exchange"
	"github.com/prebid/prebid-auction/gdpr"
	"github.com/prebid/prebid-auction/hooks"
	"github.com/prebid/prebid-auction/hooks/hookexecution"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/ortb"
	"github.com/prebid/prebid-auction/privacy"
	"github.com/prebid/prebid-auction/stored_requests"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

const maxRequestSize = 512 * 1024

// NewEndpoint returns the /openrtb2/auction handler.
func NewEndpoint(
	ex exchange.Exchange,
	validator ortb.RequestValidator,
	storedFetcher stored_requests.Fetcher,
	accounts stored_requests.AccountFetcher,
	cfg *config.Configuration,
	me metrics.MetricsEngine,
	planBuilder hooks.ExecutionPlanBuilder,
) (httprouter.Handle, error) {
	if ex == nil || validator == nil || storedFetcher == nil || accounts == nil || cfg == nil || me == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}
	if planBuilder == nil {
		planBuilder = hooks.EmptyPlanBuilder{}
	}

	return httprouter.Handle((&endpointDeps{
		ex:             ex,
		validator:      validator,
		storedFetcher:  storedFetcher,
		accountFetcher: accounts,
		cfg:            cfg,
		me:             me,
		planBuilder:    planBuilder,
	}).Auction), nil
}

type endpointDeps struct {
	ex             exchange.Exchange
	validator      ortb.RequestValidator
	storedFetcher  stored_requests.Fetcher
	accountFetcher stored_requests.AccountFetcher
	cfg            *config.Configuration
	me             metrics.MetricsEngine
	planBuilder    hooks.ExecutionPlanBuilder
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	labels := metrics.Labels{
		Source:        metrics.DemandUnknown,
		RType:         metrics.ReqTypeORTB2Web,
		PubID:         metrics.PublisherUnknown,
		RequestStatus: metrics.RequestStatusOK,
	}
	defer func() {
		deps.me.RecordRequest(labels)
		deps.me.RecordRequestTime(labels, time.Since(start))
	}()

	req, errL := deps.parseRequest(r)
	if errortypes.ContainsFatalError(errL) {
		labels.RequestStatus = metrics.RequestStatusBadInput
		writeError(w, http.StatusBadRequest, errortypes.FatalOnly(errL))
		return
	}
	warnings := errL

	labels.Source, labels.RType = requestSource(req)
	deps.me.RecordImps(impLabels(req.Imp))

	ctx, cancel := context.WithDeadline(r.Context(), start.Add(time.Duration(req.TMax)*time.Millisecond))
	defer cancel()

	acct, acctErrs := account.GetAccount(ctx, deps.cfg, deps.accountFetcher, publisherID(req))
	if acct == nil {
		labels.RequestStatus = accountStatus(acctErrs)
		writeError(w, accountErrorCode(acctErrs), acctErrs)
		return
	}
	labels.PubID = acct.ID
	warnings = append(warnings, errortypes.WarningOnly(acctErrs)...)

	tcf, err := gdpr.ReadTCFContext(req, deps.cfg.GDPR.DefaultValue)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusBadInput
		writeError(w, http.StatusBadRequest, []error{err})
		return
	}
	if !deps.cfg.GDPR.Enabled {
		tcf.GDPRApplies = false
	}

	result, err := deps.ex.HoldAuction(ctx, &exchange.AuctionContext{
		BidRequest:      req,
		Account:         *acct,
		RequestType:     labels.RType,
		StartTime:       start,
		TCF:             tcf,
		ActivityControl: privacy.NewActivityControl(&acct.Privacy),
		HookExecutor:    hookexecution.NewHookExecutor(deps.planBuilder, hookexecution.EndpointAuction, deps.me),
		Warnings:        warnings,
	})
	if err != nil {
		if errortypes.ReadCode(err) == errortypes.BadInputErrorCode {
			labels.RequestStatus = metrics.RequestStatusBadInput
			writeError(w, http.StatusBadRequest, []error{err})
			return
		}
		labels.RequestStatus = metrics.RequestStatusErr
		glog.Errorf("/openrtb2/auction critical error for account %s: %v", acct.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Critical error while running the auction: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result.BidResponse); err != nil {
		labels.RequestStatus = metrics.RequestStatusNetworkErr
		glog.Warningf("/openrtb2/auction failed to send response: %v", err)
	}
}

// parseRequest turns the HTTP request into an OpenRTB request with stored requests merged in and
// defaults applied. The request is only usable when the errors hold no fatal error.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (*openrtb2.BidRequest, []error) {
	body, err := io.ReadAll(io.LimitReader(httpRequest.Body, maxRequestSize+1))
	if err != nil {
		return nil, []error{err}
	}
	if len(body) > maxRequestSize {
		return nil, []error{fmt.Errorf("request size exceeded max size of %d bytes", maxRequestSize)}
	}

	body, impStored, errL := deps.processStoredRequests(httpRequest.Context(), body)
	if len(errL) > 0 {
		return nil, errL
	}

	req := &openrtb2.BidRequest{}
	if err := jsonutil.Unmarshal(body, req); err != nil {
		return nil, []error{&errortypes.BadInput{Message: err.Error()}}
	}

	for i := range req.Imp {
		if stored, ok := impStored[i]; ok {
			if err := mergeImp(&req.Imp[i], stored); err != nil {
				return nil, []error{err}
			}
		}
	}

	if err := ortb.SetDefaults(req, int(deps.cfg.AuctionTimeouts.Default)); err != nil {
		return nil, []error{&errortypes.BadInput{Message: err.Error()}}
	}

	return req, deps.validateRequest(req)
}

// processStoredRequests merges the stored request named by ext.prebid.storedrequest.id under the
// body and returns the stored imps by imp index, to be merged after the body is decoded.
func (deps *endpointDeps) processStoredRequests(ctx context.Context, body []byte) ([]byte, map[int]json.RawMessage, []error) {
	var requestIDs []string
	storedRequestID, err := jsonparser.GetString(body, "ext", "prebid", "storedrequest", "id")
	if err == nil && storedRequestID != "" {
		requestIDs = []string{storedRequestID}
	}

	impIDsByIndex := make(map[int]string)
	var impIDs []string
	index := 0
	_, err = jsonparser.ArrayEach(body, func(imp []byte, _ jsonparser.ValueType, _ int, _ error) {
		if id, err := jsonparser.GetString(imp, "ext", "prebid", "storedrequest", "id"); err == nil && id != "" {
			impIDsByIndex[index] = id
			impIDs = append(impIDs, id)
		}
		index++
	}, "imp")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil, []error{&errortypes.BadInput{Message: fmt.Sprintf("request.imp is invalid: %v", err)}}
	}

	if len(requestIDs) == 0 && len(impIDs) == 0 {
		return body, nil, nil
	}

	storedRequests, storedImps, errL := deps.storedFetcher.FetchRequests(ctx, requestIDs, impIDs)
	if len(errL) > 0 {
		return nil, nil, toBadInput(errL)
	}

	if len(requestIDs) > 0 {
		merged, err := jsonpatch.MergePatch(storedRequests[storedRequestID], body)
		if err != nil {
			return nil, nil, []error{&errortypes.BadInput{Message: fmt.Sprintf("stored request %s could not be merged: %v", storedRequestID, err)}}
		}
		body = merged
	}

	impStored := make(map[int]json.RawMessage, len(impIDsByIndex))
	for i, id := range impIDsByIndex {
		impStored[i] = storedImps[id]
	}
	return body, impStored, nil
}

// mergeImp lays the imp over its stored imp. The imp id of the stored imp survives an empty id.
func mergeImp(imp *openrtb2.Imp, stored json.RawMessage) error {
	impJSON, err := json.Marshal(imp)
	if err != nil {
		return err
	}

	merged, err := jsonpatch.MergePatch(stored, impJSON)
	if err != nil {
		return &errortypes.BadInput{Message: fmt.Sprintf("stored imp could not be merged: %v", err)}
	}

	id := imp.ID
	*imp = openrtb2.Imp{}
	if err := jsonutil.Unmarshal(merged, imp); err != nil {
		return &errortypes.BadInput{Message: err.Error()}
	}
	if imp.ID == "" {
		imp.ID = id
	}
	if imp.ID == "" {
		imp.ID, _ = jsonparser.GetString(stored, "id")
	}
	return nil
}

func (deps *endpointDeps) validateRequest(req *openrtb2.BidRequest) []error {
	if req.ID == "" {
		return []error{&errortypes.BadInput{Message: "request missing required field: \"id\""}}
	}
	if req.TMax < 0 {
		return []error{&errortypes.BadInput{Message: fmt.Sprintf("request.tmax must be nonnegative. Got %d", req.TMax)}}
	}
	if len(req.Imp) < 1 {
		return []error{&errortypes.BadInput{Message: "request.imp must contain at least one element."}}
	}
	if req.Site == nil && req.App == nil && req.DOOH == nil {
		return []error{&errortypes.BadInput{Message: "One of request.site or request.app or request.dooh must be defined"}}
	}

	var aliases map[string]string
	if raw, dataType, _, err := jsonparser.Get(req.Ext, "prebid", "aliases"); err == nil && dataType == jsonparser.Object {
		if err := jsonutil.Unmarshal(raw, &aliases); err != nil {
			return []error{&errortypes.BadInput{Message: fmt.Sprintf("request.ext.prebid.aliases is invalid: %v", err)}}
		}
	}

	var errL []error
	seen := make(map[string]int, len(req.Imp))
	for index := range req.Imp {
		imp := &req.Imp[index]
		if first, dup := seen[imp.ID]; dup && imp.ID != "" {
			return []error{&errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d].id and request.imp[%d].id are both %q. Imp IDs must be unique.", first, index, imp.ID)}}
		}
		seen[imp.ID] = index

		for _, err := range deps.validator.ValidateImp(imp, index, aliases) {
			if errortypes.ReadScope(err) == errortypes.ScopeDebug || isWarning(err) {
				errL = append(errL, err)
				continue
			}
			return append(errL, &errortypes.BadInput{Message: err.Error()})
		}
	}
	return errL
}

func isWarning(err error) bool {
	return len(errortypes.WarningOnly([]error{err})) == 1
}

func toBadInput(errs []error) []error {
	converted := make([]error, 0, len(errs))
	for _, err := range errs {
		converted = append(converted, &errortypes.BadInput{Message: err.Error()})
	}
	return converted
}

func requestSource(req *openrtb2.BidRequest) (metrics.DemandSource, metrics.RequestType) {
	switch {
	case req.App != nil:
		return metrics.DemandApp, metrics.ReqTypeORTB2App
	case req.DOOH != nil:
		return metrics.DemandDOOH, metrics.ReqTypeORTB2DOOH
	}
	return metrics.DemandWeb, metrics.ReqTypeORTB2Web
}

func impLabels(imps []openrtb2.Imp) metrics.ImpLabels {
	var labels metrics.ImpLabels
	for _, imp := range imps {
		labels.BannerImps = labels.BannerImps || imp.Banner != nil
		labels.VideoImps = labels.VideoImps || imp.Video != nil
		labels.AudioImps = labels.AudioImps || imp.Audio != nil
		labels.NativeImps = labels.NativeImps || imp.Native != nil
	}
	return labels
}

// publisherID reads the publisher of the site, app or dooh object, in that order.
func publisherID(req *openrtb2.BidRequest) string {
	switch {
	case req.Site != nil && req.Site.Publisher != nil:
		return req.Site.Publisher.ID
	case req.App != nil && req.App.Publisher != nil:
		return req.App.Publisher.ID
	case req.DOOH != nil && req.DOOH.Publisher != nil:
		return req.DOOH.Publisher.ID
	}
	return ""
}

func accountErrorCode(errs []error) int {
	for _, err := range errs {
		switch errortypes.ReadCode(err) {
		case errortypes.AcctRequiredErrorCode:
			return http.StatusBadRequest
		case errortypes.AccountDisabledErrorCode:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func accountStatus(errs []error) metrics.RequestStatus {
	for _, err := range errs {
		if errortypes.ReadCode(err) == errortypes.AccountDisabledErrorCode {
			return metrics.RequestStatusAccountDisabled
		}
	}
	return metrics.RequestStatusBadInput
}

func writeError(w http.ResponseWriter, status int, errs []error) {
	w.WriteHeader(status)
	for _, err := range errs {
		fmt.Fprintf(w, "Invalid request format: %s\n", err.Error())
	}
}
