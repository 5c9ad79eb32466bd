package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/firstpartydata"
	"github.com/prebid/prebid-auction/floors"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/ortb"
	"github.com/prebid/prebid-auction/privacy"
	"github.com/prebid/prebid-auction/schain"
	"github.com/prebid/prebid-auction/stored_responses"
	"github.com/tidwall/sjson"
)

// bidderRequestsResult is the outcome of splitting the auction request into bidder requests.
type bidderRequestsResult struct {
	requests      []BidderRequest
	privacyLabels metrics.PrivacyLabels
	warnings      []error
}

// validateSiteAppDooh makes sure at most one of site, app and dooh reaches the bidders. With strict
// validation a request carrying more than one fails, otherwise app is kept over site and site over
// dooh. The request is modified in place and must be a copy owned by the auction.
func validateSiteAppDooh(req *openrtb2.BidRequest, strict bool, me metrics.MetricsEngine) ([]error, error) {
	present := 0
	for _, set := range []bool{req.Site != nil, req.App != nil, req.DOOH != nil} {
		if set {
			present++
		}
	}
	if present <= 1 {
		return nil, nil
	}

	if strict {
		return nil, &errortypes.BadInput{Message: "request.site, request.app and request.dooh are mutually exclusive; only one of them may be set"}
	}

	me.RecordAlert(metrics.AlertGeneral)
	var dropped string
	switch {
	case req.App != nil:
		dropped = "site/dooh"
		req.Site = nil
		req.DOOH = nil
	default:
		dropped = "dooh"
		req.DOOH = nil
	}
	return []error{&errortypes.Warning{
		Message:     fmt.Sprintf("request carries more than one of site, app and dooh, %s removed", dropped),
		WarningCode: errortypes.UnknownWarningCode,
	}}, nil
}

// buildBidderRequests splits the auction request into one request per bidder. Intended behavior is:
//
//  1. BidRequest.Imp[].Ext will only contain the "bidder" params for the intended bidder, the "prebid"
//     object without the bidder map and the other reserved context keys.
//  2. Every BidRequest.Imp[] requested bids from the bidder who keys it.
//  3. User and device are the ones privacy enforcement allows for the bidder.
//
// Bidders which cannot take part are reported as warnings. Only an unreadable imp ext, a failing
// privacy evaluation or an invalid schain configuration fail the auction.
func (e *exchange) buildBidderRequests(ctx context.Context, auctionCtx *AuctionContext, req *openrtb2.BidRequest, reqExt *openrtb_ext.ExtRequest, storedResponses stored_responses.StoredResponses) (bidderRequestsResult, error) {
	var result bidderRequestsResult

	impsByBidder, bidderOrder, err := splitImps(req.Imp)
	if err != nil {
		return result, err
	}
	bidderOrder = appendStoredResponseBidders(bidderOrder, storedResponses)

	aliases := reqExt.Prebid.Aliases

	type eligibleBidder struct {
		name     openrtb_ext.BidderName
		coreName openrtb_ext.BidderName
		info     config.BidderInfo
		imps     []openrtb2.Imp
		stored   map[string]json.RawMessage
	}
	eligible := make([]eligibleBidder, 0, len(bidderOrder))
	for _, bidder := range bidderOrder {
		bidderName := openrtb_ext.BidderName(bidder)
		coreName := resolveBidder(bidder, aliases)

		info, known := e.bidderInfo[coreName.String()]
		if _, adapted := e.adapterMap[coreName]; !known || !adapted {
			result.warnings = append(result.warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("request.imp.ext contains unknown bidder: '%s', ignoring", bidder),
				WarningCode: errortypes.InvalidBidderWarningCode,
			})
			continue
		}
		if !info.IsEnabled() {
			result.warnings = append(result.warnings, &errortypes.BidderTemporarilyDisabled{
				Message: fmt.Sprintf("Bidder %s has been disabled on this instance of Prebid Server. Please work with the PBS host to enable this bidder again.", bidder),
			})
			continue
		}
		if info.Deprecated {
			message := info.DeprecationMessage
			if message == "" {
				message = fmt.Sprintf("Bidder %s is deprecated and will not receive requests", bidder)
			}
			result.warnings = append(result.warnings, &errortypes.Warning{
				Message:     message,
				WarningCode: errortypes.DeprecatedBidderWarningCode,
			})
			continue
		}
		if !auctionCtx.ActivityControl.Allow(privacy.ActivityFetchBids, privacy.Component{Type: privacy.ComponentTypeBidder, Name: bidder}) {
			result.warnings = append(result.warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("Bidder %s is not allowed to fetch bids by the account activity controls", bidder),
				WarningCode: errortypes.ActivityRestrictedWarningCode,
			})
			continue
		}

		stored := storedResponses.BidderImps[bidderName]
		imps := removeStoredResponseImps(impsByBidder[bidder], stored)
		if len(imps) == 0 && len(stored) == 0 {
			continue
		}

		eligible = append(eligible, eligibleBidder{
			name:     bidderName,
			coreName: coreName,
			info:     info,
			imps:     imps,
			stored:   stored,
		})
	}

	if len(eligible) == 0 {
		return result, nil
	}

	fpd, fpdErrs := firstpartydata.ResolveFPD(req, firstpartydata.ExtractBidderConfigFPD(reqExt))
	result.warnings = append(result.warnings, toWarnings(fpdErrs)...)

	bidderNames := make([]string, 0, len(eligible))
	bidderToUser := make(map[string]*openrtb2.User, len(fpd))
	for _, bidder := range eligible {
		bidderNames = append(bidderNames, bidder.name.String())
		if resolved, ok := fpd[bidder.name]; ok {
			bidderToUser[bidder.name.String()] = resolved.User
		}
	}

	privacyResults, err := e.privacy.Mask(ctx, privacy.MaskContext{
		BidRequest:      req,
		Account:         &auctionCtx.Account,
		TCF:             auctionCtx.TCF,
		ActivityControl: auctionCtx.ActivityControl,
	}, bidderToUser, bidderNames, aliases)
	if err != nil {
		return result, err
	}
	result.privacyLabels = makePrivacyLabels(req, auctionCtx.TCF, privacyResults)

	sChainWriter, err := schain.NewSChainWriter(reqExt)
	if err != nil {
		return result, err
	}

	bidderExt := cleanRequestExt(req.Ext)
	createTids := reqExt.Prebid.CreateTids != nil && *reqExt.Prebid.CreateTids

	result.requests = make([]BidderRequest, 0, len(eligible))
	for i, bidder := range eligible {
		if i >= len(privacyResults) {
			break
		}
		privacyResult := privacyResults[i]
		if privacyResult.Blocked {
			e.me.RecordAdapterGDPRRequestBlocked(bidder.coreName)
			continue
		}

		bidderReq := *req
		bidderReq.Imp = bidder.imps
		bidderReq.Ext = bidderExt
		fpd[bidder.name].Apply(&bidderReq)
		bidderReq.User = privacyResult.User
		bidderReq.Device = privacyResult.Device

		sChainWriter.Write(&bidderReq, bidder.name.String())

		transmitTids := auctionCtx.ActivityControl.Allow(privacy.ActivityTransmitTIDs, privacy.Component{Type: privacy.ComponentTypeBidder, Name: bidder.name.String()})
		if err := e.prepareTids(&bidderReq, createTids, transmitTids); err != nil {
			result.warnings = append(result.warnings, toWarning(err))
			continue
		}

		if auctionCtx.Account.PriceFloors.AdjustForBidAdjustment {
			bidderReq.Imp = floors.AdjustImpFloors(bidderReq.Imp, bidder.name.String(), reqExt.Prebid.BidAdjustmentFactors)
		}

		if !bidder.info.SupportsOpenRTB26() {
			if err := ortb.ConvertDownTo25(&bidderReq); err != nil {
				result.warnings = append(result.warnings, &errortypes.Warning{
					Message:     fmt.Sprintf("request for bidder %s could not be converted to OpenRTB 2.5: %v", bidder.name, err),
					WarningCode: errortypes.UnknownWarningCode,
				})
				continue
			}
		}

		result.requests = append(result.requests, BidderRequest{
			BidRequest:            &bidderReq,
			BidderName:            bidder.name,
			BidderCoreName:        bidder.coreName,
			BidderStoredResponses: bidder.stored,
			ImpReplaceImpId:       storedResponses.ReplaceImpID[bidder.name.String()],
		})
	}

	return result, nil
}

// bidderImpParams holds the params of one bidder found in an imp ext.
type bidderImpParams struct {
	bidder string
	params json.RawMessage
}

// splitImps takes a list of Imps and returns a map of imps which have been sanitized for each bidder,
// along with the bidders in the order they were first seen.
//
// For example, suppose imps has two elements. One goes to rubicon, while the other goes to appnexus and index.
// The returned map will have three keys: rubicon, appnexus, and index--each with one Imp.
// The "imp.ext" value of the appnexus Imp will only contain the "prebid" values, and "appnexus" value at the "bidder" key.
//
// The goal here is so that Bidders only get Imps and Imp.Ext values which are intended for them.
func splitImps(imps []openrtb2.Imp) (map[string][]openrtb2.Imp, []string, error) {
	impsByBidder := make(map[string][]openrtb2.Imp, len(imps))
	var bidderOrder []string

	for i := range imps {
		params, shared, err := parseImpExt(imps[i].Ext)
		if err != nil {
			return nil, nil, &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d].ext is invalid: %v", i, err)}
		}

		for _, p := range params {
			ext, err := sanitizedImpExt(p.params, shared)
			if err != nil {
				return nil, nil, &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d].ext is invalid: %v", i, err)}
			}

			impCopy := imps[i]
			impCopy.Ext = ext
			if _, seen := impsByBidder[p.bidder]; !seen {
				bidderOrder = append(bidderOrder, p.bidder)
			}
			impsByBidder[p.bidder] = append(impsByBidder[p.bidder], impCopy)
		}
	}

	return impsByBidder, bidderOrder, nil
}

// parseImpExt reads the bidder params of an imp ext, from imp.ext.prebid.bidder and from legacy
// top level bidder keys, the former winning on conflict. The other keys make up the context every
// bidder receives, with the bidder map removed from prebid.
func parseImpExt(ext json.RawMessage) ([]bidderImpParams, map[string]json.RawMessage, error) {
	if len(ext) == 0 {
		return nil, nil, nil
	}
	if !json.Valid(ext) {
		return nil, nil, fmt.Errorf("malformed json")
	}

	var legacy []bidderImpParams
	shared := make(map[string]json.RawMessage)
	err := jsonparser.ObjectEach(ext, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		name := string(key)
		raw := rawValue(value, dataType)
		if openrtb_ext.IsBidderNameReserved(name) {
			shared[name] = raw
			return nil
		}
		legacy = append(legacy, bidderImpParams{bidder: name, params: raw})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var params []bidderImpParams
	seen := make(map[string]struct{})
	if prebid, ok := shared[openrtb_ext.BidderReservedPrebid.String()]; ok {
		bidders, dataType, _, err := jsonparser.Get(prebid, "bidder")
		if err == nil && dataType == jsonparser.Object {
			err = jsonparser.ObjectEach(bidders, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
				params = append(params, bidderImpParams{bidder: string(key), params: rawValue(value, dataType)})
				seen[string(key)] = struct{}{}
				return nil
			})
			if err != nil {
				return nil, nil, err
			}
		}

		withoutBidders := jsonparser.Delete(append([]byte(nil), prebid...), "bidder")
		if isEmptyJSONObject(withoutBidders) {
			delete(shared, openrtb_ext.BidderReservedPrebid.String())
		} else {
			shared[openrtb_ext.BidderReservedPrebid.String()] = withoutBidders
		}
	}

	for _, p := range legacy {
		if _, ok := seen[p.bidder]; !ok {
			params = append(params, p)
		}
	}
	delete(shared, openrtb_ext.BidderReservedBidder.String())
	delete(shared, openrtb_ext.BidderReservedAll.String())

	return params, shared, nil
}

func sanitizedImpExt(params json.RawMessage, shared map[string]json.RawMessage) (json.RawMessage, error) {
	ext := make(map[string]json.RawMessage, len(shared)+1)
	for key, value := range shared {
		ext[key] = value
	}
	ext[openrtb_ext.BidderReservedBidder.String()] = params
	return json.Marshal(ext)
}

// rawValue restores the quotes jsonparser strips from string values.
func rawValue(value []byte, dataType jsonparser.ValueType) json.RawMessage {
	if dataType == jsonparser.String {
		quoted := make([]byte, 0, len(value)+2)
		quoted = append(quoted, '"')
		quoted = append(quoted, value...)
		return append(quoted, '"')
	}
	return append(json.RawMessage(nil), value...)
}

func isEmptyJSONObject(data []byte) bool {
	empty := true
	err := jsonparser.ObjectEach(data, func([]byte, []byte, jsonparser.ValueType, int) error {
		empty = false
		return nil
	})
	return err == nil && empty
}

// appendStoredResponseBidders adds the bidders only named by stored bid responses, sorted by name.
func appendStoredResponseBidders(bidderOrder []string, storedResponses stored_responses.StoredResponses) []string {
	known := make(map[string]struct{}, len(bidderOrder))
	for _, bidder := range bidderOrder {
		known[bidder] = struct{}{}
	}

	var extra []string
	for bidder := range storedResponses.BidderImps {
		if _, ok := known[bidder.String()]; !ok {
			extra = append(extra, bidder.String())
		}
	}
	sort.Strings(extra)
	return append(bidderOrder, extra...)
}

// removeStoredResponseImps drops the imps answered by a stored response from the live request.
func removeStoredResponseImps(imps []openrtb2.Imp, stored map[string]json.RawMessage) []openrtb2.Imp {
	if len(stored) == 0 {
		return imps
	}
	live := make([]openrtb2.Imp, 0, len(imps))
	for _, imp := range imps {
		if _, ok := stored[imp.ID]; !ok {
			live = append(live, imp)
		}
	}
	return live
}

// cleanRequestExt removes the request ext entries which were already applied per bidder.
func cleanRequestExt(ext json.RawMessage) json.RawMessage {
	if len(ext) == 0 {
		return ext
	}
	cleaned := []byte(ext)
	for _, path := range []string{"prebid.bidderconfig", "prebid.schains"} {
		if updated, err := sjson.DeleteBytes(cleaned, path); err == nil {
			cleaned = updated
		}
	}
	return cleaned
}

// prepareTids creates the source and imp transaction ids when asked to and strips them when the
// bidder may not receive them. Objects are copied before they are changed.
func (e *exchange) prepareTids(req *openrtb2.BidRequest, createTids, transmitTids bool) error {
	if !createTids && transmitTids {
		return nil
	}

	source := openrtb2.Source{}
	if req.Source != nil {
		source = *req.Source
	}
	imps := make([]openrtb2.Imp, len(req.Imp))
	copy(imps, req.Imp)

	if !transmitTids {
		source.TID = ""
		for i := range imps {
			if len(imps[i].Ext) == 0 {
				continue
			}
			ext, err := sjson.DeleteBytes(imps[i].Ext, openrtb_ext.TIDKey)
			if err != nil {
				return err
			}
			imps[i].Ext = ext
		}
	} else {
		tid, err := e.idGenerator.New()
		if err != nil {
			return err
		}
		source.TID = tid
		for i := range imps {
			impTid, err := e.idGenerator.New()
			if err != nil {
				return err
			}
			ext := imps[i].Ext
			if len(ext) == 0 {
				ext = json.RawMessage(`{}`)
			}
			if imps[i].Ext, err = sjson.SetBytes(ext, openrtb_ext.TIDKey, impTid); err != nil {
				return err
			}
		}
	}

	if req.Source != nil || source.TID != "" {
		req.Source = &source
	}
	req.Imp = imps
	return nil
}

// resolveBidder returns the known BidderName associated with bidder, if bidder is an alias. If it's not an alias, the bidder is returned.
func resolveBidder(bidder string, aliases map[string]string) openrtb_ext.BidderName {
	if coreBidder, ok := aliases[bidder]; ok {
		return openrtb_ext.BidderName(coreBidder)
	}
	return openrtb_ext.BidderName(bidder)
}

func makePrivacyLabels(req *openrtb2.BidRequest, tcf privacy.TCFContext, results []privacy.BidderPrivacyResult) metrics.PrivacyLabels {
	labels := metrics.PrivacyLabels{
		COPPAEnforced: req.Regs != nil && req.Regs.COPPA == 1,
		GDPREnforced:  tcf.GDPRApplies,
		LMTEnforced:   req.Device != nil && req.Device.Lmt != nil && *req.Device.Lmt == 1,
	}
	if tcf.GDPRApplies {
		labels.GDPRTCFVersion = metrics.TCFVersionToValue(tcf.Version)
	}
	if req.Regs != nil {
		if req.Regs.USPrivacy != "" {
			labels.CCPAProvided = true
		} else if _, err := jsonparser.GetString(req.Regs.Ext, "us_privacy"); err == nil {
			labels.CCPAProvided = true
		}
	}
	for _, result := range results {
		if result.Enforcement.CCPA {
			labels.CCPAEnforced = true
		}
	}
	return labels
}

// toWarnings keeps the coded warnings as they are and turns anything else into a generic warning.
func toWarnings(errs []error) []error {
	if len(errs) == 0 {
		return nil
	}
	warnings := make([]error, 0, len(errs))
	for _, err := range errs {
		warnings = append(warnings, toWarning(err))
	}
	return warnings
}

func toWarning(err error) error {
	if errortypes.IsWarning(err) {
		return err
	}
	return &errortypes.Warning{Message: err.Error(), WarningCode: errortypes.UnknownWarningCode}
}
