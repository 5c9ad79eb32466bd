package floors

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/currency"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
	"github.com/tidwall/sjson"
)

type Price struct {
	FloorMin    float64
	FloorMinCur string
}

const (
	defaultDelimiter string = "|"
	catchAll         string = "*"
	defaultCurrency  string = "USD"
	skipRateMin      int    = 0
	skipRateMax      int    = 100
	modelWeightMax   int    = 100
	modelWeightMin   int    = 1
	enforceRateMin   int    = 0
	enforceRateMax   int    = 100
)

// Fetch status and location of the floors selected for an auction, echoed in req.ext.prebid.floors.
const (
	FetchSuccess    = "success"
	FetchError      = "error"
	FetchInprogress = "inprogress"
	FetchNone       = "none"

	NoDataLocation  = "noData"
	RequestLocation = "request"
	FetchLocation   = "fetch"
)

// EnrichWithPriceFloors checks for floors enabled in account and request and selects floors data from dynamic fetched floors JSON if present
// else selects floors JSON from req.ext.prebid.floors and update request with selected floors details.
// The imps and ext of req are replaced, never changed in place.
func EnrichWithPriceFloors(req *openrtb2.BidRequest, account config.Account, conversions currency.Conversions, fetcher FloorFetcher) []error {
	if req == nil {
		return []error{errors.New("Empty bidrequest")}
	}

	reqExt, err := openrtb_ext.ParseExtRequest(req)
	if err != nil {
		return []error{err}
	}

	if isPriceFloorsDisabled(account, reqExt.Prebid.Floors) {
		return nil
	}

	floors, errs := resolveFloors(account, reqExt.Prebid.Floors, conversions, fetcher)
	errs = append(errs, updateBidRequestWithFloors(floors, req, conversions, rand.Intn)...)
	if err := updateFloorsInRequest(req, floors); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// updateBidRequestWithFloors will update imp.bidfloor and imp.bidfloorcur based on rules matching
func updateBidRequestWithFloors(extFloorRules *openrtb_ext.PriceFloorRules, request *openrtb2.BidRequest, conversions currency.Conversions, f func(int) int) []error {
	if extFloorRules == nil || extFloorRules.Data == nil || len(extFloorRules.Data.ModelGroups) == 0 {
		return nil
	}

	modelGroup := extFloorRules.Data.ModelGroups[0]
	delimiter := modelGroup.Schema.Delimiter
	if delimiter == "" {
		delimiter = defaultDelimiter
	}

	extFloorRules.Skipped = new(bool)
	if shouldSkipFloors(modelGroup.SkipRate, extFloorRules.Data.SkipRate, extFloorRules.SkipRate, f) {
		*extFloorRules.Skipped = true
		return nil
	}

	ruleValues, floorErrList := validateFloorRulesAndLowerValidRuleKey(modelGroup.Schema, delimiter, modelGroup.Values)
	if len(ruleValues) == 0 && modelGroup.Default == 0 {
		return floorErrList
	}

	floorMinVal, floorCur, err := getMinFloorValue(extFloorRules, conversions)
	if err != nil {
		return append(floorErrList, fmt.Errorf("Error in getting FloorMin value : '%v'", err.Error()))
	}

	imps := make([]openrtb2.Imp, len(request.Imp))
	copy(imps, request.Imp)

	for i := range imps {
		desiredRuleKey := createRuleKey(modelGroup.Schema, request, imps[i])
		matchedRule := findRule(ruleValues, delimiter, desiredRuleKey, len(modelGroup.Schema.Fields))

		floorVal := modelGroup.Default
		if matchedRule != "" {
			floorVal = ruleValues[matchedRule]
		}

		floorVal = roundFloor(floorVal)
		bidFloor := floorVal
		if floorMinVal > 0.0 && floorVal < floorMinVal {
			bidFloor = floorMinVal
		}

		if bidFloor > 0.0 {
			imps[i].BidFloor = roundFloor(bidFloor)
			imps[i].BidFloorCur = floorCur
		}
		if matchedRule != "" {
			ext, err := updateImpExtWithFloorDetails(imps[i].Ext, matchedRule, floorVal, imps[i].BidFloor)
			if err != nil {
				floorErrList = append(floorErrList, err)
				continue
			}
			imps[i].Ext = ext
		}
	}

	request.Imp = imps
	return floorErrList
}

// updateImpExtWithFloorDetails records the matched rule in imp.ext.prebid.floors
func updateImpExtWithFloorDetails(impExt []byte, matchedRule string, floorRuleVal, floorVal float64) ([]byte, error) {
	floors := openrtb_ext.ExtImpPrebidFloors{
		FloorRule:      matchedRule,
		FloorRuleValue: floorRuleVal,
		FloorValue:     floorVal,
	}
	floorsJSON, err := jsonutil.Marshal(floors)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(impExt, "prebid.floors", floorsJSON)
}

// isPriceFloorsDisabled check for floors are disabled at account or request level
func isPriceFloorsDisabled(account config.Account, reqFloors *openrtb_ext.PriceFloorRules) bool {
	return !account.PriceFloors.Enabled || !reqFloors.GetEnabled()
}

// resolveFloors does selection of floors fields from requet JSON and dynamic fetched floors JSON if dynamic fetch is enabled
func resolveFloors(account config.Account, reqFloors *openrtb_ext.PriceFloorRules, conversions currency.Conversions, fetcher FloorFetcher) (*openrtb_ext.PriceFloorRules, []error) {
	var fetchResult *openrtb_ext.PriceFloorRules
	fetchStatus := FetchNone

	if fetcher != nil && account.PriceFloors.UseDynamicData {
		fetchResult, fetchStatus = fetcher.Fetch(account.PriceFloors)
	}

	if fetchResult != nil && fetchStatus == FetchSuccess {
		mergedFloor := mergeFloors(reqFloors, *fetchResult, conversions)
		return createFloorsFrom(mergedFloor, account, fetchStatus, FetchLocation)
	}

	if reqFloors != nil {
		return createFloorsFrom(reqFloors, account, fetchStatus, RequestLocation)
	}
	return createFloorsFrom(nil, account, fetchStatus, NoDataLocation)
}

// createFloorsFrom does preparation of floors data which shall be used for further processing
func createFloorsFrom(floors *openrtb_ext.PriceFloorRules, account config.Account, fetchStatus, floorLocation string) (*openrtb_ext.PriceFloorRules, []error) {
	var floorModelErrList []error
	finalFloors := &openrtb_ext.PriceFloorRules{
		FetchStatus:        fetchStatus,
		PriceFloorLocation: floorLocation,
	}

	if floors == nil {
		return finalFloors, nil
	}

	if err := validateFloorParams(floors); err != nil {
		return finalFloors, []error{err}
	}

	finalFloors.Enforcement = floors.Enforcement
	if floors.Data == nil {
		return finalFloors, nil
	}

	var validModelGroups []openrtb_ext.PriceFloorModelGroup
	validModelGroups, floorModelErrList = selectValidFloorModelGroups(floors.Data.ModelGroups, account)
	if len(validModelGroups) == 0 {
		return finalFloors, floorModelErrList
	}

	*finalFloors = *floors
	finalFloors.FetchStatus = fetchStatus
	finalFloors.PriceFloorLocation = floorLocation
	finalFloors.Data = new(openrtb_ext.PriceFloorData)
	*finalFloors.Data = *floors.Data
	if len(validModelGroups) > 1 {
		validModelGroups = selectFloorModelGroup(validModelGroups, rand.Intn)
	}
	finalFloors.Data.ModelGroups = []openrtb_ext.PriceFloorModelGroup{copyModelGroup(validModelGroups[0])}

	return finalFloors, floorModelErrList
}

func copyModelGroup(mg openrtb_ext.PriceFloorModelGroup) openrtb_ext.PriceFloorModelGroup {
	newMg := mg
	newMg.Schema.Fields = append([]string(nil), mg.Schema.Fields...)
	if mg.Values != nil {
		newMg.Values = make(map[string]float64, len(mg.Values))
		for key, value := range mg.Values {
			newMg.Values[key] = value
		}
	}
	return newMg
}

// mergeFloors combines the fetched floors data with the switches and floor minimum of the request
func mergeFloors(reqFloors *openrtb_ext.PriceFloorRules, fetchFloors openrtb_ext.PriceFloorRules, conversions currency.Conversions) *openrtb_ext.PriceFloorRules {
	mergedFloors := fetchFloors

	floorMinPrice := resolveFloorMin(reqFloors, fetchFloors, conversions)
	if reqFloors != nil {
		mergedFloors.Enabled = reqFloors.Enabled
		mergedFloors.Enforcement = reqFloors.Enforcement
		mergedFloors.SkipRate = reqFloors.SkipRate
	}
	if floorMinPrice.FloorMin > 0 {
		mergedFloors.FloorMin = floorMinPrice.FloorMin
		mergedFloors.FloorMinCur = floorMinPrice.FloorMinCur
	}

	return &mergedFloors
}

// resolveFloorMin gets floorMin value from request and dynamic fetched data
func resolveFloorMin(reqFloors *openrtb_ext.PriceFloorRules, fetchFloors openrtb_ext.PriceFloorRules, conversions currency.Conversions) Price {
	var floorCur, reqFloorMinCur string
	var reqFloorMin float64
	if reqFloors != nil {
		floorCur = getFloorCurrency(reqFloors)
		reqFloorMin = reqFloors.FloorMin
		reqFloorMinCur = reqFloors.FloorMinCur
	}

	if len(reqFloorMinCur) == 0 && fetchFloors.Data == nil {
		reqFloorMinCur = floorCur
	}

	provFloorMinCur := fetchFloors.FloorMinCur
	provFloorMin := fetchFloors.FloorMin

	if len(reqFloorMinCur) > 0 {
		if reqFloorMin > 0.0 {
			return Price{FloorMin: reqFloorMin, FloorMinCur: reqFloorMinCur}
		} else if provFloorMin > 0.0 {
			if len(provFloorMinCur) == 0 || strings.Compare(reqFloorMinCur, provFloorMinCur) == 0 {
				return Price{FloorMin: provFloorMin, FloorMinCur: reqFloorMinCur}
			}
			rate, err := conversions.GetRate(provFloorMinCur, reqFloorMinCur)
			if err == nil {
				return Price{FloorMinCur: reqFloorMinCur, FloorMin: roundFloor(rate * provFloorMin)}
			}
		}
	}
	if len(provFloorMinCur) == 0 {
		provFloorMinCur = getFloorCurrency(&fetchFloors)
	}
	if provFloorMin > 0.0 {
		return Price{FloorMin: provFloorMin, FloorMinCur: provFloorMinCur}
	} else if reqFloorMin > 0.0 {
		return Price{FloorMin: reqFloorMin, FloorMinCur: provFloorMinCur}
	}
	return Price{FloorMin: 0.0, FloorMinCur: floorCur}
}

// updateFloorsInRequest updates floors data into req.ext.prebid.floors
func updateFloorsInRequest(req *openrtb2.BidRequest, priceFloors *openrtb_ext.PriceFloorRules) error {
	if priceFloors == nil {
		return nil
	}
	floorsJSON, err := jsonutil.Marshal(priceFloors)
	if err != nil {
		return err
	}
	ext, err := sjson.SetRawBytes(req.Ext, "prebid.floors", floorsJSON)
	if err != nil {
		return err
	}
	req.Ext = ext
	return nil
}

// AdjustImpFloors returns the imps with bidfloor divided by the bidder's bid adjustment factor, so
// that a bid clearing the signalled floor still clears the original floor once adjusted. With
// several media types on one imp the smallest factor applies. Imps without a floor or a positive
// factor keep their floor. The input slice is not modified.
func AdjustImpFloors(imps []openrtb2.Imp, bidder string, factors *openrtb_ext.ExtRequestBidAdjustmentFactors) []openrtb2.Imp {
	if factors == nil || len(imps) == 0 {
		return imps
	}

	adjusted := make([]openrtb2.Imp, len(imps))
	copy(adjusted, imps)

	for i := range adjusted {
		if adjusted[i].BidFloor <= 0 {
			continue
		}
		factor, ok := minAdjustmentFactor(adjusted[i], bidder, factors)
		if !ok || factor <= 0 {
			continue
		}
		adjusted[i].BidFloor = roundFloor(adjusted[i].BidFloor / factor)
	}

	return adjusted
}

func minAdjustmentFactor(imp openrtb2.Imp, bidder string, factors *openrtb_ext.ExtRequestBidAdjustmentFactors) (float64, bool) {
	var mediaTypes []openrtb_ext.BidAdjustmentMediaType
	if imp.Banner != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidAdjustmentMediaTypeBanner)
	}
	if imp.Video != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.VideoAdjustmentMediaType(imp.Video))
	}
	if imp.Audio != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidAdjustmentMediaTypeAudio)
	}
	if imp.Native != nil {
		mediaTypes = append(mediaTypes, openrtb_ext.BidAdjustmentMediaTypeNative)
	}

	minFactor, found := 0.0, false
	for _, mediaType := range mediaTypes {
		factor, ok := factors.Factor(bidder, mediaType)
		if !ok {
			continue
		}
		if !found || factor < minFactor {
			minFactor, found = factor, true
		}
	}
	return minFactor, found
}

// roundFloor keeps four decimals, the precision floors are published with.
func roundFloor(amount float64) float64 {
	return math.Round(amount*10000) / 10000
}
