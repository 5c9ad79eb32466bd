package floors

import (
	"fmt"
	"math/bits"
	"regexp"
	"sort"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/currency"
	"github.com/prebid/prebid-auction/openrtb_ext"
)

// Schema fields supported in floor rules.
const (
	SiteDomain string = "siteDomain"
	PubDomain  string = "pubDomain"
	Domain     string = "domain"
	Bundle     string = "bundle"
	Channel    string = "channel"
	MediaType  string = "mediaType"
	Size       string = "size"
	GptSlot    string = "gptSlot"
	PbAdSlot   string = "pbAdSlot"
	Country    string = "country"
	DeviceType string = "deviceType"
	Tablet     string = "tablet"
	Phone      string = "phone"
)

var (
	mobileUserAgent = regexp.MustCompile("(?i)Phone|iPhone|Android|Mobile")
	tabletUserAgent = regexp.MustCompile("(?i)tablet|iPad|Windows NT")
)

func getFloorCurrency(floorExt *openrtb_ext.PriceFloorRules) string {
	floorCur := defaultCurrency
	if floorExt == nil || floorExt.Data == nil {
		return floorCur
	}

	if floorExt.Data.Currency != "" {
		floorCur = floorExt.Data.Currency
	}
	if len(floorExt.Data.ModelGroups) > 0 && floorExt.Data.ModelGroups[0].Currency != "" {
		floorCur = floorExt.Data.ModelGroups[0].Currency
	}
	return floorCur
}

// getMinFloorValue returns floorMin in the currency of the selected model group
func getMinFloorValue(floorExt *openrtb_ext.PriceFloorRules, conversions currency.Conversions) (float64, string, error) {
	floorMin := floorExt.FloorMin
	floorCur := getFloorCurrency(floorExt)

	if floorMin > 0.0 && floorExt.FloorMinCur != "" && floorExt.FloorMinCur != floorCur {
		rate, err := conversions.GetRate(floorExt.FloorMinCur, floorCur)
		if err != nil {
			return 0, floorCur, err
		}
		floorMin = rate * floorMin
	}
	return floorMin, floorCur, nil
}

// selectFloorModelGroup picks one model group at random, weighted by modelWeight
func selectFloorModelGroup(modelGroups []openrtb_ext.PriceFloorModelGroup, f func(int) int) []openrtb_ext.PriceFloorModelGroup {
	totalModelWeight := 0
	for i := range modelGroups {
		if modelGroups[i].ModelWeight == 0 {
			modelGroups[i].ModelWeight = 1
		}
		totalModelWeight += modelGroups[i].ModelWeight
	}

	sort.SliceStable(modelGroups, func(i, j int) bool {
		return modelGroups[i].ModelWeight < modelGroups[j].ModelWeight
	})

	winWeight := f(totalModelWeight + 1)
	for i, modelGroup := range modelGroups {
		winWeight -= modelGroup.ModelWeight
		if winWeight <= 0 {
			modelGroups[0], modelGroups[i] = modelGroups[i], modelGroups[0]
			return modelGroups[:1]
		}
	}
	return modelGroups[:1]
}

// shouldSkipFloors uses the most specific skip rate set among model group, data and root
func shouldSkipFloors(modelGroupsSkipRate, dataSkipRate, rootSkipRate int, f func(int) int) bool {
	skipRate := rootSkipRate
	if modelGroupsSkipRate > 0 {
		skipRate = modelGroupsSkipRate
	} else if dataSkipRate > 0 {
		skipRate = dataSkipRate
	}
	return skipRate > f(skipRateMax+1)
}

// findRule returns the first rule key present in ruleValues, trying the exact key before wildcard combinations
func findRule(ruleValues map[string]float64, delimiter string, desiredRuleKey []string, numFields int) string {
	if numFields == 0 || len(desiredRuleKey) < numFields {
		return ""
	}
	for _, key := range prepareRuleCombinations(desiredRuleKey, numFields, delimiter) {
		if _, ok := ruleValues[key]; ok {
			return key
		}
	}
	return ""
}

// createRuleKey builds the lowercased value of every schema field for the imp
func createRuleKey(floorSchema openrtb_ext.PriceFloorSchema, request *openrtb2.BidRequest, imp openrtb2.Imp) []string {
	ruleKeys := make([]string, 0, len(floorSchema.Fields))

	for _, field := range floorSchema.Fields {
		value := catchAll
		switch field {
		case MediaType:
			value = getMediaType(imp)
		case Size:
			value = getSizeValue(imp)
		case Domain:
			value = getDomain(request)
		case SiteDomain:
			value = getSiteDomain(request)
		case Bundle:
			value = getBundle(request)
		case PubDomain:
			value = getPublisherDomain(request)
		case Country:
			value = getDeviceCountry(request)
		case DeviceType:
			value = getDeviceType(request)
		case Channel:
			value = getChannelName(request)
		case GptSlot:
			value = getGptSlot(imp)
		case PbAdSlot:
			value = getPbAdSlot(imp)
		}
		if value == "" {
			value = catchAll
		}
		ruleKeys = append(ruleKeys, strings.ToLower(value))
	}
	return ruleKeys
}

func getDeviceType(request *openrtb2.BidRequest) string {
	if request.Device == nil || request.Device.UA == "" {
		return catchAll
	}
	if mobileUserAgent.MatchString(request.Device.UA) {
		return Phone
	}
	if tabletUserAgent.MatchString(request.Device.UA) {
		return Tablet
	}
	return "desktop"
}

func getDeviceCountry(request *openrtb2.BidRequest) string {
	if request.Device != nil && request.Device.Geo != nil {
		return request.Device.Geo.Country
	}
	return catchAll
}

func getMediaType(imp openrtb2.Imp) string {
	formats := 0
	value := catchAll
	if imp.Banner != nil {
		formats++
		value = string(openrtb_ext.BidTypeBanner)
	}
	if imp.Video != nil {
		formats++
		value = string(openrtb_ext.BidTypeVideo)
	}
	if imp.Audio != nil {
		formats++
		value = string(openrtb_ext.BidTypeAudio)
	}
	if imp.Native != nil {
		formats++
		value = string(openrtb_ext.BidTypeNative)
	}
	if formats > 1 {
		return catchAll
	}
	return value
}

func getSizeValue(imp openrtb2.Imp) string {
	var width, height int64
	if imp.Banner != nil {
		if len(imp.Banner.Format) == 1 {
			width, height = imp.Banner.Format[0].W, imp.Banner.Format[0].H
		} else if len(imp.Banner.Format) == 0 && imp.Banner.W != nil && imp.Banner.H != nil {
			width, height = *imp.Banner.W, *imp.Banner.H
		}
	} else if imp.Video != nil && imp.Video.W != nil && imp.Video.H != nil {
		width, height = *imp.Video.W, *imp.Video.H
	}

	if width != 0 && height != 0 {
		return fmt.Sprintf("%dx%d", width, height)
	}
	return catchAll
}

func getDomain(request *openrtb2.BidRequest) string {
	if value := getSiteDomain(request); value != "" {
		return value
	}
	return getPublisherDomain(request)
}

func getSiteDomain(request *openrtb2.BidRequest) string {
	if request.Site != nil {
		return request.Site.Domain
	}
	if request.App != nil {
		return request.App.Domain
	}
	return ""
}

func getPublisherDomain(request *openrtb2.BidRequest) string {
	if request.Site != nil && request.Site.Publisher != nil {
		return request.Site.Publisher.Domain
	}
	if request.App != nil && request.App.Publisher != nil {
		return request.App.Publisher.Domain
	}
	return ""
}

func getBundle(request *openrtb2.BidRequest) string {
	if request.App != nil {
		return request.App.Bundle
	}
	return catchAll
}

func getGptSlot(imp openrtb2.Imp) string {
	adServerName, err := jsonparser.GetString(imp.Ext, "data", "adserver", "name")
	if err == nil && adServerName == "gam" {
		if gptSlot, _ := jsonparser.GetString(imp.Ext, "data", "adserver", "adslot"); gptSlot != "" {
			return gptSlot
		}
		return catchAll
	}
	return getPbAdSlot(imp)
}

func getPbAdSlot(imp openrtb2.Imp) string {
	if pbAdSlot, err := jsonparser.GetString(imp.Ext, "data", "pbadslot"); err == nil && pbAdSlot != "" {
		return pbAdSlot
	}
	return catchAll
}

func getChannelName(request *openrtb2.BidRequest) string {
	if channel, err := jsonparser.GetString(request.Ext, "prebid", "channel", "name"); err == nil && channel != "" {
		return channel
	}
	return catchAll
}

// prepareRuleCombinations lists the exact key followed by every wildcard combination in match priority order
func prepareRuleCombinations(keys []string, numSchemaFields int, delimiter string) []string {
	comb := make([]int, numSchemaFields)
	for i := range comb {
		comb[i] = i
	}
	exact := keys[:numSchemaFields]

	desiredKeys := [][]string{exact}
	segNum := 1 << numSchemaFields
	for numWildCard := 1; numWildCard <= numSchemaFields; numWildCard++ {
		for _, wildcards := range GenerateCombinations(comb, numWildCard, segNum) {
			eachSet := make([]string, numSchemaFields)
			copy(eachSet, exact)
			for _, position := range wildcards {
				eachSet[position] = catchAll
			}
			desiredKeys = append(desiredKeys, eachSet)
		}
	}

	ruleKeys := make([]string, 0, len(desiredKeys))
	for _, key := range desiredKeys {
		ruleKeys = append(ruleKeys, strings.Join(key, delimiter))
	}
	return ruleKeys
}

// GenerateCombinations returns every subset of set with numWildCard members, ordered so that
// wildcards in later schema fields are tried first.
func GenerateCombinations(set []int, numWildCard int, segNum int) (comb [][]int) {
	length := uint(len(set))

	if numWildCard > len(set) {
		numWildCard = len(set)
	}

	for subsetBits := 1; subsetBits < (1 << length); subsetBits++ {
		if numWildCard > 0 && bits.OnesCount(uint(subsetBits)) != numWildCard {
			continue
		}
		var subset []int
		for object := uint(0); object < length; object++ {
			if (subsetBits>>object)&1 == 1 {
				subset = append(subset, set[object])
			}
		}
		comb = append(comb, subset)
	}

	sort.SliceStable(comb, func(i, j int) bool {
		return combinationWeight(comb[i], segNum) < combinationWeight(comb[j], segNum)
	})

	return comb
}

func combinationWeight(positions []int, segNum int) int {
	weight := 0
	for _, position := range positions {
		weight += 1 << (segNum - position)
	}
	return weight
}
