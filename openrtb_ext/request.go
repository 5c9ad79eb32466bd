package openrtb_ext

import (
	"encoding/json"
	"errors"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// FirstPartyDataExtKey defines a field name within request.ext and request.imp.ext reserved for first party data.
const FirstPartyDataExtKey = "data"

// FirstPartyDataContextExtKey defines a field name within request.ext and request.imp.ext reserved for first party data.
const FirstPartyDataContextExtKey = "context"

// SKAdNExtKey defines the field name within request.ext reserved for Apple's SKAdNetwork.
const SKAdNExtKey = "skadn"

// GPIDKey defines the field name within request.ext reserved for the Global Placement ID (GPID),
const GPIDKey = "gpid"

// TIDKey reserved for Per-Impression Transactions IDs for Multi-Impression Bid Requests.
const TIDKey = "tid"

// ExtRequest defines the contract for bidrequest.ext
type ExtRequest struct {
	Prebid ExtRequestPrebid `json:"prebid"`
}

// ExtRequestPrebid defines the contract for bidrequest.ext.prebid
type ExtRequestPrebid struct {
	AdServerTargeting    []AdServerTarget                `json:"adservertargeting,omitempty"`
	Aliases              map[string]string               `json:"aliases,omitempty"`
	BidAdjustmentFactors *ExtRequestBidAdjustmentFactors `json:"bidadjustmentfactors,omitempty"`
	BidderConfigs        []BidderConfig                  `json:"bidderconfig,omitempty"`
	Cache                *ExtRequestPrebidCache          `json:"cache,omitempty"`
	Channel              *ExtRequestPrebidChannel        `json:"channel,omitempty"`
	CreateTids           *bool                           `json:"createtids,omitempty"`
	CurrencyConversions  *ExtRequestCurrency             `json:"currency,omitempty"`
	Debug                bool                            `json:"debug,omitempty"`
	Events               json.RawMessage                 `json:"events,omitempty"`
	Floors               *PriceFloorRules                `json:"floors,omitempty"`
	Integration          string                          `json:"integration,omitempty"`
	MultiBid             []*ExtMultiBid                  `json:"multibid,omitempty"`
	NoSale               []string                        `json:"nosale,omitempty"`
	SChains              []*ExtRequestPrebidSChain       `json:"schains,omitempty"`
	StoredRequest        *ExtStoredRequest               `json:"storedrequest,omitempty"`
	SupportDeals         bool                            `json:"supportdeals,omitempty"`
	Targeting            *ExtRequestTargeting            `json:"targeting,omitempty"`
}

// AdServerTarget defines one rule of bidrequest.ext.prebid.adservertargeting
type AdServerTarget struct {
	Key    string `json:"key,omitempty"`
	Source string `json:"source,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Sources of ad server targeting values.
const (
	SourceStatic      = "static"
	SourceBidRequest  = "bidrequest"
	SourceBidResponse = "bidresponse"
)

// BidderConfig defines one entry of bidrequest.ext.prebid.bidderconfig
type BidderConfig struct {
	Bidders []string `json:"bidders,omitempty"`
	Config  *Config  `json:"config,omitempty"`
}

type Config struct {
	ORTB2 *ORTB2 `json:"ortb2,omitempty"`
}

// ORTB2 carries bidder specific first party data objects.
type ORTB2 struct {
	Site json.RawMessage `json:"site,omitempty"`
	App  json.RawMessage `json:"app,omitempty"`
	Dooh json.RawMessage `json:"dooh,omitempty"`
	User json.RawMessage `json:"user,omitempty"`
}

// ExtRequestPrebidCache defines the contract for bidrequest.ext.prebid.cache
type ExtRequestPrebidCache struct {
	Bids        *ExtRequestPrebidCacheBids `json:"bids,omitempty"`
	VastXML     *ExtRequestPrebidCacheVAST `json:"vastxml,omitempty"`
	WinningOnly *bool                      `json:"winningonly,omitempty"`
}

// ExtRequestPrebidCacheBids defines the contract for bidrequest.ext.prebid.cache.bids
type ExtRequestPrebidCacheBids struct {
	ReturnCreative *bool `json:"returnCreative,omitempty"`
}

// ExtRequestPrebidCacheVAST defines the contract for bidrequest.ext.prebid.cache.vastxml
type ExtRequestPrebidCacheVAST struct {
	ReturnCreative *bool `json:"returnCreative,omitempty"`
}

// ExtRequestPrebidChannel defines the contract for bidrequest.ext.prebid.channel
type ExtRequestPrebidChannel struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ExtRequestCurrency defines Currency conversion rates passed in the request.
type ExtRequestCurrency struct {
	ConversionRates map[string]map[string]float64 `json:"rates"`
	UsePBSRates     *bool                         `json:"usepbsrates,omitempty"`
}

// ExtRequestPrebidSChain defines the contract for bidrequest.ext.prebid.schains
type ExtRequestPrebidSChain struct {
	Bidders []string             `json:"bidders,omitempty"`
	SChain  openrtb2.SupplyChain `json:"schain"`
}

// PriceFloorRules defines the contract for bidrequest.ext.prebid.floors
type PriceFloorRules struct {
	FloorMin           float64                `json:"floormin,omitempty"`
	FloorMinCur        string                 `json:"floormincur,omitempty"`
	SkipRate           int                    `json:"skiprate,omitempty"`
	Enabled            *bool                  `json:"enabled,omitempty"`
	Skipped            *bool                  `json:"skipped,omitempty"`
	Enforcement        *PriceFloorEnforcement `json:"enforcement,omitempty"`
	Data               *PriceFloorData        `json:"data,omitempty"`
	FetchStatus        string                 `json:"fetchstatus,omitempty"`
	PriceFloorLocation string                 `json:"location,omitempty"`
}

type PriceFloorEnforcement struct {
	EnforcePBS  *bool `json:"enforcepbs,omitempty"`
	EnforceRate int   `json:"enforcerate,omitempty"`
	FloorDeals  *bool `json:"floordeals,omitempty"`
}

// PriceFloorData holds the floor model groups a floor is selected from.
type PriceFloorData struct {
	Currency    string                 `json:"currency,omitempty"`
	SkipRate    int                    `json:"skiprate,omitempty"`
	ModelGroups []PriceFloorModelGroup `json:"modelgroups,omitempty"`
}

type PriceFloorModelGroup struct {
	Currency     string             `json:"currency,omitempty"`
	ModelWeight  int                `json:"modelweight,omitempty"`
	ModelVersion string             `json:"modelversion,omitempty"`
	SkipRate     int                `json:"skiprate,omitempty"`
	Schema       PriceFloorSchema   `json:"schema,omitempty"`
	Values       map[string]float64 `json:"values,omitempty"`
	Default      float64            `json:"default,omitempty"`
}

type PriceFloorSchema struct {
	Fields    []string `json:"fields,omitempty"`
	Delimiter string   `json:"delimiter,omitempty"`
}

// ExtImpPrebidFloors defines the contract for bidrequest.imp[i].ext.prebid.floors
type ExtImpPrebidFloors struct {
	FloorRule      string  `json:"floorRule,omitempty"`
	FloorRuleValue float64 `json:"floorRuleValue,omitempty"`
	FloorValue     float64 `json:"floorValue,omitempty"`
}

// GetEnabled reports whether floors are switched on, defaulting to true.
func (rules *PriceFloorRules) GetEnabled() bool {
	if rules != nil && rules.Enabled != nil {
		return *rules.Enabled
	}
	return true
}

// GetEnforcePBS reports whether bids below the floor are removed, defaulting to true.
func (rules *PriceFloorRules) GetEnforcePBS() bool {
	if rules != nil && rules.Enforcement != nil && rules.Enforcement.EnforcePBS != nil {
		return *rules.Enforcement.EnforcePBS
	}
	return true
}

// GetEnforceRate returns the request enforcement rate, 0 when unset.
func (rules *PriceFloorRules) GetEnforceRate() int {
	if rules != nil && rules.Enforcement != nil {
		return rules.Enforcement.EnforceRate
	}
	return 0
}

// GetFloorsSkippedFlag reports whether floors signalling was skipped for this request.
func (rules *PriceFloorRules) GetFloorsSkippedFlag() bool {
	return rules != nil && rules.Skipped != nil && *rules.Skipped
}

// GetFloorDeals reports whether deal bids are held to the floor, defaulting to false.
func (rules *PriceFloorRules) GetFloorDeals() bool {
	if rules != nil && rules.Enforcement != nil && rules.Enforcement.FloorDeals != nil {
		return *rules.Enforcement.FloorDeals
	}
	return false
}

// ExtRequestTargeting defines the contract for bidrequest.ext.prebid.targeting
type ExtRequestTargeting struct {
	PriceGranularity          *PriceGranularity          `json:"pricegranularity,omitempty"`
	MediaTypePriceGranularity *MediaTypePriceGranularity `json:"mediatypepricegranularity,omitempty"`
	IncludeWinners            *bool                      `json:"includewinners,omitempty"`
	IncludeBidderKeys         *bool                      `json:"includebidderkeys,omitempty"`
	IncludeBrandCategory      *ExtIncludeBrandCategory   `json:"includebrandcategory,omitempty"`
	IncludeFormat             bool                       `json:"includeformat,omitempty"`
	DurationRangeSec          []int                      `json:"durationrangesec,omitempty"`
	PreferDeals               bool                       `json:"preferdeals,omitempty"`
	AppendBidderNames         bool                       `json:"appendbiddernames,omitempty"`
	TruncateAttrChars         *int                       `json:"truncateattrchars,omitempty"`
}

// ExtIncludeBrandCategory defines the contract for bidrequest.ext.prebid.targeting.includebrandcategory
type ExtIncludeBrandCategory struct {
	PrimaryAdServer     int    `json:"primaryadserver"`
	Publisher           string `json:"publisher"`
	WithCategory        bool   `json:"withcategory"`
	TranslateCategories *bool  `json:"translatecategories,omitempty"`
}

// GetTranslateCategories defaults to true when unset.
func (c *ExtIncludeBrandCategory) GetTranslateCategories() bool {
	if c == nil {
		return false
	}
	if c.TranslateCategories == nil {
		return true
	}
	return *c.TranslateCategories
}

// GetIncludeWinners defaults to true when unset.
func (t *ExtRequestTargeting) GetIncludeWinners() bool {
	return t != nil && (t.IncludeWinners == nil || *t.IncludeWinners)
}

// GetIncludeBidderKeys defaults to true when unset.
func (t *ExtRequestTargeting) GetIncludeBidderKeys() bool {
	return t != nil && (t.IncludeBidderKeys == nil || *t.IncludeBidderKeys)
}

// GetPriceGranularity returns the granularity which applies to bids of the given type.
func (t *ExtRequestTargeting) GetPriceGranularity(bidType BidType) PriceGranularity {
	if t == nil {
		return NewPriceGranularityDefault()
	}
	if t.MediaTypePriceGranularity != nil {
		var mediaTypeGranularity *PriceGranularity
		switch bidType {
		case BidTypeBanner:
			mediaTypeGranularity = t.MediaTypePriceGranularity.Banner
		case BidTypeVideo:
			mediaTypeGranularity = t.MediaTypePriceGranularity.Video
		case BidTypeNative:
			mediaTypeGranularity = t.MediaTypePriceGranularity.Native
		}
		if mediaTypeGranularity != nil {
			return *mediaTypeGranularity
		}
	}
	if t.PriceGranularity != nil {
		return *t.PriceGranularity
	}
	return NewPriceGranularityDefault()
}

// ParseExtRequest decodes bidrequest.ext. A missing ext yields the zero value.
func ParseExtRequest(req *openrtb2.BidRequest) (*ExtRequest, error) {
	ext := &ExtRequest{}
	if req == nil || len(req.Ext) == 0 {
		return ext, nil
	}
	if err := json.Unmarshal(req.Ext, ext); err != nil {
		return nil, errors.New("request.ext is invalid: " + err.Error())
	}
	return ext, nil
}
