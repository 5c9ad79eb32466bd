package config

import (
	"encoding/json"
	"fmt"
)

// Account represents a publisher account configuration
type Account struct {
	ID          string             `mapstructure:"id" json:"id"`
	Disabled    bool               `mapstructure:"disabled" json:"disabled"`
	CacheTTL    DefaultTTLs        `mapstructure:"cache_ttl" json:"cache_ttl"`
	Events      Events             `mapstructure:"events" json:"events"`
	CCPA        AccountCCPA        `mapstructure:"ccpa" json:"ccpa"`
	DebugAllow  bool               `mapstructure:"debug_allow" json:"debug_allow"`
	PriceFloors AccountPriceFloors `mapstructure:"price_floors" json:"price_floors"`
	Privacy     AccountPrivacy     `mapstructure:"privacy" json:"privacy"`
	Hooks       AccountHooks       `mapstructure:"hooks" json:"hooks"`

	// TruncateTargetAttribute overrides the server wide targeting.truncate_attr_chars
	TruncateTargetAttribute *int `mapstructure:"truncate_target_attr" json:"truncate_target_attr,omitempty"`
}

// Events enables win/imp event urls for the account. Channels lists the request channels which
// get events even when the request itself does not ask for them.
type Events struct {
	Enabled  bool            `mapstructure:"enabled" json:"enabled"`
	Channels map[string]bool `mapstructure:"channels" json:"channels,omitempty"`
}

// IsChannelEnabled reports whether the account turns events on for the channel.
func (e Events) IsChannelEnabled(channel string) bool {
	return e.Channels[channel]
}

// AccountCCPA represents account-specific CCPA configuration
type AccountCCPA struct {
	Enabled *bool `mapstructure:"enabled" json:"enabled,omitempty"`
}

// EnabledOrDefault returns the account setting, falling back to the host setting.
func (a AccountCCPA) EnabledOrDefault(hostEnforce bool) bool {
	if a.Enabled != nil {
		return *a.Enabled
	}
	return hostEnforce
}

// AccountPriceFloors defines the account level settings of floors signalling and enforcement.
type AccountPriceFloors struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// EnforceFloorsRate is the percentage of auctions floors are enforced in, 0 means always.
	EnforceFloorsRate int  `mapstructure:"enforce_floors_rate" json:"enforce_floors_rate"`
	EnforceDealFloors bool `mapstructure:"enforce_deal_floors" json:"enforce_deal_floors"`
	// AdjustForBidAdjustment divides the signalled floor by the bidder's adjustment factor.
	AdjustForBidAdjustment bool `mapstructure:"adjust_for_bid_adjustment" json:"adjust_for_bid_adjustment"`
	// UseDynamicData prefers the fetched floors file over req.ext.prebid.floors.
	UseDynamicData bool              `mapstructure:"use_dynamic_data" json:"use_dynamic_data"`
	MaxRule        int               `mapstructure:"max_rules" json:"max_rules"`
	Fetch          AccountFloorFetch `mapstructure:"fetch" json:"fetch"`
}

// AccountFloorFetch locates the floors file of an account and bounds how it is fetched.
type AccountFloorFetch struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	URL         string `mapstructure:"url" json:"url"`
	Timeout     int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxFileSize int    `mapstructure:"max_file_size_kb" json:"max_file_size_kb"`
	MaxRules    int    `mapstructure:"max_rules" json:"max_rules"`
	MaxAge      int    `mapstructure:"max_age_sec" json:"max_age_sec"`
	Period      int    `mapstructure:"period_sec" json:"period_sec"`
	AccountID   string `mapstructure:"accountID" json:"accountID"`
}

// AccountPrivacy holds the activity controls of the account.
type AccountPrivacy struct {
	AllowActivities *AllowActivities `mapstructure:"allowactivities" json:"allowactivities,omitempty"`
}

// AllowActivities lists the controllable activities of an auction.
type AllowActivities struct {
	FetchBids                Activity `mapstructure:"fetchBids" json:"fetchBids"`
	TransmitUserFPD          Activity `mapstructure:"transmitUfpd" json:"transmitUfpd"`
	TransmitPreciseGeo       Activity `mapstructure:"transmitPreciseGeo" json:"transmitPreciseGeo"`
	TransmitUniqueRequestIds Activity `mapstructure:"transmitUniqueRequestIds" json:"transmitUniqueRequestIds"`
	TransmitTids             Activity `mapstructure:"transmitTid" json:"transmitTid"`
}

type Activity struct {
	Default *bool          `mapstructure:"default" json:"default"`
	Rules   []ActivityRule `mapstructure:"rules" json:"rules"`
}

type ActivityRule struct {
	Condition ActivityCondition `mapstructure:"condition" json:"condition"`
	Allow     bool              `mapstructure:"allow" json:"allow"`
}

type ActivityCondition struct {
	ComponentName []string `mapstructure:"componentName" json:"componentName"`
	ComponentType []string `mapstructure:"componentType" json:"componentType"`
}

func (a *Account) validate(errs []error) []error {
	if a.PriceFloors.EnforceFloorsRate < 0 || a.PriceFloors.EnforceFloorsRate > 100 {
		errs = append(errs, fmt.Errorf("account_defaults.price_floors.enforce_floors_rate should be between 0 and 100. Got %d", a.PriceFloors.EnforceFloorsRate))
	}
	if fetch := a.PriceFloors.Fetch; fetch.Enabled {
		if fetch.Timeout < 10 || fetch.Timeout > 10000 {
			errs = append(errs, fmt.Errorf("account_defaults.price_floors.fetch.timeout_ms should be between 10 and 10000. Got %d", fetch.Timeout))
		}
		if fetch.Period < 300 {
			errs = append(errs, fmt.Errorf("account_defaults.price_floors.fetch.period_sec should be at least 300. Got %d", fetch.Period))
		}
		if fetch.MaxAge < fetch.Period {
			errs = append(errs, fmt.Errorf("account_defaults.price_floors.fetch.max_age_sec should not be less than period_sec. Got %d", fetch.MaxAge))
		}
	}
	if a.TruncateTargetAttribute != nil && (*a.TruncateTargetAttribute < 0 || *a.TruncateTargetAttribute > 255) {
		errs = append(errs, fmt.Errorf("account_defaults.truncate_target_attr must be between 0 and 255. Got %d", *a.TruncateTargetAttribute))
	}
	return errs
}

func (a *Account) marshal() ([]byte, error) {
	return json.Marshal(a)
}
