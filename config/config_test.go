package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViperWithDefaults(t *testing.T, yamlConfig string) *viper.Viper {
	v := viper.New()
	SetupViper(v, "")
	if yamlConfig != "" {
		require.NoError(t, ReadConfig(v, []byte(yamlConfig)))
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := New(newViperWithDefaults(t, ""))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), cfg.AuctionTimeouts.Default)
	assert.Equal(t, int64(5000), cfg.AuctionTimeouts.Max)
	assert.Equal(t, int64(50), cfg.AuctionTimeouts.Min)
	assert.Equal(t, 10, cfg.AuctionTimeouts.BidderResponseDurationFactorPct)
	assert.Equal(t, 20, cfg.Targeting.TruncateAttrChars)
	assert.Equal(t, BidIDGeneratorNone, cfg.GenerateBidID.Type)
	assert.True(t, cfg.Debug.Allow)
	assert.True(t, cfg.AccountDefaults.DebugAllow)
	assert.Equal(t, 300, cfg.CacheURL.DefaultTTLs.Banner)
	assert.True(t, cfg.GDPR.Enabled)
	assert.Equal(t, "1", cfg.GDPR.DefaultValue)
	assert.True(t, cfg.AccountDefaults.PriceFloors.Enabled)
	assert.Equal(t, 100, cfg.AccountDefaults.PriceFloors.EnforceFloorsRate)
	assert.True(t, cfg.AccountDefaults.PriceFloors.AdjustForBidAdjustment)
	assert.NotEmpty(t, cfg.AccountDefaultsJSON())
}

func TestFullConfig(t *testing.T) {
	yamlConfig := `
external_url: http://prebid.example.com
auction_timeouts_ms:
  default: 800
  max: 2000
  min: 100
bid_id_generator:
  type: uuid
cache:
  scheme: https
  host: cache.example.com
  query: uuid=%PBS_CACHE_UUID%
ccpa:
  enforce: true
account_defaults:
  truncate_target_attr: 12
  events:
    enabled: true
    channels:
      amp: true
adapters:
  appnexus:
    endpoint: http://ib.adnxs.com/openrtb2
`
	cfg, err := New(newViperWithDefaults(t, yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(800), cfg.AuctionTimeouts.Default)
	assert.Equal(t, BidIDGeneratorUUID, cfg.GenerateBidID.Type)
	assert.True(t, cfg.CCPA.Enforce)
	assert.Equal(t, 12, *cfg.AccountDefaults.TruncateTargetAttribute)
	assert.True(t, cfg.AccountDefaults.Events.IsChannelEnabled("amp"))
	assert.False(t, cfg.AccountDefaults.Events.IsChannelEnabled("web"))
	assert.Equal(t, "http://ib.adnxs.com/openrtb2", cfg.Adapters["appnexus"].Endpoint)
	assert.Equal(t, "https://cache.example.com/cache?uuid=abc", cfg.CacheURL.GetCachedAssetURL("abc"))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		description string
		yaml        string
	}{
		{
			description: "max-below-min",
			yaml:        "auction_timeouts_ms:\n  min: 500\n  max: 100\n  default: 50\n",
		},
		{
			description: "unknown-id-generator",
			yaml:        "bid_id_generator:\n  type: counter\n",
		},
		{
			description: "truncation-out-of-range",
			yaml:        "targeting:\n  truncate_attr_chars: 300\n",
		},
		{
			description: "gdpr-default-value",
			yaml:        "gdpr:\n  default_value: \"2\"\n",
		},
		{
			description: "floors-enforce-rate",
			yaml:        "account_defaults:\n  price_floors:\n    enforce_floors_rate: 101\n",
		},
	}

	for _, test := range tests {
		_, err := New(newViperWithDefaults(t, test.yaml))
		assert.Error(t, err, test.description)
	}
}

func TestCacheBaseURL(t *testing.T) {
	tests := []struct {
		scheme   string
		expected string
	}{
		{scheme: "https", expected: "https://cache.example.com"},
		{scheme: "http", expected: "http://cache.example.com"},
		{scheme: "", expected: "//cache.example.com"},
	}

	for _, test := range tests {
		cache := Cache{Scheme: test.scheme, Host: "cache.example.com"}
		assert.Equal(t, test.expected, cache.GetBaseURL(), test.scheme)
	}
}

func TestAccountCCPAEnabledOrDefault(t *testing.T) {
	enabled := false
	assert.True(t, AccountCCPA{}.EnabledOrDefault(true))
	assert.False(t, AccountCCPA{Enabled: &enabled}.EnabledOrDefault(true))
}
