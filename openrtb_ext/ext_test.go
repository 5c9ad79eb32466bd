package openrtb_ext

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/util/ptrutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceGranularityUnmarshal(t *testing.T) {
	tests := []struct {
		description string
		input       string
		expected    PriceGranularity
		expectError bool
	}{
		{
			description: "named-low",
			input:       `"low"`,
			expected:    PriceGranularity{Precision: intPtr(2), Ranges: []GranularityRange{{Min: 0, Max: 5, Increment: 0.5}}},
		},
		{
			description: "custom-without-precision",
			input:       `{"ranges":[{"min":0,"max":10,"increment":1}]}`,
			expected:    PriceGranularity{Ranges: []GranularityRange{{Min: 0, Max: 10, Increment: 1}}},
		},
		{
			description: "unknown-name",
			input:       `"tiny"`,
			expectError: true,
		},
		{
			description: "zero-increment",
			input:       `{"ranges":[{"min":0,"max":10,"increment":0}]}`,
			expectError: true,
		},
	}

	for _, test := range tests {
		var pg PriceGranularity
		err := json.Unmarshal([]byte(test.input), &pg)
		if test.expectError {
			assert.Error(t, err, test.description)
			continue
		}
		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expected, pg, test.description)
	}
}

func TestGetPriceGranularityPrefersMediaType(t *testing.T) {
	low, _ := NewPriceGranularityFromLegacyID("low")
	high, _ := NewPriceGranularityFromLegacyID("high")
	targeting := &ExtRequestTargeting{
		PriceGranularity:          &low,
		MediaTypePriceGranularity: &MediaTypePriceGranularity{Video: &high},
	}

	assert.Equal(t, high, targeting.GetPriceGranularity(BidTypeVideo))
	assert.Equal(t, low, targeting.GetPriceGranularity(BidTypeBanner))
	assert.Equal(t, NewPriceGranularityDefault(), (&ExtRequestTargeting{}).GetPriceGranularity(BidTypeBanner))
}

func TestBidAdjustmentFactors(t *testing.T) {
	var factors ExtRequestBidAdjustmentFactors
	err := json.Unmarshal([]byte(`{"appnexus":0.9,"mediatypes":{"video-instream":{"AppNexus":0.5}}}`), &factors)
	require.NoError(t, err)

	factor, found := factors.Factor("appnexus", BidAdjustmentMediaTypeVideoInstream)
	assert.True(t, found)
	assert.Equal(t, 0.5, factor)

	factor, found = factors.Factor("appnexus", BidAdjustmentMediaTypeBanner)
	assert.True(t, found)
	assert.Equal(t, 0.9, factor)

	_, found = factors.Factor("rubicon", BidAdjustmentMediaTypeBanner)
	assert.False(t, found)
}

func TestReadDealTiersFromImp(t *testing.T) {
	tests := []struct {
		description    string
		impExt         string
		expectedTiers  DealTierBidderMap
		expectedErrors int
	}{
		{
			description:   "none",
			impExt:        ``,
			expectedTiers: DealTierBidderMap{},
		},
		{
			description:   "prebid-bidder-location",
			impExt:        `{"prebid":{"bidder":{"appnexus":{"placementId":1,"dealTier":{"prefix":"anxs","minDealTier":5}}}}}`,
			expectedTiers: DealTierBidderMap{"appnexus": {Prefix: "anxs", MinDealTier: 5}},
		},
		{
			description:   "direct-location-wins",
			impExt:        `{"appnexus":{"dealTier":{"prefix":"direct","minDealTier":2}},"prebid":{"bidder":{"appnexus":{"dealTier":{"prefix":"nested","minDealTier":5}}}}}`,
			expectedTiers: DealTierBidderMap{"appnexus": {Prefix: "direct", MinDealTier: 2}},
		},
		{
			description:    "malformed",
			impExt:         `{"prebid":{"bidder":{"appnexus":{"dealTier":{"prefix":1}}}}}`,
			expectedTiers:  DealTierBidderMap{},
			expectedErrors: 1,
		},
	}

	for _, test := range tests {
		tiers, errs := ReadDealTiersFromImp(openrtb2.Imp{Ext: json.RawMessage(test.impExt)})
		assert.Equal(t, test.expectedTiers, tiers, test.description)
		assert.Len(t, errs, test.expectedErrors, test.description)
	}
}

func TestTargetingKeyTruncation(t *testing.T) {
	assert.Equal(t, "hb_pb_appnexus", HbpbConstantKey.BidderKey("appnexus", 0))
	assert.Equal(t, "hb_pb_app", HbpbConstantKey.BidderKey("appnexus", 9))
	assert.Equal(t, "hb_cache_i", HbCacheKey.TruncatedKey(10))
}

func intPtr(i int) *int {
	return &i
}

func TestVideoAdjustmentMediaType(t *testing.T) {
	assert.Equal(t, BidAdjustmentMediaTypeVideoInstream, VideoAdjustmentMediaType(nil))
	assert.Equal(t, BidAdjustmentMediaTypeVideoInstream, VideoAdjustmentMediaType(&openrtb2.Video{}))
	assert.Equal(t, BidAdjustmentMediaTypeVideoInstream, VideoAdjustmentMediaType(&openrtb2.Video{Placement: adcom1.VideoPlacementInStream}))
	assert.Equal(t, BidAdjustmentMediaTypeVideoOutstream, VideoAdjustmentMediaType(&openrtb2.Video{Placement: adcom1.VideoPlacementSubtype(3)}))
}

func TestPriceFloorRulesDefaults(t *testing.T) {
	var rules *PriceFloorRules
	assert.True(t, rules.GetEnabled())
	assert.True(t, rules.GetEnforcePBS())
	assert.False(t, rules.GetFloorDeals())
	assert.Equal(t, 0, rules.GetEnforceRate())
	assert.False(t, rules.GetFloorsSkippedFlag())

	rules = &PriceFloorRules{Enforcement: &PriceFloorEnforcement{EnforceRate: 50}, Skipped: ptrutil.ToPtr(true)}
	assert.Equal(t, 50, rules.GetEnforceRate())
	assert.True(t, rules.GetFloorsSkippedFlag())
}
