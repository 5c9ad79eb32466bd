package ortb

import (
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
)

func TestValidateImp(t *testing.T) {
	banner := &openrtb2.Banner{Format: []openrtb2.Format{{W: 300, H: 250}}}

	validator := NewRequestValidator(
		map[string]openrtb_ext.BidderName{"appnexus": "appnexus", "rubicon": "rubicon"},
		map[string]string{"oldbidder": "oldbidder is disabled"},
	)

	testCases := []struct {
		description    string
		imp            openrtb2.Imp
		aliases        map[string]string
		expectedErrs   []string
		expectWarnings int
	}{
		{
			description:  "missing-id",
			imp:          openrtb2.Imp{Banner: banner},
			expectedErrs: []string{`request.imp[0] missing required field: "id"`},
		},
		{
			description:  "no-media",
			imp:          openrtb2.Imp{ID: "imp1"},
			expectedErrs: []string{`request.imp[0] must contain at least one of "banner", "video", "audio", or "native"`},
		},
		{
			description:  "video-without-mimes",
			imp:          openrtb2.Imp{ID: "imp1", Video: &openrtb2.Video{}},
			expectedErrs: []string{"request.imp[0].video.mimes must contain at least one supported MIME type"},
		},
		{
			description:  "audio-without-mimes",
			imp:          openrtb2.Imp{ID: "imp1", Audio: &openrtb2.Audio{}},
			expectedErrs: []string{"request.imp[0].audio.mimes must contain at least one supported MIME type"},
		},
		{
			description:  "native-without-request",
			imp:          openrtb2.Imp{ID: "imp1", Native: &openrtb2.Native{}},
			expectedErrs: []string{`request.imp[0].native missing required property "request"`},
		},
		{
			description:  "deal-without-id",
			imp:          openrtb2.Imp{ID: "imp1", Banner: banner, PMP: &openrtb2.PMP{Deals: []openrtb2.Deal{{BidFloor: 1}}}},
			expectedErrs: []string{`request.imp[0].pmp.deals[0] missing required field: "id"`},
		},
		{
			description:  "missing-ext",
			imp:          openrtb2.Imp{ID: "imp1", Banner: banner},
			expectedErrs: []string{"request.imp[0].ext is required"},
		},
		{
			description: "prebid-bidder",
			imp:         openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"appnexus":{"placementId":1}}}}`)},
		},
		{
			description: "prebid-bidder-case-insensitive",
			imp:         openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"AppNexus":{}}}}`)},
		},
		{
			description: "prebid-bidder-alias",
			imp:         openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"mine":{}}}}`)},
			aliases:     map[string]string{"mine": "rubicon"},
		},
		{
			description:  "prebid-bidder-unknown",
			imp:          openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"unknown":{}}}}`)},
			expectedErrs: []string{"request.imp[0].ext.prebid.bidder contains unknown bidder: unknown. Did you forget an alias in request.ext.prebid.aliases?"},
		},
		{
			description:    "legacy-bidder-with-unknown-key",
			imp:            openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"appnexus":{},"unknown":{},"gpid":"x"}`)},
			expectWarnings: 1,
		},
		{
			description:    "disabled-bidder-only",
			imp:            openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"oldbidder":{}}}}`)},
			expectWarnings: 1,
			expectedErrs:   []string{"request.imp[0].ext.prebid.bidder must contain at least one bidder"},
		},
		{
			description:  "stored-bid-response-bidder-mismatch",
			imp:          openrtb2.Imp{ID: "imp1", Banner: banner, Ext: json.RawMessage(`{"prebid":{"bidder":{"appnexus":{}},"storedbidresponse":[{"id":"1","bidder":"rubicon"}]}}`)},
			expectedErrs: []string{"request validation failed. Stored bid responses are specified for imp imp1. Bidders specified in imp.ext should match with bidders specified in imp.ext.prebid.storedbidresponse"},
		},
	}

	for _, test := range testCases {
		t.Run(test.description, func(t *testing.T) {
			errs := validator.ValidateImp(&test.imp, 0, test.aliases)

			var fatal []string
			warnings := 0
			for _, err := range errs {
				if errortypes.IsWarning(err) {
					warnings++
					continue
				}
				fatal = append(fatal, err.Error())
			}
			assert.Equal(t, test.expectedErrs, fatal)
			assert.Equal(t, test.expectWarnings, warnings)
		})
	}
}

func TestIsInterstitial(t *testing.T) {
	assert.True(t, isInterstitial(&openrtb2.Imp{Instl: 1}))
	assert.False(t, isInterstitial(&openrtb2.Imp{}))
}
