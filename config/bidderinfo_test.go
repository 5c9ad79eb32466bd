package config

import (
	"testing"

	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInfo = `
endpoint: http://bidder.example.com/openrtb2
maintainer:
  email: "info@example.com"
gvlVendorID: 42
modifyingVastXmlAllowed: true
ccpaEnforced: true
openrtb:
  version: "2.5"
capabilities:
  site:
    mediaTypes:
      - banner
      - video
debug:
  allow: false
`

func TestLoadBidderInfo(t *testing.T) {
	infos, err := loadBidderInfo(map[string][]byte{"examplebidder": []byte(testInfo)}, map[string]Adapter{
		"examplebidder": {Endpoint: "http://override.example.com"},
	})
	require.NoError(t, err)

	info := infos["examplebidder"]
	assert.Equal(t, "http://override.example.com", info.Endpoint)
	assert.True(t, info.IsEnabled())
	assert.True(t, info.ModifyingVastXmlAllowed)
	assert.True(t, info.CCPAEnforced)
	assert.False(t, info.DebugAllowed())
	assert.False(t, info.SupportsOpenRTB26())
	assert.Equal(t, []openrtb_ext.BidType{openrtb_ext.BidTypeBanner, openrtb_ext.BidTypeVideo}, info.Capabilities.Site.MediaTypes)
	assert.Equal(t, map[openrtb_ext.BidderName]uint16{"examplebidder": 42}, infos.ToGVLVendorIDMap())
}

func TestLoadBidderInfoDisabledByHost(t *testing.T) {
	infos, err := loadBidderInfo(map[string][]byte{"examplebidder": []byte(testInfo)}, map[string]Adapter{
		"examplebidder": {Disabled: true},
	})
	require.NoError(t, err)
	assert.False(t, infos["examplebidder"].IsEnabled())
	assert.Empty(t, infos.ToGVLVendorIDMap())
}

func TestLoadBidderInfoInvalidYaml(t *testing.T) {
	_, err := loadBidderInfo(map[string][]byte{"broken": []byte("endpoint: [")}, nil)
	assert.Error(t, err)
}
