package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"gopkg.in/yaml.v3"
)

// BidderInfos contains a mapping of bidder name to bidder info.
type BidderInfos map[string]BidderInfo

// BidderInfo specifies all configuration for a bidder.
type BidderInfo struct {
	Disabled                bool              `yaml:"disabled"`
	Endpoint                string            `yaml:"endpoint"`
	Maintainer              *MaintainerInfo   `yaml:"maintainer"`
	Capabilities            *CapabilitiesInfo `yaml:"capabilities"`
	ModifyingVastXmlAllowed bool              `yaml:"modifyingVastXmlAllowed"`
	Debug                   *DebugInfo        `yaml:"debug"`
	GVLVendorID             uint16            `yaml:"gvlVendorID"`
	OpenRTB                 *OpenRTBInfo      `yaml:"openrtb"`
	CCPAEnforced            bool              `yaml:"ccpaEnforced"`

	// Deprecated bidders are still known so a request naming them gets a clear warning.
	Deprecated         bool   `yaml:"deprecated"`
	DeprecationMessage string `yaml:"deprecationMessage"`
}

// MaintainerInfo specifies the support email address for a bidder.
type MaintainerInfo struct {
	Email string `yaml:"email"`
}

// CapabilitiesInfo specifies the supported platforms for a bidder.
type CapabilitiesInfo struct {
	App  *PlatformInfo `yaml:"app"`
	Site *PlatformInfo `yaml:"site"`
	DOOH *PlatformInfo `yaml:"dooh"`
}

// PlatformInfo specifies the supported media types for a bidder.
type PlatformInfo struct {
	MediaTypes []openrtb_ext.BidType `yaml:"mediaTypes"`
}

// DebugInfo specifies the supported debug options for a bidder.
type DebugInfo struct {
	Allow bool `yaml:"allow"`
}

// OpenRTBInfo specifies the versions/aspects of openRTB that a bidder supports
// Version is not yet actively supported
type OpenRTBInfo struct {
	Version string `yaml:"version"`
}

// IsEnabled returns true if the bidder is enabled for auctions.
func (info BidderInfo) IsEnabled() bool {
	return !info.Disabled
}

// DebugAllowed reports whether debug output of the bidder may reach the response. Bidders allow
// debug unless their info says otherwise.
func (info BidderInfo) DebugAllowed() bool {
	return info.Debug == nil || info.Debug.Allow
}

// SupportsOpenRTB26 reports whether requests can be sent to the bidder without down conversion.
func (info BidderInfo) SupportsOpenRTB26() bool {
	return info.OpenRTB == nil || info.OpenRTB.Version == "" || strings.HasPrefix(info.OpenRTB.Version, "2.6")
}

// LoadBidderInfoFromDisk parses all {bidder}.yaml files in path and applies the host adapter overrides.
func LoadBidderInfoFromDisk(path string, adapterConfigs map[string]Adapter) (BidderInfos, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading bidder info directory %s", path)
	}

	files := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "error reading bidder info file %s", entry.Name())
		}
		files[strings.TrimSuffix(entry.Name(), ".yaml")] = data
	}
	return loadBidderInfo(files, adapterConfigs)
}

func loadBidderInfo(files map[string][]byte, adapterConfigs map[string]Adapter) (BidderInfos, error) {
	infos := make(BidderInfos, len(files))

	for bidder, data := range files {
		info := BidderInfo{}
		if err := yaml.Unmarshal(data, &info); err != nil {
			return nil, errors.Wrapf(err, "error parsing yaml for bidder %s", bidder)
		}

		if adapter, ok := adapterConfigs[strings.ToLower(bidder)]; ok {
			if adapter.Endpoint != "" {
				info.Endpoint = adapter.Endpoint
			}
			info.Disabled = info.Disabled || adapter.Disabled
		}
		infos[bidder] = info
	}

	return infos, nil
}

// ToGVLVendorIDMap transforms a BidderInfos object to a map of bidder names to GVL id. Disabled
// bidders are omitted from the result.
func (infos BidderInfos) ToGVLVendorIDMap() map[openrtb_ext.BidderName]uint16 {
	m := make(map[openrtb_ext.BidderName]uint16, len(infos))
	for name, info := range infos {
		if info.IsEnabled() && info.GVLVendorID != 0 {
			m[openrtb_ext.BidderName(name)] = info.GVLVendorID
		}
	}
	return m
}
