package info

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

// NewBiddersEndpoint implements /info/bidders. Only enabled bidders are listed, sorted by name.
func NewBiddersEndpoint(infos config.BidderInfos) httprouter.Handle {
	names := make([]string, 0, len(infos))
	for name, info := range infos {
		if info.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	response, err := jsonutil.Marshal(names)
	if err != nil {
		glog.Fatalf("error creating /info/bidders endpoint response: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			glog.Errorf("error writing response to /info/bidders: %v", err)
		}
	}
}

// NewBidderDetailsEndpoint implements /info/bidders/:bidderName
func NewBidderDetailsEndpoint(infos config.BidderInfos) httprouter.Handle {
	// Build all the responses up front, since there are a finite number and it won't use much memory.
	responses := make(map[string]json.RawMessage, len(infos))
	for name, info := range infos {
		data, err := jsonutil.Marshal(makeDetails(info))
		if err != nil {
			glog.Fatalf("error creating /info/bidders/%s endpoint response: %v", name, err)
		}
		responses[name] = data
	}

	return func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		name := ps.ByName("bidderName")
		response, ok := responses[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			glog.Errorf("error writing response to /info/bidders/%s: %v", name, err)
		}
	}
}

type bidderDetails struct {
	Status       string        `json:"status"`
	Deprecated   bool          `json:"deprecated,omitempty"`
	OpenRTB      string        `json:"openrtbVersion,omitempty"`
	Maintainer   *maintainer   `json:"maintainer,omitempty"`
	Capabilities *capabilities `json:"capabilities,omitempty"`
}

type maintainer struct {
	Email string `json:"email"`
}

type capabilities struct {
	App  *platform `json:"app,omitempty"`
	Site *platform `json:"site,omitempty"`
	DOOH *platform `json:"dooh,omitempty"`
}

type platform struct {
	MediaTypes []openrtb_ext.BidType `json:"mediaTypes"`
}

func makeDetails(info config.BidderInfo) bidderDetails {
	details := bidderDetails{
		Status:     "ACTIVE",
		Deprecated: info.Deprecated,
	}
	if !info.IsEnabled() {
		details.Status = "DISABLED"
	}
	if info.OpenRTB != nil {
		details.OpenRTB = info.OpenRTB.Version
	}
	if info.Maintainer != nil {
		details.Maintainer = &maintainer{Email: info.Maintainer.Email}
	}
	if info.Capabilities != nil {
		details.Capabilities = &capabilities{
			App:  makePlatform(info.Capabilities.App),
			Site: makePlatform(info.Capabilities.Site),
			DOOH: makePlatform(info.Capabilities.DOOH),
		}
	}
	return details
}

func makePlatform(info *config.PlatformInfo) *platform {
	if info == nil {
		return nil
	}
	return &platform{MediaTypes: info.MediaTypes}
}
