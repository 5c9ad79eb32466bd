package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/prebid-auction/util/jsonutil"
)

const versionNotSet = "not-set"

// NewVersionEndpoint reports the version and revision the binary was built from.
func NewVersionEndpoint(version, revision string) httprouter.Handle {
	response, err := versionResponse(version, revision)
	if err != nil {
		glog.Fatalf("error creating /version endpoint response: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(response)
	}
}

func versionResponse(version, revision string) (json.RawMessage, error) {
	if version == "" {
		version = versionNotSet
	}
	if revision == "" {
		revision = versionNotSet
	}

	return jsonutil.Marshal(struct {
		Revision string `json:"revision"`
		Version  string `json:"version"`
	}{
		Revision: revision,
		Version:  version,
	})
}
