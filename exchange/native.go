package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/native1"
	nativeRequests "github.com/prebid/openrtb/v20/native1/request"
	nativeResponse "github.com/prebid/openrtb/v20/native1/response"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/tidwall/sjson"
)

const nativeWrapperKey = "native"

// addNativeTypes copies the image and data asset types of the native request into the markup of the
// bid. Image and data assets whose request counterpart declares no type are dropped. Markup which is
// not IAB native is returned unchanged.
func addNativeTypes(bid *openrtb2.Bid, imp *openrtb2.Imp) (string, error) {
	if imp == nil || imp.Native == nil || bid.AdM == "" {
		return bid.AdM, nil
	}

	markup := []byte(bid.AdM)
	wrapped := false
	if inner, dataType, _, err := jsonparser.Get(markup, nativeWrapperKey); err == nil && dataType == jsonparser.Object {
		markup = inner
		wrapped = true
	}

	var nativeMarkup nativeResponse.Response
	if err := json.Unmarshal(markup, &nativeMarkup); err != nil || len(nativeMarkup.Assets) == 0 {
		// Some bidders are returning non-IAB compliant native markup. In this case types cannot be added.
		return bid.AdM, nil
	}

	nativePayload, err := parseNativeRequest(imp.Native.Request)
	if err != nil {
		return bid.AdM, fmt.Errorf("native request of imp %s is invalid: %v", imp.ID, err)
	}

	assets := make([]nativeResponse.Asset, 0, len(nativeMarkup.Assets))
	for _, asset := range nativeMarkup.Assets {
		if setAssetTypes(&asset, nativePayload.Assets) {
			assets = append(assets, asset)
		}
	}
	nativeMarkup.Assets = assets

	rewritten, err := json.Marshal(nativeMarkup)
	if err != nil {
		return bid.AdM, err
	}
	if wrapped {
		if rewritten, err = sjson.SetRawBytes([]byte(bid.AdM), nativeWrapperKey, rewritten); err != nil {
			return bid.AdM, err
		}
	}
	return string(rewritten), nil
}

func parseNativeRequest(request string) (nativeRequests.Request, error) {
	payload := []byte(request)
	if inner, dataType, _, err := jsonparser.Get(payload, nativeWrapperKey); err == nil && dataType == jsonparser.Object {
		payload = inner
	}
	var nativePayload nativeRequests.Request
	err := json.Unmarshal(payload, &nativePayload)
	return nativePayload, err
}

// setAssetTypes reports whether the asset stays in the markup.
func setAssetTypes(asset *nativeResponse.Asset, requestAssets []nativeRequests.Asset) bool {
	if asset.Img == nil && asset.Data == nil {
		return true
	}
	if asset.ID == nil {
		return false
	}
	requestAsset := getAssetByID(*asset.ID, requestAssets)
	if requestAsset == nil {
		return false
	}

	if asset.Img != nil {
		if requestAsset.Img == nil || requestAsset.Img.Type == 0 {
			return false
		}
		img := *asset.Img
		img.Type = requestAsset.Img.Type
		asset.Img = &img
	}
	if asset.Data != nil {
		if requestAsset.Data == nil || requestAsset.Data.Type == native1.DataAssetType(0) {
			return false
		}
		data := *asset.Data
		data.Type = requestAsset.Data.Type
		asset.Data = &data
	}
	return true
}

func getAssetByID(id int64, assets []nativeRequests.Asset) *nativeRequests.Asset {
	for i := range assets {
		if assets[i].ID == id {
			return &assets[i]
		}
	}
	return nil
}
