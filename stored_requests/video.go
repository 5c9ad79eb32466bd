package stored_requests

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"
)

// FetchStoredVideo returns, keyed by imp id, the video object of the stored imp referenced by
// imp.ext.prebid.storedrequest.id. Imps without a reference are left out. Fetch failures are returned
// next to whatever could be resolved.
func FetchStoredVideo(ctx context.Context, fetcher Fetcher, imps []openrtb2.Imp) (map[string]*openrtb2.Video, []error) {
	if fetcher == nil {
		return nil, nil
	}

	storedIDByImp := make(map[string]string)
	storedIDs := make([]string, 0, len(imps))
	for _, imp := range imps {
		storedID, err := jsonparser.GetString(imp.Ext, "prebid", "storedrequest", "id")
		if err != nil || storedID == "" {
			continue
		}
		if _, seen := storedIDByImp[imp.ID]; !seen {
			storedIDs = append(storedIDs, storedID)
		}
		storedIDByImp[imp.ID] = storedID
	}
	if len(storedIDs) == 0 {
		return nil, nil
	}

	_, storedImps, errs := fetcher.FetchRequests(ctx, nil, storedIDs)

	videos := make(map[string]*openrtb2.Video, len(storedIDByImp))
	for impID, storedID := range storedIDByImp {
		storedImp, ok := storedImps[storedID]
		if !ok {
			continue
		}
		videoJSON, dataType, _, err := jsonparser.Get(storedImp, "video")
		if err != nil || dataType != jsonparser.Object {
			continue
		}
		video := &openrtb2.Video{}
		if err := json.Unmarshal(videoJSON, video); err != nil {
			errs = append(errs, fmt.Errorf("stored imp %s has an invalid video object: %v", storedID, err))
			continue
		}
		videos[impID] = video
	}
	return videos, errs
}
