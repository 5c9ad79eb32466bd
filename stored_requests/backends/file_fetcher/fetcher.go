package file_fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/prebid/prebid-auction/stored_requests"
)

const (
	requestsDir  = "stored_requests"
	impsDir      = "stored_imps"
	responsesDir = "stored_responses"
	accountsDir  = "accounts"
	categoryDir  = "categories"
)

// NewFileFetcher _immediately_ loads stored request data from local files.
// These are stored in memory for low-latency reads.
//
// This expects each file in the directory to be named "{config_id}.json".
// For example, when asked to fetch the request with ID == "23", it will return the data from "directory/stored_requests/23.json".
// Category mappings are read lazily from "directory/categories/{adserver}/{adserver}[_{publisher}].json".
func NewFileFetcher(directory string) (stored_requests.AllFetcher, error) {
	if _, err := os.Stat(directory); err != nil {
		return nil, err
	}

	storedData := make(map[string]map[string]json.RawMessage)
	for _, subdirectory := range []string{requestsDir, impsDir, responsesDir, accountsDir} {
		data, err := collectStoredData(filepath.Join(directory, subdirectory))
		if err != nil {
			return nil, err
		}
		storedData[subdirectory] = data
	}

	return &eagerFetcher{
		storedData:        storedData,
		categoryDirectory: filepath.Join(directory, categoryDir),
		categories:        make(map[string]map[string]stored_requests.Category),
	}, nil
}

type eagerFetcher struct {
	storedData        map[string]map[string]json.RawMessage
	categoryDirectory string

	cmu        sync.Mutex
	categories map[string]map[string]stored_requests.Category
}

func (fetcher *eagerFetcher) FetchRequests(ctx context.Context, requestIDs []string, impIDs []string) (map[string]json.RawMessage, map[string]json.RawMessage, []error) {
	errs := appendErrors("Request", requestIDs, fetcher.storedData[requestsDir], nil)
	errs = appendErrors("Imp", impIDs, fetcher.storedData[impsDir], errs)
	return fetcher.storedData[requestsDir], fetcher.storedData[impsDir], errs
}

func (fetcher *eagerFetcher) FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error) {
	return fetcher.storedData[responsesDir], appendErrors("Response", ids, fetcher.storedData[responsesDir], nil)
}

// FetchAccount fetches the host account configuration for a publisher
func (fetcher *eagerFetcher) FetchAccount(ctx context.Context, accountDefaultsJSON json.RawMessage, accountID string) (json.RawMessage, []error) {
	if len(accountID) == 0 {
		return nil, []error{fmt.Errorf("Cannot look up an empty accountID")}
	}
	accountJSON, ok := fetcher.storedData[accountsDir][accountID]
	if !ok {
		return nil, []error{stored_requests.NotFoundError{
			ID:       accountID,
			DataType: "Account",
		}}
	}

	if len(accountDefaultsJSON) == 0 {
		return accountJSON, nil
	}
	completeJSON, err := jsonpatch.MergePatch(accountDefaultsJSON, accountJSON)
	if err != nil {
		return nil, []error{err}
	}
	return completeJSON, nil
}

func (fetcher *eagerFetcher) FetchCategories(ctx context.Context, primaryAdServer, publisherId string) (map[string]string, error) {
	fileName := primaryAdServer
	if len(publisherId) != 0 {
		fileName = primaryAdServer + "_" + publisherId
	}

	fetcher.cmu.Lock()
	defer fetcher.cmu.Unlock()

	categories, ok := fetcher.categories[fileName]
	if !ok {
		file, err := os.ReadFile(filepath.Join(fetcher.categoryDirectory, primaryAdServer, fileName+".json"))
		if err != nil {
			return nil, fmt.Errorf("Unable to find mapping file for adserver: '%s', publisherId: '%s'", primaryAdServer, publisherId)
		}
		categories = make(map[string]stored_requests.Category)
		if err := json.Unmarshal(file, &categories); err != nil {
			return nil, fmt.Errorf("Unable to unmarshal categories for adserver: '%s', publisherId: '%s'", primaryAdServer, publisherId)
		}
		fetcher.categories[fileName] = categories
	}

	mapping := make(map[string]string, len(categories))
	for iabCategory, category := range categories {
		mapping[iabCategory] = category.Id
	}
	return mapping, nil
}

// collectStoredData reads every json file of the directory. A missing directory holds no data.
func collectStoredData(directory string) (map[string]json.RawMessage, error) {
	entries, err := os.ReadDir(directory)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	data := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") { // Skip the .gitignore
			continue
		}
		fileData, err := os.ReadFile(filepath.Join(directory, entry.Name()))
		if err != nil {
			return nil, err
		}
		data[strings.TrimSuffix(entry.Name(), ".json")] = json.RawMessage(fileData)
	}
	return data, nil
}

func appendErrors(dataType string, ids []string, data map[string]json.RawMessage, errs []error) []error {
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			errs = append(errs, stored_requests.NotFoundError{
				ID:       id,
				DataType: dataType,
			})
		}
	}
	return errs
}
