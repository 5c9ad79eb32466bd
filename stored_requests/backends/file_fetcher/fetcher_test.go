package file_fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prebid/prebid-auction/stored_requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestFetcher(t *testing.T) stored_requests.AllFetcher {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "stored_requests", "1.json"), `{"test":"foo"}`)
	writeTestFile(t, filepath.Join(dir, "stored_imps", "some-imp.json"), `{"video":{"w":640}}`)
	writeTestFile(t, filepath.Join(dir, "stored_imps", ".gitignore"), `*`)
	writeTestFile(t, filepath.Join(dir, "stored_responses", "resp-1.json"), `{"seatbid":[]}`)
	writeTestFile(t, filepath.Join(dir, "accounts", "valid.json"), `{"id":"valid","events":{"enabled":true}}`)
	writeTestFile(t, filepath.Join(dir, "categories", "freewheel", "freewheel.json"), `{"IAB1-1":{"id":"Sports","name":"Sports"}}`)
	writeTestFile(t, filepath.Join(dir, "categories", "freewheel", "freewheel_pub.json"), `{"IAB1-1":{"id":"PubSports","name":"Sports"}}`)

	fetcher, err := NewFileFetcher(dir)
	require.NoError(t, err)
	return fetcher
}

func TestFileFetcher(t *testing.T) {
	fetcher := newTestFetcher(t)

	storedReqs, storedImps, errs := fetcher.FetchRequests(context.Background(), []string{"1"}, []string{"some-imp", "missing-imp"})
	assert.JSONEq(t, `{"test":"foo"}`, string(storedReqs["1"]))
	assert.JSONEq(t, `{"video":{"w":640}}`, string(storedImps["some-imp"]))
	assert.Equal(t, []error{stored_requests.NotFoundError{ID: "missing-imp", DataType: "Imp"}}, errs)

	storedResps, errs := fetcher.FetchResponses(context.Background(), []string{"resp-1"})
	assert.Empty(t, errs)
	assert.Contains(t, storedResps, "resp-1")
}

func TestAccountFetcher(t *testing.T) {
	fetcher := newTestFetcher(t)

	account, errs := fetcher.FetchAccount(context.Background(), []byte(`{"debug_allow":true,"events":{"enabled":false}}`), "valid")
	assert.Empty(t, errs)
	assert.JSONEq(t, `{"id":"valid","debug_allow":true,"events":{"enabled":true}}`, string(account))

	_, errs = fetcher.FetchAccount(context.Background(), nil, "nonexistent")
	assert.Equal(t, []error{stored_requests.NotFoundError{ID: "nonexistent", DataType: "Account"}}, errs)

	_, errs = fetcher.FetchAccount(context.Background(), nil, "")
	assert.Len(t, errs, 1)
}

func TestCategoriesFetcher(t *testing.T) {
	fetcher := newTestFetcher(t)

	tests := []struct {
		description string
		adServer    string
		publisher   string
		expected    map[string]string
		expectError bool
	}{
		{description: "ad-server-wide", adServer: "freewheel", expected: map[string]string{"IAB1-1": "Sports"}},
		{description: "publisher-specific", adServer: "freewheel", publisher: "pub", expected: map[string]string{"IAB1-1": "PubSports"}},
		{description: "missing-file", adServer: "dfp", expectError: true},
	}

	for _, test := range tests {
		mapping, err := fetcher.FetchCategories(context.Background(), test.adServer, test.publisher)
		if test.expectError {
			assert.Error(t, err, test.description)
			continue
		}
		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expected, mapping, test.description)
	}
}

func TestInvalidDirectory(t *testing.T) {
	_, err := NewFileFetcher("./nonexistant-directory")
	assert.Error(t, err, "There should be an error if we use a directory which doesn't exist.")
}
