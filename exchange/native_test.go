package exchange

import (
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestAddNativeTypes(t *testing.T) {
	nativeRequest := `{"assets":[{"id":1,"img":{"type":3}},{"id":2,"data":{"type":2}},{"id":3,"img":{}}]}`

	testCases := []struct {
		description   string
		imp           *openrtb2.Imp
		adm           string
		assetsPath    string
		expectedIDs   []int64
		expectedTypes map[string]int64
		expectedError bool
	}{
		{
			description:   "types copied from the request",
			imp:           &openrtb2.Imp{ID: "imp", Native: &openrtb2.Native{Request: nativeRequest}},
			adm:           `{"assets":[{"id":1,"img":{"url":"http://img"}},{"id":2,"data":{"value":"brand"}}]}`,
			assetsPath:    "assets",
			expectedIDs:   []int64{1, 2},
			expectedTypes: map[string]int64{"assets.0.img.type": 3, "assets.1.data.type": 2},
		},
		{
			description: "untyped and unknown assets are dropped",
			imp:         &openrtb2.Imp{ID: "imp", Native: &openrtb2.Native{Request: nativeRequest}},
			adm:         `{"assets":[{"id":3,"img":{"url":"http://img"}},{"id":9,"img":{"url":"http://img"}},{"id":4,"title":{"text":"title"}}]}`,
			assetsPath:  "assets",
			expectedIDs: []int64{4},
		},
		{
			description:   "wrapped markup and request",
			imp:           &openrtb2.Imp{ID: "imp", Native: &openrtb2.Native{Request: `{"native":` + nativeRequest + `}`}},
			adm:           `{"native":{"assets":[{"id":1,"img":{"url":"http://img"}}]}}`,
			assetsPath:    "native.assets",
			expectedIDs:   []int64{1},
			expectedTypes: map[string]int64{"native.assets.0.img.type": 3},
		},
	}

	for _, test := range testCases {
		t.Run(test.description, func(t *testing.T) {
			adm, err := addNativeTypes(&openrtb2.Bid{AdM: test.adm}, test.imp)
			assert.NoError(t, err)

			var ids []int64
			for _, asset := range gjson.Get(adm, test.assetsPath).Array() {
				ids = append(ids, asset.Get("id").Int())
			}
			assert.Equal(t, test.expectedIDs, ids)
			for path, expected := range test.expectedTypes {
				assert.Equal(t, expected, gjson.Get(adm, path).Int(), path)
			}
		})
	}
}

func TestAddNativeTypesKeepsMarkup(t *testing.T) {
	testCases := []struct {
		description   string
		imp           *openrtb2.Imp
		adm           string
		expectedError bool
	}{
		{
			description: "markup which is not native",
			imp:         &openrtb2.Imp{ID: "imp", Native: &openrtb2.Native{Request: `{"assets":[]}`}},
			adm:         `<div>ad</div>`,
		},
		{
			description: "imp without native",
			imp:         &openrtb2.Imp{ID: "imp"},
			adm:         `{"assets":[{"id":1,"img":{"url":"http://img"}}]}`,
		},
		{
			description:   "invalid native request",
			imp:           &openrtb2.Imp{ID: "imp", Native: &openrtb2.Native{Request: `{`}},
			adm:           `{"assets":[{"id":1,"img":{"url":"http://img"}}]}`,
			expectedError: true,
		},
	}

	for _, test := range testCases {
		adm, err := addNativeTypes(&openrtb2.Bid{AdM: test.adm}, test.imp)
		assert.Equal(t, test.expectedError, err != nil, test.description)
		assert.Equal(t, test.adm, adm, test.description)
	}
}
