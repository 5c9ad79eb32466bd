package jsonutil

import (
	"encoding/json"
	"errors"

	"github.com/buger/jsonparser"
	"github.com/prebid/prebid-auction/errortypes"
)

// Unmarshal decodes data into v, returning a FailedToUnmarshal error on failure so that
// callers can surface it as a coded error.
func Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &errortypes.FailedToUnmarshal{Message: err.Error()}
	}
	return nil
}

func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DropElement removes the top level key elementName from the json object in extension.
// An empty object is returned as nil.
func DropElement(extension []byte, elementName string) ([]byte, error) {
	if len(extension) == 0 {
		return extension, nil
	}
	_, _, _, err := jsonparser.Get(extension, elementName)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return extension, nil
	}
	if err != nil {
		return nil, err
	}

	result := jsonparser.Delete(extension, elementName)
	if isEmptyObject(result) {
		return nil, nil
	}
	return result, nil
}

// SetElement writes value under the top level key elementName, creating the object when
// extension is empty.
func SetElement(extension []byte, elementName string, value []byte) ([]byte, error) {
	if len(extension) == 0 {
		extension = []byte(`{}`)
	}
	return jsonparser.Set(extension, value, elementName)
}

func isEmptyObject(data []byte) bool {
	empty := true
	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		empty = false
		return nil
	})
	return err == nil && empty
}
