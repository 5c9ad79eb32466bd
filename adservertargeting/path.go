package adservertargeting

import (
	"strings"

	"github.com/tidwall/gjson"
)

const pathDelimiter = "."

// gjson treats these as path syntax, so they are escaped inside a single segment.
var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`#`, `\#`,
	`|`, `\|`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
	`<`, `\<`,
	`>`, `\>`,
	`%`, `\%`,
)

func toGJSONPath(path string) string {
	segments := strings.Split(path, pathDelimiter)
	for i, segment := range segments {
		segments[i] = pathEscaper.Replace(segment)
	}
	return strings.Join(segments, pathDelimiter)
}

// lookupScalar walks data by the dotted path and returns the value as a string. Objects, arrays,
// null and missing values report false.
func lookupScalar(data []byte, path string) (string, bool) {
	if len(data) == 0 || path == "" {
		return "", false
	}

	result := gjson.GetBytes(data, toGJSONPath(path))
	switch result.Type {
	case gjson.String:
		return result.Str, true
	case gjson.Number:
		return result.Raw, true
	case gjson.True:
		return "true", true
	case gjson.False:
		return "false", true
	}
	return "", false
}
