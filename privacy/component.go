package privacy

import (
	"strings"
)

const (
	ComponentTypeBidder  = "bidder"
	ComponentTypeGeneral = "general"
)

// Component is the subject of an activity check, such as a bidder.
type Component struct {
	Type string
	Name string
}

// MatchesName reports whether v names the component, either plainly ("appnexus") or scoped
// by type ("bidder.appnexus"). The comparison is case insensitive.
func (c Component) MatchesName(v string) bool {
	if strings.EqualFold(c.Name, v) {
		return true
	}

	componentType, name, scoped := strings.Cut(v, ".")
	return scoped && strings.EqualFold(c.Type, componentType) && strings.EqualFold(c.Name, name)
}
