package errortypes

type Scope int

const (
	ScopeAny Scope = iota
	ScopeDebug
)

type Scoped interface {
	Scope() Scope
}

// ReadScope returns ScopeDebug for errors which should only reach the response when debug is on.
func ReadScope(err error) Scope {
	if e, ok := err.(Scoped); ok {
		return e.Scope()
	}
	return ScopeAny
}
