package ptrutil

func ToPtr[T any](v T) *T {
	return &v
}

// Clone returns a shallow copy of the pointed-to value, or nil.
func Clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	clone := *v
	return &clone
}

func ValueOrDefault[T any](v *T) T {
	if v != nil {
		return *v
	}

	var def T
	return def
}
