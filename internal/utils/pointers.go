package utils

// Value dereferences v, returning the zero value for nil. It reads optional
// JSON fields that the provider sends as null.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}
