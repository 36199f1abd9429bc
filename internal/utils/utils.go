package utils

// Ptr returns a pointer to v, for inline optional fields.
func Ptr[T any](v T) *T {
	return &v
}
