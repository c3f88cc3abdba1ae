package catalog

import "errors"

// Error taxonomy shared by every service. Callers wrap these with %w and
// match them with errors.Is; the API maps each to its own status code.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrReference  = errors.New("reference error")
	ErrUpstream   = errors.New("upstream error")
)
