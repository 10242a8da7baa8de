package models

// ValidationResult is the successful outcome of a transition validation.
// Warnings and recommendations never block the transition; they surface
// advisory information to the caller.
type ValidationResult struct {
	Valid           bool     `json:"valid"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// NewValidationResult returns a passing result with empty advisory slices so
// API responses always render arrays instead of null.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:           true,
		Warnings:        []string{},
		Recommendations: []string{},
	}
}
