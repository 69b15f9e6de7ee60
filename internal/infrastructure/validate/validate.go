package validate

// FieldError invalid request parameter
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

// Validator checks request payloads against their `validate` tags
type Validator interface {
	// Struct returns nil when s is valid
	Struct(s interface{}) []*FieldError
	// Var validate a single value against tag, name is reported as the error domain
	Var(name string, value interface{}, tag string) []*FieldError
}
