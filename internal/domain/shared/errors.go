package shared

// DomainError is an error with a stable machine-readable code. Services
// mint specific codes at the point of failure; the sentinels below cover
// the handful of conditions every layer checks for.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError builds a DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

var (
	ErrNotFound       = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidState   = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrTenantRequired = NewDomainError("TENANT_REQUIRED", "Tenant ID is required")
)
