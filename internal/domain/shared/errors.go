package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrNotOwner            = NewDomainError("NOT_OWNER", "Only the list owner may perform this action")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrLocalIO             = NewDomainError("LOCAL_IO", "Local persistence operation failed")
	ErrRemoteUnavailable   = NewDomainError("REMOTE_UNAVAILABLE", "Remote record store is unreachable or rejected the request")
	ErrShareCreationFailed = NewDomainError("SHARE_CREATION_FAILED", "Share could not be created")
	ErrInvalidInviteToken  = NewDomainError("INVALID_INVITE_TOKEN", "Invitation token is malformed or unresolvable")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
)
