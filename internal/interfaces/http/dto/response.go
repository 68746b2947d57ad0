// Package dto defines the record store API's wire envelopes. The protocol is
// deliberately thin: success bodies are the payload itself, failures are a
// single error object whose code matches the client's domain error taxonomy.
package dto

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorInfo{Code: code, Message: message}}
}

// Error codes understood by gateway clients.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidInviteToken = "INVALID_INVITE_TOKEN"
	ErrCodeDuplicateRequest   = "DUPLICATE_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// IdentityResponse is the body of GET /v1/identity.
type IdentityResponse struct {
	Identity string `json:"identity"`
}

// ZoneRequest is the body of POST /v1/{partition}/zones.
type ZoneRequest struct {
	Zone ZonePayload `json:"zone" binding:"required"`
}

// ZonePayload names a zone on the wire.
type ZonePayload struct {
	Name  string `json:"name" binding:"required,max=128,recordname"`
	Owner string `json:"owner" binding:"required,max=128"`
}

// BatchRequest is the body of POST /v1/{partition}/records/batch.
type BatchRequest struct {
	Records []RecordPayload `json:"records" binding:"required,min=1,dive"`
}

// BatchResponse mirrors the saved records back to the caller.
type BatchResponse struct {
	Records []RecordPayload `json:"records"`
}

// RecordPayload is the typed record envelope on the wire. Fields holds the
// family payload verbatim; the server stores it without interpreting it,
// except for Share records which drive share bookkeeping.
type RecordPayload struct {
	Name    string         `json:"name" binding:"required,max=128,recordname"`
	Type    string         `json:"type" binding:"required,oneof=TransferList Product ActivityEvent Share"`
	Zone    ZonePayload    `json:"zone" binding:"required"`
	List    map[string]any `json:"list,omitempty"`
	Product map[string]any `json:"product,omitempty"`
	Event   map[string]any `json:"event,omitempty"`
	Share   *SharePayload  `json:"share,omitempty"`
}

// SharePayload is the Share family schema the server understands.
type SharePayload struct {
	Title        string               `json:"title"`
	Permission   string               `json:"permission"`
	RootRef      string               `json:"root_ref" binding:"required"`
	Owner        ParticipantPayload   `json:"owner"`
	Participants []ParticipantPayload `json:"participants,omitempty"`
	Token        string               `json:"token,omitempty"`
}

// ParticipantPayload describes one identity on a share.
type ParticipantPayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Permission  string `json:"permission"`
}

// PageResponse is one slice of a paginated zone query.
type PageResponse struct {
	Records []RecordPayload `json:"records"`
	Cursor  string          `json:"cursor,omitempty"`
}

// RecordIDPayload addresses a record.
type RecordIDPayload struct {
	Name string      `json:"name"`
	Zone ZonePayload `json:"zone"`
}

// InviteMetadataResponse is the body of GET /v1/invites/{token}.
type InviteMetadataResponse struct {
	Token      string          `json:"token"`
	ShareName  string          `json:"share_name"`
	Title      string          `json:"title"`
	RootRecord RecordIDPayload `json:"root_record"`
}

// AcceptResponse is the body of POST /v1/invites/{token}/accept.
type AcceptResponse struct {
	RootRecord RecordIDPayload `json:"root_record"`
}
