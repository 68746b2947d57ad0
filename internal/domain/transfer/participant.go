package transfer

// ParticipantRole distinguishes the share owner from joined participants.
type ParticipantRole string

const (
	RoleOwner       ParticipantRole = "owner"
	RoleParticipant ParticipantRole = "participant"
)

// UnknownParticipantName is shown when the remote side has no resolved
// display name for an identity.
const UnknownParticipantName = "Unknown participant"

// ShareParticipant is derived on demand from a fetched share record. It is
// never persisted locally.
type ShareParticipant struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Role        ParticipantRole `json:"role"`
	Permission  string          `json:"permission"`
}
