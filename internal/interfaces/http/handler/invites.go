package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/dto"
	"github.com/transfertrack/backend/internal/interfaces/http/middleware"
)

// ResolveInvite handles GET /v1/invites/{token}. The token's embedded
// location is only a hint; the share row is authoritative, so a list that
// moved or was re-shared still resolves correctly.
func (h *Handler) ResolveInvite(c *gin.Context) {
	share, ok := h.shareForToken(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.InviteMetadataResponse{
		Token:     c.Param("token"),
		ShareName: share.ShareName,
		Title:     share.Title,
		RootRecord: dto.RecordIDPayload{
			Name: share.RootName,
			Zone: dto.ZonePayload{Name: share.ZoneName, Owner: share.ZoneOwner},
		},
	})
}

// AcceptInvite handles POST /v1/invites/{token}/accept. Accepting is
// idempotent: re-accepting an already joined share succeeds without
// duplicating the participant.
func (h *Handler) AcceptInvite(c *gin.Context) {
	share, ok := h.shareForToken(c)
	if !ok {
		return
	}

	identity := middleware.GetIdentity(c)
	if identity == share.OwnerIdentity {
		h.badRequest(c, "Share owner cannot accept their own invite")
		return
	}

	participant := recordpersist.Participant{
		Identity:    identity,
		DisplayName: middleware.GetDisplayName(c),
		Role:        "participant",
		Permission:  share.Permission,
	}
	if err := h.shares.AddParticipant(c.Request.Context(), share.ID, participant); err != nil {
		h.handleErr(c, err)
		return
	}
	if err := h.reflectParticipant(c, share, participant); err != nil {
		h.handleErr(c, err)
		return
	}

	h.logger.Info("invite accepted",
		zap.String("share", share.ShareName), zap.String("identity", identity))
	c.JSON(http.StatusOK, dto.AcceptResponse{
		RootRecord: dto.RecordIDPayload{
			Name: share.RootName,
			Zone: dto.ZonePayload{Name: share.ZoneName, Owner: share.ZoneOwner},
		},
	})
}

// shareForToken validates the invite token and loads its share row. Invalid,
// expired and dangling tokens are indistinguishable to the caller.
func (h *Handler) shareForToken(c *gin.Context) (*recordpersist.ShareRow, bool) {
	claims, err := h.invites.Validate(c.Param("token"))
	if err != nil {
		h.error(c, http.StatusNotFound, dto.ErrCodeInvalidInviteToken, "Invite token is invalid or expired")
		return nil, false
	}

	share, err := h.shares.GetByID(c.Request.Context(), claims.ShareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.error(c, http.StatusNotFound, dto.ErrCodeInvalidInviteToken, "Invite token is invalid or expired")
			return nil, false
		}
		h.handleErr(c, err)
		return nil, false
	}
	return share, true
}

// reflectParticipant mirrors a newly accepted participant onto the stored
// share record so clients fetching it see the current roster.
func (h *Handler) reflectParticipant(c *gin.Context, share *recordpersist.ShareRow, participant recordpersist.Participant) error {
	ctx := c.Request.Context()
	row, err := h.records.Get(ctx, share.ZoneOwner, share.ZoneName, share.ShareName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var payload dto.SharePayload
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &payload); err != nil {
			return err
		}
	}
	for _, p := range payload.Participants {
		if p.Identity == participant.Identity {
			return nil
		}
	}
	payload.Participants = append(payload.Participants, dto.ParticipantPayload{
		Identity:    participant.Identity,
		DisplayName: participant.DisplayName,
		Role:        participant.Role,
		Permission:  participant.Permission,
	})

	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	row.Fields = encoded
	return h.records.Upsert(ctx, row)
}
