// Package handler implements the record store's HTTP endpoints. The server
// stores family payloads as opaque JSON; only Share records get interpreted,
// because they drive invite issuance and participant bookkeeping.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/auth"
	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/dto"
	"github.com/transfertrack/backend/internal/interfaces/http/middleware"
)

// Handler serves the record store API.
type Handler struct {
	records *recordpersist.RecordRepository
	shares  *recordpersist.ShareRepository
	invites *auth.InviteTokenService
	logger  *zap.Logger
}

// New creates the API handler.
func New(records *recordpersist.RecordRepository, shares *recordpersist.ShareRepository, invites *auth.InviteTokenService, logger *zap.Logger) *Handler {
	return &Handler{
		records: records,
		shares:  shares,
		invites: invites,
		logger:  logger.Named("handler"),
	}
}

func (h *Handler) error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(code, message))
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, message)
}

func (h *Handler) notFound(c *gin.Context, message string) {
	h.error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

func (h *Handler) forbidden(c *gin.Context, message string) {
	h.error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// handleErr maps persistence errors onto the wire taxonomy.
func (h *Handler) handleErr(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.notFound(c, "Record not found")
		return
	}
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()), zap.Error(err))
	h.error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// partitionOf validates the partition path segment.
func (h *Handler) partitionOf(c *gin.Context) (transfer.Partition, bool) {
	partition := transfer.Partition(c.Param("partition"))
	switch partition {
	case transfer.PartitionOwn, transfer.PartitionShared:
		return partition, true
	default:
		h.badRequest(c, fmt.Sprintf("unknown partition %q", c.Param("partition")))
		return "", false
	}
}

// authorizeZone resolves the current-user owner marker and enforces
// partition access: the own partition only reaches the caller's zones, the
// shared partition only zones of shares the caller participates in.
func (h *Handler) authorizeZone(c *gin.Context, partition transfer.Partition, zoneName, zoneOwner string) (string, bool) {
	identity := middleware.GetIdentity(c)
	owner := zoneOwner
	if owner == transfer.CurrentUserZoneOwner || owner == "" {
		owner = identity
	}

	switch partition {
	case transfer.PartitionOwn:
		if owner != identity {
			h.forbidden(c, "Own partition only reaches the caller's zones")
			return "", false
		}
	case transfer.PartitionShared:
		if owner == identity {
			h.forbidden(c, "Shared partition never reaches the caller's own zones")
			return "", false
		}
		participates, err := h.shares.ParticipatesIn(c.Request.Context(), identity, owner, zoneName)
		if err != nil {
			h.handleErr(c, err)
			return "", false
		}
		if !participates {
			h.forbidden(c, "No share grants access to this zone")
			return "", false
		}
	}
	return owner, true
}

// rowFromPayload flattens a wire record into its storage row.
func rowFromPayload(p dto.RecordPayload, owner string) (*recordpersist.RecordRow, error) {
	var family any
	switch p.Type {
	case "TransferList":
		family = p.List
	case "Product":
		family = p.Product
	case "ActivityEvent":
		family = p.Event
	case "Share":
		family = p.Share
	default:
		return nil, fmt.Errorf("invalid record type %q", p.Type)
	}

	fields, err := json.Marshal(family)
	if err != nil {
		return nil, fmt.Errorf("encode record fields: %w", err)
	}
	return &recordpersist.RecordRow{
		ZoneOwner: owner,
		ZoneName:  p.Zone.Name,
		Name:      p.Name,
		Type:      p.Type,
		Fields:    fields,
	}, nil
}

// payloadFromRow rebuilds the wire record from its storage row.
func payloadFromRow(row *recordpersist.RecordRow) (dto.RecordPayload, error) {
	payload := dto.RecordPayload{
		Name: row.Name,
		Type: row.Type,
		Zone: dto.ZonePayload{Name: row.ZoneName, Owner: row.ZoneOwner},
	}
	if len(row.Fields) == 0 {
		return payload, nil
	}

	var err error
	switch row.Type {
	case "TransferList":
		err = json.Unmarshal(row.Fields, &payload.List)
	case "Product":
		err = json.Unmarshal(row.Fields, &payload.Product)
	case "ActivityEvent":
		err = json.Unmarshal(row.Fields, &payload.Event)
	case "Share":
		payload.Share = &dto.SharePayload{}
		err = json.Unmarshal(row.Fields, payload.Share)
	}
	if err != nil {
		return dto.RecordPayload{}, fmt.Errorf("decode record fields: %w", err)
	}
	return payload, nil
}
