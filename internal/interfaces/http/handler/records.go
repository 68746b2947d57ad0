package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/auth"
	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/dto"
	"github.com/transfertrack/backend/internal/interfaces/http/middleware"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Identity handles GET /v1/identity
func (h *Handler) Identity(c *gin.Context) {
	c.JSON(http.StatusOK, dto.IdentityResponse{Identity: middleware.GetIdentity(c)})
}

// EnsureZone handles POST /v1/{partition}/zones
func (h *Handler) EnsureZone(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}

	var req dto.ZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	owner, ok := h.authorizeZone(c, partition, req.Zone.Name, req.Zone.Owner)
	if !ok {
		return
	}
	if err := h.records.EnsureZone(c.Request.Context(), owner, req.Zone.Name); err != nil {
		h.handleErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveRecord handles POST /v1/{partition}/records
func (h *Handler) SaveRecord(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}

	var payload dto.RecordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	saved, ok := h.saveOne(c, partition, payload)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, saved)
}

// SaveBatch handles POST /v1/{partition}/records/batch. The batch is atomic
// for record rows; share bookkeeping happens after the rows are committed.
func (h *Handler) SaveBatch(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}

	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	// Authorize and flatten everything before writing anything.
	owners := make([]string, len(req.Records))
	rows := make([]*recordpersist.RecordRow, len(req.Records))
	for i, payload := range req.Records {
		owner, ok := h.authorizeZone(c, partition, payload.Zone.Name, payload.Zone.Owner)
		if !ok {
			return
		}
		row, err := rowFromPayload(payload, owner)
		if err != nil {
			h.badRequest(c, err.Error())
			return
		}
		owners[i] = owner
		rows[i] = row
	}

	if err := h.records.UpsertBatch(c.Request.Context(), rows); err != nil {
		h.handleErr(c, err)
		return
	}

	results := make([]dto.RecordPayload, 0, len(req.Records))
	for i, payload := range req.Records {
		payload.Zone.Owner = owners[i]
		if payload.Type == "Share" && payload.Share != nil {
			issued, err := h.issueShare(c, owners[i], &payload)
			if err != nil {
				h.handleErr(c, err)
				return
			}
			payload = issued
		}
		results = append(results, payload)
	}
	c.JSON(http.StatusOK, dto.BatchResponse{Records: results})
}

// FetchRecord handles GET /v1/{partition}/zones/{owner}/{zone}/records/{name}
func (h *Handler) FetchRecord(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}
	owner, ok := h.authorizeZone(c, partition, c.Param("zone"), c.Param("owner"))
	if !ok {
		return
	}

	row, err := h.records.Get(c.Request.Context(), owner, c.Param("zone"), c.Param("name"))
	if err != nil {
		h.handleErr(c, err)
		return
	}
	payload, err := payloadFromRow(row)
	if err != nil {
		h.handleErr(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// QueryRecords handles GET /v1/{partition}/zones/{owner}/{zone}/records
func (h *Handler) QueryRecords(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}
	owner, ok := h.authorizeZone(c, partition, c.Param("zone"), c.Param("owner"))
	if !ok {
		return
	}

	offset := 0
	if cursor := c.Query("cursor"); cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			h.badRequest(c, "malformed cursor")
			return
		}
		offset = parsed
	}
	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.badRequest(c, "malformed limit")
			return
		}
		limit = min(parsed, maxPageLimit)
	}

	rows, total, err := h.records.Query(c.Request.Context(), owner, c.Param("zone"), c.Query("type"), offset, limit)
	if err != nil {
		h.handleErr(c, err)
		return
	}

	page := dto.PageResponse{Records: make([]dto.RecordPayload, 0, len(rows))}
	for i := range rows {
		payload, err := payloadFromRow(&rows[i])
		if err != nil {
			h.handleErr(c, err)
			return
		}
		page.Records = append(page.Records, payload)
	}
	if int64(offset+len(rows)) < total {
		page.Cursor = strconv.Itoa(offset + len(rows))
	}
	c.JSON(http.StatusOK, page)
}

// DeleteRecord handles DELETE /v1/{partition}/zones/{owner}/{zone}/records/{name}
func (h *Handler) DeleteRecord(c *gin.Context) {
	partition, ok := h.partitionOf(c)
	if !ok {
		return
	}
	owner, ok := h.authorizeZone(c, partition, c.Param("zone"), c.Param("owner"))
	if !ok {
		return
	}

	if err := h.records.Delete(c.Request.Context(), owner, c.Param("zone"), c.Param("name")); err != nil {
		h.handleErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// saveOne authorizes, persists and post-processes a single record.
func (h *Handler) saveOne(c *gin.Context, partition transfer.Partition, payload dto.RecordPayload) (dto.RecordPayload, bool) {
	owner, ok := h.authorizeZone(c, partition, payload.Zone.Name, payload.Zone.Owner)
	if !ok {
		return dto.RecordPayload{}, false
	}

	row, err := rowFromPayload(payload, owner)
	if err != nil {
		h.badRequest(c, err.Error())
		return dto.RecordPayload{}, false
	}
	if err := h.records.Upsert(c.Request.Context(), row); err != nil {
		h.handleErr(c, err)
		return dto.RecordPayload{}, false
	}

	payload.Zone.Owner = owner
	if payload.Type == "Share" && payload.Share != nil {
		issued, err := h.issueShare(c, owner, &payload)
		if err != nil {
			h.handleErr(c, err)
			return dto.RecordPayload{}, false
		}
		payload = issued
	}
	return payload, true
}

// issueShare registers share state for a saved Share record: upsert the
// share row, mint its invite token, stamp the token back into the stored
// record and the share back-reference onto the root record.
func (h *Handler) issueShare(c *gin.Context, owner string, payload *dto.RecordPayload) (dto.RecordPayload, error) {
	ctx := c.Request.Context()
	share := payload.Share

	ownerIdentity := share.Owner.Identity
	if ownerIdentity == "" {
		ownerIdentity = middleware.GetIdentity(c)
	}

	row := &recordpersist.ShareRow{
		ID:            uuid.NewString(),
		ShareName:     payload.Name,
		RootName:      share.RootRef,
		ZoneOwner:     owner,
		ZoneName:      payload.Zone.Name,
		OwnerIdentity: ownerIdentity,
		Title:         share.Title,
		Permission:    share.Permission,
	}
	if err := h.shares.Upsert(ctx, row); err != nil {
		return dto.RecordPayload{}, err
	}

	token, err := h.invites.Generate(auth.GenerateInput{
		ShareID:   row.ID,
		ShareName: payload.Name,
		RootName:  share.RootRef,
		ZoneOwner: owner,
		ZoneName:  payload.Zone.Name,
	})
	if err != nil {
		return dto.RecordPayload{}, err
	}
	share.Token = token

	// Re-store the share record with its token so later fetches return it.
	updated, err := rowFromPayload(*payload, owner)
	if err != nil {
		return dto.RecordPayload{}, err
	}
	if err := h.records.Upsert(ctx, updated); err != nil {
		return dto.RecordPayload{}, err
	}

	if err := h.stampShareRef(ctx, owner, payload.Zone.Name, share.RootRef, payload.Name); err != nil {
		return dto.RecordPayload{}, err
	}

	h.logger.Info("share issued",
		zap.String("share", payload.Name), zap.String("root", share.RootRef))
	return *payload, nil
}

// stampShareRef writes the share back-reference onto the root list record.
func (h *Handler) stampShareRef(ctx context.Context, owner, zone, rootName, shareName string) error {
	row, err := h.records.Get(ctx, owner, zone, rootName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Root not pushed yet; the reference lands with the next save.
		return nil
	}
	if err != nil {
		return err
	}

	var fields map[string]any
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &fields); err != nil {
			return err
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["share_ref"] = shareName

	encoded, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	row.Fields = encoded
	return h.records.Upsert(ctx, row)
}
