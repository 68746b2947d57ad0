package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/config"
)

// HTTPGateway implements Gateway against the record-store HTTP API. It does
// request/response plumbing and error mapping only; no retries, no caching.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway creates a gateway client from remote configuration.
func NewHTTPGateway(cfg config.RemoteConfig, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		token:   cfg.DeviceToken,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("gateway"),
	}
}

type identityResponse struct {
	Identity string `json:"identity"`
}

type zoneRequest struct {
	Zone transfer.ZoneID `json:"zone"`
}

type batchRequest struct {
	Records []Record `json:"records"`
}

type batchResponse struct {
	Records []Record `json:"records"`
}

type acceptResponse struct {
	RootRecord RecordID `json:"root_record"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CurrentIdentity implements Gateway.CurrentIdentity
func (g *HTTPGateway) CurrentIdentity(ctx context.Context) (string, error) {
	var resp identityResponse
	if err := g.do(ctx, http.MethodGet, "/v1/identity", nil, &resp); err != nil {
		return "", err
	}
	return resp.Identity, nil
}

// EnsureZone implements Gateway.EnsureZone
func (g *HTTPGateway) EnsureZone(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID) error {
	path := fmt.Sprintf("/v1/%s/zones", partition)
	return g.do(ctx, http.MethodPost, path, zoneRequest{Zone: zone}, nil)
}

// Save implements Gateway.Save
func (g *HTTPGateway) Save(ctx context.Context, partition transfer.Partition, rec Record) (Record, error) {
	var saved Record
	path := fmt.Sprintf("/v1/%s/records", partition)
	if err := g.do(ctx, http.MethodPost, path, rec, &saved); err != nil {
		return Record{}, err
	}
	return saved, nil
}

// SaveBatch implements Gateway.SaveBatch
func (g *HTTPGateway) SaveBatch(ctx context.Context, partition transfer.Partition, recs []Record) ([]Record, error) {
	var resp batchResponse
	path := fmt.Sprintf("/v1/%s/records/batch", partition)
	if err := g.do(ctx, http.MethodPost, path, batchRequest{Records: recs}, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Fetch implements Gateway.Fetch
func (g *HTTPGateway) Fetch(ctx context.Context, partition transfer.Partition, id RecordID) (Record, error) {
	var rec Record
	if err := g.do(ctx, http.MethodGet, recordPath(partition, id), nil, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Query implements Gateway.Query
func (g *HTTPGateway) Query(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType) ([]Record, error) {
	// The query endpoint is always paginated; drain it.
	return QueryAll(ctx, g, partition, zone, typ, 0)
}

// QueryPage implements Gateway.QueryPage
func (g *HTTPGateway) QueryPage(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType, cursor string, limit int) (Page, error) {
	query := url.Values{}
	if typ != "" {
		query.Set("type", string(typ))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := zonePath(partition, zone) + "/records"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page Page
	if err := g.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

// Delete implements Gateway.Delete
func (g *HTTPGateway) Delete(ctx context.Context, partition transfer.Partition, id RecordID) error {
	return g.do(ctx, http.MethodDelete, recordPath(partition, id), nil, nil)
}

// ResolveInvite implements Gateway.ResolveInvite
func (g *HTTPGateway) ResolveInvite(ctx context.Context, token string) (InviteMetadata, error) {
	var meta InviteMetadata
	path := "/v1/invites/" + url.PathEscape(token)
	if err := g.do(ctx, http.MethodGet, path, nil, &meta); err != nil {
		return InviteMetadata{}, err
	}
	meta.Token = token
	return meta, nil
}

// AcceptInvite implements Gateway.AcceptInvite
func (g *HTTPGateway) AcceptInvite(ctx context.Context, token string) (RecordID, error) {
	var resp acceptResponse
	path := "/v1/invites/" + url.PathEscape(token) + "/accept"
	if err := g.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return RecordID{}, err
	}
	return resp.RootRecord, nil
}

func zonePath(partition transfer.Partition, zone transfer.ZoneID) string {
	return fmt.Sprintf("/v1/%s/zones/%s/%s", partition, url.PathEscape(zone.Owner), url.PathEscape(zone.Name))
}

func recordPath(partition transfer.Partition, id RecordID) string {
	return zonePath(partition, id.Zone) + "/records/" + url.PathEscape(id.Name)
}

// do performs one request and decodes the response into out when non-nil.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, shared.ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return g.mapError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %w", method, path, shared.ErrRemoteUnavailable, err)
	}
	return nil
}

// mapError translates an error response into the domain taxonomy.
func (g *HTTPGateway) mapError(method, path string, resp *http.Response) error {
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	g.logger.Debug("remote call failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("code", body.Error.Code),
	)

	switch body.Error.Code {
	case shared.ErrInvalidInviteToken.Code:
		return fmt.Errorf("%s %s: %w", method, path, shared.ErrInvalidInviteToken)
	case shared.ErrNotFound.Code:
		return fmt.Errorf("%s %s: %w", method, path, shared.ErrNotFound)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, shared.ErrNotFound)
	}
	return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, shared.ErrRemoteUnavailable)
}
