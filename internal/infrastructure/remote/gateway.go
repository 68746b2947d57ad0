// Package remote abstracts the remote record store: two partitions (own and
// shared), each split into owner-scoped zones, addressed through a
// key/value-style record API plus a sharing primitive. The gateway never
// retries; retry policy belongs to callers.
package remote

import (
	"context"

	"github.com/transfertrack/backend/internal/domain/transfer"
)

// InviteMetadata is what an opaque invite token resolves to. The root record
// location may be stale; accept-then-fetch-by-id is the authoritative path.
type InviteMetadata struct {
	Token      string   `json:"token"`
	ShareName  string   `json:"share_name"`
	Title      string   `json:"title"`
	RootRecord RecordID `json:"root_record"`
}

// Page is one slice of a paginated query. An empty Cursor means the remote
// signalled no further continuation.
type Page struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

// Gateway is the remote record store abstraction. Every call may fail with
// shared.ErrRemoteUnavailable on connectivity or authorization trouble.
type Gateway interface {
	// CurrentIdentity resolves the caller's stable identity reference.
	CurrentIdentity(ctx context.Context) (string, error)

	// EnsureZone idempotently creates a record zone.
	EnsureZone(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID) error

	// Save upserts a record by (zone, name). Saving identical content twice
	// leaves remote state unchanged.
	Save(ctx context.Context, partition transfer.Partition, rec Record) (Record, error)

	// SaveBatch atomically upserts several records; either all are written
	// or none.
	SaveBatch(ctx context.Context, partition transfer.Partition, recs []Record) ([]Record, error)

	// Fetch retrieves one record by id. Returns shared.ErrNotFound when the
	// record does not exist.
	Fetch(ctx context.Context, partition transfer.Partition, id RecordID) (Record, error)

	// Query returns all records of one type within a single zone. The
	// shared partition rejects cross-zone queries, so there is no broader
	// form. Ordering is unspecified; sort client-side.
	Query(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType) ([]Record, error)

	// QueryPage returns one page of a full-zone query, restartable via the
	// opaque cursor.
	QueryPage(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType, cursor string, limit int) (Page, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, partition transfer.Partition, id RecordID) error

	// ResolveInvite resolves an opaque invite token into share metadata.
	// Returns shared.ErrInvalidInviteToken for malformed or unknown tokens.
	ResolveInvite(ctx context.Context, token string) (InviteMetadata, error)

	// AcceptInvite registers the caller as a participant and returns the
	// root record's actual id and zone.
	AcceptInvite(ctx context.Context, token string) (RecordID, error)
}

// Cursor lazily walks a paginated full-zone query one page at a time.
type Cursor struct {
	gw        Gateway
	partition transfer.Partition
	zone      transfer.ZoneID
	typ       RecordType
	pageSize  int
	next      string
	done      bool
}

// PaginatedQuery starts a lazy full-zone query. A pageSize of zero defers to
// the remote's default page size.
func PaginatedQuery(gw Gateway, partition transfer.Partition, zone transfer.ZoneID, typ RecordType, pageSize int) *Cursor {
	return &Cursor{gw: gw, partition: partition, zone: zone, typ: typ, pageSize: pageSize}
}

// Next fetches the following non-empty page. A remote may return an empty
// page that still carries a continuation; exhaustion is signalled by the
// absent cursor only, so such pages are skipped. Returns (nil, nil) once the
// query is exhausted.
func (c *Cursor) Next(ctx context.Context) ([]Record, error) {
	for !c.done {
		page, err := c.gw.QueryPage(ctx, c.partition, c.zone, c.typ, c.next, c.pageSize)
		if err != nil {
			return nil, err
		}
		c.next = page.Cursor
		if c.next == "" {
			c.done = true
		}
		if len(page.Records) > 0 {
			return page.Records, nil
		}
	}
	return nil, nil
}

// QueryAll drains a paginated full-zone query, looping until the remote
// reports no further continuation.
func QueryAll(ctx context.Context, gw Gateway, partition transfer.Partition, zone transfer.ZoneID, typ RecordType, pageSize int) ([]Record, error) {
	cursor := PaginatedQuery(gw, partition, zone, typ, pageSize)
	var records []Record
	for {
		page, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return records, nil
		}
		records = append(records, page...)
	}
}
