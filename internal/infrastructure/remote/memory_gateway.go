package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
)

const defaultPageSize = 50

type zoneKey struct {
	Owner string
	Name  string
}

type shareState struct {
	token         string
	shareName     string
	title         string
	root          RecordID
	ownerIdentity string
	participants  map[string]ShareParticipantInfo
	// issuedMeta is the invite metadata frozen at issue time; it may go
	// stale if the root record later moves.
	issuedMeta InviteMetadata
}

// MemoryBackend is the process-wide state behind one or more MemoryGateways.
// Several gateways sharing a backend model several devices talking to the
// same remote store.
type MemoryBackend struct {
	mu      sync.Mutex
	zones   map[zoneKey]bool
	records map[zoneKey]map[string]Record
	shares  map[string]*shareState // keyed by token

	// Unavailable makes every call from every gateway fail, simulating an
	// unreachable remote store.
	Unavailable bool
	// DropShareFromBatch makes SaveBatch skip Share records and omit them
	// from results, simulating the partial batch outcome share creation
	// must guard against.
	DropShareFromBatch bool
	// PageSize bounds QueryPage results; zero means the default.
	PageSize int
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		zones:   make(map[zoneKey]bool),
		records: make(map[zoneKey]map[string]Record),
		shares:  make(map[string]*shareState),
	}
}

// Gateway returns a device-scoped view of the backend.
func (b *MemoryBackend) Gateway(identity, displayName string) *MemoryGateway {
	return &MemoryGateway{backend: b, identity: identity, displayName: displayName}
}

// MemoryGateway implements Gateway in-process for one device identity.
type MemoryGateway struct {
	backend     *MemoryBackend
	identity    string
	displayName string

	// Unavailable makes every call from this gateway fail.
	Unavailable bool
}

func (g *MemoryGateway) available() error {
	if g.Unavailable || g.backend.Unavailable {
		return fmt.Errorf("memory gateway: %w", shared.ErrRemoteUnavailable)
	}
	return nil
}

// resolveZone substitutes the caller's identity for the current-user owner
// marker and enforces partition ownership.
func (g *MemoryGateway) resolveZone(partition transfer.Partition, zone transfer.ZoneID) (zoneKey, error) {
	owner := zone.Owner
	if owner == transfer.CurrentUserZoneOwner || owner == "" {
		owner = g.identity
	}
	if partition == transfer.PartitionOwn && owner != g.identity {
		return zoneKey{}, fmt.Errorf("own-partition access to foreign zone %q: %w", zone.Name, shared.ErrRemoteUnavailable)
	}
	if partition == transfer.PartitionShared && owner == g.identity {
		return zoneKey{}, fmt.Errorf("shared-partition access to caller's own zone %q: %w", zone.Name, shared.ErrRemoteUnavailable)
	}
	return zoneKey{Owner: owner, Name: zone.Name}, nil
}

// participatesIn reports whether the caller joined any share rooted in the
// given zone.
func (g *MemoryGateway) participatesIn(key zoneKey) bool {
	for _, share := range g.backend.shares {
		rootKey := zoneKey{Owner: share.root.Zone.Owner, Name: share.root.Zone.Name}
		if rootKey == key {
			if _, ok := share.participants[g.identity]; ok {
				return true
			}
		}
	}
	return false
}

// CurrentIdentity implements Gateway.CurrentIdentity
func (g *MemoryGateway) CurrentIdentity(ctx context.Context) (string, error) {
	if err := g.available(); err != nil {
		return "", err
	}
	return g.identity, nil
}

// EnsureZone implements Gateway.EnsureZone
func (g *MemoryGateway) EnsureZone(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID) error {
	if err := g.available(); err != nil {
		return err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	key, err := g.resolveZone(partition, zone)
	if err != nil {
		return err
	}
	g.backend.zones[key] = true
	return nil
}

// Save implements Gateway.Save
func (g *MemoryGateway) Save(ctx context.Context, partition transfer.Partition, rec Record) (Record, error) {
	if err := g.available(); err != nil {
		return Record{}, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()
	return g.saveLocked(partition, rec)
}

func (g *MemoryGateway) saveLocked(partition transfer.Partition, rec Record) (Record, error) {
	key, err := g.resolveZone(partition, rec.Zone)
	if err != nil {
		return Record{}, err
	}
	stored := cloneRecord(rec)
	stored.Zone = transfer.ZoneID{Name: key.Name, Owner: key.Owner}

	if stored.Type == RecordTypeShare && stored.Share != nil {
		g.registerShareLocked(&stored, key)
	}

	zone := g.backend.records[key]
	if zone == nil {
		zone = make(map[string]Record)
		g.backend.records[key] = zone
	}
	zone[stored.Name] = stored
	g.backend.zones[key] = true
	return cloneRecord(stored), nil
}

func (g *MemoryGateway) registerShareLocked(rec *Record, key zoneKey) {
	if rec.Share.Token == "" {
		rec.Share.Token = "inv-" + uuid.NewString()
	}
	root := RecordID{Name: rec.Share.RootRef, Zone: transfer.ZoneID{Name: key.Name, Owner: key.Owner}}
	state := &shareState{
		token:         rec.Share.Token,
		shareName:     rec.Name,
		title:         rec.Share.Title,
		root:          root,
		ownerIdentity: rec.Share.Owner.Identity,
		participants:  map[string]ShareParticipantInfo{},
		issuedMeta: InviteMetadata{
			Token:      rec.Share.Token,
			ShareName:  rec.Name,
			Title:      rec.Share.Title,
			RootRecord: root,
		},
	}
	g.backend.shares[rec.Share.Token] = state

	// Stamp the share back-reference onto the root record.
	if zone := g.backend.records[key]; zone != nil {
		if rootRec, ok := zone[rec.Share.RootRef]; ok && rootRec.List != nil {
			rootRec.List.ShareRef = rec.Name
			zone[rec.Share.RootRef] = rootRec
		}
	}
}

// SaveBatch implements Gateway.SaveBatch
func (g *MemoryGateway) SaveBatch(ctx context.Context, partition transfer.Partition, recs []Record) ([]Record, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	// Validate every zone before writing anything: all or nothing.
	for _, rec := range recs {
		if _, err := g.resolveZone(partition, rec.Zone); err != nil {
			return nil, err
		}
	}

	results := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if g.backend.DropShareFromBatch && rec.Type == RecordTypeShare {
			continue
		}
		saved, err := g.saveLocked(partition, rec)
		if err != nil {
			return nil, err
		}
		results = append(results, saved)
	}
	return results, nil
}

// Fetch implements Gateway.Fetch
func (g *MemoryGateway) Fetch(ctx context.Context, partition transfer.Partition, id RecordID) (Record, error) {
	if err := g.available(); err != nil {
		return Record{}, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	key, err := g.resolveZone(partition, id.Zone)
	if err != nil {
		return Record{}, err
	}
	zone := g.backend.records[key]
	rec, ok := zone[id.Name]
	if !ok {
		return Record{}, fmt.Errorf("record %q: %w", id.Name, shared.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// Query implements Gateway.Query
func (g *MemoryGateway) Query(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType) ([]Record, error) {
	return QueryAll(ctx, g, partition, zone, typ, 0)
}

// QueryPage implements Gateway.QueryPage
func (g *MemoryGateway) QueryPage(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ RecordType, cursor string, limit int) (Page, error) {
	if err := g.available(); err != nil {
		return Page{}, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	key, err := g.resolveZone(partition, zone)
	if err != nil {
		return Page{}, err
	}
	if partition == transfer.PartitionShared && !g.participatesIn(key) {
		return Page{}, fmt.Errorf("no share grants access to zone %q: %w", zone.Name, shared.ErrRemoteUnavailable)
	}

	var matches []Record
	for _, rec := range g.backend.records[key] {
		if typ == "" || rec.Type == typ {
			matches = append(matches, cloneRecord(rec))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	pageSize := limit
	if pageSize <= 0 {
		pageSize = g.backend.PageSize
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	offset := 0
	if cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return Page{}, fmt.Errorf("bad cursor %q: %w", cursor, shared.ErrRemoteUnavailable)
		}
	}
	if offset >= len(matches) {
		return Page{}, nil
	}

	end := offset + pageSize
	next := ""
	if end < len(matches) {
		next = strconv.Itoa(end)
	} else {
		end = len(matches)
	}
	return Page{Records: matches[offset:end], Cursor: next}, nil
}

// Delete implements Gateway.Delete
func (g *MemoryGateway) Delete(ctx context.Context, partition transfer.Partition, id RecordID) error {
	if err := g.available(); err != nil {
		return err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	key, err := g.resolveZone(partition, id.Zone)
	if err != nil {
		return err
	}
	if zone := g.backend.records[key]; zone != nil {
		delete(zone, id.Name)
	}
	return nil
}

// ResolveInvite implements Gateway.ResolveInvite
func (g *MemoryGateway) ResolveInvite(ctx context.Context, token string) (InviteMetadata, error) {
	if err := g.available(); err != nil {
		return InviteMetadata{}, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	share, ok := g.backend.shares[token]
	if !ok {
		return InviteMetadata{}, fmt.Errorf("token %q: %w", token, shared.ErrInvalidInviteToken)
	}
	return share.issuedMeta, nil
}

// AcceptInvite implements Gateway.AcceptInvite
func (g *MemoryGateway) AcceptInvite(ctx context.Context, token string) (RecordID, error) {
	if err := g.available(); err != nil {
		return RecordID{}, err
	}
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()

	share, ok := g.backend.shares[token]
	if !ok {
		return RecordID{}, fmt.Errorf("token %q: %w", token, shared.ErrInvalidInviteToken)
	}
	info := ShareParticipantInfo{
		Identity:    g.identity,
		DisplayName: g.displayName,
		Role:        string(transfer.RoleParticipant),
		Permission:  PermissionReadWrite,
	}
	share.participants[g.identity] = info

	// Reflect the roster onto the stored share record so fetches see it.
	shareKey := zoneKey{Owner: share.root.Zone.Owner, Name: share.root.Zone.Name}
	if zone := g.backend.records[shareKey]; zone != nil {
		if rec, ok := zone[share.shareName]; ok && rec.Share != nil {
			found := false
			for _, p := range rec.Share.Participants {
				if p.Identity == g.identity {
					found = true
					break
				}
			}
			if !found {
				rec.Share.Participants = append(rec.Share.Participants, info)
				zone[share.shareName] = rec
			}
		}
	}
	return share.root, nil
}

// cloneRecord deep-copies a record so callers never share payload pointers
// with the backend.
func cloneRecord(r Record) Record {
	copied := r
	if r.List != nil {
		fields := *r.List
		if r.List.EntityNames != nil {
			fields.EntityNames = append([]string(nil), r.List.EntityNames...)
		}
		copied.List = &fields
	}
	if r.Product != nil {
		fields := *r.Product
		if r.Product.UpdatedAt != nil {
			at := *r.Product.UpdatedAt
			fields.UpdatedAt = &at
		}
		copied.Product = &fields
	}
	if r.Event != nil {
		fields := *r.Event
		copied.Event = &fields
	}
	if r.Share != nil {
		fields := *r.Share
		fields.Participants = append([]ShareParticipantInfo(nil), r.Share.Participants...)
		copied.Share = &fields
	}
	return copied
}
