package transfer

// Partition identifies one of the two logically separate remote record stores.
type Partition string

const (
	// PartitionOwn holds records the caller created.
	PartitionOwn Partition = "own"
	// PartitionShared holds records created by others and shared with the caller.
	PartitionShared Partition = "shared"
)

// DefaultZoneName is the well-known zone every locally created record
// routes to until a remote fetch assigns it a concrete zone.
const DefaultZoneName = "TransferTrackerZone"

// CurrentUserZoneOwner marks a zone owned by the calling identity. The
// remote side substitutes the caller's resolved identity for it.
const CurrentUserZoneOwner = "__current__"

// ZoneID names an owner-scoped partition of records. Queries must be
// scoped to exactly one zone.
type ZoneID struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// DefaultZone returns the caller-owned default zone.
func DefaultZone() ZoneID {
	return ZoneID{Name: DefaultZoneName, Owner: CurrentUserZoneOwner}
}

// IsZero reports whether the zone is unset.
func (z ZoneID) IsZero() bool {
	return z.Name == ""
}

// Routing is the remote location metadata carried by every record. Once set
// from a fetched remote record it must be preserved on every subsequent
// local mutation so future remote operations target the correct zone.
type Routing struct {
	Partition Partition `json:"partition,omitempty"`
	Zone      ZoneID    `json:"zone,omitzero"`
}

// ResolveRouting returns the effective (partition, zone) for a record: the
// stored routing when present, else the own-partition default zone. Every
// gateway call site goes through this one function.
func ResolveRouting(r Routing) Routing {
	if r.Partition == "" {
		r.Partition = PartitionOwn
	}
	if r.Zone.IsZero() {
		r.Zone = DefaultZone()
	}
	if r.Zone.Owner == "" {
		r.Zone.Owner = CurrentUserZoneOwner
	}
	return r
}
