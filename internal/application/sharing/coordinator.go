// Package sharing implements the invite/accept collaboration flow on top of
// the remote gateway: owners mint share records with invite tokens,
// participants resolve and accept them, and participant rosters are derived
// from remote state on demand.
package sharing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/remote"
)

// ListUpserter folds accepted shared lists into the local collection. The
// sync manager implements it.
type ListUpserter interface {
	CurrentIdentity() string
	UpsertSharedList(ctx context.Context, list transfer.List) error
}

// Coordinator drives share creation and invitation acceptance. It holds no
// share state of its own; everything is derived from remote records.
type Coordinator struct {
	gateway remote.Gateway
	manager ListUpserter
	logger  *zap.Logger
	actor   string
}

// NewCoordinator creates a sharing coordinator. actor is the local user's
// display name, recorded as the share owner's name.
func NewCoordinator(gateway remote.Gateway, manager ListUpserter, logger *zap.Logger, actor string) *Coordinator {
	return &Coordinator{
		gateway: gateway,
		manager: manager,
		logger:  logger.Named("sharing"),
		actor:   actor,
	}
}

// CreateShare shares an owned list: fetch-or-create the root record in the
// list's own-partition zone, then atomically save root plus share. A batch
// result without the share record means the share does not exist remotely,
// surfaced as shared.ErrShareCreationFailed with no partial state retained.
func (c *Coordinator) CreateShare(ctx context.Context, list transfer.List) (remote.InviteMetadata, error) {
	routing := list.EffectiveRouting()
	if routing.Partition != transfer.PartitionOwn {
		return remote.InviteMetadata{}, fmt.Errorf("list %q is not owned here: %w", list.ID, shared.ErrShareCreationFailed)
	}

	rootID := remote.RecordID{Name: list.ID, Zone: routing.Zone}
	root, err := c.gateway.Fetch(ctx, transfer.PartitionOwn, rootID)
	if errors.Is(err, shared.ErrNotFound) {
		// Never pushed, likely created offline. Share the local copy.
		root = remote.NewListRecord(list)
	} else if err != nil {
		return remote.InviteMetadata{}, err
	}

	share := remote.NewShareRecord(root, list.Title, c.manager.CurrentIdentity(), c.actor)
	results, err := c.gateway.SaveBatch(ctx, transfer.PartitionOwn, []remote.Record{root, share})
	if err != nil {
		return remote.InviteMetadata{}, fmt.Errorf("share batch save: %w: %w", shared.ErrShareCreationFailed, err)
	}

	var saved *remote.Record
	for i := range results {
		if results[i].Type == remote.RecordTypeShare && results[i].Name == share.Name {
			saved = &results[i]
			break
		}
	}
	if saved == nil || saved.Share == nil || saved.Share.Token == "" {
		c.logger.Error("share missing from batch result", zap.String("list_id", list.ID))
		return remote.InviteMetadata{}, fmt.Errorf("list %q: %w", list.ID, shared.ErrShareCreationFailed)
	}

	c.logger.Info("share created", zap.String("list_id", list.ID), zap.String("share", saved.Name))
	return remote.InviteMetadata{
		Token:      saved.Share.Token,
		ShareName:  saved.Name,
		Title:      saved.Share.Title,
		RootRecord: remote.RecordID{Name: root.Name, Zone: saved.Zone},
	}, nil
}

// AcceptInvite joins a shared list from an invite token. The invite metadata
// may be stale, so the root record is fetched by the id returned from the
// accept call, and the resulting list is routed to the record's actual zone.
func (c *Coordinator) AcceptInvite(ctx context.Context, token string) (transfer.List, error) {
	if _, err := c.gateway.ResolveInvite(ctx, token); err != nil {
		return transfer.List{}, err
	}

	rootID, err := c.gateway.AcceptInvite(ctx, token)
	if err != nil {
		return transfer.List{}, err
	}

	root, err := c.gateway.Fetch(ctx, transfer.PartitionShared, rootID)
	if err != nil {
		return transfer.List{}, err
	}

	list := root.ToList(transfer.PartitionShared)
	if err := c.manager.UpsertSharedList(ctx, list); err != nil {
		return transfer.List{}, err
	}

	c.logger.Info("invite accepted",
		zap.String("list_id", list.ID), zap.String("zone_owner", rootID.Zone.Owner))
	return list, nil
}

// FetchParticipants derives the share roster for a list from remote state.
// An unshared list yields an empty roster, not an error.
func (c *Coordinator) FetchParticipants(ctx context.Context, list transfer.List) ([]transfer.ShareParticipant, error) {
	routing := list.EffectiveRouting()
	rootID := remote.RecordID{Name: list.ID, Zone: routing.Zone}

	root, err := c.gateway.Fetch(ctx, routing.Partition, rootID)
	if err != nil {
		return nil, err
	}
	if root.List == nil || root.List.ShareRef == "" {
		return nil, nil
	}

	shareID := remote.RecordID{Name: root.List.ShareRef, Zone: root.Zone}
	shareRec, err := c.gateway.Fetch(ctx, routing.Partition, shareID)
	if err != nil {
		return nil, err
	}
	if shareRec.Share == nil {
		return nil, nil
	}

	roster := []transfer.ShareParticipant{participantFromInfo(shareRec.Share.Owner, transfer.RoleOwner)}
	for _, info := range shareRec.Share.Participants {
		if info.Identity == shareRec.Share.Owner.Identity {
			continue
		}
		roster = append(roster, participantFromInfo(info, transfer.RoleParticipant))
	}
	return roster, nil
}

func participantFromInfo(info remote.ShareParticipantInfo, role transfer.ParticipantRole) transfer.ShareParticipant {
	name := info.DisplayName
	if name == "" {
		name = transfer.UnknownParticipantName
	}
	return transfer.ShareParticipant{
		ID:          info.Identity,
		DisplayName: name,
		Role:        role,
		Permission:  info.Permission,
	}
}
