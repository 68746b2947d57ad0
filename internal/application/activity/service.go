// Package activity maintains the per-list activity feed: a capped,
// newest-first event log cached locally and mirrored best-effort into the
// parent list's remote zone so collaborators share one stream.
package activity

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/config"
	"github.com/transfertrack/backend/internal/infrastructure/localstore"
	"github.com/transfertrack/backend/internal/infrastructure/remote"
)

// Service records and fetches activity events. Writes are local-first like
// list mutations; the remote copy is best-effort and never surfaced.
type Service struct {
	store    localstore.Store
	gateway  remote.Gateway
	logger   *zap.Logger
	actor    string
	identity func() string
	cap      int

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewService creates an activity service. identity reports the resolved
// caller identity and may return empty while resolution is pending.
func NewService(store localstore.Store, gateway remote.Gateway, logger *zap.Logger, actor string, identity func() string, cfg config.ActivityConfig) *Service {
	retention := cfg.RetentionCap
	if retention <= 0 {
		retention = transfer.DefaultActivityCap
	}
	if identity == nil {
		identity = func() string { return "" }
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		logger:   logger.Named("activity"),
		actor:    actor,
		identity: identity,
		cap:      retention,
	}
}

// RecordEvent prepends an event to the list's local feed, truncates to the
// retention cap, persists, and pushes the record into the list's zone in the
// background.
func (s *Service) RecordEvent(ctx context.Context, list transfer.List, eventType, summary string) (transfer.ActivityEvent, error) {
	event := transfer.NewActivityEvent(list, eventType, summary, s.actor, s.identity())

	s.mu.Lock()
	events, err := s.loadLocked(ctx, list.ID)
	if err != nil {
		s.mu.Unlock()
		return transfer.ActivityEvent{}, err
	}
	events = transfer.CapEvents(append([]transfer.ActivityEvent{event}, events...), s.cap)
	if err := s.store.Put(ctx, localstore.EventsKey(list.ID), events); err != nil {
		s.mu.Unlock()
		return transfer.ActivityEvent{}, err
	}
	s.mu.Unlock()

	rec := remote.NewEventRecord(event, list.EffectiveRouting())
	routing := list.EffectiveRouting()
	s.background(func(ctx context.Context) {
		if _, err := s.gateway.Save(ctx, routing.Partition, rec); err != nil {
			s.logger.Warn("background event push failed",
				zap.String("event_id", event.ID), zap.Error(err))
		}
	})
	return event, nil
}

// FetchEvents returns the local feed immediately and refreshes it from the
// list's zone in the background: paginated full-zone query, client-side
// filter by list id, newest first, truncated to the cap.
func (s *Service) FetchEvents(ctx context.Context, list transfer.List) ([]transfer.ActivityEvent, error) {
	s.mu.Lock()
	events, err := s.loadLocked(ctx, list.ID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.background(func(ctx context.Context) {
		if err := s.refresh(ctx, list); err != nil {
			s.logger.Warn("background event refresh failed",
				zap.String("list_id", list.ID), zap.Error(err))
		}
	})
	return events, nil
}

// Wait blocks until in-flight background tasks have drained.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) refresh(ctx context.Context, list transfer.List) error {
	routing := list.EffectiveRouting()
	cursor := remote.PaginatedQuery(s.gateway, routing.Partition, routing.Zone, remote.RecordTypeEvent, 0)

	var events []transfer.ActivityEvent
	for {
		page, err := cursor.Next(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		// The zone holds events for every list it contains; keep ours.
		for _, rec := range page {
			event := rec.ToEvent()
			if event.ListID == list.ID {
				events = append(events, event)
			}
		}
	}

	transfer.SortEventsNewestFirst(events)
	events = transfer.CapEvents(events, s.cap)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Put(ctx, localstore.EventsKey(list.ID), events)
}

// loadLocked reads the list's local feed. Caller holds the mutex.
func (s *Service) loadLocked(ctx context.Context, listID string) ([]transfer.ActivityEvent, error) {
	var events []transfer.ActivityEvent
	if err := s.store.Get(ctx, localstore.EventsKey(listID), &events); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return events, nil
}

func (s *Service) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}
