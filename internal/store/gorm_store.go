package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/repository"
)

// GormStore implements DocumentStore on top of the SQL documents table. Live
// queries are served by an in-process broker; when Redis or NATS is configured
// writes are relayed so that subscribers on other nodes reload as well.
//
// A write to a nested collection is also reported to subscribers of the
// parent collection, so "classes" listeners observe enrollment changes.
type GormStore struct {
	repo   repository.DocumentRepository
	broker *changeBroker
	relay  *changeRelay
	logger zerolog.Logger
}

// NewGormStore builds the SQL-backed document store.
func NewGormStore(repo repository.DocumentRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *GormStore {
	s := &GormStore{
		repo:   repo,
		broker: newChangeBroker(),
		logger: logger.With().Str("component", "document_store").Logger(),
	}
	s.relay = newChangeRelay(redisClient, natsConn, channelBase, uuid.NewString(), s.logger, s.wake)
	return s
}

// Start begins consuming change events relayed from other nodes.
func (s *GormStore) Start(ctx context.Context) error {
	return s.relay.start(ctx)
}

func (s *GormStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}

	document := models.Document{
		Collection: collection,
		ID:         uuid.NewString(),
		Data:       datatypes.JSONMap(data),
	}
	if err := s.repo.Create(ctx, &document); err != nil {
		return "", err
	}

	s.changed(ctx, collection)
	return document.ID, nil
}

func (s *GormStore) Get(ctx context.Context, path string) (Document, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}

	document, err := s.repo.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Document{}, err
	}

	return toDocument(document), nil
}

func (s *GormStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	repoFilters := make([]repository.DocumentFilter, 0, len(filters))
	for _, filter := range filters {
		repoFilters = append(repoFilters, repository.DocumentFilter{Field: filter.Field, Value: filter.Value})
	}

	documents, err := s.repo.List(ctx, collection, repoFilters...)
	if err != nil {
		return nil, err
	}

	result := make([]Document, 0, len(documents))
	for _, document := range documents {
		result = append(result, toDocument(document))
	}
	return result, nil
}

func (s *GormStore) Set(ctx context.Context, path string, data map[string]any) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	document := models.Document{
		Collection: collection,
		ID:         id,
		Data:       datatypes.JSONMap(data),
	}
	if err := s.repo.Upsert(ctx, &document); err != nil {
		return err
	}

	s.changed(ctx, collection)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, path string) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return err
	}

	s.changed(ctx, collection)
	return nil
}

func (s *GormStore) Subscribe(ctx context.Context, collection string, filters []Filter, listener Listener) (Unsubscribe, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, errors.New("listener must not be nil")
	}

	sub := newSubscription(collection, filters, listener)
	s.broker.subscribe(sub)
	observability.LiveQueriesActive().Inc()

	cancel := func() {
		sub.once.Do(func() {
			sub.deliver.Lock()
			sub.closed.Store(true)
			sub.deliver.Unlock()

			close(sub.done)
			s.broker.unsubscribe(sub)
			observability.LiveQueriesActive().Dec()
		})
	}

	sub.signal()
	go s.run(ctx, sub)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return cancel, nil
}

func (s *GormStore) run(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.pending:
		}

		documents, err := s.List(ctx, sub.collection, sub.filters...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Str("collection", sub.collection).Msg("failed to reload live query")
			if !s.emit(sub, Snapshot{Collection: sub.collection, Err: err}) {
				return
			}
			continue
		}

		changes, versions := diff(sub.versions, documents)
		sub.versions = versions

		if !s.emit(sub, Snapshot{Collection: sub.collection, Documents: documents, Changes: changes}) {
			return
		}
	}
}

// emit hands one snapshot to the listener unless the subscription has been
// cancelled. It reports whether the subscription is still open.
func (s *GormStore) emit(sub *subscription, snapshot Snapshot) bool {
	sub.deliver.Lock()
	defer sub.deliver.Unlock()

	if sub.closed.Load() {
		return false
	}
	sub.listener(snapshot)
	return true
}

func (s *GormStore) changed(ctx context.Context, collection string) {
	observability.ChangeEvents().WithLabelValues(rootCollection(collection), "local").Inc()
	s.wake(collection)

	if err := s.relay.publish(ctx, collection); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to relay change event")
	}
}

func (s *GormStore) wake(collection string) {
	s.broker.notify(collection)
	if parent, ok := ParentCollection(collection); ok {
		s.broker.notify(parent)
	}
}

func toDocument(document models.Document) Document {
	return Document{
		ID:        document.ID,
		Data:      map[string]any(document.Data),
		CreatedAt: document.CreatedAt,
		UpdatedAt: document.UpdatedAt,
	}
}
