// Package firestore adapts a Cloud Firestore database to store.DocumentStore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// Store serves documents and live queries from Firestore.
type Store struct {
	client *firestore.Client
	logger zerolog.Logger
}

// Connect opens a Firestore client for the given project. An empty
// credentialsFile falls back to application default credentials.
func Connect(ctx context.Context, projectID, credentialsFile string, logger zerolog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}

	return New(client, logger), nil
}

// New wraps an existing client.
func New(client *firestore.Client, logger zerolog.Logger) *Store {
	return &Store{client: client, logger: logger.With().Str("component", "firestore_store").Logger()}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", translate(collection, err)
	}
	return ref.ID, nil
}

func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	if _, _, err := store.SplitPath(path); err != nil {
		return store.Document{}, err
	}

	snapshot, err := s.client.Doc(path).Get(ctx)
	if err != nil {
		return store.Document{}, translate(path, err)
	}
	return toDocument(snapshot), nil
}

func (s *Store) List(ctx context.Context, collection string, filters ...store.Filter) ([]store.Document, error) {
	snapshots, err := s.query(collection, filters).Documents(ctx).GetAll()
	if err != nil {
		return nil, translate(collection, err)
	}

	documents := make([]store.Document, 0, len(snapshots))
	for _, snapshot := range snapshots {
		documents = append(documents, toDocument(snapshot))
	}
	sortByCreation(documents)
	return documents, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}

	if _, err := s.client.Doc(path).Set(ctx, data); err != nil {
		return translate(path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}

	if _, err := s.client.Doc(path).Delete(ctx, firestore.Exists); err != nil {
		return translate(path, err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filters []store.Filter, listener store.Listener) (store.Unsubscribe, error) {
	if listener == nil {
		return nil, errors.New("listener must not be nil")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	snapshots := s.query(collection, filters).Snapshots(watchCtx)
	stopped := make(chan struct{})
	observability.LiveQueriesActive().Inc()

	go func() {
		defer close(stopped)
		defer observability.LiveQueriesActive().Dec()
		defer snapshots.Stop()

		for {
			snapshot, err := snapshots.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) || watchCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.logger.Warn().Err(err).Str("collection", collection).Msg("live query stopped")
				listener(store.Snapshot{Collection: collection, Err: err})
				return
			}

			docs, err := snapshot.Documents.GetAll()
			if err != nil {
				if watchCtx.Err() != nil {
					return
				}
				s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to read live query results")
				listener(store.Snapshot{Collection: collection, Err: err})
				continue
			}

			documents := make([]store.Document, 0, len(docs))
			for _, doc := range docs {
				documents = append(documents, toDocument(doc))
			}
			sortByCreation(documents)

			if watchCtx.Err() != nil {
				return
			}
			listener(store.Snapshot{Collection: collection, Documents: documents, Changes: toChanges(snapshot.Changes)})
		}
	}()

	return func() {
		cancel()
		<-stopped
	}, nil
}

func (s *Store) query(collection string, filters []store.Filter) firestore.Query {
	query := s.client.Collection(collection).Query
	for _, filter := range filters {
		query = query.Where(filter.Field, "==", filter.Value)
	}
	return query
}

func toDocument(snapshot *firestore.DocumentSnapshot) store.Document {
	return store.Document{
		ID:        snapshot.Ref.ID,
		Data:      snapshot.Data(),
		CreatedAt: snapshot.CreateTime,
		UpdatedAt: snapshot.UpdateTime,
	}
}

func toChanges(changes []firestore.DocumentChange) []store.Change {
	result := make([]store.Change, 0, len(changes))
	for _, change := range changes {
		kind := store.ChangeModified
		switch change.Kind {
		case firestore.DocumentAdded:
			kind = store.ChangeAdded
		case firestore.DocumentRemoved:
			kind = store.ChangeRemoved
		}
		result = append(result, store.Change{Kind: kind, ID: change.Doc.Ref.ID})
	}
	return result
}

// Firestore orders query results by document id; the dashboard relies on
// creation order instead.
func sortByCreation(documents []store.Document) {
	sort.SliceStable(documents, func(i, j int) bool {
		return documents[i].CreatedAt.Before(documents[j].CreatedAt)
	})
}

func translate(path string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}
	return err
}

var _ store.DocumentStore = (*Store)(nil)
