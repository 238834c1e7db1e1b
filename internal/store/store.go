// Package store is the document backend consumed by the dashboard core: point
// reads, filtered listings, keyed writes and live queries over collection paths.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document path does not exist.
var ErrNotFound = errors.New("document not found")

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value string
}

// Where builds an equality filter.
func Where(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// Document is one stored record.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode copies the document fields into out using their JSON tags.
func (d Document) Decode(out any) error {
	payload, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Encode converts a tagged struct into document fields.
func Encode(value any) (map[string]any, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ChangeKind classifies a document change within a snapshot.
type ChangeKind string

// Change kinds.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes how one document differs from the previous snapshot.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Snapshot is the full ordered result of a live query at one point in time.
// A snapshot with a non-nil Err reports a failed reload and carries no
// documents; the query stays registered and the next write retries it.
type Snapshot struct {
	Collection string
	Documents  []Document
	Changes    []Change
	Err        error
}

// Empty reports whether the query matched nothing.
func (s Snapshot) Empty() bool {
	return len(s.Documents) == 0
}

// IDs returns the document ids in snapshot order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Documents))
	for _, doc := range s.Documents {
		ids = append(ids, doc.ID)
	}
	return ids
}

// Listener receives live query snapshots.
type Listener func(Snapshot)

// Unsubscribe detaches a live query. It is safe to call more than once.
type Unsubscribe func()

// DocumentStore is the backend facade used by the dashboard core.
//
// Subscribe delivers a first snapshot right after registration and a new one
// after every write touching the collection, until the returned Unsubscribe
// is called or ctx ends. Listener calls are serialised with Unsubscribe: once
// it has returned no invocation is running or will start. A listener must not
// call Unsubscribe itself.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, data map[string]any) (string, error)
	Get(ctx context.Context, path string) (Document, error)
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, path string, data map[string]any) error
	Delete(ctx context.Context, path string) error
	Subscribe(ctx context.Context, collection string, filters []Filter, listener Listener) (Unsubscribe, error)
}

// diff compares a result set with the versions seen in the previous snapshot
// and returns the changes together with the new version map.
func diff(previous map[string]time.Time, docs []Document) ([]Change, map[string]time.Time) {
	versions := make(map[string]time.Time, len(docs))
	changes := make([]Change, 0)
	for _, doc := range docs {
		versions[doc.ID] = doc.UpdatedAt
		before, seen := previous[doc.ID]
		switch {
		case !seen:
			changes = append(changes, Change{Kind: ChangeAdded, ID: doc.ID})
		case !before.Equal(doc.UpdatedAt):
			changes = append(changes, Change{Kind: ChangeModified, ID: doc.ID})
		}
	}
	for id := range previous {
		if _, still := versions[id]; !still {
			changes = append(changes, Change{Kind: ChangeRemoved, ID: id})
		}
	}
	return changes, versions
}
