package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// Membership is the set of class ids a student is enrolled in.
type Membership map[string]struct{}

// Has reports whether classID is part of the set.
func (m Membership) Has(classID string) bool {
	_, ok := m[classID]
	return ok
}

// IDs returns the class ids in lexical order.
func (m Membership) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MembershipResolver computes class membership by reading the enrollment
// record keyed by the student under every class.
type MembershipResolver struct {
	store    store.DocumentStore
	registry *SubscriptionRegistry
	queue    *TaskQueue
	feed     *feed
	timeout  time.Duration
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func newMembershipResolver(f *feed, logger zerolog.Logger) *MembershipResolver {
	return &MembershipResolver{
		store:    f.store,
		registry: f.registry,
		queue:    f.queue,
		feed:     f,
		timeout:  f.timeout,
		tracer:   otel.Tracer("github.com/noah-isme/gema-homework-api/internal/service/membership"),
		logger:   logger.With().Str("component", "membership_resolver").Logger(),
	}
}

// Resolve reads the current classes and returns the ones studentID is enrolled in.
func (r *MembershipResolver) Resolve(ctx context.Context, studentID string) (Membership, error) {
	classes, err := r.store.List(ctx, store.CollectionClasses)
	if err != nil {
		return nil, backendError("Error loading classes", err)
	}

	ids := make([]string, 0, len(classes))
	for _, class := range classes {
		ids = append(ids, class.ID)
	}
	return r.fanOut(ctx, studentID, ids)
}

// Watch keeps the membership of studentID current. Every change of the class
// collection triggers a full fan-out; onChange receives the set only when
// every read of the fan-out succeeded and no newer fan-out or cancellation
// happened meanwhile. Both callbacks run on the task queue.
func (r *MembershipResolver) Watch(studentID string, onChange func(Membership), onError func(error)) error {
	return r.feed.open(SlotStudentClass, store.CollectionClasses, nil, func(token Token, snapshot store.Snapshot) {
		fanOut, ok := r.registry.BeginFanOut(token)
		if !ok {
			return
		}

		classIDs := snapshot.IDs()
		r.logger.Debug().
			Str("student_id", studentID).
			Uint64("generation", fanOut.Generation).
			Int("classes", len(classIDs)).
			Dict("changes", changeSummary(snapshot.Changes)).
			Msg("class snapshot received, resolving membership")

		go func() {
			ctx, cancel := requestContext(context.Background(), r.timeout)
			membership, err := r.fanOut(ctx, studentID, classIDs)
			cancel()

			r.queue.Post("membership_resolved", func() {
				if !r.registry.Current(fanOut) {
					observability.StaleResults().WithLabelValues("membership").Inc()
					r.logger.Debug().Uint64("generation", fanOut.Generation).Msg("discarding stale membership fan-out")
					return
				}
				if err != nil {
					onError(err)
					return
				}
				onChange(membership)
			})
		}()
	}, onError)
}

func (r *MembershipResolver) fanOut(ctx context.Context, studentID string, classIDs []string) (Membership, error) {
	spanCtx, span := r.tracer.Start(ctx, "membership.fan_out", trace.WithAttributes(
		attribute.String("membership.student_id", studentID),
		attribute.Int("membership.classes", len(classIDs)),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.FanOutDuration().WithLabelValues("membership").Observe(time.Since(started).Seconds())
	}()

	enrolled := make([]bool, len(classIDs))
	group, groupCtx := errgroup.WithContext(spanCtx)
	for i, classID := range classIDs {
		i, classID := i, classID
		group.Go(func() error {
			_, err := r.store.Get(groupCtx, store.Doc(store.StudentsOf(classID), studentID))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			}
			enrolled[i] = true
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		return nil, backendError("Error loading classes", err)
	}

	membership := make(Membership)
	for i, classID := range classIDs {
		if enrolled[i] {
			membership[classID] = struct{}{}
		}
	}
	return membership, nil
}

// changeSummary counts snapshot changes by kind. A snapshot without changes
// comes from an enrollment write under an unchanged class.
func changeSummary(changes []store.Change) *zerolog.Event {
	counts := map[store.ChangeKind]int{}
	for _, change := range changes {
		counts[change.Kind]++
	}
	return zerolog.Dict().
		Int(string(store.ChangeAdded), counts[store.ChangeAdded]).
		Int(string(store.ChangeModified), counts[store.ChangeModified]).
		Int(string(store.ChangeRemoved), counts[store.ChangeRemoved])
}
