package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// feed binds registry slots to store queries. In live mode a slot holds a
// store subscription; in manual mode it holds a one-shot read that is re-run
// by SubscriptionRegistry.Refresh after mutations.
//
// Results are always applied on the task queue and only while the slot token
// that produced them is still live.
type feed struct {
	store    store.DocumentStore
	registry *SubscriptionRegistry
	queue    *TaskQueue
	mode     string
	timeout  time.Duration
	logger   zerolog.Logger
}

type snapshotFunc func(token Token, snapshot store.Snapshot)

func (f *feed) open(slot Slot, collection string, filters []store.Filter, apply snapshotFunc, fail func(error)) error {
	return f.registry.Subscribe(slot, func(token Token) (func(), error) {
		if f.mode == config.RefreshManual {
			return f.readOnce(token, collection, filters, apply, fail), nil
		}

		unsubscribe, err := f.store.Subscribe(context.Background(), collection, filters, func(snapshot store.Snapshot) {
			if snapshot.Err != nil {
				f.deliver(token, func() { fail(backendError("Error loading "+collection, snapshot.Err)) })
				return
			}
			f.deliver(token, func() { apply(token, snapshot) })
		})
		if err != nil {
			return nil, backendError("Error subscribing to "+collection, err)
		}
		return unsubscribe, nil
	})
}

func (f *feed) readOnce(token Token, collection string, filters []store.Filter, apply snapshotFunc, fail func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		reqCtx, done := f.requestContext(ctx)
		documents, err := f.store.List(reqCtx, collection, filters...)
		done()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.deliver(token, func() { fail(backendError("Error loading "+collection, err)) })
			return
		}

		snapshot := store.Snapshot{Collection: collection, Documents: documents}
		f.deliver(token, func() { apply(token, snapshot) })
	}()

	return cancel
}

func (f *feed) deliver(token Token, fn func()) {
	f.queue.Post(string(token.Slot), func() {
		if !f.registry.Live(token) {
			observability.StaleResults().WithLabelValues("snapshot").Inc()
			return
		}
		fn()
	})
}

// requestContext bounds one backend request by the configured timeout. A zero
// timeout leaves the request unbounded.
func (f *feed) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return requestContext(parent, f.timeout)
}

func requestContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}
