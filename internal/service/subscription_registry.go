package service

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/observability"
)

// Slot names one live query held by a dashboard.
type Slot string

// Subscription slots. Each holds at most one live query at a time.
const (
	SlotHomework     Slot = "homeworkListener"
	SlotClass        Slot = "classListener"
	SlotStudentClass Slot = "studentClassListener"
)

// Token identifies one registration of a slot. A token stops being live as
// soon as its slot is cancelled or re-subscribed.
type Token struct {
	Slot Slot
	seq  uint64
}

// FanOut tags a batch of point reads started for one snapshot of a slot.
type FanOut struct {
	Token      Token
	Generation uint64
}

// Starter registers a live query for token and returns its cancel function.
type Starter func(token Token) (func(), error)

type registration struct {
	token   Token
	cancel  func()
	starter Starter
	fanOut  uint64
}

// SubscriptionRegistry owns the live queries of one dashboard. Subscribing a
// slot cancels whatever the slot held before, so there is never more than one
// live query per slot.
//
// The registry also hands out fan-out generations. Results of a fan-out are
// applied only while its generation is the latest one started for a live
// token; CancelAll advances the generation so nothing started before it is
// ever applied.
type SubscriptionRegistry struct {
	mu         sync.Mutex
	seq        uint64
	generation uint64
	slots      map[Slot]*registration
	logger     zerolog.Logger
}

// NewSubscriptionRegistry constructs an empty registry.
func NewSubscriptionRegistry(logger zerolog.Logger) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		slots:  make(map[Slot]*registration),
		logger: logger.With().Str("component", "subscription_registry").Logger(),
	}
}

// Subscribe cancels the slot and registers a new live query built by starter.
// When starter fails the slot is left empty.
func (r *SubscriptionRegistry) Subscribe(slot Slot, starter Starter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.subscribeLocked(slot, starter)
}

func (r *SubscriptionRegistry) subscribeLocked(slot Slot, starter Starter) error {
	r.cancelLocked(slot)

	r.seq++
	token := Token{Slot: slot, seq: r.seq}
	cancel, err := starter(token)
	if err != nil {
		return err
	}
	if cancel == nil {
		cancel = func() {}
	}

	r.slots[slot] = &registration{token: token, cancel: cancel, starter: starter}
	observability.SubscriptionsActive().WithLabelValues(string(slot)).Inc()
	r.logger.Debug().Str("slot", string(slot)).Msg("subscription started")
	return nil
}

// Cancel detaches the live query held by slot, if any.
func (r *SubscriptionRegistry) Cancel(slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked(slot)
}

// CancelAll detaches every live query. Calling it with nothing registered is a no-op.
func (r *SubscriptionRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slot := range r.slots {
		r.cancelLocked(slot)
	}
	r.generation++
}

func (r *SubscriptionRegistry) cancelLocked(slot Slot) {
	reg, ok := r.slots[slot]
	if !ok {
		return
	}

	delete(r.slots, slot)
	reg.cancel()
	observability.SubscriptionsActive().WithLabelValues(string(slot)).Dec()
	r.logger.Debug().Str("slot", string(slot)).Msg("subscription cancelled")
}

// Refresh re-runs the last starter of each populated slot among slots.
func (r *SubscriptionRegistry) Refresh(slots ...Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, slot := range slots {
		reg, ok := r.slots[slot]
		if !ok {
			continue
		}
		if err := r.subscribeLocked(slot, reg.starter); err != nil {
			return err
		}
	}
	return nil
}

// Live reports whether token is still the current registration of its slot.
func (r *SubscriptionRegistry) Live(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.slots[token.Slot]
	return ok && reg.token == token
}

// Active returns the number of populated slots.
func (r *SubscriptionRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.slots)
}

// BeginFanOut tags a new fan-out for token. It returns false when token is no
// longer live.
func (r *SubscriptionRegistry) BeginFanOut(token Token) (FanOut, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.slots[token.Slot]
	if !ok || reg.token != token {
		return FanOut{}, false
	}

	r.generation++
	reg.fanOut = r.generation
	return FanOut{Token: token, Generation: r.generation}, true
}

// Current reports whether the results of fanOut may still be applied.
func (r *SubscriptionRegistry) Current(fanOut FanOut) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.slots[fanOut.Token.Slot]
	return ok && reg.token == fanOut.Token && reg.fanOut == fanOut.Generation
}
