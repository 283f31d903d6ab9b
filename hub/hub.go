// Package hub fans filtered, debounced views of the event store out to
// independent subscribers.
//
// Each subscription moves through an Idle -> Pending -> Delivered -> Idle
// cycle: a store mutation that could affect the subscription arms its
// debounce timer (Pending), the timer firing recomputes the filtered view
// from a fresh store snapshot and hands it to the callback (Delivered), and
// a periodic reconciliation tick forces the same transition for every
// subscription so liveness does not depend on change notifications arriving.
package hub

import (
	"sync"
	"time"

	"guardian/core"
	"guardian/metrics"
	"guardian/util/goroutine"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultDebounceWindow coalesces rapid mutation bursts into one delivery
	DefaultDebounceWindow = 150 * time.Millisecond
	// DefaultReconcileEvery bounds subscriber staleness absent any mutation
	DefaultReconcileEvery = 750 * time.Millisecond
)

// DeliveryFunc receives a filtered view, newest-first. The slice is owned
// by the callback. It runs on a hub timer goroutine, never on the
// ingestion path, and may call Unsubscribe.
type DeliveryFunc func(view []*core.Event)

// ObserverFunc receives each individual event as it is ingested. Observers
// are for incremental per-event consumers such as the topology builder and
// run synchronously on the ingestion path, so they must be cheap.
type ObserverFunc func(*core.Event)

type subscriptionState string

const (
	stateIdle      subscriptionState = "idle"
	statePending   subscriptionState = "pending"
	stateDelivered subscriptionState = "delivered"
)

type subscription struct {
	id      string
	filter  *core.Filter
	deliver DeliveryFunc

	mu        sync.Mutex
	state     subscriptionState
	timer     *time.Timer
	cancelled bool
}

// Hub owns the subscription registry and the delivery schedule
type Hub struct {
	store     *core.EventStore
	debounce  time.Duration
	reconcile time.Duration
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	subs      map[string]*subscription
	observers []ObserverFunc

	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a distribution hub over the given store. Non-positive
// windows fall back to the defaults.
func NewHub(store *core.EventStore, debounce, reconcile time.Duration, logger *zap.SugaredLogger) *Hub {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	if reconcile <= 0 {
		reconcile = DefaultReconcileEvery
	}
	return &Hub{
		store:     store,
		debounce:  debounce,
		reconcile: reconcile,
		logger:    logger,
		subs:      make(map[string]*subscription),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the reconciliation ticker. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.wg.Add(1)
	go h.reconcileLoop()
}

// Stop halts reconciliation and cancels every pending debounce timer.
// Idempotent and safe concurrently with in-flight deliveries.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()

	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.timer != nil {
			sub.timer.Stop()
			sub.timer = nil
		}
		sub.state = stateIdle
		sub.mu.Unlock()
	}
}

// AddObserver registers a per-event observer. Observers cannot be removed;
// they live as long as the hub.
func (h *Hub) AddObserver(fn ObserverFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.observers = append(h.observers, fn)
	h.mu.Unlock()
}

// Subscribe registers a (filter, callback) pair and returns its handle.
// The first view arrives after one debounce window (or one reconciliation
// tick at the latest).
func (h *Hub) Subscribe(filter *core.Filter, deliver DeliveryFunc) string {
	sub := &subscription{
		id:      uuid.New().String(),
		filter:  filter,
		deliver: deliver,
		state:   stateIdle,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	metrics.SubscriptionsActive.Inc()

	h.markPending(sub)
	return sub.id
}

// Unsubscribe destroys a subscription. Safe to call at any time, including
// from within the subscription's own delivery callback, and leaves no
// dangling timer.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	metrics.SubscriptionsActive.Dec()

	sub.mu.Lock()
	sub.cancelled = true
	if sub.timer != nil {
		sub.timer.Stop()
		sub.timer = nil
	}
	sub.state = stateIdle
	sub.mu.Unlock()
}

// SubscriberCount returns the number of active subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// NotifyChange tells the hub the store mutated. Subscriptions whose filter
// could plausibly be affected by the event go Pending; a nil event means a
// bulk mutation (clear) that affects everyone. Called on the ingestion
// path, so it only arms timers and runs the cheap per-event observers.
func (h *Hub) NotifyChange(event *core.Event) {
	h.mu.RLock()
	observers := h.observers
	affected := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if event == nil || sub.filter.Matches(event) {
			affected = append(affected, sub)
		}
	}
	h.mu.RUnlock()

	if event != nil {
		for _, fn := range observers {
			fn(event)
		}
	}

	for _, sub := range affected {
		h.markPending(sub)
	}
}

// NotifyCleared marks every subscription pending after a bulk reset
func (h *Hub) NotifyCleared() {
	h.NotifyChange(nil)
}

// markPending arms the debounce timer for one subscription. A subscription
// already Pending keeps its running timer, which is what coalesces bursts.
func (h *Hub) markPending(sub *subscription) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.cancelled || sub.state == statePending {
		return
	}
	sub.state = statePending
	sub.timer = time.AfterFunc(h.debounce, func() {
		h.deliverTo(sub, "debounce")
	})
}

// deliverTo recomputes the subscription's filtered view from a fresh store
// snapshot and invokes the callback. The view is always rebuilt whole, not
// maintained incrementally, so a missed signal can never leave a subscriber
// permanently drifted.
func (h *Hub) deliverTo(sub *subscription, trigger string) {
	sub.mu.Lock()
	if sub.cancelled {
		sub.mu.Unlock()
		return
	}
	if sub.timer != nil {
		sub.timer.Stop()
		sub.timer = nil
	}
	sub.state = stateDelivered
	filter := sub.filter
	deliver := sub.deliver
	sub.mu.Unlock()

	// No hub or subscription lock is held here: the callback may block
	// briefly or call Unsubscribe without deadlocking.
	view := h.store.Snapshot(filter)
	deliver(view)
	metrics.DeliveriesTotal.WithLabelValues(trigger).Inc()

	sub.mu.Lock()
	if !sub.cancelled && sub.state == stateDelivered {
		sub.state = stateIdle
	}
	sub.mu.Unlock()
}

// reconcileLoop forces every subscription through Pending -> Delivered on a
// fixed period, bounding staleness even when change notifications are lost.
func (h *Hub) reconcileLoop() {
	defer h.wg.Done()
	defer goroutine.Recover("hub-reconcile", h.logger)

	ticker := time.NewTicker(h.reconcile)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.mu.RLock()
			subs := make([]*subscription, 0, len(h.subs))
			for _, sub := range h.subs {
				subs = append(subs, sub)
			}
			h.mu.RUnlock()

			for _, sub := range subs {
				sub.mu.Lock()
				if sub.cancelled {
					sub.mu.Unlock()
					continue
				}
				// Fold any armed debounce timer into this delivery.
				if sub.timer != nil {
					sub.timer.Stop()
					sub.timer = nil
				}
				sub.state = statePending
				sub.mu.Unlock()

				h.deliverTo(sub, "reconcile")
			}
		}
	}
}
