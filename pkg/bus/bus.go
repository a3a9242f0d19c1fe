package bus

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type key interface {
	comparable
}

type message interface {
	any
}

// Handler receives a published message on the publisher's goroutine.
type Handler[M message] func(msg M)

// Subscription identifies a registered handler.
type Subscription uint64

type entry[K key, M message] struct {
	id      Subscription
	keys    []K
	handler Handler[M]
}

// Bus is a keyed observer registry with synchronous delivery. Publish calls every
// matching handler before returning, in subscription order. A handler that panics
// is logged and skipped; the remaining handlers still run.
type Bus[K key, M message] struct {
	log    *zap.Logger
	nextID atomic.Uint64

	subs       *xsync.MapOf[Subscription, entry[K, M]]
	globalSubs *xsync.MapOf[Subscription, Handler[M]]
	keySubs    *xsync.MapOf[K, *xsync.MapOf[Subscription, Handler[M]]]
}

func NewBus[K key, M message](logger *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:        logger,
		subs:       xsync.NewMapOf[Subscription, entry[K, M]](),
		globalSubs: xsync.NewMapOf[Subscription, Handler[M]](),
		keySubs:    xsync.NewMapOf[K, *xsync.MapOf[Subscription, Handler[M]]](),
	}
}

// Subscribe registers h for the given keys, or for every key when none are given.
func (b *Bus[K, M]) Subscribe(h Handler[M], keys ...K) Subscription {
	id := Subscription(b.nextID.Inc())
	b.subs.Store(id, entry[K, M]{id: id, keys: keys, handler: h})
	if len(keys) == 0 {
		b.globalSubs.Store(id, h)
		return id
	}
	for _, k := range keys {
		subs, _ := b.keySubs.LoadOrCompute(k, func() *xsync.MapOf[Subscription, Handler[M]] {
			return xsync.NewMapOf[Subscription, Handler[M]]()
		})
		subs.Store(id, h)
	}
	return id
}

// Unsubscribe removes a handler. It reports false if the subscription was unknown.
func (b *Bus[K, M]) Unsubscribe(id Subscription) bool {
	e, ok := b.subs.LoadAndDelete(id)
	if !ok {
		return false
	}
	if len(e.keys) == 0 {
		b.globalSubs.Delete(id)
		return true
	}
	for _, k := range e.keys {
		if subs, ok := b.keySubs.Load(k); ok {
			subs.Delete(id)
		}
	}
	return true
}

// Len returns the number of live subscriptions.
func (b *Bus[K, M]) Len() int {
	return b.subs.Size()
}

type delivery[M message] struct {
	id      Subscription
	handler Handler[M]
}

func (b *Bus[K, M]) Publish(key K, msg M) {
	var targets []delivery[M]
	b.globalSubs.Range(func(id Subscription, h Handler[M]) bool {
		targets = append(targets, delivery[M]{id, h})
		return true
	})
	if subs, ok := b.keySubs.Load(key); ok {
		subs.Range(func(id Subscription, h Handler[M]) bool {
			targets = append(targets, delivery[M]{id, h})
			return true
		})
	}
	if len(targets) == 0 {
		return
	}
	slices.SortFunc(targets, func(a, b delivery[M]) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	for _, t := range targets {
		b.deliver(t, key, msg)
	}
}

func (b *Bus[K, M]) deliver(t delivery[M], key K, msg M) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panicked",
				zap.Uint64("subscription", uint64(t.id)),
				zap.Any("key", key),
				zap.Any("panic", r),
			)
		}
	}()
	t.handler(msg)
}
