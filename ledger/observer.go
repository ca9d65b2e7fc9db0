package ledger

import (
	"github.com/ethereum/go-ethereum/log"
)

// Observer receives every transaction of the accounts it is subscribed to.
type Observer interface {
	Name() string
	HandleTransaction(tx *RawTransaction)
}

// Extractor decides whether a transaction is relevant and builds its event.
// It must not block or perform I/O.
type Extractor[T any] interface {
	Extract(tx *RawTransaction) (T, bool)
}

// AccountObserver pairs an extractor with an unbounded event channel.
type AccountObserver[T any] struct {
	name      string
	extractor Extractor[T]
	events    *Unbounded[T]
	metrics   Metricer
}

func NewAccountObserver[T any](name string, extractor Extractor[T], metrics Metricer) *AccountObserver[T] {
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &AccountObserver[T]{
		name:      name,
		extractor: extractor,
		events:    NewUnbounded[T](),
		metrics:   metrics,
	}
}

func (o *AccountObserver[T]) Name() string {
	return o.name
}

func (o *AccountObserver[T]) HandleTransaction(tx *RawTransaction) {
	event, ok := o.extractor.Extract(tx)
	if !ok {
		return
	}
	if !o.events.Send(event) {
		log.Warn("observer closed, event dropped", "observer", o.name, "account", tx.Account, "tx", tx.Hash)
		return
	}
	o.metrics.RecordObserverQueueDepth(o.name, o.events.Len())
}

func (o *AccountObserver[T]) Events() <-chan T {
	return o.events.Out()
}

func (o *AccountObserver[T]) Len() int {
	return o.events.Len()
}

func (o *AccountObserver[T]) Close() {
	o.events.Close()
}
