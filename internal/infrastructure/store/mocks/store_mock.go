package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
)

// FailingStore wraps a real Store, records the write calls made inside its
// transactions and fails chosen calls on demand.
type FailingStore struct {
	Inner store.Store

	mu       sync.Mutex
	failures map[string]failure
	counts   map[string]int

	// For tracking calls in tests
	Calls   []string
	TxCount int
}

type failure struct {
	nth int
	err error
}

// NewFailingStore wraps inner. With no failures configured it behaves
// exactly like inner.
func NewFailingStore(inner store.Store) *FailingStore {
	return &FailingStore{
		Inner:    inner,
		failures: make(map[string]failure),
		counts:   make(map[string]int),
	}
}

// FailOn makes the nth call (1-based, counted across transactions) of the
// named Tx method return err.
func (f *FailingStore) FailOn(method string, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = failure{nth: nth, err: err}
}

// CallCount returns how many times the named method was called.
func (f *FailingStore) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[method]
}

func (f *FailingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.mu.Lock()
	f.TxCount++
	f.mu.Unlock()
	return f.Inner.WithTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, parent: f})
	})
}

func (f *FailingStore) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, method)
	f.counts[method]++
	if fl, ok := f.failures[method]; ok && fl.nth == f.counts[method] {
		return fl.err
	}
	return nil
}

type failingTx struct {
	store.Tx
	parent *FailingStore
}

func (t *failingTx) InsertCartItem(ctx context.Context, item *model.CartItem) error {
	if err := t.parent.record("InsertCartItem"); err != nil {
		return err
	}
	return t.Tx.InsertCartItem(ctx, item)
}

func (t *failingTx) ClearCart(ctx context.Context, cartID string) (int, error) {
	if err := t.parent.record("ClearCart"); err != nil {
		return 0, err
	}
	return t.Tx.ClearCart(ctx, cartID)
}

func (t *failingTx) AdjustProductStock(ctx context.Context, id string, delta int) (int, error) {
	if err := t.parent.record("AdjustProductStock"); err != nil {
		return 0, err
	}
	return t.Tx.AdjustProductStock(ctx, id, delta)
}

func (t *failingTx) InsertOrder(ctx context.Context, o *model.Order) error {
	if err := t.parent.record("InsertOrder"); err != nil {
		return err
	}
	return t.Tx.InsertOrder(ctx, o)
}

func (t *failingTx) InsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	if err := t.parent.record("InsertOrderItem"); err != nil {
		return err
	}
	return t.Tx.InsertOrderItem(ctx, item)
}

func (t *failingTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	if err := t.parent.record("UpdateOrder"); err != nil {
		return err
	}
	return t.Tx.UpdateOrder(ctx, o)
}

func (t *failingTx) AppendEvent(ctx context.Context, e *store.Event) error {
	if err := t.parent.record("AppendEvent"); err != nil {
		return err
	}
	return t.Tx.AppendEvent(ctx, e)
}

func (t *failingTx) MarkEventsSent(ctx context.Context, ids []string, at time.Time) error {
	if err := t.parent.record("MarkEventsSent"); err != nil {
		return err
	}
	return t.Tx.MarkEventsSent(ctx, ids, at)
}
