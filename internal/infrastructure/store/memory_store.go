package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/model"
)

// MemoryStore keeps everything in process memory. A transaction holds the
// store mutex for its whole duration and works on a copy of the state that
// replaces the live state only on success, so transactions are serial and a
// failed one leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	seq        int64
	categories map[string]model.Category
	products   map[string]model.Product
	carts      map[string]model.Cart // cartID -> cart without items
	cartItems  map[string][]model.CartItem
	orders     map[string]model.Order // orderID -> order without items
	orderItems map[string][]model.OrderItem
	orderSeq   map[string]int64
	events     []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		categories: make(map[string]model.Category),
		products:   make(map[string]model.Product),
		carts:      make(map[string]model.Cart),
		cartItems:  make(map[string][]model.CartItem),
		orders:     make(map[string]model.Order),
		orderItems: make(map[string][]model.OrderItem),
		orderSeq:   make(map[string]int64),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:        s.seq,
		categories: maps.Clone(s.categories),
		products:   maps.Clone(s.products),
		carts:      maps.Clone(s.carts),
		cartItems:  make(map[string][]model.CartItem, len(s.cartItems)),
		orders:     maps.Clone(s.orders),
		orderItems: make(map[string][]model.OrderItem, len(s.orderItems)),
		orderSeq:   maps.Clone(s.orderSeq),
		events:     slices.Clone(s.events),
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = slices.Clone(v)
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = slices.Clone(v)
	}
	return c
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	s *memState
}

// Catalog

func (t *memTx) InsertCategory(ctx context.Context, c *model.Category) error {
	for _, existing := range t.s.categories {
		if existing.Name == c.Name || existing.Slug == c.Slug {
			return ErrDuplicate
		}
	}
	t.s.categories[c.ID] = *c
	return nil
}

func (t *memTx) UpdateCategory(ctx context.Context, c *model.Category) error {
	if _, ok := t.s.categories[c.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range t.s.categories {
		if id != c.ID && (existing.Name == c.Name || existing.Slug == c.Slug) {
			return ErrDuplicate
		}
	}
	t.s.categories[c.ID] = *c
	return nil
}

// DeleteCategory removes the category and its products.
func (t *memTx) DeleteCategory(ctx context.Context, id string) error {
	if _, ok := t.s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.categories, id)
	for pid, p := range t.s.products {
		if p.CategoryID == id {
			delete(t.s.products, pid)
		}
	}
	return nil
}

func (t *memTx) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	c, ok := t.s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (t *memTx) ListCategories(ctx context.Context) ([]model.Category, error) {
	out := slices.Collect(maps.Values(t.s.categories))
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) InsertProduct(ctx context.Context, p *model.Product) error {
	if _, ok := t.s.categories[p.CategoryID]; !ok {
		return ErrNotFound
	}
	for _, existing := range t.s.products {
		if existing.Slug == p.Slug {
			return ErrDuplicate
		}
	}
	t.s.products[p.ID] = *p
	return nil
}

func (t *memTx) UpdateProduct(ctx context.Context, p *model.Product) error {
	if _, ok := t.s.products[p.ID]; !ok {
		return ErrNotFound
	}
	if _, ok := t.s.categories[p.CategoryID]; !ok {
		return ErrNotFound
	}
	for id, existing := range t.s.products {
		if id != p.ID && existing.Slug == p.Slug {
			return ErrDuplicate
		}
	}
	t.s.products[p.ID] = *p
	return nil
}

func (t *memTx) DeleteProduct(ctx context.Context, id string) error {
	if _, ok := t.s.products[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.products, id)
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) LockProduct(ctx context.Context, id string) (*model.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	var out []model.Product
	for _, p := range t.s.products {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) AdjustProductStock(ctx context.Context, id string, delta int) (int, error) {
	p, ok := t.s.products[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.Stock += delta
	t.s.products[id] = p
	return p.Stock, nil
}

func (t *memTx) ProductReferenced(ctx context.Context, id string) (bool, error) {
	for _, items := range t.s.cartItems {
		for _, item := range items {
			if item.ProductID == id {
				return true, nil
			}
		}
	}
	for _, items := range t.s.orderItems {
		for _, item := range items {
			if item.ProductID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// Cart

func (t *memTx) GetCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	for _, c := range t.s.carts {
		if c.UserID == owner.UserID && c.SessionKey == owner.SessionKey {
			c.Items = slices.Clone(t.s.cartItems[c.ID])
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) LockCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	return t.GetCart(ctx, owner)
}

func (t *memTx) InsertCart(ctx context.Context, c *model.Cart) error {
	if _, err := t.GetCart(ctx, model.CartOwner{UserID: c.UserID, SessionKey: c.SessionKey}); err == nil {
		return ErrDuplicate
	}
	stored := *c
	stored.Items = nil
	t.s.carts[c.ID] = stored
	return nil
}

func (t *memTx) InsertCartItem(ctx context.Context, item *model.CartItem) error {
	if _, ok := t.s.carts[item.CartID]; !ok {
		return ErrNotFound
	}
	if _, ok := t.s.products[item.ProductID]; !ok {
		return ErrNotFound
	}
	for _, existing := range t.s.cartItems[item.CartID] {
		if existing.ProductID == item.ProductID {
			return ErrDuplicate
		}
	}
	t.s.cartItems[item.CartID] = append(t.s.cartItems[item.CartID], *item)
	return nil
}

func (t *memTx) findCartItem(itemID string) (string, int) {
	for cartID, items := range t.s.cartItems {
		for i, item := range items {
			if item.ID == itemID {
				return cartID, i
			}
		}
	}
	return "", -1
}

func (t *memTx) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	cartID, idx := t.findCartItem(itemID)
	if idx < 0 {
		return ErrNotFound
	}
	t.s.cartItems[cartID][idx].Quantity = quantity
	return nil
}

func (t *memTx) DeleteCartItem(ctx context.Context, itemID string) error {
	cartID, idx := t.findCartItem(itemID)
	if idx < 0 {
		return ErrNotFound
	}
	t.s.cartItems[cartID] = slices.Delete(t.s.cartItems[cartID], idx, idx+1)
	return nil
}

func (t *memTx) ClearCart(ctx context.Context, cartID string) (int, error) {
	n := len(t.s.cartItems[cartID])
	delete(t.s.cartItems, cartID)
	return n, nil
}

// Orders

func (t *memTx) InsertOrder(ctx context.Context, o *model.Order) error {
	if _, ok := t.s.orders[o.ID]; ok {
		return ErrDuplicate
	}
	stored := *o
	stored.Items = nil
	t.s.orders[o.ID] = stored
	t.s.seq++
	t.s.orderSeq[o.ID] = t.s.seq
	return nil
}

func (t *memTx) InsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	if _, ok := t.s.orders[item.OrderID]; !ok {
		return ErrNotFound
	}
	if _, ok := t.s.products[item.ProductID]; !ok {
		return ErrNotFound
	}
	t.s.orderItems[item.OrderID] = append(t.s.orderItems[item.OrderID], *item)
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	stored, ok := t.s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	stored.ShippingAddress = o.ShippingAddress
	stored.Phone = o.Phone
	stored.Status = o.Status
	stored.TotalPrice = o.TotalPrice
	stored.Restocked = o.Restocked
	stored.UpdatedAt = o.UpdatedAt
	t.s.orders[o.ID] = stored
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = slices.Clone(t.s.orderItems[id])
	return &o, nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	var out []model.Order
	for id, o := range t.s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		o.Items = slices.Clone(t.s.orderItems[id])
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return t.s.orderSeq[out[i].ID] > t.s.orderSeq[out[j].ID]
	})
	return out, nil
}

// Outbox

func (t *memTx) AppendEvent(ctx context.Context, e *Event) error {
	t.s.events = append(t.s.events, *e)
	return nil
}

func (t *memTx) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	var out []Event
	for _, e := range t.s.events {
		if e.SentAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) MarkEventsSent(ctx context.Context, ids []string, at time.Time) error {
	for i := range t.s.events {
		if slices.Contains(ids, t.s.events[i].ID) {
			sentAt := at
			t.s.events[i].SentAt = &sentAt
		}
	}
	return nil
}
