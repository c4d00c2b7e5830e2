package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/model"
	"github.com/lib/pq"
)

// PostgresStore runs transactions against PostgreSQL. Row locks taken by the
// Lock* methods (SELECT ... FOR UPDATE) serialise concurrent checkouts of one
// cart and concurrent stock writes to one product.
type PostgresStore struct {
	db        *sql.DB
	isolation sql.IsolationLevel
}

func NewPostgresStore(db *sql.DB, isolation sql.IsolationLevel) *PostgresStore {
	return &PostgresStore{db: db, isolation: isolation}
}

// ParseIsolation maps a config value to an isolation level.
func ParseIsolation(s string) (sql.IsolationLevel, error) {
	switch s {
	case "", "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	}
	return 0, fmt.Errorf("unknown isolation level %q", s)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Catalog

const categoryColumns = `id, name, slug, created_at`

func scanCategory(row rowScanner) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (t *pgTx) InsertCategory(ctx context.Context, c *model.Category) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Slug, c.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateCategory(ctx context.Context, c *model.Category) error {
	return expectOne(t.tx.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3 WHERE id = $1`,
		c.ID, c.Name, c.Slug))
}

// DeleteCategory removes the category; products go with it through the
// ON DELETE CASCADE foreign key.
func (t *pgTx) DeleteCategory(ctx context.Context, id string) error {
	return expectOne(t.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id))
}

func (t *pgTx) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return scanCategory(t.tx.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
}

func (t *pgTx) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const productColumns = `id, category_id, name, slug, description, price, stock, is_active, created_at, updated_at`

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description,
		&p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (t *pgTx) InsertProduct(ctx context.Context, p *model.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateProduct(ctx context.Context, p *model.Product) error {
	return expectOne(t.tx.ExecContext(ctx, `
		UPDATE products SET
			category_id = $2, name = $3, slug = $4, description = $5,
			price = $6, stock = $7, is_active = $8, updated_at = $9
		WHERE id = $1`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock, p.IsActive, p.UpdatedAt))
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	return expectOne(t.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id))
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(t.tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (t *pgTx) LockProduct(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(t.tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR category_id = $1)
		  AND (NOT $2 OR is_active)
		ORDER BY created_at DESC`,
		filter.CategoryID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgTx) AdjustProductStock(ctx context.Context, id string, delta int) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1 RETURNING stock`,
		id, delta).Scan(&stock)
	if err != nil {
		return 0, mapErr(err)
	}
	return stock, nil
}

func (t *pgTx) ProductReferenced(ctx context.Context, id string) (bool, error) {
	var referenced bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM cart_items WHERE product_id = $1)
		    OR EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)`, id).Scan(&referenced)
	return referenced, err
}

// Cart

func (t *pgTx) getCart(ctx context.Context, owner model.CartOwner, lock string) (*model.Cart, error) {
	var (
		c          model.Cart
		userID     sql.NullString
		sessionKey sql.NullString
	)
	query := `SELECT id, user_id, session_key, created_at FROM carts WHERE user_id = $1`
	key := owner.UserID
	if owner.UserID == "" {
		query = `SELECT id, user_id, session_key, created_at FROM carts WHERE session_key = $1`
		key = owner.SessionKey
	}
	err := t.tx.QueryRowContext(ctx, query+lock, key).Scan(&c.ID, &userID, &sessionKey, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	c.UserID = userID.String
	c.SessionKey = sessionKey.String

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, cart_id, product_id, quantity, price, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price, &item.AddedAt); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
	}
	return &c, rows.Err()
}

func (t *pgTx) GetCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	return t.getCart(ctx, owner, "")
}

func (t *pgTx) LockCart(ctx context.Context, owner model.CartOwner) (*model.Cart, error) {
	return t.getCart(ctx, owner, " FOR UPDATE")
}

func (t *pgTx) InsertCart(ctx context.Context, c *model.Cart) error {
	// ON CONFLICT keeps the transaction usable when a concurrent request
	// created the owner's cart first.
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, session_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		c.ID, nullString(c.UserID), nullString(c.SessionKey), c.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (t *pgTx) InsertCartItem(ctx context.Context, item *model.CartItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, price, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.Price, item.AddedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	return expectOne(t.tx.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, quantity))
}

func (t *pgTx) DeleteCartItem(ctx context.Context, itemID string) error {
	return expectOne(t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID))
}

func (t *pgTx) ClearCart(ctx context.Context, cartID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Orders

const orderColumns = `id, user_id, shipping_address, phone, total_price, status, restocked, created_at, updated_at`

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.ShippingAddress, &o.Phone, &o.TotalPrice, &o.Status, &o.Restocked, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.ShippingAddress, o.Phone, o.TotalPrice, o.Status, o.Restocked, o.CreatedAt, o.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) InsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	return expectOne(t.tx.ExecContext(ctx, `
		UPDATE orders SET shipping_address = $2, phone = $3, status = $4, total_price = $5, restocked = $6, updated_at = $7
		WHERE id = $1`,
		o.ID, o.ShippingAddress, o.Phone, o.Status, o.TotalPrice, o.Restocked, o.UpdatedAt))
}

func (t *pgTx) loadOrderItems(ctx context.Context, orderIDs []string) (map[string][]model.OrderItem, error) {
	out := make(map[string][]model.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, created_at
		FROM order_items WHERE order_id = ANY($1::text[]) ORDER BY created_at, id`,
		pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt); err != nil {
			return nil, err
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	return out, rows.Err()
}

func (t *pgTx) getOrder(ctx context.Context, id, lock string) (*model.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id))
	if err != nil {
		return nil, err
	}
	items, err := t.loadOrderItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return t.getOrder(ctx, id, "")
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return t.getOrder(ctx, id, " FOR UPDATE")
}

func (t *pgTx) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC, id`, filter.UserID)
	if err != nil {
		return nil, err
	}
	var (
		orders []model.Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := t.loadOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// Outbox

func (t *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AggregateID, e.AggregateType, e.EventType, []byte(e.Data), e.Timestamp)
	return mapErr(err)
}

// PendingEvents skips rows locked by another relay so several relays can
// run side by side. A limit of zero or less returns every pending row.
func (t *pgTx) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Data, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (t *pgTx) MarkEventsSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE outbox_events SET sent_at = $2 WHERE id = ANY($1::text[])`, pq.Array(ids), at)
	return err
}
