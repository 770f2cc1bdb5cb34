// Package postgres implements the catalog, cart and order stores on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-smartprice/internal/cart"
	"github.com/noah-isme/toko-smartprice/internal/catalog"
	"github.com/noah-isme/toko-smartprice/internal/obs"
	"github.com/noah-isme/toko-smartprice/internal/order"
)

// Store is backed by a pgx connection pool.
type Store struct {
	Pool *pgxpool.Pool
}

var (
	_ catalog.Store = (*Store)(nil)
	_ cart.Store    = (*Store)(nil)
	_ order.Store   = (*Store)(nil)
)

// Open connects to dsn with query tracing enabled and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = obs.PGXTracer{}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping reports database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

const productColumns = `id::text, name, description, category, images, base_price::text, final_price::text,
	stock, rating_average, rating_count, tags, metadata, version, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p         catalog.Product
		base, fin string
		rawMeta   []byte
		images    []string
		tags      []string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &images, &base, &fin,
		&p.Stock, &p.RatingAverage, &p.RatingCount, &tags, &rawMeta, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Product{}, err
	}
	var err error
	if p.BasePrice, err = decimal.NewFromString(base); err != nil {
		return catalog.Product{}, fmt.Errorf("decode base_price: %w", err)
	}
	if p.FinalPrice, err = decimal.NewFromString(fin); err != nil {
		return catalog.Product{}, fmt.Errorf("decode final_price: %w", err)
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &p.Metadata); err != nil {
			return catalog.Product{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	p.Images = nonNil(images)
	p.Tags = nonNil(tags)
	return p, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListProducts implements catalog.Store.
func (s *Store) ListProducts(ctx context.Context, params catalog.ListParams) ([]catalog.Product, int64, error) {
	var (
		where []string
		args  []any
	)
	if params.Category != "" {
		args = append(args, params.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if q := strings.TrimSpace(params.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR array_to_string(tags, ' ') ILIKE $%d)", n, n, n))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.Pool.QueryRow(ctx, "SELECT count(*) FROM products"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := "SELECT " + productColumns + " FROM products" + clause + " ORDER BY created_at DESC, id"
	if params.Limit > 0 {
		args = append(args, params.Limit, params.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := make([]catalog.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetProduct implements catalog.Store.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	if !validID(id) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p, err := scanProduct(s.Pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

// FindProductByName implements catalog.Store.
func (s *Store) FindProductByName(ctx context.Context, name string) (catalog.Product, error) {
	p, err := scanProduct(s.Pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE name = $1 ORDER BY created_at LIMIT 1", name))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

// ListCategories implements catalog.Store.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, "SELECT DISTINCT category FROM products ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// InsertProduct implements catalog.Store.
func (s *Store) InsertProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("encode metadata: %w", err)
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO products
		(id, name, description, category, images, base_price, final_price, stock, rating_average, rating_count, tags, metadata, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, 1, $13, $14)
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Category, nonNil(p.Images), p.BasePrice.StringFixed(2), p.FinalPrice.StringFixed(2),
		p.Stock, p.RatingAverage, p.RatingCount, nonNil(p.Tags), meta, p.CreatedAt, p.UpdatedAt)
	return scanProduct(row)
}

// UpdateProduct implements catalog.Store.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if !validID(p.ID) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("encode metadata: %w", err)
	}
	row := s.Pool.QueryRow(ctx, `UPDATE products SET
		name = $3, description = $4, category = $5, images = $6, base_price = $7::numeric, final_price = $8::numeric,
		stock = $9, rating_average = $10, rating_count = $11, tags = $12, metadata = $13,
		version = version + 1, updated_at = $14
		WHERE id = $1 AND version = $2
		RETURNING `+productColumns,
		p.ID, p.Version, p.Name, p.Description, p.Category, nonNil(p.Images), p.BasePrice.StringFixed(2), p.FinalPrice.StringFixed(2),
		p.Stock, p.RatingAverage, p.RatingCount, nonNil(p.Tags), meta, p.UpdatedAt)
	updated, err := scanProduct(row)
	if !errors.Is(err, pgx.ErrNoRows) {
		return updated, err
	}
	var exists bool
	if err := s.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", p.ID).Scan(&exists); err != nil {
		return catalog.Product{}, fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return catalog.Product{}, catalog.ErrConflict
}

// DeleteProduct implements catalog.Store.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrNotFound
	}
	tag, err := s.Pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ListProductIDs implements catalog.Store.
func (s *Store) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, "SELECT id::text FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CartItems implements cart.Store.
func (s *Store) CartItems(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT product_id::text, quantity FROM cart_items WHERE user_id = $1 ORDER BY added_at, product_id", userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var item cart.Item
		err := row.Scan(&item.ProductID, &item.Quantity)
		return item, err
	})
}

// SetCartItem implements cart.Store.
func (s *Store) SetCartItem(ctx context.Context, userID, productID string, quantity int) error {
	if !validID(productID) {
		return catalog.ErrNotFound
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`, userID, productID, quantity)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return catalog.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set cart item: %w", err)
	}
	return nil
}

// RemoveCartItem implements cart.Store.
func (s *Store) RemoveCartItem(ctx context.Context, userID, productID string) error {
	if !validID(productID) {
		return nil
	}
	if _, err := s.Pool.Exec(ctx, "DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// ClearCart implements cart.Store.
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if _, err := s.Pool.Exec(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

const orderColumns = `id::text, user_id, items, total_amount::text, subtotal::text, shipping::text, tax::text,
	payment_status, order_status, payment_info, address, created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o                              order.Order
		items, info, addr              []byte
		total, subtotal, shipping, tax string
	)
	if err := row.Scan(&o.ID, &o.UserID, &items, &total, &subtotal, &shipping, &tax,
		&o.PaymentStatus, &o.OrderStatus, &info, &addr, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, err
	}
	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{total, &o.TotalAmount},
		{subtotal, &o.Pricing.Subtotal},
		{shipping, &o.Pricing.Shipping},
		{tax, &o.Pricing.Tax},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return order.Order{}, fmt.Errorf("decode order amount: %w", err)
		}
		*a.dst = v
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &o.PaymentInfo); err != nil {
			return order.Order{}, fmt.Errorf("decode payment info: %w", err)
		}
	}
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.Address); err != nil {
			return order.Order{}, fmt.Errorf("decode address: %w", err)
		}
	}
	return o, nil
}

// CreateOrder implements order.Store. Stock is decremented with a guarded
// UPDATE inside the same transaction as the insert and cart clear.
func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode order items: %w", err)
	}
	info, err := json.Marshal(o.PaymentInfo)
	if err != nil {
		return order.Order{}, fmt.Errorf("encode payment info: %w", err)
	}
	var addr []byte
	if o.Address != nil {
		if addr, err = json.Marshal(o.Address); err != nil {
			return order.Order{}, fmt.Errorf("encode address: %w", err)
		}
	}

	var created order.Order
	err = pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, item := range o.Items {
			if !validID(item.ProductID) {
				return &order.StockConflictError{ProductID: item.ProductID, Requested: item.Quantity}
			}
			tag, err := tx.Exec(ctx,
				"UPDATE products SET stock = stock - $2, version = version + 1 WHERE id = $1 AND stock >= $2",
				item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if tag.RowsAffected() == 1 {
				continue
			}
			var available int
			err = tx.QueryRow(ctx, "SELECT stock FROM products WHERE id = $1", item.ProductID).Scan(&available)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("read stock: %w", err)
			}
			return &order.StockConflictError{ProductID: item.ProductID, Available: available, Requested: item.Quantity}
		}

		row := tx.QueryRow(ctx, `INSERT INTO orders
			(id, user_id, items, total_amount, subtotal, shipping, tax, payment_status, order_status, payment_info, address, created_at, updated_at)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13)
			RETURNING `+orderColumns,
			o.ID, o.UserID, items, o.TotalAmount.StringFixed(2), o.Pricing.Subtotal.StringFixed(2),
			o.Pricing.Shipping.StringFixed(2), o.Pricing.Tax.StringFixed(2), string(o.PaymentStatus), string(o.OrderStatus),
			info, addr, o.CreatedAt, o.UpdatedAt)
		var err error
		if created, err = scanOrder(row); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM cart_items WHERE user_id = $1", o.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return created, nil
}

// GetOrder implements order.Store.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	o, err := scanOrder(s.Pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	return o, err
}

// ListOrders implements order.Store.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders"
	var args []any
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOrderStatus implements order.Store.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to order.OrderStatus) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	o, err := scanOrder(s.Pool.QueryRow(ctx,
		"UPDATE orders SET order_status = $3, updated_at = now() WHERE id = $1 AND order_status = $2 RETURNING "+orderColumns,
		id, string(from), string(to)))
	if !errors.Is(err, pgx.ErrNoRows) {
		return o, err
	}
	if _, err := s.GetOrder(ctx, id); err != nil {
		return order.Order{}, err
	}
	return order.Order{}, order.ErrStatusChanged
}
