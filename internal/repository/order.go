package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/farm-market-api/internal/model"
)

type OrderRepository interface {
	Place(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	Update(ctx context.Context, order *model.Order, prev model.OrderStatus) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

// Place reserves stock and records the order in one transaction. The
// conditional decrement locks the product row until commit, so concurrent
// placements against the same product serialise and none can drive the
// quantity negative. The price returned by that statement becomes the
// order's snapshot.
func (r *pgOrderRepo) Place(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var price decimal.Decimal
	err = tx.QueryRow(ctx,
		`UPDATE products SET quantity = quantity - $2, updated_at = NOW()
		 WHERE id = $1 AND is_active AND quantity >= $2
		 RETURNING price`,
		order.ProductID, order.Quantity,
	).Scan(&price)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("decrement stock: %w", err)
		}
		var listed bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_active)`, order.ProductID,
		).Scan(&listed); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !listed {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}

	order.Snapshot(price)
	order.Status = model.OrderStatusPending
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (product_id, seller_id, buyer_id, quantity, unit_price, total_price, status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		order.ProductID, order.SellerID, order.BuyerID, order.Quantity,
		order.UnitPrice, order.TotalPrice, string(order.Status), order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", translate(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const orderSelect = `SELECT o.id, o.product_id, o.seller_id, o.buyer_id, o.quantity, o.unit_price, o.total_price,
       o.status, o.notes, o.delivery_date, o.created_at, o.updated_at,
       p.name, s.full_name, b.full_name
FROM orders o
JOIN products p ON p.id = o.product_id
JOIN users s ON s.id = o.seller_id
JOIN users b ON b.id = o.buyer_id`

func scanOrder(row pgx.Row, o *model.Order) error {
	var status string
	err := row.Scan(
		&o.ID, &o.ProductID, &o.SellerID, &o.BuyerID, &o.Quantity, &o.UnitPrice, &o.TotalPrice,
		&status, &o.Notes, &o.DeliveryDate, &o.CreatedAt, &o.UpdatedAt,
		&o.ProductName, &o.SellerName, &o.BuyerName,
	)
	o.Status = model.OrderStatus(status)
	return err
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	o := &model.Order{}
	if err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id), o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *pgOrderRepo) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	query, args := buildOrderQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func buildOrderQuery(filter model.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.BuyerID != nil {
		args = append(args, *filter.BuyerID)
		conds = append(conds, fmt.Sprintf("o.buyer_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		conds = append(conds, fmt.Sprintf("o.seller_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("o.status = $%d", len(args)))
	}
	query := orderSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY o.created_at DESC, o.id DESC", args
}

// Update writes status, notes and delivery date only if the stored status is
// still prev. ErrStaleStatus means another request moved the order first.
func (r *pgOrderRepo) Update(ctx context.Context, order *model.Order, prev model.OrderStatus) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2, notes = $3, delivery_date = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $5
		 RETURNING updated_at`,
		order.ID, string(order.Status), order.Notes, order.DeliveryDate, string(prev),
	).Scan(&order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleStatus
		}
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}
