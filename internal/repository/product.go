package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/farm-market-api/internal/model"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error)
	Update(ctx context.Context, id int64, patch model.ProductPatch) error
	Deactivate(ctx context.Context, id int64) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

const productSelect = `SELECT p.id, p.name, p.description, p.price, p.quantity, p.unit, p.seller_id, p.category_id,
       p.image_url, p.harvest_date, p.location, p.is_active, p.created_at, p.updated_at,
       u.full_name, u.location, u.phone, c.name
FROM products p
JOIN users u ON u.id = p.seller_id
JOIN categories c ON c.id = p.category_id`

func scanProduct(row pgx.Row, p *model.Product) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Unit, &p.SellerID, &p.CategoryID,
		&p.ImageURL, &p.HarvestDate, &p.Location, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		&p.SellerName, &p.SellerLocation, &p.SellerPhone, &p.CategoryName,
	)
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	query := `INSERT INTO products (name, description, price, quantity, unit, seller_id, category_id,
			  image_url, harvest_date, location, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW(), NOW())
			  RETURNING id, is_active, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.Name, product.Description, product.Price, product.Quantity, product.Unit,
		product.SellerID, product.CategoryID, product.ImageURL, product.HarvestDate, product.Location,
	).Scan(&product.ID, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", translate(err))
	}
	return nil
}

// GetByID returns the product whether or not it is still listed.
func (r *pgProductRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	p := &model.Product{}
	if err := scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id), p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) List(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	query, args := buildProductQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func buildProductQuery(filter model.ProductFilter) (string, []any) {
	conds := []string{"p.is_active"}
	var args []any
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conds = append(conds, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		conds = append(conds, fmt.Sprintf("p.seller_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, escapeLike(filter.Search))
		conds = append(conds, fmt.Sprintf("p.name ILIKE '%%' || $%d || '%%'", len(args)))
	}
	query := productSelect + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY p.created_at DESC, p.id DESC"
	return query, args
}

// escapeLike neutralises LIKE wildcards so search text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *pgProductRepo) Update(ctx context.Context, id int64, patch model.ProductPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Quantity != nil {
		add("quantity", *patch.Quantity)
	}
	if patch.Unit != nil {
		add("unit", *patch.Unit)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.HarvestDate != nil {
		add("harvest_date", *patch.HarvestDate)
	}

	ct, err := r.pool.Exec(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate withdraws the listing; the row stays for order history.
func (r *pgProductRepo) Deactivate(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
