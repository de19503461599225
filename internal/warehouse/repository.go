package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Repository interface {
	UpsertCustomer(ctx context.Context, c *Customer) (int64, error)
	UpsertProduct(ctx context.Context, p *Product) (int64, error)
	CreateOrder(ctx context.Context, order *Order) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	// UpdateOrderStatus moves the order from one status to another. It fails with
	// ErrStatusConflict when the stored status is no longer from.
	UpdateOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) error
	AppendEvent(ctx context.Context, e *Event) (int64, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) UpsertCustomer(ctx context.Context, c *Customer) (int64, error) {
	query := `
		INSERT INTO analytics.dim_customer (email, signup_date, country, segment)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (email) DO UPDATE
		SET signup_date = EXCLUDED.signup_date,
		    country = EXCLUDED.country,
		    segment = EXCLUDED.segment
		RETURNING customer_id
	`

	err := r.db.QueryRow(ctx, query, c.Email, c.SignupDate, c.Country, c.Segment).Scan(&c.ID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to upsert customer %s: %w", c.Email, classify(err))
	}
	return c.ID, nil
}

func (r *postgresRepository) UpsertProduct(ctx context.Context, p *Product) (int64, error) {
	query := `
		INSERT INTO analytics.dim_product (sku, name, category, unit_cost)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (sku) DO UPDATE
		SET name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    unit_cost = EXCLUDED.unit_cost
		RETURNING product_id
	`

	err := r.db.QueryRow(ctx, query, p.SKU, p.Name, p.Category, p.UnitCost).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to upsert product %s: %w", p.SKU, classify(err))
	}
	return p.ID, nil
}

// CreateOrder inserts the order and its items in one transaction. The generated ids and the
// database-computed line totals are written back into order.
func (r *postgresRepository) CreateOrder(ctx context.Context, order *Order) (orderID int64, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return 0, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Msg("Panic recovered during CreateOrder, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Msg("Transaction for CreateOrder failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Int64("order_id", orderID).Msg("Failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO analytics.fact_orders
			(order_ts, date_key, customer_id, status, subtotal, discount, tax, shipping, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING order_id
	`
	err = tx.QueryRow(ctx, queryOrder,
		order.OrderTS,
		order.DateKey,
		order.CustomerID,
		string(order.Status),
		order.Subtotal,
		order.Discount,
		order.Tax,
		order.Shipping,
		order.Total,
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to insert order: %w", classify(err))
	}

	queryItem := `
		INSERT INTO analytics.fact_order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING order_item_id, line_total
	`
	for i := range order.Items {
		item := &order.Items[i]
		err = tx.QueryRow(ctx, queryItem, orderID, item.ProductID, item.Quantity, item.UnitPrice).
			Scan(&item.ID, &item.LineTotal)
		if err != nil {
			return 0, fmt.Errorf("repository: failed to insert order item for product %d: %w", item.ProductID, classify(err))
		}
		item.OrderID = orderID
	}

	order.ID = orderID
	return orderID, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	queryOrder := `
		SELECT order_id, order_ts, date_key, customer_id, status, subtotal, discount, tax, shipping, total
		FROM analytics.fact_orders
		WHERE order_id = $1
	`

	var order Order
	err := r.db.QueryRow(ctx, queryOrder, id).Scan(
		&order.ID,
		&order.OrderTS,
		&order.DateKey,
		&order.CustomerID,
		&order.Status,
		&order.Subtotal,
		&order.Discount,
		&order.Tax,
		&order.Shipping,
		&order.Total,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %d: %w", id, err)
	}

	queryItems := `
		SELECT order_item_id, order_id, product_id, quantity, unit_price, line_total
		FROM analytics.fact_order_items
		WHERE order_id = $1
		ORDER BY order_item_id
	`
	rows, err := r.db.Query(ctx, queryItems, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %d: %w", id, err)
	}
	defer rows.Close()

	order.Items = make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %d: %w", id, err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %d: %w", id, err)
	}

	return &order, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error {
	query := `UPDATE analytics.fact_orders SET status = $1 WHERE order_id = $2 AND status = $3`

	cmdTag, err := r.db.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %d: %w", id, classify(err))
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var stored OrderStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM analytics.fact_orders WHERE order_id = $1`, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to re-read order status %d: %w", id, err)
	}
	return fmt.Errorf("%w: order %d is %s, expected %s", ErrStatusConflict, id, stored, from)
}

// DeleteOrder removes the order; its items go with it through the foreign key cascade.
func (r *postgresRepository) DeleteOrder(ctx context.Context, id int64) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM analytics.fact_orders WHERE order_id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %d: %w", id, classify(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) AppendEvent(ctx context.Context, e *Event) (int64, error) {
	meta := e.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	query := `
		INSERT INTO analytics.fact_events (event_ts, date_key, customer_id, event_name, event_value, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id
	`
	err := r.db.QueryRow(ctx, query, e.EventTS, e.DateKey, e.CustomerID, e.Name, e.Value, meta).Scan(&e.ID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to insert event %s: %w", e.Name, classify(err))
	}
	return e.ID, nil
}
