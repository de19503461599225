// Package warehouse writes dimension and fact rows into the analytics star schema.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusRefunded:  true,
		StatusCancelled: true,
	},
	StatusRefunded:  {},
	StatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

type Service interface {
	UpsertCustomer(ctx context.Context, c *Customer) (*Customer, error)
	UpsertProduct(ctx context.Context, p *Product) (*Product, error)
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, newStatus OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) error
	AppendEvent(ctx context.Context, e *Event) (*Event, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) UpsertCustomer(ctx context.Context, c *Customer) (*Customer, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrInvalidValue)
	}
	if c.SignupDate.IsZero() {
		return nil, fmt.Errorf("%w: customer signup date is required", ErrInvalidValue)
	}
	c.SignupDate = DateKeyOf(c.SignupDate)

	if _, err := s.repo.UpsertCustomer(ctx, c); err != nil {
		log.Error().Err(err).Str("email", c.Email).Msg("service: failed to upsert customer")
		return nil, fmt.Errorf("service: failed to upsert customer: %w", err)
	}
	return c, nil
}

func (s *service) UpsertProduct(ctx context.Context, p *Product) (*Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	if p.SKU == "" || strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: product sku and name are required", ErrInvalidValue)
	}
	if p.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost for %s cannot be negative", ErrInvalidValue, p.SKU)
	}

	if _, err := s.repo.UpsertProduct(ctx, p); err != nil {
		log.Error().Err(err).Str("sku", p.SKU).Msg("service: failed to upsert product")
		return nil, fmt.Errorf("service: failed to upsert product: %w", err)
	}
	return p, nil
}

// CreateOrder validates the order, fills in the derived fields and stores it.
//
// The date key is the UTC date of the order timestamp. A zero subtotal is derived from the
// items, and a zero total from subtotal - discount + tax + shipping. A non-zero total that
// disagrees with non-zero components is rejected.
func (s *service) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	if order.OrderTS.IsZero() {
		return nil, fmt.Errorf("%w: order timestamp is required", ErrInvalidValue)
	}
	if order.Status == "" {
		order.Status = StatusPending
	}
	if !order.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidValue, order.Status)
	}

	itemsSum := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		if item.ProductID <= 0 {
			return nil, fmt.Errorf("%w: product id in order item is required", ErrInvalidValue)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: order item quantity for product %d must be greater than zero", ErrInvalidValue, item.ProductID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: order item unit price for product %d cannot be negative", ErrInvalidValue, item.ProductID)
		}
		item.ID = 0
		item.OrderID = 0
		itemsSum = itemsSum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	for name, v := range map[string]decimal.Decimal{
		"subtotal": order.Subtotal,
		"discount": order.Discount,
		"tax":      order.Tax,
		"shipping": order.Shipping,
	} {
		if v.IsNegative() {
			return nil, fmt.Errorf("%w: %s cannot be negative", ErrInvalidValue, name)
		}
	}
	if order.Total.IsNegative() {
		if order.Status != StatusRefunded {
			return nil, fmt.Errorf("%w: total cannot be negative", ErrInvalidValue)
		}
		// Refund magnitudes are stored positive.
		order.Total = order.Total.Abs()
	}

	if order.Subtotal.IsZero() {
		order.Subtotal = itemsSum
	}
	expected := order.ExpectedTotal()
	switch {
	case order.Total.IsZero():
		order.Total = expected
	case !expected.IsZero() && !order.Total.Equal(expected):
		return nil, fmt.Errorf("%w: total %s does not match subtotal - discount + tax + shipping = %s",
			ErrInvalidValue, order.Total.StringFixed(2), expected.StringFixed(2))
	}
	if order.Total.IsNegative() {
		return nil, fmt.Errorf("%w: discount %s exceeds subtotal + tax + shipping",
			ErrInvalidValue, order.Discount.StringFixed(2))
	}

	order.ID = 0
	order.DateKey = DateKeyOf(order.OrderTS)

	if _, err := s.repo.CreateOrder(ctx, order); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Int64("order_id", order.ID).
		Stringer("status", order.Status).
		Str("total", order.Total.StringFixed(2)).
		Msg("Service: Order created successfully")

	return order, nil
}

func (s *service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return order, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, id int64, newStatus OrderStatus) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrInvalidValue, newStatus)
	}

	current, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if current.Status == newStatus {
		log.Info().Int64("order_id", id).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return nil
	}

	if !CanTransition(current.Status, newStatus) {
		log.Warn().
			Int64("order_id", id).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, current.Status, newStatus)
	}

	if err := s.repo.UpdateOrderStatus(ctx, id, current.Status, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		if errors.Is(err, ErrStatusConflict) {
			log.Warn().Err(err).Int64("order_id", id).Stringer("new_status", newStatus).Msg("service: order status changed during update")
			return err
		}
		log.Error().Err(err).Int64("order_id", id).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().
		Int64("order_id", id).
		Stringer("old_status", current.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated successfully")
	return nil
}

func (s *service) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to delete order: %w", err)
	}
	log.Warn().Int64("order_id", id).Msg("service: order deleted")
	return nil
}

func (s *service) AppendEvent(ctx context.Context, e *Event) (*Event, error) {
	if e.EventTS.IsZero() || strings.TrimSpace(e.Name) == "" {
		return nil, fmt.Errorf("%w: event timestamp and name are required", ErrInvalidValue)
	}
	e.DateKey = DateKeyOf(e.EventTS)

	if _, err := s.repo.AppendEvent(ctx, e); err != nil {
		log.Error().Err(err).Str("event_name", e.Name).Msg("service: failed to append event")
		return nil, fmt.Errorf("service: failed to append event: %w", err)
	}
	return e, nil
}
