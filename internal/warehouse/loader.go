package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DatePopulator fills the date dimension, see calendar.Repository.
type DatePopulator interface {
	Populate(ctx context.Context, from, to time.Time) (int64, error)
}

// Batch is a self-contained set of rows keyed by natural keys instead of surrogate ids.
type Batch struct {
	Customers []Customer   `json:"customers"`
	Products  []Product    `json:"products"`
	Orders    []BatchOrder `json:"orders"`
	Events    []BatchEvent `json:"events"`
}

type BatchOrder struct {
	OrderTS       time.Time       `json:"order_ts"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Status        OrderStatus     `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Shipping      decimal.Decimal `json:"shipping"`
	Total         decimal.Decimal `json:"total"`
	Items         []BatchItem     `json:"items"`
}

type BatchItem struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type BatchEvent struct {
	EventTS       time.Time        `json:"event_ts"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	Name          string           `json:"event_name"`
	Value         *decimal.Decimal `json:"event_value,omitempty"`
	Meta          map[string]any   `json:"meta,omitempty"`
}

type LoadResult struct {
	Days      int64 `json:"days"`
	Customers int   `json:"customers"`
	Products  int   `json:"products"`
	Orders    int   `json:"orders"`
	Events    int   `json:"events"`
}

func DecodeBatch(r io.Reader) (*Batch, error) {
	var b Batch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: malformed batch: %v", ErrInvalidValue, err)
	}
	return &b, nil
}

// Horizon returns the first and last UTC dates referenced by orders and events.
func (b *Batch) Horizon() (from, to time.Time, ok bool) {
	visit := func(ts time.Time) {
		d := DateKeyOf(ts)
		if !ok || d.Before(from) {
			from = d
		}
		if !ok || d.After(to) {
			to = d
		}
		ok = true
	}
	for _, o := range b.Orders {
		visit(o.OrderTS)
	}
	for _, e := range b.Events {
		visit(e.EventTS)
	}
	return from, to, ok
}

type Loader struct {
	svc   Service
	dates DatePopulator
}

func NewLoader(svc Service, dates DatePopulator) *Loader {
	return &Loader{svc: svc, dates: dates}
}

// Load writes the batch in dependency order: calendar days, dimensions, then facts.
// It stops at the first failing row; rows written before it are kept.
func (l *Loader) Load(ctx context.Context, b *Batch) (LoadResult, error) {
	var res LoadResult

	if from, to, ok := b.Horizon(); ok && l.dates != nil {
		n, err := l.dates.Populate(ctx, from, to)
		if err != nil {
			return res, fmt.Errorf("loader: failed to populate dates: %w", err)
		}
		res.Days = n
	}

	customers := make(map[string]int64, len(b.Customers))
	for i := range b.Customers {
		c, err := l.svc.UpsertCustomer(ctx, &b.Customers[i])
		if err != nil {
			return res, fmt.Errorf("loader: customer %d: %w", i, err)
		}
		customers[c.Email] = c.ID
		res.Customers++
	}

	products := make(map[string]int64, len(b.Products))
	for i := range b.Products {
		p, err := l.svc.UpsertProduct(ctx, &b.Products[i])
		if err != nil {
			return res, fmt.Errorf("loader: product %d: %w", i, err)
		}
		products[p.SKU] = p.ID
		res.Products++
	}

	for i, bo := range b.Orders {
		customerID, err := resolveCustomer(customers, bo.CustomerEmail)
		if err != nil {
			return res, fmt.Errorf("loader: order %d: %w", i, err)
		}

		order := &Order{
			OrderTS:    bo.OrderTS,
			CustomerID: customerID,
			Status:     bo.Status,
			Subtotal:   bo.Subtotal,
			Discount:   bo.Discount,
			Tax:        bo.Tax,
			Shipping:   bo.Shipping,
			Total:      bo.Total,
			Items:      make([]OrderItem, 0, len(bo.Items)),
		}
		for _, bi := range bo.Items {
			productID, ok := products[bi.SKU]
			if !ok {
				return res, fmt.Errorf("loader: order %d: %w: sku %q is not in the batch", i, ErrUnknownReference, bi.SKU)
			}
			order.Items = append(order.Items, OrderItem{ProductID: productID, Quantity: bi.Quantity, UnitPrice: bi.UnitPrice})
		}

		if _, err := l.svc.CreateOrder(ctx, order); err != nil {
			return res, fmt.Errorf("loader: order %d: %w", i, err)
		}
		res.Orders++
	}

	for i, be := range b.Events {
		customerID, err := resolveCustomer(customers, be.CustomerEmail)
		if err != nil {
			return res, fmt.Errorf("loader: event %d: %w", i, err)
		}
		event := &Event{EventTS: be.EventTS, CustomerID: customerID, Name: be.Name, Value: be.Value, Meta: be.Meta}
		if _, err := l.svc.AppendEvent(ctx, event); err != nil {
			return res, fmt.Errorf("loader: event %d: %w", i, err)
		}
		res.Events++
	}

	log.Info().
		Int64("days", res.Days).
		Int("customers", res.Customers).
		Int("products", res.Products).
		Int("orders", res.Orders).
		Int("events", res.Events).
		Msg("Batch loaded")

	return res, nil
}

func resolveCustomer(customers map[string]int64, email string) (*int64, error) {
	if email == "" {
		return nil, nil
	}
	id, ok := customers[email]
	if !ok {
		return nil, fmt.Errorf("%w: customer %q is not in the batch", ErrUnknownReference, email)
	}
	return &id, nil
}
