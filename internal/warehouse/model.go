package warehouse

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusRefunded  OrderStatus = "refunded"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

type Customer struct {
	ID         int64     `json:"customer_id" db:"customer_id"`
	Email      string    `json:"email" db:"email"`
	SignupDate time.Time `json:"signup_date" db:"signup_date"`
	Country    string    `json:"country,omitempty" db:"country"`
	Segment    string    `json:"segment,omitempty" db:"segment"`
}

type Product struct {
	ID       int64           `json:"product_id" db:"product_id"`
	SKU      string          `json:"sku" db:"sku"`
	Name     string          `json:"name" db:"name"`
	Category string          `json:"category,omitempty" db:"category"`
	UnitCost decimal.Decimal `json:"unit_cost" db:"unit_cost"`
}

// OrderItem.LineTotal is computed by the database (quantity * unit_price) and is read-only.
type OrderItem struct {
	ID        int64           `json:"order_item_id" db:"order_item_id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total" db:"line_total"`
}

type Order struct {
	ID         int64           `json:"order_id" db:"order_id"`
	OrderTS    time.Time       `json:"order_ts" db:"order_ts"`
	DateKey    time.Time       `json:"date_key" db:"date_key"`
	CustomerID *int64          `json:"customer_id,omitempty" db:"customer_id"`
	Status     OrderStatus     `json:"status" db:"status"`
	Subtotal   decimal.Decimal `json:"subtotal" db:"subtotal"`
	Discount   decimal.Decimal `json:"discount" db:"discount"`
	Tax        decimal.Decimal `json:"tax" db:"tax"`
	Shipping   decimal.Decimal `json:"shipping" db:"shipping"`
	Total      decimal.Decimal `json:"total" db:"total"`
	Items      []OrderItem     `json:"items" db:"-"`
}

// ExpectedTotal is subtotal - discount + tax + shipping.
func (o *Order) ExpectedTotal() decimal.Decimal {
	return o.Subtotal.Sub(o.Discount).Add(o.Tax).Add(o.Shipping)
}

type Event struct {
	ID         int64            `json:"event_id" db:"event_id"`
	EventTS    time.Time        `json:"event_ts" db:"event_ts"`
	DateKey    time.Time        `json:"date_key" db:"date_key"`
	CustomerID *int64           `json:"customer_id,omitempty" db:"customer_id"`
	Name       string           `json:"event_name" db:"event_name"`
	Value      *decimal.Decimal `json:"event_value,omitempty" db:"event_value"`
	Meta       map[string]any   `json:"meta,omitempty" db:"meta"`
}

// DateKeyOf is the UTC calendar date of ts, the grain of dim_date.
func DateKeyOf(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
