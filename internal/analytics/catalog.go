package analytics

import "strings"

const schemaPrefix = "analytics."

type RelationKind string

const (
	KindTable            RelationKind = "table"
	KindView             RelationKind = "view"
	KindMaterializedView RelationKind = "materialized view"
)

// Relation describes a queryable object in the analytics schema.
type Relation struct {
	Name    string       `json:"name"`
	Kind    RelationKind `json:"kind"`
	Columns []string     `json:"columns"`
}

var catalog = []Relation{
	{Name: "dim_date", Kind: KindTable, Columns: []string{"date_key", "year", "quarter", "month", "day", "iso_week"}},
	{Name: "dim_customer", Kind: KindTable, Columns: []string{"customer_id", "email", "signup_date", "country", "segment"}},
	{Name: "dim_product", Kind: KindTable, Columns: []string{"product_id", "sku", "name", "category", "unit_cost"}},
	{Name: "fact_orders", Kind: KindTable, Columns: []string{"order_id", "order_ts", "date_key", "customer_id", "status", "subtotal", "discount", "tax", "shipping", "total"}},
	{Name: "fact_order_items", Kind: KindTable, Columns: []string{"order_item_id", "order_id", "product_id", "quantity", "unit_price", "line_total"}},
	{Name: "fact_events", Kind: KindTable, Columns: []string{"event_id", "event_ts", "date_key", "customer_id", "event_name", "event_value", "meta"}},
	{Name: "v_daily_revenue", Kind: KindView, Columns: []string{"date_key", "revenue", "refunds", "orders_paid", "orders_all"}},
	{Name: "v_revenue_rolling_7d", Kind: KindView, Columns: []string{"date_key", "revenue", "revenue_rolling_7d"}},
	{Name: "v_top_products_30d", Kind: KindView, Columns: []string{"product_id", "name", "category", "units", "sales"}},
	{Name: "v_retention_cohorts", Kind: KindView, Columns: []string{"cohort_month", "active_month", "active_customers"}},
	{Name: "mv_daily_metrics", Kind: KindMaterializedView, Columns: []string{"date_key", "revenue", "refunds", "orders_paid", "paying_customers"}},
}

// Catalog returns a copy of the relations exposed by the analytics schema.
func Catalog() []Relation {
	out := make([]Relation, len(catalog))
	for i, r := range catalog {
		out[i] = Relation{Name: r.Name, Kind: r.Kind, Columns: append([]string(nil), r.Columns...)}
	}
	return out
}

// LookupRelation finds a relation by name, with or without the schema prefix.
func LookupRelation(name string) (Relation, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), schemaPrefix)
	for _, r := range catalog {
		if r.Name == name {
			return Relation{Name: r.Name, Kind: r.Kind, Columns: append([]string(nil), r.Columns...)}, true
		}
	}
	return Relation{}, false
}
