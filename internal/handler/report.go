package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/export"
)

const (
	moneyPlaces = 2
	ratePlaces  = 4
)

type DateRangeQuery struct {
	StartDate string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `query:"end_date" validate:"required,datetime=2006-01-02"`
}

type CohortQuery struct {
	CohortStart string `query:"cohort_start" validate:"required,datetime=2006-01"`
	CohortEnd   string `query:"cohort_end" validate:"required,datetime=2006-01"`
}

type TopProductsQuery struct {
	Limit string `query:"limit" validate:"omitempty,number"`
}

type DailyMetricResponse struct {
	DateKey         string      `json:"date_key"`
	Revenue         json.Number `json:"revenue"`
	Refunds         json.Number `json:"refunds"`
	OrdersPaid      int64       `json:"orders_paid"`
	PayingCustomers int64       `json:"paying_customers"`
	RefundRate      json.Number `json:"refund_rate"`
}

type DailyRevenueResponse struct {
	DateKey    string      `json:"date_key"`
	Revenue    json.Number `json:"revenue"`
	Refunds    json.Number `json:"refunds"`
	OrdersPaid int64       `json:"orders_paid"`
	OrdersAll  int64       `json:"orders_all"`
	RefundRate json.Number `json:"refund_rate"`
}

type RollingRevenueResponse struct {
	DateKey          string      `json:"date_key"`
	Revenue          json.Number `json:"revenue"`
	RevenueRolling7d json.Number `json:"revenue_rolling_7d"`
}

type TopProductResponse struct {
	ProductID int64       `json:"product_id"`
	Name      string      `json:"name"`
	Category  *string     `json:"category"`
	Units     int64       `json:"units"`
	Sales     json.Number `json:"sales"`
}

type RetentionCohortResponse struct {
	CohortMonth     string `json:"cohort_month"`
	ActiveMonth     string `json:"active_month"`
	MonthOffset     int    `json:"month_offset"`
	ActiveCustomers int64  `json:"active_customers"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(moneyPlaces))
}

func rate(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(ratePlaces))
}

type ReportHandler struct {
	service  analytics.Service
	validate *validator.Validate
}

func NewReportHandler(service analytics.Service) *ReportHandler {
	return &ReportHandler{service: service, validate: newValidator()}
}

func (h *ReportHandler) RegisterRoutes(router chi.Router) {
	router.Get("/reports/daily-metrics", h.handleDailyMetrics)
	router.Get("/reports/daily-metrics.xlsx", h.handleDailyMetricsXLSX)
	router.Get("/reports/daily-revenue", h.handleDailyRevenue)
	router.Get("/reports/rolling-revenue", h.handleRollingRevenue)
	router.Get("/reports/top-products", h.handleTopProducts)
	router.Get("/reports/retention-cohorts", h.handleRetentionCohorts)
	router.Get("/catalog", h.handleCatalog)
	router.Get("/catalog/{name}", h.handleRelation)
}

// parseDateRange writes the error response itself and reports whether to continue.
func (h *ReportHandler) parseDateRange(w http.ResponseWriter, r *http.Request) (analytics.DateRange, bool) {
	q := DateRangeQuery{
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
	}
	if !validateRequest(w, h.validate, q) {
		return analytics.DateRange{}, false
	}

	dr, err := analytics.ParseDateRange(q.StartDate, q.EndDate)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return analytics.DateRange{}, false
	}
	return dr, true
}

func (h *ReportHandler) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	dr, ok := h.parseDateRange(w, r)
	if !ok {
		return
	}

	rows, err := h.service.DailyMetrics(r.Context(), dr)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch daily metrics")
		return
	}

	resp := make([]DailyMetricResponse, 0, len(rows))
	for _, m := range rows {
		resp = append(resp, DailyMetricResponse{
			DateKey:         m.DateKey.Format(analytics.DateLayout),
			Revenue:         money(m.Revenue),
			Refunds:         money(m.Refunds),
			OrdersPaid:      m.OrdersPaid,
			PayingCustomers: m.PayingCustomers,
			RefundRate:      rate(m.RefundRate),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) handleDailyMetricsXLSX(w http.ResponseWriter, r *http.Request) {
	dr, ok := h.parseDateRange(w, r)
	if !ok {
		return
	}

	rows, err := h.service.DailyMetrics(r.Context(), dr)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch daily metrics")
		return
	}

	// Render fully before writing headers so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := export.WriteDailyMetrics(&buf, dr, rows); err != nil {
		log.Error().Err(err).Stringer("range", dr).Msg("Failed to render daily metrics workbook")
		respondWithError(w, http.StatusInternalServerError, "Failed to render workbook")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.DailyMetricsFilename(dr)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Msg("Failed to write workbook")
	}
}

func (h *ReportHandler) handleDailyRevenue(w http.ResponseWriter, r *http.Request) {
	dr, ok := h.parseDateRange(w, r)
	if !ok {
		return
	}

	rows, err := h.service.DailyRevenue(r.Context(), dr)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch daily revenue")
		return
	}

	resp := make([]DailyRevenueResponse, 0, len(rows))
	for _, d := range rows {
		resp = append(resp, DailyRevenueResponse{
			DateKey:    d.DateKey.Format(analytics.DateLayout),
			Revenue:    money(d.Revenue),
			Refunds:    money(d.Refunds),
			OrdersPaid: d.OrdersPaid,
			OrdersAll:  d.OrdersAll,
			RefundRate: rate(d.RefundRate),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) handleRollingRevenue(w http.ResponseWriter, r *http.Request) {
	dr, ok := h.parseDateRange(w, r)
	if !ok {
		return
	}

	rows, err := h.service.RollingRevenue(r.Context(), dr)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch rolling revenue")
		return
	}

	resp := make([]RollingRevenueResponse, 0, len(rows))
	for _, d := range rows {
		resp = append(resp, RollingRevenueResponse{
			DateKey:          d.DateKey.Format(analytics.DateLayout),
			Revenue:          money(d.Revenue),
			RevenueRolling7d: money(d.RevenueRolling7d),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	q := TopProductsQuery{Limit: r.URL.Query().Get("limit")}
	if !validateRequest(w, h.validate, q) {
		return
	}

	var limit int
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit is out of range")
			return
		}
		if n == 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be positive")
			return
		}
		limit = n
	}

	rows, err := h.service.TopProducts(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch top products")
		return
	}

	resp := make([]TopProductResponse, 0, len(rows))
	for _, p := range rows {
		resp = append(resp, TopProductResponse{
			ProductID: p.ProductID,
			Name:      p.Name,
			Category:  p.Category,
			Units:     p.Units,
			Sales:     money(p.Sales),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) handleRetentionCohorts(w http.ResponseWriter, r *http.Request) {
	q := CohortQuery{
		CohortStart: r.URL.Query().Get("cohort_start"),
		CohortEnd:   r.URL.Query().Get("cohort_end"),
	}
	if !validateRequest(w, h.validate, q) {
		return
	}

	mr, err := analytics.ParseMonthRange(q.CohortStart, q.CohortEnd)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.service.RetentionCohorts(r.Context(), mr)
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch retention cohorts")
		return
	}

	resp := make([]RetentionCohortResponse, 0, len(rows))
	for _, c := range rows {
		resp = append(resp, RetentionCohortResponse{
			CohortMonth:     c.CohortMonth.Format(analytics.MonthLayout),
			ActiveMonth:     c.ActiveMonth.Format(analytics.MonthLayout),
			MonthOffset:     c.MonthOffset(),
			ActiveCustomers: c.ActiveCustomers,
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ReportHandler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.Catalog())
}

func (h *ReportHandler) handleRelation(w http.ResponseWriter, r *http.Request) {
	rel, err := h.service.Relation(chi.URLParam(r, "name"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to look up relation")
		return
	}
	respondWithJSON(w, http.StatusOK, rel)
}
