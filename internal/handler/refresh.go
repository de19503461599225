package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
)

// Kicker queues an asynchronous snapshot refresh.
type Kicker interface {
	Kick() bool
}

type RefreshAcceptedResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

type RefreshHandler struct {
	service refresh.Service
	kicker  Kicker
}

func NewRefreshHandler(service refresh.Service, kicker Kicker) *RefreshHandler {
	return &RefreshHandler{service: service, kicker: kicker}
}

func (h *RefreshHandler) RegisterRoutes(router chi.Router) {
	router.Post("/refresh", h.handleRefresh)
	router.Get("/refresh/status", h.handleStatus)
}

// handleRefresh never waits for the refresh; a request made while one is pending is merged into it.
func (h *RefreshHandler) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	resp := RefreshAcceptedResponse{Queued: h.kicker.Kick()}
	if resp.Queued {
		resp.Message = "Refresh queued"
	} else {
		resp.Message = "Refresh already pending"
	}
	log.Info().Bool("queued", resp.Queued).Msg("Refresh requested over HTTP")
	respondWithJSON(w, http.StatusAccepted, resp)
}

func (h *RefreshHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch refresh status")
		respondWithServiceError(w, err, "Failed to fetch refresh status")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}
