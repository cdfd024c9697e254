// Package api exposes HTTP handlers for the carbon ledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"example.com/carbonledger/internal/auth"
	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
	"example.com/carbonledger/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	recentActivities = 5
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger.With().Str("component", "api").Logger()}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/auth/user", h.currentUser)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/dashboard/stats", h.dashboardStats)
	mux.HandleFunc("/v1/offsets", h.offsets)
	mux.HandleFunc("/v1/emission-factors", h.emissionFactors)
	mux.HandleFunc("/v1/organizations", h.organizations)
	mux.HandleFunc("/v1/organizations/", h.organizationByID)
	mux.HandleFunc("/v1/admin/stats", h.adminStats)
	mux.HandleFunc("/v1/admin/users", h.adminUsers)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's claims when they hold one of scopes. With no
// scopes any authenticated caller passes. The response is written on failure.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, err := auth.Require(r.Context(), scopes...)
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	case err != nil:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return nil, false
	}
	return claims, true
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r)
	if !ok {
		return
	}

	user, err := h.service.SyncUser(r.Context(), domain.User{
		ID:              claims.Subject,
		Email:           claims.Email,
		FirstName:       claims.GivenName,
		LastName:        claims.FamilyName,
		ProfileImageURL: claims.Picture,
		OrganizationID:  claims.OrganizationID,
	})
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	record, replay, err := h.service.CreateActivity(r.Context(), domain.CreateActivityInput{
		UserID:         claims.Subject,
		Category:       req.Category,
		Type:           strings.TrimSpace(req.Type),
		Description:    strings.TrimSpace(req.Description),
		Quantity:       domain.AmountFromDecimal(req.Quantity.Decimal),
		Unit:           req.Unit,
		ActivityDate:   req.ActivityDate.Time,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if errors.Is(err, domain.ErrOutOfRange) {
		writeError(w, http.StatusBadRequest, "validation_failed", "carbonEmission out of range")
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, toActivityView(*record))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListActivities(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      toActivityViews(records),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	dash, err := h.service.GetDashboard(r.Context(), claims.Subject, recentActivities)
	if err != nil {
		h.serverError(w, err)
		return
	}

	monthly := make([]MonthlyEmissionView, 0, len(dash.Stats.MonthlyEmissions))
	for _, m := range dash.Stats.MonthlyEmissions {
		monthly = append(monthly, MonthlyEmissionView{Month: m.Month, Emissions: m.Emissions})
	}
	writeJSON(w, http.StatusOK, DashboardStatsResponse{
		TotalEmissions:     dash.Stats.TotalEmissions,
		TransportEmissions: dash.Stats.TransportEmissions,
		EnergyEmissions:    dash.Stats.EnergyEmissions,
		FoodEmissions:      dash.Stats.FoodEmissions,
		WasteEmissions:     dash.Stats.WasteEmissions,
		TotalOffsets:       dash.TotalOffsets,
		MonthlyEmissions:   monthly,
		RecentActivities:   toActivityViews(dash.RecentActivities),
	})
}

func (h *Handler) offsets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createOffset(w, r)
	case http.MethodGet:
		h.listOffsets(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createOffset(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeOffsetsWrite)
	if !ok {
		return
	}

	var req CreateOffsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	offset, err := h.service.CreateOffset(r.Context(), domain.CreateOffsetInput{
		UserID:         claims.Subject,
		OffsetAmount:   domain.AmountFromDecimal(req.OffsetAmount.Decimal),
		Project:        strings.TrimSpace(req.Project),
		VerificationID: strings.TrimSpace(req.VerificationID),
		Cost:           domain.AmountFromDecimal(req.Cost.Decimal),
		Currency:       req.Currency,
		PurchaseDate:   req.PurchaseDate.Time,
	})
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOffsetView(*offset))
}

func (h *Handler) listOffsets(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeOffsetsRead, auth.ScopeOffsetsWrite)
	if !ok {
		return
	}

	offsets, err := h.service.ListOffsets(r.Context(), claims.Subject)
	if err != nil {
		h.serverError(w, err)
		return
	}
	items := make([]OffsetView, 0, len(offsets))
	for _, o := range offsets {
		items = append(items, toOffsetView(o))
	}
	writeJSON(w, http.StatusOK, ListOffsetsResponse{Items: items})
}

func (h *Handler) emissionFactors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, EmissionFactorsResponse{Items: emissions.Factors()})
}

func (h *Handler) organizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := authorize(w, r); !ok {
			return
		}
		orgs, err := h.service.ListOrganizations(r.Context())
		if err != nil {
			h.serverError(w, err)
			return
		}
		items := make([]OrganizationView, 0, len(orgs))
		for _, org := range orgs {
			items = append(items, toOrganizationView(org))
		}
		writeJSON(w, http.StatusOK, ListOrganizationsResponse{Items: items})
	case http.MethodPost:
		if _, ok := authorize(w, r, auth.ScopeAdmin); !ok {
			return
		}
		var req CreateOrganizationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		org, err := h.service.CreateOrganization(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
		if err != nil {
			h.serverError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOrganizationView(*org))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) organizationByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing organization id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r); !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "organization not found")
			return
		}
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationView(*org))
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, auth.ScopeAdmin); !ok {
		return
	}

	stats, err := h.service.GetAdminStats(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminStatsResponse{
		TotalUsers:         stats.TotalUsers,
		TotalOrganizations: stats.TotalOrganizations,
		TotalActivities:    stats.TotalActivities,
		TotalEmissions:     stats.TotalEmissionsTonnes(),
	})
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, auth.ScopeAdmin); !ok {
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	items := make([]UserView, 0, len(users))
	for _, u := range users {
		items = append(items, toUserView(u))
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Items: items})
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
