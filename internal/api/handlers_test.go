package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/carbonledger/internal/auth"
	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/persistence/memory"
)

var fixedNow = time.Date(2025, time.October, 27, 20, 0, 0, 0, time.UTC)

type testServer struct {
	mux  *http.ServeMux
	repo *memory.Repository
}

func newTestServer() testServer {
	repo := memory.NewRepository()
	service := domain.NewService(repo, domain.WithClock(func() time.Time { return fixedNow }))
	mux := http.NewServeMux()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(mux)
	return testServer{mux: mux, repo: repo}
}

func claimsFor(subject string, scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &auth.Claims{Subject: subject, Scopes: set, ExpiresAt: time.Now().Add(time.Hour)}
}

func (s testServer) do(t *testing.T, method, target string, claims *auth.Claims, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestCreateActivityComputesEmission(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)

	rr := srv.do(t, http.MethodPost, "/v1/activities", writer, map[string]any{
		"category":     "food",
		"type":         "beef",
		"quantity":     2,
		"activityDate": "2025-05-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	view := decode[ActivityView](t, rr)
	assert.Equal(t, "user-1", view.UserID)
	assert.Equal(t, "54", view.CarbonEmission)
	assert.Equal(t, "2", view.Quantity)
	assert.Equal(t, "kg", view.Unit)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), view.ActivityDate)
}

func TestCreateActivityIdempotencyKeyReplays(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)
	body := map[string]any{"category": "energy", "type": "electricity", "quantity": "120.5"}

	first := srv.do(t, http.MethodPost, "/v1/activities", writer, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	second := srv.do(t, http.MethodPost, "/v1/activities", writer, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, decode[ActivityView](t, first).ID, decode[ActivityView](t, second).ID)
}

func TestCreateActivityValidation(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)

	cases := map[string]map[string]any{
		"unknown category":     {"category": "travel", "quantity": 1},
		"undeclared type":      {"category": "transport", "type": "rocket", "quantity": 1},
		"negative quantity":    {"category": "waste", "type": "general", "quantity": -1},
		"missing quantity":     {"category": "waste", "type": "general"},
		"malformed date":       {"category": "waste", "quantity": 1, "activityDate": "yesterday"},
		"non numeric quantity": {"category": "waste", "quantity": "lots"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := srv.do(t, http.MethodPost, "/v1/activities", writer, body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestCreateActivityRejectsOverflowingQuantity(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)

	cases := map[string]struct {
		body   string
		detail string
	}{
		"quantity overflows float64": {`{"category":"transport","type":"car_gasoline","quantity":1e400}`, "quantity out of range"},
		"emission overflows float64": {`{"category":"food","type":"beef","quantity":1e308}`, "carbonEmission out of range"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var rr *httptest.ResponseRecorder
			require.NotPanics(t, func() {
				rr = srv.do(t, http.MethodPost, "/v1/activities", writer, json.RawMessage(tc.body))
			})
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, tc.detail, decode[map[string]string](t, rr)["detail"])
		})
	}

	count, err := srv.repo.CountActivities(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateOffsetRejectsOverflowingAmount(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeOffsetsWrite)

	rr := srv.do(t, http.MethodPost, "/v1/offsets", writer, json.RawMessage(`{"offsetAmount":1e400,"project":"Peatland"}`))
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	assert.Equal(t, "offsetAmount out of range", decode[map[string]string](t, rr)["detail"])
}

func TestCreateActivityAllowsMissingTypeAndProducts(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)

	rr := srv.do(t, http.MethodPost, "/v1/activities", writer, map[string]any{"category": "transport", "quantity": 100})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "21", decode[ActivityView](t, rr).CarbonEmission)

	rr = srv.do(t, http.MethodPost, "/v1/activities", writer, map[string]any{"category": "products", "type": "laptop", "quantity": 1})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "0", decode[ActivityView](t, rr).CarbonEmission)
}

func TestActivitiesRequireScopes(t *testing.T) {
	srv := newTestServer()

	rr := srv.do(t, http.MethodGet, "/v1/activities", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/activities", claimsFor("user-1", auth.ScopeActivitiesRead), map[string]any{"category": "food", "quantity": 1})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = srv.do(t, http.MethodDelete, "/v1/activities", claimsFor("user-1"), nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestListActivitiesPaginates(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite, auth.ScopeActivitiesRead)

	for day := 1; day <= 3; day++ {
		rr := srv.do(t, http.MethodPost, "/v1/activities", writer, map[string]any{
			"category":     "transport",
			"type":         "train",
			"quantity":     day,
			"activityDate": time.Date(2025, time.June, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := srv.do(t, http.MethodPost, "/v1/activities", claimsFor("user-2", auth.ScopeActivitiesWrite), map[string]any{"category": "food", "quantity": 1})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/activities?limit=2", writer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListActivitiesResponse](t, rr)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Items[0].ActivityDate.Day())
	assert.Equal(t, 2, page.Items[1].ActivityDate.Day())
	require.NotEmpty(t, page.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/activities?limit=2&cursor="+page.NextCursor, writer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decode[ListActivitiesResponse](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].ActivityDate.Day())
	assert.Empty(t, page.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/activities?cursor=@@@", writer, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardStats(t *testing.T) {
	srv := newTestServer()
	user := claimsFor("user-1", auth.ScopeActivitiesWrite, auth.ScopeActivitiesRead, auth.ScopeOffsetsWrite)

	bodies := []map[string]any{
		{"category": "transport", "type": "car_gasoline", "quantity": 10, "activityDate": "2024-03-05"},
		{"category": "energy", "type": "electricity", "quantity": 10, "activityDate": "2024-03-20"},
		{"category": "food", "type": "beef", "quantity": 1, "activityDate": "2024-04-02"},
	}
	for _, body := range bodies {
		rr := srv.do(t, http.MethodPost, "/v1/activities", user, body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := srv.do(t, http.MethodPost, "/v1/offsets", user, map[string]any{"offsetAmount": "2.5", "project": "peatland"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/dashboard/stats", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	stats := decode[DashboardStatsResponse](t, rr)
	assert.InDelta(t, 2.1+5+27, stats.TotalEmissions, 1e-9)
	assert.InDelta(t, 2.1, stats.TransportEmissions, 1e-9)
	assert.InDelta(t, 5.0, stats.EnergyEmissions, 1e-9)
	assert.InDelta(t, 27.0, stats.FoodEmissions, 1e-9)
	assert.Zero(t, stats.WasteEmissions)
	assert.Equal(t, 2.5, stats.TotalOffsets)
	require.Len(t, stats.MonthlyEmissions, 2)
	assert.Equal(t, "2024-03", stats.MonthlyEmissions[0].Month)
	assert.InDelta(t, 7.1, stats.MonthlyEmissions[0].Emissions, 1e-9)
	assert.Equal(t, "2024-04", stats.MonthlyEmissions[1].Month)
	require.Len(t, stats.RecentActivities, 3)
	assert.Equal(t, "food", stats.RecentActivities[0].Category)
}

func TestDashboardStatsEmptyHistory(t *testing.T) {
	srv := newTestServer()
	rr := srv.do(t, http.MethodGet, "/v1/dashboard/stats", claimsFor("user-1", auth.ScopeActivitiesRead), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"monthlyEmissions":[]`)
	assert.Contains(t, rr.Body.String(), `"recentActivities":[]`)
}

func TestOffsets(t *testing.T) {
	srv := newTestServer()
	user := claimsFor("user-1", auth.ScopeOffsetsWrite, auth.ScopeOffsetsRead)

	rr := srv.do(t, http.MethodPost, "/v1/offsets", user, map[string]any{"offsetAmount": 5, "project": ""})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = srv.do(t, http.MethodPost, "/v1/offsets", user, map[string]any{"offsetAmount": 5, "project": "wind", "cost": -1})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/offsets", user, map[string]any{
		"offsetAmount": 5, "project": "wind", "cost": "12.00", "purchaseDate": "2025-01-15",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[OffsetView](t, rr)
	assert.Equal(t, "USD", created.Currency)
	assert.Equal(t, "12", created.Cost)

	rr = srv.do(t, http.MethodGet, "/v1/offsets", user, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[ListOffsetsResponse](t, rr)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)

	rr = srv.do(t, http.MethodGet, "/v1/offsets", claimsFor("user-1", auth.ScopeActivitiesRead), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestEmissionFactors(t *testing.T) {
	srv := newTestServer()
	rr := srv.do(t, http.MethodGet, "/v1/emission-factors", claimsFor("user-1"), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Items []struct {
			Category string  `json:"category"`
			Type     string  `json:"type"`
			Factor   float64 `json:"factor"`
			Unit     string  `json:"unit"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 20)
	assert.Equal(t, "transport", resp.Items[0].Category)
	assert.Equal(t, "car_gasoline", resp.Items[0].Type)
	assert.Equal(t, 0.21, resp.Items[0].Factor)
}

func TestCurrentUserUpsertsFromClaims(t *testing.T) {
	srv := newTestServer()
	claims := claimsFor("oidc|42")
	claims.Email = "grace@example.com"
	claims.GivenName = "Grace"

	rr := srv.do(t, http.MethodGet, "/v1/auth/user", claims, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[UserView](t, rr)
	assert.Equal(t, "oidc|42", view.ID)
	assert.Equal(t, "Grace", view.FirstName)
	assert.Equal(t, domain.RoleUser, view.Role)

	count, err := srv.repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrganizations(t *testing.T) {
	srv := newTestServer()
	admin := claimsFor("admin-1", auth.ScopeAdmin)

	rr := srv.do(t, http.MethodPost, "/v1/organizations", claimsFor("user-1"), map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = srv.do(t, http.MethodPost, "/v1/organizations", admin, map[string]any{"name": " "})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/organizations", admin, map[string]any{"name": "Acme", "description": "rockets"})
	require.Equal(t, http.StatusCreated, rr.Code)
	org := decode[OrganizationView](t, rr)

	rr = srv.do(t, http.MethodGet, "/v1/organizations/"+org.ID, claimsFor("user-1"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Acme", decode[OrganizationView](t, rr).Name)

	rr = srv.do(t, http.MethodGet, "/v1/organizations/missing", claimsFor("user-1"), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/organizations", claimsFor("user-1"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListOrganizationsResponse](t, rr).Items, 1)
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer()
	writer := claimsFor("user-1", auth.ScopeActivitiesWrite)

	rr := srv.do(t, http.MethodGet, "/v1/auth/user", writer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(t, http.MethodPost, "/v1/activities", writer, map[string]any{"category": "food", "type": "beef", "quantity": 100})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/stats", writer, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	admin := claimsFor("admin-1", auth.ScopeAdmin)
	rr = srv.do(t, http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[AdminStatsResponse](t, rr)
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Zero(t, stats.TotalOrganizations)
	assert.Equal(t, 1, stats.TotalActivities)
	assert.InDelta(t, 2.7, stats.TotalEmissions, 1e-9)

	rr = srv.do(t, http.MethodGet, "/v1/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	users := decode[ListUsersResponse](t, rr)
	require.Len(t, users.Items, 1)
	assert.Equal(t, "user-1", users.Items[0].ID)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	rr := srv.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}
