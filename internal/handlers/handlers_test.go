package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
	"github.com/tourdesk/excursion-backend/pkg/jwt"
)

type apiFixture struct {
	router   *gin.Engine
	jwt      *jwt.Service
	admin    string
	customer string
	other    string
	staff    string
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := database.NewMemoryStore()
	store.SeedExcursion(models.Excursion{ID: "exc-1", Name: "Sunset cruise"})
	store.SeedRegion(models.Region{ID: "r-north", Name: "North coast"})
	store.SeedPickupPoint(models.PickupPoint{ID: "p-harbour", RegionID: "r-north", Name: "Harbour"})

	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	notifier := services.NewLogNotifier(logger)

	ledger := services.NewCapacityLedger(logger, 0)
	lifecycle := services.NewLifecycleCoordinator(ledger, logger)
	availability := services.NewAvailabilityService(store, services.NewConflictDetector(),
		services.NewDayMaterializer(ledger, logger), lifecycle, logger, clock, time.UTC)
	bookings := services.NewBookingService(store, ledger, lifecycle, notifier, nil, logger, clock, time.UTC)
	referrals := services.NewReferralService(store, lifecycle, logger, clock)
	dispatch := services.NewDispatchService(store, lifecycle, notifier, logger, clock, time.UTC)
	sweeps := services.NewSweepService(store, bookings, ledger, lifecycle, logger, time.UTC)
	cron := services.NewCronService(sweeps, nil, logger, clock)

	jwtService := jwt.NewService("handler-test-secret", time.Hour)
	router := gin.New()
	RegisterRoutes(router, Handlers{
		Windows:     NewWindowHandler(availability, bookings, logger),
		Bookings:    NewBookingHandler(bookings, logger),
		Referrals:   NewReferralHandler(referrals, logger),
		Dispatch:    NewDispatchHandler(dispatch, logger),
		Maintenance: NewMaintenanceHandler(sweeps, cron, clock, logger),
	}, jwtService)

	token := func(subject, role string) string {
		tok, err := jwtService.GenerateAccessToken(subject, []string{role})
		require.NoError(t, err)
		return tok
	}

	return &apiFixture{
		router:   router,
		jwt:      jwtService,
		admin:    token("admin-1", jwt.RoleAdmin),
		customer: token("customer-1", jwt.RoleCustomer),
		other:    token("customer-2", jwt.RoleCustomer),
		staff:    token("staff-1", jwt.RoleStaff),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func windowBody() gin.H {
	return gin.H{
		"excursion_id":     "exc-1",
		"start_date":       "2025-01-01",
		"end_date":         "2025-01-14",
		"weekdays":         []string{"MON", "FRI"},
		"region_ids":       []string{"r-north"},
		"pickup_point_ids": []string{"p-harbour"},
		"start_time":       "09:00",
		"max_guests":       10,
		"adult_price":      "40",
		"child_price":      "20",
		"infant_price":     "0",
		"status":           "active",
	}
}

func (f *apiFixture) createWindow(t *testing.T) models.AvailabilityWindow {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/windows", f.admin, windowBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var win models.AvailabilityWindow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &win))
	return win
}

func TestWindowLifecycle(t *testing.T) {
	api := setupAPI(t)
	win := api.createWindow(t)
	assert.NotEmpty(t, win.ID)

	w := api.do(t, http.MethodGet, "/api/v1/windows/"+win.ID+"/days", api.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var days struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &days))
	assert.Equal(t, 4, days.Count)

	t.Run("overlapping window is a conflict", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/windows/validate", api.admin, windowBody())
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "conflict")
	})

	t.Run("window validates against itself", func(t *testing.T) {
		body := windowBody()
		body["window_id"] = win.ID
		w := api.do(t, http.MethodPost, "/api/v1/windows/validate", api.admin, body)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("quote", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/windows/"+win.ID+"/quote?adults=2&children=1", api.customer, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var quote struct {
			BasePrice decimal.Decimal `json:"base_price"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
		assert.True(t, quote.BasePrice.Equal(decimal.NewFromInt(100)), quote.BasePrice.String())

		w = api.do(t, http.MethodGet, "/api/v1/windows/"+win.ID+"/quote?adults=two", api.customer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deactivate", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/windows/"+win.ID+"/status", api.admin, gin.H{"status": "inactive"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"status":"inactive"`)
	})

	t.Run("delete", func(t *testing.T) {
		w := api.do(t, http.MethodDelete, "/api/v1/windows/"+win.ID, api.admin, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = api.do(t, http.MethodGet, "/api/v1/windows/"+win.ID, api.admin, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWindowRoutesRequireAdmin(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/windows", api.customer, windowBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/windows", "", windowBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/windows", api.admin, gin.H{"excursion_id": "exc-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingCapacity(t *testing.T) {
	api := setupAPI(t)
	win := api.createWindow(t)

	book := func(adults int) *httptest.ResponseRecorder {
		return api.do(t, http.MethodPost, "/api/v1/bookings", api.customer, gin.H{
			"window_id":       win.ID,
			"tour_date":       "2025-01-03",
			"pickup_point_id": "p-harbour",
			"adult_count":     adults,
		})
	}

	w := book(6)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, models.PaymentStatusPending, first.PaymentStatus)
	require.NotNil(t, first.UserID)
	assert.Equal(t, "customer-1", *first.UserID)

	w = book(5)
	require.Equal(t, http.StatusConflict, w.Code)
	var rejected struct {
		Error   string `json:"error"`
		Details struct {
			Remaining int `json:"remaining"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, "insufficient_capacity", rejected.Error)
	assert.Equal(t, 4, rejected.Details.Remaining)

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+first.ID+"/cancel", api.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"payment_status":"cancelled"`)

	w = book(5)
	assert.Equal(t, http.StatusCreated, w.Code)

	t.Run("date off the weekday pattern", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/bookings", api.customer, gin.H{
			"window_id":       win.ID,
			"tour_date":       "2025-01-04",
			"pickup_point_id": "p-harbour",
			"adult_count":     1,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "day_not_bookable")
	})

	t.Run("payment is admin only", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/bookings/"+first.ID+"/payment", api.customer, gin.H{"success": true})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown booking", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/bookings/missing", api.customer, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCancelPaidBookingIsAdminOnly(t *testing.T) {
	api := setupAPI(t)
	win := api.createWindow(t)

	w := api.do(t, http.MethodPost, "/api/v1/bookings", api.customer, gin.H{
		"window_id":       win.ID,
		"tour_date":       "2025-01-03",
		"pickup_point_id": "p-harbour",
		"adult_count":     2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b models.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", api.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/payment", api.admin, gin.H{
		"success":           true,
		"payment_reference": "PAY-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", api.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"forbidden"`)

	w = api.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"payment_status":"cancelled"`)
}

func TestDispatchRoutes(t *testing.T) {
	api := setupAPI(t)
	api.createWindow(t)

	w := api.do(t, http.MethodPost, "/api/v1/dispatch-groups", api.customer, gin.H{
		"excursion_id": "exc-1",
		"tour_date":    "2025-01-03",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/dispatch-groups", api.staff, gin.H{
		"excursion_id": "exc-1",
		"tour_date":    "2025-01-03",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var group models.TransportDispatchGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))

	w = api.do(t, http.MethodPost, "/api/v1/dispatch-groups/"+group.ID+"/dispatch", api.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"days_closed":1`)

	w = api.do(t, http.MethodDelete, "/api/v1/dispatch-groups/"+group.ID, api.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"days_reopened":1`)
}

func TestMaintenanceRoutes(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/admin/sweeps/expire_days", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"sweep":"expire_days"`)

	w = api.do(t, http.MethodPost, "/api/v1/admin/sweeps/all", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var all struct {
		Results []services.SweepResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all.Results, len(services.SweepNames()))

	w = api.do(t, http.MethodPost, "/api/v1/admin/sweeps/defrag", api.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/admin/cron", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"job_count":0`)

	w = api.do(t, http.MethodGet, "/api/v1/admin/cron", api.staff, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
