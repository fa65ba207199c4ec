package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tourdesk/excursion-backend/internal/middleware"
	"github.com/tourdesk/excursion-backend/pkg/jwt"
)

// Handlers bundles every API handler for route registration
type Handlers struct {
	Windows     *WindowHandler
	Bookings    *BookingHandler
	Referrals   *ReferralHandler
	Dispatch    *DispatchHandler
	Maintenance *MaintenanceHandler
}

// RegisterRoutes mounts the v1 API onto router
func RegisterRoutes(router *gin.Engine, h Handlers, jwtService *jwt.Service) {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService))

	admin := middleware.RequireRole(jwt.RoleAdmin)

	windows := v1.Group("/windows")
	{
		windows.POST("/validate", admin, h.Windows.ValidateWindow)
		windows.POST("", admin, h.Windows.CreateWindow)
		windows.PUT("/:id", admin, h.Windows.UpdateWindow)
		windows.PATCH("/:id/status", admin, h.Windows.SetWindowStatus)
		windows.DELETE("/:id", admin, h.Windows.DeleteWindow)
		windows.GET("/:id", h.Windows.GetWindow)
		windows.GET("/:id/days", h.Windows.ListDays)
		windows.GET("/:id/quote", h.Windows.QuoteWindow)
	}

	bookings := v1.Group("/bookings")
	{
		bookings.POST("", h.Bookings.CreateBooking)
		bookings.GET("/:id", h.Bookings.GetBooking)
		bookings.POST("/:id/cancel", h.Bookings.CancelBooking)
		bookings.POST("/:id/referral", h.Bookings.ApplyReferral)
		bookings.POST("/:id/expire", admin, h.Bookings.ExpireBooking)
		bookings.POST("/:id/payment", admin, h.Bookings.ConfirmPayment)
	}

	referrals := v1.Group("/referral-codes")
	referrals.Use(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleAgent))
	{
		referrals.POST("", h.Referrals.CreateReferralCode)
		referrals.POST("/:id/reactivate", h.Referrals.ReactivateReferralCode)
	}

	v1.PATCH("/agents/:id/status", admin, h.Referrals.SetAgentStatus)

	dispatch := v1.Group("/dispatch-groups")
	dispatch.Use(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleStaff))
	{
		dispatch.POST("", h.Dispatch.CreateGroup)
		dispatch.GET("/:id", h.Dispatch.GetGroup)
		dispatch.POST("/:id/bookings", h.Dispatch.AddBooking)
		dispatch.POST("/:id/dispatch", h.Dispatch.DispatchGroup)
		dispatch.DELETE("/:id", h.Dispatch.DeleteGroup)
	}

	maintenance := v1.Group("/admin")
	maintenance.Use(admin)
	{
		maintenance.POST("/sweeps/:name", h.Maintenance.RunSweep)
		maintenance.GET("/cron", h.Maintenance.GetCronStatus)
	}
}
