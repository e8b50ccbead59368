package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"calendar-console/internal/booking"
	"calendar-console/internal/console"
	"calendar-console/internal/gcal"
	"calendar-console/internal/kv"
	"calendar-console/internal/syncer"
)

type Catalog interface {
	ListEmployees(ctx context.Context) ([]booking.Employee, error)
	ListServices(ctx context.Context) ([]booking.Service, error)
}

// App carries the dependencies shared by the console handlers.
type App struct {
	// Calendar feeds the grid and the notification feed; Bell only the
	// navigation bell.
	Calendar *syncer.Synchronizer
	Bell     *syncer.Synchronizer
	Console  *console.Controller
	Catalog  Catalog
	KV       kv.Store
	Google   *gcal.Exporter
	// GoogleCalendarID is the target calendar for exports.
	GoogleCalendarID string
	// Roles a stored session may carry; defaults to owner, admin, receptionist.
	Roles  []string
	Logger zerolog.Logger
	Now    func() time.Time

	rosterMu  sync.Mutex
	roster    []booking.Employee
	rosterAt  time.Time
	rosterTTL time.Duration
}

const defaultRosterTTL = 5 * time.Minute

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// employees returns the barber roster, refetched at most every few minutes.
// A stale roster is served when the refetch fails.
func (a *App) employees(ctx context.Context) ([]booking.Employee, error) {
	a.rosterMu.Lock()
	defer a.rosterMu.Unlock()
	ttl := a.rosterTTL
	if ttl == 0 {
		ttl = defaultRosterTTL
	}
	if a.roster != nil && a.now().Sub(a.rosterAt) < ttl {
		return a.roster, nil
	}
	list, err := a.Catalog.ListEmployees(ctx)
	if err != nil {
		if a.roster != nil {
			a.Logger.Warn().Err(err).Msg("roster refresh failed, serving cached roster")
			return a.roster, nil
		}
		return nil, err
	}
	if list == nil {
		list = []booking.Employee{}
	}
	a.roster, a.rosterAt = list, a.now()
	return list, nil
}

// Routes registers the console API on router.
func (a *App) Routes(router *gin.Engine, auth AuthConfig) {
	router.Use(RequestID(), AccessLog(a.Logger))

	router.GET("/healthz", a.HealthHandler)
	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleCallbackHandler)

	api := router.Group("/api", AuthMiddleware(auth))
	{
		api.GET("/session", a.GetSessionHandler)
		api.PUT("/session", a.PutSessionHandler)
		api.DELETE("/session", a.DeleteSessionHandler)

		cal := api.Group("/calendar")
		{
			cal.GET("", a.CalendarHandler)
			cal.GET("/month", a.MonthHandler)
			cal.POST("/:nav", a.NavigateHandler)
			cal.GET("/google/auth", a.GoogleAuthHandler)
			cal.POST("/google/export", a.GoogleExportHandler)
		}
		api.GET("/locations", a.LocationsHandler)
		api.GET("/employees", a.EmployeesHandler)
		api.GET("/services", a.ServicesHandler)

		notes := api.Group("/notifications")
		{
			notes.GET("", a.FeedHandler)
			notes.GET("/bell", a.BellHandler)
			notes.POST("/open", a.OpenNotificationHandler)
		}

		api.POST("/pane/:state", a.PaneHandler)

		bookings := api.Group("/bookings")
		{
			bookings.POST("/:id/open", a.OpenBookingHandler)
			bookings.PUT("/:id", a.EditBookingHandler)
			bookings.PATCH("/:id", a.SetStatusHandler)
			bookings.POST("/:id/comments", a.AddCommentHandler)
			bookings.POST("/:id/repeat", a.RepeatHandler)
			bookings.POST("/:id/charge", a.ChargeHandler)
			bookings.GET("/:id/customer", a.BookingCustomerHandler)
		}
		api.POST("/appointments", a.CreateAppointmentHandler)

		customers := api.Group("/customers")
		{
			customers.GET("/by-email/:email", a.CustomerByEmailHandler)
			customers.GET("/:id", a.CustomerHandler)
			customers.PUT("/:id", a.EditCustomerHandler)
		}
	}
}

func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"calendarReady": a.Calendar.Primed(),
		"bellReady":     a.Bell.Primed(),
	})
}
