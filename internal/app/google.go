package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"calendar-console/internal/booking"
	"calendar-console/internal/gcal"
	"calendar-console/internal/syncer"
)

func (a *App) googleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gcal.ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
	case errors.Is(err, gcal.ErrNotAuthorized):
		c.AbortWithStatusJSON(http.StatusPreconditionFailed, gin.H{"error": "Google Calendar not authorized"})
	case errors.Is(err, gcal.ErrState):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
	default:
		a.Logger.Error().Err(err).Msg("google calendar")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// GET /api/calendar/google/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	url, state, err := a.Google.AuthURL(c.Request.Context())
	if err != nil {
		a.googleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": url, "state": state})
}

// GET /oauth2callback
func (a *App) GoogleCallbackHandler(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	if err := a.Google.Complete(c.Request.Context(), code, c.Query("state")); err != nil {
		a.googleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Authorization successful"})
}

// POST /api/calendar/google/export?date=YYYY-MM-DD&employee=ID
func (a *App) GoogleExportHandler(c *gin.Context) {
	employee := c.Query("employee")
	if employee == "" {
		badRequest(c, "employee required")
		return
	}
	day := a.Console.SelectedDate()
	if raw := c.Query("date"); raw != "" {
		d, err := booking.ParseDay(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		day = d
	}

	var bookings []booking.Booking
	a.Calendar.Read(func(v syncer.View) {
		bookings = v.Store.ForDate(day)
	})
	res, err := a.Google.Export(c.Request.Context(), a.GoogleCalendarID, day, employee, bookings)
	if err != nil {
		a.googleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
