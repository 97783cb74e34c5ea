package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

const requestBodyMaxSize = 64 << 10

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, catalog EventCatalog, rsvps Reservations, waitlist Waitlist, auth Authenticator, logger *log.Logger) {
	e.GET("/api/events", listEvents(catalog, auth))
	e.POST("/api/events", createEvent(catalog, auth))
	e.GET("/api/events/past", listPastEvents(catalog, auth))
	e.GET("/api/events/:id", getEvent(catalog, auth))
	e.PUT("/api/events/:id", updateEvent(catalog, auth))
	e.DELETE("/api/events/:id", cancelEvent(catalog, auth))
	e.POST("/api/events/:id/rsvp", reserve(rsvps, auth, logger))
	e.DELETE("/api/events/:id/rsvp", cancelReservation(rsvps, auth))
	e.POST("/api/events/:id/waitlist", joinWaitlist(waitlist, auth))
	e.DELETE("/api/events/:id/waitlist", leaveWaitlist(waitlist, auth))
	e.GET("/healthz", healthz())
}

type eventsResponse struct {
	Events        []domain.Event `json:"events"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type pastEventsResponse struct {
	Events []domain.ArchivedEvent `json:"events"`
}

type waitlistResponse struct {
	EventID    string `json:"eventId"`
	UserID     string `json:"userId"`
	Waitlisted bool   `json:"waitlisted"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func listEvents(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		pageSize, err := parsePageSize(c.QueryParam("pageSize"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid page size")
		}

		events, next, err := catalog.ListActive(ctx, c.QueryParam("pageToken"), pageSize)
		if err != nil {
			var invalidCursor InvalidCursorError
			if errors.As(err, &invalidCursor) {
				return c.String(http.StatusBadRequest, "invalid page token")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to list events")
		}
		return c.JSON(http.StatusOK, eventsResponse{Events: events, NextPageToken: next})
	}
}

func getEvent(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ev, err := catalog.Get(ctx, c.Param("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func createEvent(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var in domain.CreateEventInput
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ev, err := catalog.Create(ctx, in, claims.UserID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, ev)
	}
}

func updateEvent(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if !claims.IsAdmin() {
			return c.String(http.StatusForbidden, "admin role required")
		}

		var upd domain.EventUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ev, err := catalog.Update(ctx, c.Param("id"), upd)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, ev)
	}
}

func cancelEvent(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if !claims.IsAdmin() {
			return c.String(http.StatusForbidden, "admin role required")
		}
		if err := catalog.Cancel(ctx, c.Param("id")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listPastEvents(catalog EventCatalog, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		pageSize, err := parsePageSize(c.QueryParam("pageSize"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid page size")
		}
		events, err := catalog.ListPast(ctx, c.QueryParam("month"), pageSize)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, pastEventsResponse{Events: events})
	}
}

func reserve(rsvps Reservations, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRSVPRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		claims, authErr := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		reserveStart := time.Now()
		ev, reserveErr := rsvps.Reserve(ctx, c.Param("id"), claims.UserID)
		metrics.ObserveReserve(time.Since(reserveStart))
		if reserveErr != nil {
			metrics.SetOutcome(outcomeLabel(reserveErr))
			if !domain.IsOutcome(reserveErr) {
				metrics.SetErrorStage("storage")
			}
			err = writeDomainError(c, reserveErr)
			return err
		}
		metrics.SetOutcome("confirmed")
		err = c.JSON(http.StatusCreated, ev)
		return err
	}
}

func cancelReservation(rsvps Reservations, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := rsvps.Cancel(ctx, c.Param("id"), claims.UserID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func joinWaitlist(waitlist Waitlist, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		entry, err := waitlist.Join(ctx, c.Param("id"), claims.UserID)
		if err != nil {
			// Joining twice is not an error worth surfacing to clients.
			if errors.Is(err, domain.ErrAlreadyWaitlisted) {
				return c.JSON(http.StatusOK, waitlistResponse{
					EventID:    c.Param("id"),
					UserID:     claims.UserID,
					Waitlisted: true,
				})
			}
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, waitlistResponse{
			EventID:    entry.EventID,
			UserID:     entry.UserID,
			Waitlisted: true,
		})
	}
}

func leaveWaitlist(waitlist Waitlist, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		claims, err := auth.ClaimsFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := waitlist.Leave(ctx, c.Param("id"), claims.UserID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// writeDomainError maps service errors onto HTTP responses. Unknown
// errors are logged and reported as 500.
func writeDomainError(c echo.Context, err error) error {
	var validation domain.ValidationError
	if errors.As(err, &validation) {
		return c.String(http.StatusBadRequest, validation.Error())
	}
	var invalidCursor InvalidCursorError
	if errors.As(err, &invalidCursor) {
		return c.String(http.StatusBadRequest, "invalid page token")
	}
	switch {
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrNoReservation),
		errors.Is(err, domain.ErrNotOnWaitlist):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEventFull),
		errors.Is(err, domain.ErrVersionConflict):
		return c.String(http.StatusConflict, err.Error())
	case domain.IsOutcome(err):
		return c.String(http.StatusBadRequest, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, "internal error")
}

// outcomeLabel turns well-known reservation outcomes into stable metric
// values.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrEventFull):
		return "full"
	case errors.Is(err, domain.ErrAlreadyReserved):
		return "already_reserved"
	case errors.Is(err, domain.ErrEventNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrEventUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parsePageSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, errors.New("invalid page size")
	}
	return size, nil
}
