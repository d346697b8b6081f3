package appointment

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/agenda-api/internal/booking"
	"github.com/jwalitptl/agenda-api/internal/handler"
	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/service/appointment"
	"github.com/jwalitptl/agenda-api/internal/session"
	"github.com/jwalitptl/agenda-api/pkg/httputil"
)

// Catalog supplies the service list bookings are priced against.
type Catalog interface {
	ListServices(ctx context.Context, sess session.Session) ([]*model.Service, error)
}

type Handler struct {
	coordinator *booking.Coordinator
	service     *appointment.Service
	catalog     Catalog
}

func NewHandler(coordinator *booking.Coordinator, service *appointment.Service, catalog Catalog) *Handler {
	return &Handler{
		coordinator: coordinator,
		service:     service,
		catalog:     catalog,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.POST("/:id/services", h.RetryLinks)
	}
}

// CreateAppointment answers 201 when the appointment and its services were
// stored and 207 when only the appointment was.
func (h *Handler) CreateAppointment(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	services, err := h.catalog.ListServices(c.Request.Context(), sess)
	if err != nil {
		httputil.RespondWithError(c, &booking.PersistenceError{Entity: "appointment", Err: err})
		return
	}

	result, err := h.coordinator.CreateAppointment(c.Request.Context(), sess, booking.Request{
		ClientID:   req.ClientID,
		ServiceIDs: req.ServiceIDs,
		Date:       req.Date,
		Time:       req.Time,
		Notes:      req.Notes,
	}, services)
	if err != nil {
		var partial *booking.PartialBookingError
		if errors.As(err, &partial) {
			_ = c.Error(err)
			c.JSON(partial.StatusCode(), &httputil.Response{
				Status:  "partial",
				Message: partial.PublicMessage(),
				Data:    partial.Appointment,
			})
			return
		}
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, result)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), sess, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.UpdateStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.UpdateStatus(c.Request.Context(), sess, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

// RetryLinks writes the services of an appointment saved without them.
func (h *Handler) RetryLinks(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.RetryLinksRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.coordinator.RetryLinks(c.Request.Context(), sess, id, req.ServiceIDs)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}
