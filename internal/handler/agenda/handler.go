package agenda

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/agenda-api/internal/booking"
	"github.com/jwalitptl/agenda-api/internal/handler"
	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/pkg/httputil"
)

type Handler struct {
	coordinator *booking.Coordinator
}

func NewHandler(coordinator *booking.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agenda", h.GetAgenda)
}

// GetAgenda returns the day view for ?date=YYYY-MM-DD, today by default.
func (h *Handler) GetAgenda(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}

	date := c.DefaultQuery("date", time.Now().Format(model.DateLayout))
	view, err := h.coordinator.Agenda(c.Request.Context(), sess, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, view)
}
