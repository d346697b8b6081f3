package history

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/agenda-api/internal/handler"
	"github.com/jwalitptl/agenda-api/internal/service/history"
	"github.com/jwalitptl/agenda-api/pkg/httputil"
)

type Handler struct {
	service *history.Service
}

func NewHandler(service *history.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	history := r.Group("/history")
	{
		history.GET("", h.List)
		history.DELETE("/:id", h.Delete)
		history.GET("/deletions/:id", h.GetDeletion)
	}
}

func (h *Handler) List(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	clientID, ok := handler.OptionalQueryID(c, "client_id")
	if !ok {
		return
	}

	listing, err := h.service.List(c.Request.Context(), sess, clientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, listing)
}

// Delete answers 202 as soon as the entry is hidden. The store outcome is
// available from GetDeletion.
func (h *Handler) Delete(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}

	deletion, err := h.service.Delete(c.Request.Context(), sess, id, handler.Confirmed(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Header("Location", strings.TrimSuffix(c.FullPath(), "/:id")+"/deletions/"+deletion.ID.String())
	httputil.RespondWithSuccess(c, http.StatusAccepted, deletion.Status())
}

func (h *Handler) GetDeletion(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id", "deletion")
	if !ok {
		return
	}

	deletion, err := h.service.Deletion(sess, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, deletion.Status())
}
