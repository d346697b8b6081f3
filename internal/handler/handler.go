// Package handler holds helpers shared by the HTTP handlers.
package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/middleware"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
	"github.com/jwalitptl/agenda-api/pkg/httputil"
)

// Session returns the caller's session. When there is none it answers 401
// and returns false.
func Session(c *gin.Context) (session.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(session.ErrNoSession))
		return session.Session{}, false
	}
	return sess, true
}

// ParamID parses the named path parameter as a UUID. On failure it answers
// 400 and returns false.
func ParamID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+resource+" ID", err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the request body into req. On failure it answers 400
// and returns false.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return false
	}
	return true
}

// Confirmed reports whether the request carries confirm=true.
func Confirmed(c *gin.Context) bool {
	ok, err := strconv.ParseBool(c.Query("confirm"))
	return err == nil && ok
}

// OptionalQueryID parses an optional UUID query parameter.
func OptionalQueryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, errors.New(raw)))
		return nil, false
	}
	return &id, true
}
