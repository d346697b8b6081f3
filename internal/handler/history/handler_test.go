package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/agenda-api/internal/middleware"
	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/service/history"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// completedStore holds the ids of completed appointments.
type completedStore struct {
	mu        sync.Mutex
	completed map[uuid.UUID]bool
	deletes   int
}

func (s *completedStore) ListCompleted(context.Context, session.Session, *uuid.UUID) ([]*model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.HistoryRecord
	for id := range s.completed {
		out = append(out, &model.HistoryRecord{ID: id, Date: "2024-05-01", Time: "09:00"})
	}
	return out, nil
}

func (s *completedStore) DeleteCompleted(_ context.Context, _ session.Session, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if !s.completed[id] {
		return repository.ErrNotFound
	}
	delete(s.completed, id)
	return nil
}

var testSession = session.Session{UserID: uuid.New(), AccessToken: "token"}

func setupRouter(store *completedStore, sess *session.Session) (*gin.Engine, *history.Service) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if sess != nil {
			c.Set(middleware.ContextSession, *sess)
		}
		c.Next()
	})

	svc := history.NewService(store, nil, nil, nil, history.Config{})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string                 `json:"status"`
	Data   history.DeletionStatus `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestDelete_AcceptedWithLocation(t *testing.T) {
	id := uuid.New()
	store := &completedStore{completed: map[uuid.UUID]bool{id: true}}
	r, svc := setupRouter(store, &testSession)

	w := do(r, http.MethodDelete, "/api/v1/history/"+id.String()+"?confirm=true")

	require.Equal(t, http.StatusAccepted, w.Code)
	env := decode(t, w)
	assert.Equal(t, id, env.Data.AppointmentID)
	assert.Contains(t, []history.DeletionState{history.DeletionPending, history.DeletionConfirmed}, env.Data.State)

	location := w.Header().Get("Location")
	assert.Equal(t, "/api/v1/history/deletions/"+env.Data.ID.String(), location)

	svc.Wait()
	w = do(r, http.MethodGet, location)
	require.Equal(t, http.StatusOK, w.Code)
	env = decode(t, w)
	assert.Equal(t, history.DeletionConfirmed, env.Data.State)
	assert.Empty(t, store.completed)
}

func TestDelete_RequiresConfirm(t *testing.T) {
	id := uuid.New()
	store := &completedStore{completed: map[uuid.UUID]bool{id: true}}

	for _, path := range []string{
		"/api/v1/history/" + id.String(),
		"/api/v1/history/" + id.String() + "?confirm=false",
		"/api/v1/history/" + id.String() + "?confirm=yes",
	} {
		r, svc := setupRouter(store, &testSession)
		w := do(r, http.MethodDelete, path)
		svc.Wait()

		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Empty(t, w.Header().Get("Location"), path)
	}
	assert.Zero(t, store.deletes)
	assert.True(t, store.completed[id])
}

func TestDelete_NotCompletedResolvesFailed(t *testing.T) {
	store := &completedStore{completed: map[uuid.UUID]bool{}}
	r, svc := setupRouter(store, &testSession)

	w := do(r, http.MethodDelete, "/api/v1/history/"+uuid.NewString()+"?confirm=true")
	require.Equal(t, http.StatusAccepted, w.Code)

	svc.Wait()
	w = do(r, http.MethodGet, w.Header().Get("Location"))
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, history.DeletionFailed, env.Data.State)
	assert.Equal(t, history.ErrNotInHistory.Error(), env.Data.Error)
}

func TestDelete_InvalidID(t *testing.T) {
	r, _ := setupRouter(&completedStore{}, &testSession)

	w := do(r, http.MethodDelete, "/api/v1/history/not-a-uuid?confirm=true")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDelete_NoSession(t *testing.T) {
	store := &completedStore{}
	r, _ := setupRouter(store, nil)

	w := do(r, http.MethodDelete, "/api/v1/history/"+uuid.NewString()+"?confirm=true")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, store.deletes)
}

func TestGetDeletion_OtherUserIsNotFound(t *testing.T) {
	id := uuid.New()
	store := &completedStore{completed: map[uuid.UUID]bool{id: true}}
	r, svc := setupRouter(store, &testSession)

	w := do(r, http.MethodDelete, "/api/v1/history/"+id.String()+"?confirm=true")
	require.Equal(t, http.StatusAccepted, w.Code)
	svc.Wait()
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/api/v1/history/deletions/"))

	other := session.Session{UserID: uuid.New(), AccessToken: "other"}
	gin.SetMode(gin.TestMode)
	otherRouter := gin.New()
	otherRouter.Use(func(c *gin.Context) {
		c.Set(middleware.ContextSession, other)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(otherRouter.Group("/api/v1"))

	w = do(otherRouter, http.MethodGet, location)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
