package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/agenda-api/internal/booking"
	"github.com/jwalitptl/agenda-api/internal/middleware"
	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/service/appointment"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// memoryGateway stores appointments in memory. linkErr makes every link
// write fail.
type memoryGateway struct {
	appointments map[uuid.UUID]*model.Appointment
	links        []model.AppointmentService
	linkErr      error
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (g *memoryGateway) InsertAppointment(_ context.Context, sess session.Session, apt *model.Appointment) (*model.Appointment, error) {
	stored := *apt
	stored.ID = uuid.New()
	stored.UserID = sess.UserID
	g.appointments[stored.ID] = &stored
	return &stored, nil
}

func (g *memoryGateway) InsertAppointmentServices(_ context.Context, _ session.Session, links []model.AppointmentService) error {
	if g.linkErr != nil {
		return g.linkErr
	}
	g.links = append(g.links, links...)
	return nil
}

func (g *memoryGateway) UpsertAppointmentServices(_ context.Context, _ session.Session, links []model.AppointmentService) error {
	for _, l := range links {
		exists := false
		for _, have := range g.links {
			if have.AppointmentID == l.AppointmentID && have.ServiceID == l.ServiceID {
				exists = true
				break
			}
		}
		if !exists {
			g.links = append(g.links, l)
		}
	}
	return nil
}

func (g *memoryGateway) GetAppointment(_ context.Context, _ session.Session, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := g.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return apt, nil
}

func (g *memoryGateway) UpdateAppointment(_ context.Context, _ session.Session, id uuid.UUID, patch model.AppointmentPatch) (*model.Appointment, error) {
	apt, ok := g.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Status != nil {
		apt.Status = *patch.Status
	}
	return apt, nil
}

// GetClient knows every client of the session's user.
func (g *memoryGateway) GetClient(_ context.Context, _ session.Session, id uuid.UUID) (*model.Client, error) {
	return &model.Client{Base: model.Base{ID: id}, Name: "Ana"}, nil
}

type staticCatalog struct {
	services []*model.Service
	err      error
}

func (s staticCatalog) ListServices(context.Context, session.Session) ([]*model.Service, error) {
	return s.services, s.err
}

var testSession = session.Session{UserID: uuid.New(), AccessToken: "token"}

func setupRouter(gateway *memoryGateway, catalog Catalog, sess *session.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if sess != nil {
			c.Set(middleware.ContextSession, *sess)
		}
		c.Next()
	})

	coordinator := booking.NewCoordinator(gateway, gateway, nil, nil, nil, nil)
	h := NewHandler(coordinator, appointment.NewService(gateway, nil, nil), catalog)
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func post(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func catalogOf(prices ...string) (staticCatalog, []string) {
	var cat staticCatalog
	var ids []string
	for _, p := range prices {
		s := &model.Service{Base: model.Base{ID: uuid.New()}, Name: "svc", Duration: 30, Price: decimal.RequireFromString(p)}
		cat.services = append(cat.services, s)
		ids = append(ids, s.ID.String())
	}
	return cat, ids
}

func TestCreateAppointment_Created(t *testing.T) {
	gateway := newMemoryGateway()
	cat, ids := catalogOf("20.00", "10.30")
	r := setupRouter(gateway, cat, &testSession)

	w := post(r, "/api/v1/appointments", map[string]interface{}{
		"client_id":   uuid.NewString(),
		"service_ids": ids,
		"date":        "2024-05-01",
		"time":        "09:30",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, "success", env.Status)

	var result booking.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Appointment.Price.Equal(decimal.RequireFromString("30.30")))
	assert.Equal(t, 2, result.LinksWritten)
	assert.Len(t, gateway.links, 2)
}

func TestCreateAppointment_Partial(t *testing.T) {
	gateway := newMemoryGateway()
	gateway.linkErr = errors.New("link table unavailable")
	cat, ids := catalogOf("15")
	r := setupRouter(gateway, cat, &testSession)

	w := post(r, "/api/v1/appointments", map[string]interface{}{
		"client_id":   uuid.NewString(),
		"service_ids": ids,
		"date":        "2024-05-01",
		"time":        "10:00",
	})

	require.Equal(t, http.StatusMultiStatus, w.Code)
	env := decode(t, w)
	assert.Equal(t, "partial", env.Status)
	assert.NotContains(t, env.Message, "link table unavailable")

	var apt model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &apt))
	require.Contains(t, gateway.appointments, apt.ID)

	gateway.linkErr = nil
	w = post(r, "/api/v1/appointments/"+apt.ID.String()+"/services", map[string]interface{}{"service_ids": ids})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gateway.links, 1)

	w = post(r, "/api/v1/appointments/"+apt.ID.String()+"/services", map[string]interface{}{"service_ids": ids})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gateway.links, 1)
}

func TestCreateAppointment_ValidationError(t *testing.T) {
	gateway := newMemoryGateway()
	r := setupRouter(gateway, staticCatalog{}, &testSession)

	w := post(r, "/api/v1/appointments", map[string]interface{}{
		"client_id":   uuid.NewString(),
		"service_ids": []string{},
		"date":        "2024-05-01",
		"time":        "10:00",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "service_ids")
	assert.Empty(t, gateway.appointments)
}

func TestCreateAppointment_CatalogUnavailable(t *testing.T) {
	gateway := newMemoryGateway()
	r := setupRouter(gateway, staticCatalog{err: errors.New("timeout")}, &testSession)

	w := post(r, "/api/v1/appointments", map[string]interface{}{
		"client_id":   uuid.NewString(),
		"service_ids": []string{uuid.NewString()},
		"date":        "2024-05-01",
		"time":        "10:00",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, gateway.appointments)
}

func TestCreateAppointment_RequiresSession(t *testing.T) {
	r := setupRouter(newMemoryGateway(), staticCatalog{}, nil)

	w := post(r, "/api/v1/appointments", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	gateway := newMemoryGateway()
	id := uuid.New()
	gateway.appointments[id] = &model.Appointment{Base: model.Base{ID: id}, Status: model.AppointmentStatusCancelled}
	r := setupRouter(gateway, staticCatalog{}, &testSession)

	body, _ := json.Marshal(map[string]string{"status": "completed"})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/appointments/"+id.String()+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
