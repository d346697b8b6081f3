package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InsertAppointment(ctx context.Context, sess session.Session, apt *model.Appointment) (*model.Appointment, error) {
	args := m.Called(ctx, sess, apt)
	if fn, ok := args.Get(0).(func(context.Context, session.Session, *model.Appointment) *model.Appointment); ok {
		return fn(ctx, sess, apt), args.Error(1)
	}
	if v := args.Get(0); v != nil {
		return v.(*model.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) InsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error {
	return m.Called(ctx, sess, links).Error(0)
}

func (m *mockGateway) UpsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error {
	return m.Called(ctx, sess, links).Error(0)
}

func (m *mockGateway) GetAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, sess, id)
	if v := args.Get(0); v != nil {
		return v.(*model.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) UpdateAppointment(ctx context.Context, sess session.Session, id uuid.UUID, patch model.AppointmentPatch) (*model.Appointment, error) {
	args := m.Called(ctx, sess, id, patch)
	if v := args.Get(0); v != nil {
		return v.(*model.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

// atomicGateway also writes bookings in one transaction.
type atomicGateway struct {
	mockGateway
}

func (m *atomicGateway) InsertBooking(ctx context.Context, sess session.Session, apt *model.Appointment, serviceIDs []uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, sess, apt, serviceIDs)
	if fn, ok := args.Get(0).(func(context.Context, session.Session, *model.Appointment, []uuid.UUID) *model.Appointment); ok {
		return fn(ctx, sess, apt, serviceIDs), args.Error(1)
	}
	if v := args.Get(0); v != nil {
		return v.(*model.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

// ownClients finds every client except those in missing. err fails every
// lookup.
type ownClients struct {
	missing map[uuid.UUID]bool
	err     error
}

func (o ownClients) GetClient(_ context.Context, _ session.Session, id uuid.UUID) (*model.Client, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.missing[id] {
		return nil, repository.ErrNotFound
	}
	return &model.Client{Base: model.Base{ID: id}, Name: "Ana"}, nil
}

type stubAgenda struct {
	rows []json.RawMessage
	err  error
}

func (s *stubAgenda) AgendaForDay(context.Context, session.Session, string) ([]json.RawMessage, error) {
	return s.rows, s.err
}

type recordingEmitter struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEmitter) Emit(_ context.Context, _ session.Session, eventType string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

var testSession = session.Session{UserID: uuid.MustParse("8f14e45f-ceea-467f-a8f0-5e1f5a1c2b3d")}

func service(name, price string) *model.Service {
	return &model.Service{
		Base:     model.Base{ID: uuid.New()},
		Name:     name,
		Duration: 30,
		Price:    decimal.RequireFromString(price),
	}
}

func validRequest(services ...*model.Service) Request {
	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID.String()
	}
	return Request{
		ClientID:   uuid.NewString(),
		ServiceIDs: ids,
		Date:       "2024-05-01",
		Time:       "09:30",
	}
}

func stored(apt *model.Appointment) *model.Appointment {
	out := *apt
	out.ID = uuid.New()
	out.UserID = testSession.UserID
	return &out
}

func TestCreateAppointment_SumsServicePrices(t *testing.T) {
	haircut := service("Haircut", "20.00")
	beard := service("Beard", "10.10")
	extra := service("Extra", "0.20")

	gw := new(mockGateway)
	gw.On("InsertAppointment", mock.Anything, testSession, mock.MatchedBy(func(apt *model.Appointment) bool {
		return apt.Price.Equal(decimal.RequireFromString("30.30")) &&
			apt.Status == model.AppointmentStatusScheduled
	})).Return(func(_ context.Context, _ session.Session, apt *model.Appointment) *model.Appointment {
		return stored(apt)
	}, nil)
	gw.On("InsertAppointmentServices", mock.Anything, testSession, mock.MatchedBy(func(links []model.AppointmentService) bool {
		return len(links) == 3 && links[0].ServiceID == haircut.ID && links[2].ServiceID == extra.ID
	})).Return(nil)

	events := &recordingEmitter{}
	c := NewCoordinator(gw, ownClients{}, nil, events, nil, nil)

	res, err := c.CreateAppointment(context.Background(), testSession,
		validRequest(haircut, beard, extra), []*model.Service{haircut, beard, extra})
	require.NoError(t, err)
	assert.Equal(t, 3, res.LinksWritten)
	assert.NotEqual(t, uuid.Nil, res.Appointment.ID)
	assert.Equal(t, "30.3", res.Appointment.Price.String())
	assert.Equal(t, []string{model.EventAppointmentBooked}, events.types)
	gw.AssertExpectations(t)
}

func TestCreateAppointment_ValidationPerformsNoWrites(t *testing.T) {
	haircut := service("Haircut", "20")

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"no services", func(r *Request) { r.ServiceIDs = nil }, "service_ids"},
		{"empty services", func(r *Request) { r.ServiceIDs = []string{} }, "service_ids"},
		{"bad service id", func(r *Request) { r.ServiceIDs = []string{"haircut"} }, "service_ids"},
		{"missing client", func(r *Request) { r.ClientID = " " }, "client_id"},
		{"bad client id", func(r *Request) { r.ClientID = "42" }, "client_id"},
		{"missing date", func(r *Request) { r.Date = "" }, "date"},
		{"bad date", func(r *Request) { r.Date = "01/05/2024" }, "date"},
		{"missing time", func(r *Request) { r.Time = "" }, "time"},
		{"bad time", func(r *Request) { r.Time = "25:00" }, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(mockGateway)
			c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)

			req := validRequest(haircut)
			tt.mutate(&req)

			_, err := c.CreateAppointment(context.Background(), testSession, req, []*model.Service{haircut})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, http.StatusBadRequest, verr.StatusCode())

			gw.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything, mock.Anything)
			gw.AssertNotCalled(t, "InsertAppointmentServices", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateAppointment_ClientOutsideDirectoryIsRejected(t *testing.T) {
	haircut := service("Haircut", "20")
	req := validRequest(haircut)
	foreign := uuid.MustParse(req.ClientID)

	gw := new(atomicGateway)
	c := NewCoordinator(gw, ownClients{missing: map[uuid.UUID]bool{foreign: true}}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), testSession, req, []*model.Service{haircut})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "client_id", verr.Field)
	gw.AssertNotCalled(t, "InsertBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointment_ClientLookupFailureIsPersistenceError(t *testing.T) {
	haircut := service("Haircut", "20")

	gw := new(mockGateway)
	c := NewCoordinator(gw, ownClients{err: errors.New("timeout")}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), testSession, validRequest(haircut), []*model.Service{haircut})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "client", perr.Entity)
	gw.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointment_PrimaryFailureWritesNoLinks(t *testing.T) {
	haircut := service("Haircut", "20")

	gw := new(mockGateway)
	gw.On("InsertAppointment", mock.Anything, testSession, mock.Anything).
		Return(nil, errors.New("connection reset"))

	c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), testSession, validRequest(haircut), []*model.Service{haircut})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "appointment", perr.Entity)
	assert.NotContains(t, perr.PublicMessage(), "connection reset")
	gw.AssertNotCalled(t, "InsertAppointmentServices", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointment_LinkFailureIsPartial(t *testing.T) {
	haircut := service("Haircut", "20")
	linkErr := errors.New("insert or update violates foreign key")

	var persisted *model.Appointment
	gw := new(mockGateway)
	gw.On("InsertAppointment", mock.Anything, testSession, mock.Anything).
		Return(func(_ context.Context, _ session.Session, apt *model.Appointment) *model.Appointment {
			persisted = stored(apt)
			return persisted
		}, nil)
	gw.On("InsertAppointmentServices", mock.Anything, testSession, mock.Anything).Return(linkErr)

	events := &recordingEmitter{}
	c := NewCoordinator(gw, ownClients{}, nil, events, nil, nil)
	res, err := c.CreateAppointment(context.Background(), testSession, validRequest(haircut), []*model.Service{haircut})
	assert.Nil(t, res)

	var partial *PartialBookingError
	require.ErrorAs(t, err, &partial)
	assert.Same(t, persisted, partial.Appointment)
	assert.ErrorIs(t, err, linkErr)
	assert.False(t, errors.As(err, new(*PersistenceError)))
	assert.Equal(t, []string{model.EventAppointmentPartial}, events.types)
	gw.AssertNumberOfCalls(t, "InsertAppointmentServices", 1)
}

func TestCreateAppointment_UnknownServicesPriceAtZero(t *testing.T) {
	haircut := service("Haircut", "20")
	removed := service("Removed", "99")

	gw := new(mockGateway)
	gw.On("InsertAppointment", mock.Anything, testSession, mock.MatchedBy(func(apt *model.Appointment) bool {
		return apt.Price.Equal(decimal.RequireFromString("20"))
	})).Return(func(_ context.Context, _ session.Session, apt *model.Appointment) *model.Appointment {
		return stored(apt)
	}, nil)
	gw.On("InsertAppointmentServices", mock.Anything, testSession, mock.MatchedBy(func(links []model.AppointmentService) bool {
		return len(links) == 2
	})).Return(nil)

	c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
	res, err := c.CreateAppointment(context.Background(), testSession,
		validRequest(haircut, removed), []*model.Service{haircut})
	require.NoError(t, err)
	assert.Equal(t, 2, res.LinksWritten)
	gw.AssertExpectations(t)
}

func TestCreateAppointment_DuplicateServicesAreLinkedOnce(t *testing.T) {
	haircut := service("Haircut", "20")

	gw := new(mockGateway)
	gw.On("InsertAppointment", mock.Anything, testSession, mock.MatchedBy(func(apt *model.Appointment) bool {
		return apt.Price.Equal(decimal.RequireFromString("20"))
	})).Return(func(_ context.Context, _ session.Session, apt *model.Appointment) *model.Appointment {
		return stored(apt)
	}, nil)
	gw.On("InsertAppointmentServices", mock.Anything, testSession, mock.MatchedBy(func(links []model.AppointmentService) bool {
		return len(links) == 1
	})).Return(nil)

	req := validRequest(haircut)
	req.ServiceIDs = append(req.ServiceIDs, haircut.ID.String())

	c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), testSession, req, []*model.Service{haircut})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestCreateAppointment_AtomicGatewayUsesSingleWrite(t *testing.T) {
	haircut := service("Haircut", "20")
	beard := service("Beard", "10")

	gw := new(atomicGateway)
	gw.On("InsertBooking", mock.Anything, testSession, mock.Anything, []uuid.UUID{haircut.ID, beard.ID}).
		Return(func(_ context.Context, _ session.Session, apt *model.Appointment, _ []uuid.UUID) *model.Appointment {
			return stored(apt)
		}, nil)

	c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
	res, err := c.CreateAppointment(context.Background(), testSession,
		validRequest(haircut, beard), []*model.Service{haircut, beard})
	require.NoError(t, err)
	assert.Equal(t, 2, res.LinksWritten)
	assert.True(t, res.Appointment.Price.Equal(decimal.RequireFromString("30")))
	gw.AssertNotCalled(t, "InsertAppointment", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "InsertAppointmentServices", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointment_AtomicFailureIsPersistenceError(t *testing.T) {
	haircut := service("Haircut", "20")

	gw := new(atomicGateway)
	gw.On("InsertBooking", mock.Anything, testSession, mock.Anything, mock.Anything).
		Return(nil, errors.New("tx aborted"))

	c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), testSession, validRequest(haircut), []*model.Service{haircut})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.False(t, errors.As(err, new(*PartialBookingError)))
}

func TestCreateAppointment_RequiresSession(t *testing.T) {
	c := NewCoordinator(new(mockGateway), ownClients{}, nil, nil, nil, nil)
	_, err := c.CreateAppointment(context.Background(), session.Session{}, Request{}, nil)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode())
}

func TestRetryLinks(t *testing.T) {
	apt := &model.Appointment{Base: model.Base{ID: uuid.New()}}
	svc := uuid.New()

	t.Run("upserts links for existing appointment", func(t *testing.T) {
		gw := new(mockGateway)
		gw.On("GetAppointment", mock.Anything, testSession, apt.ID).Return(apt, nil)
		gw.On("UpsertAppointmentServices", mock.Anything, testSession, []model.AppointmentService{
			{AppointmentID: apt.ID, ServiceID: svc},
		}).Return(nil).Twice()

		c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
		for i := 0; i < 2; i++ {
			res, err := c.RetryLinks(context.Background(), testSession, apt.ID, []string{svc.String()})
			require.NoError(t, err)
			assert.Equal(t, 1, res.LinksWritten)
		}
		gw.AssertExpectations(t)
	})

	t.Run("missing appointment", func(t *testing.T) {
		gw := new(mockGateway)
		gw.On("GetAppointment", mock.Anything, testSession, apt.ID).
			Return(nil, repository.ErrNotFound)

		c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
		_, err := c.RetryLinks(context.Background(), testSession, apt.ID, []string{svc.String()})

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, http.StatusNotFound, nf.StatusCode())
	})

	t.Run("no services", func(t *testing.T) {
		gw := new(mockGateway)
		c := NewCoordinator(gw, ownClients{}, nil, nil, nil, nil)
		_, err := c.RetryLinks(context.Background(), testSession, apt.ID, nil)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		gw.AssertNotCalled(t, "GetAppointment", mock.Anything, mock.Anything, mock.Anything)
	})
}
