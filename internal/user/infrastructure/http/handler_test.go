package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/user/application"
	"github.com/orderflow/orderflow/internal/user/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type fakeRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]domain.User)}
}

func (r *fakeRepo) Create(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) ReserveCredit(_ context.Context, _ domain.Reservation, _ func(outcome domain.ReserveOutcome) (outbox.Record, error)) (domain.ReserveOutcome, error) {
	return domain.OutcomeReserved, nil
}

func (r *fakeRepo) ReleaseCredit(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (r *fakeRepo) EnqueueEvent(_ context.Context, _ outbox.Record) error {
	return nil
}

func newTestHandler() (http.Handler, *application.Service) {
	log := slog.New(slog.DiscardHandler)
	svc := application.NewService(log, newFakeRepo())
	return NewHandler(log, svc).Routes(), svc
}

func doJSON(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateUser(t *testing.T) {
	h, _ := newTestHandler()

	rec := doJSON(h, http.MethodPost, "/users", `{"username":"alice","initialBalance":1000}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, int64(1000), resp.Balance)
}

func TestCreateUserAcceptsZeroBalance(t *testing.T) {
	h, _ := newTestHandler()
	rec := doJSON(h, http.MethodPost, "/users", `{"username":"alice","initialBalance":0}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateUserValidation(t *testing.T) {
	h, _ := newTestHandler()

	for name, body := range map[string]string{
		"malformed json":   `{`,
		"missing username": `{"initialBalance":1000}`,
		"missing balance":  `{"username":"alice"}`,
		"negative balance": `{"username":"alice","initialBalance":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(h, http.MethodPost, "/users", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetUser(t *testing.T) {
	h, svc := newTestHandler()
	u, err := svc.CreateUser(context.Background(), "alice", 1000)
	require.NoError(t, err)

	rec := doJSON(h, http.MethodGet, "/users/"+u.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, u.ID, resp.ID)
}

func TestGetUserNotFound(t *testing.T) {
	h, _ := newTestHandler()
	rec := doJSON(h, http.MethodGet, "/users/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
