package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/user/application"
	"github.com/orderflow/orderflow/internal/user/domain"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		tracer:   otel.Tracer("user-http"),
	}
}

type createUserReq struct {
	Username       string `json:"username" validate:"required"`
	InitialBalance *int64 `json:"initialBalance" validate:"required,gte=0"`
}

type userResp struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResp(u domain.User) userResp {
	return userResp{
		ID:        u.ID,
		Username:  u.Username,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/users", h.createUser)
	r.Get("/users/{id}", h.getUser)
	return r
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateUser")
	defer span.End()

	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.service.CreateUser(ctx, req.Username, *req.InitialBalance)
	if err != nil {
		if errors.Is(err, domain.ErrNegativeBalance) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("create user failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toResp(u))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetUser")
	defer span.End()

	u, err := h.service.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("get user failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResp(u))
}
