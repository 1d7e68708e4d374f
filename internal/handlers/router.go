package handlers

import (
	"net/http"
	"strings"

	"escrowdesk/internal/config"
	"escrowdesk/internal/middleware"
	"escrowdesk/internal/store"
	"escrowdesk/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Deals     DealService
	Listings  ListingService
	Users     UserService
	Operators OperatorService
	Roles     OperatorStore
	DealList  DealLister
	Audit     AuditStore
	Events    EventReader
	Hub       *websocket.Hub
	Limiter   *middleware.RateLimiter
	Logger    *zap.Logger
}

type Handler struct {
	cfg       config.Config
	deals     DealService
	listings  ListingService
	users     UserService
	operators OperatorService
	roles     OperatorStore
	dealList  DealLister
	audit     AuditStore
	events    EventReader
	hub       *websocket.Hub
	limiter   *middleware.RateLimiter
	logger    *zap.Logger
}

func New(cfg config.Config, deps Deps) *Handler {
	h := &Handler{
		cfg:       cfg,
		deals:     deps.Deals,
		listings:  deps.Listings,
		users:     deps.Users,
		operators: deps.Operators,
		roles:     deps.Roles,
		dealList:  deps.DealList,
		audit:     deps.Audit,
		events:    deps.Events,
		hub:       deps.Hub,
		limiter:   deps.Limiter,
		logger:    deps.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.limiter == nil {
		h.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)
	operator := func(role string) func(http.Handler) http.Handler {
		return middleware.RequireOperator(h.roles, role)
	}

	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
	})

	router.Route("/users", func(r chi.Router) {
		r.With(h.limiter.Middleware).Post("/", h.CreateUser)
		r.With(authed, operator("")).Get("/", h.ListUsers)
		r.Get("/telegram/{username}", h.GetUserByTelegram)
		r.Get("/{id}", h.GetUser)
	})

	router.Route("/listings", func(r chi.Router) {
		r.Get("/", h.ListListings)
		r.With(h.limiter.Middleware).Post("/", h.CreateListing)
		r.Get("/{id}", h.GetListing)
		r.With(authed, operator("")).Post("/{id}/close", h.CloseListing)
	})

	router.Route("/deals", func(r chi.Router) {
		r.Get("/{trade_code}", h.GetDeal)
		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.With(operator("")).Post("/", h.CreateDeal)
			r.With(operator(store.RoleViewAudit)).Get("/{trade_code}/history", h.DealHistory)
			r.With(operator("")).Post("/{trade_code}/escrow-confirmed", h.ConfirmEscrow)
			r.With(operator("")).Post("/{trade_code}/payment-confirmed", h.ConfirmPayment)
			r.With(operator(store.RoleReleaseFunds)).Post("/{trade_code}/release", h.Release)
			r.With(operator("")).Post("/{trade_code}/cancel", h.Cancel)
			r.With(operator("")).Post("/{trade_code}/dispute", h.RaiseDispute)
			r.With(operator(store.RoleResolveDisputes)).Post("/{trade_code}/resolve", h.ResolveDispute)
		})
	})
	router.Get("/ws/deals/{trade_code}", h.WSDeal)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.With(operator("")).Get("/deals", h.AdminListDeals)
		r.With(operator(store.RoleViewAudit)).Get("/audit", h.ListAuditLogs)
		r.With(operator(store.RoleViewAudit)).Get("/events", h.TailEvents)
		r.With(middleware.RequireSuper(h.roles)).Get("/operators", h.ListOperators)
		r.With(middleware.RequireSuper(h.roles)).Post("/operators", h.CreateOperator)
		r.With(middleware.RequireSuper(h.roles)).Post("/operators/roles", h.GrantRole)
		r.With(middleware.RequireSuper(h.roles)).Delete("/operators/roles", h.RevokeRole)
		r.With(middleware.RequireSuper(h.roles)).Post("/users/{id}/verify", h.VerifyUser)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
