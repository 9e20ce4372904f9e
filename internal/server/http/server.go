// Package httpserver exposes the course library HTTP API.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/catalog"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/remote"
	"github.com/and161185/course-keeper/internal/service"
)

// Deps are the services behind the API.
type Deps struct {
	Auth       service.AuthService
	Purchases  service.PurchaseService
	Referrals  service.ReferralService
	Watcher    service.ReferralWatcher
	Carts      service.CartService
	Engagement service.EngagementService
	Activity   *service.ActivityLog
	Roster     *service.Roster
	Catalog    *catalog.Catalog
	Guard      *remote.Guard

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *zap.Logger

	CORSOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy  bool
}

// Server wires services into HTTP handlers.
type Server struct {
	Deps
}

// New constructs a Server. A nil logger is replaced with a no-op logger.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{Deps: d}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(Recover(s.Log))
	r.Use(Logging(s.Log))
	r.Use(Instrument(s.Metrics))
	if len(s.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", VisitorHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.health)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/catalog", s.listCourses)
		api.Get("/catalog/categories", s.listCategories)
		api.Get("/catalog/{id}", s.getCourse)

		api.Route("/auth", func(a chi.Router) {
			a.Post("/signup", s.signUp)
			a.Post("/signin", s.signIn)
			a.With(WithAuth(s.Auth, service.RoleUser)).Post("/signout", s.signOut)
			a.Get("/username/{name}", s.usernameAvailability)
			a.Post("/password-strength", s.passwordStrength)
			a.Post("/referral", s.rememberReferral)
		})

		api.With(OptionalAuth(s.Auth)).Post("/activity", s.trackActivity)
		api.Post("/cart/stash", s.stashCart)
		api.Get("/referrals/{courseId}/stream", s.referralStream)

		api.Route("/me", func(me chi.Router) {
			me.Use(WithAuth(s.Auth, service.RoleUser))
			me.Get("/library", s.library)
			me.Post("/courses/{id}/access", s.accessCourse)
			me.Get("/cart", s.cartItems)
			me.Post("/cart", s.cartAdd)
			me.Delete("/cart", s.cartClear)
			me.Delete("/cart/{courseId}", s.cartRemove)
			me.Get("/pending", s.resumePending)
			me.Post("/quote", s.quote)
			me.Post("/checkout", s.checkout)
			me.Get("/engagement", s.engagementVisit)
			me.Post("/engagement/tasks/{id}", s.completeTask)
			me.Get("/referrals/{courseId}", s.referralState)
		})

		api.Post("/admin/login", s.adminLogin)
		api.Route("/admin", func(ad chi.Router) {
			ad.Use(WithAuth(s.Auth, service.RoleAdmin))
			ad.Get("/purchases", s.adminPurchases)
			ad.Post("/purchases/{id}/approve", s.adminApprove)
			ad.Post("/purchases/{id}/reject", s.adminReject)
			ad.Get("/users", s.adminUsers)
			ad.Get("/activity", s.adminActivity)
			ad.Get("/stats", s.adminStats)
		})
	})
	return r
}

type healthResponse struct {
	Status string    `json:"status"`
	Remote string    `json:"remote"`
	Time   time.Time `json:"time"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	remoteState := "disabled"
	if s.Guard.Configured() {
		remoteState = s.Guard.State().String()
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Remote: remoteState, Time: time.Now().UTC()})
}
