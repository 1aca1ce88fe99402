package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"

	_ "github.com/aussiebroadwan/trackr/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	limits       httpx.RateLimits
	logger       *slog.Logger

	store                store.Store
	AuthService          *service.AuthenticationService
	AuthorizationService *service.AuthorizationService
	AccountService       *service.AccountService
	RolesService         *service.RolesService
}

func NewRouter(buildVersion string, st store.Store, limits httpx.RateLimits, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		limits:       limits,
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every route. The services must be set first.
func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerRoles()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpx.Chain(httpSwagger.Handler(),
		httpx.RateLimitByIP(r.limits.Public),
	))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Trackr Access Control API
//	@version		0.1.0
//	@description	Account registration, email verification, password recovery, sessions and role-based access control.
//	@description
//	@description				Session tokens are HS256 JWTs. Changing a password ends every session issued before the change.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/trackr
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// secured authenticates the bearer token, applies policy and rate limits
// per account.
func (r *Router) secured(h http.HandlerFunc, policy httpx.Policy, limit httpx.RateLimitConfig) http.Handler {
	mws := []httpx.Middleware{
		httpx.AuthnMiddleware(sessionAuthenticator{auth: r.AuthService}),
		httpx.RateLimitByPrincipal(limit),
	}
	if policy != nil {
		mws = append(mws, httpx.Guard(policy))
	}
	return httpx.Chain(h, mws...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.AuthService, Accounts: r.AccountService}

	r.Mux.Handle("POST /api/v1/auth/register/open",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	// Limited by IP + username so one address cannot spray a single account
	// while other users behind the same NAT can still log in.
	r.Mux.Handle("POST /api/v1/auth/login/access-token",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, "username"),
		),
	)

	r.Mux.Handle("POST /api/v1/auth/verify-account",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/verify-account/resend/{username}",
		httpx.Chain(http.HandlerFunc(h.HandleResendVerification),
			httpx.RateLimitByIPAndPathValue(r.limits.Strict, "username"),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/password-recovery/{username}",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordRecovery),
			httpx.RateLimitByIPAndPathValue(r.limits.Strict, "username"),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Accounts: r.AccountService}
	authz := r.AuthorizationService

	r.Mux.Handle("GET /api/v1/users",
		r.secured(h.HandleList, requirePermission(authz, domain.PermReadUser), r.limits.Lenient))
	r.Mux.Handle("POST /api/v1/users",
		r.secured(h.HandleCreate, requirePermission(authz, domain.PermCreateUser), r.limits.Moderate))

	// Self-service; the principal is the only subject.
	r.Mux.Handle("GET /api/v1/users/me",
		r.secured(h.HandleMe, nil, r.limits.Lenient))
	r.Mux.Handle("PUT /api/v1/users/me",
		r.secured(h.HandleUpdateMe, nil, r.limits.Moderate))
	r.Mux.Handle("PATCH /api/v1/users/me/change-password",
		r.secured(h.HandleChangePassword, nil, r.limits.Strict))

	r.Mux.Handle("GET /api/v1/users/{uuid}",
		r.secured(h.HandleGet, ownerOrPermission(authz, domain.PermReadUser), r.limits.Lenient))
	r.Mux.Handle("PUT /api/v1/users/{uuid}",
		r.secured(h.HandleUpdate, requirePermission(authz, domain.PermUpdateUser), r.limits.Moderate))
	r.Mux.Handle("PATCH /api/v1/users/{uuid}",
		r.secured(h.HandleUpdateStatus, requirePermission(authz, domain.PermUpdateUser), r.limits.Moderate))
	r.Mux.Handle("DELETE /api/v1/users/{uuid}",
		r.secured(h.HandleDelete, requirePermission(authz, domain.PermDeleteUser), r.limits.Moderate))
	r.Mux.Handle("DELETE /api/v1/users/{uuid}/permanent",
		r.secured(h.HandlePurge, requirePermission(authz, domain.PermDeleteUser), r.limits.Moderate))
	r.Mux.Handle("POST /api/v1/users/{uuid}/unlock",
		r.secured(h.HandleUnlock, requirePermission(authz, domain.PermUpdateUser), r.limits.Moderate))
	r.Mux.Handle("GET /api/v1/users/{uuid}/roles",
		r.secured(h.HandleRoles, ownerOrPermission(authz, domain.PermReadUser), r.limits.Lenient))
	r.Mux.Handle("PATCH /api/v1/users/{uuid}/roles",
		r.secured(h.HandleChangeRoles, requirePermission(authz, domain.PermUpdateRole), r.limits.Moderate))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{Roles: r.RolesService}
	authz := r.AuthorizationService

	r.Mux.Handle("GET /api/v1/roles",
		r.secured(h.HandleList, requirePermission(authz, domain.PermReadRole), r.limits.Lenient))
	r.Mux.Handle("GET /api/v1/roles/{id}",
		r.secured(h.HandleGet, requirePermission(authz, domain.PermReadRole), r.limits.Lenient))
	r.Mux.Handle("POST /api/v1/roles",
		r.secured(h.HandleCreate, requirePermission(authz, domain.PermCreateRole), r.limits.Moderate))
	r.Mux.Handle("PUT /api/v1/roles/{id}",
		r.secured(h.HandleUpdate, requirePermission(authz, domain.PermUpdateRole), r.limits.Moderate))
	r.Mux.Handle("DELETE /api/v1/roles/{id}",
		r.secured(h.HandleDelete, requirePermission(authz, domain.PermDeleteRole), r.limits.Moderate))
	r.Mux.Handle("GET /api/v1/permissions",
		r.secured(h.HandleListPermissions, requirePermission(authz, domain.PermReadRole), r.limits.Lenient))
}

func (r *Router) registerSystem() {
	// Monitoring polls these frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
}
