package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
	"github.com/aussiebroadwan/trackr/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	rootUser     = "root@example.com"
	testPassword = "Sup3r-secret!"
)

type capturedToken struct {
	To    string
	Value string
}

type captureNotifier struct {
	mu     sync.Mutex
	verify []capturedToken
	reset  []capturedToken
}

func (n *captureNotifier) SendVerification(_ context.Context, to string, t domain.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify = append(n.verify, capturedToken{To: to, Value: t.Value})
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, to string, t domain.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset = append(n.reset, capturedToken{To: to, Value: t.Value})
	return nil
}

func (n *captureNotifier) last(t *testing.T, list *[]capturedToken) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, *list)
	return (*list)[len(*list)-1].Value
}

type server struct {
	router   *Router
	clock    *clockwork.FakeClock
	notifier *captureNotifier
}

func generousLimits() httpx.RateLimits {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}
	return httpx.RateLimits{Strict: cfg, Moderate: cfg, Lenient: cfg, Public: cfg}
}

func newServer(t *testing.T, limits httpx.RateLimits) *server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := jwtx.NewHS256Issuer([]byte(strings.Repeat("s", jwtx.MinSecretBytes)), jwtx.DefaultIssuer, jwtx.DefaultSessionTTL, clock)
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("test-pepper")
	notifier := &captureNotifier{}
	auth := &service.AuthenticationService{Store: st, Hasher: hasher, Issuer: issuer, Clock: clock}

	_, err = (&service.BootstrapService{Store: st, Hasher: hasher, Clock: clock}).Bootstrap(context.Background(), domain.BootstrapData{
		SuperuserUsername: rootUser,
		SuperuserPassword: testPassword,
	})
	require.NoError(t, err)

	r := NewRouter("test", st, limits, slog.New(slog.DiscardHandler))
	r.AuthService = auth
	r.AuthorizationService = &service.AuthorizationService{Store: st}
	r.RolesService = &service.RolesService{Store: st, Clock: clock}
	r.AccountService = &service.AccountService{
		Store:        st,
		Hasher:       hasher,
		Auth:         auth,
		Verification: service.NewVerificationTokens(st, clock, 0),
		Reset:        service.NewResetTokens(st, clock, 0),
		Notifier:     notifier,
		Clock:        clock,
	}
	r.ApplyRoutes()

	// Sessions must postdate the seeded password.
	clock.Advance(time.Second)

	return &server{router: r, clock: clock, notifier: notifier}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:5555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[authsdk.LoginResponse](t, rec).Token
}

// createUser registers and verifies an account and returns it.
func (s *server) createUser(t *testing.T, username string) authsdk.UserResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register/open", "", authsdk.RegisterRequest{
		Username: username, Password: testPassword, FirstName: "Test", LastName: "User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify-account", "", authsdk.VerifyAccountRequest{
		Token: s.notifier.last(t, &s.notifier.verify),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.clock.Advance(time.Second)
	return decodeBody[authsdk.UserResponse](t, rec)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) authsdk.ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	e := decodeBody[authsdk.ErrorResponse](t, rec)
	require.Equal(t, code, e.Error)
	return e
}

func TestRegisterVerifyLogin(t *testing.T) {
	s := newServer(t, generousLimits())

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register/open", "", authsdk.RegisterRequest{
		Username: "alice@example.com", Password: testPassword, FirstName: "Alice", LastName: "Smith",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decodeBody[authsdk.UserResponse](t, rec)
	require.False(t, user.Enabled)
	require.False(t, user.Verified)

	s.clock.Advance(time.Second)
	rec = s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: "alice@example.com", Password: testPassword})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify-account", "", authsdk.VerifyAccountRequest{
		Token: s.notifier.last(t, &s.notifier.verify),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user = decodeBody[authsdk.UserResponse](t, rec)
	require.True(t, user.Enabled)
	require.True(t, user.Verified)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: "alice@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[authsdk.LoginResponse](t, rec)
	require.Equal(t, "Bearer", login.TokenType)
	require.Equal(t, int(jwtx.DefaultSessionTTL.Seconds()), login.ExpiresIn)
	require.False(t, login.CredentialsStale)

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, user.UUID, decodeBody[authsdk.UserResponse](t, rec).UUID)
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t, generousLimits())

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register/open", "", authsdk.RegisterRequest{
		Username: "not-an-email", Password: "weak", FirstName: "A", LastName: "B",
	})
	e := requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeValidation)
	fields := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = f.Field
	}
	require.ElementsMatch(t, []string{"username", "password"}, fields)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register/open", "", authsdk.RegisterRequest{
		Username: rootUser, Password: testPassword, FirstName: "A", LastName: "B",
	})
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeAlreadyExists)
}

func TestLoginLockout(t *testing.T) {
	s := newServer(t, generousLimits())
	s.createUser(t, "bob@example.com")

	for range domain.MaxFailedLogins {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: "bob@example.com", Password: "Wr0ng-password!"})
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: "bob@example.com", Password: testPassword})
	e := requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized)
	require.Contains(t, e.ErrorDescription, "Account is locked")

	s.clock.Advance(domain.LockDuration)
	s.login(t, "bob@example.com", testPassword)
}

func TestPasswordRecovery(t *testing.T) {
	s := newServer(t, generousLimits())
	s.createUser(t, "carol@example.com")
	token := s.login(t, "carol@example.com", testPassword)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/password-recovery/nobody@example.com", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, s.notifier.reset)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password-recovery/carol@example.com", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", authsdk.ResetPasswordRequest{
		Token: "bogus", NewPassword: "N3w-password!",
	})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized)

	s.clock.Advance(time.Second)
	rec = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", authsdk.ResetPasswordRequest{
		Token: s.notifier.last(t, &s.notifier.reset), NewPassword: "N3w-password!",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	s.clock.Advance(time.Second)
	s.login(t, "carol@example.com", "N3w-password!")
}

func TestResendVerificationIsSilent(t *testing.T) {
	s := newServer(t, generousLimits())

	rec := s.do(t, http.MethodPost, "/api/v1/auth/verify-account/resend/ghost@example.com", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, s.notifier.verify)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register/open", "", authsdk.RegisterRequest{
		Username: "dave@example.com", Password: testPassword, FirstName: "Dave", LastName: "Jones",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := s.notifier.last(t, &s.notifier.verify)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify-account/resend/dave@example.com", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, s.notifier.verify, 2)
	require.Equal(t, first, s.notifier.last(t, &s.notifier.verify))
}

func TestChangePassword(t *testing.T) {
	s := newServer(t, generousLimits())
	s.createUser(t, "erin@example.com")
	token := s.login(t, "erin@example.com", testPassword)

	rec := s.do(t, http.MethodPatch, "/api/v1/users/me/change-password", token, authsdk.ChangePasswordRequest{
		OldPassword: "Wr0ng-password!", NewPassword: "N3w-password!",
	})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthorized)

	rec = s.do(t, http.MethodPatch, "/api/v1/users/me/change-password", token, authsdk.ChangePasswordRequest{
		OldPassword: testPassword, NewPassword: "N3w-password!",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOwnerOrPermission(t *testing.T) {
	s := newServer(t, generousLimits())
	frank := s.createUser(t, "frank@example.com")
	grace := s.createUser(t, "grace@example.com")
	token := s.login(t, "frank@example.com", testPassword)

	rec := s.do(t, http.MethodGet, "/api/v1/users/"+frank.UUID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/users/"+frank.UUID+"/roles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, decodeBody[authsdk.ListRolesResponse](t, rec).Roles)

	rec = s.do(t, http.MethodGet, "/api/v1/users/"+grace.UUID, token, nil)
	requireError(t, rec, http.StatusForbidden, authsdk.ErrorCodeAccessDenied)

	rec = s.do(t, http.MethodGet, "/api/v1/users", token, nil)
	requireError(t, rec, http.StatusForbidden, authsdk.ErrorCodeAccessDenied)

	admin := s.login(t, rootUser, testPassword)
	rec = s.do(t, http.MethodGet, "/api/v1/users/"+grace.UUID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMissingBearer(t *testing.T) {
	s := newServer(t, generousLimits())

	rec := s.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", "not.a.token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserAdministration(t *testing.T) {
	s := newServer(t, generousLimits())
	admin := s.login(t, rootUser, testPassword)

	rec := s.do(t, http.MethodPost, "/api/v1/users", admin, authsdk.RegisterRequest{
		Username: "heidi@example.com", Password: testPassword, FirstName: "Heidi", LastName: "Klum",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	heidi := decodeBody[authsdk.UserResponse](t, rec)
	require.True(t, heidi.Enabled)
	require.True(t, heidi.Verified)

	rec = s.do(t, http.MethodGet, "/api/v1/users?username=HEI&size=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody[authsdk.ListUsersResponse](t, rec)
	require.Equal(t, 1, list.Total)
	require.Equal(t, 5, list.Size)
	require.Equal(t, heidi.UUID, list.Users[0].UUID)

	rec = s.do(t, http.MethodGet, "/api/v1/users?permission="+domain.PermDeleteRole, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list = decodeBody[authsdk.ListUsersResponse](t, rec)
	require.Equal(t, 1, list.Total)
	require.Equal(t, rootUser, list.Users[0].Username)

	for _, q := range []string{"page=-1", "size=0", "size=101", "page=x", "enabled=maybe"} {
		rec = s.do(t, http.MethodGet, "/api/v1/users?"+q, admin, nil)
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	}

	lastName := "Schmidt"
	rec = s.do(t, http.MethodPut, "/api/v1/users/"+heidi.UUID, admin, authsdk.UpdateUserRequest{LastName: &lastName})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Schmidt", decodeBody[authsdk.UserResponse](t, rec).LastName)

	disabled := false
	rec = s.do(t, http.MethodPatch, "/api/v1/users/"+heidi.UUID, admin, authsdk.UpdateUserStatusRequest{Enabled: &disabled})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decodeBody[authsdk.UserResponse](t, rec).Enabled)

	rec = s.do(t, http.MethodPost, "/api/v1/users/"+heidi.UUID+"/unlock", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/v1/users/"+heidi.UUID, admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/users/"+heidi.UUID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[authsdk.UserResponse](t, rec).Deleted)

	rec = s.do(t, http.MethodDelete, "/api/v1/users/does-not-exist", admin, nil)
	requireError(t, rec, http.StatusNotFound, authsdk.ErrorCodeNotFound)

	// The permanent delete removes the soft-deleted record too.
	rec = s.do(t, http.MethodDelete, "/api/v1/users/"+heidi.UUID+"/permanent", admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/api/v1/users/"+heidi.UUID, admin, nil)
	requireError(t, rec, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	rec = s.do(t, http.MethodDelete, "/api/v1/users/"+heidi.UUID+"/permanent", admin, nil)
	requireError(t, rec, http.StatusNotFound, authsdk.ErrorCodeNotFound)
}

func TestRolesAdministration(t *testing.T) {
	s := newServer(t, generousLimits())
	ivan := s.createUser(t, "ivan@example.com")
	admin := s.login(t, rootUser, testPassword)

	rec := s.do(t, http.MethodGet, "/api/v1/permissions", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[authsdk.ListPermissionsResponse](t, rec).Permissions, len(domain.DefaultPermissions()))

	rec = s.do(t, http.MethodPost, "/api/v1/roles", admin, authsdk.RoleRequest{
		Name: "Auditor", Permissions: []string{domain.PermReadUser},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auditor := decodeBody[authsdk.RoleResponse](t, rec)
	require.Len(t, auditor.Permissions, 1)

	rec = s.do(t, http.MethodPost, "/api/v1/roles", admin, authsdk.RoleRequest{Name: "Auditor"})
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeAlreadyExists)

	rec = s.do(t, http.MethodPost, "/api/v1/roles", admin, authsdk.RoleRequest{Name: "Broken", Permissions: []string{"FLY_PLANE"}})
	requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

	rec = s.do(t, http.MethodPatch, "/api/v1/users/"+ivan.UUID+"/roles", admin, authsdk.ChangeRolesRequest{RoleNames: []string{"Auditor"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeBody[authsdk.ListRolesResponse](t, rec).Roles, 1)

	rec = s.do(t, http.MethodPatch, "/api/v1/users/"+ivan.UUID+"/roles", admin, authsdk.ChangeRolesRequest{RoleNames: []string{"Ghost"}})
	requireError(t, rec, http.StatusNotFound, authsdk.ErrorCodeNotFound)

	// The new role grants READ_USER without any re-login.
	ivanToken := s.login(t, "ivan@example.com", testPassword)
	rec = s.do(t, http.MethodGet, "/api/v1/users", ivanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/v1/roles/"+auditor.ID, admin, nil)
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeDeletionConflict)

	rec = s.do(t, http.MethodPut, "/api/v1/roles/"+auditor.ID, admin, authsdk.RoleRequest{
		Name: "Reader", Permissions: []string{domain.PermReadUser, domain.PermReadRole},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Reader", decodeBody[authsdk.RoleResponse](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/api/v1/roles/"+auditor.ID, ivanToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeBody[authsdk.RoleResponse](t, rec).Permissions, 2)
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t, generousLimits())

	rec := s.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decodeBody[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	rec = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody[authsdk.HealthResponse](t, rec).Checks["database"])
}

func TestLoginRateLimit(t *testing.T) {
	limits := generousLimits()
	limits.Strict = httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2}
	s := newServer(t, limits)

	body := authsdk.LoginRequest{Username: "nobody@example.com", Password: "whatever"}
	for range 2 {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Another username from the same address has its own bucket.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/login/access-token", "", authsdk.LoginRequest{Username: rootUser, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
