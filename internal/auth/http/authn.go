package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// sessionAuthenticator checks bearer tokens against the live account
// state, so a password change or deletion ends existing sessions.
type sessionAuthenticator struct {
	auth *service.AuthenticationService
}

func (a sessionAuthenticator) AuthenticateBearer(ctx context.Context, token string) (httpx.Principal, error) {
	acc, err := a.auth.ResolveSession(ctx, token)
	if err != nil {
		return httpx.Principal{}, err
	}
	return httpx.Principal{AccountUUID: acc.UUID, Username: acc.Username}, nil
}

// requirePermission allows callers holding permission.
func requirePermission(authz *service.AuthorizationService, permission string) httpx.Policy {
	return func(r *http.Request, p httpx.Principal) (bool, error) {
		return authz.Authorize(r.Context(), p.AccountUUID, "", permission)
	}
}

// ownerOrPermission allows the account named by the {uuid} path value, or
// any caller holding permission.
func ownerOrPermission(authz *service.AuthorizationService, permission string) httpx.Policy {
	return func(r *http.Request, p httpx.Principal) (bool, error) {
		return authz.Authorize(r.Context(), p.AccountUUID, r.PathValue("uuid"), permission)
	}
}

func principal(r *http.Request) httpx.Principal {
	p, _ := httpx.PrincipalFromContext(r.Context())
	return p
}
