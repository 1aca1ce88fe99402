package httpx

import "context"

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "principal"
)

// Principal is the caller recovered from a verified bearer token.
type Principal struct {
	AccountUUID string
	Username    string
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok && p.AccountUUID != ""
}
