//go:build e2e

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	svc := setupAuthContainer(t)

	live, err := svc.client.Livez(t.Context())
	assertHealthy(t, live, err)
	require.NotEmpty(t, live.Version)

	ready, err := svc.client.Readyz(t.Context())
	assertHealthy(t, ready, err)
	require.Equal(t, "ok", ready.Checks["database"])
}
