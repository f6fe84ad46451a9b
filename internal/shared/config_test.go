package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MySQL")
	t.Setenv("SEARCH_RADIUS_METERS", "1200")
	t.Setenv("SESSION_TTL_SECONDS", "60")
	t.Setenv("PLACES_RPS", "abc")
	t.Setenv("CACHE_ENABLED", "false")

	c := Load()
	require.Equal(t, BackendMySQL, c.StoreBackend)
	require.Equal(t, uint(1200), c.SearchRadius)
	require.Equal(t, time.Minute, c.SessionTTL)
	require.Equal(t, 10, c.PlacesRPS)
	require.False(t, c.CacheEnabled)
	require.Equal(t, 400, c.PhotoMaxWidth)
	require.Equal(t, AuthLocal, c.AuthProvider)
}

func TestLoad_SearchRadiusOutOfRangeFallsBack(t *testing.T) {
	for _, v := range []string{"-1", "0", "60000"} {
		t.Setenv("SEARCH_RADIUS_METERS", v)
		require.Equal(t, uint(DefaultSearchRadius), Load().SearchRadius, v)
	}
}

func TestConfig_Validate(t *testing.T) {
	ok := Config{AppEnv: "prod", StoreBackend: BackendMySQL, AuthProvider: AuthLocal, JWTSecret: "0123456789abcdef"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.StoreBackend = "postgres"
	require.Error(t, bad.Validate())

	bad = ok
	bad.JWTSecret = "short"
	require.Error(t, bad.Validate())

	bad = ok
	bad.SearchRadius = MaxSearchRadius + 1
	require.Error(t, bad.Validate())

	bad = ok
	bad.StoreBackend = BackendMemory
	require.Error(t, bad.Validate())
	bad.AppEnv = "dev"
	require.NoError(t, bad.Validate())
}
