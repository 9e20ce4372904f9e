package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/course-keeper/internal/config"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
	"github.com/and161185/course-keeper/internal/store"
)

func TestNew_LocalOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	a, err := New(ctx, Options{
		Auth:       service.AuthOptions{SignKey: []byte("k")},
		Registerer: reg,
		Log:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Guard.Configured())
	assert.Len(t, a.Catalog.All(), 6)

	_, err = a.Auth.SignUp(ctx, service.SignUpForm{
		FullName: "Asha Rao", Username: "asha", Email: "asha@x.io",
		Password: "Secret1!", ConfirmPassword: "Secret1!",
	})
	require.NoError(t, err)

	c, err := a.Catalog.Get("c-react")
	require.NoError(t, err)
	created, err := a.Purchases.Checkout(ctx, []model.Course{c},
		model.BuyerDetails{FullName: "Asha Rao", Email: "asha@x.io", Phone: "9876543210"}, "")
	require.NoError(t, err)
	require.Len(t, created, 1)

	list := a.Purchases.List(ctx, "", model.StatusPending)
	assert.Len(t, list, 1)

	deps := a.HTTPDeps(reg, []string{"*"})
	assert.NotNil(t, deps.Auth)
	assert.Same(t, a.Roster, deps.Roster)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_BadCatalogFile(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Options{CatalogFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		DatabaseURL:        "postgres://x",
		RemoteProbeTimeout: time.Second,
		RemoteCallTimeout:  2 * time.Second,
		JWTKey:             "key",
		SessionTTL:         time.Hour,
		AdminUsername:      "root",
		AdminPassword:      "pw",
		SigninMaxFails:     7,
		ReferralPoll:       time.Second,
	}
	o := FromConfig(cfg)
	assert.Equal(t, "postgres://x", o.DatabaseURL)
	assert.True(t, o.Migrate)
	assert.Equal(t, time.Second, o.Remote.ProbeTimeout)
	assert.Equal(t, 2*time.Second, o.Remote.CallTimeout)
	assert.Equal(t, []byte("key"), o.Auth.SignKey)
	assert.Equal(t, "root", o.Auth.AdminUsername)
	assert.Equal(t, 7, o.SigninMaxFails)
}

func TestOpenMedium(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m, closeFn, err := OpenMedium(ctx, &config.Config{StoreBackend: config.BackendMemory})
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &store.MemoryMedium{}, m)

	dir := filepath.Join(t.TempDir(), "data")
	m, closeFn, err = OpenMedium(ctx, &config.Config{StoreBackend: config.BackendFile, StoreDir: dir})
	require.NoError(t, err)
	closeFn()
	require.NoError(t, m.Set(ctx, "k", "v"))
	_, err = os.Stat(dir)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	m, closeFn, err = OpenMedium(ctx, &config.Config{StoreBackend: config.BackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "t:"})
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, m.Set(ctx, "k", "v"))
	assert.True(t, mr.Exists("t:k"))
}
