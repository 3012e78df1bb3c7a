package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sebas/voipcenter/internal/voip/config"
	"github.com/stretchr/testify/require"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Addr = "127.0.0.1:0"
	cfg.Health.GRPCAddr = "127.0.0.1:0"
	return cfg
}

func servingStatus(t *testing.T, v *VoIPCenter) healthgrpc.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := v.health.Check(context.Background(), &healthgrpc.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.Status
}

func TestHeadlessLifecycle(t *testing.T) {
	v, err := New(testConfig())
	require.NoError(t, err)
	require.Nil(t, v.phone)
	require.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, servingStatus(t, v))

	require.NoError(t, v.Start(context.Background()))
	require.Equal(t, healthgrpc.HealthCheckResponse_SERVING, servingStatus(t, v))

	st, err := v.center.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Idle", st.Session.State.String())

	require.NoError(t, v.Close())
}

func TestRedisTokenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Token.Store = config.TokenRedis
	cfg.Token.RedisAddr = mr.Addr()

	v, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, v.Start(context.Background()))
	defer v.Close()

	require.NoError(t, v.tokens.Save(context.Background(), []byte{0xca, 0xfe}))
	got, err := mr.Get(cfg.Token.Key)
	require.NoError(t, err)
	require.Equal(t, "cafe", got)
}

func TestSIPAuthorityNeedsPhone(t *testing.T) {
	cfg := testConfig()
	cfg.Authority.Kind = config.AuthoritySIP

	_, err := New(cfg)
	require.Error(t, err)
}

func TestRedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Token.Store = config.TokenRedis
	cfg.Token.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg)
	require.Error(t, err)
}
