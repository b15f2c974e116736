package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/cube-auth/authflow"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/jrsteele09/cube-auth/token/keys"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestKeysHMAC(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keys", "hmac"})

	require.NoError(t, cmd.Execute())
	secret := strings.TrimSpace(out.String())
	require.GreaterOrEqual(t, len(secret), keys.MinHMACSecretLength)
}

func TestKeysRSA(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keys", "rsa", "--out", dir})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "JWT_ALGORITHM=RS256")

	info, err := os.Stat(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv, err := os.ReadFile(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	pub, err := os.ReadFile(filepath.Join(dir, "public.pem"))
	require.NoError(t, err)
	_, err = keys.LoadKeyPairFromPEM(string(priv), string(pub))
	require.NoError(t, err)

	// the written pair configures a working codec
	t.Setenv("JWT_ALGORITHM", "RS256")
	t.Setenv("JWT_PRIVATE_KEY_FILE", filepath.Join(dir, "private.pem"))
	t.Setenv("JWT_PUBLIC_KEY_FILE", filepath.Join(dir, "public.pem"))
	codec, err := newCodec(config.New())
	require.NoError(t, err)
	cred, err := codec.Issue("2006WATS01", time.Minute)
	require.NoError(t, err)
	subject, err := codec.Verify(cred.Raw)
	require.NoError(t, err)
	require.Equal(t, "2006WATS01", subject)
}

func TestNewCodec(t *testing.T) {
	t.Run("hmac", func(t *testing.T) {
		t.Setenv("JWT_ALGORITHM", "HS256")
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("CREDENTIAL_TTL", "2h")

		codec, err := newCodec(config.New())
		require.NoError(t, err)
		cred, err := codec.Issue("2006WATS01", 0)
		require.NoError(t, err)
		require.Equal(t, 2*time.Hour, cred.ExpiresAt.Sub(cred.IssuedAt))
	})

	t.Run("short secret", func(t *testing.T) {
		t.Setenv("JWT_ALGORITHM", "HS256")
		t.Setenv("JWT_SECRET", "short")

		_, err := newCodec(config.New())
		require.Error(t, err)
	})
}

func TestNewStateRepo(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		t.Setenv("STATE_STORE", "memory")
		repo, closeFn, err := newStateRepo(context.Background(), config.New())
		require.NoError(t, err)
		require.IsType(t, &authflow.InMemoryRepo{}, repo)
		require.NoError(t, closeFn())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("STATE_STORE", "redis")
		t.Setenv("REDIS_ADDR", mr.Addr())

		repo, closeFn, err := newStateRepo(context.Background(), config.New())
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFn()) }()
		require.IsType(t, &authflow.RedisRepo{}, repo)

		now := time.Now()
		require.NoError(t, repo.Upsert(context.Background(), "abc", &authflow.AuthFlowState{
			State: "abc", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
		}, time.Minute))
		require.True(t, mr.Exists("cube:authflow:abc"))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		t.Setenv("STATE_STORE", "redis")
		t.Setenv("REDIS_ADDR", addr)

		_, _, err := newStateRepo(context.Background(), config.New())
		require.Error(t, err)
		require.Contains(t, err.Error(), addr)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("STATE_STORE", "etcd")
		_, _, err := newStateRepo(context.Background(), config.New())
		require.Error(t, err)
	})
}

func TestListenAddr(t *testing.T) {
	t.Setenv("PORT", "9000")
	require.Equal(t, ":9000", listenAddr(&rootOptions{}, config.New()))
	require.Equal(t, "127.0.0.1:1234", listenAddr(&rootOptions{addr: "127.0.0.1:1234"}, config.New()))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("JWT_SECRET="+testSecret+"\n"), 0o600))

	t.Setenv("JWT_ALGORITHM", "HS256")
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, _, err := loadConfig(&rootOptions{envFiles: []string{envFile}}, config.RoleProfile)
	require.NoError(t, err)

	// the auth role also needs provider client credentials
	t.Setenv("WCA_CLIENT_ID", "")
	t.Setenv("WCA_CLIENT_SECRET", "")
	_, _, err = loadConfig(&rootOptions{envFiles: []string{envFile}}, config.RoleAuth)
	require.Error(t, err)
	require.Contains(t, err.Error(), "WCA_CLIENT_ID")
}
