package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/cube-auth/auth"
	"github.com/jrsteele09/cube-auth/authflow"
	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/jrsteele09/cube-auth/internal/metrics"
	"github.com/jrsteele09/cube-auth/provider"
	"github.com/jrsteele09/cube-auth/server"
	"github.com/jrsteele09/cube-auth/token"
	"github.com/jrsteele09/cube-auth/token/keys"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testWcaID  = "2006WATS01"
)

type nopProfiles struct{ calls atomic.Int32 }

func (p *nopProfiles) SaveOrUpdateUser(context.Context, string, string, string) error {
	p.calls.Add(1)
	return nil
}

type testFixture struct {
	srv           *server.Server
	codec         *token.Codec
	identityCalls atomic.Int32
	tokenCalls    atomic.Int32
	identityFails atomic.Bool
}

// setupTestFixture wires the real service against a stubbed provider.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != "valid-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"access_token":"tok1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("GET /api/v0/me", func(w http.ResponseWriter, r *http.Request) {
		f.identityCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if f.identityFails.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprintf(w, `{"me":{"id":7,"wca_id":%q,"name":"A","email":"a@x.com"}}`, testWcaID)
	})
	stub := httptest.NewServer(mux)
	t.Cleanup(stub.Close)

	t.Setenv("ENV", "TEST")
	t.Setenv("BASE_URL", "http://localhost:8081")
	t.Setenv("WCA_CLIENT_ID", "cube-client")
	t.Setenv("WCA_CLIENT_SECRET", "cube-secret")
	t.Setenv("WCA_AUTHORIZE_URL", stub.URL+"/oauth/authorize")
	t.Setenv("WCA_TOKEN_URL", stub.URL+"/oauth/token")
	t.Setenv("WCA_USER_INFO_URL", stub.URL+"/api/v0/me")
	t.Setenv("PROVIDER_MAX_RETRIES", "0")
	t.Setenv("JWT_SECRET", testSecret)
	cfg := config.New()
	require.NoError(t, config.Validate(cfg, config.RoleAuth))

	signer, err := keys.NewSignerFromConfig(cfg)
	require.NoError(t, err)
	f.codec, err = token.NewCodec(signer)
	require.NoError(t, err)

	m := metrics.New()
	idp := provider.New(cfg, provider.WithLogger(zerolog.Nop()), provider.WithObserver(m.ProviderCall))
	svc, err := auth.NewService(idp, f.codec, authflow.NewInMemoryRepo(), &nopProfiles{},
		auth.WithLogger(zerolog.Nop()),
		auth.WithOutcomeObserver(m.LoginOutcome),
	)
	require.NoError(t, err)

	guard := edge.NewGuard(f.codec, edge.WithLogger(zerolog.Nop()), edge.WithRejectionHook(m.EdgeRejection))
	f.srv = server.New(cfg, server.WithMetrics(m), server.WithLogger(zerolog.Nop()))
	f.srv.MountAuth(svc, guard, cfg.GetStateTTL())
	return f
}

func (f *testFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

// login performs GET /login and returns the state and its browser cookie.
func (f *testFixture) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteLogin, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, state, cookies[0].Value)
	return state, cookies[0]
}

func (f *testFixture) callback(t *testing.T, code, state string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{"code": {code}, "state": {state}}
	req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?"+q.Encode(), nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return f.do(t, req)
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code)
	require.JSONEq(t, fmt.Sprintf(`{"error":%q}`, code), rec.Body.String())
}

func TestLogin_Redirect(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteLogin, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", location.Path)
	require.Equal(t, "cube-client", location.Query().Get("client_id"))
	require.Equal(t, "http://localhost:8081/callback", location.Query().Get("redirect_uri"))
	require.Equal(t, "code", location.Query().Get("response_type"))
	require.Equal(t, "public email", location.Query().Get("scope"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLoginFlow_EndToEnd(t *testing.T) {
	f := setupTestFixture(t)
	state, cookie := f.login(t)

	rec := f.callback(t, "valid-code", state, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		Credential string    `json:"credential"`
		Subject    string    `json:"subject"`
		ExpiresAt  time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, testWcaID, body.Subject)

	subject, err := f.codec.Verify(body.Credential)
	require.NoError(t, err)
	require.Equal(t, testWcaID, subject)

	t.Run("me with credential", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteMe, nil)
		req.Header.Set("Authorization", "Bearer "+body.Credential)
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"subject":"2006WATS01"}`, rec.Body.String())
	})

	t.Run("me without credential", func(t *testing.T) {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteMe, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
	})

	t.Run("replayed callback", func(t *testing.T) {
		rec := f.callback(t, "valid-code", state, cookie)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")
		require.EqualValues(t, 1, f.tokenCalls.Load())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		out := rec.Body.String()
		require.Contains(t, out, `cube_login_attempts_total{outcome="issued"} 1`)
		require.Contains(t, out, `cube_edge_rejections_total{reason="missing_authorization"} 1`)
		require.Contains(t, out, `cube_provider_request_duration_seconds_count{operation="exchange",outcome="ok"} 1`)
	})
}

func TestCallback_Failures(t *testing.T) {
	t.Run("wrong state never reaches provider", func(t *testing.T) {
		f := setupTestFixture(t)
		_, cookie := f.login(t)
		forged := &http.Cookie{Name: cookie.Name, Value: "forged"}

		rec := f.callback(t, "valid-code", "forged", forged)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")
		require.Zero(t, f.tokenCalls.Load())
	})

	t.Run("state without browser cookie", func(t *testing.T) {
		f := setupTestFixture(t)
		state, _ := f.login(t)

		rec := f.callback(t, "valid-code", state, nil)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")
		require.Zero(t, f.tokenCalls.Load())
	})

	t.Run("mismatched callback burns the state", func(t *testing.T) {
		f := setupTestFixture(t)
		state, cookie := f.login(t)

		rec := f.callback(t, "valid-code", state, nil)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")

		rec = f.callback(t, "valid-code", state, cookie)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")
		require.Zero(t, f.tokenCalls.Load())
	})

	t.Run("invalid grant", func(t *testing.T) {
		f := setupTestFixture(t)
		state, cookie := f.login(t)

		rec := f.callback(t, "stale-code", state, cookie)
		requireError(t, rec, http.StatusBadRequest, "invalid_grant")
		require.Zero(t, f.identityCalls.Load())
	})

	t.Run("identity endpoint down", func(t *testing.T) {
		f := setupTestFixture(t)
		f.identityFails.Store(true)
		state, cookie := f.login(t)

		rec := f.callback(t, "valid-code", state, cookie)
		requireError(t, rec, http.StatusBadGateway, "login_failed")
		require.NotContains(t, rec.Body.String(), "503")
	})

	t.Run("provider denied", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?error=access_denied&state=x", nil)
		rec := f.do(t, req)
		requireError(t, rec, http.StatusBadRequest, "access_denied")
	})

	t.Run("provider denied discards the state", func(t *testing.T) {
		f := setupTestFixture(t)
		state, cookie := f.login(t)

		q := url.Values{"error": {"access_denied"}, "state": {state}}
		req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?"+q.Encode(), nil)
		req.AddCookie(cookie)
		requireError(t, f.do(t, req), http.StatusBadRequest, "access_denied")

		rec := f.callback(t, "valid-code", state, cookie)
		requireError(t, rec, http.StatusBadRequest, "invalid_state")
		require.Zero(t, f.tokenCalls.Load())
	})
}

func TestHealthAndMiddleware(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, server.RouteMe, nil)
	req.Header.Set("X-Request-ID", "gateway-1")
	rec = f.do(t, req)
	require.Equal(t, "gateway-1", rec.Header().Get("X-Request-ID"))
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rec = f.do(t, req)
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	routes := strings.Join(f.srv.Routes(), "\n")
	for _, r := range []string{"GET /login", "GET /callback", "GET /me", "GET /healthz", "GET /metrics"} {
		require.Contains(t, routes, r)
	}
}

func TestCorsMiddleware(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://cube.example.com")
	f := setupTestFixture(t)

	preflight := func(path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		return f.do(t, req)
	}

	t.Run("allowed origin", func(t *testing.T) {
		for _, path := range []string{server.RouteMe, server.RouteCallback, "/api/profile/" + testWcaID} {
			rec := preflight(path, "https://cube.example.com")
			require.Equal(t, http.StatusNoContent, rec.Code, path)
			require.Equal(t, "https://cube.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
			require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		rec := preflight(server.RouteMe, "https://evil.example.com")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteHealth, nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	f.srv.RegisterRouteFunc("GET /boom", server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.srv.APIMiddleware()...))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/boom", nil))
	requireError(t, rec, http.StatusInternalServerError, "server_error")
}

func TestServe(t *testing.T) {
	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- server.Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop()) }()

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})

	t.Run("address in use", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		err = server.Serve(context.Background(), ln.Addr().String(), http.NotFoundHandler(), zerolog.Nop())
		require.Error(t, err)
	})
}
