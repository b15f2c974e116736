package profile_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/jrsteele09/cube-auth/internal/errors"
	"github.com/jrsteele09/cube-auth/internal/utils"
	"github.com/jrsteele09/cube-auth/profile"
	"github.com/jrsteele09/cube-auth/server"
	"github.com/jrsteele09/cube-auth/token"
	"github.com/jrsteele09/cube-auth/token/keys"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	ownerID    = "2006WATS01"
	otherID    = "2012PARK03"
)

type testFixture struct {
	repo  *profile.InMemoryRepo
	codec *token.Codec
	srv   *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")

	signer, err := keys.NewHMACSigner(testSecret)
	require.NoError(t, err)
	codec, err := token.NewCodec(signer)
	require.NoError(t, err)

	f := &testFixture{
		repo:  profile.NewInMemoryRepo(),
		codec: codec,
		srv:   server.New(config.New(), server.WithLogger(zerolog.Nop())),
	}
	guard := edge.NewGuard(codec, edge.WithLogger(zerolog.Nop()))
	profile.NewHandlers(f.repo, guard).Register(f.srv)
	return f
}

func (f *testFixture) credential(t *testing.T, subject string) string {
	t.Helper()
	cred, err := f.codec.Issue(subject, time.Hour)
	require.NoError(t, err)
	return cred.Raw
}

func (f *testFixture) do(t *testing.T, method, path, subject, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+f.credential(t, subject))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestInMemoryRepo(t *testing.T) {
	repo := profile.NewInMemoryRepo()

	_, err := repo.Get(ownerID)
	require.ErrorIs(t, err, errors.ErrNotFound)
	_, err = repo.Update(ownerID, profile.Update{Name: utils.Ptr("B")})
	require.ErrorIs(t, err, errors.ErrNotFound)

	p := &profile.Profile{WcaID: ownerID, Name: "A"}
	require.NoError(t, repo.Create(p))
	require.ErrorIs(t, repo.Create(p), errors.ErrConflict)

	p.Name = "mutated after create"
	got, err := repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, "A", got.Name)

	exists, err := repo.Exists(ownerID)
	require.NoError(t, err)
	require.True(t, exists)

	updated, err := repo.Update(ownerID, profile.Update{Country: utils.Ptr("NZ")})
	require.NoError(t, err)
	require.Equal(t, profile.Profile{WcaID: ownerID, Name: "A", Country: "NZ"}, *updated)

	_, err = repo.Update(ownerID, profile.Update{Country: utils.Ptr(strings.Repeat("x", 65))})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
	got, err = repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, "NZ", got.Country)
}

func TestHandlers_Create(t *testing.T) {
	f := setupTestFixture(t)
	body := `{"wcaId":"2006WATS01","name":"A","email":"a@x.com"}`

	rec := f.do(t, http.MethodPost, profile.RouteProfiles, ownerID, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, body, rec.Body.String())

	t.Run("duplicate is conflict", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, profile.RouteProfiles, ownerID, body)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("someone else's profile", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, profile.RouteProfiles, otherID, `{"wcaId":"2099NEWB01","name":"X"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no credential", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, profile.RouteProfiles, "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, profile.RouteProfiles, ownerID, `{"wcaId":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(t, http.MethodPost, profile.RouteProfiles, ownerID, `{"name":"no id"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlers_GetAndUpdate(t *testing.T) {
	f := setupTestFixture(t)
	path := "/api/profile/" + ownerID

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, ownerID, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, path, ownerID, `{"name":"A"}`).Code)

	require.NoError(t, f.repo.Create(&profile.Profile{WcaID: ownerID, Name: "A"}))

	rec := f.do(t, http.MethodGet, path, ownerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"wcaId":"2006WATS01","name":"A"}`, rec.Body.String())

	rec = f.do(t, http.MethodPut, path, ownerID, `{"wcaId":"ignored","name":"B","country":"NZ"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"wcaId":"2006WATS01","name":"B","country":"NZ"}`, rec.Body.String())

	t.Run("omitted fields are kept", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, path, ownerID, `{"avatarUrl":"https://img.example/a.png"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"wcaId":"2006WATS01","name":"B","country":"NZ","avatarUrl":"https://img.example/a.png"}`, rec.Body.String())
	})

	t.Run("invalid update", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, path, ownerID, `{"unknown":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(t, http.MethodPut, path, ownerID, `{"country":"`+strings.Repeat("x", 65)+`"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("other subject", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, otherID, "").Code)
		require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPut, path, otherID, `{"name":"C"}`).Code)
	})

	t.Run("missing profile of own subject", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/profile/"+otherID, otherID, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestClient_SaveOrUpdateUser(t *testing.T) {
	f := setupTestFixture(t)
	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)

	client := profile.NewClient(ts.URL, f.codec)
	ctx := context.Background()

	require.NoError(t, client.SaveOrUpdateUser(ctx, ownerID, "A", "a@x.com"))
	got, err := f.repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", got.Email)

	require.NoError(t, client.SaveOrUpdateUser(ctx, ownerID, "A renamed", "new@x.com"))
	got, err = f.repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, "A renamed", got.Name)
	require.Equal(t, "new@x.com", got.Email)
}

func TestClient_SaveOrUpdateUserKeepsUserFields(t *testing.T) {
	f := setupTestFixture(t)
	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)

	rec := f.do(t, http.MethodPost, profile.RouteProfiles, ownerID,
		`{"wcaId":"2006WATS01","name":"Old","email":"old@x.com","country":"NZ","avatarUrl":"https://img.example/a.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	client := profile.NewClient(ts.URL, f.codec)
	require.NoError(t, client.SaveOrUpdateUser(context.Background(), ownerID, "A", "a@x.com"))

	got, err := f.repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, profile.Profile{
		WcaID:     ownerID,
		Name:      "A",
		Email:     "a@x.com",
		Country:   "NZ",
		AvatarURL: "https://img.example/a.png",
	}, *got)

	// the provider withholding an email does not erase the stored one
	require.NoError(t, client.SaveOrUpdateUser(context.Background(), ownerID, "A", ""))
	got, err = f.repo.Get(ownerID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", got.Email)
}

func TestHandlers_Preflight(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://cube.example.com")
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/profile/"+ownerID, nil)
	req.Header.Set("Origin", "https://cube.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://cube.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestClient_Failures(t *testing.T) {
	signer, err := keys.NewHMACSigner(testSecret)
	require.NoError(t, err)
	codec, err := token.NewCodec(signer)
	require.NoError(t, err)

	t.Run("unexpected status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(ts.Close)

		err := profile.NewClient(ts.URL, codec).SaveOrUpdateUser(context.Background(), ownerID, "A", "")
		require.ErrorContains(t, err, "unexpected status 500")
	})

	t.Run("rejected by profile service", func(t *testing.T) {
		other, err := keys.NewHMACSigner("fedcba9876543210fedcba9876543210")
		require.NoError(t, err)
		otherCodec, err := token.NewCodec(other)
		require.NoError(t, err)

		f := setupTestFixture(t)
		ts := httptest.NewServer(f.srv)
		t.Cleanup(ts.Close)

		err = profile.NewClient(ts.URL, otherCodec).SaveOrUpdateUser(context.Background(), ownerID, "A", "")
		require.ErrorContains(t, err, "unexpected status 401")
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := profile.NewClient(ts.URL, codec).SaveOrUpdateUser(context.Background(), ownerID, "A", "")
		require.Error(t, err)
	})
}
