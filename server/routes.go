package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/cube-auth/auth"
	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/provider"
	"github.com/jrsteele09/cube-auth/token"
)

const stateCookieName = "cube_login_state"

// LoginService is the part of the authentication service the HTTP layer drives.
type LoginService interface {
	BeginLogin(ctx context.Context) (authURL, state string, err error)
	HandleCallback(ctx context.Context, code, state string) (token.Credential, error)
	AbandonLogin(ctx context.Context, state string) error
}

// MountAuth registers the login, callback and identity routes. /me sits
// behind guard; the others are public.
func (s *Server) MountAuth(svc LoginService, guard *edge.Guard, stateTTL time.Duration) {
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(svc, stateTTL), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(svc), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(guard.Middleware)...))
}

// LoginHandler starts a login and redirects the browser to the provider. The
// state is also bound to the browser with a short-lived cookie.
func (s *Server) LoginHandler(svc LoginService, stateTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, state, err := svc.BeginLogin(r.Context())
		if err != nil {
			s.logger.Err(err).Msg("failed to begin login")
			WriteJSONError(w, http.StatusInternalServerError, "server_error")
			return
		}

		s.setStateCookie(w, state, int(stateTTL.Seconds()))
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

type callbackResponse struct {
	Credential string    `json:"credential"`
	Subject    string    `json:"subject"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CallbackHandler completes a login and returns the issued credential as JSON.
func (s *Server) CallbackHandler(svc LoginService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")
		if providerErr := q.Get("error"); providerErr != "" {
			s.logger.Info().Str("provider_error", providerErr).Msg("provider denied authorization")
			s.abandon(r.Context(), svc, state)
			s.clearStateCookie(w)
			WriteJSONError(w, http.StatusBadRequest, "access_denied")
			return
		}

		cookie, err := r.Cookie(stateCookieName)
		if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
			s.logger.Info().Msg("callback state does not match browser binding")
			s.abandon(r.Context(), svc, state)
			WriteJSONError(w, http.StatusBadRequest, "invalid_state")
			return
		}
		s.clearStateCookie(w)

		cred, err := svc.HandleCallback(r.Context(), q.Get("code"), state)
		if err != nil {
			status, code := callbackFailure(err)
			WriteJSONError(w, status, code)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		WriteJSON(w, http.StatusOK, callbackResponse{
			Credential: cred.Raw,
			Subject:    cred.Subject,
			IssuedAt:   cred.IssuedAt.UTC(),
			ExpiresAt:  cred.ExpiresAt.UTC(),
		})
	}
}

func (s *Server) abandon(ctx context.Context, svc LoginService, state string) {
	if err := svc.AbandonLogin(ctx, state); err != nil {
		s.logger.Warn().Err(err).Msg("failed to discard login state")
	}
}

// MeHandler returns the identity the guard attached to the request.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := edge.IdentityFromContext(r.Context())
		if !ok {
			edge.WriteUnauthenticated(w)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"subject": identity.Subject})
	}
}

// callbackFailure maps a login failure to a status and a generic error code.
func callbackFailure(err error) (int, string) {
	stage, _ := auth.StageOf(err)
	switch {
	case stage == auth.StageState:
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, provider.ErrInvalidGrant):
		return http.StatusBadRequest, "invalid_grant"
	case stage == auth.StageIssue || stage == "":
		return http.StatusInternalServerError, "server_error"
	default:
		return http.StatusBadGateway, "login_failed"
	}
}

func (s *Server) setStateCookie(w http.ResponseWriter, state string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.config.GetBaseURL(), "https://"),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) clearStateCookie(w http.ResponseWriter) {
	s.setStateCookie(w, "", -1)
}
