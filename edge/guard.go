package edge

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/cube-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Rejection reasons. They are logged and counted but never sent to clients.
const (
	ReasonMissingAuthorization = "missing_authorization"
	ReasonInvalidScheme        = "invalid_scheme"
	ReasonSubjectMismatch      = "subject_mismatch"
)

const unauthenticatedBody = `{"error":"unauthenticated"}` + "\n"

// Verifier checks a raw credential and returns its subject.
type Verifier interface {
	Verify(raw string) (string, error)
}

// Guard authenticates inbound requests at a service boundary. Every
// rejection looks the same to the client; the reason is only logged.
type Guard struct {
	verifier Verifier
	allow    AllowList
	logger   zerolog.Logger
	onReject func(reason string)
}

type GuardOption func(*Guard)

func WithAllowList(paths ...string) GuardOption {
	return func(g *Guard) {
		g.allow = NewAllowList(paths...)
	}
}

func WithLogger(logger zerolog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithRejectionHook is called with the reason of every rejected request.
func WithRejectionHook(hook func(reason string)) GuardOption {
	return func(g *Guard) {
		g.onReject = hook
	}
}

func NewGuard(verifier Verifier, options ...GuardOption) *Guard {
	g := &Guard{
		verifier: verifier,
		allow:    NewAllowList(),
		logger:   log.Logger,
		onReject: func(string) {},
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Authenticate verifies the request's bearer credential. On failure it
// returns the rejection reason alongside the error.
func (g *Guard) Authenticate(r *http.Request) (VerifiedIdentity, string, error) {
	raw, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, ErrMissingAuthorization) {
			return VerifiedIdentity{}, ReasonMissingAuthorization, err
		}
		return VerifiedIdentity{}, ReasonInvalidScheme, err
	}

	subject, err := g.verifier.Verify(raw)
	if err != nil {
		return VerifiedIdentity{}, token.Reason(err), err
	}
	return VerifiedIdentity{Subject: subject}, "", nil
}

// Middleware has the shape used by ChainMiddleware.
func (g *Guard) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.allow.Allows(r.URL.Path) {
			next(w, r)
			return
		}

		identity, reason, err := g.Authenticate(r)
		if err != nil {
			g.Reject(w, r, reason, err)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// Handler adapts the guard to routers that compose http.Handler middleware.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return g.Middleware(next.ServeHTTP)
}

// RequireSubject allows the request only when the verified subject equals
// the value extract pulls from it (typically a path parameter). It must run
// after the guard.
func (g *Guard) RequireSubject(extract func(*http.Request) string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				g.Reject(w, r, ReasonMissingAuthorization, ErrMissingAuthorization)
				return
			}
			if identity.Subject != extract(r) {
				g.Reject(w, r, ReasonSubjectMismatch, errors.New("subject does not own resource"))
				return
			}
			next(w, r)
		}
	}
}

// Reject logs reason and writes the uniform 401 response.
func (g *Guard) Reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	g.logger.Info().
		Str("reason", reason).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		AnErr("cause", err).
		Msg("request rejected")
	g.onReject(reason)
	WriteUnauthenticated(w)
}

func WriteUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthenticatedBody))
}
