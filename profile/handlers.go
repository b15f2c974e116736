package profile

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/internal/errors"
	"github.com/jrsteele09/cube-auth/server"
	"github.com/rs/zerolog/log"
)

const (
	RouteProfiles = "/api/profile"
	RouteProfile  = "/api/profile/{wcaId}"

	maxBodyBytes = 64 << 10
)

type Handlers struct {
	repo  Repo
	guard *edge.Guard
}

func NewHandlers(repo Repo, guard *edge.Guard) *Handlers {
	return &Handlers{repo: repo, guard: guard}
}

// Register mounts the profile routes on s. Every route requires a verified
// credential; GET and PUT also require the subject to own the path's wcaId.
func (h *Handlers) Register(s *server.Server) {
	owner := h.guard.RequireSubject(func(r *http.Request) string { return r.PathValue("wcaId") })

	s.RegisterRouteFunc("GET "+RouteProfile, server.ChainMiddleware(h.GetHandler(), s.APIMiddleware(h.guard.Middleware, owner)...))
	s.RegisterRouteFunc("PUT "+RouteProfile, server.ChainMiddleware(h.UpdateHandler(), s.APIMiddleware(h.guard.Middleware, owner)...))
	s.RegisterRouteFunc("POST "+RouteProfiles, server.ChainMiddleware(h.CreateHandler(), s.APIMiddleware(h.guard.Middleware)...))
}

func (h *Handlers) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.repo.Get(r.PathValue("wcaId"))
		if err != nil {
			writeRepoError(w, err)
			return
		}
		server.WriteJSON(w, http.StatusOK, p)
	}
}

// CreateHandler stores a new profile for the caller. The body's wcaId must be
// the caller's own subject.
func (h *Handlers) CreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := decodeProfile(r)
		if err != nil {
			server.WriteJSONError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		identity, _ := edge.IdentityFromContext(r.Context())
		if identity.Subject != p.WcaID {
			h.guard.Reject(w, r, edge.ReasonSubjectMismatch, errors.ErrUnauthenticated)
			return
		}

		if err := h.repo.Create(p); err != nil {
			writeRepoError(w, err)
			return
		}
		server.WriteJSON(w, http.StatusCreated, p)
	}
}

// UpdateHandler changes the fields present in the body and keeps the rest.
func (h *Handlers) UpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u Update
		if err := decodeBody(r, &u); err != nil {
			server.WriteJSONError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		p, err := h.repo.Update(r.PathValue("wcaId"), u)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		server.WriteJSON(w, http.StatusOK, p)
	}
}

func decodeProfile(r *http.Request) (*Profile, error) {
	var p Profile
	if err := decodeBody(r, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "decode profile: %v", err)
	}
	return nil
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		server.WriteJSONError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, errors.ErrConflict):
		server.WriteJSONError(w, http.StatusConflict, "conflict")
	case errors.Is(err, errors.ErrInvalidRequest):
		server.WriteJSONError(w, http.StatusBadRequest, "invalid_request")
	default:
		log.Err(err).Msg("profile repo failure")
		server.WriteJSONError(w, http.StatusInternalServerError, "server_error")
	}
}
