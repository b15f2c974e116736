package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/cube-auth/authflow"
	"github.com/jrsteele09/cube-auth/provider"
	"github.com/jrsteele09/cube-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	stateLength     = 32
	DefaultStateTTL = 10 * time.Minute
)

// Login outcomes reported to the outcome observer.
const (
	OutcomeInitiated = "initiated"
	OutcomeIssued    = "issued"
)

// IdentityProvider is the external OAuth2 provider as seen by the service.
type IdentityProvider interface {
	BuildAuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (provider.ProviderToken, error)
	FetchIdentity(ctx context.Context, accessToken string) (provider.ExternalIdentity, error)
}

type CredentialIssuer interface {
	Issue(subject string, ttl time.Duration) (token.Credential, error)
}

// ProfileRegistrar persists or refreshes the local record of a user who just
// authenticated.
type ProfileRegistrar interface {
	SaveOrUpdateUser(ctx context.Context, externalID, name, email string) error
}

// Service drives the authorization-code login. Each login attempt is
// independent; only the state value ties BeginLogin to its callback.
type Service struct {
	provider      IdentityProvider
	codec         CredentialIssuer
	states        authflow.Repo
	profiles      ProfileRegistrar
	stateTTL      time.Duration
	credentialTTL time.Duration
	logger        zerolog.Logger
	nowFunc       func() time.Time
	observe       func(outcome string)
}

type ServiceOption func(*Service)

func WithStateTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

// WithCredentialTTL sets the lifetime of issued credentials. Zero keeps the
// codec's default.
func WithCredentialTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.credentialTTL = ttl
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// WithOutcomeObserver receives OutcomeInitiated, OutcomeIssued or the name of
// the failing Stage for every login attempt.
func WithOutcomeObserver(observe func(outcome string)) ServiceOption {
	return func(s *Service) {
		s.observe = observe
	}
}

func NewService(
	idp IdentityProvider,
	codec CredentialIssuer,
	states authflow.Repo,
	profiles ProfileRegistrar,
	options ...ServiceOption,
) (*Service, error) {
	if idp == nil {
		return nil, errors.New("[NewService] identity provider is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] credential issuer is required")
	}
	if states == nil {
		return nil, errors.New("[NewService] state repo is required")
	}
	if profiles == nil {
		return nil, errors.New("[NewService] profile registrar is required")
	}

	s := &Service{
		provider: idp,
		codec:    codec,
		states:   states,
		profiles: profiles,
		stateTTL: DefaultStateTTL,
		logger:   log.Logger,
		nowFunc:  time.Now,
		observe:  func(string) {},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// BeginLogin records a fresh state value and returns the provider URL the
// browser should be sent to, together with that state.
func (s *Service) BeginLogin(ctx context.Context) (authURL, state string, err error) {
	state, err = generateState()
	if err != nil {
		return "", "", fmt.Errorf("[BeginLogin] generate state: %w", err)
	}

	flow := &authflow.AuthFlowState{CreatedAt: s.nowFunc()}
	if err := s.states.Upsert(ctx, state, flow, s.stateTTL); err != nil {
		return "", "", fmt.Errorf("[BeginLogin] store state: %w", err)
	}

	s.logger.Debug().Msg("login initiated")
	s.observe(OutcomeInitiated)
	return s.provider.BuildAuthorizationURL(state), state, nil
}

// HandleCallback completes a login: it consumes state, exchanges code,
// resolves the user's identity, registers the profile and issues a credential
// for the identity's external id. A state that was never issued, has expired
// or was already used fails before the provider is contacted.
//
// Profile registration failure aborts the login; no credential is issued.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (token.Credential, error) {
	if state == "" {
		return token.Credential{}, s.fail(StageState, ErrInvalidState)
	}
	if code == "" {
		return token.Credential{}, s.fail(StageState, ErrMissingCode)
	}

	if _, err := s.states.Consume(ctx, state); err != nil {
		if errors.Is(err, authflow.ErrStateNotFound) || errors.Is(err, authflow.ErrEmptyState) {
			return token.Credential{}, s.fail(StageState, ErrInvalidState)
		}
		return token.Credential{}, s.fail(StageState, err)
	}
	s.logger.Debug().Msg("authorization code received")

	providerToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return token.Credential{}, s.fail(StageExchange, err)
	}

	identity, err := s.provider.FetchIdentity(ctx, providerToken.AccessToken)
	if err != nil {
		return token.Credential{}, s.fail(StageIdentity, err)
	}
	if identity.ExternalID == "" {
		return token.Credential{}, s.fail(StageIdentity, ErrEmptyIdentity)
	}
	s.logger.Debug().Str("subject", identity.ExternalID).Msg("identity resolved")

	if err := s.profiles.SaveOrUpdateUser(ctx, identity.ExternalID, identity.DisplayName, identity.Email); err != nil {
		return token.Credential{}, s.fail(StageProfile, fmt.Errorf("%w: %w", ErrProfileFailure, err))
	}

	cred, err := s.codec.Issue(identity.ExternalID, s.credentialTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("credential signing failed; check signing key configuration")
		s.observe(string(StageIssue))
		return token.Credential{}, &AuthError{Stage: StageIssue, Err: err}
	}

	s.logger.Debug().Str("subject", cred.Subject).Time("expires_at", cred.ExpiresAt).Msg("credential issued")
	s.observe(OutcomeIssued)
	return cred, nil
}

// AbandonLogin discards state when the browser returns without a usable
// code, so the state cannot be completed later. Unknown state is ignored.
func (s *Service) AbandonLogin(ctx context.Context, state string) error {
	if state == "" {
		return nil
	}
	if _, err := s.states.Consume(ctx, state); err != nil && !errors.Is(err, authflow.ErrStateNotFound) {
		return fmt.Errorf("abandon login: %w", err)
	}
	s.logger.Debug().Msg("login abandoned")
	return nil
}

func (s *Service) fail(stage Stage, err error) error {
	s.logger.Warn().Str("stage", string(stage)).Str("kind", failureKind(stage, err)).Err(err).Msg("login failed")
	s.observe(string(stage))
	return &AuthError{Stage: stage, Err: err}
}

// failureKind labels err for the log line. Provider stages use the
// provider's error kinds.
func failureKind(stage Stage, err error) string {
	switch stage {
	case StageExchange:
		return provider.Kind(err)
	case StageIdentity:
		if errors.Is(err, ErrEmptyIdentity) {
			return "empty_identity"
		}
		return provider.Kind(err)
	case StageState:
		switch {
		case errors.Is(err, ErrInvalidState):
			return "invalid_state"
		case errors.Is(err, ErrMissingCode):
			return "missing_code"
		default:
			return "state_store"
		}
	default:
		return string(stage)
	}
}

func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
