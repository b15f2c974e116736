package edge

import "context"

// VerifiedIdentity is the subject of a credential that passed verification.
type VerifiedIdentity struct {
	Subject string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (VerifiedIdentity, bool) {
	identity, ok := ctx.Value(identityKey{}).(VerifiedIdentity)
	return identity, ok && identity.Subject != ""
}
