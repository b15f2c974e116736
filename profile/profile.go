package profile

import (
	"strings"

	"github.com/jrsteele09/cube-auth/internal/errors"
)

// Profile is the local record of a user, keyed by the credential subject.
type Profile struct {
	WcaID     string `json:"wcaId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Country   string `json:"country,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (p *Profile) Validate() error {
	p.WcaID = strings.TrimSpace(p.WcaID)
	if p.WcaID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "wcaId is required")
	}
	if len(p.Name) > 200 || len(p.Email) > 320 || len(p.Country) > 64 || len(p.AvatarURL) > 2048 {
		return errors.Wrapf(errors.ErrInvalidRequest, "profile field too long")
	}
	return nil
}

// Update is a partial change to a profile. Nil fields keep their stored value.
// WcaID is accepted for symmetry with Profile but the route's id always wins.
type Update struct {
	WcaID     string  `json:"wcaId,omitempty"`
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Country   *string `json:"country,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Apply writes the fields set in u onto p.
func (u Update) Apply(p *Profile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Country != nil {
		p.Country = *u.Country
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
}
