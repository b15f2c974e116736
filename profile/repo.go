package profile

type Repo interface {
	Get(wcaID string) (*Profile, error)
	Exists(wcaID string) (bool, error)
	Create(p *Profile) error
	// Update applies u to the stored profile atomically and returns the result.
	Update(wcaID string, u Update) (*Profile, error)
}
