package credentials

import (
	"errors"
	"strings"
)

// ErrMissingCredentials is returned when a fetcher has no email or password to offer.
var ErrMissingCredentials = errors.New("missing email or password")

// Credentials are the Paprika account email and password used to obtain
// bearer tokens. They are never mutated after being fetched.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate reports ErrMissingCredentials when either field is blank.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// UniqueID identifies the account regardless of how the email was typed.
func (c Credentials) UniqueID() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// CredentialsFetcher defines the interface for retrieving credentials
type CredentialsFetcher interface {
	GetCredentials() (Credentials, error)
}

// StaticCredentialsFetcher returns credentials supplied at construction,
// typically from flags or the config file.
type StaticCredentialsFetcher struct {
	creds Credentials
}

// NewStaticCredentialsFetcher creates a fetcher that always returns creds
func NewStaticCredentialsFetcher(email, password string) *StaticCredentialsFetcher {
	return &StaticCredentialsFetcher{creds: Credentials{Email: email, Password: password}}
}

// GetCredentials returns the configured credentials
func (s *StaticCredentialsFetcher) GetCredentials() (Credentials, error) {
	if err := s.creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return s.creds, nil
}

// ChainCredentialsFetcher tries each fetcher in order and returns the first
// complete set of credentials.
type ChainCredentialsFetcher []CredentialsFetcher

// GetCredentials walks the chain
func (c ChainCredentialsFetcher) GetCredentials() (Credentials, error) {
	var errs []error
	for _, f := range c {
		if f == nil {
			continue
		}
		creds, err := f.GetCredentials()
		if err == nil {
			return creds, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Credentials{}, ErrMissingCredentials
	}
	return Credentials{}, errors.Join(errs...)
}
