package credentials

import (
	"fmt"
	"os"
)

const (
	// EmailEnv holds the Paprika account email
	EmailEnv = "PAPRIKA_EMAIL"
	// PasswordEnv holds the Paprika account password
	PasswordEnv = "PAPRIKA_PASSWORD"
)

// EnvCredentialsFetcher retrieves credentials from environment variables
type EnvCredentialsFetcher struct{}

// NewEnvCredentialsFetcher creates a new environment-based credentials fetcher
func NewEnvCredentialsFetcher() *EnvCredentialsFetcher {
	return &EnvCredentialsFetcher{}
}

// GetCredentials retrieves credentials from environment variables
func (e *EnvCredentialsFetcher) GetCredentials() (Credentials, error) {
	creds := Credentials{
		Email:    os.Getenv(EmailEnv),
		Password: os.Getenv(PasswordEnv),
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("%s/%s: %w", EmailEnv, PasswordEnv, err)
	}
	return creds, nil
}
