package credentials

import (
	"encoding/json"
	"fmt"
	"os"
)

type fsAuth struct {
	Account struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"account"`
}

// FSCredentialsFetcher reads credentials from a JSON file written by
// `turmeric login --save`.
type FSCredentialsFetcher struct {
	Path string
}

func NewFSCredentialsFetcher(path string) *FSCredentialsFetcher {
	return &FSCredentialsFetcher{Path: path}
}

func (f *FSCredentialsFetcher) GetCredentials() (Credentials, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var a fsAuth
	if err := json.Unmarshal(b, &a); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	creds := Credentials{Email: a.Account.Email, Password: a.Account.Password}
	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("credentials file %s: %w", f.Path, err)
	}
	return creds, nil
}

// InitFromCredentials writes creds to path, creating parent directories with
// 0700 and the file itself with 0600.
func InitFromCredentials(path string, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := EnsureParentDir(path); err != nil {
		return err
	}

	var a fsAuth
	a.Account.Email = creds.Email
	a.Account.Password = creds.Password

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}

	return nil
}
