// Package credentials keeps launchbot's secrets in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// Environment variables always take precedence, so containers and CI can
// run without a keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name used in the system keyring.
const keyringService = "launchbot"

// Secret names.
const (
	DatabricksToken    = "databricks-token"
	SlackBotToken      = "slack-bot-token"
	SlackSigningSecret = "slack-signing-secret"
	OpenAIAPIKey       = "openai-api-key"
	GeminiAPIKey       = "gemini-api-key"
)

// envVars maps each secret to the environment variable that overrides it.
var envVars = map[string]string{
	DatabricksToken:    "DATABRICKS_TOKEN",
	SlackBotToken:      "SLACK_BOT_TOKEN",
	SlackSigningSecret: "SLACK_SIGNING_SECRET",
	OpenAIAPIKey:       "OPENAI_API_KEY",
	GeminiAPIKey:       "GEMINI_API_KEY",
}

var (
	// ErrNotFound is returned when a secret is in neither the environment
	// nor the keyring.
	ErrNotFound = errors.New("secret not found")
	// ErrUnknownSecret is returned for names not listed in Names.
	ErrUnknownSecret = errors.New("unknown secret")
	// ErrKeyringUnavailable indicates the system keyring cannot be used.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
)

// Source says where a secret came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceNone    Source = "none"
)

// Names returns every secret name, sorted.
func Names() []string {
	names := make([]string, 0, len(envVars))
	for name := range envVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvVar returns the environment variable for a secret.
func EnvVar(name string) (string, bool) {
	v, ok := envVars[name]
	return v, ok
}

// Store reads and writes secrets.
type Store struct {
	service string
	getenv  func(string) string
}

// NewStore creates a store on the launchbot keyring service.
func NewStore() *Store {
	return &Store{service: keyringService, getenv: os.Getenv}
}

// Get returns a secret and where it came from.
func (s *Store) Get(name string) (string, Source, error) {
	env, ok := envVars[name]
	if !ok {
		return "", SourceNone, fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	if v := strings.TrimSpace(s.getenv(env)); v != "" {
		return v, SourceEnv, nil
	}

	v, err := keyring.Get(s.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", SourceNone, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", SourceNone, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, SourceKeyring, nil
}

// Lookup returns a secret or "" when it is not set anywhere. Keyring
// failures are reported; a missing secret is not.
func (s *Store) Lookup(name string) (string, error) {
	v, _, err := s.Get(name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Set stores a secret in the keyring.
func (s *Store) Set(name, value string) error {
	if _, ok := envVars[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s: value is empty", name)
	}
	if err := keyring.Set(s.service, name, value); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes a secret from the keyring. Deleting a secret that is not
// stored is not an error.
func (s *Store) Delete(name string) error {
	if _, ok := envVars[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	if err := keyring.Delete(s.service, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Mask shows the first and last few characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
