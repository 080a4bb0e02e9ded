// Package auth provides request authentication for the statestore API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Method identifies an authentication method.
type Method string

const (
	// MethodNone indicates no authentication.
	MethodNone Method = "none"
	// MethodBasic indicates HTTP Basic authentication.
	MethodBasic Method = "basic"
	// MethodAPIKey indicates API key authentication.
	MethodAPIKey Method = "apikey"
	// MethodMulti indicates that basic and API key credentials are both
	// accepted.
	MethodMulti Method = "multi"
)

// Identity is the authenticated caller.
type Identity struct {
	Method  Method
	Subject string
}

// Authenticator validates a request and returns the caller identity.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
	Method() Method
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidConfig      = errors.New("invalid auth config")
)

// contextKey is the type for context keys in this package.
type contextKey string

// identityKey is the context key for Identity.
const identityKey contextKey = "identity"

// FromContext retrieves the caller identity from the context.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// New creates the authenticator for mode. Mode "none" or "" returns a nil
// Authenticator, meaning authentication is disabled. basicUsers uses the
// format "user:bcrypt_hash,..." and apiKeys the format "key:name,...".
func New(mode, basicUsers, apiKeys string) (Authenticator, error) {
	switch Method(mode) {
	case MethodNone, "":
		return nil, nil
	case MethodBasic:
		ba, err := NewBasicAuthenticator(basicUsers)
		if err != nil {
			return nil, err
		}
		return ba, nil
	case MethodAPIKey:
		ak, err := NewAPIKeyAuthenticator(apiKeys)
		if err != nil {
			return nil, err
		}
		return ak, nil
	case MethodMulti:
		var authenticators []Authenticator
		if strings.TrimSpace(basicUsers) != "" {
			ba, err := NewBasicAuthenticator(basicUsers)
			if err != nil {
				return nil, err
			}
			authenticators = append(authenticators, ba)
		}
		if strings.TrimSpace(apiKeys) != "" {
			ak, err := NewAPIKeyAuthenticator(apiKeys)
			if err != nil {
				return nil, err
			}
			authenticators = append(authenticators, ak)
		}
		if len(authenticators) == 0 {
			return nil, fmt.Errorf("%w: multi mode requires basic users or API keys", ErrInvalidConfig)
		}
		return NewMultiAuthenticator(authenticators...), nil
	default:
		return nil, fmt.Errorf("%w: unknown auth mode %q", ErrInvalidConfig, mode)
	}
}

// parseCredentials parses a "left:right,left:right" list. Entries are split
// at the first colon; blank entries are skipped. kind names the list in
// error messages.
func parseCredentials(config, kind string) (map[string]string, error) {
	trimmed := strings.TrimSpace(config)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s config must not be empty", ErrInvalidConfig, kind)
	}

	pairs := make(map[string]string)
	for entry := range strings.SplitSeq(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		left, right, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %s entry must have the form a:b", ErrInvalidConfig, kind)
		}

		left = strings.TrimSpace(left)
		right = strings.TrimSpace(right)
		if left == "" || right == "" {
			return nil, fmt.Errorf("%w: %s entry has an empty part", ErrInvalidConfig, kind)
		}

		pairs[left] = right
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no valid %s entries found", ErrInvalidConfig, kind)
	}

	return pairs, nil
}
