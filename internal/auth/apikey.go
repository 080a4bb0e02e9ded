package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the HTTP header name for API key authentication.
const APIKeyHeader = "X-API-Key"

// APIKeyQueryParam carries the API key on WebSocket upgrades, where
// browsers cannot set custom headers.
const APIKeyQueryParam = "api_key"

// APIKeyAuthenticator authenticates requests using API keys compared in
// constant time.
type APIKeyAuthenticator struct {
	keys map[string]string // key value -> key name
}

// NewAPIKeyAuthenticator creates an API key authenticator from a
// configuration string in the format "key1:name1,key2:name2".
func NewAPIKeyAuthenticator(keysConfig string) (*APIKeyAuthenticator, error) {
	keys, err := parseCredentials(keysConfig, "apikey")
	if err != nil {
		return nil, err
	}
	return &APIKeyAuthenticator{keys: keys}, nil
}

// Authenticate reads the key from the X-API-Key header, falling back to the
// api_key query parameter.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		apiKey = r.URL.Query().Get(APIKeyQueryParam)
	}
	if apiKey == "" {
		return nil, ErrUnauthenticated
	}

	// Every key is compared so the scan time does not depend on the match.
	var subject string
	for key, name := range a.keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			subject = name
		}
	}
	if subject == "" {
		return nil, ErrInvalidAPIKey
	}

	return &Identity{Method: MethodAPIKey, Subject: subject}, nil
}

// Method returns MethodAPIKey.
func (a *APIKeyAuthenticator) Method() Method {
	return MethodAPIKey
}
