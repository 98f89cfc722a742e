// Package auth validates the credentials presented on REST calls and the
// websocket handshake. Credential issuance lives elsewhere; this core only
// needs a trusted user identity per request.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidToken rejects an unknown or missing credential.
var ErrInvalidToken = errors.New("invalid or missing token")

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// StaticVerifier maps fixed tokens to user ids. With no tokens configured
// it runs in single-user mode and accepts everything as DefaultUser.
type StaticVerifier struct {
	tokens map[string]string
}

// DefaultUser is the identity used in unauthenticated single-user mode.
const DefaultUser = "local"

// NewStaticVerifier builds a verifier from token=user pairs.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify implements Verifier.
func (v *StaticVerifier) Verify(token string) (string, error) {
	if len(v.tokens) == 0 {
		return DefaultUser, nil
	}
	if user, ok := v.tokens[token]; ok {
		return user, nil
	}
	return "", ErrInvalidToken
}

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the "token" query parameter for websocket handshakes
// initiated by clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}
