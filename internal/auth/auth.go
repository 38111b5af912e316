package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Actor is the authenticated identity recorded on every workflow action.
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

type Authenticator interface {
	Authenticate(r *http.Request) (Actor, error)
}

// TokenAuthenticator resolves static bearer tokens issued by the identity
// collaborator.
type TokenAuthenticator struct {
	tokens map[string]Actor
}

func NewTokenAuthenticator(tokens map[string]Actor) *TokenAuthenticator {
	copied := make(map[string]Actor, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &TokenAuthenticator{tokens: copied}
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Actor, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Actor{}, err
	}
	actor, ok := a.tokens[bearer]
	if !ok || actor.ID == "" {
		return Actor{}, ErrInvalidToken
	}
	return actor, nil
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
