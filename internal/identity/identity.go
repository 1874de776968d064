// Package identity issues and verifies access tokens. The core services only
// ever see the verified Identity the middleware hands them.
package identity

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

const tokenTTL = 7 * 24 * time.Hour

// Identity is a verified caller.
type Identity struct {
	Email string
	Name  string
}

type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

func (v *Verifier) Issue(email, name string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", domain.ErrInvalidInput
	}
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Name: name,
	})
	return token.SignedString(v.secret)
}

func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, domain.ErrForbidden
	}
	if parsed.Subject == "" {
		return nil, domain.ErrForbidden
	}
	return &Identity{Email: parsed.Subject, Name: parsed.Name}, nil
}
