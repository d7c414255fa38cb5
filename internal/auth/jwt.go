// Package auth turns bearer tokens into actors. Tokens are HS256 JWTs whose
// subject is the actor id; name and role travel as private claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"qms/clinic-queue/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("auth: signing secret is not configured")
	ErrInvalidToken  = errors.New("auth: invalid or expired token")
)

type Authenticator interface {
	Authenticate(token string) (models.Actor, error)
}

type Claims struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a token for actor valid for the configured TTL.
func (j *JWT) Issue(actor models.Actor) (string, error) {
	if actor.ID == "" {
		return "", errors.New("auth: actor id is required")
	}
	if !validRole(actor.Role) {
		return "", fmt.Errorf("auth: unknown role %q", actor.Role)
	}
	now := j.now()
	claims := Claims{
		Name: actor.Name,
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func (j *JWT) Authenticate(token string) (models.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return models.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" || !validRole(claims.Role) {
		return models.Actor{}, ErrInvalidToken
	}
	return models.Actor{ID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}

func validRole(role models.Role) bool {
	switch role {
	case models.RolePatient, models.RoleDoctor, models.RoleAdmin:
		return true
	default:
		return false
	}
}
