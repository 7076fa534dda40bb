package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"keepernest/pkg/domain"
)

// DefaultTokenTTL bounds the lifetime of session tokens.
const DefaultTokenTTL = 12 * time.Hour

const issuer = "keepernest"

// Claims is the JWT payload of a session token.
type Claims struct {
	EmployeeID string      `json:"employeeId"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuer signs session tokens with HS256.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer returns an issuer for secret. A zero ttl uses DefaultTokenTTL.
func NewJWTIssuer(secret string, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// SetNowFunc overrides the clock used for issue and expiry times.
func (i *JWTIssuer) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		i.now = fn
	}
}

// Issue returns a signed token for actor and its expiry.
func (i *JWTIssuer) Issue(actor domain.Actor) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		EmployeeID: actor.EmployeeID,
		Email:      actor.Email,
		Role:       actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.EmployeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses token and returns the actor it was issued for.
func (i *JWTIssuer) Verify(token string) (domain.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid || claims.EmployeeID == "" {
		return domain.Actor{}, errors.New("verify token: invalid claims")
	}
	return domain.Actor{EmployeeID: claims.EmployeeID, Email: claims.Email, Role: claims.Role}, nil
}

// Authenticator issues and verifies session tokens.
type Authenticator interface {
	Issue(actor domain.Actor) (string, time.Time, error)
	Verify(token string) (domain.Actor, error)
}

var _ Authenticator = (*JWTIssuer)(nil)
