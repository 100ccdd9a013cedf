package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/models"
)

const (
	defaultSigningMethod = "HS256"
	defaultTokenTTL      = 15 * time.Minute
)

var ErrNoToken = errors.New("no bearer token in request")

// Claims issued by the external auth system. The billing core needs only the
// stable user identifier and the role.
type Claims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID `json:"uid"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role"`
}

// Authenticator verifies bearer tokens signed by the external auth system
// with the shared HMAC key.
type Authenticator struct {
	key string
	alg jwt.SigningMethod
}

func New(secretKey string) (*Authenticator, error) {
	if secretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	return &Authenticator{
		key: secretKey,
		alg: jwt.GetSigningMethod(defaultSigningMethod),
	}, nil
}

// ParseToken validates the token and returns the user identity it carries.
func (a *Authenticator) ParseToken(tokenString string) (models.User, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(a.key), nil
		},
		jwt.WithValidMethods([]string{a.alg.Alg()}),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return models.User{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// UserFromRequest extracts and validates the bearer token of the request.
func (a *Authenticator) UserFromRequest(r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return models.User{}, ErrNoToken
	}

	return a.ParseToken(token)
}

// IssueToken signs a short-lived token for the given identity. Used by tests
// and service-to-service calls; real user tokens come from the auth system.
func (a *Authenticator) IssueToken(user models.User, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now().Truncate(time.Second)
	token := jwt.NewWithClaims(a.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})

	signed, err := token.SignedString([]byte(a.key))
	if err != nil {
		return "", fmt.Errorf("error while signing token. Err: %w", err)
	}

	return signed, nil
}
