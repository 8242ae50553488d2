package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// ErrMissingSubject is returned for tokens without a user ID.
var ErrMissingSubject = errors.New("token has no subject")

// Claims is the JWT payload. The user ID travels in the subject.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Gateway issues and resolves bearer tokens
type Gateway struct {
	secret    []byte
	issuer    string
	directory interfaces.UserDirectory
	log       *slog.Logger
	now       func() time.Time
}

var _ interfaces.IdentityResolver = (*Gateway)(nil)

// NewGateway creates a gateway signing with secret (HS256).
func NewGateway(secret []byte, issuer string, directory interfaces.UserDirectory, log *slog.Logger) *Gateway {
	return &Gateway{
		secret:    secret,
		issuer:    issuer,
		directory: directory,
		log:       log,
		now:       time.Now,
	}
}

// IssueToken creates a signed token for userID valid for ttl.
func (g *Gateway) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	now := g.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Resolve validates token and loads the current preferences of its subject.
// Every failure wraps types.ErrUnauthenticated.
func (g *Gateway) Resolve(ctx context.Context, token string) (types.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, jwt.ErrSignatureInvalid)
	}
	if claims.Subject == "" {
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, ErrMissingSubject)
	}

	identity, err := g.directory.LookupUser(ctx, claims.Subject)
	if err != nil {
		g.log.Debug("Token subject lookup failed", "user_id", claims.Subject, "error", err)
		return types.Identity{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}
	return identity, nil
}
