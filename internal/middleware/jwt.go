package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/config"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

// ContextActorKey is the gin context key storing the authenticated actor.
const ContextActorKey = "currentActor"

// TokenVerifier checks bearer tokens minted by the identity provider.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenVerifier builds a verifier for HS256 tokens.
func NewTokenVerifier(cfg config.IdentityConfig) *TokenVerifier {
	return &TokenVerifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, audience: cfg.Audience}
}

// Verify parses tokenString and returns the actor it identifies.
func (v *TokenVerifier) Verify(tokenString string) (*models.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		message := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			message = "token expired"
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, message)
	}

	claims, ok := token.Claims.(*models.IdentityClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no email claim")
	}
	return claims.Actor(), nil
}

// Identity requires a valid bearer token and stores the actor on the context.
func Identity(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		actor, err := verifier.Verify(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor stored by Identity.
func ActorFromContext(c *gin.Context) *models.Actor {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return nil
	}
	actor, ok := value.(*models.Actor)
	if !ok {
		return nil
	}
	return actor
}
