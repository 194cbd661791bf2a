package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims identifies the caller pushing decisions.
type Claims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
}

// GenerateToken issues an HS256 token for actor, valid for validity.
func GenerateToken(actor string, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Actor: actor,
	})
	return token.SignedString(secret)
}

// ActorFromToken validates tokenString and returns the actor claim. Every
// failure matches common.ErrUnauthorized.
func ActorFromToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", fmt.Errorf("%w: token expired", common.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
	}
	return claims.Actor, nil
}

// requireToken checks the bearer token when secret is set and stores the
// actor in the gin context.
func requireToken(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		actor, err := ActorFromToken(strings.TrimSpace(raw), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}
