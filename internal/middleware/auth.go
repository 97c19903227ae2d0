// Package middleware holds the gin middleware shared by every route group.
package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
)

const (
	// ActorKey is the gin context key holding the authenticated policy.Actor.
	ActorKey = "actor"
	// UserIDKey mirrors the actor's user id for request logging.
	UserIDKey = "user_id"

	TokenTTL = 72 * time.Hour
)

var (
	ErrMissingToken = apperr.Unauthorized("authorization header required")
	ErrInvalidToken = apperr.Unauthorized("invalid or expired token")
)

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for user.
func GenerateToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Auth requires a bearer token, loads its user and stores the resulting
// Actor in the context.
func Auth(db *gorm.DB, secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			abort(c, ErrMissingToken)
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			log.WithError(err).Debug("rejected token")
			abort(c, ErrInvalidToken)
			return
		}

		var user models.User
		err = db.WithContext(c.Request.Context()).Preload("Author").First(&user, claims.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abort(c, ErrInvalidToken)
			return
		}
		if err != nil {
			abort(c, fmt.Errorf("load user %d: %w", claims.UserID, err))
			return
		}

		c.Set(ActorKey, policy.NewActor(user))
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Auth.
func ActorFrom(c *gin.Context) (policy.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return policy.Actor{}, false
	}
	actor, ok := v.(policy.Actor)
	return actor, ok
}

func abort(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		log.WithError(err).Error("authentication failed")
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"error":   apperr.KindOf(err),
		"message": apperr.Message(err),
	})
}
