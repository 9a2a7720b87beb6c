package rest

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/eslsoft/lingoledger/internal/entity"
)

const userIDKey = "user_id"

// Authenticate accepts HS256 bearer tokens whose subject is the user id.
func Authenticate(secret, issuer string) gin.HandlerFunc {
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		if len(key) == 0 {
			abortUnauthorized(c, "authentication is not configured")
			return
		}
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}
		userID, err := entity.NormalizeUserID(claims.Subject)
		if err != nil {
			abortUnauthorized(c, "token has no subject")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireSecret guards a route group with a shared secret header. An empty
// secret disables the group.
func RequireSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(header)
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			abortUnauthorized(c, "invalid "+strings.ToLower(header))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(errors.New(message))
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": message}})
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
