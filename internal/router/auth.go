package router

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	adminRole          = "admin"
	adminSubjectCtxKey = "admin_subject"
	adminTokenIssuer   = "affiliate-engine"
)

// AdminClaims 管理端 JWT 载荷
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAdminToken 签发管理端令牌
func GenerateAdminToken(secretKey, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secretKey) == "" {
		return "", errors.New("jwt secret is empty")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    adminTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

// AdminJWTMiddleware 管理端 JWT 鉴权中间件
func AdminJWTMiddleware(secretKey string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithExpirationRequired(),
	)
	return func(c *gin.Context) {
		if secretKey == "" {
			abortUnauthorized(c, "jwt secret missing")
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "authorization header missing")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			abortUnauthorized(c, "authorization header invalid")
			return
		}

		claims := &AdminClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secretKey), nil
		})
		if err != nil || !token.Valid || claims.Role != adminRole || claims.Subject == "" {
			abortUnauthorized(c, "token invalid")
			return
		}
		c.Set(adminSubjectCtxKey, claims.Subject)
		c.Next()
	}
}
