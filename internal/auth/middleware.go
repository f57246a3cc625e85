package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/task-manager/internal/middleware"
)

// RequireLogin は Authorization: Bearer <token> を検証するミドルウェアを返します。
// ストアには一切アクセスしません。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			})
			return
		}

		subject, err := m.tokens.Verify(token)
		if err != nil {
			m.rejectToken(c, err)
			return
		}

		c.Set(ContextUserKey, subject)
		c.Next()
	}
}

func (m *Manager) rejectToken(c *gin.Context, err error) {
	var tokenErr *TokenError
	if !errors.As(err, &tokenErr) {
		m.logger.WithError(err).WithField("request_id", middleware.GetRequestID(c)).Error("unexpected token verification failure")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "Internal server error",
		})
		return
	}

	switch tokenErr.Kind {
	case TokenExpired:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":      "TOKEN_EXPIRED",
			"message":   "Token has expired",
			"expiredAt": tokenErr.ExpiredAt.Format(time.RFC3339),
		})
	case TokenNotYetValid:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "TOKEN_NOT_ACTIVE",
			"message": "Token is not valid yet",
			"error":   tokenErr.Error(),
		})
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "TOKEN_INVALID",
			"message": "Invalid token",
			"error":   tokenErr.Error(),
		})
	}
}

// bearerToken は "Bearer <token>" からトークン部分を取り出します。
// スキームが無い場合はヘッダー値全体をトークンとして扱います。
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	if strings.EqualFold(header, "Bearer") {
		return ""
	}
	return header
}
