// Package middleware はリクエストID付与とアクセスログの gin ミドルウェアを提供します。
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader はリクエストIDを受け渡すヘッダー名です。
	RequestIDHeader = "X-Request-ID"
	// ContextRequestIDKey は gin.Context 上のリクエストIDのキーです。
	ContextRequestIDKey = "request.id"

	maxRequestIDLength = 128
)

// RequestID はクライアント指定のIDを引き継ぎ、無ければ UUID を発行します。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID は RequestID ミドルウェアが設定したIDを返します。
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestIDKey)
}
