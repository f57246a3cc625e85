package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/task-manager/internal/middleware"
	"github.com/yourusername/task-manager/internal/models"
	"github.com/yourusername/task-manager/internal/storage"
)

const (
	msgServerError        = "Server error"
	msgInvalidCredentials = "Invalid credentials"
	msgUserExists         = "Username or email already exists"
)

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type signinRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup は POST /api/auth/signup のハンドラーです。
func (m *Manager) Signup(c *gin.Context) {
	log := m.logger.WithField("request_id", middleware.GetRequestID(c))

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username, email and password are required",
		})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	ctx := c.Request.Context()
	exists, err := m.users.UserExists(ctx, req.Username, req.Email)
	if err != nil {
		log.WithError(err).Error("failed to check existing user")
		serverError(c)
		return
	}
	if exists {
		conflict(c)
		return
	}

	hashed, err := m.hasher.Hash(req.Password)
	if err != nil {
		log.WithError(err).Error("failed to hash password")
		serverError(c)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
	}
	if err := m.users.CreateUser(ctx, user); err != nil {
		// 存在確認と作成の間に同じユーザー名が登録された場合
		if errors.Is(err, storage.ErrDuplicate) {
			conflict(c)
			return
		}
		log.WithError(err).Error("failed to create user")
		serverError(c)
		return
	}

	log.WithField("user_id", user.ID).Info("user signed up")
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
}

// Signin は POST /api/auth/signin のハンドラーです。
// ユーザーが存在しない場合とパスワード不一致を区別しません。
func (m *Manager) Signin(c *gin.Context) {
	log := m.logger.WithField("request_id", middleware.GetRequestID(c))

	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username and password are required",
		})
		return
	}

	user, err := m.users.FindUserByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			invalidCredentials(c)
			return
		}
		log.WithError(err).Error("failed to look up user")
		serverError(c)
		return
	}

	if !m.hasher.Verify(user.PasswordHash, req.Password) {
		invalidCredentials(c)
		return
	}

	token, err := m.tokens.Issue(user.ID)
	if err != nil {
		log.WithError(err).Error("failed to issue token")
		serverError(c)
		return
	}

	log.WithField("user_id", user.ID).Info("user signed in")
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout は POST /api/auth/logout のハンドラーです。
// トークンはサーバーに保存していないため、クライアント側で破棄してもらうだけです。
func (m *Manager) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out. Discard the token on the client"})
}

func conflict(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "CONFLICT",
		"message": msgUserExists,
	})
}

func invalidCredentials(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_CREDENTIALS",
		"message": msgInvalidCredentials,
	})
}

func serverError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": msgServerError,
	})
}
