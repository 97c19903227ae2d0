package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/middleware"
	"github.com/storytime/backend/internal/models"
)

var (
	errUserExists         = apperr.Conflict("username or email already exists")
	errInvalidCredentials = apperr.Unauthorized("invalid credentials")
	errAlreadyAuthor      = apperr.Conflict("you already have an author profile")
	errPenName            = apperr.Validation("pen name must be between 1 and 50 characters")
)

type AuthHandler struct {
	db     *gorm.DB
	secret []byte
}

func NewAuthHandler(db *gorm.DB, secret []byte) *AuthHandler {
	return &AuthHandler{db: db, secret: secret}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterRequest
	if !bindJSON(c, &input) {
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, fmt.Errorf("hash password: %w", err))
		return
	}

	user := models.User{
		Username: strings.TrimSpace(input.Username),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: string(hashedPassword),
		Role:     models.RoleUser,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			respondError(c, errUserExists)
			return
		}
		respondError(c, fmt.Errorf("create user: %w", err))
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest
	if !bindJSON(c, &input) {
		return
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).Preload("Author").
		Where("username = ?", input.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, errInvalidCredentials)
		return
	}
	if err != nil {
		respondError(c, fmt.Errorf("load user: %w", err))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		respondError(c, errInvalidCredentials)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Preload("Author").First(&user, actor.ID).Error; err != nil {
		respondError(c, fmt.Errorf("load user %d: %w", actor.ID, err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// BecomeAuthor grants the caller an author profile, which is what allows
// publishing stories.
func (h *AuthHandler) BecomeAuthor(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if actor.IsAuthor() {
		respondError(c, errAlreadyAuthor)
		return
	}

	var input models.CreateAuthorRequest
	if !bindJSON(c, &input) {
		return
	}
	penName := strings.TrimSpace(input.PenName)
	if penName == "" || len([]rune(penName)) > 50 {
		respondError(c, errPenName)
		return
	}

	author := models.Author{UserID: &actor.ID, PenName: penName}
	if err := h.db.WithContext(c.Request.Context()).Create(&author).Error; err != nil {
		if database.IsUniqueViolation(err) {
			respondError(c, errAlreadyAuthor)
			return
		}
		respondError(c, fmt.Errorf("create author: %w", err))
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user models.User) {
	token, err := middleware.GenerateToken(h.secret, user, middleware.TokenTTL)
	if err != nil {
		respondError(c, fmt.Errorf("sign token: %w", err))
		return
	}

	c.JSON(status, models.AuthResponse{Token: token, User: user})
}
