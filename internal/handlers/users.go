package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/models"
)

var errUserNotFound = apperr.NotFound("user not found")

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// GetUserProfile returns a user's public profile and, for authors, how many
// stories they have published.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var user models.User
	err := db.Preload("Author").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, errUserNotFound)
		return
	}
	if err != nil {
		respondError(c, fmt.Errorf("load user %d: %w", userID, err))
		return
	}

	profile := gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"created_at": user.CreatedAt,
	}
	if user.Author != nil {
		var storyCount int64
		if err := db.Model(&models.Story{}).Where("author_id = ?", user.Author.ID).Count(&storyCount).Error; err != nil {
			respondError(c, fmt.Errorf("count stories: %w", err))
			return
		}
		profile["author"] = gin.H{
			"id":          user.Author.ID,
			"pen_name":    user.Author.PenName,
			"ban_status":  user.Author.Banned,
			"story_count": storyCount,
		}
	}

	c.JSON(http.StatusOK, profile)
}
