package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/services"
)

type RatingHandler struct {
	ratings *services.RatingEngine
}

func NewRatingHandler(ratings *services.RatingEngine) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

// GetRating returns the story's stored average and count.
func (h *RatingHandler) GetRating(c *gin.Context) {
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	summary, err := h.ratings.Summary(c.Request.Context(), storyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *RatingHandler) Rate(c *gin.Context) {
	userID, storyID, input, ok := h.bind(c)
	if !ok {
		return
	}
	result, err := h.ratings.SetRating(c.Request.Context(), userID, storyID, input.Rating)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *RatingHandler) UpdateRating(c *gin.Context) {
	userID, storyID, input, ok := h.bind(c)
	if !ok {
		return
	}
	result, err := h.ratings.UpdateRating(c.Request.Context(), userID, storyID, input.Rating)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RatingHandler) RemoveRating(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.ratings.RemoveRating(c.Request.Context(), actor.ID, storyID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RatingHandler) bind(c *gin.Context) (userID, storyID uint, input models.RatingRequest, ok bool) {
	actor, ok := currentActor(c)
	if !ok {
		return 0, 0, input, false
	}
	if storyID, ok = paramID(c, "id"); !ok {
		return 0, 0, input, false
	}
	if !bindJSON(c, &input) {
		return 0, 0, input, false
	}
	return actor.ID, storyID, input, true
}
