package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
	"github.com/storytime/backend/internal/services"
)

type ReviewHandler struct {
	reviews  *services.ReviewEngine
	pageSize int
}

func NewReviewHandler(reviews *services.ReviewEngine, pageSize int) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, pageSize: pageSize}
}

// GetReviews returns a page of a story's reviews, newest first.
func (h *ReviewHandler) GetReviews(c *gin.Context) {
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}

	page := pageFrom(c, h.pageSize)
	reviews, total, err := h.reviews.ListReviews(c.Request.Context(), storyID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": reviews})
}

func (h *ReviewHandler) CreateReview(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input models.CreateReviewRequest
	if !bindJSON(c, &input) {
		return
	}

	review, err := h.reviews.CreateReview(c.Request.Context(), actor, storyID, input.Content, input.Alias)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// UpdateReview edits the caller's own review inside the edit window.
func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	reviewID, ok := paramID(c, "reviewId")
	if !ok {
		return
	}
	var input models.UpdateReviewRequest
	if !bindJSON(c, &input) {
		return
	}

	review, err := h.reviews.UpdateReview(c.Request.Context(), actor, storyID, reviewID, input.Content, policy.OwnsReview)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// DeleteReview is open to the owner and to moderators.
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	reviewID, ok := paramID(c, "reviewId")
	if !ok {
		return
	}

	err := h.reviews.DeleteReview(c.Request.Context(), actor, storyID, reviewID, policy.OwnsReviewOrModerates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
