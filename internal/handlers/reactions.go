package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/services"
)

type ReactionHandler struct {
	reactions *services.ReactionEngine
}

func NewReactionHandler(reactions *services.ReactionEngine) *ReactionHandler {
	return &ReactionHandler{reactions: reactions}
}

// React records a like or dislike. Posting the opposite kind flips an
// existing reaction.
func (h *ReactionHandler) React(c *gin.Context) {
	userID, storyID, input, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.reactions.SetReaction(c.Request.Context(), userID, storyID, input.Reaction)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == services.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *ReactionHandler) UpdateReaction(c *gin.Context) {
	userID, storyID, input, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.reactions.UpdateReaction(c.Request.Context(), userID, storyID, input.Reaction)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if _, err := h.reactions.RemoveReaction(c.Request.Context(), actor.ID, storyID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReactionHandler) bind(c *gin.Context) (userID, storyID uint, input models.ReactionRequest, ok bool) {
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
