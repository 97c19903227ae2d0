package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
	"github.com/storytime/backend/internal/services"
)

const jsonContentType = "application/json; charset=utf-8"

type StoryHandler struct {
	stories  *services.StoryService
	pageSize int
}

func NewStoryHandler(stories *services.StoryService, pageSize int) *StoryHandler {
	return &StoryHandler{stories: stories, pageSize: pageSize}
}

// GetStories lists stories newest first. Supports page, page_size, genre,
// author (pen name) and search (title).
func (h *StoryHandler) GetStories(c *gin.Context) {
	payload, err := h.stories.List(c.Request.Context(), services.ListQuery{
		Page:   pageFrom(c, h.pageSize),
		Genre:  c.Query("genre"),
		Author: c.Query("author"),
		Search: c.Query("search"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

// GetStory returns a single story by ID
func (h *StoryHandler) GetStory(c *gin.Context) {
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}

	payload, err := h.stories.Get(c.Request.Context(), storyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, payload)
}

// CreateStory publishes a story. Only authors may call it.
func (h *StoryHandler) CreateStory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var input models.CreateStoryRequest
	if !bindJSON(c, &input) {
		return
	}

	story, err := h.stories.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

// UpdateStory edits a story; only its author may.
func (h *StoryHandler) UpdateStory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input models.UpdateStoryRequest
	if !bindJSON(c, &input) {
		return
	}

	story, err := h.stories.Update(c.Request.Context(), actor, storyID, input, policy.OwnsStory)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

// DeleteStory removes a story; its author or a moderator may.
func (h *StoryHandler) DeleteStory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	storyID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.stories.Delete(c.Request.Context(), actor, storyID, policy.OwnsStoryOrModerates); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
