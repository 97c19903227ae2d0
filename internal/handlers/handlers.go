package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/middleware"
	"github.com/storytime/backend/internal/policy"
	"github.com/storytime/backend/internal/services"
)

// Deps are the collaborators shared by the handlers.
type Deps struct {
	DB        *gorm.DB
	JWTSecret []byte
	PageSize  int

	Stories   *services.StoryService
	Reactions *services.ReactionEngine
	Ratings   *services.RatingEngine
	Reviews   *services.ReviewEngine
}

// Handler combines all handler types
type Handler struct {
	Auth     *AuthHandler
	Story    *StoryHandler
	Reaction *ReactionHandler
	Rating   *RatingHandler
	Review   *ReviewHandler
	User     *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(deps Deps) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(deps.DB, deps.JWTSecret),
		Story:    NewStoryHandler(deps.Stories, deps.PageSize),
		Reaction: NewReactionHandler(deps.Reactions),
		Rating:   NewRatingHandler(deps.Ratings),
		Review:   NewReviewHandler(deps.Reviews, deps.PageSize),
		User:     NewUserHandler(deps.DB),
	}
}

var (
	errBadBody   = apperr.Validation("invalid request body")
	errBadID     = apperr.Validation("invalid id")
	errNoSession = apperr.Unauthorized("authentication required")
)

// respondError writes err as {"error": kind, "message": text}.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": kind, "message": apperr.Message(err)})
}

// bindJSON reports a validation error and returns false when the body
// does not bind to obj.
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, apperr.Wrap(errBadBody, err))
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, errBadID)
		return 0, false
	}
	return uint(id), true
}

func currentActor(c *gin.Context) (policy.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, errNoSession)
	}
	return actor, ok
}

func pageFrom(c *gin.Context, defaultSize int) services.Page {
	number, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultSize)))
	return services.Page{Number: number, Size: size}
}
