package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
)

const (
	MaxReviewLength = 2000
	MaxAliasLength  = 50

	// DefaultEditWindow bounds how long after creation a review may be edited.
	DefaultEditWindow = 30 * time.Minute
)

var (
	ErrReviewContent    = apperr.Validation("review content must be between 1 and %d characters", MaxReviewLength)
	ErrReviewAlias      = apperr.Validation("alias must be between 1 and %d characters", MaxAliasLength)
	ErrAlreadyReviewed  = apperr.Conflict("you have already reviewed this story")
	ErrAliasTaken       = apperr.Conflict("this alias is already used on this story")
	ErrReviewNotFound   = apperr.NotFound("review not found")
	ErrEditWindowClosed = apperr.Forbidden("the edit window for this review has closed")
)

type ReviewEngine struct {
	db      *gorm.DB
	listing *cache.Listing
	events  events.Publisher
	window  time.Duration
	now     func() time.Time
}

func NewReviewEngine(db *gorm.DB, listing *cache.Listing, pub events.Publisher, window time.Duration) *ReviewEngine {
	if window <= 0 {
		window = DefaultEditWindow
	}
	return &ReviewEngine{db: db, listing: listing, events: pub, window: window, now: time.Now}
}

// CreateReview adds the actor's review. The alias falls back to the
// username and must be unique within the story.
func (e *ReviewEngine) CreateReview(ctx context.Context, actor policy.Actor, storyID uint, content string, alias *string) (*models.Review, error) {
	content, err := reviewContent(content)
	if err != nil {
		return nil, err
	}
	name := actor.Username
	if alias != nil {
		name = strings.TrimSpace(*alias)
	}
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxAliasLength {
		return nil, ErrReviewAlias
	}

	review := models.Review{UserID: actor.ID, StoryID: storyID, Alias: name, Content: content}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lookupStory(tx.Select("id"), storyID); err != nil {
			return err
		}

		var taken []models.Review
		err := tx.Select("id", "user_id", "alias").
			Where("story_id = ? AND (user_id = ? OR alias = ?)", storyID, actor.ID, name).
			Find(&taken).Error
		if err != nil {
			return fmt.Errorf("check existing reviews: %w", err)
		}
		for _, r := range taken {
			if r.UserID == actor.ID {
				return ErrAlreadyReviewed
			}
		}
		if len(taken) > 0 {
			return ErrAliasTaken
		}

		if err := tx.Create(&review).Error; err != nil {
			return classifyReviewInsert(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, actor.ID, OutcomeCreated, &review)
	return &review, nil
}

// classifyReviewInsert separates the two uniqueness rules when a concurrent
// insert slipped past the pre-check.
func classifyReviewInsert(err error) error {
	if !database.IsUniqueViolation(err) {
		return fmt.Errorf("create review: %w", err)
	}
	if database.ViolatesConstraint(err, "idx_reviews_story_alias", "reviews.story_id", "reviews.alias") {
		return apperr.Wrap(ErrAliasTaken, err)
	}
	return apperr.Wrap(ErrAlreadyReviewed, err)
}

// UpdateReview replaces the review's content. check gates who may edit;
// the edit window applies to everyone.
func (e *ReviewEngine) UpdateReview(ctx context.Context, actor policy.Actor, storyID, reviewID uint, content string, check policy.Check[models.Review]) (*models.Review, error) {
	content, err := reviewContent(content)
	if err != nil {
		return nil, err
	}

	var review models.Review
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		review, err = findReview(tx, storyID, reviewID)
		if err != nil {
			return err
		}
		if check != nil && !check(actor, review) {
			return ErrForbidden
		}
		if e.now().Sub(review.CreatedAt) > e.window {
			return ErrEditWindowClosed
		}

		if err := tx.Model(&review).Update("content", content).Error; err != nil {
			return fmt.Errorf("update review %d: %w", review.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, actor.ID, OutcomeUpdated, &review)
	return &review, nil
}

// DeleteReview removes a review. Deletion is not time-boxed.
func (e *ReviewEngine) DeleteReview(ctx context.Context, actor policy.Actor, storyID, reviewID uint, check policy.Check[models.Review]) error {
	var review models.Review
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		review, err = findReview(tx, storyID, reviewID)
		if err != nil {
			return err
		}
		if check != nil && !check(actor, review) {
			return ErrForbidden
		}
		if err := tx.Delete(&review).Error; err != nil {
			return fmt.Errorf("delete review %d: %w", review.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.afterCommit(ctx, actor.ID, OutcomeDeleted, &review)
	return nil
}

// ListReviews returns a page of the story's reviews, newest first.
func (e *ReviewEngine) ListReviews(ctx context.Context, storyID uint, page Page) ([]models.Review, int64, error) {
	db := e.db.WithContext(ctx)
	if _, err := lookupStory(db.Select("id"), storyID); err != nil {
		return nil, 0, err
	}
	page = page.normalize(DefaultPageSize)

	var total int64
	if err := db.Model(&models.Review{}).Where("story_id = ?", storyID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	reviews := []models.Review{}
	err := db.Where("story_id = ?", storyID).
		Order("created_at desc, id desc").
		Limit(page.Size).Offset(page.offset()).
		Find(&reviews).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}

func (e *ReviewEngine) afterCommit(ctx context.Context, userID uint, outcome Outcome, review *models.Review) {
	if e.listing != nil {
		e.listing.InvalidateStory(ctx, review.StoryID)
	}
	publish(ctx, e.events, events.SubjectReview, events.Event{
		StoryID:  review.StoryID,
		UserID:   userID,
		Action:   string(outcome),
		ReviewID: review.ID,
	})
}

func reviewContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxReviewLength {
		return "", ErrReviewContent
	}
	return content, nil
}

func findReview(tx *gorm.DB, storyID, reviewID uint) (models.Review, error) {
	var review models.Review
	err := tx.Where("id = ? AND story_id = ?", reviewID, storyID).Take(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return review, ErrReviewNotFound
	}
	if err != nil {
		return review, fmt.Errorf("load review %d: %w", reviewID, err)
	}
	return review, nil
}
