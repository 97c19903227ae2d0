package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
)

var (
	ErrInvalidRating = apperr.Validation("rating must be an integer between %d and %d", models.MinRating, models.MaxRating)
	ErrSelfRating    = apperr.Forbidden("you cannot rate your own story")
	ErrAlreadyRated  = apperr.Conflict("you have already rated this story, update your rating instead")
	ErrNoRating      = apperr.NotFound("you have not rated this story")
)

type RatingResult struct {
	Outcome Outcome        `json:"outcome"`
	Rating  *models.Rating `json:"rating,omitempty"`
	models.RatingSummary
}

// RatingEngine keeps one Rating per (user, story) and re-derives the story's
// average and count from every rating row after each change. Each mutation
// holds the story row lock, so the aggregate it writes includes every
// committed rating.
type RatingEngine struct {
	db      *gorm.DB
	listing *cache.Listing
	events  events.Publisher
}

func NewRatingEngine(db *gorm.DB, listing *cache.Listing, pub events.Publisher) *RatingEngine {
	return &RatingEngine{db: db, listing: listing, events: pub}
}

func validRating(value int) bool {
	return value >= models.MinRating && value <= models.MaxRating
}

// SetRating creates the user's rating. Authors may not rate their own stories.
func (e *RatingEngine) SetRating(ctx context.Context, userID, storyID uint, value int) (*RatingResult, error) {
	if !validRating(value) {
		return nil, ErrInvalidRating
	}

	var result RatingResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		story, err := lockStory(tx, storyID)
		if err != nil {
			return err
		}
		self, err := writtenBy(tx, story, userID)
		if err != nil {
			return err
		}
		if self {
			return ErrSelfRating
		}

		if _, err := findRating(tx, userID, storyID); err == nil {
			return ErrAlreadyRated
		} else if !errors.Is(err, ErrNoRating) {
			return err
		}

		rating := models.Rating{UserID: userID, StoryID: storyID, Rating: value}
		if err := tx.Create(&rating).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Wrap(ErrAlreadyRated, err)
			}
			return fmt.Errorf("create rating: %w", err)
		}
		result.Outcome, result.Rating = OutcomeCreated, &rating

		result.RatingSummary, err = recomputeRatings(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

// UpdateRating overwrites the value of an existing rating.
func (e *RatingEngine) UpdateRating(ctx context.Context, userID, storyID uint, value int) (*RatingResult, error) {
	if !validRating(value) {
		return nil, ErrInvalidRating
	}

	var result RatingResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockStory(tx, storyID); err != nil {
			return err
		}

		rating, err := findRating(tx, userID, storyID)
		if err != nil {
			return err
		}
		if err := tx.Model(rating).Update("rating", value).Error; err != nil {
			return fmt.Errorf("update rating %d: %w", rating.ID, err)
		}
		rating.Rating = value
		result.Outcome, result.Rating = OutcomeUpdated, rating

		result.RatingSummary, err = recomputeRatings(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

func (e *RatingEngine) RemoveRating(ctx context.Context, userID, storyID uint) (*RatingResult, error) {
	var result RatingResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockStory(tx, storyID); err != nil {
			return err
		}

		rating, err := findRating(tx, userID, storyID)
		if err != nil {
			return err
		}
		res := tx.Delete(rating)
		if res.Error != nil {
			return fmt.Errorf("delete rating %d: %w", rating.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNoRating
		}
		result.Outcome, result.Rating = OutcomeDeleted, rating

		result.RatingSummary, err = recomputeRatings(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

// Summary reads the stored aggregate without recomputing it.
func (e *RatingEngine) Summary(ctx context.Context, storyID uint) (models.RatingSummary, error) {
	counters, err := readCounters(e.db.WithContext(ctx), storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RatingSummary{}, ErrStoryNotFound
		}
		return models.RatingSummary{}, err
	}
	return models.RatingSummary{AverageRating: counters.AverageRating, TotalRatings: counters.TotalRatings}, nil
}

func (e *RatingEngine) afterCommit(ctx context.Context, userID, storyID uint, result *RatingResult) {
	if e.listing != nil {
		e.listing.InvalidateStory(ctx, storyID)
	}
	publish(ctx, e.events, events.SubjectRating, events.Event{
		StoryID:       storyID,
		UserID:        userID,
		Action:        string(result.Outcome),
		Rating:        result.Rating.Rating,
		AverageRating: result.AverageRating,
		TotalRatings:  result.TotalRatings,
	})
}

// writtenBy reports whether userID owns the story through its author profile.
func writtenBy(tx *gorm.DB, story models.Story, userID uint) (bool, error) {
	if story.AuthorID == nil {
		return false, nil
	}
	var n int64
	err := tx.Model(&models.Author{}).Where("id = ? AND user_id = ?", *story.AuthorID, userID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check story author: %w", err)
	}
	return n > 0, nil
}

func findRating(tx *gorm.DB, userID, storyID uint) (*models.Rating, error) {
	var rating models.Rating
	err := tx.Where("user_id = ? AND story_id = ?", userID, storyID).Take(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRating
	}
	if err != nil {
		return nil, fmt.Errorf("load rating: %w", err)
	}
	return &rating, nil
}

// recomputeRatings re-aggregates every rating of the story in one query and
// writes the result back. Averages are rounded to two places.
func recomputeRatings(tx *gorm.DB, storyID uint) (models.RatingSummary, error) {
	var agg struct {
		Average float64
		Total   int
	}
	err := tx.Model(&models.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS total").
		Where("story_id = ?", storyID).
		Scan(&agg).Error
	if err != nil {
		return models.RatingSummary{}, fmt.Errorf("aggregate ratings for story %d: %w", storyID, err)
	}

	summary := models.RatingSummary{
		AverageRating: math.Round(agg.Average*100) / 100,
		TotalRatings:  agg.Total,
	}
	err = tx.Model(&models.Story{}).Where("id = ?", storyID).UpdateColumns(map[string]any{
		"average_rating": summary.AverageRating,
		"total_ratings":  summary.TotalRatings,
	}).Error
	if err != nil {
		return models.RatingSummary{}, fmt.Errorf("store rating summary for story %d: %w", storyID, err)
	}
	return summary, nil
}
