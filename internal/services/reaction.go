package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
)

var (
	ErrInvalidReaction = apperr.Validation("reaction must be either 'like' or 'dislike'")
	ErrAlreadyReacted  = apperr.Conflict("you have already reacted to this story")
	ErrNoReaction      = apperr.NotFound("you have not reacted to this story")
)

type ReactionResult struct {
	Outcome  Outcome          `json:"outcome"`
	Reaction *models.Reaction `json:"reaction,omitempty"`
	Counters Counters         `json:"counters"`
}

// ReactionEngine keeps exactly one Reaction per (user, story) and the
// story's like/dislike counters in step with those rows.
type ReactionEngine struct {
	db      *gorm.DB
	listing *cache.Listing
	events  events.Publisher
}

func NewReactionEngine(db *gorm.DB, listing *cache.Listing, pub events.Publisher) *ReactionEngine {
	return &ReactionEngine{db: db, listing: listing, events: pub}
}

// SetReaction creates the user's reaction, or flips an existing reaction of
// the opposite kind. Repeating the current kind is rejected.
func (e *ReactionEngine) SetReaction(ctx context.Context, userID, storyID uint, kind models.ReactionKind) (*ReactionResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidReaction
	}

	var result ReactionResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lookupStory(tx.Select("id"), storyID); err != nil {
			return err
		}

		existing, err := findReaction(tx, userID, storyID)
		switch {
		case errors.Is(err, ErrNoReaction):
			created, err := createReaction(tx, userID, storyID, kind)
			if err != nil {
				return err
			}
			result.Outcome, result.Reaction = OutcomeCreated, created
		case err != nil:
			return err
		case existing.Reaction == kind:
			return ErrAlreadyReacted
		default:
			if err := flipReaction(tx, existing, kind); err != nil {
				return err
			}
			result.Outcome, result.Reaction = OutcomeUpdated, existing
		}

		result.Counters, err = readCounters(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

// UpdateReaction switches an existing reaction to kind.
func (e *ReactionEngine) UpdateReaction(ctx context.Context, userID, storyID uint, kind models.ReactionKind) (*ReactionResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidReaction
	}

	var result ReactionResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lookupStory(tx.Select("id"), storyID); err != nil {
			return err
		}

		existing, err := findReaction(tx, userID, storyID)
		if err != nil {
			return err
		}
		if existing.Reaction == kind {
			return ErrAlreadyReacted
		}
		if err := flipReaction(tx, existing, kind); err != nil {
			return err
		}
		result.Outcome, result.Reaction = OutcomeUpdated, existing

		result.Counters, err = readCounters(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

// RemoveReaction deletes the user's reaction and decrements its counter.
func (e *ReactionEngine) RemoveReaction(ctx context.Context, userID, storyID uint) (*ReactionResult, error) {
	var result ReactionResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lookupStory(tx.Select("id"), storyID); err != nil {
			return err
		}

		existing, err := findReaction(tx, userID, storyID)
		if err != nil {
			return err
		}

		res := tx.Delete(existing)
		if res.Error != nil {
			return fmt.Errorf("delete reaction %d: %w", existing.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with a concurrent delete.
			return ErrNoReaction
		}
		if err := adjustCounter(tx, storyID, existing.Reaction.CounterColumn(), -1); err != nil {
			return err
		}
		result.Outcome, result.Reaction = OutcomeDeleted, existing

		result.Counters, err = readCounters(tx, storyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, userID, storyID, &result)
	return &result, nil
}

func (e *ReactionEngine) afterCommit(ctx context.Context, userID, storyID uint, result *ReactionResult) {
	if e.listing != nil {
		e.listing.InvalidateStory(ctx, storyID)
	}
	publish(ctx, e.events, events.SubjectReaction, events.Event{
		StoryID:       storyID,
		UserID:        userID,
		Action:        string(result.Outcome),
		Reaction:      string(result.Reaction.Reaction),
		Likes:         result.Counters.Likes,
		Dislikes:      result.Counters.Dislikes,
		AverageRating: result.Counters.AverageRating,
		TotalRatings:  result.Counters.TotalRatings,
	})
}

func findReaction(tx *gorm.DB, userID, storyID uint) (*models.Reaction, error) {
	var reaction models.Reaction
	err := tx.Where("user_id = ? AND story_id = ?", userID, storyID).Take(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoReaction
	}
	if err != nil {
		return nil, fmt.Errorf("load reaction: %w", err)
	}
	return &reaction, nil
}

// createReaction inserts the row before touching the counter so a concurrent
// duplicate fails on the unique index and never reaches the increment.
func createReaction(tx *gorm.DB, userID, storyID uint, kind models.ReactionKind) (*models.Reaction, error) {
	reaction := models.Reaction{UserID: userID, StoryID: storyID, Reaction: kind}
	if err := tx.Create(&reaction).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(ErrAlreadyReacted, err)
		}
		return nil, fmt.Errorf("create reaction: %w", err)
	}
	if err := adjustCounter(tx, storyID, kind.CounterColumn(), 1); err != nil {
		return nil, err
	}
	return &reaction, nil
}

func flipReaction(tx *gorm.DB, reaction *models.Reaction, kind models.ReactionKind) error {
	previous := reaction.Reaction
	res := tx.Model(reaction).Where("reaction = ?", previous).Update("reaction", kind)
	if res.Error != nil {
		return fmt.Errorf("update reaction %d: %w", reaction.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent request already flipped it.
		return ErrAlreadyReacted
	}
	reaction.Reaction = kind
	if err := adjustCounter(tx, reaction.StoryID, previous.CounterColumn(), -1); err != nil {
		return err
	}
	return adjustCounter(tx, reaction.StoryID, kind.CounterColumn(), 1)
}
